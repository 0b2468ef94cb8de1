package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()

	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

func TestTotal(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		factor string
		want   string
	}{
		{
			name:   "base 1000 markup 20",
			base:   "1000",
			factor: "20",
			want:   "12",
		},
		{
			name:   "zero markup",
			base:   "1000",
			factor: "0",
			want:   "10",
		},
		{
			name:   "ceiling to the cent",
			base:   "333",
			factor: "7",
			want:   "3.57",
		},
		{
			name:   "zero base",
			base:   "0",
			factor: "50",
			want:   "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Total(dec(t, tt.base), dec(t, tt.factor))
			if !got.Equal(dec(t, tt.want)) {
				t.Fatalf("Total(%s, %s) = %s, want %s", tt.base, tt.factor, got, tt.want)
			}
		})
	}
}

func TestTotalCeilingNotNearest(t *testing.T) {
	// 1 * 1.00001 = 1.00001, ceil до сотой даёт 1.01, а не 1.00.
	got := Total(dec(t, "100"), dec(t, "0.001"))
	if !got.Equal(dec(t, "1.01")) {
		t.Fatalf("Total = %s, want 1.01 (ceiling, not nearest)", got)
	}
}

func TestDisplayPriceExample(t *testing.T) {
	// 1000 исходных единиц = 10.00, наценка 20%, курс 1.08.
	got := DisplayPrice(dec(t, "1000"), dec(t, "20"), dec(t, "1.08"))
	if !got.Equal(dec(t, "12.96")) {
		t.Fatalf("DisplayPrice = %s, want 12.96", got)
	}

	if s := Format(got); s != "12,96" {
		t.Fatalf("Format = %q, want %q", s, "12,96")
	}
}

func TestDisplayPriceMonotonic(t *testing.T) {
	coeff := dec(t, "1.08")

	bases := []string{"0", "1", "100", "999", "12345"}
	factors := []string{"0", "5", "20", "100"}

	var prevBase decimal.Decimal
	for i, b := range bases {
		got := DisplayPrice(dec(t, b), dec(t, "20"), coeff)
		if i > 0 && got.LessThan(prevBase) {
			t.Fatalf("DisplayPrice must be non-decreasing in base: %s < %s", got, prevBase)
		}
		prevBase = got
	}

	var prevFactor decimal.Decimal
	for i, f := range factors {
		got := DisplayPrice(dec(t, "1000"), dec(t, f), coeff)
		if i > 0 && got.LessThan(prevFactor) {
			t.Fatalf("DisplayPrice must be non-decreasing in factor: %s < %s", got, prevFactor)
		}
		prevFactor = got
	}
}

func TestFormatRounding(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"12.96", "12,96"},
		{"12.9601", "12,96"},
		{"12.955", "12,96"},
		{"12.954", "12,95"},
		{"0", "0,00"},
	}

	for _, tt := range tests {
		if got := Format(dec(t, tt.in)); got != tt.want {
			t.Fatalf("Format(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "point separator", in: "12.50", want: "12.5"},
		{name: "comma separator", in: "12,50", want: "12.5"},
		{name: "integer", in: "7", want: "7"},
		{name: "empty", in: "", wantErr: true},
		{name: "garbage", in: "abc", wantErr: true},
		{name: "negative", in: "-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPrice) {
					t.Fatalf("Parse(%q) error = %v, want ErrInvalidPrice", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.in, err)
			}
			if !got.Equal(dec(t, tt.want)) {
				t.Fatalf("Parse(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}
