package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubAdminChecker struct {
	admins map[int64]bool
	err    error
}

func (s *stubAdminChecker) IsAdmin(_ context.Context, userID int64) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.admins[userID], nil
}

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := GetUserIDFromContext(r.Context())
		if !ok {
			t.Fatalf("user id not in context")
		}
		if id != 42 {
			t.Fatalf("user id from context = %d, want 42", id)
		}
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)

	m.SetAuthCookie(w, 42)
	res := w.Result()
	resCookies := res.Cookies()
	if len(resCookies) == 0 {
		t.Fatalf("no cookies set by SetAuthCookie")
	}

	r.AddCookie(resCookies[0])

	handler := m.Middleware(next)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_WithoutCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)

	handler := m.Middleware(next)
	handler.ServeHTTP(w, r)

	res := w.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}


func TestAuthMiddleware_TamperedCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	m.SetAuthCookie(w, 42)
	cookie := w.Result().Cookies()[0]
	cookie.Value = "777" + cookie.Value[2:]

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(cookie)

	rec := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(rec, r)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_Optional(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	t.Run("without cookie", func(t *testing.T) {
		nextCalled := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nextCalled = true
			if _, ok := GetUserIDFromContext(r.Context()); ok {
				t.Fatalf("user id should not be in context")
			}
		})

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		m.Optional(next).ServeHTTP(httptest.NewRecorder(), r)

		if !nextCalled {
			t.Fatalf("next handler was not called")
		}
	})

	t.Run("with valid cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		m.SetAuthCookie(w, 7)

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(w.Result().Cookies()[0])

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := GetUserIDFromContext(r.Context())
			if !ok || id != 7 {
				t.Fatalf("user id from context = %d (%v), want 7", id, ok)
			}
		})

		m.Optional(next).ServeHTTP(httptest.NewRecorder(), r)
	})

	t.Run("with corrupt cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "auth_token", Value: "garbage"})

		nextCalled := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nextCalled = true
			if _, ok := GetUserIDFromContext(r.Context()); ok {
				t.Fatalf("user id should not be in context")
			}
		})

		m.Optional(next).ServeHTTP(httptest.NewRecorder(), r)

		if !nextCalled {
			t.Fatalf("next handler was not called")
		}
	})
}

func TestRequireAdmin(t *testing.T) {
	checker := &stubAdminChecker{admins: map[int64]bool{1: true}}

	newRequest := func(userID int64) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/admin", nil)
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		return r.WithContext(ctx)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("admin allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RequireAdmin(checker)(next).ServeHTTP(rec, newRequest(1))
		if rec.Result().StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusOK)
		}
	})

	t.Run("non-admin forbidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RequireAdmin(checker)(next).ServeHTTP(rec, newRequest(2))
		if rec.Result().StatusCode != http.StatusForbidden {
			t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusForbidden)
		}
	})

	t.Run("anonymous unauthorized", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/admin", nil)
		RequireAdmin(checker)(next).ServeHTTP(rec, r)
		if rec.Result().StatusCode != http.StatusUnauthorized {
			t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
		}
	})

	t.Run("checker error", func(t *testing.T) {
		broken := &stubAdminChecker{err: errors.New("db down")}
		rec := httptest.NewRecorder()
		RequireAdmin(broken)(next).ServeHTTP(rec, newRequest(1))
		if rec.Result().StatusCode != http.StatusInternalServerError {
			t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusInternalServerError)
		}
	})
}

func TestClearAuthCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	w := httptest.NewRecorder()
	m.ClearAuthCookie(w)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies set = %d, want 1", len(cookies))
	}
	if cookies[0].MaxAge != -1 {
		t.Fatalf("MaxAge = %d, want -1", cookies[0].MaxAge)
	}
	if cookies[0].Value != "" {
		t.Fatalf("Value = %q, want empty", cookies[0].Value)
	}
}
