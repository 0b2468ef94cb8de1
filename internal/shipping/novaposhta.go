// Package shipping предоставляет клиент справочника адресов службы доставки.
package shipping

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultAPIURL — адрес JSON API Новой Почты.
const DefaultAPIURL = "https://api.novaposhta.ua/v2.0/json/"

// WarehouseBranch и WarehousePostomat — типы точек выдачи в справочнике.
const (
	WarehouseBranch   = "Відділення"
	WarehousePostomat = "Поштомат"
)

// Client инкапсулирует HTTP-взаимодействие со справочником адресов.
type Client struct {
	apiURL     string
	apiKey     string
	httpClient *retryablehttp.Client
}

// NewClient создаёт клиент справочника адресов. Пустой apiURL заменяется
// адресом по умолчанию.
func NewClient(apiURL, apiKey string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 2
	httpClient.HTTPClient.Timeout = 10 * time.Second
	httpClient.Logger = nil

	return &Client{
		apiURL:     apiURL,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type apiRequest struct {
	ModelName        string         `json:"modelName"`
	CalledMethod     string         `json:"calledMethod"`
	MethodProperties map[string]any `json:"methodProperties"`
	APIKey           string         `json:"apiKey"`
}

type apiResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		Description string `json:"Description"`
	} `json:"data"`
}

func (c *Client) call(ctx context.Context, method string, props map[string]any) (*apiResponse, error) {
	body, err := json.Marshal(apiRequest{
		ModelName:        "Address",
		CalledMethod:     method,
		MethodProperties: props,
		APIKey:           c.apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("%s: upstream reported failure", method)
	}

	return &result, nil
}

// SearchCities возвращает названия городов, начинающиеся с указанного текста.
// Сравнение без учёта регистра.
func (c *Client) SearchCities(ctx context.Context, prefix string) ([]string, error) {
	resp, err := c.call(ctx, "getCities", map[string]any{})
	if err != nil {
		return nil, err
	}

	prefix = strings.ToLower(prefix)

	var cities []string
	for _, d := range resp.Data {
		if strings.HasPrefix(strings.ToLower(d.Description), prefix) {
			cities = append(cities, d.Description)
		}
	}
	return cities, nil
}

// SearchWarehouses возвращает описания точек выдачи в городе, отфильтрованные
// по типу: отделения либо почтоматы.
func (c *Client) SearchWarehouses(ctx context.Context, city, kind string) ([]string, error) {
	resp, err := c.call(ctx, "getWarehouses", map[string]any{
		"CityName": city,
		"Language": "ua",
	})
	if err != nil {
		return nil, err
	}

	wantPrefix := WarehousePostomat
	if kind == WarehouseBranch {
		wantPrefix = WarehouseBranch
	}

	var warehouses []string
	for _, d := range resp.Data {
		if strings.HasPrefix(d.Description, wantPrefix) {
			warehouses = append(warehouses, d.Description)
		}
	}
	return warehouses, nil
}
