// Package notify отправляет уведомления о новых заказах в Telegram.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier описывает канал уведомлений о принятом заказе.
// Сбой отправки не влияет на судьбу заказа.
type Notifier interface {
	OrderPlaced(ctx context.Context, orderID int64) error
}

// Telegram отправляет сообщения через Bot API.
type Telegram struct {
	apiURL     string
	token      string
	chatID     string
	ordersLink string
	httpClient *http.Client
}

const defaultAPIURL = "https://api.telegram.org"

// NewTelegram создаёт уведомитель с указанным токеном бота и идентификатором чата.
// ordersLink — ссылка на список заказов, добавляемая в текст сообщения.
func NewTelegram(token, chatID, ordersLink string) *Telegram {
	return &Telegram{
		apiURL:     defaultAPIURL,
		token:      token,
		chatID:     chatID,
		ordersLink: ordersLink,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// OrderPlaced отправляет сообщение о новом заказе.
func (t *Telegram) OrderPlaced(ctx context.Context, orderID int64) error {
	if t == nil || t.token == "" {
		return fmt.Errorf("telegram notifier not configured")
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID: t.chatID,
		Text:   fmt.Sprintf("Надійшло нове замовлення №%d\n%s", orderID, t.ordersLink),
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
