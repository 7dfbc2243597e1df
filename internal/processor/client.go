package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Client реализует вызовы внешнего платёжного провайдера.
// Все операции принимают идемпотентный ключ: захват и возврат средств
// небезопасно повторять без него.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт экземпляр клиента.
func NewClient(baseURL string, timeout time.Duration) *Client {
	apiKey := os.Getenv("PROCESSOR_API_KEY")

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type holdRequest struct {
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	PaymentMethod  string  `json:"payment_method"`
	IdempotencyKey string  `json:"idempotency_key"`
}

type holdResponse struct {
	Reference string `json:"reference"`
}

type captureResponse struct {
	ReceiptID string `json:"receipt_id"`
}

type refundRequest struct {
	Amount         float64 `json:"amount"`
	IdempotencyKey string  `json:"idempotency_key"`
}

type refundResponse struct {
	RefundID string `json:"refund_id"`
}

// AuthorizeAndHold авторизует и замораживает средства клиента.
func (c *Client) AuthorizeAndHold(ctx context.Context, amount float64, currency, paymentMethod, idempotencyKey string) (string, error) {
	var resp holdResponse
	err := c.post(ctx, "/v1/holds", holdRequest{
		Amount:         amount,
		Currency:       currency,
		PaymentMethod:  paymentMethod,
		IdempotencyKey: idempotencyKey,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("processor: authorize and hold: %w", err)
	}
	return resp.Reference, nil
}

// Capture списывает ранее замороженные средства.
func (c *Client) Capture(ctx context.Context, reference string) (string, error) {
	var resp captureResponse
	err := c.post(ctx, "/v1/holds/"+reference+"/capture", struct{}{}, &resp)
	if err != nil {
		return "", fmt.Errorf("processor: capture: %w", err)
	}
	return resp.ReceiptID, nil
}

// Refund возвращает средства клиенту (полностью или частично).
func (c *Client) Refund(ctx context.Context, reference string, amount float64, idempotencyKey string) (string, error) {
	var resp refundResponse
	err := c.post(ctx, "/v1/holds/"+reference+"/refund", refundRequest{
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("processor: refund: %w", err)
	}
	return resp.RefundID, nil
}

// Ping проверяет доступность провайдера. Используется health check'ом.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return fmt.Errorf("processor: build ping request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("processor: ping: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("processor: ping: status %d", resp.StatusCode)
	}
	return nil
}

// post выполняет JSON POST и декодирует ответ.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
