package kassa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const defaultAPIURL = "https://api.yookassa.ru/v3"

// Client - клиент платежного шлюза: создает платеж и возвращает
// ссылку подтверждения. Итог оплаты приходит отдельно вебхуком.
type Client struct {
	http      *http.Client
	apiURL    string
	shopID    string
	secretKey string
	returnURL string
}

type Config struct {
	APIURL    string
	ShopID    string
	SecretKey string
	ReturnURL string
	Timeout   time.Duration
}

func NewClient(cfg Config) *Client {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		apiURL:    apiURL,
		shopID:    cfg.ShopID,
		secretKey: cfg.SecretKey,
		returnURL: cfg.ReturnURL,
	}
}

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type createRequest struct {
	Amount       amount       `json:"amount"`
	Confirmation confirmation `json:"confirmation"`
	Capture      bool         `json:"capture"`
	Description  string       `json:"description"`
}

type createResponse struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"`
	Confirmation confirmation `json:"confirmation"`
}

// CreateIntent регистрирует платеж на сумму в рублях и возвращает id
// операции шлюза и ссылку для подтверждения оплаты.
func (c *Client) CreateIntent(ctx context.Context, value int, description string) (string, string, error) {
	body, err := json.Marshal(createRequest{
		Amount:       amount{Value: fmt.Sprintf("%d.00", value), Currency: "RUB"},
		Confirmation: confirmation{Type: "redirect", ReturnURL: c.returnURL},
		Capture:      true,
		Description:  description,
	})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", uuid.NewString())
	req.SetBasicAuth(c.shopID, c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("payment gateway: status %d", resp.StatusCode)
	}

	var out createResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("payment gateway: decode response: %w", err)
	}
	if out.ID == "" || out.Confirmation.ConfirmationURL == "" {
		return "", "", fmt.Errorf("payment gateway: incomplete response for %q", description)
	}
	return out.ID, out.Confirmation.ConfirmationURL, nil
}
