package certapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vpn-backend/internal/service"
)

// Client - клиент API выпуска сертификатов, поднятого на каждой ноде.
// Все ноды авторизуют запросы одним статическим bearer-токеном.
type Client struct {
	http  *http.Client
	token string
}

type Config struct {
	Token   string
	Timeout time.Duration
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:  &http.Client{Timeout: timeout},
		token: cfg.Token,
	}
}

type issueRequest struct {
	Name string `json:"name"`
}

type issueResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	DownloadURL string `json:"download_url"`
	ConnURL     string `json:"conn_url"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "https://" + addr
}

// Issue выпускает сертификат с заданным именем на ноде addr.
func (c *Client) Issue(ctx context.Context, addr, name string) (*service.IssuedCert, error) {
	body, err := json.Marshal(issueRequest{Name: name})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL(addr)+"/certificates", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("node %s: issue %q: status %d: %s",
			addr, name, resp.StatusCode, readError(resp.Body))
	}

	var out issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("node %s: decode issue response: %w", addr, err)
	}
	return &service.IssuedCert{
		Name:        name,
		DownloadURL: out.DownloadURL,
		ConnURL:     out.ConnURL,
	}, nil
}

// Revoke отзывает сертификат name на ноде addr.
func (c *Client) Revoke(ctx context.Context, addr, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		baseURL(addr)+"/certificates/"+name, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node %s: revoke %q: status %d: %s",
			addr, name, resp.StatusCode, readError(resp.Body))
	}
	return nil
}

// Health опрашивает ноду addr; любой ответ кроме 200 {"status":"ok"}
// считается нездоровьем.
func (c *Client) Health(ctx context.Context, addr string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		baseURL(addr)+"/health", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node %s: health status %d", addr, resp.StatusCode)
	}
	var out healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("node %s: decode health response: %w", addr, err)
	}
	if out.Status != "ok" {
		return fmt.Errorf("node %s: reported status %q", addr, out.Status)
	}
	return nil
}

func readError(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 1024))
	if err != nil || len(data) == 0 {
		return "<no body>"
	}
	return string(data)
}
