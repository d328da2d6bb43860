package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ExpoProvider отправляет уведомления через Expo push API.
type ExpoProvider struct {
	endpoint string
	client   *http.Client
}

func NewExpoProvider(endpoint string) *ExpoProvider {
	return &ExpoProvider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type expoMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound,omitempty"`
}

type expoResponse struct {
	Data struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"data"`
}

func (p *ExpoProvider) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	payload, err := json.Marshal(expoMessage{To: token, Title: title, Body: body, Data: data, Sound: "default"})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("push provider status %d", resp.StatusCode)
	}

	var out expoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&out); err != nil {
		return fmt.Errorf("decode push response: %w", err)
	}
	if out.Data.Status == "error" {
		return fmt.Errorf("push rejected: %s", out.Data.Message)
	}
	return nil
}
