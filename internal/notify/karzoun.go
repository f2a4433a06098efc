package notify

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tabour/internal/models"
)

const karzounEndpoint = "https://api.karzoun.app/api/v2/send"

// Karzoun sends WhatsApp messages through the Karzoun gateway.
type Karzoun struct {
	client   *http.Client
	endpoint string
}

func NewKarzoun() *Karzoun {
	return &Karzoun{
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: karzounEndpoint,
	}
}

type karzounResponse struct {
	MessageStatus string `json:"message_status"`
}

func (k *Karzoun) Send(ctx context.Context, cfg models.KarzounConfig, mobile, message string) bool {
	if cfg.AppKey == "" || cfg.AuthKey == "" {
		log.Printf("msg=\"karzoun credentials missing, skipping whatsapp\"")
		return false
	}

	form := url.Values{}
	form.Set("appkey", cfg.AppKey)
	form.Set("authkey", cfg.AuthKey)
	form.Set("to", strings.TrimPrefix(mobile, "+"))
	form.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		log.Printf("msg=\"karzoun request build failed\" error=%q", err)
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.client.Do(req)
	if err != nil {
		log.Printf("msg=\"karzoun request failed\" error=%q", err)
		return false
	}
	defer resp.Body.Close()

	var result karzounResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Printf("msg=\"karzoun response decode failed\" error=%q", err)
		return false
	}
	if result.MessageStatus != "Success" {
		log.Printf("msg=\"karzoun send rejected\" status=%q", result.MessageStatus)
		return false
	}
	return true
}
