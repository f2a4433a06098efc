package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"tabour/internal/models"
)

const msegatEndpoint = "https://www.msegat.com/gw/sendsms.php"

// Msegat sends SMS through the Msegat gateway. Credentials travel with
// each call because operators can change them at runtime via settings.
type Msegat struct {
	client   *http.Client
	endpoint string
}

func NewMsegat() *Msegat {
	return &Msegat{
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: msegatEndpoint,
	}
}

type msegatRequest struct {
	UserName   string `json:"userName"`
	APIKey     string `json:"apiKey"`
	UserSender string `json:"userSender"`
	Numbers    string `json:"numbers"`
	Msg        string `json:"msg"`
}

type msegatResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (m *Msegat) Send(ctx context.Context, cfg models.MsegatConfig, mobile, message string) bool {
	if cfg.UserName == "" || cfg.APIKey == "" || cfg.UserSender == "" {
		log.Printf("msg=\"msegat credentials missing, skipping sms\"")
		return false
	}

	payload, err := json.Marshal(msegatRequest{
		UserName:   cfg.UserName,
		APIKey:     cfg.APIKey,
		UserSender: cfg.UserSender,
		// Msegat expects international numbers without the plus sign.
		Numbers: strings.TrimPrefix(mobile, "+"),
		Msg:     message,
	})
	if err != nil {
		log.Printf("msg=\"msegat marshal failed\" error=%q", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		log.Printf("msg=\"msegat request build failed\" error=%q", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		log.Printf("msg=\"msegat request failed\" error=%q", err)
		return false
	}
	defer resp.Body.Close()

	var result msegatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Printf("msg=\"msegat response decode failed\" error=%q", err)
		return false
	}
	if result.Code != "1" {
		log.Printf("msg=\"msegat send rejected\" code=%s detail=%q", result.Code, result.Message)
		return false
	}
	return true
}
