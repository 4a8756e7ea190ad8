package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPClient sends messages through a transactional-email HTTP API (Resend
// compatible), authenticated with a bearer API key.
type HTTPClient struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
	logger   zerolog.Logger
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func NewHTTPClient(endpoint, apiKey, from, fromName string, logger zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     ResolveFromIdentity(from, fromName),
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger.With().Str("component", "delivery_client").Logger(),
	}
}

// From reports the resolved sender identity placed on outbound messages.
func (c *HTTPClient) From() string {
	return c.from
}

func (c *HTTPClient) Send(ctx context.Context, to, subject, htmlBody string) error {
	payload, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    htmlBody,
	})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn().
			Int("status_code", resp.StatusCode).
			Str("to", to).
			Msg("email provider returned non-success status")
		return &DeliveryError{StatusCode: resp.StatusCode, Detail: string(bytes.TrimSpace(detail))}
	}

	c.logger.Info().
		Str("to", to).
		Str("subject", subject).
		Dur("duration", time.Since(start)).
		Msg("email delivered")
	return nil
}
