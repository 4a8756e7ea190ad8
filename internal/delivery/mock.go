package delivery

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// SentMessage is one message captured by the mock client.
type SentMessage struct {
	To      string
	Subject string
	HTML    string
}

// MockClient records sends instead of calling the provider. Used in tests and
// local development.
type MockClient struct {
	mu      sync.Mutex
	sent    []SentMessage
	FailFor map[string]error
	logger  zerolog.Logger
}

func NewMockClient(logger zerolog.Logger) *MockClient {
	return &MockClient{logger: logger}
}

func (m *MockClient) Send(_ context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.FailFor[to]; ok && err != nil {
		return err
	}

	m.sent = append(m.sent, SentMessage{To: to, Subject: subject, HTML: htmlBody})
	m.logger.Info().
		Str("to", to).
		Str("subject", subject).
		Int("body_length", len(htmlBody)).
		Msg("mock email")
	return nil
}

// Sent returns a copy of every captured message.
func (m *MockClient) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}
