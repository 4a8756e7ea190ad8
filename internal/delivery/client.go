// Package delivery adapts the outbound transactional-email provider. One HTTP
// call per message; any non-success response surfaces as a DeliveryError with
// the provider's own text kept for diagnostics.
package delivery

import (
	"context"
	"fmt"
)

// Client sends one rendered message to one recipient.
type Client interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// DeliveryError carries the provider's HTTP status and error text.
type DeliveryError struct {
	StatusCode int
	Detail     string
}

func (e *DeliveryError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("delivery failed with HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("delivery failed with HTTP %d: %s", e.StatusCode, e.Detail)
}
