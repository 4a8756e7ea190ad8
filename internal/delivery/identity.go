package delivery

import (
	"fmt"
	"net/mail"
	"strings"
)

// FallbackFromIdentity is used whenever the operator-configured sender fails
// validation. A bad from-address must never block every outbound digest.
const FallbackFromIdentity = "Marchés Péi <notifications@marchespei.re>"

// ResolveFromIdentity validates the configured sender and returns the identity
// to put on outbound messages. Accepts both a plain address and the
// `Name <addr>` form. Invalid or empty input degrades to the fallback.
func ResolveFromIdentity(from, fromName string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return FallbackFromIdentity
	}

	addr, err := mail.ParseAddress(from)
	if err != nil {
		return FallbackFromIdentity
	}

	name := strings.TrimSpace(fromName)
	if addr.Name != "" {
		name = addr.Name
	}
	if name == "" {
		return addr.Address
	}
	return fmt.Sprintf("%s <%s>", name, addr.Address)
}
