package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveFromIdentity(t *testing.T) {
	tests := []struct {
		name     string
		from     string
		fromName string
		want     string
	}{
		{"plain address", "veille@example.re", "", "veille@example.re"},
		{"plain address with display name", "veille@example.re", "Marchés Péi", "Marchés Péi <veille@example.re>"},
		{"bracketed form keeps its own name", "Veille <veille@example.re>", "Ignored", "Veille <veille@example.re>"},
		{"empty falls back", "", "Marchés Péi", FallbackFromIdentity},
		{"invalid falls back", "not-an-address", "", FallbackFromIdentity},
		{"whitespace falls back", "   ", "", FallbackFromIdentity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveFromIdentity(tt.from, tt.fromName))
		})
	}
}
