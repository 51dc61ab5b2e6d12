// Package oracle produces the interpretation texts: dream readings, oracle
// answers, and daily horoscopes. Generation never touches the balance; paid
// gating happens entirely in the unlock layer.
package oracle

import (
	"context"

	"github.com/arcanalabs/arcana-server/internal/domain"
)

// Kind selects which reading the generator produces.
type Kind string

const (
	KindDream     Kind = "dream"
	KindOracle    Kind = "oracle"
	KindHoroscope Kind = "horoscope"
)

// Request carries the inputs for a reading.
type Request struct {
	Kind   Kind              `json:"kind"`
	Text   string            `json:"text,omitempty"`
	Sign   domain.ZodiacSign `json:"sign,omitempty"`
	Locale string            `json:"locale,omitempty"`
}

// Generator produces reading text for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}
