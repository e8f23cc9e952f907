package testutil

import (
	"time"

	"github.com/skosovsky/gemini"
)

// NewTestRegistry returns a Registry with long timeout and panic recovery enabled,
// suitable for tests.
func NewTestRegistry(tools ...gemini.Tool) *gemini.Registry {
	reg := gemini.NewRegistry(
		gemini.WithDefaultTimeout(30*time.Second),
		gemini.WithRecoverPanics(true),
	)
	reg.Register(tools...)
	return reg
}
