package domain

import (
	"strings"

	"github.com/google/uuid"
)

const factoryIDPrefix = "factory"

// NewFactoryID returns a fresh server-assigned factory identifier.
func NewFactoryID() string {
	return factoryIDPrefix + RandomName(16)
}

// RandomName returns n lowercase alphanumeric characters derived from random
// UUIDs.
func RandomName(n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	return b.String()[:n]
}
