package common

import (
	"strings"

	"github.com/google/uuid"
)

func RandomID() string {
	u, _ := uuid.NewRandom()
	return u.String()
}

// ParseBool accepts the truthy spellings used in env vars and Stripe metadata.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
