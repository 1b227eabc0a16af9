package auth

import "time"

// Config drives token issuing and validation.
type Config struct {
	Secret   string
	TokenTTL time.Duration
}

// Enabled reports whether bearer tokens are enforced.
func (c Config) Enabled() bool {
	return c.Secret != ""
}

// Claims are extracted from a device token.
type Claims struct {
	DeviceID  string
	TokenID   string
	ExpiresAt time.Time
}
