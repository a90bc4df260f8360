package domain

import "time"

// ApiCredential is a SERP API key with its usage bookkeeping.
// Credentials are never deleted; deactivation is done with IsActive.
type ApiCredential struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Secret   string `json:"secret"`
	IsActive bool   `json:"is_active"`

	BaselineRemaining  *int       `json:"baseline_remaining,omitempty"`
	BaselineCapturedAt *time.Time `json:"baseline_captured_at,omitempty"`

	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	ExhaustedAt *time.Time `json:"exhausted_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`

	RequestCountLifetime int64 `json:"request_count_lifetime"`

	// RequestCountThisMonth is derived from run history on read and is not
	// authoritative in storage.
	RequestCountThisMonth int64 `json:"request_count_this_month,omitempty"`
}

// MaskSecret hides all but the first and last three characters of a secret.
// Example: "abcdef123456xyz" -> "abc***xyz"
func MaskSecret(secret string) string {
	if len(secret) <= 6 {
		return "***"
	}
	return secret[:3] + "***" + secret[len(secret)-3:]
}

// Masked returns a copy of the credential safe to expose.
func (c ApiCredential) Masked() ApiCredential {
	c.Secret = MaskSecret(c.Secret)
	return c
}
