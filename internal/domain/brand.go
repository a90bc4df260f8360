package domain

import "time"

// Brand is a tracked brand whose SERP ranking is checked on every sweep.
type Brand struct {
	ID   string `json:"id" db:"id"`
	Code string `json:"code" db:"code"`
	Name string `json:"name" db:"name"`

	// Query is the search text sent upstream. Empty means Name is used.
	Query string `json:"query" db:"query"`

	Disabled  bool      `json:"disabled" db:"disabled"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SearchQuery returns the text sent to the SERP backend for this brand.
func (b *Brand) SearchQuery() string {
	if b.Query != "" {
		return b.Query
	}
	return b.Name
}

// TrackedDomain is a domain (or short alias token) that counts as owned by a brand.
//
// HostKey, RootKey and Tokens are derived values. They may be stale in storage and
// are recomputed from RawDomain and the brand code whenever a lookup is built.
type TrackedDomain struct {
	ID        string `json:"id" db:"id"`
	BrandID   string `json:"brand_id" db:"brand_id"`
	RawDomain string `json:"raw_domain" db:"raw_domain"`

	HostKey      string   `json:"host_key" db:"host_key"`
	RootKey      string   `json:"root_key" db:"root_key"`
	Tokens       []string `json:"tokens" db:"-"`
	IsAliasToken bool     `json:"is_alias_token" db:"is_alias_token"`

	Disabled  bool      `json:"disabled" db:"disabled"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
