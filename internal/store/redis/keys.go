package redis

import "fmt"

const (
	// KeySettings holds the schedule settings document.
	KeySettings = "serpwatch:settings"
	// ChannelEvents is the pub/sub channel scheduler and admin events go to.
	ChannelEvents = "serpwatch:events"
	// KeyPrefixBrand is the prefix of catalog snapshot entries.
	KeyPrefixBrand = "serpwatch:brand:"
	// KeyAllBrands is the set of brand ids in the catalog snapshot.
	KeyAllBrands = "serpwatch:brands:all"
	// KeyPrefixLock is the prefix of job run locks.
	KeyPrefixLock = "serpwatch:lock:"
)

// BrandKey returns the snapshot key of a brand and its domains.
func BrandKey(id string) string {
	return KeyPrefixBrand + id
}

// LockKey returns the run lock key of a job.
func LockKey(job string) string {
	return KeyPrefixLock + job
}

// ExtractBrandID extracts the brand id from a snapshot key.
func ExtractBrandID(key string) (string, error) {
	if len(key) <= len(KeyPrefixBrand) || key[:len(KeyPrefixBrand)] != KeyPrefixBrand {
		return "", fmt.Errorf("invalid brand key: %s", key)
	}
	return key[len(KeyPrefixBrand):], nil
}
