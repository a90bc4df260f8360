package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/serpwatch/internal/domain"
)

// idNamespace makes catalog ids stable across reloads and processes.
var idNamespace = uuid.MustParse("6f1c2d7e-4b1a-4f59-9a53-2f0e6f8b9c11")

// BrandID is the stable id of a brand code.
func BrandID(code string) string {
	return uuid.NewSHA1(idNamespace, []byte("brand:"+strings.ToUpper(code))).String()
}

// DomainID is the stable id of a tracked domain of a brand.
func DomainID(brandCode, hostKey string) string {
	return uuid.NewSHA1(idNamespace, []byte("domain:"+strings.ToUpper(brandCode)+"|"+hostKey)).String()
}

// Mapper converts a catalog file into brands and tracked domains.
type Mapper struct {
	now func() time.Time
}

func NewMapper() *Mapper {
	return &Mapper{now: time.Now}
}

// Map skips disabled brands, brands without a code, duplicate codes and
// domains that normalize to nothing. It fails only when no brand remains.
func (m *Mapper) Map(f File) ([]domain.Brand, []domain.TrackedDomain, error) {
	now := m.now()
	brands := make([]domain.Brand, 0, len(f.Brands))
	var domains []domain.TrackedDomain
	seenCodes := make(map[string]bool, len(f.Brands))

	for _, entry := range f.Brands {
		code := strings.ToUpper(strings.TrimSpace(entry.Code))
		if code == "" || entry.Disabled || seenCodes[code] {
			continue
		}
		seenCodes[code] = true

		name := strings.TrimSpace(entry.Name)
		if name == "" {
			name = code
		}
		b := domain.Brand{
			ID:        BrandID(code),
			Code:      code,
			Name:      name,
			Query:     strings.TrimSpace(entry.Query),
			CreatedAt: now,
			UpdatedAt: now,
		}
		brands = append(brands, b)

		seenHosts := make(map[string]bool, len(entry.Domains))
		for _, raw := range entry.Domains {
			keys := domain.BuildKeys(raw, code)
			if keys.HostKey == "" || seenHosts[keys.HostKey] {
				continue
			}
			seenHosts[keys.HostKey] = true

			domains = append(domains, domain.TrackedDomain{
				ID:           DomainID(code, keys.HostKey),
				BrandID:      b.ID,
				RawDomain:    strings.TrimSpace(raw),
				HostKey:      keys.HostKey,
				RootKey:      keys.RootKey,
				Tokens:       keys.Tokens,
				IsAliasToken: domain.IsAliasHostKey(keys.HostKey),
				CreatedAt:    now,
				UpdatedAt:    now,
			})
		}
	}

	if len(brands) == 0 {
		return nil, nil, fmt.Errorf("no valid brands found in catalog")
	}
	return brands, domains, nil
}
