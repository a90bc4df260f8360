package domain

import (
	"sort"
	"strings"
)

// MatchType is the tier at which a result host matched a tracked domain.
type MatchType string

const (
	MatchExact  MatchType = "exact"
	MatchSuffix MatchType = "suffix"
	MatchToken  MatchType = "token"
	MatchNone   MatchType = "none"
)

// Badge is the ownership label of a SERP result.
type Badge string

const (
	BadgeOwn     Badge = "OWN"
	BadgeUnknown Badge = "UNKNOWN"
)

// Match is the outcome of classifying a single result host.
type Match struct {
	Domain *TrackedDomain
	Type   MatchType
}

// Badge returns OWN when a tracked domain matched, UNKNOWN otherwise.
func (m Match) Badge() Badge {
	if m.Domain != nil {
		return BadgeOwn
	}
	return BadgeUnknown
}

// Lookup is an immutable index over a domain set, rebuilt on every sweep.
type Lookup struct {
	exact  map[string]*TrackedDomain
	byRoot map[string][]*TrackedDomain
	tokens map[string]map[string]bool // token -> set of alias host keys
	sorted []*TrackedDomain           // longest host key first
}

// Len returns the number of matchable domains in the lookup.
func (l *Lookup) Len() int {
	if l == nil {
		return 0
	}
	return len(l.sorted)
}

// BuildLookup indexes the given domains. brandCodes maps brand ID to brand code;
// domains whose brand is not in the map, or whose host key cannot be derived,
// are skipped. Derived keys are recomputed and the input is never mutated.
func BuildLookup(domains []TrackedDomain, brandCodes map[string]string) *Lookup {
	l := &Lookup{
		exact:  make(map[string]*TrackedDomain, len(domains)),
		byRoot: make(map[string][]*TrackedDomain),
		tokens: make(map[string]map[string]bool),
		sorted: make([]*TrackedDomain, 0, len(domains)),
	}

	for i := range domains {
		code, ok := brandCodes[domains[i].BrandID]
		if !ok {
			continue
		}
		d := enrich(domains[i], code)
		if d.HostKey == "" {
			continue
		}
		l.sorted = append(l.sorted, d)
	}

	sort.SliceStable(l.sorted, func(i, j int) bool {
		return moreSpecific(l.sorted[i], l.sorted[j])
	})

	for _, d := range l.sorted {
		if _, exists := l.exact[d.HostKey]; !exists {
			l.exact[d.HostKey] = d
		}
		if d.RootKey != "" {
			l.byRoot[d.RootKey] = append(l.byRoot[d.RootKey], d)
		}
		if d.IsAliasToken {
			for _, tok := range d.Tokens {
				set, ok := l.tokens[tok]
				if !ok {
					set = make(map[string]bool)
					l.tokens[tok] = set
				}
				set[d.HostKey] = true
			}
		}
	}

	return l
}

// enrich returns a copy of d with derived keys recomputed. Stored keys are used
// only when the raw domain no longer yields a host key.
func enrich(d TrackedDomain, brandCode string) *TrackedDomain {
	keys := BuildKeys(d.RawDomain, brandCode)

	out := d
	if keys.HostKey != "" {
		out.HostKey = keys.HostKey
		out.RootKey = keys.RootKey
	} else {
		out.HostKey = strings.ToLower(strings.TrimSpace(d.HostKey))
		if out.RootKey == "" {
			out.RootKey = RootDomain(out.HostKey)
		}
	}

	seen := make(map[string]bool)
	out.Tokens = nil
	for _, tok := range append(append([]string{}, d.Tokens...), keys.Tokens...) {
		tok = strings.ToLower(tok)
		if len(tok) < MinTokenLength || seen[tok] {
			continue
		}
		seen[tok] = true
		out.Tokens = append(out.Tokens, tok)
	}

	out.IsAliasToken = IsAliasHostKey(out.HostKey)
	return &out
}

// Classify matches a result host against the lookup. Tiers are tried in order
// and the first one with a candidate wins: exact host key, dot-suffix or shared
// root, then alias token. Within a tier the longest host key wins.
// Dot-suffix candidates are tried before shared-root ones instead of pooling
// both, so a longer sibling under the same root never outranks a true parent.
// The result host is expected to be normalized (see NormalizeHost).
func Classify(resultHost string, l *Lookup) Match {
	host := strings.ToLower(strings.TrimSpace(resultHost))
	if host == "" || l.Len() == 0 {
		return Match{Type: MatchNone}
	}

	if d, ok := l.exact[host]; ok {
		return Match{Domain: d, Type: MatchExact}
	}

	// A true dot-suffix beats a domain that only shares the registrable root,
	// otherwise "m.brand.com" could resolve to "shop.brand.com".
	var best *TrackedDomain
	for _, d := range l.sorted {
		if strings.HasSuffix(host, "."+d.HostKey) {
			best = pick(best, d)
		}
	}
	if best == nil {
		for _, d := range l.byRoot[RootDomain(host)] {
			best = pick(best, d)
		}
	}
	if best != nil {
		return Match{Domain: best, Type: MatchSuffix}
	}

	for tok := range hostTokens(host) {
		for hostKey := range l.tokens[tok] {
			if d, ok := l.exact[hostKey]; ok {
				best = pick(best, d)
			}
		}
	}
	if best != nil {
		return Match{Domain: best, Type: MatchToken}
	}

	return Match{Type: MatchNone}
}

func pick(current, candidate *TrackedDomain) *TrackedDomain {
	if current == nil || moreSpecific(candidate, current) {
		return candidate
	}
	return current
}

// moreSpecific orders by host key length descending, then host key and ID so
// that ties resolve the same way on every run.
func moreSpecific(a, b *TrackedDomain) bool {
	if len(a.HostKey) != len(b.HostKey) {
		return len(a.HostKey) > len(b.HostKey)
	}
	if a.HostKey != b.HostKey {
		return a.HostKey < b.HostKey
	}
	return a.ID < b.ID
}
