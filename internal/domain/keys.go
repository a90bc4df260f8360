package domain

import (
	"strings"
)

const (
	// MinTokenLength is the shortest token used for alias matching.
	MinTokenLength = 4

	// aliasHostKeyMaxLen: host keys shorter than this are matched by token.
	aliasHostKeyMaxLen = 10

	// maxTokenRun bounds substring expansion of a single label (DNS label limit).
	maxTokenRun = 63
)

// multiPartSuffixes lists second-level public suffixes for which the registrable
// domain spans three labels. Best effort, not a public suffix list.
var multiPartSuffixes = func() map[string]bool {
	m := make(map[string]bool)
	for _, s := range strings.Fields(`
		co.id ac.id or.id go.id web.id my.id biz.id sch.id net.id ponpes.id
		co.uk org.uk ac.uk gov.uk me.uk
		com.au net.au org.au edu.au
		com.sg com.my com.ph com.vn co.th
		co.jp ne.jp or.jp co.kr co.nz
		com.br com.mx com.ar co.za co.in
		com.cn com.hk com.tw com.tr
	`) {
		m[s] = true
	}
	return m
}()

// DomainKeys are the normalized matching keys of a tracked domain.
type DomainKeys struct {
	HostKey string
	RootKey string
	Tokens  []string
}

// BuildKeys derives matching keys from a raw domain string and its brand code.
// Malformed input yields an empty HostKey, which callers treat as unmatchable.
func BuildKeys(rawDomain, brandCode string) DomainKeys {
	host := NormalizeHost(rawDomain)
	if host == "" {
		return DomainKeys{}
	}

	seen := make(map[string]bool)
	var tokens []string
	for _, source := range []string{host, strings.ToLower(brandCode)} {
		for _, tok := range Tokenize(source) {
			if !seen[tok] {
				seen[tok] = true
				tokens = append(tokens, tok)
			}
		}
	}

	return DomainKeys{
		HostKey: host,
		RootKey: RootDomain(host),
		Tokens:  tokens,
	}
}

// NormalizeHost lower-cases a domain or URL and strips the scheme, credentials,
// port, path, query, fragment, surrounding whitespace and a leading "www.".
// Example: " HTTPS://www.Shop.Brand.com:443/promo?x=1 " -> "shop.brand.com"
func NormalizeHost(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	} else {
		s = strings.TrimPrefix(s, "//")
	}

	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, '@'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndexByte(s, ':'); i >= 0 && !strings.Contains(s, "]") {
		s = s[:i]
	}

	s = strings.Trim(s, ". ")
	for strings.HasPrefix(s, "www.") {
		s = s[len("www."):]
	}

	if strings.ContainsAny(s, " \t\r\n") {
		return ""
	}
	return s
}

// RootDomain approximates the registrable domain of a host: the last two labels,
// or the last three when the host ends in a known multi-part suffix.
// Example: "m.shop.brand.co.id" -> "brand.co.id"
func RootDomain(host string) string {
	host = strings.Trim(strings.ToLower(host), ".")
	if host == "" {
		return ""
	}

	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}

	lastTwo := strings.Join(labels[len(labels)-2:], ".")
	if multiPartSuffixes[lastTwo] {
		return strings.Join(labels[len(labels)-3:], ".")
	}
	return lastTwo
}

// Tokenize splits a value into lower-cased alphanumeric runs of at least
// MinTokenLength characters, in order of appearance, deduplicated.
// Example: "shop.brand-store.com" -> ["shop", "brand", "store"]
func Tokenize(value string) []string {
	runs := alnumRuns(strings.ToLower(value))
	seen := make(map[string]bool, len(runs))
	tokens := make([]string, 0, len(runs))
	for _, run := range runs {
		if len(run) < MinTokenLength || seen[run] {
			continue
		}
		seen[run] = true
		tokens = append(tokens, run)
	}
	return tokens
}

// hostTokens expands every alphanumeric run of a result host into all of its
// substrings of at least MinTokenLength characters, so that an alias token
// embedded in a longer label ("brand" in "brandstore") can be found by lookup.
func hostTokens(host string) map[string]bool {
	out := make(map[string]bool)
	for _, run := range alnumRuns(strings.ToLower(host)) {
		if len(run) > maxTokenRun {
			run = run[:maxTokenRun]
		}
		for start := 0; start+MinTokenLength <= len(run); start++ {
			for end := start + MinTokenLength; end <= len(run); end++ {
				out[run[start:end]] = true
			}
		}
	}
	return out
}

func alnumRuns(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
}

// IsAliasHostKey reports whether a host key is too short or dotless to be
// suffix-matched reliably and must be matched by token instead.
func IsAliasHostKey(hostKey string) bool {
	return !strings.Contains(hostKey, ".") || len(hostKey) < aliasHostKeyMaxLen
}
