package news

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"sort"
	"strings"
	"unicode"
)

// trackingParams are query parameters that never change the page content.
var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"gclsrc":  {},
	"dclid":   {},
	"msclkid": {},
	"ref":     {},
	"ref_src": {},
	"mc_cid":  {},
	"mc_eid":  {},
}

// Canonicalize normalizes a URL so that the same article linked from
// different feeds compares equal: lowercase scheme and host, no "www."
// prefix, no fragment, no tracking parameters, sorted query and no trailing
// slash. Input that does not parse as an absolute URL is only trimmed and
// lowercased.
func Canonicalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.ToLower(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	switch {
	case u.Scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	u.RawQuery = cleanQuery(u.Query())

	p := u.EscapedPath()
	if p == "" || p == "/" {
		p = "/"
	} else {
		p = strings.TrimRight(path.Clean(p), "/")
		if p == "" {
			p = "/"
		}
	}

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(u.Host)
	b.WriteString(p)
	if u.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(u.RawQuery)
	}
	return b.String()
}

// Domain returns the lowercase host of a URL without "www." and port.
func Domain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func cleanQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		k := strings.ToLower(key)
		if strings.HasPrefix(k, "utm_") {
			continue
		}
		if _, tracked := trackingParams[k]; tracked {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		vals := append([]string(nil), values[key]...)
		sort.Strings(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// NormalizeTitle case-folds a title, drops punctuation and collapses
// whitespace.
func NormalizeTitle(s string) string {
	return NormalizeText(s)
}

// NormalizeText keeps only letters, digits and single spaces, lowercased.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	b := make([]rune, 0, len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b = append(b, r)
		} else {
			// punctuation separates words rather than joining them
			b = append(b, ' ')
		}
	}
	return strings.Join(strings.Fields(string(b)), " ")
}

// NormalizeCategory lowercases and trims a category tag.
func NormalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return DefaultCategory
	}
	return c
}

func hashParts(parts ...string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h.Sum(nil))
}
