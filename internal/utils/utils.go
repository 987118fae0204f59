package utils

import (
	"net"
	"net/url"
	"path"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
)

// CanonicalizeOptions controls optional canonicalization policies.
type CanonicalizeOptions struct {
	StripTrailingSlash bool   // treat /a and /a/ the same (root "/" is kept)
	DefaultScheme      string // scheme assumed for schemeless input; empty requires one
	DropQuery          bool   // remove the whole query string
	DropWWW            bool   // treat www.example.com and example.com the same
	LowercasePath      bool   // dealer platforms serve detail pages case-insensitively
}

// ListingKeyOptions are the options used to key dealer detail page URLs.
var ListingKeyOptions = CanonicalizeOptions{
	StripTrailingSlash: true,
	DefaultScheme:      "https",
	DropQuery:          true,
	DropWWW:            true,
	LowercasePath:      true,
}

// ImageKeyOptions are the options used to dedupe image URLs. CDN resize
// parameters live in the query, so it is dropped.
var ImageKeyOptions = CanonicalizeOptions{
	DefaultScheme: "https",
	DropQuery:     true,
}

// Canonicalize returns a deterministic canonical URL string or an error.
// It uses net/url plus path.Clean and sorts query params for determinism.
func Canonicalize(raw string, opts CanonicalizeOptions) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &url.Error{Op: "parse", URL: raw, Err: ErrEmptyURL}
	}

	if opts.DefaultScheme != "" && !strings.Contains(raw, "://") {
		raw = opts.DefaultScheme + "://" + strings.TrimPrefix(raw, "//")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", &url.Error{Op: "parse", URL: raw, Err: ErrMissingHost}
	}

	u.Scheme = strings.ToLower(u.Scheme)

	// Lowercase host and convert IDN -> punycode
	host := strings.ToLower(u.Hostname())
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	}
	if opts.DropWWW {
		host = strings.TrimPrefix(host, "www.")
	}

	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = host
	} else if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else {
		u.Host = host
	}

	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""

	cleanPath := path.Clean("/" + u.Path)
	if opts.StripTrailingSlash && len(cleanPath) > 1 {
		cleanPath = strings.TrimRight(cleanPath, "/")
	}
	if opts.LowercasePath {
		cleanPath = strings.ToLower(cleanPath)
	}
	u.Path = cleanPath
	u.RawPath = ""

	if opts.DropQuery {
		u.RawQuery = ""
		u.ForceQuery = false
		return u.String(), nil
	}

	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := url.Values{}
	for _, k := range keys {
		values := q[k]
		sort.Strings(values)
		for _, v := range values {
			ordered.Add(k, v)
		}
	}
	u.RawQuery = ordered.Encode()

	return u.String(), nil
}

// ListingKey normalizes a listing URL into a comparison key: lower-cased,
// query, fragment and trailing slash stripped, scheme removed. Unparseable
// input falls back to a lower-cased, query-stripped string.
func ListingKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	canon, err := Canonicalize(raw, ListingKeyOptions)
	if err != nil {
		s := strings.ToLower(raw)
		if i := strings.IndexAny(s, "?#"); i >= 0 {
			s = s[:i]
		}
		return strings.TrimRight(s, "/")
	}
	if i := strings.Index(canon, "://"); i >= 0 {
		canon = canon[i+3:]
	}
	return strings.TrimRight(canon, "/")
}

// ImageKey normalizes an image URL for de-duplication.
func ImageKey(raw string) string {
	canon, err := Canonicalize(raw, ImageKeyOptions)
	if err != nil {
		s := strings.TrimSpace(raw)
		if i := strings.IndexAny(s, "?#"); i >= 0 {
			s = s[:i]
		}
		return s
	}
	return canon
}

// UnionImages appends the images of extra not already in primary, compared
// by ImageKey.
func UnionImages(primary, extra []string) []string {
	seen := make(map[string]bool, len(primary)+len(extra))
	out := make([]string, 0, len(primary)+len(extra))
	for _, list := range [][]string{primary, extra} {
		for _, u := range list {
			k := ImageKey(u)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, u)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SameListing reports whether two listing keys refer to the same detail
// page: equal, or one extends the other at a path boundary.
func SameListing(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}

// Token folds s to lower-case letters and digits only, so "F-150" and
// "f150" compare equal.
func Token(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FoldEqual compares two strings trimmed and case-insensitively.
func FoldEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Errors
var (
	ErrEmptyURL    = &url.Error{Op: "canonicalize", URL: "", Err: &errStr{"empty url"}}
	ErrMissingHost = &url.Error{Op: "canonicalize", URL: "", Err: &errStr{"missing host"}}
)

type errStr struct{ s string }

func (e *errStr) Error() string { return e.s }
