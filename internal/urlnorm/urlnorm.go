// Package urlnorm normalizes URLs for equality comparison. The canonical
// form is a matching predicate only; the literal URL a user stored is
// preserved everywhere else and re-transmitted unchanged.
package urlnorm

import (
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Canonicalize returns a normalized form of raw in which two URLs compare
// equal when they differ only in percent-encoding of reserved or unicode
// characters, in unicode composition, or in query parameter ordering.
// Unparseable input canonicalizes to itself.
func Canonicalize(raw string) string {
	u, err := url.Parse(norm.NFC.String(raw))
	if err != nil {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	// Drop the raw path so String() re-encodes the decoded path uniformly,
	// collapsing equivalent percent-encodings.
	u.RawPath = ""

	if u.RawQuery != "" {
		if q, err := url.ParseQuery(u.RawQuery); err == nil {
			// Encode sorts parameters by key and re-escapes values.
			u.RawQuery = q.Encode()
		}
	}

	return u.String()
}

// Equivalent reports whether two URLs are equal under canonicalization.
func Equivalent(a, b string) bool {
	if a == b {
		return true
	}

	return Canonicalize(a) == Canonicalize(b)
}
