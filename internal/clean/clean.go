// Package clean normalizes raw text pulled off a detail page.
package clean

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	phoneStripRe = regexp.MustCompile(`[^\d+]`)
	phoneValidRe = regexp.MustCompile(`^\+?\d{7,}$`)
)

// URL returns scheme://host/path for raw, dropping query string and fragment.
// Empty or unparseable input, or input without a scheme and host, yields "".
func URL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + u.EscapedPath()
}

// Phone keeps digits and '+' and accepts the result only if it is an optional
// leading '+' followed by at least 7 digits. Anything else yields "".
func Phone(raw string) string {
	if raw == "" {
		return ""
	}
	p := phoneStripRe.ReplaceAllString(raw, "")
	if !phoneValidRe.MatchString(p) {
		return ""
	}
	return p
}
