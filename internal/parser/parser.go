// Package parser evaluates field extraction rules against a static copy of a
// rendered page.
package parser

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/MapPhone/internal/config"
)

// Snapshot is a parsed HTML document. The tree is parsed once and shared by
// the CSS and XPath evaluators.
type Snapshot struct {
	root *html.Node
	doc  *goquery.Document
}

// NewSnapshot parses page HTML.
func NewSnapshot(pageHTML string) (*Snapshot, error) {
	root, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Snapshot{
		root: root,
		doc:  goquery.NewDocumentFromNode(root),
	}, nil
}

// Values returns every non-empty value rule yields, with the rule's pattern
// applied.
func (s *Snapshot) Values(rule config.ParseRule) ([]string, error) {
	var (
		raw []string
		err error
	)
	switch rule.Type {
	case "", "css":
		raw = s.css(rule)
	case "xpath":
		raw, err = s.xpath(rule)
	default:
		return nil, fmt.Errorf("unsupported rule type %q", rule.Type)
	}
	if err != nil {
		return nil, err
	}

	values := raw[:0]
	for _, v := range raw {
		if v = ApplyPattern(rule, v); v != "" {
			values = append(values, v)
		}
	}
	return values, nil
}

// First returns the first value produced by the first rule that yields one,
// along with that rule's name.
func (s *Snapshot) First(rules []config.ParseRule) (value, ruleName string, err error) {
	var errs []error
	for _, rule := range rules {
		vals, err := s.Values(rule)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", rule.Name, err))
			continue
		}
		if len(vals) > 0 {
			return vals[0], rule.Name, nil
		}
	}
	if len(errs) > 0 {
		return "", "", errs[0]
	}
	return "", "", nil
}

var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

// ApplyPattern narrows val with rule.Pattern. With a capture group the first
// group is returned, otherwise the whole match. An empty pattern returns val
// trimmed; an invalid pattern or no match returns "".
func ApplyPattern(rule config.ParseRule, val string) string {
	val = strings.TrimSpace(val)
	if rule.Pattern == "" || val == "" {
		return val
	}

	patternMu.Lock()
	re, ok := patternCache[rule.Pattern]
	if !ok {
		var err error
		re, err = regexp.Compile(rule.Pattern)
		if err != nil {
			re = nil
		}
		patternCache[rule.Pattern] = re
	}
	patternMu.Unlock()

	if re == nil {
		return ""
	}
	m := re.FindStringSubmatch(val)
	switch {
	case m == nil:
		return ""
	case len(m) > 1:
		return strings.TrimSpace(m[1])
	default:
		return strings.TrimSpace(m[0])
	}
}
