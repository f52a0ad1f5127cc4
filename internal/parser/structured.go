package parser

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Business is the contact data a page publishes as schema.org markup.
type Business struct {
	Name      string
	URL       string
	Telephone string
}

func (b Business) empty() bool {
	return b.Name == "" && b.URL == "" && b.Telephone == ""
}

// StructuredBusiness returns the first business described by the page's
// JSON-LD blocks, falling back to microdata.
func (s *Snapshot) StructuredBusiness() (Business, bool) {
	if b, ok := s.jsonLDBusiness(); ok {
		return b, true
	}
	return s.microdataBusiness()
}

// jsonLDBusiness parses <script type="application/ld+json"> elements. Blocks
// may hold a single object, an array, or an @graph.
func (s *Snapshot) jsonLDBusiness() (Business, bool) {
	var found Business
	ok := false

	s.doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" {
			return true
		}

		var nodes []map[string]any
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err == nil {
			if graph, isGraph := obj["@graph"].([]any); isGraph {
				for _, g := range graph {
					if m, isMap := g.(map[string]any); isMap {
						nodes = append(nodes, m)
					}
				}
			} else {
				nodes = append(nodes, obj)
			}
		} else if err := json.Unmarshal([]byte(raw), &nodes); err != nil {
			return true
		}

		for _, n := range nodes {
			if !isBusinessNode(n) {
				continue
			}
			b := Business{
				Name:      stringField(n, "name"),
				URL:       stringField(n, "url"),
				Telephone: stringField(n, "telephone"),
			}
			if !b.empty() {
				found, ok = b, true
				return false
			}
		}
		return true
	})
	return found, ok
}

func isBusinessNode(n map[string]any) bool {
	if _, ok := n["telephone"]; ok {
		return true
	}
	var typeNames []string
	switch t := n["@type"].(type) {
	case string:
		typeNames = []string{t}
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok {
				typeNames = append(typeNames, s)
			}
		}
	}
	for _, t := range typeNames {
		if strings.HasSuffix(t, "Business") || t == "Organization" || t == "Restaurant" || t == "Store" {
			return true
		}
	}
	return false
}

func stringField(n map[string]any, key string) string {
	s, _ := n[key].(string)
	return strings.TrimSpace(s)
}

// microdataBusiness reads itemprop attributes inside the first itemscope that
// carries any of them.
func (s *Snapshot) microdataBusiness() (Business, bool) {
	var found Business
	ok := false

	s.doc.Find("[itemscope]").EachWithBreak(func(_ int, scope *goquery.Selection) bool {
		b := Business{
			Name:      itemprop(scope, "name"),
			URL:       itemprop(scope, "url"),
			Telephone: itemprop(scope, "telephone"),
		}
		if b.empty() {
			return true
		}
		found, ok = b, true
		return false
	})
	return found, ok
}

func itemprop(scope *goquery.Selection, name string) string {
	sel := scope.Find(`[itemprop="` + name + `"]`).First()
	if sel.Length() == 0 {
		return ""
	}
	for _, attr := range []string{"content", "href"} {
		if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return strings.TrimSpace(sel.Text())
}
