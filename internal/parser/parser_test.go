package parser

import (
	"testing"

	"github.com/IshaanNene/MapPhone/internal/config"
)

const placeHTML = `<!DOCTYPE html>
<html>
<body>
    <div role="main">
        <h1 class="DUwDvf"> Joe's Pizza </h1>
        <a data-item-id="authority" href="https://joespizza.example/menu?utm_source=maps">joespizza.example</a>
        <button data-item-id="phone:tel:+12125551234" aria-label="Phone: (212) 555-1234"></button>
        <a href="tel:+12125551234">Call</a>
    </div>
</body>
</html>`

func mustSnapshot(t *testing.T, html string) *Snapshot {
	t.Helper()
	s, err := NewSnapshot(html)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return s
}

func TestDefaultFieldRules(t *testing.T) {
	s := mustSnapshot(t, placeHTML)
	rules := config.DefaultFieldRules()

	tests := []struct {
		field string
		rules []config.ParseRule
		want  string
	}{
		{"name", rules.Name, "Joe's Pizza"},
		{"website", rules.Website, "https://joespizza.example/menu?utm_source=maps"},
		{"phone", rules.Phone, "Phone: (212) 555-1234"},
	}
	for _, tt := range tests {
		got, _, err := s.First(tt.rules)
		if err != nil {
			t.Fatalf("%s: %v", tt.field, err)
		}
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.field, got, tt.want)
		}
	}
}

func TestXPathFallback(t *testing.T) {
	s := mustSnapshot(t, `<html><body><h1>Only Tel</h1><a href="tel:+442079460958">Call</a></body></html>`)

	got, rule, err := s.First(config.DefaultFieldRules().Phone)
	if err != nil {
		t.Fatal(err)
	}
	if got != "tel:+442079460958" || rule != "tel_link" {
		t.Errorf("got %q from %q", got, rule)
	}
}

func TestFirstNoMatch(t *testing.T) {
	s := mustSnapshot(t, `<html><body><h1>Bare</h1></body></html>`)
	got, rule, err := s.First(config.DefaultFieldRules().Website)
	if err != nil || got != "" || rule != "" {
		t.Errorf("expected a clean miss, got %q %q %v", got, rule, err)
	}
}

func TestInvalidXPath(t *testing.T) {
	s := mustSnapshot(t, placeHTML)
	_, err := s.Values(config.ParseRule{Selector: "//a[", Type: "xpath"})
	if err == nil {
		t.Fatal("expected an error for an invalid xpath")
	}

	// A broken rule does not hide a later working one.
	got, _, err := s.First([]config.ParseRule{
		{Name: "broken", Selector: "//a[", Type: "xpath"},
		{Name: "ok", Selector: "h1", Type: "css"},
	})
	if err != nil || got != "Joe's Pizza" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestApplyPattern(t *testing.T) {
	tests := []struct {
		pattern, in, want string
	}{
		{"", "  plain  ", "plain"},
		{`Phone:\s*(.+)`, "Phone: 020 7946 0958", "020 7946 0958"},
		{`\d+`, "Suite 42", "42"},
		{`Phone:(.+)`, "no match here", ""},
		{`(`, "anything", ""},
	}
	for _, tt := range tests {
		got := ApplyPattern(config.ParseRule{Pattern: tt.pattern}, tt.in)
		if got != tt.want {
			t.Errorf("ApplyPattern(%q, %q) = %q, want %q", tt.pattern, tt.in, got, tt.want)
		}
	}
}

func TestUnsupportedRuleType(t *testing.T) {
	s := mustSnapshot(t, placeHTML)
	if _, err := s.Values(config.ParseRule{Selector: "x", Type: "regex"}); err == nil {
		t.Error("expected an error for an unsupported type")
	}
}

func TestStructuredBusinessJSONLD(t *testing.T) {
	s := mustSnapshot(t, `<html><head>
		<script type="application/ld+json">{"@type":"WebSite","name":"Maps"}</script>
		<script type="application/ld+json">{"@graph":[
			{"@type":"BreadcrumbList"},
			{"@type":"Dentist","name":"Bright Smiles","url":"https://brightsmiles.example/","telephone":"+44 20 7946 0000"}
		]}</script></head><body></body></html>`)

	b, ok := s.StructuredBusiness()
	if !ok {
		t.Fatal("expected a business")
	}
	want := Business{Name: "Bright Smiles", URL: "https://brightsmiles.example/", Telephone: "+44 20 7946 0000"}
	if b != want {
		t.Errorf("got %+v, want %+v", b, want)
	}
}

func TestStructuredBusinessMicrodata(t *testing.T) {
	s := mustSnapshot(t, `<div itemscope itemtype="https://schema.org/LocalBusiness">
		<span itemprop="name">Corner Deli</span>
		<a itemprop="url" href="https://cornerdeli.example/">site</a>
		<meta itemprop="telephone" content="555-0100-200">
	</div>`)

	b, ok := s.StructuredBusiness()
	if !ok {
		t.Fatal("expected a business")
	}
	if b.Name != "Corner Deli" || b.URL != "https://cornerdeli.example/" || b.Telephone != "555-0100-200" {
		t.Errorf("got %+v", b)
	}
}

func TestStructuredBusinessAbsent(t *testing.T) {
	s := mustSnapshot(t, `<html><script type="application/ld+json">not json</script></html>`)
	if _, ok := s.StructuredBusiness(); ok {
		t.Error("expected no business")
	}
}
