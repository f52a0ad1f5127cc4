package pipeline

import (
	"html"
	"regexp"
	"strings"

	"github.com/IshaanNene/MapPhone/internal/clean"
	"github.com/IshaanNene/MapPhone/internal/types"
)

var tagRe = regexp.MustCompile(`<[^>]*>`)

// TidyTextMiddleware strips tags, decodes entities and collapses whitespace
// in every field.
type TidyTextMiddleware struct{}

func (m *TidyTextMiddleware) Name() string { return "tidy_text" }

func (m *TidyTextMiddleware) Process(rec *types.BusinessRecord) (*types.BusinessRecord, error) {
	rec.Name = tidy(rec.Name)
	rec.Website = tidy(rec.Website)
	rec.Phone = tidy(rec.Phone)
	return rec, nil
}

func tidy(s string) string {
	if s == "" {
		return s
	}
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeMiddleware canonicalizes the website and phone fields. Values that
// do not survive cleaning become empty.
type NormalizeMiddleware struct{}

func (m *NormalizeMiddleware) Name() string { return "normalize" }

func (m *NormalizeMiddleware) Process(rec *types.BusinessRecord) (*types.BusinessRecord, error) {
	rec.Website = clean.URL(rec.Website)
	rec.Phone = clean.Phone(rec.Phone)
	return rec, nil
}

// RequireAnyFieldMiddleware drops records with no extracted field.
type RequireAnyFieldMiddleware struct{}

func (m *RequireAnyFieldMiddleware) Name() string { return "require_any_field" }

func (m *RequireAnyFieldMiddleware) Process(rec *types.BusinessRecord) (*types.BusinessRecord, error) {
	if rec.IsEmpty() {
		return nil, nil
	}
	return rec, nil
}
