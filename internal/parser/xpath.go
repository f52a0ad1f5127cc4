package parser

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"

	"github.com/IshaanNene/MapPhone/internal/config"
)

func (s *Snapshot) xpath(rule config.ParseRule) ([]string, error) {
	nodes, err := htmlquery.QueryAll(s.root, rule.Selector)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", rule.Selector, err)
	}

	var values []string
	for _, node := range nodes {
		var val string

		switch rule.Attribute {
		case "", "text":
			val = strings.TrimSpace(htmlquery.InnerText(node))
		case "html", "innerHTML":
			val = htmlquery.OutputHTML(node, false)
		case "outerHTML":
			val = htmlquery.OutputHTML(node, true)
		default:
			val = htmlquery.SelectAttr(node, rule.Attribute)
		}

		if val != "" {
			values = append(values, val)
		}
	}

	return values, nil
}
