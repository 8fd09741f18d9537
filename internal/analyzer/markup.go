package analyzer

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/BenjaminSRussell/seo_audit/internal/parser"
	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

// XDefault is the hreflang value for the fallback alternate
const XDefault = "x-default"

// requiredProperties lists the schema.org properties a type must carry
var requiredProperties = map[string][]string{
	"Organization":  {"name"},
	"Person":        {"name"},
	"Article":       {"headline", "author"},
	"NewsArticle":   {"headline", "author"},
	"BlogPosting":   {"headline", "author"},
	"Product":       {"name", "description"},
	"LocalBusiness": {"name", "address"},
}

// ValidHreflang reports whether code is x-default or a language[-region] tag
func ValidHreflang(code string) bool {
	if strings.EqualFold(code, XDefault) {
		return true
	}
	if code == "" || strings.Contains(code, "_") {
		return false
	}

	tag, err := language.Parse(code)
	if err != nil {
		return false
	}
	_, conf := tag.Base()
	return conf != language.No
}

// HreflangRule validates the alternate declarations of a page
func HreflangRule(p *Page) []types.Issue {
	declared := p.Doc.Hreflang
	if len(declared) == 0 {
		return nil
	}

	var issues []types.Issue
	seen := make(map[string]bool)
	hasDefault := false

	for _, h := range declared {
		key := strings.ToLower(h.Lang)
		if !ValidHreflang(h.Lang) {
			issues = append(issues, issue(CodeHreflangInvalidCode, types.SeverityWarning,
				"Invalid hreflang code %q", h.Lang))
		}
		if h.URL == "" {
			issues = append(issues, issue(CodeHreflangInvalidURL, types.SeverityWarning,
				"hreflang %q has an unusable href %q", h.Lang, h.Href))
		}
		if seen[key] {
			issues = append(issues, issue(CodeHreflangDuplicate, types.SeverityWarning,
				"hreflang %q is declared more than once", h.Lang))
		}
		seen[key] = true
		if key == XDefault {
			hasDefault = true
		}
	}

	if !hasDefault {
		issues = append(issues, issue(CodeHreflangNoXDefault, types.SeverityInfo,
			"hreflang set has no x-default"))
	}
	return issues
}

// StructuredDataRule checks that JSON-LD blocks parse and carry the
// required properties for well-known types
func StructuredDataRule(p *Page) []types.Issue {
	var issues []types.Issue

	for i, block := range p.Doc.JSONLD {
		items, err := parser.ParseJSONLD(block)
		if err != nil {
			issues = append(issues, issue(CodeJSONLDInvalid, types.SeverityWarning,
				"JSON-LD block %d does not parse: %v", i+1, err))
			continue
		}

		for _, item := range items {
			for _, typ := range item.Types {
				for _, prop := range requiredProperties[typ] {
					if !item.Has(prop) {
						issues = append(issues, issue(CodeJSONLDMissingProp, types.SeverityWarning,
							"%s structured data is missing %q", typ, prop))
					}
				}
			}
		}
	}
	return issues
}
