package htmlutil

import (
	"regexp"
	"strings"

	"keiba-scraper/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

// Strategy extracts one field from a scope. layouts differ between race
// grades and categories, so every field is described by an ordered list of
// strategies and the first one that yields a non-empty value wins.
type Strategy func(scope *goquery.Selection) (string, bool)

// Strategies is an ordered fallback chain.
type Strategies []Strategy

// Extract runs the chain and returns "" when nothing matched.
func (s Strategies) Extract(scope *goquery.Selection) string {
	v, _ := s.Find(scope)
	return v
}

// Find runs the chain, reporting whether any strategy matched.
func (s Strategies) Find(scope *goquery.Selection) (string, bool) {
	if scope == nil {
		return "", false
	}
	for _, strategy := range s {
		v, ok := strategy(scope)
		if ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// TextOf takes the cleaned text of the first element matching selector.
func TextOf(selector string) Strategy {
	return func(scope *goquery.Selection) (string, bool) {
		found := scope.Find(selector).First()
		if found.Length() == 0 {
			return "", false
		}
		v := Text(found)
		return v, v != ""
	}
}

// OwnText takes the cleaned text of the scope itself.
func OwnText() Strategy {
	return func(scope *goquery.Selection) (string, bool) {
		v := Text(scope)
		return v, v != ""
	}
}

// AttrOf takes an attribute of the first element matching selector, an
// empty selector means the scope itself.
func AttrOf(selector, attr string) Strategy {
	return func(scope *goquery.Selection) (string, bool) {
		target := scope
		if selector != "" {
			target = scope.Find(selector).First()
		}
		v, ok := target.Attr(attr)
		if !ok {
			return "", false
		}
		v = textutil.Clean(v)
		return v, v != ""
	}
}

// Cell takes the text of the nth (0-based) td of a row.
func Cell(index int) Strategy {
	return func(scope *goquery.Selection) (string, bool) {
		cells := scope.ChildrenFiltered("td")
		if index >= cells.Length() {
			return "", false
		}
		v := Text(cells.Eq(index))
		return v, v != ""
	}
}

// Matching applies a regular expression to the result of another strategy
// and returns its first capture group (or the whole match).
func Matching(inner Strategy, pattern *regexp.Regexp) Strategy {
	return func(scope *goquery.Selection) (string, bool) {
		v, ok := inner(scope)
		if !ok {
			return "", false
		}
		m := pattern.FindStringSubmatch(v)
		if m == nil {
			return "", false
		}
		if len(m) > 1 {
			return strings.TrimSpace(m[1]), m[1] != ""
		}
		return m[0], true
	}
}

// Labeled finds a th/dt whose text contains label and returns the text of
// the cell that follows it, for key/value tables.
func Labeled(label string) Strategy {
	return func(scope *goquery.Selection) (string, bool) {
		var out string
		scope.Find("th, dt").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if !strings.Contains(Text(s), label) {
				return true
			}
			next := s.Next()
			if next.Length() == 0 {
				return true
			}
			out = Text(next)
			return out == ""
		})
		return out, out != ""
	}
}

// FirstMatch returns the first selection matching any of the selectors.
func FirstMatch(scope *goquery.Selection, selectors ...string) *goquery.Selection {
	for _, sel := range selectors {
		found := scope.Find(sel)
		if found.Length() > 0 {
			return found
		}
	}
	return nil
}
