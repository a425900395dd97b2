// Package parsers turns the markup of one race sub-page into a partial
// record. there is exactly one parser per page type; layout differences
// between central and regional racing are expressed as per variant
// selector lists, not as separate parsers.
//
// parsers never fail: a missing field is left empty, a row that panics is
// logged and skipped, a page without its root container yields an empty
// partial record.
package parsers

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"keiba-scraper/lib/htmlutil"
	"keiba-scraper/lib/race"
	"keiba-scraper/lib/textutil"
	"keiba-scraper/lib/venue"

	"github.com/PuerkitoBio/goquery"
)

// Variant selects the page layout.
type Variant = venue.Category

const (
	Central  = venue.Central
	Regional = venue.Regional
)

// byVariant picks the value for v, falling back to the central layout.
func byVariant[T any](v Variant, central, regional T) T {
	if v == Regional {
		return regional
	}
	return central
}

var horseNumberRegex = regexp.MustCompile(`^\d{1,2}$`)

// HorseNumber validates a horse number cell. leading zeros are dropped so
// "01" and "1" join.
func HorseNumber(raw string) (string, bool) {
	s := strings.TrimSpace(textutil.Fold(raw))
	if !horseNumberRegex.MatchString(s) {
		return "", false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return "", false
	}
	return strconv.Itoa(n), true
}

// numberOf runs the number strategies over a row, only a value that is a
// valid horse number is accepted.
func numberOf(row *goquery.Selection, strategies htmlutil.Strategies) (string, bool) {
	for _, strategy := range strategies {
		raw, ok := strategy(row)
		if !ok {
			continue
		}
		if n, ok := HorseNumber(raw); ok {
			return n, true
		}
	}
	return "", false
}

// eachRow calls fn for every row, a panic in one row is logged and the
// remaining rows are still visited.
func eachRow(page race.PageType, rows *goquery.Selection, fn func(row *goquery.Selection)) {
	rows.Each(func(i int, row *goquery.Selection) {
		defer func() {
			r := recover()
			if r != nil {
				slog.Warn("skipping row that failed to parse", "page", page, "row", i, "err", fmt.Sprint(r))
			}
		}()
		fn(row)
	})
}

// rootOf returns the first container matching the selectors, nil when the
// page has none of them.
func rootOf(doc *goquery.Document, selectors []string) *goquery.Selection {
	if doc == nil {
		return nil
	}
	return htmlutil.FirstMatch(doc.Selection, selectors...)
}

func textOf(selectors ...string) htmlutil.Strategies {
	out := make(htmlutil.Strategies, len(selectors))
	for i, s := range selectors {
		out[i] = htmlutil.TextOf(s)
	}
	return out
}

var horseIDRegex = regexp.MustCompile(`/horse/(\w+)`)

func horseIDFrom(href string) string {
	m := horseIDRegex.FindStringSubmatch(href)
	if m == nil {
		return ""
	}
	return m[1]
}
