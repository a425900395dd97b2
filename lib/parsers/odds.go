package parsers

import (
	"regexp"

	"keiba-scraper/lib/htmlutil"
	"keiba-scraper/lib/race"

	"github.com/PuerkitoBio/goquery"
)

var (
	winOddsTable   = []string{"#odds_tan_block table", "div.Tan table", "table.RaceOdds_HorseList_Table"}
	placeOddsTable = []string{"#odds_fuku_block table", "div.Fuku table"}
	oddsNumber     = htmlutil.Strategies{htmlutil.TextOf("td.Umaban"), htmlutil.TextOf("td[class^=Umaban]"), htmlutil.Cell(2), htmlutil.Cell(1)}
	oddsValue      = textOf("td.Odds span", "td.Odds")
	oddsPopularity = textOf("td.Popular", "td.Ninki")
	placeRange     = regexp.MustCompile(`(\d+\.\d)\s*[-－~～]\s*(\d+\.\d)`)
	winValue       = regexp.MustCompile(`^\d+\.\d$`)
)

// Odds parses the win and place odds tables. placeholders such as "---.-"
// before odds are published are left empty.
func Odds(doc *goquery.Document, v Variant) race.ByHorse[race.Odds] {
	out := race.ByHorse[race.Odds]{}

	if table := rootOf(doc, winOddsTable); table != nil {
		eachRow(race.PageOdds, table.Find("tr"), func(row *goquery.Selection) {
			number, ok := numberOf(row, oddsNumber)
			if !ok {
				return
			}
			o := out[number]
			if value := oddsValue.Extract(row); winValue.MatchString(value) {
				o.Win = value
			}
			if pop, ok := HorseNumber(oddsPopularity.Extract(row)); ok {
				o.Popularity = pop
			}
			out[number] = o
		})
	}

	if table := rootOf(doc, placeOddsTable); table != nil {
		eachRow(race.PageOdds, table.Find("tr"), func(row *goquery.Selection) {
			number, ok := numberOf(row, oddsNumber)
			if !ok {
				return
			}
			m := placeRange.FindStringSubmatch(oddsValue.Extract(row))
			if m == nil {
				return
			}
			o := out[number]
			o.PlaceLow = m[1]
			o.PlaceHigh = m[2]
			out[number] = o
		})
	}
	return out
}
