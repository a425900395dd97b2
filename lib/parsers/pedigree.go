package parsers

import (
	"strings"

	"keiba-scraper/lib/htmlutil"
	"keiba-scraper/lib/race"

	"github.com/PuerkitoBio/goquery"
)

var (
	pedigreeTable   = []string{"table.Shutuba_Past5_Table", "table.Shutuba_Table", "table.BloodTable"}
	pedigreeNumber  = htmlutil.Strategies{htmlutil.TextOf("td[class^=Waku] + td"), htmlutil.TextOf("td.Umaban"), htmlutil.TextOf("td[class^=Umaban]"), htmlutil.Cell(1)}
	pedigreeSire    = textOf(".Horse_Info .Horse01", "td.Sire", ".Sire")
	pedigreeDam     = textOf(".Horse_Info .Horse03", "td.Dam", ".Dam")
	pedigreeDamSire = textOf(".Horse_Info .Horse04", "td.DamSire", ".BMS")
)

// Pedigree parses sire, dam and dam sire per horse from the past
// performance page, whose horse cell lists them around the horse name.
func Pedigree(doc *goquery.Document, v Variant) race.ByHorse[race.Pedigree] {
	out := race.ByHorse[race.Pedigree]{}
	table := rootOf(doc, pedigreeTable)
	if table == nil {
		return out
	}

	eachRow(race.PagePedigree, table.Find("tr.HorseList"), func(row *goquery.Selection) {
		number, ok := numberOf(row, pedigreeNumber)
		if !ok {
			return
		}
		p := race.Pedigree{
			Sire:    pedigreeSire.Extract(row),
			Dam:     pedigreeDam.Extract(row),
			DamSire: strings.Trim(pedigreeDamSire.Extract(row), "()（） "),
		}
		if p.Empty() {
			return
		}
		out[number] = p
	})
	return out
}
