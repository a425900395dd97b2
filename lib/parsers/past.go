package parsers

import (
	"regexp"
	"strings"

	"keiba-scraper/lib/race"
	"keiba-scraper/lib/venue"

	"github.com/PuerkitoBio/goquery"
)

var (
	pastTable  = []string{"table.Shutuba_Past5_Table", "table.Shutuba_Table"}
	pastCells  = "td.Past"
	pastNumber = pedigreeNumber

	pastHeader   = textOf(".Data01 span:first-child", ".Data01")
	pastFinish   = textOf(".Data01 .Num", ".Data01 span.Num")
	pastRaceName = textOf(".Data02 a", ".Data02")
	pastCourse   = textOf(".Data05")
	pastRunners  = textOf(".Data03")
	pastPassing  = textOf(".Data06")
	pastWinner   = textOf(".Data07")

	pastDateRegex    = regexp.MustCompile(`(\d{4})[./](\d{1,2})[./](\d{1,2})`)
	pastDistRegex    = regexp.MustCompile(`(芝|ダ|障)\s*(\d{3,4})`)
	pastTimeRegex    = regexp.MustCompile(`\d:\d{2}\.\d`)
	pastGoingRegex   = regexp.MustCompile(`(良|稍重|稍|重|不良|不)\s*$`)
	pastRunnersRegex = regexp.MustCompile(`(\d+)頭`)
	pastJockeyRegex  = regexp.MustCompile(`\d+人\s+(\S+)`)
	pastPassRegex    = regexp.MustCompile(`^\s*(\d+(?:-\d+)*)`)
	pastLast3FRegex  = regexp.MustCompile(`\((\d{2}\.\d)\)`)
	pastWeightRegex  = regexp.MustCompile(`(\d{3}\([+\-]?\d+\))`)
)

func parsePastCell(cell *goquery.Selection) (race.PastResult, bool) {
	header := pastHeader.Extract(cell)
	r := race.PastResult{
		Finish:   pastFinish.Extract(cell),
		RaceName: pastRaceName.Extract(cell),
		Winner:   strings.TrimSpace(pastWinner.Extract(cell)),
	}
	if m := pastDateRegex.FindStringSubmatch(header); m != nil {
		r.Date = m[1] + "-" + zeroPad(m[2]) + "-" + zeroPad(m[3])
		rest := strings.TrimSpace(header[strings.Index(header, m[0])+len(m[0]):])
		if name, ok := venue.Normalize(rest); ok {
			r.Venue = name
		} else {
			r.Venue = rest
		}
	}

	course := pastCourse.Extract(cell)
	if m := pastDistRegex.FindStringSubmatch(course); m != nil {
		r.Distance = m[1] + m[2]
	}
	r.Time = pastTimeRegex.FindString(course)
	if m := pastGoingRegex.FindStringSubmatch(course); m != nil {
		r.Going = m[1]
	}

	runners := pastRunners.Extract(cell)
	if m := pastRunnersRegex.FindStringSubmatch(runners); m != nil {
		r.Runners = m[1]
	}
	if m := pastJockeyRegex.FindStringSubmatch(runners); m != nil {
		r.Jockey = m[1]
	}

	passing := pastPassing.Extract(cell)
	if m := pastPassRegex.FindStringSubmatch(passing); m != nil {
		r.Passing = m[1]
	}
	if m := pastLast3FRegex.FindStringSubmatch(passing); m != nil {
		r.Last3F = m[1]
	}
	if m := pastWeightRegex.FindStringSubmatch(passing); m != nil {
		r.Weight = m[1]
	}

	if r.Date == "" && r.RaceName == "" {
		return r, false
	}
	return r, true
}

func zeroPad(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// PastResults parses the past performance page (馬柱), newest race first.
func PastResults(doc *goquery.Document, v Variant) race.ByHorse[[]race.PastResult] {
	out := race.ByHorse[[]race.PastResult]{}
	table := rootOf(doc, pastTable)
	if table == nil {
		return out
	}

	eachRow(race.PagePastResults, table.Find("tr.HorseList"), func(row *goquery.Selection) {
		number, ok := numberOf(row, pastNumber)
		if !ok {
			return
		}
		results := []race.PastResult{}
		row.Find(pastCells).Each(func(_ int, cell *goquery.Selection) {
			if r, ok := parsePastCell(cell); ok {
				results = append(results, r)
			}
		})
		out[number] = results
	})
	return out
}
