package parsers

import (
	"regexp"
	"strings"

	"keiba-scraper/lib/htmlutil"
	"keiba-scraper/lib/race"
	"keiba-scraper/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

type entriesLayout struct {
	table    []string
	rows     string
	name     htmlutil.Strategies
	grade    htmlutil.Strategies
	data01   htmlutil.Strategies
	data02   htmlutil.Strategies
	number   htmlutil.Strategies
	frame    htmlutil.Strategies
	horse    htmlutil.Strategies
	horseURL htmlutil.Strategies
	sexAge   htmlutil.Strategies
	weight   htmlutil.Strategies
	jockey   htmlutil.Strategies
	trainer  htmlutil.Strategies
	body     htmlutil.Strategies
	odds     htmlutil.Strategies
	pop      htmlutil.Strategies
}

var entriesCentral = entriesLayout{
	table: []string{"table.Shutuba_Table", "table.ShutubaTable", "table.RaceTable01"},
	rows:  "tr.HorseList",
	name:  textOf(".RaceList_Item02 .RaceName", "h1.RaceName", ".RaceName"),
	grade: htmlutil.Strategies{
		htmlutil.Matching(htmlutil.AttrOf(".RaceName .Icon_GradeType", "class"), regexp.MustCompile(`Icon_GradeType(\d+)`)),
	},
	data01: textOf(".RaceData01"),
	data02: textOf(".RaceData02"),
	number: htmlutil.Strategies{
		htmlutil.TextOf("td[class^=Umaban]"),
		htmlutil.TextOf("td.Umaban"),
		htmlutil.Cell(1),
	},
	frame: htmlutil.Strategies{
		htmlutil.TextOf("td[class^=Waku]"),
		htmlutil.Cell(0),
	},
	horse: textOf(".HorseName a", ".HorseName", "td.HorseInfo a"),
	horseURL: htmlutil.Strategies{
		htmlutil.AttrOf(".HorseName a", "href"),
		htmlutil.AttrOf("td.HorseInfo a", "href"),
	},
	sexAge:  textOf("td.Barei"),
	weight:  htmlutil.Strategies{htmlutil.TextOf("td.Barei + td"), htmlutil.Cell(5)},
	jockey:  textOf("td.Jockey a", "td.Jockey"),
	trainer: textOf("td.Trainer a", "td.Trainer"),
	body:    textOf("td.Weight"),
	odds:    textOf("td.Popular span[id^=odds]", "td.Txt_R.Popular", "td.Popular:not(.Popular_Ninki)"),
	pop:     textOf("td.Popular_Ninki span", "td.Popular_Ninki"),
}

var entriesRegional = entriesLayout{
	table:    []string{"table.Shutuba_Table", "table.RaceTable01", "table.ShutubaTable"},
	rows:     "tr.HorseList",
	name:     textOf(".RaceName", ".RaceList_Item02 .RaceName", "h1"),
	grade:    entriesCentral.grade,
	data01:   textOf(".RaceData01", ".RaceList_Item02 .RaceData01"),
	data02:   textOf(".RaceData02"),
	number:   entriesCentral.number,
	frame:    entriesCentral.frame,
	horse:    textOf(".HorseName a", "td.Horse_Info a", ".HorseName"),
	horseURL: htmlutil.Strategies{htmlutil.AttrOf(".HorseName a", "href"), htmlutil.AttrOf("td.Horse_Info a", "href")},
	sexAge:   entriesCentral.sexAge,
	weight:   entriesCentral.weight,
	jockey:   entriesCentral.jockey,
	trainer:  entriesCentral.trainer,
	body:     entriesCentral.body,
	odds:     textOf("td.Popular span[id^=odds]", "td.Odds", "td.Txt_R.Popular"),
	pop:      entriesCentral.pop,
}

var gradeNames = map[string]string{
	"1":  "G1",
	"2":  "G2",
	"3":  "G3",
	"5":  "OP",
	"10": "J.G1",
	"11": "J.G2",
	"12": "J.G3",
	"15": "L",
	"16": "3勝",
	"17": "2勝",
	"18": "1勝",
}

var (
	courseRegex  = regexp.MustCompile(`(芝|ダ|障)[^\d]*(\d{3,4})m`)
	weatherRegex = regexp.MustCompile(`天候\s*[:：]\s*([^\s/]+)`)
	goingRegex   = regexp.MustCompile(`馬場\s*[:：]\s*([^\s/]+)`)
	startRegex   = regexp.MustCompile(`(\d{1,2}:\d{2})\s*発走`)
	gradeInName  = regexp.MustCompile(`\((J\.)?G(I{1,3}|[123])\)|（(J\.)?G(I{1,3}|[123])）`)
	oddsRegex    = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

func parseMeta(doc *goquery.Document, layout entriesLayout) race.Meta {
	scope := doc.Selection
	meta := race.Meta{
		RaceName:   layout.name.Extract(scope),
		Distance:   layout.data01.Extract(scope),
		RaceDetail: layout.data02.Extract(scope),
	}

	if code := layout.grade.Extract(scope); code != "" {
		meta.RaceGrade = gradeNames[code]
	}
	if meta.RaceGrade == "" {
		if m := gradeInName.FindString(meta.RaceName); m != "" {
			meta.RaceGrade = strings.Trim(m, "()（）")
		}
	}

	if m := courseRegex.FindStringSubmatch(meta.Distance); m != nil {
		meta.Surface = m[1]
		meta.Meters, _ = textutil.FirstInt(m[2])
	}
	if m := weatherRegex.FindStringSubmatch(meta.Distance); m != nil {
		meta.Weather = m[1]
	}
	if m := goingRegex.FindStringSubmatch(meta.Distance); m != nil {
		meta.Going = m[1]
	}
	if m := startRegex.FindStringSubmatch(meta.Distance); m != nil {
		meta.StartTime = m[1]
	}
	return meta
}

// Entries parses the entries page (出馬表): race metadata and the runners
// in page order.
func Entries(doc *goquery.Document, v Variant) race.Entries {
	layout := byVariant(v, entriesCentral, entriesRegional)

	out := race.Entries{Horses: []race.Horse{}}
	if doc == nil {
		return out
	}
	out.Meta = parseMeta(doc, layout)

	table := rootOf(doc, layout.table)
	if table == nil {
		return out
	}

	seen := map[string]bool{}
	eachRow(race.PageEntries, table.Find(layout.rows), func(row *goquery.Selection) {
		number, ok := numberOf(row, layout.number)
		if !ok || seen[number] {
			return
		}
		seen[number] = true

		odds := layout.odds.Extract(row)
		if !oddsRegex.MatchString(odds) {
			odds = ""
		}
		h := race.Horse{
			Number:     number,
			Frame:      layout.frame.Extract(row),
			Name:       layout.horse.Extract(row),
			HorseID:    horseIDFrom(layout.horseURL.Extract(row)),
			SexAge:     layout.sexAge.Extract(row),
			Weight:     layout.weight.Extract(row),
			Jockey:     layout.jockey.Extract(row),
			Trainer:    layout.trainer.Extract(row),
			BodyWeight: layout.body.Extract(row),
			Odds:       odds,
			Popularity: layout.pop.Extract(row),
			Scratched:  row.HasClass("Cancel") || strings.Contains(htmlutil.Text(row), "取消") || strings.Contains(htmlutil.Text(row), "除外"),
		}
		out.Horses = append(out.Horses, h)
	})
	return out
}
