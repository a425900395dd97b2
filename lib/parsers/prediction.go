package parsers

import (
	"strings"

	"keiba-scraper/lib/htmlutil"
	"keiba-scraper/lib/race"

	"github.com/PuerkitoBio/goquery"
)

var (
	marksTable  = []string{"table.YosoTable", "table.Yoso_Table", "table.MarkTable"}
	marksNumber = htmlutil.Strategies{htmlutil.TextOf("td.Umaban"), htmlutil.TextOf("td[class^=Umaban]"), htmlutil.Cell(0)}
	marksScore  = textOf("td.CPU_Score", "td.Score")

	aiTable  = []string{"table.AI_Index_Table", "table.AiIndexTable", "table.RaceTable01"}
	aiNumber = marksNumber
	aiIndex  = textOf("td.AI_Index", "td.Index")
	aiRank   = textOf("td.AI_Rank", "td.Rank")
	aiWin    = textOf("td.AI_Win", "td.WinRate")
	aiPlace  = textOf("td.AI_Place", "td.PlaceRate")
)

var markSymbols = "◎○▲△☆✓×注"

// markOf returns the mark of a cell, from its text or from an icon class
// such as "Icon_Mark01".
func markOf(cell *goquery.Selection) string {
	text := htmlutil.Text(cell)
	for _, r := range text {
		if strings.ContainsRune(markSymbols, r) {
			return string(r)
		}
	}
	class, _ := cell.Find("span").Attr("class")
	for i, name := range []string{"Icon_Mark01", "Icon_Mark02", "Icon_Mark03", "Icon_Mark04", "Icon_Mark05"} {
		if strings.Contains(class, name) {
			return string([]rune(markSymbols)[i])
		}
	}
	return ""
}

// Prediction parses the marks table of the prediction page. the header
// row names each predictor, the column titled CPU is the site's own
// computer prediction.
func Prediction(doc *goquery.Document, v Variant) race.ByHorse[race.Marks] {
	out := race.ByHorse[race.Marks]{}
	table := rootOf(doc, marksTable)
	if table == nil {
		return out
	}

	var predictors []string
	table.Find("tr").First().Find("th").Each(func(_ int, th *goquery.Selection) {
		predictors = append(predictors, htmlutil.Text(th))
	})

	eachRow(race.PagePrediction, table.Find("tr"), func(row *goquery.Selection) {
		number, ok := numberOf(row, marksNumber)
		if !ok {
			return
		}
		m := race.Marks{Score: marksScore.Extract(row)}
		row.Children().Each(func(i int, cell *goquery.Selection) {
			if !cell.HasClass("Mark") && !cell.HasClass("Yoso_Mark") {
				return
			}
			mark := markOf(cell)
			if mark == "" || i >= len(predictors) {
				return
			}
			name := predictors[i]
			if strings.EqualFold(name, "CPU") || strings.Contains(name, "CPU") {
				m.CPU = mark
				return
			}
			if m.Predictors == nil {
				m.Predictors = map[string]string{}
			}
			m.Predictors[name] = mark
		})
		out[number] = m
	})
	return out
}

// AIIndex parses the ai index page, which is rendered by scripts and is
// only complete after the network went idle.
func AIIndex(doc *goquery.Document, v Variant) race.ByHorse[race.AIIndex] {
	out := race.ByHorse[race.AIIndex]{}
	table := rootOf(doc, aiTable)
	if table == nil {
		return out
	}
	eachRow(race.PageAIIndex, table.Find("tr"), func(row *goquery.Selection) {
		number, ok := numberOf(row, aiNumber)
		if !ok {
			return
		}
		idx := race.AIIndex{
			Index: aiIndex.Extract(row),
			Rank:  aiRank.Extract(row),
			Win:   aiWin.Extract(row),
			Place: aiPlace.Extract(row),
		}
		if idx == (race.AIIndex{}) {
			return
		}
		out[number] = idx
	})
	return out
}
