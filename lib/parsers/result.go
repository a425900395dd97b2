package parsers

import (
	"strings"

	"keiba-scraper/lib/htmlutil"
	"keiba-scraper/lib/race"

	"github.com/PuerkitoBio/goquery"
)

var (
	resultTable    = []string{"table#All_Result_Table", "table.ResultRefund", "table.RaceTable01"}
	resultPosition = htmlutil.Strategies{htmlutil.TextOf("td.Result_Num .Rank"), htmlutil.TextOf("td.Result_Num"), htmlutil.Cell(0)}
	resultNumber   = htmlutil.Strategies{htmlutil.TextOf("td.Num:not([class*=Waku])"), htmlutil.TextOf("td.Umaban"), htmlutil.Cell(2)}
	resultTime     = textOf("td.Time .RaceTime", "td.Time")
	resultMargin   = htmlutil.Strategies{htmlutil.TextOf("td.Time + td.Time .RaceTime"), htmlutil.TextOf("td.Margin")}
	resultPassing  = textOf("td.PassageRate", "td.Passage")
	resultLast3F   = textOf("td.Time.BgBlue02", "td.Last3F", "td.Time:last-of-type")

	payoutTables = []string{"table.Payout_Detail_Table", "table.Payout_Table", "table.pay_table_01"}
	lapTables    = []string{"table.Race_HaronTime", "table.HaronTime"}
	cornerTables = []string{"table.Corner_Num", "table.CornerTable"}
	paceText     = textOf(".RapPace_Title span", ".RacePace")
)

// Result parses the result page: finishing order, laps, corner positions
// and payouts. it is only fetched once the race is over.
func Result(doc *goquery.Document, v Variant) race.ResultPage {
	out := race.ResultPage{
		Result:   race.Result{Order: []string{}},
		Finishes: race.ByHorse[race.Finish]{},
		Payouts:  []race.Payout{},
	}
	if doc == nil {
		return out
	}

	table := rootOf(doc, resultTable)
	if table != nil {
		eachRow(race.PageResult, table.Find("tr.HorseList"), func(row *goquery.Selection) {
			number, ok := numberOf(row, resultNumber)
			if !ok {
				return
			}
			position := resultPosition.Extract(row)
			out.Finishes[number] = race.Finish{
				Position: position,
				Time:     resultTime.Extract(row),
				Margin:   resultMargin.Extract(row),
				Passing:  resultPassing.Extract(row),
				Last3F:   resultLast3F.Extract(row),
			}
			if _, ok := HorseNumber(position); ok {
				out.Result.Order = append(out.Result.Order, number)
			}
		})
	}

	if laps := rootOf(doc, lapTables); laps != nil {
		var parts []string
		laps.Find("tr.HaronTime td").Each(func(_ int, td *goquery.Selection) {
			if t := htmlutil.Text(td); t != "" {
				parts = append(parts, t)
			}
		})
		out.Result.Laps = strings.Join(parts, "-")
	}
	out.Result.Pace = paceText.Extract(doc.Selection)

	if corners := rootOf(doc, cornerTables); corners != nil {
		eachRow(race.PageResult, corners.Find("tr"), func(row *goquery.Selection) {
			label := htmlutil.Text(row.Find("th").First())
			value := htmlutil.Text(row.Find("td").First())
			if label == "" || value == "" {
				return
			}
			out.Result.Corners = append(out.Result.Corners, label+":"+value)
		})
	}

	doc.Find(strings.Join(payoutTables, ", ")).Each(func(_ int, payouts *goquery.Selection) {
		eachRow(race.PageResult, payouts.Find("tr"), func(row *goquery.Selection) {
			out.Payouts = append(out.Payouts, parsePayoutRow(row)...)
		})
	})
	return out
}

// parsePayoutRow expands one bet type row. place and wide bets list
// several combinations in one row, one per line.
func parsePayoutRow(row *goquery.Selection) []race.Payout {
	kind := htmlutil.Text(row.Find("th").First())
	if kind == "" {
		return nil
	}

	numbers := lines(row.Find("td.Result"))
	amounts := lines(row.Find("td.Payout"))
	pops := lines(row.Find("td.Ninki"))
	if len(numbers) == 0 {
		cells := row.Find("td")
		numbers = lines(cells.Eq(0))
		amounts = lines(cells.Eq(1))
		pops = lines(cells.Eq(2))
	}

	var out []race.Payout
	for i, n := range numbers {
		p := race.Payout{Kind: kind, Numbers: n}
		if i < len(amounts) {
			p.Amount = amounts[i]
		}
		if i < len(pops) {
			p.Popularity = pops[i]
		}
		out = append(out, p)
	}
	return out
}

// lines splits a cell into its printed lines. a <ul> is one combination
// whose items are joined with "-", several child elements are one line
// each, otherwise lines are separated by <br>.
func lines(cell *goquery.Selection) []string {
	if cell.Length() == 0 {
		return nil
	}
	var out []string
	if groups := cell.Find("ul"); groups.Length() > 0 {
		groups.Each(func(_ int, group *goquery.Selection) {
			var parts []string
			group.Find("li").Each(func(_ int, item *goquery.Selection) {
				if t := htmlutil.Text(item); t != "" {
					parts = append(parts, t)
				}
			})
			if len(parts) > 0 {
				out = append(out, strings.Join(parts, "-"))
			}
		})
		return out
	}

	if children := cell.Children().Filter("div, span"); children.Length() > 1 {
		children.Each(func(_ int, child *goquery.Selection) {
			if t := htmlutil.Text(child); t != "" {
				out = append(out, t)
			}
		})
		return out
	}

	markup, err := cell.Html()
	if err != nil {
		return nil
	}
	for i, part := range strings.Split(markup, "<br") {
		if i > 0 {
			if j := strings.Index(part, ">"); j >= 0 {
				part = part[j+1:]
			}
		}
		frag, err := htmlutil.ParseDocument(part)
		if err != nil {
			continue
		}
		if t := htmlutil.Text(frag.Selection); t != "" {
			out = append(out, t)
		}
	}
	return out
}
