package parsers

import (
	"regexp"

	"keiba-scraper/lib/htmlutil"
	"keiba-scraper/lib/race"

	"github.com/PuerkitoBio/goquery"
)

var (
	pointRoot      = []string{".PointArea", ".Point_Area", "#PointArea", ".RacePoint"}
	pointTitle     = textOf(".PointTitle", "h2", ".Title")
	pointSummary   = textOf(".PointSummary", ".Point_Summary", ".Summary")
	pointItems     = "li.PointItem, .PointList li, .Point_List li, dl.PointItem"
	pointNumber    = htmlutil.Strategies{htmlutil.TextOf(".Umaban"), htmlutil.TextOf(".Num"), htmlutil.TextOf("dt")}
	pointLabel     = textOf(".PointLabel", ".Label", ".HorseName")
	pointReason    = textOf(".PointText", ".Reason", "dd", "p")
	inlineNumberRe = regexp.MustCompile(`^\s*(\d{1,2})\s*番?\s*[:：.\s]`)
)

// Point parses the regional point page: curated insight fragments, most of
// them about one horse. fragments without a horse number are kept in the
// info but contribute no per horse reason.
func Point(doc *goquery.Document, v Variant) race.PointPage {
	out := race.PointPage{
		Info:    race.PointInfo{Points: []race.PointFragment{}},
		Reasons: race.ByHorse[[]string]{},
	}
	root := rootOf(doc, pointRoot)
	if root == nil {
		return out
	}
	out.Info.Title = pointTitle.Extract(root)
	out.Info.Summary = pointSummary.Extract(root)

	eachRow(race.PagePoint, root.Find(pointItems), func(item *goquery.Selection) {
		reason := pointReason.Extract(item)
		if reason == "" {
			reason = htmlutil.Text(item)
		}
		if reason == "" {
			return
		}
		f := race.PointFragment{
			Label:  pointLabel.Extract(item),
			Reason: reason,
		}
		if number, ok := numberOf(item, pointNumber); ok {
			f.HorseNumber = number
		} else if m := inlineNumberRe.FindStringSubmatch(reason); m != nil {
			if number, ok := HorseNumber(m[1]); ok {
				f.HorseNumber = number
			}
		}
		out.Info.Points = append(out.Info.Points, f)
	})
	out.Reasons = out.Info.Reasons()
	return out
}
