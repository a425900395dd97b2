package parsers

import (
	"regexp"
	"strings"

	"keiba-scraper/lib/htmlutil"
	"keiba-scraper/lib/race"
	"keiba-scraper/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

type trainingLayout struct {
	table     []string
	rows      string
	number    htmlutil.Strategies
	date      htmlutil.Strategies
	course    htmlutil.Strategies
	going     htmlutil.Strategies
	rider     htmlutil.Strategies
	intensity htmlutil.Strategies
	critic    htmlutil.Strategies
	rank      htmlutil.Strategies
	comment   htmlutil.Strategies
	splits    string
	timeText  htmlutil.Strategies
}

var trainingCentral = trainingLayout{
	table:     []string{"table.OikiriTable", "table.Oikiri_Table", "table.TrainingTable"},
	rows:      "tr.HorseList",
	number:    htmlutil.Strategies{htmlutil.TextOf("td.Umaban"), htmlutil.TextOf("td[class^=Umaban]"), htmlutil.Cell(1)},
	date:      textOf("td.Training_Day"),
	course:    textOf("td.Training_Course", "td.Course"),
	going:     textOf("td.Training_Baba", "td.Baba"),
	rider:     textOf("td.Training_Rider", "td.Rider"),
	intensity: textOf("td.TrainingLoad", "td.Training_Load"),
	critic:    textOf("td.Training_Critic", "td.Critic"),
	rank: htmlutil.Strategies{
		htmlutil.TextOf("td[class^=Rank_]"),
		htmlutil.TextOf("td.Rank"),
	},
	comment:  textOf("td.Training_Comment", ".TrainingComment"),
	splits:   "ul.TrainingTimeDataList li",
	timeText: textOf("td.TrainingTime", "td.Time"),
}

var trainingRegional = trainingLayout{
	table:     []string{"table.OikiriTable", "table.TrainingTable", "table.RaceTable01"},
	rows:      "tr.HorseList",
	number:    trainingCentral.number,
	date:      textOf("td.Training_Day", "td.Date"),
	course:    textOf("td.Training_Course", "td.Course"),
	going:     trainingCentral.going,
	rider:     trainingCentral.rider,
	intensity: trainingCentral.intensity,
	critic:    trainingCentral.critic,
	rank:      trainingCentral.rank,
	comment:   textOf("td.Training_Comment", "td.Comment", ".TrainingComment"),
	splits:    "ul.TrainingTimeDataList li",
	timeText:  textOf("td.TrainingTime", "td.Time"),
}

var splitRegex = regexp.MustCompile(`\d+:\d{1,2}\.\d|\d+\.\d`)

// parseSplits reads the cumulative furlong times of a workout. the list
// form prints every furlong as "83.5 (16.8)", the compact form is
// "52.3-38.1-24.8-12.2".
func parseSplits(row *goquery.Selection, layout trainingLayout) ([]string, []float64) {
	var raw []string
	row.Find(layout.splits).Each(func(_ int, li *goquery.Selection) {
		text := textutil.Clean(htmlutil.Text(li))
		if m := splitRegex.FindString(text); m != "" {
			raw = append(raw, m)
		}
	})
	if len(raw) == 0 {
		text := layout.timeText.Extract(row)
		for _, part := range strings.FieldsFunc(text, func(r rune) bool { return r == '-' || r == ' ' || r == '－' }) {
			if m := splitRegex.FindString(part); m != "" {
				raw = append(raw, m)
			}
		}
	}

	var splits []string
	var seconds []float64
	for _, s := range raw {
		v, ok := textutil.ParseSeconds(s)
		if !ok {
			continue
		}
		splits = append(splits, s)
		seconds = append(seconds, v)
	}
	return splits, seconds
}

// Training parses the workout page (調教). a horse may appear in more than
// one row, each row is one session in page order.
func Training(doc *goquery.Document, v Variant) race.ByHorse[race.Training] {
	layout := byVariant(v, trainingCentral, trainingRegional)

	out := race.ByHorse[race.Training]{}
	table := rootOf(doc, layout.table)
	if table == nil {
		return out
	}

	eachRow(race.PageTraining, table.Find(layout.rows), func(row *goquery.Selection) {
		number, ok := numberOf(row, layout.number)
		if !ok {
			return
		}

		courseLabel := layout.course.Extract(row)
		facility, course := splitCourse(courseLabel)
		splits, seconds := parseSplits(row, layout)

		session := race.TrainingSession{
			Date:      layout.date.Extract(row),
			Facility:  facility,
			Course:    course,
			Going:     layout.going.Extract(row),
			Rider:     layout.rider.Extract(row),
			Splits:    splits,
			Seconds:   seconds,
			Converted: convertSplits(facility, course, seconds),
			Distance:  len(seconds) * 200,
			Intensity: layout.intensity.Extract(row),
			Comment:   layout.comment.Extract(row),
		}

		// the comment is often printed in a row of its own right below
		if session.Comment == "" {
			next := row.Next()
			if next.Length() > 0 && !next.HasClass("HorseList") {
				session.Comment = layout.comment.Extract(next)
			}
		}

		t := out[number]
		if t.Evaluation == "" {
			t.Evaluation = layout.critic.Extract(row)
		}
		if t.Rank == "" {
			t.Rank = layout.rank.Extract(row)
		}
		if len(seconds) > 0 || session.Date != "" || session.Comment != "" {
			t.Sessions = append(t.Sessions, session)
		}
		if t.Sessions == nil {
			t.Sessions = []race.TrainingSession{}
		}
		out[number] = t
	})
	return out
}
