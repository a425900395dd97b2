package parsers

import (
	"strings"

	"keiba-scraper/lib/htmlutil"
	"keiba-scraper/lib/race"

	"github.com/PuerkitoBio/goquery"
)

type commentLayout struct {
	root    []string
	rows    string
	number  htmlutil.Strategies
	comment htmlutil.Strategies
}

var stableCommentLayout = commentLayout{
	root:   []string{"table.Stable_Comment", "table.CommentTable", ".Stable_Comment_Area table", "table.RaceCommentTable"},
	rows:   "tr",
	number: htmlutil.Strategies{htmlutil.TextOf("td.Umaban"), htmlutil.TextOf("td[class^=Umaban]"), htmlutil.TextOf("td.Num"), htmlutil.Cell(1)},
	comment: htmlutil.Strategies{
		htmlutil.TextOf("td.Comment .Comment_Txt"),
		htmlutil.TextOf("td.Comment"),
		htmlutil.TextOf(".Comment_Txt"),
		htmlutil.TextOf("td.Stable_Comment_Txt"),
	},
}

var previousCommentLayout = commentLayout{
	root:   []string{"table.Zenso_Comment", "table.PreviousCommentTable", "table.CommentTable", "table.RaceCommentTable"},
	rows:   "tr",
	number: stableCommentLayout.number,
	comment: htmlutil.Strategies{
		htmlutil.TextOf("td.Comment .Comment_Txt"),
		htmlutil.TextOf("td.Comment"),
		htmlutil.TextOf("td.Zenso_Comment_Txt"),
		htmlutil.TextOf(".Comment_Txt"),
	},
}

func parseComments(doc *goquery.Document, page race.PageType, layout commentLayout) race.ByHorse[string] {
	out := race.ByHorse[string]{}
	root := rootOf(doc, layout.root)
	if root == nil {
		return out
	}
	eachRow(page, root.Find(layout.rows), func(row *goquery.Selection) {
		number, ok := numberOf(row, layout.number)
		if !ok {
			return
		}
		comment := strings.TrimSpace(layout.comment.Extract(row))
		if comment == "" {
			return
		}
		if prev, ok := out[number]; ok && prev != comment {
			comment = prev + " " + comment
		}
		out[number] = comment
	})
	return out
}

// StableComments parses the trainer/stable comment page (厩舎コメント).
func StableComments(doc *goquery.Document, v Variant) race.ByHorse[string] {
	return parseComments(doc, race.PageStableComments, stableCommentLayout)
}

// PreviousComments parses jockey comments about each horse's last race
// (前走コメント).
func PreviousComments(doc *goquery.Document, v Variant) race.ByHorse[string] {
	return parseComments(doc, race.PagePreviousComments, previousCommentLayout)
}
