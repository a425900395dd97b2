package scraper

import (
	"net/url"

	"keiba-scraper/lib/race"
	"keiba-scraper/lib/venue"
)

// URLs builds the address of every sub-page of a race from its netkeiba
// key.
type URLs struct {
	Hosts map[venue.Category]string
}

func DefaultURLs() URLs {
	return URLs{Hosts: map[venue.Category]string{
		venue.Central:  "https://race.netkeiba.com",
		venue.Regional: "https://nar.netkeiba.com",
	}}
}

var pagePaths = map[race.PageType]string{
	race.PageEntries:          "/race/shutuba.html",
	race.PageTraining:         "/race/oikiri.html",
	race.PagePedigree:         "/race/shutuba_past.html",
	race.PagePastResults:      "/race/shutuba_past.html",
	race.PageStableComments:   "/race/comment.html",
	race.PagePreviousComments: "/race/zenso_comment.html",
	race.PageOdds:             "/odds/index.html",
	race.PagePrediction:       "/yoso/mark_list.html",
	race.PageAIIndex:          "/yoso/yoso_ai.html",
	race.PagePoint:            "/race/point.html",
	race.PageResult:           "/race/result.html",
}

// For returns the url of page, the empty string for an unknown page or
// category.
func (u URLs) For(page race.PageType, category venue.Category, key string) string {
	host, ok := u.Hosts[category]
	if !ok {
		return ""
	}
	path, ok := pagePaths[page]
	if !ok {
		return ""
	}
	q := url.Values{}
	q.Set("race_id", key)
	if page == race.PageOdds {
		q.Set("type", "b1")
	}
	return host + path + "?" + q.Encode()
}
