package schedule

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"keiba-scraper/lib/chrono"
	"keiba-scraper/lib/fetcher"
	"keiba-scraper/lib/htmlutil"
	"keiba-scraper/lib/textutil"
	"keiba-scraper/lib/timezone"
	"keiba-scraper/lib/venue"

	"github.com/PuerkitoBio/goquery"
)

// Getter returns the markup of a page. sources go through the page
// fetcher so schedule requests share its rate limit and retries.
type Getter interface {
	Get(ctx context.Context, url string) (string, error)
}

type FetchGetter struct {
	Fetcher *fetcher.Fetcher
	Session fetcher.Session
	Options fetcher.Options
}

func (g FetchGetter) Get(ctx context.Context, url string) (string, error) {
	return g.Fetcher.Fetch(ctx, g.Session, url, g.Options)
}

func getDocument(ctx context.Context, getter Getter, url string) (*goquery.Document, error) {
	markup, err := getter.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	return htmlutil.ParseDocument(markup)
}

var (
	raceNumberRegex = regexp.MustCompile(`(\d{1,2})\s*R`)
	startTimeRegex  = regexp.MustCompile(`\d{1,2}:\d{2}`)
	kaisaiDateRegex = regexp.MustCompile(`kaisai_date=(\d{8})`)
)

func raceNumber(s string) int {
	m := raceNumberRegex.FindStringSubmatch(textutil.Fold(s))
	if m == nil {
		return 0
	}
	n, _ := textutil.FirstInt(m[1])
	return n
}

var netkeibaHosts = map[venue.Category]string{
	venue.Central:  "https://race.netkeiba.com",
	venue.Regional: "https://nar.netkeiba.com",
}

// parseNetkeibaList reads the race list fragment shared by the date
// scoped and the today race list of netkeiba.
func parseNetkeibaList(doc *goquery.Document) []Entry {
	var entries []Entry
	doc.Find("dl.RaceList_DataList").Each(func(_ int, block *goquery.Selection) {
		title := htmlutil.Text(block.Find(".RaceList_DataTitle").First())
		if title == "" {
			title = htmlutil.Text(block.Find("dt").First())
		}
		name, ok := venue.Normalize(title)
		if !ok {
			return
		}
		meeting, _ := venue.ParseMeeting(title)

		e := Entry{Venue: name, Meeting: meeting}
		block.Find("li.RaceList_DataItem").Each(func(_ int, item *goquery.Selection) {
			href := item.Find("a").First().AttrOr("href", "")
			r := Race{
				Number:    raceNumber(htmlutil.Text(item.Find(".Race_Num"))),
				StartTime: startTimeRegex.FindString(htmlutil.Text(item.Find(".RaceList_Itemtime"))),
				Name:      htmlutil.Text(item.Find(".ItemTitle")),
				RaceKey:   htmlutil.QueryParam(href, "race_id"),
			}
			if r.Number == 0 {
				return
			}
			e.Races = append(e.Races, r)
		})
		entries = append(entries, e)
	})
	return entries
}

// Netkeiba is the race list of the site being scraped, the most complete
// source when it answers.
type Netkeiba struct {
	Getter Getter
	// Hosts overrides the default hosts per category.
	Hosts map[venue.Category]string
}

func (Netkeiba) Name() string {
	return "netkeiba"
}

func (s Netkeiba) host(category venue.Category) string {
	if h, ok := s.Hosts[category]; ok {
		return h
	}
	return netkeibaHosts[category]
}

func (s Netkeiba) Fetch(ctx context.Context, date time.Time, category venue.Category) ([]Entry, error) {
	target := fmt.Sprintf("%s/top/race_list_sub.html?kaisai_date=%s", s.host(category), timezone.FormatDate(date))
	doc, err := getDocument(ctx, s.Getter, target)
	if err != nil {
		return nil, err
	}
	entries := parseNetkeibaList(doc)
	for i := range entries {
		entries[i].Date = timezone.FormatDate(date)
	}
	return entries, nil
}

// Today is the undated race list. it always shows the current racing
// day, so its date comes from the page or from the clock.
type Today struct {
	Getter Getter
	Hosts  map[venue.Category]string
	Time   chrono.TimeAPI
}

func (Today) Name() string {
	return "today"
}

func (s Today) Fetch(ctx context.Context, _ time.Time, category venue.Category) ([]Entry, error) {
	host := netkeibaHosts[category]
	if h, ok := s.Hosts[category]; ok {
		host = h
	}
	doc, err := getDocument(ctx, s.Getter, host+"/top/race_list_sub.html")
	if err != nil {
		return nil, err
	}

	date := ""
	active := doc.Find("#date_list_sub li.Active a, li[aria-selected=true] a").First()
	if m := kaisaiDateRegex.FindStringSubmatch(active.AttrOr("href", "")); m != nil {
		date = m[1]
	} else if s.Time != nil {
		date = timezone.FormatDate(s.Time.Now())
	}

	entries := parseNetkeibaList(doc)
	for i := range entries {
		entries[i].Date = date
	}
	return entries, nil
}

var dbRaceKeyRegex = regexp.MustCompile(`/race/(\d{12})/?`)

// Database is the race list of the results database, a secondary site
// that lists central and regional races together.
type Database struct {
	Getter Getter
	Host   string
}

func (Database) Name() string {
	return "database"
}

func (s Database) Fetch(ctx context.Context, date time.Time, _ venue.Category) ([]Entry, error) {
	host := s.Host
	if host == "" {
		host = "https://db.netkeiba.com"
	}
	doc, err := getDocument(ctx, s.Getter, fmt.Sprintf("%s/race/list/%s/", host, timezone.FormatDate(date)))
	if err != nil {
		return nil, err
	}

	var entries []Entry
	doc.Find("dl.race_top_hold_list, div.race_kaisai_info").Each(func(_ int, block *goquery.Selection) {
		title := htmlutil.Text(block.Find("p.race_top_data_info, dt, p").First())
		name, ok := venue.Normalize(title)
		if !ok {
			return
		}
		meeting, _ := venue.ParseMeeting(title)
		e := Entry{Date: timezone.FormatDate(date), Venue: name, Meeting: meeting}

		block.Find("li").Each(func(_ int, item *goquery.Selection) {
			link := item.Find("a[href*='/race/']").First()
			key := ""
			if m := dbRaceKeyRegex.FindStringSubmatch(link.AttrOr("href", "")); m != nil {
				key = m[1]
			}
			text := htmlutil.Text(item)
			r := Race{
				Number:    raceNumber(text),
				StartTime: startTimeRegex.FindString(text),
				Name:      strings.TrimSpace(raceNumberRegex.ReplaceAllString(htmlutil.Text(link), "")),
				RaceKey:   key,
			}
			if r.Number == 0 {
				return
			}
			e.Races = append(e.Races, r)
		})
		entries = append(entries, e)
	})
	return entries, nil
}

// JRA is the official central racing calendar.
type JRA struct {
	Getter Getter
	Host   string
}

func (JRA) Name() string {
	return "jra"
}

func (s JRA) Fetch(ctx context.Context, date time.Time, category venue.Category) ([]Entry, error) {
	if category != venue.Central {
		return nil, fmt.Errorf("jra calendar has no %s races", category)
	}
	host := s.Host
	if host == "" {
		host = "https://www.jra.go.jp"
	}
	target := fmt.Sprintf("%s/keiba/calendar%d/%d/%d/%02d%02d.html",
		host, date.Year(), date.Year(), int(date.Month()), int(date.Month()), date.Day())
	doc, err := getDocument(ctx, s.Getter, target)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	doc.Find("table.basic, div.race_table table").Each(func(_ int, table *goquery.Selection) {
		title := htmlutil.Text(table.Find("caption").First())
		if title == "" {
			title = htmlutil.Text(table.Parent().Find("h3").First())
		}
		name, ok := venue.Normalize(title)
		if !ok {
			return
		}
		meeting, _ := venue.ParseMeeting(title)
		e := Entry{Date: timezone.FormatDate(date), Venue: name, Meeting: meeting}

		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			number := raceNumber(htmlutil.Text(row.Find("th, td.race_num").First()))
			if number == 0 {
				return
			}
			e.Races = append(e.Races, Race{
				Number:    number,
				StartTime: startTimeRegex.FindString(htmlutil.Text(row.Find("td.time"))),
				Name:      htmlutil.Text(row.Find("td.race_name, td.name").First()),
			})
		})
		entries = append(entries, e)
	})
	return entries, nil
}

// NAR is the official regional racing calendar. its top page lists the
// venues of the day, each venue has its own race list.
type NAR struct {
	Getter Getter
	Host   string
}

func (NAR) Name() string {
	return "nar"
}

func (s NAR) Fetch(ctx context.Context, date time.Time, category venue.Category) ([]Entry, error) {
	if category != venue.Regional {
		return nil, fmt.Errorf("nar calendar has no %s races", category)
	}
	host := s.Host
	if host == "" {
		host = "https://www.keiba.go.jp"
	}
	raceDate := url.QueryEscape(date.Format("2006/01/02"))
	top, err := getDocument(ctx, s.Getter, fmt.Sprintf("%s/KeibaWeb/TodayRaceInfo/TodayRaceInfoTop?k_raceDate=%s", host, raceDate))
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(host)
	seen := map[string]bool{}
	var entries []Entry
	for _, anchor := range htmlutil.GetAnchors(base, top.Find("a[href*='RaceList']")) {
		name, ok := venue.Normalize(anchor.Name)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true

		doc, err := getDocument(ctx, s.Getter, anchor.Href)
		if err != nil {
			return nil, fmt.Errorf("race list of %s: %w", name, err)
		}
		e := Entry{Date: timezone.FormatDate(date), Venue: name}
		doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() < 2 {
				return
			}
			number := raceNumber(htmlutil.Text(cells.Eq(0)))
			if number == 0 {
				return
			}
			e.Races = append(e.Races, Race{
				Number:    number,
				StartTime: startTimeRegex.FindString(htmlutil.Text(cells.Eq(1))),
				Name:      htmlutil.Text(row.Find("td.raceName, td a").First()),
			})
		})
		entries = append(entries, e)
	}
	return entries, nil
}

// Default wires the standard sources: netkeiba, the official calendar,
// the results database, then the today list.
func Default(getter Getter, clock chrono.TimeAPI) *Resolver {
	r := NewResolver()
	r.Add(venue.Central, Netkeiba{Getter: getter}).
		Add(venue.Central, JRA{Getter: getter}).
		Add(venue.Central, Database{Getter: getter}).
		SetToday(venue.Central, Today{Getter: getter, Time: clock})
	r.Add(venue.Regional, Netkeiba{Getter: getter}).
		Add(venue.Regional, NAR{Getter: getter}).
		Add(venue.Regional, Database{Getter: getter}).
		SetToday(venue.Regional, Today{Getter: getter, Time: clock})
	return r
}
