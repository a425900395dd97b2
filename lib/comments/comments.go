// Package comments folds the free text about each horse into one
// individual comment.
package comments

import (
	"strings"

	"keiba-scraper/lib/race"
)

const (
	TagStable   = "[stable]"
	TagPrevious = "[previous]"
	TagTraining = "[training]"
	TagPoint    = "[point]"
)

// Sources are the per horse comment sources in aggregation order.
type Sources struct {
	Stable   race.ByHorse[string]
	Previous race.ByHorse[string]
	Training race.ByHorse[race.Training]
	Point    race.ByHorse[[]string]
}

// SourcesOf reads the sources back out of a merged record, used when some
// pages were carried forward from an earlier scrape.
func SourcesOf(r *race.Record) Sources {
	s := Sources{
		Stable:   race.ByHorse[string]{},
		Previous: race.ByHorse[string]{},
		Training: race.ByHorse[race.Training]{},
		Point:    race.ByHorse[[]string]{},
	}
	for _, h := range r.Horses {
		s.Stable[h.Number] = h.StableComment
		s.Previous[h.Number] = h.PreviousComment
		s.Training[h.Number] = h.Training
	}
	if r.PointInfo != nil {
		s.Point = r.PointInfo.Reasons()
	}
	return s
}

type fragments struct {
	tag  bool
	seen map[string]bool
	out  []string
}

func (f *fragments) add(tag, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if f.tag {
		text = tag + " " + text
	}
	if f.seen[text] {
		return
	}
	f.seen[text] = true
	f.out = append(f.out, text)
}

// Comment builds the individual comment of one horse: stable comment,
// previous race comment, every training session comment, then the point
// reasons. fragments are deduplicated by exact text, after tagging when
// tagSources is set, keeping the first occurrence.
func (s Sources) Comment(number string, tagSources bool) string {
	f := fragments{tag: tagSources, seen: map[string]bool{}}
	f.add(TagStable, s.Stable[number])
	f.add(TagPrevious, s.Previous[number])
	for _, session := range s.Training[number].Sessions {
		f.add(TagTraining, session.Comment)
	}
	for _, reason := range s.Point[number] {
		f.add(TagPoint, reason)
	}
	return strings.Join(f.out, " ")
}

// Aggregate sets IndividualComment on every horse in place.
func Aggregate(horses []race.Horse, stable, previous race.ByHorse[string], training race.ByHorse[race.Training], point race.ByHorse[[]string], tagSources bool) {
	s := Sources{Stable: stable, Previous: previous, Training: training, Point: point}
	for i := range horses {
		horses[i].IndividualComment = s.Comment(horses[i].Number, tagSources)
	}
}
