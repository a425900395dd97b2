package scraper

import (
	"keiba-scraper/lib/parsers"
	"keiba-scraper/lib/race"
	"keiba-scraper/lib/venue"

	"github.com/PuerkitoBio/goquery"
)

// Parsers are the page parsers used by the scraper. any field left nil
// falls back to the parsers package.
type Parsers struct {
	Entries          func(*goquery.Document, parsers.Variant) race.Entries
	Training         func(*goquery.Document, parsers.Variant) race.ByHorse[race.Training]
	Pedigree         func(*goquery.Document, parsers.Variant) race.ByHorse[race.Pedigree]
	StableComments   func(*goquery.Document, parsers.Variant) race.ByHorse[string]
	PreviousComments func(*goquery.Document, parsers.Variant) race.ByHorse[string]
	PastResults      func(*goquery.Document, parsers.Variant) race.ByHorse[[]race.PastResult]
	Odds             func(*goquery.Document, parsers.Variant) race.ByHorse[race.Odds]
	Prediction       func(*goquery.Document, parsers.Variant) race.ByHorse[race.Marks]
	AIIndex          func(*goquery.Document, parsers.Variant) race.ByHorse[race.AIIndex]
	Point            func(*goquery.Document, parsers.Variant) race.PointPage
	Result           func(*goquery.Document, parsers.Variant) race.ResultPage
}

func DefaultParsers() Parsers {
	return Parsers{
		Entries:          parsers.Entries,
		Training:         parsers.Training,
		Pedigree:         parsers.Pedigree,
		StableComments:   parsers.StableComments,
		PreviousComments: parsers.PreviousComments,
		PastResults:      parsers.PastResults,
		Odds:             parsers.Odds,
		Prediction:       parsers.Prediction,
		AIIndex:          parsers.AIIndex,
		Point:            parsers.Point,
		Result:           parsers.Result,
	}
}

func (p Parsers) withDefaults() Parsers {
	def := DefaultParsers()
	if p.Entries == nil {
		p.Entries = def.Entries
	}
	if p.Training == nil {
		p.Training = def.Training
	}
	if p.Pedigree == nil {
		p.Pedigree = def.Pedigree
	}
	if p.StableComments == nil {
		p.StableComments = def.StableComments
	}
	if p.PreviousComments == nil {
		p.PreviousComments = def.PreviousComments
	}
	if p.PastResults == nil {
		p.PastResults = def.PastResults
	}
	if p.Odds == nil {
		p.Odds = def.Odds
	}
	if p.Prediction == nil {
		p.Prediction = def.Prediction
	}
	if p.AIIndex == nil {
		p.AIIndex = def.AIIndex
	}
	if p.Point == nil {
		p.Point = def.Point
	}
	if p.Result == nil {
		p.Result = def.Result
	}
	return p
}

// merge parses doc as page and applies the partial to r. a nil doc
// applies the empty partial so every horse gets default values.
func (p Parsers) merge(r *race.Record, page race.PageType, doc *goquery.Document, v parsers.Variant) {
	switch page {
	case race.PageTraining:
		var partial race.ByHorse[race.Training]
		if doc != nil {
			partial = p.Training(doc, v)
		}
		r.ApplyTraining(partial)
	case race.PagePedigree:
		var partial race.ByHorse[race.Pedigree]
		if doc != nil {
			partial = p.Pedigree(doc, v)
		}
		r.ApplyPedigree(partial)
	case race.PageStableComments:
		var partial race.ByHorse[string]
		if doc != nil {
			partial = p.StableComments(doc, v)
		}
		r.ApplyStableComments(partial)
	case race.PagePreviousComments:
		var partial race.ByHorse[string]
		if doc != nil {
			partial = p.PreviousComments(doc, v)
		}
		r.ApplyPreviousComments(partial)
	case race.PagePastResults:
		var partial race.ByHorse[[]race.PastResult]
		if doc != nil {
			partial = p.PastResults(doc, v)
		}
		r.ApplyPastResults(partial)
	case race.PageOdds:
		if doc != nil {
			r.ApplyOdds(p.Odds(doc, v))
		}
	case race.PagePrediction:
		var partial race.ByHorse[race.Marks]
		if doc != nil {
			partial = p.Prediction(doc, v)
		}
		r.ApplyPrediction(partial)
	case race.PageAIIndex:
		var partial race.ByHorse[race.AIIndex]
		if doc != nil {
			partial = p.AIIndex(doc, v)
		}
		r.ApplyAIIndex(partial)
	case race.PagePoint:
		var partial race.PointPage
		if doc != nil {
			partial = p.Point(doc, v)
		}
		r.ApplyPoint(partial)
	case race.PageResult:
		var partial race.ResultPage
		if doc != nil {
			partial = p.Result(doc, v)
		}
		r.ApplyResult(partial)
	}
}

var basePages = []race.PageType{
	race.PageTraining,
	race.PagePedigree,
	race.PageStableComments,
	race.PagePreviousComments,
	race.PagePastResults,
}

var categoryPages = map[venue.Category][]race.PageType{
	venue.Central:  {race.PageOdds, race.PagePrediction, race.PageAIIndex},
	venue.Regional: {race.PageOdds, race.PagePrediction, race.PagePoint},
}

var allCategoryPages = []race.PageType{race.PageOdds, race.PagePrediction, race.PageAIIndex, race.PagePoint}

// Plan returns the auxiliary pages to fetch for a race, in fetch order.
// full disables the category based skipping, the result page is added
// after the race or when full is set.
func Plan(category venue.Category, postRace, full bool) []race.PageType {
	plan := append([]race.PageType{}, basePages...)
	if full {
		plan = append(plan, allCategoryPages...)
	} else {
		plan = append(plan, categoryPages[category]...)
	}
	if postRace || full {
		plan = append(plan, race.PageResult)
	}
	return plan
}
