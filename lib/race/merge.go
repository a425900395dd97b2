package race

// FromEntries creates the record skeleton from the entries page. horses
// keep the order of the entries page.
func FromEntries(entries Entries) Record {
	r := Record{
		RaceName:   entries.Meta.RaceName,
		RaceGrade:  entries.Meta.RaceGrade,
		Distance:   entries.Meta.Distance,
		Surface:    entries.Meta.Surface,
		Meters:     entries.Meta.Meters,
		Weather:    entries.Meta.Weather,
		Going:      entries.Meta.Going,
		StartTime:  entries.Meta.StartTime,
		Pace:       entries.Meta.Pace,
		RaceDetail: entries.Meta.RaceDetail,
		Horses:     make([]Horse, 0, len(entries.Horses)),
		Pages:      map[PageType]PageStatus{},
	}
	seen := map[string]bool{}
	for _, h := range entries.Horses {
		if h.Number == "" || seen[h.Number] {
			continue
		}
		seen[h.Number] = true
		r.Horses = append(r.Horses, h)
	}
	r.FillDefaults()
	return r
}

// FillDefaults replaces nil collections with empty ones so consumers can
// range over every field without nil checks.
func (r *Record) FillDefaults() {
	if r.Horses == nil {
		r.Horses = []Horse{}
	}
	if r.Pages == nil {
		r.Pages = map[PageType]PageStatus{}
	}
	for i := range r.Horses {
		h := &r.Horses[i]
		if h.Training.Sessions == nil {
			h.Training.Sessions = []TrainingSession{}
		}
		if h.PastResults == nil {
			h.PastResults = []PastResult{}
		}
	}
	if r.PointInfo != nil && r.PointInfo.Points == nil {
		r.PointInfo.Points = []PointFragment{}
	}
}

// apply sets a page's value on every horse of the record. horses missing
// from the partial get the zero value so stale data from an earlier merge
// never survives a fresh fetch.
func apply[T any](r *Record, partial ByHorse[T], set func(h *Horse, v T)) {
	for i := range r.Horses {
		var v T
		if partial != nil {
			v = partial[r.Horses[i].Number]
		}
		set(&r.Horses[i], v)
	}
	r.FillDefaults()
}

func (r *Record) ApplyTraining(p ByHorse[Training]) {
	apply(r, p, func(h *Horse, v Training) { h.Training = v })
}

func (r *Record) ApplyPedigree(p ByHorse[Pedigree]) {
	apply(r, p, func(h *Horse, v Pedigree) { h.Pedigree = v })
}

func (r *Record) ApplyStableComments(p ByHorse[string]) {
	apply(r, p, func(h *Horse, v string) { h.StableComment = v })
}

func (r *Record) ApplyPreviousComments(p ByHorse[string]) {
	apply(r, p, func(h *Horse, v string) { h.PreviousComment = v })
}

func (r *Record) ApplyPastResults(p ByHorse[[]PastResult]) {
	apply(r, p, func(h *Horse, v []PastResult) { h.PastResults = v })
}

func (r *Record) ApplyPrediction(p ByHorse[Marks]) {
	apply(r, p, func(h *Horse, v Marks) { h.Marks = v })
}

func (r *Record) ApplyAIIndex(p ByHorse[AIIndex]) {
	apply(r, p, func(h *Horse, v AIIndex) { h.AIIndex = v })
}

// ApplyOdds only overwrites odds and popularity that the odds page knows,
// the entries page may already carry morning line odds.
func (r *Record) ApplyOdds(p ByHorse[Odds]) {
	for i := range r.Horses {
		h := &r.Horses[i]
		o, ok := p[h.Number]
		if !ok {
			continue
		}
		if o.Win != "" {
			h.Odds = o.Win
		}
		if o.Popularity != "" {
			h.Popularity = o.Popularity
		}
	}
}

func (r *Record) ApplyResult(p ResultPage) {
	for i := range r.Horses {
		h := &r.Horses[i]
		if f, ok := p.Finishes[h.Number]; ok {
			finish := f
			h.Finish = &finish
		} else {
			h.Finish = nil
		}
	}
	if len(p.Result.Order) == 0 && len(p.Payouts) == 0 {
		r.Result = nil
		r.Payouts = nil
		return
	}
	result := p.Result
	r.Result = &result
	r.Payouts = p.Payouts
}

func (r *Record) ApplyPoint(p PointPage) {
	if len(p.Info.Points) == 0 && p.Info.Title == "" && p.Info.Summary == "" {
		r.PointInfo = nil
		return
	}
	info := p.Info
	r.PointInfo = &info
	r.FillDefaults()
}

// CarryForward copies the fields owned by page from a previously persisted
// record, used when a page is skipped because it was fetched recently.
func (r *Record) CarryForward(prev *Record, page PageType) {
	if prev == nil {
		return
	}
	switch page {
	case PageTraining:
		r.ApplyTraining(collect(prev, func(h Horse) Training { return h.Training }))
	case PagePedigree:
		r.ApplyPedigree(collect(prev, func(h Horse) Pedigree { return h.Pedigree }))
	case PageStableComments:
		r.ApplyStableComments(collect(prev, func(h Horse) string { return h.StableComment }))
	case PagePreviousComments:
		r.ApplyPreviousComments(collect(prev, func(h Horse) string { return h.PreviousComment }))
	case PagePastResults:
		r.ApplyPastResults(collect(prev, func(h Horse) []PastResult { return h.PastResults }))
	case PagePrediction:
		r.ApplyPrediction(collect(prev, func(h Horse) Marks { return h.Marks }))
	case PageAIIndex:
		r.ApplyAIIndex(collect(prev, func(h Horse) AIIndex { return h.AIIndex }))
	case PageOdds:
		r.ApplyOdds(collect(prev, func(h Horse) Odds { return Odds{Win: h.Odds, Popularity: h.Popularity} }))
	case PagePoint:
		if prev.PointInfo != nil {
			r.ApplyPoint(PointPage{Info: *prev.PointInfo})
		}
	case PageResult:
		page := ResultPage{Finishes: ByHorse[Finish]{}, Payouts: prev.Payouts}
		if prev.Result != nil {
			page.Result = *prev.Result
		}
		for _, h := range prev.Horses {
			if h.Finish != nil {
				page.Finishes[h.Number] = *h.Finish
			}
		}
		r.ApplyResult(page)
	}
}

func collect[T any](r *Record, get func(h Horse) T) ByHorse[T] {
	out := ByHorse[T]{}
	for _, h := range r.Horses {
		out[h.Number] = get(h)
	}
	return out
}
