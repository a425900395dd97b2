package racestore

import (
	"encoding/json"
	"strconv"
	"time"

	"keiba-scraper/lib/race"
	"keiba-scraper/lib/venue"
)

var raceHeader = []string{
	"race_id", "race_key", "date", "venue", "category", "race_number",
	"race_name", "race_grade", "distance", "surface", "meters", "weather",
	"going", "start_time", "pace", "race_detail", "scraped_at", "json_path",
	"result_json", "payouts_json", "point_info_json",
}

var horseHeader = []string{
	"race_id", "number", "frame", "name", "horse_id", "sex_age", "jockey",
	"weight", "body_weight", "trainer", "odds", "popularity", "scratched",
	"sire", "dam", "damsire", "stable_comment", "previous_comment",
	"individual_comment", "finish_position", "marks_json", "ai_index_json",
	"training_json", "past_results_json", "finish_json",
}

// encode renders v as compact json, nil or empty values as "".
func encode(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	switch string(raw) {
	case "null", "{}", "[]":
		return ""
	}
	return string(raw)
}

func decode[T any](raw string, out *T) {
	if raw == "" {
		return
	}
	_ = json.Unmarshal([]byte(raw), out)
}

func raceRow(r race.Record, jsonPath string) []string {
	scraped := ""
	if !r.ScrapedAt.IsZero() {
		scraped = r.ScrapedAt.Format(time.RFC3339)
	}
	meters := ""
	if r.Meters > 0 {
		meters = strconv.Itoa(r.Meters)
	}
	return []string{
		r.RaceID, r.RaceKey, r.Date, r.Venue, string(r.Category), strconv.Itoa(r.RaceNumber),
		r.RaceName, r.RaceGrade, r.Distance, r.Surface, meters, r.Weather,
		r.Going, r.StartTime, r.Pace, r.RaceDetail, scraped, jsonPath,
		encode(r.Result), encode(r.Payouts), encode(r.PointInfo),
	}
}

func horseRow(raceID string, h race.Horse) []string {
	finish := ""
	if h.Finish != nil {
		finish = h.Finish.Position
	}
	return []string{
		raceID, h.Number, h.Frame, h.Name, h.HorseID, h.SexAge, h.Jockey,
		h.Weight, h.BodyWeight, h.Trainer, h.Odds, h.Popularity, strconv.FormatBool(h.Scratched),
		h.Pedigree.Sire, h.Pedigree.Dam, h.Pedigree.DamSire, h.StableComment, h.PreviousComment,
		h.IndividualComment, finish, encode(h.Marks), encode(h.AIIndex),
		encode(h.Training), encode(h.PastResults), encode(h.Finish),
	}
}

// fields maps a row onto its header names.
func fields(header, row []string) map[string]string {
	out := make(map[string]string, len(header))
	for i, name := range header {
		if i < len(row) {
			out[name] = row[i]
		}
	}
	return out
}

func recordFromRow(row []string) race.Record {
	f := fields(raceHeader, row)
	number, _ := strconv.Atoi(f["race_number"])
	meters, _ := strconv.Atoi(f["meters"])
	scraped, _ := time.Parse(time.RFC3339, f["scraped_at"])
	r := race.Record{
		RaceID:     f["race_id"],
		RaceKey:    f["race_key"],
		Date:       f["date"],
		Venue:      f["venue"],
		Category:   venue.Category(f["category"]),
		RaceNumber: number,
		RaceName:   f["race_name"],
		RaceGrade:  f["race_grade"],
		Distance:   f["distance"],
		Surface:    f["surface"],
		Meters:     meters,
		Weather:    f["weather"],
		Going:      f["going"],
		StartTime:  f["start_time"],
		Pace:       f["pace"],
		RaceDetail: f["race_detail"],
		ScrapedAt:  scraped,
	}
	decode(f["result_json"], &r.Result)
	decode(f["payouts_json"], &r.Payouts)
	decode(f["point_info_json"], &r.PointInfo)
	return r
}

func horseFromRow(row []string) race.Horse {
	f := fields(horseHeader, row)
	scratched, _ := strconv.ParseBool(f["scratched"])
	h := race.Horse{
		Number:            f["number"],
		Frame:             f["frame"],
		Name:              f["name"],
		HorseID:           f["horse_id"],
		SexAge:            f["sex_age"],
		Jockey:            f["jockey"],
		Weight:            f["weight"],
		BodyWeight:        f["body_weight"],
		Trainer:           f["trainer"],
		Odds:              f["odds"],
		Popularity:        f["popularity"],
		Scratched:         scratched,
		StableComment:     f["stable_comment"],
		PreviousComment:   f["previous_comment"],
		IndividualComment: f["individual_comment"],
		Pedigree: race.Pedigree{
			Sire:    f["sire"],
			Dam:     f["dam"],
			DamSire: f["damsire"],
		},
	}
	decode(f["marks_json"], &h.Marks)
	decode(f["ai_index_json"], &h.AIIndex)
	decode(f["training_json"], &h.Training)
	decode(f["past_results_json"], &h.PastResults)
	decode(f["finish_json"], &h.Finish)
	return h
}
