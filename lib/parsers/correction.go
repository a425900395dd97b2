package parsers

import (
	"math"
	"strings"

	"keiba-scraper/lib/textutil"
)

type facilityCourse struct {
	facility string
	course   string
}

// trainingCorrection holds seconds per 800m to add to a workout time so
// that it is comparable with the ritto hill course. values are empirical.
var trainingCorrection = map[facilityCourse]float64{
	{"栗東", "坂路"}: 0,
	{"美浦", "坂路"}: -0.6,
	{"栗東", "CW"}: 0.4,
	{"栗東", "DP"}: 0.9,
	{"栗東", "芝"}:  0.7,
	{"栗東", "E"}:  -0.2,
	{"美浦", "W"}:  0.2,
	{"美浦", "南W"}: 0.2,
	{"美浦", "P"}:  0.8,
	{"美浦", "南P"}: 0.8,
	{"美浦", "芝"}:  0.5,
	{"美浦", "ダ"}:  -0.4,
}

var courseAliases = map[string]string{
	"cw":  "CW",
	"ウッド": "CW",
	"w":   "W",
	"南w":  "南W",
	"dp":  "DP",
	"ポリ":  "DP",
	"p":   "P",
	"南p":  "南P",
	"南ポリ": "南P",
	"坂":   "坂路",
	"坂路":  "坂路",
	"芝":   "芝",
	"南芝":  "芝",
	"ダート": "ダ",
	"ダ":   "ダ",
	"南ダ":  "ダ",
	"e":   "E",
}

// splitCourse separates a printed course label such as "美浦南W",
// "栗CW" or "坂路" into the facility (when present) and the course key
// of the correction table.
func splitCourse(raw string) (facility, course string) {
	s := strings.TrimSpace(textutil.Fold(raw))
	for _, prefix := range []struct{ label, facility string }{
		{"美浦", "美浦"},
		{"栗東", "栗東"},
		{"美", "美浦"},
		{"栗", "栗東"},
	} {
		if strings.HasPrefix(s, prefix.label) {
			facility = prefix.facility
			s = strings.TrimPrefix(s, prefix.label)
			break
		}
	}
	if alias, ok := courseAliases[strings.ToLower(s)]; ok {
		return facility, alias
	}
	return facility, s
}

// convertSplits applies the correction for (facility, course) scaled by
// the distance of each split. splits are cumulative times of the last
// N furlongs, the first split covers the longest distance. without a
// table entry the seconds are returned unchanged.
func convertSplits(facility, course string, seconds []float64) []float64 {
	offset, ok := trainingCorrection[facilityCourse{facility, course}]
	out := make([]float64, len(seconds))
	for i, s := range seconds {
		if !ok {
			out[i] = s
			continue
		}
		meters := float64((len(seconds) - i) * 200)
		out[i] = math.Round((s+offset*meters/800)*10) / 10
	}
	return out
}
