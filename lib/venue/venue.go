// Package venue owns the static venue tables: canonical names, per
// category codes and the normalization of scraped venue strings.
package venue

import (
	"regexp"
	"sort"
	"strings"

	"keiba-scraper/lib/textutil"

	"github.com/antzucaro/matchr"
)

// Category is the racing organization a venue belongs to. central racing
// and regional racing use different page sets, url bases and codes.
type Category string

const (
	Central  Category = "central"
	Regional Category = "regional"
)

func (c Category) Valid() bool {
	return c == Central || c == Regional
}

type Venue struct {
	// Name is the canonical short name, it is what identifiers and lookups use.
	Name     string
	Japanese string
	Code     string
	Category Category
	aliases  []string
}

var venues = []Venue{
	{Name: "Sapporo", Japanese: "札幌", Code: "01", Category: Central},
	{Name: "Hakodate", Japanese: "函館", Code: "02", Category: Central},
	{Name: "Fukushima", Japanese: "福島", Code: "03", Category: Central},
	{Name: "Niigata", Japanese: "新潟", Code: "04", Category: Central},
	{Name: "Tokyo", Japanese: "東京", Code: "05", Category: Central, aliases: []string{"府中"}},
	{Name: "Nakayama", Japanese: "中山", Code: "06", Category: Central},
	{Name: "Chukyo", Japanese: "中京", Code: "07", Category: Central},
	{Name: "Kyoto", Japanese: "京都", Code: "08", Category: Central, aliases: []string{"淀"}},
	{Name: "Hanshin", Japanese: "阪神", Code: "09", Category: Central},
	{Name: "Kokura", Japanese: "小倉", Code: "10", Category: Central},

	{Name: "Monbetsu", Japanese: "門別", Code: "30", Category: Regional},
	{Name: "Morioka", Japanese: "盛岡", Code: "35", Category: Regional},
	{Name: "Mizusawa", Japanese: "水沢", Code: "36", Category: Regional},
	{Name: "Urawa", Japanese: "浦和", Code: "42", Category: Regional},
	{Name: "Funabashi", Japanese: "船橋", Code: "43", Category: Regional},
	{Name: "Ohi", Japanese: "大井", Code: "44", Category: Regional, aliases: []string{"oi", "tck", "東京シティ"}},
	{Name: "Kawasaki", Japanese: "川崎", Code: "45", Category: Regional},
	{Name: "Kanazawa", Japanese: "金沢", Code: "46", Category: Regional},
	{Name: "Kasamatsu", Japanese: "笠松", Code: "47", Category: Regional},
	{Name: "Nagoya", Japanese: "名古屋", Code: "48", Category: Regional},
	{Name: "Sonoda", Japanese: "園田", Code: "50", Category: Regional},
	{Name: "Himeji", Japanese: "姫路", Code: "51", Category: Regional},
	{Name: "Kochi", Japanese: "高知", Code: "54", Category: Regional},
	{Name: "Saga", Japanese: "佐賀", Code: "55", Category: Regional},
	{Name: "Obihiro", Japanese: "帯広", Code: "65", Category: Regional, aliases: []string{"ばんえい", "ばんえい帯広", "banei"}},
}

var byKey = map[string]*Venue{}
var byCode = map[string]*Venue{}
var byName = map[string]*Venue{}

func init() {
	for i := range venues {
		v := &venues[i]
		byName[v.Name] = v
		byCode[v.Code] = v
		byKey[textutil.NormalizeName(v.Name)] = v
		byKey[textutil.NormalizeName(v.Japanese)] = v
		for _, a := range v.aliases {
			byKey[textutil.NormalizeName(a)] = v
		}
	}
}

// All returns every known venue of a category, or of both when category is "".
func All(category Category) []Venue {
	var out []Venue
	for _, v := range venues {
		if category == "" || v.Category == category {
			out = append(out, v)
		}
	}
	return out
}

// Lookup resolves a canonical name.
func Lookup(name string) (Venue, bool) {
	v, ok := byName[name]
	if !ok {
		return Venue{}, false
	}
	return *v, true
}

// LookupCode resolves a two digit venue code, codes do not overlap
// between categories.
func LookupCode(code string) (Venue, bool) {
	v, ok := byCode[code]
	if !ok {
		return Venue{}, false
	}
	return *v, true
}

var (
	// "5回東京8日", "第3回 中山 2日目"
	meetingPrefix = regexp.MustCompile(`^第?\d+回\s*`)
	meetingSuffix = regexp.MustCompile(`\s*\d+日目?$`)
	parenthetical = regexp.MustCompile(`[(（][^)）]*[)）]`)
	// "東京11R", "Tokyo 11R"
	raceSuffix  = regexp.MustCompile(`\s*\d+\s*[rR]$`)
	decorations = []string{
		"競馬場", "競馬", "レース場", "racecourse", "race course", "keibajo", "keiba",
	}
)

func stripDecorations(s string) string {
	s = parenthetical.ReplaceAllString(s, "")
	s = meetingPrefix.ReplaceAllString(s, "")
	s = meetingSuffix.ReplaceAllString(s, "")
	s = raceSuffix.ReplaceAllString(s, "")
	lower := strings.ToLower(s)
	for _, d := range decorations {
		if strings.HasSuffix(lower, d) {
			s = s[:len(s)-len(d)]
			lower = lower[:len(lower)-len(d)]
		}
	}
	return strings.TrimSpace(s)
}

// Normalize maps a raw scraped venue string to its canonical short name.
// it only strips known decorations and never guesses: strings that do not
// resolve exactly (schedule headers, event names) return false.
// Normalize(Normalize(x)) == Normalize(x) for every x.
func Normalize(raw string) (string, bool) {
	s := textutil.Clean(raw)
	if s == "" {
		return "", false
	}
	if v, ok := byKey[textutil.NormalizeName(s)]; ok {
		return v.Name, true
	}
	stripped := stripDecorations(s)
	if stripped == "" || stripped == s {
		return "", false
	}
	if v, ok := byKey[textutil.NormalizeName(stripped)]; ok {
		return v.Name, true
	}
	return "", false
}

// Resolve normalizes raw and returns the full venue.
func Resolve(raw string) (Venue, bool) {
	name, ok := Normalize(raw)
	if !ok {
		return Venue{}, false
	}
	return Lookup(name)
}

// Suggest returns the canonical names most similar to raw, best first.
// it is only meant for error messages, never for resolving a value.
func Suggest(raw string, limit int) []string {
	target := textutil.NormalizeName(raw)
	if target == "" {
		return nil
	}

	type scored struct {
		name  string
		score float64
	}
	best := map[string]float64{}
	for key, v := range byKey {
		score := matchr.JaroWinkler(target, key, false)
		if score > best[v.Name] {
			best[v.Name] = score
		}
	}

	var list []scored
	for name, score := range best {
		if score >= 0.7 {
			list = append(list, scored{name: name, score: score})
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].score == list[j].score {
			return list[i].name < list[j].name
		}
		return list[i].score > list[j].score
	})

	var out []string
	for i := 0; i < len(list) && i < limit; i++ {
		out = append(out, list[i].name)
	}
	return out
}
