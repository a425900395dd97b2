package textutil

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

var whitespaceRegex = regexp.MustCompile(`[\s\x{3000}]+`)

// NormalizeName lowercases a name and removes all whitespace so it can be
// used as a lookup key.
func NormalizeName(name string) string {
	name = Fold(name)
	name = strings.ToLower(name)
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// Fold converts full-width ascii (digits, latin letters, punctuation) to
// their half-width forms, the site mixes both freely.
func Fold(s string) string {
	return width.Fold.String(s)
}

// Clean folds width, collapses runs of whitespace (including the
// ideographic space) into one ascii space and trims the result.
func Clean(s string) string {
	s = Fold(s)
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

var intRegex = regexp.MustCompile(`-?\d+`)
var floatRegex = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// FirstInt extracts the first integer in s.
func FirstInt(s string) (int, bool) {
	m := intRegex.FindString(Fold(s))
	if m == "" {
		return 0, false
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FirstFloat extracts the first decimal number in s.
func FirstFloat(s string) (float64, bool) {
	m := floatRegex.FindString(Fold(s))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var clockRegex = regexp.MustCompile(`^(\d+):(\d{1,2}(?:\.\d+)?)$`)
var secondsRegex = regexp.MustCompile(`^\d+(?:\.\d+)?$`)

// ParseSeconds parses "1:05.3", "1.05.3" (minute.second.tenth as printed
// on result pages) or "52.3" into seconds.
func ParseSeconds(s string) (float64, bool) {
	s = strings.TrimSpace(Fold(s))
	if s == "" {
		return 0, false
	}
	if m := clockRegex.FindStringSubmatch(s); m != nil {
		min, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		sec, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return 0, false
		}
		return float64(min)*60 + sec, true
	}
	if parts := strings.Split(s, "."); len(parts) == 3 {
		min, err1 := strconv.Atoi(parts[0])
		sec, err2 := strconv.ParseFloat(parts[1]+"."+parts[2], 64)
		if err1 == nil && err2 == nil {
			return float64(min)*60 + sec, true
		}
		return 0, false
	}
	if secondsRegex.MatchString(s) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}
