package venue

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"keiba-scraper/lib/textutil"
)

// Meeting is the "N回 ... M日" numbering of a central racing day.
type Meeting struct {
	Kai   int
	Nichi int
}

func (m Meeting) Valid() bool {
	return m.Kai > 0 && m.Nichi > 0
}

var meetingRegex = regexp.MustCompile(`(\d+)\s*回\s*\D*?\s*(\d+)\s*日`)

// ParseMeeting reads a meeting from headers such as "5回東京8日目".
func ParseMeeting(s string) (Meeting, bool) {
	m := meetingRegex.FindStringSubmatch(textutil.Fold(s))
	if m == nil {
		return Meeting{}, false
	}
	kai, _ := strconv.Atoi(m[1])
	nichi, _ := strconv.Atoi(m[2])
	meeting := Meeting{Kai: kai, Nichi: nichi}
	return meeting, meeting.Valid()
}

// NetkeibaKey builds the race_id query parameter netkeiba uses in its
// urls. central keys are year + venue + meeting + race, regional keys are
// year + venue + month/day + race.
func NetkeibaKey(date time.Time, v Venue, meeting Meeting, number int) (string, error) {
	if number < 1 || number > 99 {
		return "", fmt.Errorf("race number %d out of range", number)
	}
	switch v.Category {
	case Central:
		if !meeting.Valid() {
			return "", fmt.Errorf("central race key for %s needs the meeting numbers", v.Name)
		}
		return fmt.Sprintf("%04d%s%02d%02d%02d", date.Year(), v.Code, meeting.Kai, meeting.Nichi, number), nil
	case Regional:
		return fmt.Sprintf("%04d%s%02d%02d%02d", date.Year(), v.Code, int(date.Month()), date.Day(), number), nil
	}
	return "", fmt.Errorf("unknown category %q", v.Category)
}
