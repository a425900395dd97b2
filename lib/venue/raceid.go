package venue

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"keiba-scraper/lib/timezone"
)

// RaceIDLength is the width of a race identifier: YYYYMMDD + venue code + race number.
const RaceIDLength = 12

var raceIDRegex = regexp.MustCompile(`^(\d{8})(\d{2})(\d{2})$`)

// RaceID is the parsed form of a race identifier.
type RaceID struct {
	Date   time.Time
	Venue  Venue
	Number int
}

func (r RaceID) String() string {
	return FormatRaceID(r.Date, r.Venue.Code, r.Number)
}

// FormatRaceID renders an identifier from its parts, it does not
// validate the venue code.
func FormatRaceID(date time.Time, code string, number int) string {
	return fmt.Sprintf("%s%s%02d", timezone.FormatDate(date), code, number)
}

// BuildRaceID builds the identifier for a race from a raw venue string.
// it is a pure function of its inputs.
func BuildRaceID(date time.Time, rawVenue string, number int) (string, error) {
	if number < 1 || number > 99 {
		return "", fmt.Errorf("race number %d out of range", number)
	}
	v, ok := Resolve(rawVenue)
	if !ok {
		return "", &UnknownVenueError{Raw: rawVenue}
	}
	return FormatRaceID(date, v.Code, number), nil
}

// ParseRaceID validates and splits an identifier.
func ParseRaceID(id string) (RaceID, error) {
	m := raceIDRegex.FindStringSubmatch(id)
	if m == nil {
		return RaceID{}, fmt.Errorf("invalid race id %q: expected %d digits", id, RaceIDLength)
	}
	date, err := timezone.ParseDate(m[1])
	if err != nil {
		return RaceID{}, fmt.Errorf("invalid race id %q: %w", id, err)
	}
	v, ok := LookupCode(m[2])
	if !ok {
		return RaceID{}, fmt.Errorf("invalid race id %q: unknown venue code %s", id, m[2])
	}
	number, _ := strconv.Atoi(m[3])
	if number < 1 {
		return RaceID{}, fmt.Errorf("invalid race id %q: race number must be positive", id)
	}
	return RaceID{Date: date, Venue: v, Number: number}, nil
}

type UnknownVenueError struct {
	Raw string
}

func (e *UnknownVenueError) Error() string {
	suggestions := Suggest(e.Raw, 2)
	if len(suggestions) == 0 {
		return fmt.Sprintf("unknown venue %q", e.Raw)
	}
	return fmt.Sprintf("unknown venue %q (did you mean %v?)", e.Raw, suggestions)
}
