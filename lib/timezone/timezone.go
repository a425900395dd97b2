package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Asia/Tokyo")
	if err != nil {
		// tzdata is not always installed in slim containers, JST has no DST
		Location = time.FixedZone("JST", 9*60*60)
	}
}

// race days, cutoff hours and low traffic windows are all
// defined in japan time regardless of where the scraper runs.
func Now() time.Time {
	return time.Now().In(Location)
}

// Date returns midnight of the given calendar day in japan time.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, Location)
}

// ParseDate parses YYYYMMDD, YYYY-MM-DD or YYYY/MM/DD into midnight JST.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{"20060102", "2006-01-02", "2006/01/02"} {
		t, err := time.ParseInLocation(layout, s, Location)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, &time.ParseError{Layout: "20060102", Value: s, Message: ": expected YYYYMMDD"}
}

// FormatDate formats a time as YYYYMMDD in japan time.
func FormatDate(t time.Time) string {
	return t.In(Location).Format("20060102")
}
