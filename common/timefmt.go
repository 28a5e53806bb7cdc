package common

import "time"

const (
	// CADLayout is the close-approach feed timestamp format, e.g. "1900-Jan-01 12:00"
	CADLayout = "2006-Jan-02 15:04"
	// DisplayLayout is the human-readable calendar form used in structured output
	DisplayLayout = "2006-01-02 15:04"
	// CanonicalLayout is the native string form of a timestamp used in tabular output
	CanonicalLayout = "2006-01-02 15:04:05"
)

// CDToDatetime parses a close-approach date string (UTC)
func CDToDatetime(calendarDate string) (time.Time, error) {
	return time.ParseInLocation(CADLayout, calendarDate, time.UTC)
}

// DatetimeToStr formats a timestamp as "YYYY-MM-DD HH:MM"
func DatetimeToStr(t time.Time) (string, error) {
	if t.IsZero() {
		return "", NewError(ErrorTypeFormat, "cannot format zero time")
	}
	return t.UTC().Format(DisplayLayout), nil
}
