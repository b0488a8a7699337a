// Package activity holds the domain model shared by the activity source,
// the track aligner and the export controller.
package activity

import (
	"fmt"
	"regexp"
	"time"
)

// Activity is one recorded session as listed by the remote service.
type Activity struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	SportType string    `json:"sport_type"`
	StartDate time.Time `json:"start_date"`
	UTCOffset float64   `json:"utc_offset"` // seconds
	Manual    bool      `json:"manual"`
}

// StartTime returns the absolute start used for track timestamps and file dates:
// the start date shifted by the activity's UTC offset, expressed in UTC.
func (a Activity) StartTime() time.Time {
	offset := time.Duration(a.UTCOffset * float64(time.Second))
	return a.StartDate.UTC().Add(offset)
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeName replaces every rune outside [a-zA-Z0-9_-] with an underscore.
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// ExportName derives the track filename for the activity.
// Format: {YYYY-MM-DD}_{id}_{sanitized name}_-_{sport type}{ext}
// The name is stable across runs and doubles as the "already exported" key.
func (a Activity) ExportName(ext string) string {
	return fmt.Sprintf("%s_%d_%s_-_%s%s",
		a.StartTime().Format("2006-01-02"),
		a.ID,
		SanitizeName(a.Name),
		a.SportType,
		ext,
	)
}
