// Package track turns stream bundles into ordered track points and writes them as GPX.
package track

import (
	"iter"
	"time"

	"github.com/hpungsan/stravagpx/internal/activity"
)

// TimeFormat is the rendering of point timestamps.
const TimeFormat = "2006-01-02T15:04:05Z"

// MinPoints is the number of positioned points below which an activity has no usable track.
const MinPoints = 2

// Point is one track point. Lat/Lon are always set; every other field may be absent.
// A zero Time means the time series had no entry for this index.
type Point struct {
	Lat         float64
	Lon         float64
	Time        time.Time
	Elevation   *float64
	HeartRate   *float64
	Cadence     *float64
	Temperature *float64
	Power       *float64
}

// Track is the aligned sequence of points for one activity.
type Track struct {
	points []Point
}

// Align merges the series of bundle into one ordered sequence of points.
//
// Alignment is by index, not by time. The position series is authoritative:
// it fixes the number of candidate indices, shorter series read as missing past
// their end, and longer series are truncated. Indices with a null position are
// skipped. Sensor readings of zero are dropped along with nulls, so a genuine
// 0 W or 0 °C sample cannot be told apart from a missing one.
func Align(bundle *activity.StreamBundle, start time.Time) *Track {
	if bundle == nil {
		return &Track{}
	}

	start = start.UTC()
	points := make([]Point, 0, len(bundle.LatLng))
	for i, pos := range bundle.LatLng {
		if pos == nil {
			continue
		}

		p := Point{
			Lat:         pos.Lat,
			Lon:         pos.Lng,
			Elevation:   activity.At(bundle.Altitude, i),
			HeartRate:   truthy(activity.At(bundle.HeartRate, i)),
			Cadence:     truthy(activity.At(bundle.Cadence, i)),
			Temperature: truthy(activity.At(bundle.Temp, i)),
			Power:       truthy(activity.At(bundle.Watts, i)),
		}
		if offset := activity.At(bundle.Time, i); offset != nil {
			p.Time = start.Add(time.Duration(*offset) * time.Second)
		}
		points = append(points, p)
	}

	return &Track{points: points}
}

// Empty reports whether the track has too few points to be worth writing.
func (t *Track) Empty() bool {
	return len(t.points) < MinPoints
}

// Len returns the number of points.
func (t *Track) Len() int {
	return len(t.points)
}

// Points yields the points in order.
func (t *Track) Points() iter.Seq[Point] {
	return func(yield func(Point) bool) {
		for _, p := range t.points {
			if !yield(p) {
				return
			}
		}
	}
}

// truthy returns nil for missing or zero readings.
func truthy(v *float64) *float64 {
	if v == nil || *v == 0 {
		return nil
	}
	return v
}
