package strava

import (
	"encoding/json"
	"fmt"

	"github.com/hpungsan/stravagpx/internal/activity"
)

// rawStream is one element of the streams response.
type rawStream struct {
	Type         string          `json:"type"`
	Data         json.RawMessage `json:"data"`
	SeriesType   string          `json:"series_type"`
	OriginalSize int             `json:"original_size"`
	Resolution   string          `json:"resolution"`
}

// decodeStreams maps the list of typed streams onto a bundle.
// Unknown stream types are ignored; kinds that are not returned stay empty.
func decodeStreams(raw []rawStream) (*activity.StreamBundle, error) {
	b := &activity.StreamBundle{}
	for _, s := range raw {
		var err error
		switch s.Type {
		case activity.StreamLatLng:
			b.LatLng, err = decodeLatLng(s.Data)
		case activity.StreamTime:
			err = json.Unmarshal(s.Data, &b.Time)
		case activity.StreamAltitude:
			err = json.Unmarshal(s.Data, &b.Altitude)
		case activity.StreamHeartRate:
			err = json.Unmarshal(s.Data, &b.HeartRate)
		case activity.StreamCadence:
			err = json.Unmarshal(s.Data, &b.Cadence)
		case activity.StreamTemp:
			err = json.Unmarshal(s.Data, &b.Temp)
		case activity.StreamWatts:
			err = json.Unmarshal(s.Data, &b.Watts)
		case activity.StreamMoving:
			err = json.Unmarshal(s.Data, &b.Moving)
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s stream: %w", s.Type, err)
		}
	}
	return b, nil
}

// decodeLatLng decodes [[lat, lng], null, ...]. Entries that are null or not
// a pair decode to nil.
func decodeLatLng(data json.RawMessage) ([]*activity.LatLng, error) {
	var pairs [][]float64
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, err
	}

	out := make([]*activity.LatLng, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			continue
		}
		out[i] = &activity.LatLng{Lat: p[0], Lng: p[1]}
	}
	return out, nil
}
