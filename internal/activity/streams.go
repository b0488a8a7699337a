package activity

// Stream kinds requested from the remote service.
const (
	StreamLatLng    = "latlng"
	StreamAltitude  = "altitude"
	StreamTime      = "time"
	StreamHeartRate = "heartrate"
	StreamCadence   = "cadence"
	StreamTemp      = "temp"
	StreamWatts     = "watts"
	StreamMoving    = "moving"
)

// StreamKinds lists every stream kind in request order.
var StreamKinds = []string{
	StreamLatLng,
	StreamAltitude,
	StreamTime,
	StreamHeartRate,
	StreamCadence,
	StreamTemp,
	StreamWatts,
	StreamMoving,
}

// LatLng is a position sample in degrees.
type LatLng struct {
	Lat float64
	Lng float64
}

// StreamBundle holds the sensor series of one activity.
// A nil element is a null sample; an absent kind is an empty slice.
// Series are independently sampled and may have different lengths.
type StreamBundle struct {
	LatLng    []*LatLng
	Time      []*float64 // seconds since start
	Altitude  []*float64
	HeartRate []*float64
	Cadence   []*float64
	Temp      []*float64
	Watts     []*float64
	Moving    []*bool
}

// At returns the element at i, or nil when the series is exhausted.
func At[T any](series []*T, i int) *T {
	if i < 0 || i >= len(series) {
		return nil
	}
	return series[i]
}
