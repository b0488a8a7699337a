package track

import (
	"bufio"
	"encoding/xml"
	"io"
	"iter"
	"strconv"
)

const gpxHeader = `<?xml version="1.0" encoding="UTF-8"?>
<gpx creator="stravagpx" version="1.1"` +
	` xmlns="http://www.topografix.com/GPX/1/1"` +
	` xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"` +
	` xmlns:gpxtpx="http://www.garmin.com/xmlschemas/TrackPointExtension/v1"` +
	` xmlns:gpxx="http://www.garmin.com/xmlschemas/GpxExtensions/v3"` +
	` xsi:schemaLocation="http://www.topografix.com/GPX/1/1 http://www.topografix.com/GPX/1/1/gpx.xsd` +
	` http://www.garmin.com/xmlschemas/GpxExtensions/v3 http://www.garmin.com/xmlschemas/GpxExtensionsv3.xsd` +
	` http://www.garmin.com/xmlschemas/TrackPointExtension/v1 http://www.garmin.com/xmlschemas/TrackPointExtensionv1.xsd">
`

// Write renders a GPX document for one activity to w, one point at a time.
// The name appears in both the metadata and the track element.
func Write(w io.Writer, name string, points iter.Seq[Point]) error {
	bw := bufio.NewWriter(w)
	gw := &gpxWriter{w: bw}

	gw.str(gpxHeader)
	gw.str("  <metadata>\n    <name>")
	gw.escaped(name)
	gw.str("</name>\n  </metadata>\n  <trk>\n    <name>")
	gw.escaped(name)
	gw.str("</name>\n    <trkseg>\n")

	for p := range points {
		gw.point(p)
		if gw.err != nil {
			return gw.err
		}
	}

	gw.str("    </trkseg>\n  </trk>\n</gpx>\n")
	if gw.err != nil {
		return gw.err
	}
	return bw.Flush()
}

// gpxWriter keeps the first write error so the rendering code reads linearly.
type gpxWriter struct {
	w   *bufio.Writer
	err error
}

func (g *gpxWriter) str(s string) {
	if g.err != nil {
		return
	}
	_, g.err = g.w.WriteString(s)
}

func (g *gpxWriter) escaped(s string) {
	if g.err != nil {
		return
	}
	g.err = xml.EscapeText(g.w, []byte(s))
}

func (g *gpxWriter) point(p Point) {
	g.str(`      <trkpt lat="`)
	g.str(formatNumber(p.Lat))
	g.str(`" lon="`)
	g.str(formatNumber(p.Lon))
	g.str("\">\n")

	if p.Elevation != nil {
		g.str("        <ele>" + formatNumber(*p.Elevation) + "</ele>\n")
	}
	if !p.Time.IsZero() {
		g.str("        <time>" + p.Time.UTC().Format(TimeFormat) + "</time>\n")
	}

	if p.HeartRate != nil || p.Cadence != nil || p.Temperature != nil || p.Power != nil {
		g.str("        <extensions>\n          <gpxtpx:TrackPointExtension>\n")
		g.ext("hr", p.HeartRate)
		g.ext("cad", p.Cadence)
		g.ext("atemp", p.Temperature)
		g.ext("power", p.Power)
		g.str("          </gpxtpx:TrackPointExtension>\n        </extensions>\n")
	}

	g.str("      </trkpt>\n")
}

func (g *gpxWriter) ext(tag string, v *float64) {
	if v == nil {
		return
	}
	g.str("            <gpxtpx:" + tag + ">" + formatNumber(*v) + "</gpxtpx:" + tag + ">\n")
}

// formatNumber renders v in its shortest exact form: 150, 37.7749, -0.5.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
