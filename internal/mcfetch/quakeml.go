// Public domain.

package mcfetch

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/soniakeys/magcompare/internal/quake"
)

// payload of an FDSN or ISC response with no events
var noEventsText = []byte("No events were found")

// QuakeML 1.2 BED, the parts that are used.  Element names are matched
// without namespace so both the FDSN and ISC flavors decode.
type qmlDoc struct {
	Events []qmlEvent `xml:"eventParameters>event"`
}

type qmlEvent struct {
	PublicID          string `xml:"publicID,attr"`
	PreferredOriginID string `xml:"preferredOriginID"`
	Descriptions      []struct {
		Text string `xml:"text"`
	} `xml:"description"`
	Origins    []qmlOrigin    `xml:"origin"`
	Magnitudes []qmlMagnitude `xml:"magnitude"`
}

type qmlOrigin struct {
	PublicID  string   `xml:"publicID,attr"`
	Time      string   `xml:"time>value"`
	Latitude  float64  `xml:"latitude>value"`
	Longitude float64  `xml:"longitude>value"`
	Depth     *float64 `xml:"depth>value"`
}

type qmlMagnitude struct {
	Mag  *float64 `xml:"mag>value"`
	Type string   `xml:"type"`
}

// ParseQuakeML decodes the events of a QuakeML document.  The origin of an
// event is its preferred origin, or the first one if none is preferred.
// Events without an origin and magnitudes without a value are dropped.  A
// "No events were found" payload gives ErrNoEvents.
func ParseQuakeML(b []byte) ([]quake.Event, error) {
	if bytes.Contains(b, noEventsText) {
		return nil, ErrNoEvents
	}
	var doc qmlDoc
	if err := xml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("quakeml: %w", err)
	}
	evs := make([]quake.Event, 0, len(doc.Events))
	for i := range doc.Events {
		qe := &doc.Events[i]
		o := qe.origin()
		if o == nil {
			continue
		}
		t, err := parseTime(o.Time)
		if err != nil {
			return nil, fmt.Errorf("quakeml event %s: %w", qe.PublicID, err)
		}
		e := quake.Event{
			ID: qe.PublicID,
			Origin: quake.Origin{
				Time:      t,
				Latitude:  o.Latitude,
				Longitude: o.Longitude,
				Depth:     quake.UnknownDepth(),
			},
		}
		if o.Depth != nil {
			e.Origin.Depth = *o.Depth
		}
		if len(qe.Descriptions) > 0 {
			e.Description = qe.Descriptions[0].Text
		}
		for _, m := range qe.Magnitudes {
			if m.Mag == nil {
				continue
			}
			e.Magnitudes = append(e.Magnitudes, quake.Magnitude{Type: m.Type, Value: *m.Mag})
		}
		evs = append(evs, e)
	}
	return evs, nil
}

func (e *qmlEvent) origin() *qmlOrigin {
	if len(e.Origins) == 0 {
		return nil
	}
	for i := range e.Origins {
		if e.Origins[i].PublicID == e.PreferredOriginID {
			return &e.Origins[i]
		}
	}
	return &e.Origins[0]
}

// ISC writes origin times without a zone.
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"}

func parseTime(s string) (t time.Time, err error) {
	for _, l := range timeLayouts {
		if t, err = time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return
}
