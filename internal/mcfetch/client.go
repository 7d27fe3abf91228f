// Public domain.

package mcfetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/soniakeys/magcompare/internal/quake"
)

// FDSNClient queries an FDSN event web service such as
// https://service.geonet.org.nz/fdsnws/event/1/.
type FDSNClient struct {
	Service string // base URL, the query method is appended

	// The USGS service takes longitudes east of the antimeridian as
	// continuing past 180.  LongitudeWrap adds 360 to the eastern bound.
	LongitudeWrap bool

	Client    *http.Client
	UserAgent string
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// URL returns the request URL of q.
func (c *FDSNClient) URL(q Query) string {
	maxLon := q.MaxLongitude
	if c.LongitudeWrap {
		maxLon += 360
	}
	v := url.Values{}
	v.Set("minmagnitude", ff(q.MinMagnitude))
	v.Set("maxmagnitude", ff(q.MaxMagnitude))
	v.Set("minlatitude", ff(q.MinLatitude))
	v.Set("maxlatitude", ff(q.MaxLatitude))
	v.Set("minlongitude", ff(q.MinLongitude))
	v.Set("maxlongitude", ff(maxLon))
	v.Set("starttime", q.Start.UTC().Format("2006-01-02T15:04:05"))
	v.Set("endtime", q.End.UTC().Format("2006-01-02T15:04:05"))
	base := c.Service
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + "query?" + v.Encode()
}

func (c *FDSNClient) Fetch(ctx context.Context, q Query) ([]quake.Event, error) {
	b, err := get(ctx, c.Client, c.UserAgent, c.URL(q))
	if err != nil {
		return nil, err
	}
	return ParseQuakeML(b)
}

// ISCClient queries the ISC bulletin for CATQuakeML.
type ISCClient struct {
	Service   string // defaults to ISCService
	Client    *http.Client
	UserAgent string
}

const ISCService = "http://www.isc.ac.uk/cgi-bin/web-db-v4"

// payload of an ISC refusal under load
var iscBusyText = []byte("Sorry, but your request cannot be processed at the present time.")

func (c *ISCClient) URL(q Query) string {
	v := url.Values{}
	v.Set("out_format", "CATQuakeML")
	v.Set("request", "COMPREHENSIVE")
	v.Set("searchshape", "RECT")
	v.Set("bot_lat", ff(q.MinLatitude))
	v.Set("top_lat", ff(q.MaxLatitude))
	v.Set("left_lon", ff(q.MinLongitude))
	v.Set("right_lon", ff(q.MaxLongitude))
	v.Set("min_mag", ff(q.MinMagnitude))
	v.Set("max_mag", ff(q.MaxMagnitude))
	v.Set("req_mag_type", "Any")
	for _, t := range []struct {
		prefix string
		ts     string
	}{
		{"start", q.Start.UTC().Format("2006 1 2 15:04:05")},
		{"end", q.End.UTC().Format("2006 1 2 15:04:05")},
	} {
		f := strings.Fields(t.ts)
		v.Set(t.prefix+"_year", f[0])
		v.Set(t.prefix+"_month", f[1])
		v.Set(t.prefix+"_day", f[2])
		v.Set(t.prefix+"_time", f[3])
	}
	s := c.Service
	if s == "" {
		s = ISCService
	}
	return s + "?" + v.Encode()
}

func (c *ISCClient) Fetch(ctx context.Context, q Query) ([]quake.Event, error) {
	b, err := get(ctx, c.Client, c.UserAgent, c.URL(q))
	if err != nil {
		return nil, err
	}
	if bytes.Contains(b, iscBusyText) {
		return nil, fmt.Errorf("isc: %w", ErrTransient)
	}
	return ParseQuakeML(b)
}

// get returns the body of a successful response.  No content and not found
// give ErrNoEvents, throttling and server errors give ErrTransient.
func get(ctx context.Context, client *http.Client, ua, u string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound:
		return nil, ErrNoEvents
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%s: %w", resp.Status, ErrTransient)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return io.ReadAll(resp.Body)
}
