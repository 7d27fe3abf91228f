// Public domain.

// Package mcfetch retrieves events from earthquake catalog web services.
//
// Large catalogs cannot be retrieved in one request.  Splitter divides the
// time window of a query into parts, growing the number of parts when the
// services refuse and retrying failed parts in halves, and hands each page
// of events to a sink as it arrives.
package mcfetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/soniakeys/magcompare/internal/quake"
)

var (
	// ErrNoEvents marks a valid response with no events.
	ErrNoEvents = errors.New("no events found")
	// ErrTransient marks a refusal the service expects to be retried.
	ErrTransient = errors.New("service temporarily unavailable")
)

// Query selects events by time, bounding box and magnitude.
type Query struct {
	Start, End                 time.Time
	MinLatitude, MaxLatitude   float64
	MinLongitude, MaxLongitude float64
	MinMagnitude, MaxMagnitude float64
}

// Split divides the time window into n consecutive parts of equal length.
// The last part ends exactly at q.End.
func (q Query) Split(n int) []Query {
	if n < 1 {
		n = 1
	}
	step := q.End.Sub(q.Start) / time.Duration(n)
	parts := make([]Query, n)
	t := q.Start
	for i := range parts {
		parts[i] = q
		parts[i].Start = t
		t = t.Add(step)
		if i == n-1 {
			t = q.End
		}
		parts[i].End = t
	}
	return parts
}

// Fetcher retrieves the events of one query.  A service response that
// holds no events gives ErrNoEvents.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) ([]quake.Event, error)
}

// NewHTTPClient returns a client for catalog services, which can be slow
// to produce large responses.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}
