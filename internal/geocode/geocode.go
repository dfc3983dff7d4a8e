// Package geocode resolves postal addresses to coordinates through a
// nominatim-style HTTP provider.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/bazaar-labs/bazaar-api/internal/obs"
	"github.com/bazaar-labs/bazaar-api/internal/resilience"
)

// ErrNoMatch is returned when the provider finds no location for the query.
var ErrNoMatch = errors.New("geocode: no match for address")

// Query is the free-form address to resolve.
type Query struct {
	Line1      string
	City       string
	StateCode  string
	PostalCode string
	Country    string
}

func (q Query) text() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{q.Line1, q.City, q.StateCode, q.PostalCode, q.Country} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// Geocoder resolves an address to a point.
type Geocoder interface {
	Locate(ctx context.Context, q Query) (orb.Point, error)
}

// Client calls an external geocoding endpoint. Failures are wrapped so
// callers can degrade to unset coordinates.
type Client struct {
	BaseURL string
	HTTP    resilience.HTTPClient
}

type providerHit struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Locate queries the provider and returns the best match.
func (c Client) Locate(ctx context.Context, q Query) (orb.Point, error) {
	text := q.text()
	if text == "" {
		return orb.Point{}, ErrNoMatch
	}
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/search?format=json&limit=1&q=" + url.QueryEscape(text)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return orb.Point{}, fmt.Errorf("geocode: build request: %w", err)
	}
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return orb.Point{}, fmt.Errorf("geocode: provider call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return orb.Point{}, fmt.Errorf("geocode: provider status %d", resp.StatusCode)
	}
	var hits []providerHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return orb.Point{}, fmt.Errorf("geocode: decode response: %w", err)
	}
	if len(hits) == 0 {
		return orb.Point{}, ErrNoMatch
	}
	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("geocode: bad latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("geocode: bad longitude: %w", err)
	}
	return orb.Point{lon, lat}, nil
}

// Metered wraps a Geocoder and counts lookup outcomes.
type Metered struct {
	Next Geocoder
}

func (m Metered) Locate(ctx context.Context, q Query) (orb.Point, error) {
	p, err := m.Next.Locate(ctx, q)
	if obs.GeocodeTotal != nil {
		switch {
		case err == nil:
			obs.GeocodeTotal.WithLabelValues("ok").Inc()
		case errors.Is(err, ErrNoMatch):
			obs.GeocodeTotal.WithLabelValues("no_match").Inc()
		default:
			obs.GeocodeTotal.WithLabelValues("error").Inc()
		}
	}
	return p, err
}

// Static returns fixed coordinates keyed by postal code and is useful for
// tests and development.
type Static struct {
	ByPostalCode map[string]orb.Point
}

// Locate resolves the query from the static table.
func (s Static) Locate(_ context.Context, q Query) (orb.Point, error) {
	if p, ok := s.ByPostalCode[strings.TrimSpace(q.PostalCode)]; ok {
		return p, nil
	}
	return orb.Point{}, ErrNoMatch
}
