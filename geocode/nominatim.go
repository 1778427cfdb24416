package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb"
)

// NominatimGeocoder resolves addresses against a Nominatim-compatible
// endpoint (the public OSM instance by default, self-hosted in production).
type NominatimGeocoder struct {
	baseURL    string
	httpClient *http.Client
}

func NewNominatimGeocoder(baseURL string) *NominatimGeocoder {
	return &NominatimGeocoder{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (g *NominatimGeocoder) ResolveAddress(ctx context.Context, address string) (orb.Point, error) {
	query := url.Values{}
	query.Set("q", address)
	query.Set("format", "json")
	query.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/search?"+query.Encode(), nil)
	if err != nil {
		return orb.Point{}, fmt.Errorf("failed to build geocoding request: %w", err)
	}
	req.Header.Set("User-Agent", "fvm")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return orb.Point{}, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return orb.Point{}, fmt.Errorf("geocoding request returned status %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return orb.Point{}, fmt.Errorf("failed to decode geocoding response: %w", err)
	}
	if len(results) == 0 {
		return orb.Point{}, fmt.Errorf("%q: %w", address, ErrNotFound)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid latitude %q in geocoding response: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid longitude %q in geocoding response: %w", results[0].Lon, err)
	}

	return orb.Point{lon, lat}, nil
}
