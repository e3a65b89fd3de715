// README: Geocoding for the rider's address box: place text search and reverse lookup on Google Maps.
package maps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"github.com/tejith7/project-bolt/internal/types"
)

var ErrNoResults = errors.New("no matching places")

const (
	maxSearchResults = 5
	biasRadiusMeters = 20000
)

// placesClient is the part of *maps.Client the geocoder uses.
type placesClient interface {
	TextSearch(ctx context.Context, r *maps.TextSearchRequest) (maps.PlacesSearchResponse, error)
	ReverseGeocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// Geocoder turns free text into locations and coordinates into addresses.
type Geocoder struct {
	client placesClient
}

// NewGeocoder creates a Geocoder with the given API Key.
func NewGeocoder(apiKey string) (*Geocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Geocoder{client: client}, nil
}

// Search returns up to five places matching query. When near is set results
// are biased towards it.
func (g *Geocoder) Search(ctx context.Context, query string, near *types.Point) ([]types.Location, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoResults
	}
	r := &maps.TextSearchRequest{Query: query}
	if near != nil && near.Valid() {
		r.Location = &maps.LatLng{Lat: near.Lat, Lng: near.Lng}
		r.Radius = biasRadiusMeters
	}

	resp, err := g.client.TextSearch(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("places api error: %w", err)
	}

	var results []types.Location
	seen := make(map[string]bool)
	for _, p := range resp.Results {
		if seen[p.PlaceID] {
			continue
		}
		seen[p.PlaceID] = true
		results = append(results, types.Location{
			Address: placeLabel(p.Name, p.FormattedAddress),
			Lat:     p.Geometry.Location.Lat,
			Lng:     p.Geometry.Location.Lng,
		})
		if len(results) >= maxSearchResults {
			break
		}
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}
	return results, nil
}

// Reverse resolves a coordinate to its best street address.
func (g *Geocoder) Reverse(ctx context.Context, p types.Point) (types.Location, error) {
	if !p.Valid() {
		return types.Location{}, fmt.Errorf("%w: invalid coordinate", ErrNoResults)
	}
	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: p.Lat, Lng: p.Lng},
	})
	if err != nil {
		return types.Location{}, fmt.Errorf("geocoding api error: %w", err)
	}
	if len(results) == 0 {
		return types.Location{}, ErrNoResults
	}
	return types.Location{Address: results[0].FormattedAddress, Lat: p.Lat, Lng: p.Lng}, nil
}

// placeLabel prefixes the address with the place name unless it already starts with it.
func placeLabel(name, address string) string {
	if name == "" || strings.HasPrefix(address, name) {
		return address
	}
	if address == "" {
		return name
	}
	return name + ", " + address
}
