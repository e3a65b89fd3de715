package maps

import (
	"context"
	"errors"
	"testing"

	"googlemaps.github.io/maps"

	"github.com/tejith7/project-bolt/internal/types"
)

type fakeClient struct {
	search  maps.PlacesSearchResponse
	reverse []maps.GeocodingResult
	err     error
	lastReq *maps.TextSearchRequest
}

func (f *fakeClient) TextSearch(_ context.Context, r *maps.TextSearchRequest) (maps.PlacesSearchResponse, error) {
	f.lastReq = r
	return f.search, f.err
}

func (f *fakeClient) ReverseGeocode(_ context.Context, _ *maps.GeocodingRequest) ([]maps.GeocodingResult, error) {
	return f.reverse, f.err
}

func place(id, name, addr string, lat, lng float64) maps.PlacesSearchResult {
	return maps.PlacesSearchResult{
		PlaceID: id, Name: name, FormattedAddress: addr,
		Geometry: maps.AddressGeometry{Location: maps.LatLng{Lat: lat, Lng: lng}},
	}
}

func TestGeocoder_Search(t *testing.T) {
	fc := &fakeClient{search: maps.PlacesSearchResponse{Results: []maps.PlacesSearchResult{
		place("1", "Ferry Building", "1 Ferry Building, San Francisco, CA", 37.7955, -122.3937),
		place("1", "Ferry Building", "1 Ferry Building, San Francisco, CA", 37.7955, -122.3937),
		place("2", "Blue Bottle", "66 Mint St, San Francisco, CA", 37.7825, -122.4076),
	}}}
	g := &Geocoder{client: fc}
	near := types.Point{Lat: 37.7749, Lng: -122.4194}

	got, err := g.Search(context.Background(), "  coffee ", &near)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected de-duplicated results, got %d", len(got))
	}
	if got[0].Address != "1 Ferry Building, San Francisco, CA" || got[1].Address != "Blue Bottle, 66 Mint St, San Francisco, CA" {
		t.Fatalf("labels: %+v", got)
	}
	if fc.lastReq.Query != "coffee" || fc.lastReq.Location == nil || fc.lastReq.Radius != biasRadiusMeters {
		t.Fatalf("request not biased: %+v", fc.lastReq)
	}
}

func TestGeocoder_SearchErrors(t *testing.T) {
	g := &Geocoder{client: &fakeClient{}}
	if _, err := g.Search(context.Background(), " ", nil); !errors.Is(err, ErrNoResults) {
		t.Fatalf("blank query: %v", err)
	}
	if _, err := g.Search(context.Background(), "nowhere", nil); !errors.Is(err, ErrNoResults) {
		t.Fatalf("empty response: %v", err)
	}
	boom := errors.New("OVER_QUERY_LIMIT")
	g = &Geocoder{client: &fakeClient{err: boom}}
	if _, err := g.Search(context.Background(), "coffee", nil); !errors.Is(err, boom) {
		t.Fatalf("api error not wrapped: %v", err)
	}
}

func TestGeocoder_Reverse(t *testing.T) {
	fc := &fakeClient{reverse: []maps.GeocodingResult{{FormattedAddress: "1 Market St, San Francisco, CA"}}}
	g := &Geocoder{client: fc}
	p := types.Point{Lat: 37.7936, Lng: -122.3950}
	loc, err := g.Reverse(context.Background(), p)
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if loc.Address != "1 Market St, San Francisco, CA" || loc.Point() != p {
		t.Fatalf("unexpected location: %+v", loc)
	}
	if _, err := g.Reverse(context.Background(), types.Point{Lat: 200}); !errors.Is(err, ErrNoResults) {
		t.Fatalf("invalid point: %v", err)
	}
	g = &Geocoder{client: &fakeClient{}}
	if _, err := g.Reverse(context.Background(), p); !errors.Is(err, ErrNoResults) {
		t.Fatalf("empty response: %v", err)
	}
}
