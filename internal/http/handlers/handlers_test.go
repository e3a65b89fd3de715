// README: Handler tests for authorization and error mapping, with in-memory fakes behind the handler interfaces.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tejith7/project-bolt/internal/http/handlers"
	httpmiddleware "github.com/tejith7/project-bolt/internal/http/middleware"
	"github.com/tejith7/project-bolt/internal/infra"
	"github.com/tejith7/project-bolt/internal/modules/dispatch"
	"github.com/tejith7/project-bolt/internal/modules/history"
	"github.com/tejith7/project-bolt/internal/modules/pricing"
	"github.com/tejith7/project-bolt/internal/modules/ride"
	"github.com/tejith7/project-bolt/internal/types"
)

// stubTokenVerifier is a test double for infra.TokenVerifier.
type stubTokenVerifier struct {
	token *infra.Token
	err   error
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.Token, error) {
	return s.token, s.err
}

func makeVerifier(uid, role string) *stubTokenVerifier {
	claims := map[string]interface{}{}
	if role != "" {
		claims["role"] = role
	}
	return &stubTokenVerifier{token: &infra.Token{UID: uid, Claims: claims}}
}

type fakeEngine struct {
	lastRequest ride.RequestCommand
	lastCancel  ride.CancelCommand
	ride        ride.Ride
	err         error
}

func (f *fakeEngine) Request(_ context.Context, cmd ride.RequestCommand) (ride.Ride, error) {
	f.lastRequest = cmd
	return f.ride, f.err
}

func (f *fakeEngine) Cancel(_ context.Context, cmd ride.CancelCommand) (ride.Ride, error) {
	f.lastCancel = cmd
	return f.ride, f.err
}

func (f *fakeEngine) Current(_ context.Context, _ types.ID) (ride.Ride, error) {
	return f.ride, f.err
}

func (f *fakeEngine) Observe(_ context.Context, _ types.ID) (ride.Ride, error) {
	return f.ride, f.err
}

func newRideRouter(v infra.TokenVerifier, eng *fakeEngine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(httpmiddleware.Auth(v))
	h := handlers.NewRideHandler(eng, eng)
	r.POST("/api/rides", h.Request)
	r.GET("/api/rides/current", h.Current)
	r.GET("/api/rides/:id", h.Get)
	r.POST("/api/rides/:id/cancel", h.Cancel)
	return r
}

func doRequest(r *gin.Engine, method, path string, body interface{}, authHeader string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var rideBody = map[string]any{
	"pickup":      map[string]any{"address": "Market St", "lat": 37.7749, "lng": -122.4194},
	"destination": map[string]any{"address": "Embarcadero", "lat": 37.7899, "lng": -122.4034},
	"class":       "comfort",
}

func TestRequest_Unauthenticated(t *testing.T) {
	r := newRideRouter(&stubTokenVerifier{err: errors.New("no token")}, &fakeEngine{})
	if w := doRequest(r, http.MethodPost, "/api/rides", rideBody, "Bearer badtoken"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRequest_RiderComesFromToken(t *testing.T) {
	eng := &fakeEngine{ride: ride.Ride{ID: "r1", Status: ride.StatusSearching}}
	r := newRideRouter(makeVerifier("realUID", ""), eng)
	body := map[string]any{"rider_id": "otherUID"}
	for k, v := range rideBody {
		body[k] = v
	}
	w := doRequest(r, http.MethodPost, "/api/rides", body, "Bearer sometoken")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if eng.lastRequest.RiderID != "realUID" || eng.lastRequest.Class != pricing.ClassComfort || eng.lastRequest.Pickup.Address != "Market St" {
		t.Fatalf("unexpected command: %+v", eng.lastRequest)
	}
}

func TestRequest_MissingCoordinates(t *testing.T) {
	r := newRideRouter(makeVerifier("u1", ""), &fakeEngine{})
	body := map[string]any{"pickup": map[string]any{"address": "Market St"}, "destination": rideBody["destination"]}
	if w := doRequest(r, http.MethodPost, "/api/rides", body, "Bearer t"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestRideErrors_MapToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ride.ErrActiveRide, http.StatusConflict},
		{ride.ErrInvalidTransition, http.StatusConflict},
		{ride.ErrAlreadyMatched, http.StatusConflict},
		{ride.ErrEstimation, http.StatusBadRequest},
		{ride.ErrBadRequest, http.StatusBadRequest},
		{ride.ErrForbidden, http.StatusForbidden},
		{ride.ErrNotFound, http.StatusNotFound},
		{ride.ErrSyncFailure, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		r := newRideRouter(makeVerifier("u1", ""), &fakeEngine{err: tt.err})
		w := doRequest(r, http.MethodPost, "/api/rides/r1/cancel", nil, "Bearer t")
		if w.Code != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, w.Code)
		}
		if tt.err == ride.ErrSyncFailure && !bytes.Contains(w.Body.Bytes(), []byte(`"retry":true`)) {
			t.Errorf("sync failure should tell the client to retry: %s", w.Body.String())
		}
	}
}

func TestCancel_PassesCallerAndReason(t *testing.T) {
	eng := &fakeEngine{ride: ride.Ride{ID: "r1", Status: ride.StatusCancelled}}
	r := newRideRouter(makeVerifier("u1", ""), eng)
	w := doRequest(r, http.MethodPost, "/api/rides/r1/cancel", map[string]any{"reason": "changed plans"}, "Bearer t")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if eng.lastCancel != (ride.CancelCommand{RideID: "r1", RiderID: "u1", Reason: "changed plans"}) {
		t.Fatalf("unexpected command: %+v", eng.lastCancel)
	}
}

func TestGet_OnlyRiderOrAssignedDriver(t *testing.T) {
	eng := &fakeEngine{ride: ride.Ride{ID: "r1", RiderID: "rider", Status: ride.StatusMatched, Driver: &ride.Driver{ID: "drv"}}}
	for uid, want := range map[string]int{"rider": http.StatusOK, "drv": http.StatusOK, "stranger": http.StatusForbidden} {
		r := newRideRouter(makeVerifier(uid, ""), eng)
		if w := doRequest(r, http.MethodGet, "/api/rides/r1", nil, "Bearer t"); w.Code != want {
			t.Errorf("%s: expected %d, got %d", uid, want, w.Code)
		}
	}
}

func TestCurrent_NoActiveRide(t *testing.T) {
	r := newRideRouter(makeVerifier("u1", ""), &fakeEngine{err: ride.ErrNotFound})
	w := doRequest(r, http.MethodGet, "/api/rides/current", nil, "Bearer t")
	if w.Code != http.StatusOK || w.Body.String() != `{"ride":null}` {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}

type fakeDispatch struct {
	query    dispatch.PendingQuery
	acceptBy types.ID
	err      error
	online   map[types.ID]types.Point
}

func (f *fakeDispatch) ListPending(_ context.Context, q dispatch.PendingQuery) ([]dispatch.Offer, error) {
	f.query = q
	return []dispatch.Offer{{Ride: ride.Ride{ID: "p1", Status: ride.StatusSearching}}}, f.err
}

func (f *fakeDispatch) Accept(_ context.Context, _ types.ID, driverID types.ID) (ride.Ride, error) {
	f.acceptBy = driverID
	return ride.Ride{ID: "p1", Status: ride.StatusMatched}, f.err
}

func (f *fakeDispatch) GoOnline(_ context.Context, id types.ID, p types.Point) error {
	f.online[id] = p
	return nil
}

func (f *fakeDispatch) GoOffline(_ context.Context, id types.ID) error {
	delete(f.online, id)
	return nil
}

func newDriverRouter(v infra.TokenVerifier, d *fakeDispatch) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := handlers.NewDriverHandler(d, d)
	g := r.Group("/api/driver", httpmiddleware.Auth(v), httpmiddleware.RequireRole("driver"))
	g.GET("/rides/pending", h.ListPending)
	g.POST("/rides/:id/accept", h.Accept)
	g.POST("/availability", h.SetAvailability)
	return r
}

// TestAccept_RequiresDriverRole checks that a user without the driver role cannot accept a ride.
func TestAccept_RequiresDriverRole(t *testing.T) {
	d := &fakeDispatch{}
	r := newDriverRouter(makeVerifier("riderUID", ""), d)
	if w := doRequest(r, http.MethodPost, "/api/driver/rides/p1/accept", nil, "Bearer t"); w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
	if d.acceptBy != "" {
		t.Error("dispatch reached without driver role")
	}
}

func TestAccept_UsesCallerAsDriver(t *testing.T) {
	d := &fakeDispatch{}
	r := newDriverRouter(makeVerifier("driverA", "driver"), d)
	w := doRequest(r, http.MethodPost, "/api/driver/rides/p1/accept?driver_id=driverB", nil, "Bearer t")
	if w.Code != http.StatusOK || d.acceptBy != "driverA" {
		t.Fatalf("got %d, accepted by %q", w.Code, d.acceptBy)
	}

	d.err = ride.ErrAlreadyMatched
	if w := doRequest(r, http.MethodPost, "/api/driver/rides/p1/accept", nil, "Bearer t"); w.Code != http.StatusConflict {
		t.Errorf("expected 409 for lost race, got %d", w.Code)
	}
}

func TestListPending_ParsesQuery(t *testing.T) {
	d := &fakeDispatch{}
	r := newDriverRouter(makeVerifier("driverA", "driver"), d)
	w := doRequest(r, http.MethodGet, "/api/driver/rides/pending?lat=37.77&lng=-122.41&radius_km=2.5&limit=10", nil, "Bearer t")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if d.query.Near == nil || d.query.Near.Lat != 37.77 || d.query.RadiusKm != 2.5 || d.query.Limit != 10 {
		t.Fatalf("unexpected query: %+v", d.query)
	}
	if w := doRequest(r, http.MethodGet, "/api/driver/rides/pending?lat=abc&lng=1", nil, "Bearer t"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad lat, got %d", w.Code)
	}
}

func TestSetAvailability(t *testing.T) {
	d := &fakeDispatch{online: map[types.ID]types.Point{}}
	r := newDriverRouter(makeVerifier("driverA", "driver"), d)
	w := doRequest(r, http.MethodPost, "/api/driver/availability", map[string]any{"online": true, "lat": 37.77, "lng": -122.41}, "Bearer t")
	if w.Code != http.StatusOK || d.online["driverA"].Lat != 37.77 {
		t.Fatalf("go online: %d %v", w.Code, d.online)
	}
	if w := doRequest(r, http.MethodPost, "/api/driver/availability", map[string]any{"online": true}, "Bearer t"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without position, got %d", w.Code)
	}
	w = doRequest(r, http.MethodPost, "/api/driver/availability", map[string]any{"online": false}, "Bearer t")
	if w.Code != http.StatusOK || len(d.online) != 0 {
		t.Fatalf("go offline: %d %v", w.Code, d.online)
	}
}

type fakeHistory struct {
	filter history.Filter
	sort   history.Sort
	record ride.Ride
}

func (f *fakeHistory) Get(_ context.Context, id types.ID) (ride.Ride, error) {
	if id != f.record.ID {
		return ride.Ride{}, history.ErrNotFound
	}
	return f.record, nil
}

func (f *fakeHistory) Query(_ context.Context, filter history.Filter, sort history.Sort) ([]ride.Ride, error) {
	f.filter, f.sort = filter, sort
	if sort.Field == "rating" {
		return nil, history.ErrBadQuery
	}
	return []ride.Ride{f.record}, nil
}

func newHistoryRouter(v infra.TokenVerifier, h *fakeHistory) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(httpmiddleware.Auth(v))
	hh := handlers.NewHistoryHandler(h)
	r.GET("/api/history", hh.List)
	r.GET("/api/history/:id", hh.Get)
	return r
}

func TestHistoryList_ScopesToCaller(t *testing.T) {
	h := &fakeHistory{record: ride.Ride{ID: "h1", RiderID: "u1"}}
	r := newHistoryRouter(makeVerifier("u1", ""), h)
	w := doRequest(r, http.MethodGet, "/api/history?status=completed&window=week&q=airport&sort=price&order=asc", nil, "Bearer t")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	f := h.filter
	if f.RiderID != "u1" || f.DriverID != "" || f.Status != ride.StatusCompleted || f.Search != "airport" {
		t.Fatalf("unexpected filter: %+v", f)
	}
	if f.From.IsZero() || f.To.Sub(f.From) != 7*24*time.Hour {
		t.Fatalf("week window not applied: %v - %v", f.From, f.To)
	}
	if h.sort != (history.Sort{Field: history.SortPrice, Order: history.Asc}) {
		t.Fatalf("unexpected sort: %+v", h.sort)
	}

	r = newHistoryRouter(makeVerifier("drv", "driver"), h)
	doRequest(r, http.MethodGet, "/api/history", nil, "Bearer t")
	if h.filter.DriverID != "drv" || h.filter.RiderID != "" {
		t.Fatalf("driver history should filter by driver: %+v", h.filter)
	}
}

func TestHistoryList_BadQuery(t *testing.T) {
	r := newHistoryRouter(makeVerifier("u1", ""), &fakeHistory{})
	for _, path := range []string{"/api/history?window=year", "/api/history?sort=rating", "/api/history?limit=x"} {
		if w := doRequest(r, http.MethodGet, path, nil, "Bearer t"); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestHistoryGet_HidesOtherRiders(t *testing.T) {
	h := &fakeHistory{record: ride.Ride{ID: "h1", RiderID: "owner"}}
	if w := doRequest(newHistoryRouter(makeVerifier("owner", ""), h), http.MethodGet, "/api/history/h1", nil, "Bearer t"); w.Code != http.StatusOK {
		t.Errorf("owner: expected 200, got %d", w.Code)
	}
	if w := doRequest(newHistoryRouter(makeVerifier("other", ""), h), http.MethodGet, "/api/history/h1", nil, "Bearer t"); w.Code != http.StatusNotFound {
		t.Errorf("other: expected 404, got %d", w.Code)
	}
}

type fakePricer struct{}

func (fakePricer) Quote(_ context.Context, _, _ types.Point, class pricing.RideClass) (pricing.Quote, error) {
	mult := map[pricing.RideClass]int64{pricing.ClassEconomy: 2, pricing.ClassComfort: 3, pricing.ClassPremium: 4}[class]
	return pricing.Quote{DistanceMi: 1.4, TimeMin: 3, Fare: types.Money{Amount: 425 * mult, Currency: "USD"}}, nil
}

func (fakePricer) Classes(context.Context) []pricing.Rate {
	return []pricing.Rate{{Class: pricing.ClassEconomy}, {Class: pricing.ClassComfort}, {Class: pricing.ClassPremium}}
}

func TestQuotes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/quotes", handlers.NewQuoteHandler(fakePricer{}).Create)

	w := doRequest(r, http.MethodPost, "/api/quotes", map[string]any{"pickup": rideBody["pickup"], "destination": rideBody["destination"]}, "")
	var all struct {
		Quotes []struct {
			ID   string      `json:"id"`
			Fare types.Money `json:"fare"`
		} `json:"quotes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil || len(all.Quotes) != 3 {
		t.Fatalf("all classes: %d %s", w.Code, w.Body.String())
	}
	if all.Quotes[0].ID != "economy" || all.Quotes[0].Fare.Amount != 850 {
		t.Fatalf("unexpected economy quote: %+v", all.Quotes[0])
	}

	w = doRequest(r, http.MethodPost, "/api/quotes", rideBody, "")
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil || len(all.Quotes) != 1 || all.Quotes[0].ID != "comfort" {
		t.Fatalf("single class: %s", w.Body.String())
	}

	bad := map[string]any{"pickup": rideBody["pickup"], "destination": rideBody["destination"], "class": "limo"}
	if w := doRequest(r, http.MethodPost, "/api/quotes", bad, ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown class: expected 400, got %d", w.Code)
	}
}

func TestPlaces_NotConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := handlers.NewPlacesHandler(nil)
	r.GET("/api/places/search", h.Search)
	if w := doRequest(r, http.MethodGet, "/api/places/search?q=coffee", nil, ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}
