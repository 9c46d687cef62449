// README: End-to-end HTTP tests over in-memory stores and a manual clock.
package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"transfer/internal/clock"
	api "transfer/internal/http"
	"transfer/internal/infra"
	"transfer/internal/logger"
	"transfer/internal/metrics"
	"transfer/internal/modules/availability"
	"transfer/internal/modules/driver"
	"transfer/internal/modules/events"
	"transfer/internal/modules/location"
	"transfer/internal/modules/ride"
)

var baseTime = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

// tokenVerifier treats the bearer token as the uid; roles come from the map.
type tokenVerifier map[string]string

func (v tokenVerifier) VerifyIDToken(_ context.Context, token string) (*infra.FirebaseToken, error) {
	role, ok := v[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return &infra.FirebaseToken{UID: token, Claims: map[string]interface{}{"role": role}}, nil
}

type env struct {
	router *gin.Engine
	clock  *clock.Manual
	bus    *events.Broadcaster
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	m := metrics.New("transfer", reg)
	clk := clock.NewManual(baseTime)
	bus := events.NewBroadcaster(events.Options{MaxAttempts: 2, RetryBackoff: time.Millisecond, QueueSize: 16}, logger.Nop(), m)
	t.Cleanup(bus.Close)

	store := ride.NewMemStore()
	drivers := driver.NewMemStore(
		driver.Driver{ID: "d1", Name: "Ana", Verified: true, Status: driver.StatusAvailable},
		driver.Driver{ID: "d2", Name: "Bo", Verified: true, Status: driver.StatusAvailable},
	)
	rides := ride.NewService(ride.Deps{
		Store:   store,
		Drivers: drivers,
		Events:  bus,
		Clock:   clk,
		Metrics: m,
	}, ride.Options{MaxRetries: 3, LeadTime: 2 * time.Hour})
	loc := location.NewService(location.Deps{
		Rides:   store,
		Cache:   location.NewMemCache(),
		Trail:   location.NewMemTrail(),
		Events:  bus,
		Clock:   clk,
		Log:     logger.Nop(),
		Metrics: m,
	}, location.Options{StaleAfter: time.Minute, AverageSpeedKmh: 30})

	router := api.NewRouter(api.ServerDeps{
		Rides:    rides,
		Pool:     availability.NewPool(store, drivers),
		Location: loc,
		Events:   bus,
		Verifier: tokenVerifier{"admin-1": "admin", "d1": "driver", "d2": "driver"},
		Log:      logger.Nop(),
		Gatherer: reg,
	})
	return &env{router: router, clock: clk, bus: bus}
}

type call struct {
	method string
	path   string
	body   any
	token  string
	code   string
	phone  string
}

func (e *env) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		if err := json.NewEncoder(&body).Encode(c.body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.code != "" {
		req.Header.Set("X-Access-Code", c.code)
		req.Header.Set("X-Phone", c.phone)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

type rideResp struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	AccessCode string  `json:"access_code"`
	DriverID   *string `json:"driver_id"`
	Version    int     `json:"version"`
}

func (e *env) book(t *testing.T, in time.Duration) rideResp {
	t.Helper()
	w := e.do(t, call{method: http.MethodPost, path: "/api/rides", body: map[string]any{
		"ride_type":    "city_to_airport",
		"client":       map[string]any{"name": "Jan Kowalski", "phone": "+48 600 100 200"},
		"pickup":       map[string]any{"address": "Nowy Swiat 1, Warsaw", "lat": 52.2319, "lng": 21.0067},
		"dropoff":      map[string]any{"address": "Chopin Airport", "lat": 52.1657, "lng": 20.9671},
		"scheduled_at": baseTime.Add(in),
		"price":        map[string]any{"amount": 15000, "currency": "PLN"},
	}})
	if w.Code != http.StatusCreated {
		t.Fatalf("book: %d %s", w.Code, w.Body.String())
	}
	var r rideResp
	decode(t, w, &r)
	if r.AccessCode == "" || r.Status != "pending" {
		t.Fatalf("unexpected booking %+v", r)
	}
	return r
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func TestBookingRejectsBadInput(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, call{method: http.MethodPost, path: "/api/rides", body: map[string]any{"ride_type": "boat"}})
	expectStatus(t, w, http.StatusBadRequest)
}

func TestClientAccess(t *testing.T) {
	e := newEnv(t)
	r := e.book(t, time.Hour)

	w := e.do(t, call{method: http.MethodGet, path: "/api/client/ride", code: r.AccessCode, phone: "48600100200"})
	expectStatus(t, w, http.StatusOK)
	var got rideResp
	decode(t, w, &got)
	if got.ID != r.ID {
		t.Fatalf("scoped to %s, want %s", got.ID, r.ID)
	}

	w = e.do(t, call{method: http.MethodGet, path: "/api/client/ride", code: r.AccessCode, phone: "+1 555"})
	expectStatus(t, w, http.StatusNotFound)

	w = e.do(t, call{method: http.MethodGet, path: "/api/client/ride"})
	expectStatus(t, w, http.StatusUnauthorized)

	// No position before a driver is on the road.
	w = e.do(t, call{method: http.MethodGet, path: "/api/client/ride/eta", code: r.AccessCode, phone: "+48 600 100 200"})
	expectStatus(t, w, http.StatusConflict)

	w = e.do(t, call{method: http.MethodPost, path: "/api/client/ride/cancel", body: map[string]any{"reason": "plans changed"}, code: r.AccessCode, phone: "+48 600 100 200"})
	expectStatus(t, w, http.StatusOK)
	decode(t, w, &got)
	if got.Status != "cancelled" {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
}

func TestRoleGuards(t *testing.T) {
	e := newEnv(t)
	r := e.book(t, time.Hour)

	w := e.do(t, call{method: http.MethodGet, path: "/api/admin/rides/" + r.ID, token: "d1"})
	expectStatus(t, w, http.StatusForbidden)

	w = e.do(t, call{method: http.MethodGet, path: "/api/driver/rides/available", token: "admin-1"})
	expectStatus(t, w, http.StatusForbidden)

	w = e.do(t, call{method: http.MethodGet, path: "/api/admin/rides/" + r.ID, token: "nobody"})
	expectStatus(t, w, http.StatusUnauthorized)

	// Admins see the access code, drivers do not.
	w = e.do(t, call{method: http.MethodGet, path: "/api/admin/rides/" + r.ID, token: "admin-1"})
	expectStatus(t, w, http.StatusOK)
	var got rideResp
	decode(t, w, &got)
	if got.AccessCode != r.AccessCode {
		t.Fatalf("admin view missing access code")
	}
	w = e.do(t, call{method: http.MethodGet, path: "/api/driver/rides/" + r.ID, token: "d1"})
	expectStatus(t, w, http.StatusOK)
	decode(t, w, &got)
	if got.AccessCode != "" {
		t.Fatalf("driver view leaked access code")
	}
}

func TestAssignedLifecycle(t *testing.T) {
	e := newEnv(t)
	r := e.book(t, time.Hour)
	base := "/api/driver/rides/" + r.ID

	w := e.do(t, call{method: http.MethodGet, path: "/api/admin/rides/" + r.ID + "/drivers", token: "admin-1"})
	expectStatus(t, w, http.StatusOK)
	var cands struct {
		Drivers []struct {
			DriverID string `json:"driver_id"`
		} `json:"drivers"`
	}
	decode(t, w, &cands)
	if len(cands.Drivers) != 2 {
		t.Fatalf("expected 2 candidates, got %+v", cands)
	}

	w = e.do(t, call{method: http.MethodPost, path: "/api/admin/rides/" + r.ID + "/assign", body: map[string]any{"driver_id": "d1"}, token: "admin-1"})
	expectStatus(t, w, http.StatusOK)

	// Someone else's ride is hidden once assigned.
	w = e.do(t, call{method: http.MethodGet, path: base, token: "d2"})
	expectStatus(t, w, http.StatusForbidden)
	w = e.do(t, call{method: http.MethodPost, path: base + "/accept", token: "d2"})
	expectStatus(t, w, http.StatusForbidden)

	for _, step := range []string{"accept", "depart"} {
		w = e.do(t, call{method: http.MethodPost, path: base + "/" + step, token: "d1"})
		expectStatus(t, w, http.StatusOK)
	}

	w = e.do(t, call{method: http.MethodPut, path: base + "/location", body: map[string]any{"lat": 52.2319, "lng": 21.1067}, token: "d1"})
	expectStatus(t, w, http.StatusOK)
	w = e.do(t, call{method: http.MethodPut, path: base + "/location", body: map[string]any{"lat": 95.0, "lng": 0.0}, token: "d1"})
	expectStatus(t, w, http.StatusBadRequest)
	w = e.do(t, call{method: http.MethodPut, path: base + "/location", body: map[string]any{"lat": 52.0, "lng": 21.0}, token: "d2"})
	expectStatus(t, w, http.StatusForbidden)

	w = e.do(t, call{method: http.MethodGet, path: "/api/client/ride/eta", code: r.AccessCode, phone: "48600100200"})
	expectStatus(t, w, http.StatusOK)
	var eta struct {
		Target string `json:"target"`
		Text   string `json:"eta"`
	}
	decode(t, w, &eta)
	if eta.Target != "pickup" || !strings.HasSuffix(eta.Text, "min") {
		t.Fatalf("unexpected eta %+v", eta)
	}

	for _, step := range []string{"pickup", "start", "complete"} {
		w = e.do(t, call{method: http.MethodPost, path: base + "/" + step, token: "d1"})
		expectStatus(t, w, http.StatusOK)
	}
	var done rideResp
	decode(t, w, &done)
	if done.Status != "completed" || done.Version != 6 {
		t.Fatalf("unexpected final ride %+v", done)
	}

	w = e.do(t, call{method: http.MethodGet, path: "/api/admin/rides/" + r.ID + "/history", token: "admin-1"})
	expectStatus(t, w, http.StatusOK)
	var hist struct {
		Transitions []json.RawMessage `json:"transitions"`
	}
	decode(t, w, &hist)
	if len(hist.Transitions) != 6 {
		t.Fatalf("expected 6 transitions, got %d", len(hist.Transitions))
	}

	// Location is no longer accepted after completion.
	w = e.do(t, call{method: http.MethodPut, path: base + "/location", body: map[string]any{"lat": 52.2, "lng": 21.0}, token: "d1"})
	expectStatus(t, w, http.StatusConflict)
}

func TestSelfAcceptRace(t *testing.T) {
	e := newEnv(t)
	r := e.book(t, time.Hour)

	w := e.do(t, call{method: http.MethodGet, path: "/api/driver/rides/available", token: "d2"})
	expectStatus(t, w, http.StatusOK)
	var avail struct {
		Rides []rideResp `json:"rides"`
	}
	decode(t, w, &avail)
	if len(avail.Rides) != 1 || avail.Rides[0].ID != r.ID {
		t.Fatalf("expected the booked ride to be available, got %+v", avail)
	}

	w = e.do(t, call{method: http.MethodPost, path: "/api/driver/rides/" + r.ID + "/self-accept", token: "d1"})
	expectStatus(t, w, http.StatusOK)

	w = e.do(t, call{method: http.MethodPost, path: "/api/driver/rides/" + r.ID + "/self-accept", token: "d2"})
	expectStatus(t, w, http.StatusConflict)
	var body struct {
		Code string `json:"code"`
	}
	decode(t, w, &body)
	if body.Code != "already_taken" {
		t.Fatalf("expected already_taken, got %q", body.Code)
	}
}

func TestStartTooEarly(t *testing.T) {
	e := newEnv(t)
	r := e.book(t, 5*time.Hour)
	base := "/api/driver/rides/" + r.ID

	expectStatus(t, e.do(t, call{method: http.MethodPost, path: base + "/self-accept", token: "d1"}), http.StatusOK)
	w := e.do(t, call{method: http.MethodPost, path: base + "/start", token: "d1"})
	expectStatus(t, w, 425)
	var body struct {
		Code          string    `json:"code"`
		EarliestStart time.Time `json:"earliest_start"`
	}
	decode(t, w, &body)
	if want := baseTime.Add(3 * time.Hour); body.Code != "too_early" || !body.EarliestStart.Equal(want) {
		t.Fatalf("unexpected too-early body %+v", body)
	}

	e.clock.Advance(3 * time.Hour)
	expectStatus(t, e.do(t, call{method: http.MethodPost, path: base + "/start", token: "d1"}), http.StatusOK)
}

func TestEventStreamStartsWithSnapshot(t *testing.T) {
	e := newEnv(t)
	r := e.book(t, time.Hour)

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/client/ride/events"
	header := http.Header{}
	header.Set("X-Access-Code", r.AccessCode)
	header.Set("X-Phone", "48600100200")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap struct {
		Type     string `json:"type"`
		Status   string `json:"new_status"`
		Sequence int64  `json:"sequence_number"`
	}
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.Type != string(events.TypeSnapshot) || snap.Status != "pending" || snap.Sequence != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	// The subscription is registered before the snapshot is written, so this
	// transition is delivered to the connection.
	w := e.do(t, call{method: http.MethodPost, path: "/api/admin/rides/" + r.ID + "/assign", body: map[string]any{"driver_id": "d1"}, token: "admin-1"})
	expectStatus(t, w, http.StatusOK)

	var ev events.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != events.TypeAssigned || ev.Sequence != 1 || ev.Status != "assigned" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestDriverStreamEndsWhenRideIsHandedBack(t *testing.T) {
	e := newEnv(t)
	r := e.book(t, time.Hour)
	admin := "/api/admin/rides/" + r.ID
	expectStatus(t, e.do(t, call{method: http.MethodPost, path: admin + "/assign", body: map[string]any{"driver_id": "d1"}, token: "admin-1"}), http.StatusOK)

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/driver/rides/" + r.ID + "/events"
	header := http.Header{}
	header.Set("Authorization", "Bearer d1")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap events.Event
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.Type != events.TypeSnapshot || snap.Status != "assigned" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	expectStatus(t, e.do(t, call{method: http.MethodPost, path: "/api/driver/rides/" + r.ID + "/refuse", token: "d1"}), http.StatusOK)

	var ev events.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != events.TypeRefused {
		t.Fatalf("unexpected event %+v", ev)
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected a normal close after refusal, got %v", err)
	}

	// Reassignment to another driver is not visible on the old stream.
	expectStatus(t, e.do(t, call{method: http.MethodPost, path: admin + "/assign", body: map[string]any{"driver_id": "d2"}, token: "admin-1"}), http.StatusOK)
	w := e.do(t, call{method: http.MethodGet, path: "/api/driver/rides/" + r.ID + "/events", token: "d1"})
	expectStatus(t, w, http.StatusForbidden)
}

func TestAdminTrail(t *testing.T) {
	e := newEnv(t)
	r := e.book(t, time.Hour)
	base := "/api/driver/rides/" + r.ID
	expectStatus(t, e.do(t, call{method: http.MethodPost, path: base + "/self-accept", token: "d1"}), http.StatusOK)

	for i, lat := range []float64{52.21, 52.22} {
		at := baseTime.Add(time.Duration(i-2) * time.Second)
		w := e.do(t, call{method: http.MethodPut, path: base + "/location", body: map[string]any{"lat": lat, "lng": 21.0, "captured_at": at}, token: "d1"})
		expectStatus(t, w, http.StatusOK)
	}

	w := e.do(t, call{method: http.MethodGet, path: "/api/admin/rides/" + r.ID + "/trail", token: "admin-1"})
	expectStatus(t, w, http.StatusOK)
	var trail struct {
		Samples []struct {
			Lat float64 `json:"lat"`
		} `json:"samples"`
	}
	decode(t, w, &trail)
	if len(trail.Samples) != 2 || trail.Samples[0].Lat != 52.21 || trail.Samples[1].Lat != 52.22 {
		t.Fatalf("unexpected trail %+v", trail)
	}

	expectStatus(t, e.do(t, call{method: http.MethodGet, path: "/api/admin/rides/" + r.ID + "/trail", token: "d1"}), http.StatusForbidden)
	expectStatus(t, e.do(t, call{method: http.MethodGet, path: "/api/admin/rides/missing/trail", token: "admin-1"}), http.StatusNotFound)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)
	expectStatus(t, e.do(t, call{method: http.MethodGet, path: "/health"}), http.StatusOK)

	e.book(t, time.Hour)
	w := e.do(t, call{method: http.MethodGet, path: "/metrics"})
	expectStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "transfer_") {
		t.Fatalf("metrics output missing namespace:\n%s", w.Body.String())
	}
}
