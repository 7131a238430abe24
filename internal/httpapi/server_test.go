package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peran/internal/model"
)

type stubGateway struct {
	settings *model.Settings
	bookings []model.Booking

	// horizonFetches counts booking lists spanning more than a week.
	horizonFetches atomic.Int32
	mu             sync.Mutex
	providerIDs    []string
}

func (g *stubGateway) fetchedFor() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.providerIDs...)
}

func (g *stubGateway) ListServices(context.Context, bool) []model.Service   { return nil }
func (g *stubGateway) ListProviders(context.Context, bool) []model.Provider { return nil }
func (g *stubGateway) GetSettings(context.Context) *model.Settings          { return g.settings }
func (g *stubGateway) ListProducts(context.Context) []model.Product         { return nil }

func (g *stubGateway) ListBookings(_ context.Context, from, to time.Time, providerID string) []model.Booking {
	if to.Sub(from) > 7*24*time.Hour {
		g.horizonFetches.Add(1)
		g.mu.Lock()
		g.providerIDs = append(g.providerIDs, providerID)
		g.mu.Unlock()
	}
	var out []model.Booking
	for _, b := range g.bookings {
		if !b.Start.Before(from) && !b.Start.After(to) {
			out = append(out, b)
		}
	}
	return out
}

func (g *stubGateway) CreateBooking(context.Context, model.BookingDraft) (model.CreateResult, error) {
	return model.CreateResult{}, errors.New("not used")
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestServer(opts Options) *httptest.Server {
	return serve(newTestGateway(), opts)
}

func serve(gw *stubGateway, opts Options) *httptest.Server {
	opts.Location = time.UTC
	opts.Now = func() time.Time { return time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC) }
	return httptest.NewServer(New(gw, opts).Handler())
}

func newTestGateway() *stubGateway {
	return &stubGateway{
		settings: &model.Settings{
			BusinessType: "restaurant",
			OpeningHours: model.BusinessHours{"monday": {Start: "11:00", End: "13:00"}},
		},
		bookings: []model.Booking{{
			ID:     "b1",
			Start:  time.Date(2026, 1, 12, 11, 0, 0, 0, time.UTC),
			End:    time.Date(2026, 1, 12, 13, 0, 0, 0, time.UTC),
			Status: model.StatusConfirmed,
		}},
	}
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestSlots(t *testing.T) {
	srv := newTestServer(Options{AllowedOrigin: "https://peran.se"})
	defer srv.Close()

	var body SlotsResponse
	resp := getJSON(t, srv.URL+"/api/slots?date=2026-01-19", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://peran.se", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.True(t, body.Restaurant)
	require.Len(t, body.Slots, 1)
	assert.Equal(t, "11:00", body.Slots[0].Display)

	var full SlotsResponse
	getJSON(t, srv.URL+"/api/slots?date=2026-01-12", &full)
	assert.NotNil(t, full.Slots)
	assert.Empty(t, full.Slots)
}

func TestSlots_BadDate(t *testing.T) {
	srv := newTestServer(Options{})
	defer srv.Close()

	var body map[string]string
	resp := getJSON(t, srv.URL+"/api/slots?date=12/01/2026", &body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "YYYY-MM-DD")
}

func TestBookedDates(t *testing.T) {
	srv := newTestServer(Options{})
	defer srv.Close()

	var body BookedDatesResponse
	resp := getJSON(t, srv.URL+"/api/booked-dates", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"2026-01-12"}, body.Booked)
	assert.Contains(t, body.Closed, "2026-01-10")
	assert.NotContains(t, body.Closed, "2026-01-19")
	assert.IsIncreasing(t, body.Closed)
}

func TestBookedDates_SingleHorizonFetch(t *testing.T) {
	gw := newTestGateway()
	gw.settings = &model.Settings{
		OpeningHours: model.BusinessHours{"monday": {Start: "11:00", End: "13:00"}},
	}
	srv := serve(gw, Options{})
	defer srv.Close()

	var body BookedDatesResponse
	resp := getJSON(t, srv.URL+"/api/booked-dates?providerId=p1", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), gw.horizonFetches.Load())
	assert.Equal(t, []string{"p1"}, gw.fetchedFor())

	getJSON(t, srv.URL+"/api/slots?date=2026-01-19&providerId=p1", &SlotsResponse{})
	assert.Equal(t, int32(1), gw.horizonFetches.Load())
}

func TestPaymentPages(t *testing.T) {
	srv := newTestServer(Options{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/booking/success?session_id=cs_%3Cb%3E")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	page := string(raw)
	assert.Contains(t, page, "Tack för din bokning!")
	assert.Contains(t, page, "cs_&lt;b&gt;")

	resp2, err := http.Get(srv.URL + "/booking/cancel?booking_id=b1")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestHealthAndReadiness(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var portalDown atomic.Bool
	srv := newTestServer(Options{
		Redis: rdb,
		Portal: pingFunc(func(context.Context) error {
			if portalDown.Load() {
				return errors.New("down")
			}
			return nil
		}),
	})
	defer srv.Close()

	resp := getJSON(t, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = getJSON(t, srv.URL+"/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	portalDown.Store(true)
	resp = getJSON(t, srv.URL+"/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	portalDown.Store(false)
	mr.Close()
	resp = getJSON(t, srv.URL+"/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(Options{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/slots", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
