// Package httpapi serves availability JSON for the public site, the payment
// return pages and health probes.
package httpapi

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"peran/internal/booking"
	"peran/internal/metrics"
	"peran/internal/model"
)

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure a Server.
type Options struct {
	Location      *time.Location
	Logger        *zerolog.Logger
	Now           func() time.Time
	AllowedOrigin string
	Redis         *redis.Client
	Portal        Pinger
}

// Server answers availability queries with a fresh booking form per request.
type Server struct {
	gw   booking.Gateway
	opts Options
	log  *zerolog.Logger
}

// New creates a Server over gw.
func New(gw booking.Gateway, opts Options) *Server {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	return &Server{gw: gw, opts: opts, log: opts.Logger}
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/slots", s.cors(s.handleSlots))
	mux.HandleFunc("GET /api/booked-dates", s.cors(s.handleBookedDates))
	mux.HandleFunc("GET /booking/success", s.handleSuccess)
	mux.HandleFunc("GET /booking/cancel", s.handleCancel)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	return mux
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	s.log.Info().Str("addr", addr).Msg("http api listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Error().Err(err).Msg("http api error")
	}
}

func (s *Server) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AllowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.opts.AllowedOrigin)
			w.Header().Set("Vary", "Origin")
		}
		next(w, r)
	}
}

func (s *Server) newForm(ctx context.Context) *booking.Controller {
	c := booking.NewController(s.gw, booking.Options{
		Location: s.opts.Location,
		Logger:   s.log,
		Now:      s.opts.Now,
		FormID:   "web-availability",

		DeferBookedDates: true,
	})
	c.Load(ctx)
	return c
}

// SlotsResponse is the body of GET /api/slots.
type SlotsResponse struct {
	Date       string           `json:"date"`
	Restaurant bool             `json:"restaurant"`
	Slots      []model.TimeSlot `json:"slots"`
}

// handleSlots returns the free slots of a day.
// GET /api/slots?date=YYYY-MM-DD&serviceId=&providerId=
func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slots")

	q := r.URL.Query()
	date, err := time.ParseInLocation(model.DateLayout, q.Get("date"), s.opts.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	c := s.newForm(r.Context())
	if id := q.Get("serviceId"); id != "" {
		c.SelectService(r.Context(), id)
	}
	if id := q.Get("providerId"); id != "" {
		c.SelectProvider(r.Context(), id)
	}
	free := c.SelectDate(r.Context(), date)
	if free == nil {
		free = []model.TimeSlot{}
	}

	writeJSON(w, http.StatusOK, SlotsResponse{
		Date:       date.Format(model.DateLayout),
		Restaurant: c.View().Rules.IsRestaurant,
		Slots:      free,
	})
}

// BookedDatesResponse is the body of GET /api/booked-dates.
type BookedDatesResponse struct {
	Booked []string `json:"booked"`
	Closed []string `json:"closed"`
}

// handleBookedDates lists fully booked and closed days ahead.
// GET /api/booked-dates?providerId=
func (s *Server) handleBookedDates(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("booked_dates")

	c := s.newForm(r.Context())
	if id := r.URL.Query().Get("providerId"); id != "" {
		c.SelectProvider(r.Context(), id)
	}
	avail := c.RefreshBookedDates(r.Context())

	writeJSON(w, http.StatusOK, BookedDatesResponse{
		Booked: sortedKeys(avail.Booked),
		Closed: sortedKeys(avail.Closed),
	})
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="sv">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Body}}</p>
{{if .Ref}}<p>Referens: {{.Ref}}</p>{{end}}
</body>
</html>
`))

type page struct {
	Title string
	Body  string
	Ref   string
}

// handleSuccess is where the payment provider returns after checkout.
// GET /booking/success?session_id=
func (s *Server) handleSuccess(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("payment_success")
	sessionID := r.URL.Query().Get("session_id")
	s.log.Info().Str("session_id", sessionID).Msg("payment completed")
	writePage(w, http.StatusOK, page{
		Title: "Tack för din bokning!",
		Body:  "Betalningen är genomförd och din bokning är bekräftad. En bekräftelse skickas till din e-post.",
		Ref:   sessionID,
	})
}

// handleCancel is where the payment provider returns after an aborted checkout.
// GET /booking/cancel?booking_id=
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("payment_cancel")
	bookingID := r.URL.Query().Get("booking_id")
	s.log.Info().Str("booking_id", bookingID).Msg("payment aborted")
	writePage(w, http.StatusOK, page{
		Title: "Betalningen avbröts",
		Body:  "Din betalning genomfördes inte. Du kan försöka igen eller kontakta oss.",
		Ref:   bookingID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctxPing, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if s.opts.Redis != nil {
		if err := s.opts.Redis.Ping(ctxPing).Err(); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
	}
	if s.opts.Portal != nil {
		if err := s.opts.Portal.Ping(ctxPing); err != nil {
			http.Error(w, "portal not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writePage(w http.ResponseWriter, status int, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = pageTmpl.Execute(w, p)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k, ok := range set {
		if ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
