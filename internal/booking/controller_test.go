package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peran/internal/model"
	"peran/internal/portal"
	"peran/internal/slots"
)

var (
	// Saturday; the test "today".
	testNow = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	monday  = time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	tuesday = time.Date(2026, 1, 13, 0, 0, 0, 0, time.UTC)
)

type fakeGateway struct {
	mu        sync.Mutex
	services  []model.Service
	providers []model.Provider
	settings  *model.Settings
	products  []model.Product
	bookings  []model.Booking

	createResult model.CreateResult
	createErr    error
	onCreate     func(draft model.BookingDraft)
	drafts       []model.BookingDraft

	// blockFrom stalls ListBookings calls starting at that instant until
	// release is closed; entered is signalled first.
	blockFrom time.Time
	entered   chan struct{}
	release   chan struct{}

	settingsCalls atomic.Int32
	productCalls  atomic.Int32
}

func (g *fakeGateway) ListServices(context.Context, bool) []model.Service {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.Service(nil), g.services...)
}

func (g *fakeGateway) ListProviders(context.Context, bool) []model.Provider {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.Provider(nil), g.providers...)
}

func (g *fakeGateway) GetSettings(context.Context) *model.Settings {
	g.settingsCalls.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.settings
}

func (g *fakeGateway) ListProducts(context.Context) []model.Product {
	g.productCalls.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.Product(nil), g.products...)
}

func (g *fakeGateway) ListBookings(_ context.Context, from, to time.Time, providerID string) []model.Booking {
	g.mu.Lock()
	block := g.release != nil && from.Equal(g.blockFrom)
	entered, release := g.entered, g.release
	var out []model.Booking
	for _, b := range g.bookings {
		if b.Start.Before(from) || b.Start.After(to) {
			continue
		}
		if providerID != "" && b.ProviderID != providerID {
			continue
		}
		out = append(out, b)
	}
	g.mu.Unlock()

	if block {
		entered <- struct{}{}
		<-release
	}
	return out
}

func (g *fakeGateway) CreateBooking(_ context.Context, draft model.BookingDraft) (model.CreateResult, error) {
	g.mu.Lock()
	g.drafts = append(g.drafts, draft)
	hook := g.onCreate
	res, err := g.createResult, g.createErr
	g.mu.Unlock()
	if hook != nil {
		hook(draft)
	}
	return res, err
}

func (g *fakeGateway) addBooking(b model.Booking) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bookings = append(g.bookings, b)
}

func (g *fakeGateway) lastDraft(t *testing.T) model.BookingDraft {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	require.NotEmpty(t, g.drafts, "no booking was submitted")
	return g.drafts[len(g.drafts)-1]
}

type fakeTracker struct {
	mu     sync.Mutex
	events []string
	data   []map[string]any
}

func (f *fakeTracker) Track(_ context.Context, _ string, event string, data map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	f.data = append(f.data, data)
}

func (f *fakeTracker) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

// restaurantSettings opens Monday 11-22 and Tuesday 11-13, closes Sunday and
// leaves other days unset.
func restaurantSettings() *model.Settings {
	return &model.Settings{
		BusinessType: "restaurant",
		OpeningHours: model.BusinessHours{
			"monday":  {Start: "11:00", End: "22:00"},
			"tuesday": {Start: "11:00", End: "13:00"},
			"sunday":  {IsOpen: model.Bool(false)},
		},
		CalendarBehavior: &model.CalendarBehavior{TimeSlotInterval: 30},
		FormFields:       &model.FormFields{RequirePartySize: model.Bool(true)},
	}
}

func at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
}

func newTestController(t *testing.T, gw *fakeGateway, tracker Tracker) *Controller {
	t.Helper()
	c := NewController(gw, Options{
		Location: time.UTC,
		Tracker:  tracker,
		Now:      func() time.Time { return testNow },
		FormID:   "test-form",
	})
	c.Load(context.Background())
	return c
}

func slotStarts(ts []model.TimeSlot) []string {
	out := make([]string, len(ts))
	for i, s := range ts {
		out[i] = s.Display
	}
	return out
}

func TestLoad(t *testing.T) {
	gw := &fakeGateway{
		services:  []model.Service{{ID: "s1", Name: "Bord", DurationMin: 90}},
		providers: []model.Provider{{ID: "p1", Name: "Matsal"}},
		settings:  restaurantSettings(),
	}
	tracker := &fakeTracker{}
	c := newTestController(t, gw, tracker)

	v := c.View()
	assert.Equal(t, StateReady, v.State)
	assert.Len(t, v.Services, 1)
	assert.Len(t, v.Providers, 1)
	assert.True(t, v.Rules.IsRestaurant)
	assert.True(t, v.Rules.RequirePartySize)
	assert.Equal(t, DefaultGuests, v.Form.Guests)
	assert.Equal(t, BookingTypeTable, v.Form.BookingType)
	assert.Equal(t, int32(0), gw.productCalls.Load(), "products are only loaded for tenants that sell them")

	assert.Equal(t, []string{"form_start"}, tracker.seen())
	assert.Equal(t, "test-form", tracker.data[0]["formId"])
	assert.Contains(t, c.SessionID(), "sess_")
}

func TestLoad_ProductsWhenAllowed(t *testing.T) {
	settings := restaurantSettings()
	settings.FormFields.AllowProductBooking = model.Bool(true)
	gw := &fakeGateway{
		settings: settings,
		products: []model.Product{{ID: "wine", Name: "Vinpaket"}},
	}
	c := newTestController(t, gw, nil)

	v := c.View()
	assert.True(t, v.Rules.ShowProducts)
	require.Len(t, v.Products, 1)

	c.ToggleProduct("wine")
	assert.Equal(t, []string{"wine"}, c.View().Form.ProductIDs)
	c.ToggleProduct("wine")
	assert.Empty(t, c.View().Form.ProductIDs)
}

func TestLoad_NothingAvailable(t *testing.T) {
	c := newTestController(t, &fakeGateway{}, nil)

	v := c.View()
	assert.Equal(t, StateReady, v.State)
	assert.Nil(t, v.Settings)
	assert.False(t, v.Rules.IsRestaurant)
	assert.Equal(t, "Tjänst", v.Rules.ServiceLabel)

	assert.Nil(t, c.SelectDate(context.Background(), monday), "no hours resolve without settings")
	assert.Equal(t, StateReady, c.View().State)
}

// A restaurant with no services and no providers can still be booked.
func TestRestaurantFlow_AutoDurationAndSubmit(t *testing.T) {
	gw := &fakeGateway{
		settings:     restaurantSettings(),
		createResult: model.CreateResult{Success: true, Booking: &model.Booking{ID: "b1"}},
	}
	tracker := &fakeTracker{}
	c := newTestController(t, gw, tracker)
	ctx := context.Background()

	got := c.SelectDate(ctx, at(monday, 15, 45))
	// 120 minute default seating inside 11:00-22:00 every 30 minutes.
	require.Len(t, got, 19)
	assert.Equal(t, "11:00", got[0].Display)
	assert.Equal(t, "20:00", got[len(got)-1].Display)
	assert.Equal(t, StateSlotsReady, c.View().State)
	assert.Equal(t, monday, c.View().Form.Date)

	require.NoError(t, c.SelectTime("18:00"))
	require.NoError(t, c.SetField(FieldName, "  Anna Svensson "))
	require.NoError(t, c.SetGuests(4))

	out, err := c.Submit(ctx)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "b1", out.Booking.ID)
	assert.Equal(t, at(monday, 18, 0), out.Start)
	assert.Equal(t, at(monday, 20, 0), out.End)

	draft := gw.lastDraft(t)
	assert.Empty(t, draft.ServiceID)
	assert.Empty(t, draft.ProviderID)
	assert.Equal(t, "Anna Svensson", draft.CustomerName)
	assert.Equal(t, 4, draft.PartySize)
	assert.Equal(t, at(monday, 18, 0), draft.Start)
	assert.Equal(t, at(monday, 20, 0), draft.End)

	v := c.View()
	assert.Equal(t, StateSuccess, v.State)
	assert.NoError(t, v.Err)
	assert.True(t, v.Form.Date.IsZero(), "form resets after success")
	assert.Empty(t, v.Form.Time)
	assert.Empty(t, v.Form.Name)
	assert.Equal(t, DefaultGuests, v.Form.Guests)
	assert.Equal(t, BookingTypeTable, v.Form.BookingType)
	assert.Contains(t, tracker.seen(), "form_submit")
}

func TestRestaurantFlow_UsesFirstService(t *testing.T) {
	gw := &fakeGateway{
		settings:     restaurantSettings(),
		services:     []model.Service{{ID: "lunch", DurationMin: 60}, {ID: "dinner", DurationMin: 180}},
		createResult: model.CreateResult{Success: true},
	}
	c := newTestController(t, gw, nil)
	ctx := context.Background()

	got := c.SelectDate(ctx, tuesday)
	assert.Equal(t, []string{"11:00", "11:30", "12:00"}, slotStarts(got))

	require.NoError(t, c.SelectTime("12:00"))
	require.NoError(t, c.SetField(FieldName, "Bo"))
	_, err := c.Submit(ctx)
	require.NoError(t, err)

	draft := gw.lastDraft(t)
	assert.Equal(t, "lunch", draft.ServiceID)
	assert.Equal(t, at(tuesday, 13, 0), draft.End)
}

func TestServiceFlow_NeedsServiceAndProvider(t *testing.T) {
	gw := &fakeGateway{
		services:  []model.Service{{ID: "cut", DurationMin: 60}},
		providers: []model.Provider{{ID: "p1"}, {ID: "p2"}},
		settings: &model.Settings{
			CalendarBehavior: &model.CalendarBehavior{StartTime: "09:00", EndTime: "13:00", TimeSlotInterval: 60},
		},
		bookings: []model.Booking{
			{ID: "x", ProviderID: "p2", Start: at(monday, 9, 0), End: at(monday, 10, 0), Status: model.StatusConfirmed},
			{ID: "y", ProviderID: "p1", Start: at(monday, 10, 0), End: at(monday, 11, 0), Status: model.StatusConfirmed},
		},
		createResult: model.CreateResult{Success: true},
	}
	c := newTestController(t, gw, nil)
	ctx := context.Background()

	assert.Nil(t, c.SelectDate(ctx, monday))
	assert.Equal(t, StateReady, c.View().State)
	assert.Nil(t, c.SelectService(ctx, "cut"))

	got := c.SelectProvider(ctx, "p1")
	assert.Equal(t, []string{"09:00", "11:00", "12:00"}, slotStarts(got))
	got = c.SelectProvider(ctx, "p2")
	assert.Equal(t, []string{"10:00", "11:00", "12:00"}, slotStarts(got))

	require.NoError(t, c.SelectTime("10:00"))
	// Changing the service clears the chosen time.
	c.SelectService(ctx, "cut")
	assert.Empty(t, c.View().Form.Time)

	require.NoError(t, c.SelectTime("10:00"))
	_, err := c.Submit(ctx)
	require.NoError(t, err)
	draft := gw.lastDraft(t)
	assert.Equal(t, "cut", draft.ServiceID)
	assert.Equal(t, "p2", draft.ProviderID)
	assert.Equal(t, time.Hour, draft.End.Sub(draft.Start))
}

func TestSelectTime_RejectsUnofferedSlot(t *testing.T) {
	c := newTestController(t, &fakeGateway{settings: restaurantSettings()}, nil)
	c.SelectDate(context.Background(), monday)

	err := c.SelectTime("21:00")
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Empty(t, c.View().Form.Time)
}

func TestSubmit_ValidationBeforeNetwork(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(t, gw, nil)

	_, err := c.Submit(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []Field{FieldDate, FieldTime, FieldService, FieldProvider}, verr.Fields())
	assert.Equal(t, MsgRequiredFields, verr.Errors[0].Message)
	assert.Equal(t, StateError, c.View().State)
	assert.Empty(t, gw.drafts)
}

func TestSubmit_RequiredContactFields(t *testing.T) {
	settings := restaurantSettings()
	settings.FormFields.RequireEmail = model.Bool(true)
	settings.FormFields.RequirePhone = model.Bool(true)
	settings.FormFields.RequireNotes = model.Bool(true)
	gw := &fakeGateway{settings: settings, createResult: model.CreateResult{Success: true}}
	c := newTestController(t, gw, nil)
	ctx := context.Background()

	c.SelectDate(ctx, monday)
	require.NoError(t, c.SelectTime("12:00"))

	_, err := c.Submit(ctx)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has(FieldName))
	assert.True(t, verr.Has(FieldEmail))
	assert.True(t, verr.Has(FieldPhone))
	assert.True(t, verr.Has(FieldNotes))
	assert.False(t, verr.Has(FieldDate))

	require.NoError(t, c.SetField(FieldName, "Anna"))
	require.NoError(t, c.SetField(FieldEmail, "not-an-email"))
	require.NoError(t, c.SetField(FieldPhone, "123"))
	require.NoError(t, c.SetField(FieldNotes, "Fönsterbord"))
	_, err = c.Submit(ctx)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []Field{FieldEmail, FieldPhone}, verr.Fields())

	require.NoError(t, c.SetField(FieldEmail, "anna@example.se"))
	require.NoError(t, c.SetField(FieldPhone, "070-123 45 67"))
	_, err = c.Submit(ctx)
	require.NoError(t, err)
	draft := gw.lastDraft(t)
	assert.Equal(t, "+46701234567", draft.Phone)
	assert.Equal(t, "anna@example.se", draft.Email)
	assert.Equal(t, "Fönsterbord", draft.Notes)
}

func TestSubmit_OptionalFieldsOnlyWhenShown(t *testing.T) {
	gw := &fakeGateway{settings: restaurantSettings(), createResult: model.CreateResult{Success: true}}
	c := newTestController(t, gw, nil)
	ctx := context.Background()

	c.SelectDate(ctx, monday)
	require.NoError(t, c.SelectTime("12:00"))
	require.NoError(t, c.SetField(FieldName, "Anna"))
	require.NoError(t, c.SetField(FieldSpecialRequests, "Glutenfritt"))
	_, err := c.Submit(ctx)
	require.NoError(t, err)
	assert.Empty(t, gw.lastDraft(t).SpecialRequests)
}

// The time is taken between slot computation and submission.
func TestSubmit_ConflictRecomputesSlots(t *testing.T) {
	gw := &fakeGateway{
		settings:     restaurantSettings(),
		createResult: model.CreateResult{Conflict: true, Message: portal.MsgConflict},
	}
	gw.onCreate = func(d model.BookingDraft) {
		gw.addBooking(model.Booking{ID: "other", Start: d.Start, End: d.End, Status: model.StatusConfirmed})
	}
	c := newTestController(t, gw, nil)
	ctx := context.Background()

	c.SelectDate(ctx, monday)
	require.NoError(t, c.SelectTime("18:00"))
	require.NoError(t, c.SetField(FieldName, "Anna"))

	out, err := c.Submit(ctx)
	assert.Nil(t, out)
	require.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), portal.MsgConflict)

	v := c.View()
	assert.ErrorIs(t, v.Err, ErrConflict)
	assert.Equal(t, StateSlotsReady, v.State)
	assert.Empty(t, v.Form.Time)
	assert.Equal(t, "Anna", v.Form.Name, "the rest of the form survives a conflict")
	_, ok := slots.Find(v.Slots, "18:00")
	assert.False(t, ok)
	_, ok = slots.Find(v.Slots, "16:30")
	assert.False(t, ok)
	_, ok = slots.Find(v.Slots, "16:00")
	assert.True(t, ok)
	_, ok = slots.Find(v.Slots, "20:00")
	assert.True(t, ok)
}

func TestSubmit_PortalRefusal(t *testing.T) {
	gw := &fakeGateway{
		settings:     restaurantSettings(),
		createResult: model.CreateResult{Message: portal.MsgCreateFailed},
	}
	c := newTestController(t, gw, nil)
	ctx := context.Background()
	c.SelectDate(ctx, monday)
	require.NoError(t, c.SelectTime("12:00"))
	require.NoError(t, c.SetField(FieldName, "Anna"))

	_, err := c.Submit(ctx)
	require.ErrorIs(t, err, ErrSubmitFailed)
	assert.Contains(t, err.Error(), portal.MsgCreateFailed)
	v := c.View()
	assert.Equal(t, StateError, v.State)
	assert.Equal(t, "12:00", v.Form.Time, "input is kept for a retry")
}

func TestSubmit_CSRFUnavailableIsFatal(t *testing.T) {
	gw := &fakeGateway{
		settings:  restaurantSettings(),
		createErr: fmt.Errorf("%w: connection refused", portal.ErrCSRFUnavailable),
	}
	c := newTestController(t, gw, nil)
	ctx := context.Background()
	c.SelectDate(ctx, monday)
	require.NoError(t, c.SelectTime("12:00"))
	require.NoError(t, c.SetField(FieldName, "Anna"))

	_, err := c.Submit(ctx)
	require.ErrorIs(t, err, portal.ErrCSRFUnavailable)
	assert.Contains(t, err.Error(), "submit booking")
	assert.Equal(t, StateError, c.View().State)
}

func TestSubmit_Payment(t *testing.T) {
	tests := []struct {
		name    string
		result  model.CreateResult
		wantErr error
	}{
		{
			name:   "checkout link",
			result: model.CreateResult{Success: true, RequiresPayment: true, CheckoutURL: "https://pay.example/cs_1", SessionID: "cs_1"},
		},
		{
			name:    "no checkout link",
			result:  model.CreateResult{Success: true, RequiresPayment: true},
			wantErr: ErrPayment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{settings: restaurantSettings(), createResult: tt.result}
			c := newTestController(t, gw, nil)
			ctx := context.Background()
			c.SelectDate(ctx, monday)
			require.NoError(t, c.SelectTime("12:00"))
			require.NoError(t, c.SetField(FieldName, "Anna"))

			out, err := c.Submit(ctx)
			require.NotNil(t, out, "the booking exists either way")
			assert.True(t, out.RequiresPayment)
			assert.Equal(t, tt.result.CheckoutURL, out.CheckoutURL)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, c.View().Err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// A slow answer for an older selection never overwrites the newer one.
func TestRecompute_StaleResultDiscarded(t *testing.T) {
	gw := &fakeGateway{settings: restaurantSettings()}
	c := newTestController(t, gw, nil)
	ctx := context.Background()

	gw.mu.Lock()
	gw.blockFrom = monday
	gw.entered = make(chan struct{})
	gw.release = make(chan struct{})
	gw.mu.Unlock()

	result := make(chan []model.TimeSlot, 1)
	go func() { result <- c.SelectDate(ctx, monday) }()
	<-gw.entered

	newer := c.SelectDate(ctx, tuesday)
	assert.Equal(t, []string{"11:00"}, slotStarts(newer))

	close(gw.release)
	older := <-result
	assert.Equal(t, []string{"11:00"}, slotStarts(older))

	v := c.View()
	assert.Equal(t, tuesday, v.Form.Date)
	assert.Equal(t, []string{"11:00"}, slotStarts(v.Slots))
}

func TestRefreshBookedDates(t *testing.T) {
	gw := &fakeGateway{
		settings: restaurantSettings(),
		bookings: []model.Booking{
			// Tuesday has room for one seating only.
			{ID: "a", Start: at(tuesday, 11, 0), End: at(tuesday, 13, 0), Status: model.StatusConfirmed},
			// Monday still has free slots.
			{ID: "b", Start: at(monday, 18, 0), End: at(monday, 20, 0), Status: model.StatusConfirmed},
		},
	}
	c := newTestController(t, gw, nil)

	v := c.View()
	assert.Equal(t, map[string]bool{"2026-01-13": true}, v.Booked)
	assert.True(t, v.Closed["2026-01-11"], "explicitly closed sunday")
	assert.True(t, v.Closed["2026-01-10"], "saturday has no hours")
	assert.False(t, v.Closed["2026-01-12"])
	assert.False(t, v.Closed["2026-01-13"], "booked days are not closed")
	assert.False(t, v.Closed["2026-03-09"], "a monday within the horizon")
	_, inHorizon := v.Closed["2026-03-11"]
	assert.False(t, inHorizon, "days past the horizon are not evaluated")
}

func TestLoad_DeferBookedDates(t *testing.T) {
	gw := &fakeGateway{
		settings: restaurantSettings(),
		bookings: []model.Booking{
			{ID: "a", Start: at(tuesday, 11, 0), End: at(tuesday, 13, 0), Status: model.StatusConfirmed},
		},
	}
	c := NewController(gw, Options{
		Location: time.UTC,
		Now:      func() time.Time { return testNow },

		DeferBookedDates: true,
	})
	c.Load(context.Background())

	v := c.View()
	assert.Equal(t, StateReady, v.State)
	assert.Empty(t, v.Booked)
	assert.Empty(t, v.Closed)

	avail := c.RefreshBookedDates(context.Background())
	assert.Equal(t, map[string]bool{"2026-01-13": true}, avail.Booked)
	assert.Equal(t, avail.Booked, c.View().Booked)
}

func TestRefreshBookedDates_NoSettings(t *testing.T) {
	c := newTestController(t, &fakeGateway{}, nil)
	avail := c.RefreshBookedDates(context.Background())
	assert.Empty(t, avail.Booked)
	assert.Empty(t, avail.Closed)
}

func TestRefreshSettings(t *testing.T) {
	gw := &fakeGateway{settings: restaurantSettings(), products: []model.Product{{ID: "wine"}}}
	c := newTestController(t, gw, nil)
	ctx := context.Background()

	gw.mu.Lock()
	gw.settings = nil
	gw.mu.Unlock()
	c.RefreshSettings(ctx)
	assert.True(t, c.View().Rules.IsRestaurant, "a failed refresh keeps previous settings")

	updated := restaurantSettings()
	updated.FormFields.AllowProductBooking = model.Bool(true)
	updated.FormFields.RequireEmail = model.Bool(true)
	gw.mu.Lock()
	gw.settings = updated
	gw.mu.Unlock()
	c.RefreshSettings(ctx)

	v := c.View()
	assert.True(t, v.Rules.RequireEmail)
	assert.Len(t, v.Products, 1)
}

func TestRunSettingsRefresh(t *testing.T) {
	gw := &fakeGateway{settings: restaurantSettings()}
	c := newTestController(t, gw, nil)
	before := gw.settingsCalls.Load()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.RunSettingsRefresh(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return gw.settingsCalls.Load() >= before+2
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresh loop did not stop")
	}
}

func TestSetGuests(t *testing.T) {
	c := newTestController(t, &fakeGateway{}, nil)

	for _, n := range []int{0, -1, MaxGuests + 1} {
		err := c.SetGuests(n)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), "guests=%d", n)
		assert.True(t, verr.Has(FieldGuests))
	}
	assert.Equal(t, DefaultGuests, c.View().Form.Guests)

	require.NoError(t, c.SetGuests(MaxGuests))
	assert.Equal(t, MaxGuests, c.View().Form.Guests)
}

func TestSetField_RejectsNonText(t *testing.T) {
	c := newTestController(t, &fakeGateway{}, nil)
	assert.Error(t, c.SetField(FieldDate, "2026-01-12"))
	assert.Error(t, c.SetField(FieldGuests, "4"))
}

func TestSubmit_PackageTypeSurvivesReset(t *testing.T) {
	gw := &fakeGateway{settings: restaurantSettings(), createResult: model.CreateResult{Success: true}}
	c := newTestController(t, gw, nil)
	ctx := context.Background()

	c.SetBookingType(BookingTypePackage)
	c.SelectDate(ctx, monday)
	require.NoError(t, c.SelectTime("12:00"))
	require.NoError(t, c.SetField(FieldName, "Anna"))
	_, err := c.Submit(ctx)
	require.NoError(t, err)

	assert.Equal(t, BookingTypePackage, gw.lastDraft(t).BookingType)
	assert.Equal(t, BookingTypePackage, c.View().Form.BookingType)
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"070-123 45 67", "+46701234567", false},
		{"+46 70 123 45 67", "+46701234567", false},
		{"123", "", true},
		{"telefon", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizePhone(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
