package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"peran/internal/metrics"
	"peran/internal/model"
	"peran/internal/slots"
)

const (
	BookingTypeTable   = "table"
	BookingTypePackage = "package"

	DefaultGuests = 2
	MinGuests     = 1
	MaxGuests     = 12

	// BookedHorizonDays is how far ahead fully booked days are looked up.
	BookedHorizonDays = 60

	// SettingsRefreshInterval is how often tenant settings are re-read.
	SettingsRefreshInterval = 5 * time.Minute
)

// Gateway is the portal surface the form uses.
type Gateway interface {
	ListServices(ctx context.Context, activeOnly bool) []model.Service
	ListProviders(ctx context.Context, activeOnly bool) []model.Provider
	GetSettings(ctx context.Context) *model.Settings
	ListProducts(ctx context.Context) []model.Product
	ListBookings(ctx context.Context, from, to time.Time, providerID string) []model.Booking
	CreateBooking(ctx context.Context, draft model.BookingDraft) (model.CreateResult, error)
}

// Tracker receives analytics events.
type Tracker interface {
	Track(ctx context.Context, sessionID, event string, data map[string]any)
}

// Form is the user's input. A zero Date means no date is chosen.
type Form struct {
	BookingType     string
	Date            time.Time
	ServiceID       string
	ProviderID      string
	Time            string // "HH:MM"
	Guests          int
	Name            string
	Email           string
	Phone           string
	Notes           string
	SpecialRequests string
	ProductIDs      []string
}

func newForm(bookingType string) Form {
	if bookingType == "" {
		bookingType = BookingTypeTable
	}
	return Form{BookingType: bookingType, Guests: DefaultGuests}
}

// Options configure a Controller.
type Options struct {
	Location *time.Location
	Tracker  Tracker
	Logger   *zerolog.Logger
	Now      func() time.Time
	FormID   string

	// DeferBookedDates leaves RefreshBookedDates to the caller after Load.
	DeferBookedDates bool
}

// Controller is one booking form. It is safe for concurrent use; the mutex is
// never held across portal calls.
type Controller struct {
	gw      Gateway
	tracker Tracker
	log     *zerolog.Logger
	loc     *time.Location
	now     func() time.Time
	fsm     *FSM
	formID  string
	session string
	lazy    bool

	mu        sync.Mutex
	state     State
	services  []model.Service
	providers []model.Provider
	products  []model.Product
	settings  *model.Settings
	rules     model.ResolvedFormRules
	form      Form
	slots     []model.TimeSlot
	seq       uint64
	booked    map[string]bool
	closed    map[string]bool
	lastErr   error
}

// NewController builds a form in the loading state. Call Load before use.
func NewController(gw Gateway, opts Options) *Controller {
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
	if opts.FormID == "" {
		opts.FormID = "booking"
	}
	return &Controller{
		gw:      gw,
		tracker: opts.Tracker,
		log:     opts.Logger,
		loc:     opts.Location,
		now:     opts.Now,
		fsm:     NewFSM(),
		formID:  opts.FormID,
		session: "sess_" + uuid.NewString(),
		lazy:    opts.DeferBookedDates,
		state:   StateLoading,
		rules:   model.ResolveFormRules(nil),
		form:    newForm(BookingTypeTable),
		booked:  map[string]bool{},
		closed:  map[string]bool{},
	}
}

// SessionID is the analytics session of this form.
func (c *Controller) SessionID() string {
	return c.session
}

// Location is the time zone dates are interpreted in.
func (c *Controller) Location() *time.Location {
	return c.loc
}

// setState must be called with mu held.
func (c *Controller) setState(to State) {
	if c.state == to {
		return
	}
	if !c.fsm.CanTransition(c.state, to) {
		c.log.Warn().Str("from", string(c.state)).Str("to", string(to)).Msg("unexpected form transition")
	}
	c.state = to
}

// Load fetches services, providers and settings concurrently, resolves the
// form rules and loads products when the tenant sells add-ons.
func (c *Controller) Load(ctx context.Context) {
	c.mu.Lock()
	c.setState(StateLoading)
	c.mu.Unlock()

	var (
		wg        sync.WaitGroup
		services  []model.Service
		providers []model.Provider
		settings  *model.Settings
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		services = c.gw.ListServices(ctx, true)
	}()
	go func() {
		defer wg.Done()
		providers = c.gw.ListProviders(ctx, true)
	}()
	go func() {
		defer wg.Done()
		settings = c.gw.GetSettings(ctx)
	}()
	wg.Wait()

	rules := model.ResolveFormRules(settings)
	var products []model.Product
	if rules.ShowProducts {
		products = c.gw.ListProducts(ctx)
	}

	c.mu.Lock()
	c.services = services
	c.providers = providers
	c.settings = settings
	c.rules = rules
	c.products = products
	c.setState(StateReady)
	c.mu.Unlock()

	c.log.Debug().
		Int("services", len(services)).
		Int("providers", len(providers)).
		Bool("settings", settings != nil).
		Bool("restaurant", rules.IsRestaurant).
		Msg("booking form loaded")

	c.track(ctx, "form_start", nil)
	if !c.lazy {
		c.RefreshBookedDates(ctx)
	}
}

// RefreshSettings re-reads tenant settings and re-resolves the form rules.
// A failed read keeps the previous settings.
func (c *Controller) RefreshSettings(ctx context.Context) {
	settings := c.gw.GetSettings(ctx)
	if settings == nil {
		c.log.Debug().Msg("settings refresh returned nothing, keeping previous")
		return
	}
	rules := model.ResolveFormRules(settings)

	c.mu.Lock()
	needProducts := rules.ShowProducts && len(c.products) == 0
	c.settings = settings
	c.rules = rules
	if !rules.ShowProducts {
		c.form.ProductIDs = nil
	}
	c.mu.Unlock()

	if needProducts {
		products := c.gw.ListProducts(ctx)
		c.mu.Lock()
		c.products = products
		c.mu.Unlock()
	}
}

// RunSettingsRefresh refreshes settings every interval until ctx is done.
func (c *Controller) RunSettingsRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = SettingsRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RefreshSettings(ctx)
		}
	}
}

// SelectDate chooses a day, clears the chosen time and recomputes slots.
func (c *Controller) SelectDate(ctx context.Context, date time.Time) []model.TimeSlot {
	c.mu.Lock()
	c.form.Date = c.midnight(date)
	c.form.Time = ""
	c.mu.Unlock()
	return c.recompute(ctx)
}

// SelectService chooses a service, clears the chosen time and recomputes.
func (c *Controller) SelectService(ctx context.Context, serviceID string) []model.TimeSlot {
	c.mu.Lock()
	c.form.ServiceID = serviceID
	c.form.Time = ""
	c.mu.Unlock()
	return c.recompute(ctx)
}

// SelectProvider chooses a provider, clears the chosen time and recomputes.
func (c *Controller) SelectProvider(ctx context.Context, providerID string) []model.TimeSlot {
	c.mu.Lock()
	c.form.ProviderID = providerID
	c.form.Time = ""
	c.mu.Unlock()
	return c.recompute(ctx)
}

// Recompute refreshes the slots for the current selection.
func (c *Controller) Recompute(ctx context.Context) []model.TimeSlot {
	return c.recompute(ctx)
}

// SelectTime picks one of the currently offered slots.
func (c *Controller) SelectTime(hhmm string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := slots.Find(c.slots, hhmm); !ok {
		return fmt.Errorf("%w: %s", ErrSlotUnavailable, hhmm)
	}
	c.form.Time = hhmm
	return nil
}

type slotQuery struct {
	date       time.Time
	from, to   time.Time
	duration   int
	providerID string
	settings   *model.Settings
}

// slotQueryLocked returns the inputs of a slot computation, or false when a
// dependency is missing. Restaurants need only a date; other tenants also
// need a service and a provider.
func (c *Controller) slotQueryLocked() (slotQuery, bool) {
	if c.form.Date.IsZero() {
		return slotQuery{}, false
	}
	q := slotQuery{
		date:     c.form.Date,
		from:     c.form.Date,
		to:       c.form.Date.AddDate(0, 0, 1).Add(-time.Millisecond),
		settings: c.settings,
	}
	if c.rules.IsRestaurant {
		q.duration = c.restaurantServiceLocked().Minutes()
		return q, true
	}
	if c.form.ServiceID == "" || c.form.ProviderID == "" {
		return slotQuery{}, false
	}
	q.duration = model.FindService(c.services, c.form.ServiceID).Minutes()
	q.providerID = c.form.ProviderID
	return q, true
}

// restaurantServiceLocked is the chosen service or the first one offered.
func (c *Controller) restaurantServiceLocked() *model.Service {
	if s := model.FindService(c.services, c.form.ServiceID); s != nil {
		return s
	}
	if len(c.services) > 0 {
		return &c.services[0]
	}
	return nil
}

// recompute fetches the day's bookings and runs the slot engine. Each run
// takes a sequence number and only the newest run may publish its result.
func (c *Controller) recompute(ctx context.Context) []model.TimeSlot {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	q, ok := c.slotQueryLocked()
	if !ok {
		c.slots = nil
		c.setState(StateReady)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	bookings := c.gw.ListBookings(ctx, q.from, q.to, q.providerID)
	computed := slots.Compute(q.date, q.duration, bookings, q.settings)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq {
		metrics.IncStaleSlotResult()
		return c.copySlotsLocked()
	}
	c.slots = computed
	metrics.ObserveSlotsOffered(len(computed))
	c.setState(StateSlotsReady)
	return c.copySlotsLocked()
}

func (c *Controller) copySlotsLocked() []model.TimeSlot {
	if c.slots == nil {
		return nil
	}
	out := make([]model.TimeSlot, len(c.slots))
	copy(out, c.slots)
	return out
}

// CalendarAvailability marks days as fully booked or closed, keyed by
// YYYY-MM-DD. It is advisory and never blocks a slot computation.
type CalendarAvailability struct {
	Booked map[string]bool
	Closed map[string]bool
}

// RefreshBookedDates looks BookedHorizonDays ahead and marks days that have
// bookings and no free slot left, plus days the tenant is closed.
func (c *Controller) RefreshBookedDates(ctx context.Context) CalendarAvailability {
	c.mu.Lock()
	settings := c.settings
	restaurant := c.rules.IsRestaurant
	providerID := ""
	duration := model.DefaultServiceDuration
	if restaurant {
		duration = c.restaurantServiceLocked().Minutes()
	} else {
		providerID = c.form.ProviderID
		if s := model.FindService(c.services, c.form.ServiceID); s != nil {
			duration = s.Minutes()
		}
	}
	c.mu.Unlock()

	today := c.midnight(c.now())
	horizon := today.AddDate(0, 0, BookedHorizonDays)
	bookings := c.gw.ListBookings(ctx, today, horizon, providerID)

	byDay := make(map[string][]model.Booking)
	for _, b := range bookings {
		key := b.DateKey(c.loc)
		byDay[key] = append(byDay[key], b)
	}

	avail := CalendarAvailability{Booked: map[string]bool{}, Closed: map[string]bool{}}
	for day := today; day.Before(horizon); day = day.AddDate(0, 0, 1) {
		key := day.Format(model.DateLayout)
		if settings != nil {
			if _, open := slots.Resolve(day, settings); !open {
				avail.Closed[key] = true
				continue
			}
		}
		if dayBookings := byDay[key]; len(dayBookings) > 0 && len(slots.Compute(day, duration, dayBookings, settings)) == 0 {
			avail.Booked[key] = true
		}
	}

	c.mu.Lock()
	c.booked = avail.Booked
	c.closed = avail.Closed
	c.mu.Unlock()
	return avail
}

// SetGuests sets the party size.
func (c *Controller) SetGuests(n int) error {
	if n < MinGuests || n > MaxGuests {
		return &ValidationError{Errors: []FieldError{{
			Field:   FieldGuests,
			Message: fmt.Sprintf("guests must be between %d and %d", MinGuests, MaxGuests),
		}}}
	}
	c.mu.Lock()
	c.form.Guests = n
	c.mu.Unlock()
	return nil
}

// SetField stores free text for one of the contact fields.
func (c *Controller) SetField(f Field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch f {
	case FieldName:
		c.form.Name = value
	case FieldEmail:
		c.form.Email = value
	case FieldPhone:
		c.form.Phone = value
	case FieldNotes:
		c.form.Notes = value
	case FieldSpecialRequests:
		c.form.SpecialRequests = value
	default:
		return fmt.Errorf("field %q is not free text", f)
	}
	return nil
}

// ToggleProduct adds or removes an add-on product.
func (c *Controller) ToggleProduct(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, id := range c.form.ProductIDs {
		if id == productID {
			c.form.ProductIDs = append(c.form.ProductIDs[:i:i], c.form.ProductIDs[i+1:]...)
			return
		}
	}
	c.form.ProductIDs = append(c.form.ProductIDs, productID)
}

// SetBookingType switches between a table and a package booking.
func (c *Controller) SetBookingType(t string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form.BookingType = t
}

// View is a copy of the form state for rendering.
type View struct {
	State     State
	Rules     model.ResolvedFormRules
	Services  []model.Service
	Providers []model.Provider
	Products  []model.Product
	Settings  *model.Settings
	Form      Form
	Slots     []model.TimeSlot
	Booked    map[string]bool
	Closed    map[string]bool
	Err       error
}

// View returns a snapshot of the form.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	form := c.form
	form.ProductIDs = append([]string(nil), c.form.ProductIDs...)
	return View{
		State:     c.state,
		Rules:     c.rules,
		Services:  append([]model.Service(nil), c.services...),
		Providers: append([]model.Provider(nil), c.providers...),
		Products:  append([]model.Product(nil), c.products...),
		Settings:  c.settings,
		Form:      form,
		Slots:     c.copySlotsLocked(),
		Booked:    copySet(c.booked),
		Closed:    copySet(c.closed),
		Err:       c.lastErr,
	}
}

func copySet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (c *Controller) midnight(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

func (c *Controller) track(ctx context.Context, event string, extra map[string]any) {
	if c.tracker == nil {
		return
	}
	data := map[string]any{"formId": c.formID, "page": "/boka"}
	for k, v := range extra {
		data[k] = v
	}
	c.tracker.Track(ctx, c.session, event, data)
}
