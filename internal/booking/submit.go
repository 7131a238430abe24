package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"

	"peran/internal/metrics"
	"peran/internal/model"
	"peran/internal/slots"
)

var (
	// ErrConflict means the portal answered 409: the time was taken meanwhile.
	ErrConflict = errors.New("time already booked")
	// ErrPayment means the booking needs payment but no checkout was created.
	ErrPayment = errors.New("payment could not be started")
	// ErrSubmitFailed is any other refusal by the portal.
	ErrSubmitFailed = errors.New("booking was not created")
	// ErrSlotUnavailable means the picked time is not among the offered slots.
	ErrSlotUnavailable = errors.New("time slot not available")
	// ErrBusy means a submission is already in flight.
	ErrBusy = errors.New("booking already being submitted")
)

// MsgRequiredFields is shown when required fields are missing.
const MsgRequiredFields = "Vänligen fyll i alla obligatoriska fält"

// FieldError is one invalid or missing field.
type FieldError struct {
	Field   Field
	Message string
}

// ValidationError lists the fields that block a submission.
type ValidationError struct {
	Errors []FieldError
}

func (v *ValidationError) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v.Errors), strings.Join(msgs, "; "))
}

// Fields returns the names of the offending fields in order.
func (v *ValidationError) Fields() []Field {
	out := make([]Field, len(v.Errors))
	for i, e := range v.Errors {
		out[i] = e.Field
	}
	return out
}

// Has reports whether f is among the offending fields.
func (v *ValidationError) Has(f Field) bool {
	for _, e := range v.Errors {
		if e.Field == f {
			return true
		}
	}
	return false
}

// Outcome describes a created booking.
type Outcome struct {
	Booking         *model.Booking
	Start           time.Time
	End             time.Time
	RequiresPayment bool
	CheckoutURL     string
	SessionID       string
}

var validate = validator.New()

// contactInput carries the format rules checked with the validator.
type contactInput struct {
	Email  string `validate:"omitempty,email"`
	Guests int    `validate:"gte=1,lte=12"`
}

// NormalizePhone returns phone in E.164, reading national numbers as Swedish.
func NormalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}
	num, err := phonenumbers.Parse(phone, "SE")
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone number: %s", phone)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// validateLocked checks the form before any network call. Restaurants need
// date, time and name; other tenants need date, time, service and provider.
// Fields the tenant marks as required are added on top.
func (c *Controller) validateLocked() (string, error) {
	var errs []FieldError
	missing := func(f Field) {
		errs = append(errs, FieldError{Field: f, Message: MsgRequiredFields})
	}
	f := c.form
	r := c.rules

	if f.Date.IsZero() {
		missing(FieldDate)
	}
	if f.Time == "" {
		missing(FieldTime)
	}
	if r.IsRestaurant {
		if strings.TrimSpace(f.Name) == "" {
			missing(FieldName)
		}
	} else {
		if f.ServiceID == "" {
			missing(FieldService)
		}
		if f.ProviderID == "" {
			missing(FieldProvider)
		}
	}
	if r.RequireEmail && strings.TrimSpace(f.Email) == "" {
		missing(FieldEmail)
	}
	if r.RequirePhone && strings.TrimSpace(f.Phone) == "" {
		missing(FieldPhone)
	}
	if r.RequireNotes && strings.TrimSpace(f.Notes) == "" {
		missing(FieldNotes)
	}

	input := contactInput{Email: strings.TrimSpace(f.Email), Guests: f.Guests}
	if err := validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return "", err
		}
		for _, fe := range verrs {
			switch fe.Field() {
			case "Email":
				errs = append(errs, FieldError{Field: FieldEmail, Message: "email must be a valid address"})
			case "Guests":
				errs = append(errs, FieldError{Field: FieldGuests, Message: fmt.Sprintf("guests must be between %d and %d", MinGuests, MaxGuests)})
			}
		}
	}

	phone, err := NormalizePhone(f.Phone)
	if err != nil {
		errs = append(errs, FieldError{Field: FieldPhone, Message: "phone must be a valid number"})
	}

	if len(errs) > 0 {
		return "", &ValidationError{Errors: errs}
	}
	return phone, nil
}

// Submit validates the form and creates the booking.
//
// Errors: *ValidationError before any network call; ErrConflict when the time
// was taken (slots are recomputed); ErrPayment when payment is required but
// no checkout URL came back; ErrSubmitFailed for other refusals; and
// portal.ErrCSRFUnavailable, wrapped, when nothing can be submitted at all.
func (c *Controller) Submit(ctx context.Context) (*Outcome, error) {
	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	phone, err := c.validateLocked()
	if err != nil {
		c.lastErr = err
		c.setState(StateError)
		c.mu.Unlock()
		return nil, err
	}

	if c.rules.IsRestaurant && c.form.ServiceID == "" && len(c.services) > 0 {
		c.form.ServiceID = c.services[0].ID
	}
	service := model.FindService(c.services, c.form.ServiceID)

	clock, err := slots.ParseClock(c.form.Time)
	if err != nil {
		c.lastErr = &ValidationError{Errors: []FieldError{{Field: FieldTime, Message: err.Error()}}}
		c.setState(StateError)
		c.mu.Unlock()
		return nil, c.lastErr
	}
	day := c.form.Date
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, clock, 0, 0, c.loc)
	end := start.Add(service.Duration())

	draft := model.BookingDraft{
		ServiceID:    c.form.ServiceID,
		ProviderID:   c.form.ProviderID,
		Start:        start,
		End:          end,
		CustomerName: strings.TrimSpace(c.form.Name),
		Email:        strings.TrimSpace(c.form.Email),
		Phone:        phone,
		PartySize:    c.form.Guests,
		Notes:        c.form.Notes,
		BookingType:  c.form.BookingType,
	}
	if c.rules.IsRestaurant {
		draft.ProviderID = ""
	}
	if c.rules.ShowSpecial {
		draft.SpecialRequests = c.form.SpecialRequests
	}
	if c.rules.ShowProducts && len(c.form.ProductIDs) > 0 {
		draft.ProductIDs = append([]string(nil), c.form.ProductIDs...)
	}
	c.lastErr = nil
	c.setState(StateSubmitting)
	c.mu.Unlock()

	res, err := c.gw.CreateBooking(ctx, draft)
	if err != nil {
		metrics.IncBookingCreated("fatal")
		c.log.Error().Err(err).Msg("booking submission impossible")
		return nil, c.fail(fmt.Errorf("submit booking: %w", err))
	}

	if res.Conflict {
		metrics.IncBookingCreated("conflict")
		err := fmt.Errorf("%w: %s", ErrConflict, res.Message)
		c.mu.Lock()
		c.form.Time = ""
		c.mu.Unlock()
		c.fail(err)
		c.recompute(ctx)
		c.keepError(err)
		return nil, err
	}

	if !res.Success {
		metrics.IncBookingCreated("failed")
		return nil, c.fail(fmt.Errorf("%w: %s", ErrSubmitFailed, res.Message))
	}

	outcome := &Outcome{
		Booking:         res.Booking,
		Start:           start,
		End:             end,
		RequiresPayment: res.RequiresPayment,
		CheckoutURL:     res.CheckoutURL,
		SessionID:       res.SessionID,
	}

	// The reset clears the date, so the refreshed slot list is empty; the
	// calendar is re-read so the new booking shows up there.
	c.mu.Lock()
	c.seq++
	c.form = newForm(c.form.BookingType)
	c.slots = nil
	c.setState(StateSuccess)
	c.mu.Unlock()

	c.track(ctx, "form_submit", nil)
	c.RefreshBookedDates(ctx)

	if res.RequiresPayment && res.CheckoutURL == "" {
		metrics.IncBookingCreated("payment_error")
		c.keepError(ErrPayment)
		return outcome, ErrPayment
	}
	if res.RequiresPayment {
		metrics.IncBookingCreated("awaiting_payment")
	} else {
		metrics.IncBookingCreated("created")
	}
	return outcome, nil
}

func (c *Controller) fail(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
	c.setState(StateError)
	return err
}

// keepError records err without leaving the current state.
func (c *Controller) keepError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
}
