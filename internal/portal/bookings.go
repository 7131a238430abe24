package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"peran/internal/model"
)

// Messages shown when the portal gives no reason of its own.
const (
	MsgConflict       = "Denna tid är redan bokad. Välj en annan tid."
	MsgCreateFailed   = "Kunde inte skapa bokning"
	MsgCreateError    = "Ett fel uppstod vid skapande av bokning"
	MsgUpdateConflict = "Bokningen kolliderar med en befintlig bokning"
	MsgUpdateFailed   = "Kunde inte uppdatera bokning"
	MsgUpdateError    = "Ett fel uppstod vid uppdatering av bokning"
	MsgCancelFailed   = "Kunde inte avboka"
	MsgCancelError    = "Ett fel uppstod vid avbokning"
	MsgUnavailable    = "Bokningen kan inte skickas just nu. Försök igen senare."
)

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// ListBookings returns non-canceled bookings in [from, to], optionally for one
// provider. Failures yield an empty slice.
func (c *Client) ListBookings(ctx context.Context, from, to time.Time, providerID string) []model.Booking {
	bookings, err := c.listBookings(ctx, from, to, providerID)
	if err != nil {
		c.log.Warn().Err(err).Msg("fetch bookings")
		return []model.Booking{}
	}
	return bookings
}

func (c *Client) listBookings(ctx context.Context, from, to time.Time, providerID string) ([]model.Booking, error) {
	q := url.Values{}
	q.Set("from", from.UTC().Format(isoMillis))
	q.Set("to", to.UTC().Format(isoMillis))
	if providerID != "" {
		q.Set("providerId", providerID)
	}

	var resp struct {
		Success  bool            `json:"success"`
		Bookings []model.Booking `json:"bookings"`
	}
	if err := c.doGet(ctx, "bookings", c.bookingURL("/public/bookings")+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return []model.Booking{}, nil
	}
	return model.ActiveOnly(resp.Bookings), nil
}

// CheckAvailability reports whether [start, end) is free for providerID.
// An unreachable portal counts as unavailable.
func (c *Client) CheckAvailability(ctx context.Context, start, end time.Time, providerID string) bool {
	bookings, err := c.listBookings(ctx, start, end, providerID)
	if err != nil {
		c.log.Warn().Err(err).Msg("check availability")
		return false
	}
	for i := range bookings {
		if start.Before(bookings[i].End) && end.After(bookings[i].Start) {
			return false
		}
	}
	return true
}

type createRequest struct {
	ServiceID       string              `json:"serviceId,omitempty"`
	ProviderID      *string             `json:"providerId"`
	Start           string              `json:"start"`
	End             string              `json:"end"`
	CustomerName    string              `json:"customerName"`
	Email           string              `json:"email"`
	Phone           string              `json:"phone"`
	Status          model.BookingStatus `json:"status"`
	PartySize       int                 `json:"partySize"`
	Notes           string              `json:"notes,omitempty"`
	SpecialRequests string              `json:"specialRequests,omitempty"`
	ProductIDs      []string            `json:"productIds,omitempty"`
	BookingType     string              `json:"bookingType,omitempty"`
}

type mutationResponse struct {
	Success         bool           `json:"success"`
	Booking         *model.Booking `json:"booking"`
	RequiresPayment bool           `json:"requiresPayment"`
	CheckoutURL     string         `json:"checkoutUrl"`
	SessionID       string         `json:"sessionId"`
	Message         string         `json:"message"`
}

// CreateBooking submits draft. The only error is ErrCSRFUnavailable; every
// other failure is reported in the result. A 409 sets Conflict.
func (c *Client) CreateBooking(ctx context.Context, draft model.BookingDraft) (model.CreateResult, error) {
	token, err := c.csrfToken(ctx)
	if err != nil {
		return model.CreateResult{}, err
	}

	body := createRequest{
		ServiceID:       draft.ServiceID,
		Start:           draft.Start.UTC().Format(isoMillis),
		End:             draft.End.UTC().Format(isoMillis),
		CustomerName:    draft.CustomerName,
		Email:           draft.Email,
		Phone:           draft.Phone,
		Status:          model.StatusConfirmed,
		PartySize:       draft.PartySize,
		Notes:           draft.Notes,
		SpecialRequests: draft.SpecialRequests,
		ProductIDs:      draft.ProductIDs,
		BookingType:     draft.BookingType,
	}
	if draft.ProviderID != "" {
		body.ProviderID = &draft.ProviderID
	}
	if body.PartySize <= 0 {
		body.PartySize = 1
	}

	status, resp, err := c.mutate(ctx, "create_booking", http.MethodPost, c.bookingURL("/public/bookings"), body, token)
	if err != nil {
		c.log.Error().Err(err).Msg("create booking")
		return model.CreateResult{Message: MsgCreateError}, nil
	}

	if status == http.StatusConflict {
		return model.CreateResult{Conflict: true, Message: orDefault(resp.Message, MsgConflict)}, nil
	}
	if status < 300 && resp.Success {
		return model.CreateResult{
			Success:         true,
			Booking:         resp.Booking,
			RequiresPayment: resp.RequiresPayment,
			CheckoutURL:     resp.CheckoutURL,
			SessionID:       resp.SessionID,
		}, nil
	}
	c.log.Warn().Int("status", status).Str("message", resp.Message).Msg("booking rejected")
	return model.CreateResult{Message: orDefault(resp.Message, MsgCreateFailed)}, nil
}

// BookingPatch lists the fields an update may change.
type BookingPatch struct {
	Start      *time.Time          `json:"-"`
	End        *time.Time          `json:"-"`
	ProviderID string              `json:"providerId,omitempty"`
	Status     model.BookingStatus `json:"status,omitempty"`
	PartySize  int                 `json:"partySize,omitempty"`
	Notes      string              `json:"notes,omitempty"`
}

func (p BookingPatch) MarshalJSON() ([]byte, error) {
	type plain BookingPatch
	out := struct {
		plain
		Start string `json:"start,omitempty"`
		End   string `json:"end,omitempty"`
	}{plain: plain(p)}
	if p.Start != nil {
		out.Start = p.Start.UTC().Format(isoMillis)
	}
	if p.End != nil {
		out.End = p.End.UTC().Format(isoMillis)
	}
	return json.Marshal(out)
}

// UpdateBooking changes an existing booking. A 409 sets Conflict.
func (c *Client) UpdateBooking(ctx context.Context, id string, patch BookingPatch) (model.CreateResult, error) {
	token, err := c.csrfToken(ctx)
	if err != nil {
		return model.CreateResult{}, err
	}

	status, resp, err := c.mutate(ctx, "update_booking", http.MethodPut, c.bookingURL("/bookings/"+url.PathEscape(id)), patch, token)
	if err != nil {
		c.log.Error().Err(err).Str("booking_id", id).Msg("update booking")
		return model.CreateResult{Message: MsgUpdateError}, nil
	}
	if status == http.StatusConflict {
		return model.CreateResult{Conflict: true, Message: orDefault(resp.Message, MsgUpdateConflict)}, nil
	}
	if status < 300 && resp.Success {
		return model.CreateResult{Success: true, Booking: resp.Booking}, nil
	}
	return model.CreateResult{Message: orDefault(resp.Message, MsgUpdateFailed)}, nil
}

// CancelBooking moves a booking to canceled.
func (c *Client) CancelBooking(ctx context.Context, id string) (model.CreateResult, error) {
	token, err := c.csrfToken(ctx)
	if err != nil {
		return model.CreateResult{}, err
	}

	status, resp, err := c.mutate(ctx, "cancel_booking", http.MethodPost, c.bookingURL("/bookings/"+url.PathEscape(id)+"/cancel"), nil, token)
	if err != nil {
		c.log.Error().Err(err).Str("booking_id", id).Msg("cancel booking")
		return model.CreateResult{Message: MsgCancelError}, nil
	}
	if status < 300 && resp.Success {
		return model.CreateResult{Success: true, Booking: resp.Booking}, nil
	}
	return model.CreateResult{Message: orDefault(resp.Message, MsgCancelFailed)}, nil
}

// mutate sends a CSRF-protected request and decodes the body whatever the
// status; a body that is not JSON becomes the message.
func (c *Client) mutate(ctx context.Context, endpoint, method, target string, body any, token string) (int, mutationResponse, error) {
	var resp mutationResponse
	req, err := c.newJSONRequest(ctx, method, target, body, token)
	if err != nil {
		return 0, resp, err
	}
	status, raw, err := c.send(endpoint, req)
	if err != nil {
		return status, resp, err
	}
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &resp); err != nil {
			resp = mutationResponse{Message: strings.TrimSpace(string(raw))}
		}
	}
	return status, resp, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
