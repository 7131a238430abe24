package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultContactSubject is used when a contact message has no subject.
const DefaultContactSubject = "Kontaktformulär"

// ContactMessage is a message for the restaurant's inbox.
type ContactMessage struct {
	Name    string
	Email   string
	Phone   string
	Subject string
	Message string
}

// SendContactMessage posts msg to the tenant inbox and returns its id.
func (c *Client) SendContactMessage(ctx context.Context, msg ContactMessage) (string, error) {
	if strings.TrimSpace(msg.Message) == "" {
		return "", errors.New("message is required")
	}
	token, err := c.csrfToken(ctx)
	if err != nil {
		return "", err
	}

	subject := msg.Subject
	if subject == "" {
		subject = DefaultContactSubject
	}
	body := map[string]string{
		"tenant":  c.tenant,
		"name":    msg.Name,
		"email":   msg.Email,
		"phone":   msg.Phone,
		"subject": subject,
		"message": msg.Message,
		// Honeypot, must stay empty.
		"company": "",
	}

	req, err := c.newJSONRequest(ctx, http.MethodPost, c.baseURL+"/api/messages", body, token)
	if err != nil {
		return "", err
	}
	var resp struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	if err := c.do("contact_message", req, &resp); err != nil {
		return "", fmt.Errorf("send contact message: %w", err)
	}
	if !resp.Success {
		return "", fmt.Errorf("send contact message: %s", orDefault(resp.Message, "Kunde inte skicka meddelande"))
	}
	return resp.ID, nil
}

// Analytics event names understood by the portal.
const (
	EventPageView   = "page_view"
	EventFormStart  = "form_start"
	EventFormSubmit = "form_submit"
	EventCTAClick   = "cta_click"
)

// Track posts an analytics event. No CSRF is needed and failures are only
// logged.
func (c *Client) Track(ctx context.Context, sessionID, event string, data map[string]any) {
	if sessionID == "" {
		return
	}
	payload := make(map[string]any, len(data)+2)
	for k, v := range data {
		payload[k] = v
	}
	payload["sessionId"] = sessionID
	payload["timestamp"] = time.Now().UTC().Format(isoMillis)

	body := map[string]any{
		"event":  event,
		"tenant": c.tenant,
		"data":   payload,
	}
	if err := c.doPost(ctx, "analytics", c.baseURL+"/api/analytics/track", body, nil); err != nil {
		c.log.Debug().Err(err).Str("event", event).Msg("track event")
	}
}

// TrackPageView records a page view with its traffic source.
func (c *Client) TrackPageView(ctx context.Context, sessionID, page, referrer string) {
	c.Track(ctx, sessionID, EventPageView, map[string]any{
		"page":     page,
		"referrer": referrer,
		"device":   "telegram",
		"source":   TrafficSource(referrer),
	})
}

// TrafficSource classifies a referrer as direct, organic, social or referral.
func TrafficSource(referrer string) string {
	ref := strings.ToLower(referrer)
	switch {
	case ref == "":
		return "direct"
	case containsAny(ref, "google", "bing", "yahoo"):
		return "organic"
	case containsAny(ref, "facebook", "instagram", "twitter", "linkedin"):
		return "social"
	default:
		return "referral"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
