package portal

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"peran/internal/model"
)

// Read endpoints never fail across the package boundary: any transport or
// decode problem yields an empty value and a warning.

// ListServices returns the tenant's services, optionally only active ones.
func (c *Client) ListServices(ctx context.Context, activeOnly bool) []model.Service {
	endpoint := c.bookingURL("/public/services")
	if activeOnly {
		endpoint += "?isActive=true"
	}
	key := c.cacheKey("services", strconv.FormatBool(activeOnly))

	var resp struct {
		Success  bool            `json:"success"`
		Services []model.Service `json:"services"`
	}
	if c.readCache(ctx, key, &resp.Services) {
		return resp.Services
	}
	if err := c.doGet(ctx, "services", endpoint, &resp); err != nil {
		c.log.Warn().Err(err).Msg("fetch services")
		return []model.Service{}
	}
	if !resp.Success || resp.Services == nil {
		c.log.Warn().Msg("no services returned or invalid response format")
		return []model.Service{}
	}
	c.writeCache(ctx, key, resp.Services)
	return resp.Services
}

// ListProviders returns the tenant's providers, optionally only active ones.
func (c *Client) ListProviders(ctx context.Context, activeOnly bool) []model.Provider {
	endpoint := c.bookingURL("/public/providers")
	if activeOnly {
		endpoint += "?isActive=true"
	}
	key := c.cacheKey("providers", strconv.FormatBool(activeOnly))

	var resp struct {
		Success   bool             `json:"success"`
		Providers []model.Provider `json:"providers"`
	}
	if c.readCache(ctx, key, &resp.Providers) {
		return resp.Providers
	}
	if err := c.doGet(ctx, "providers", endpoint, &resp); err != nil {
		c.log.Warn().Err(err).Msg("fetch providers")
		return []model.Provider{}
	}
	if !resp.Success || resp.Providers == nil {
		c.log.Warn().Msg("no providers returned or invalid response format")
		return []model.Provider{}
	}
	c.writeCache(ctx, key, resp.Providers)
	return resp.Providers
}

// GetSettings returns the tenant configuration, or nil when unavailable.
// The portal serves industryTerminology next to settings; it is folded in.
// Settings are never cached so opening hours changes show up on refresh.
func (c *Client) GetSettings(ctx context.Context) *model.Settings {
	var resp struct {
		Success             bool                       `json:"success"`
		Settings            *model.Settings            `json:"settings"`
		IndustryTerminology *model.IndustryTerminology `json:"industryTerminology"`
	}
	if err := c.doGet(ctx, "settings", c.bookingURL("/public/settings"), &resp); err != nil {
		c.log.Warn().Err(err).Msg("fetch booking settings")
		return nil
	}
	if !resp.Success || resp.Settings == nil {
		return nil
	}
	if resp.IndustryTerminology != nil {
		resp.Settings.IndustryTerminology = resp.IndustryTerminology
	}
	return resp.Settings
}

// ListProducts returns bookable add-on products.
func (c *Client) ListProducts(ctx context.Context) []model.Product {
	key := c.cacheKey("products")

	var resp struct {
		Success  bool            `json:"success"`
		Products []model.Product `json:"products"`
	}
	if c.readCache(ctx, key, &resp.Products) {
		return resp.Products
	}
	if err := c.doGet(ctx, "products", c.bookingURL("/public/products"), &resp); err != nil {
		c.log.Warn().Err(err).Msg("fetch booking products")
		return []model.Product{}
	}
	if !resp.Success || resp.Products == nil {
		return []model.Product{}
	}
	c.writeCache(ctx, key, resp.Products)
	return resp.Products
}

// AvailabilitySlot is one slot as the portal computes it for a provider.
type AvailabilitySlot struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
}

// Availability is the portal's own view of a provider's day.
type Availability struct {
	Date         string             `json:"date"`
	IsAvailable  bool               `json:"isAvailable"`
	WorkingHours *model.DayHours    `json:"workingHours,omitempty"`
	Slots        []AvailabilitySlot `json:"slots"`
}

// ProviderAvailability asks the portal for a provider's slots on date.
// Returns nil when unavailable.
func (c *Client) ProviderAvailability(ctx context.Context, providerID string, date time.Time, slotDuration int) *Availability {
	if slotDuration <= 0 {
		slotDuration = 30
	}
	q := url.Values{}
	q.Set("date", date.Format(model.DateLayout))
	q.Set("slotDuration", strconv.Itoa(slotDuration))
	endpoint := fmt.Sprintf("%s?%s", c.bookingURL("/public/providers/"+url.PathEscape(providerID)+"/availability"), q.Encode())

	var resp struct {
		Success      bool          `json:"success"`
		Availability *Availability `json:"availability"`
	}
	if err := c.doGet(ctx, "provider_availability", endpoint, &resp); err != nil {
		c.log.Warn().Err(err).Str("provider_id", providerID).Msg("fetch provider availability")
		return nil
	}
	if !resp.Success {
		return nil
	}
	return resp.Availability
}
