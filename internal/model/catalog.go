package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// DefaultServiceDuration applies when a service has no usable duration.
const DefaultServiceDuration = 120

// Service is a bookable offering (a table seating for restaurants).
type Service struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DurationMin int    `json:"durationMin,omitempty"`
}

func (s *Service) UnmarshalJSON(data []byte) error {
	type plain Service
	var raw struct {
		plain
		MongoID     string `json:"_id"`
		DurationMin number `json:"durationMin"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Service(raw.plain)
	if s.ID == "" {
		s.ID = raw.MongoID
	}
	s.DurationMin = int(raw.DurationMin.rounded())
	return nil
}

// Minutes returns the service length in minutes, defaulting to 120.
func (s *Service) Minutes() int {
	if s == nil || s.DurationMin <= 0 {
		return DefaultServiceDuration
	}
	return s.DurationMin
}

// Duration is Minutes as a time.Duration.
func (s *Service) Duration() time.Duration {
	return time.Duration(s.Minutes()) * time.Minute
}

// Provider is a staff member or resource a booking is assigned to.
type Provider struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p *Provider) UnmarshalJSON(data []byte) error {
	type plain Provider
	var raw struct {
		plain
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Provider(raw.plain)
	if p.ID == "" {
		p.ID = raw.MongoID
	}
	return nil
}

// Price is one purchasable price point of a product.
type Price struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (p *Price) UnmarshalJSON(data []byte) error {
	type plain Price
	var raw struct {
		plain
		Amount number `json:"amount"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Price(raw.plain)
	p.Amount = raw.Amount.rounded()
	return nil
}

// number decodes a JSON number that may be fractional, quoted or null.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*n = number(f)
	return nil
}

func (n number) rounded() int64 {
	return int64(math.Round(float64(n)))
}

// Product is an add-on that can be attached to a booking.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Prices      []Price `json:"prices,omitempty"`
}

func (p *Product) UnmarshalJSON(data []byte) error {
	type plain Product
	var raw struct {
		plain
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Product(raw.plain)
	if p.ID == "" {
		p.ID = raw.MongoID
	}
	return nil
}

// FindService returns the service with id, or nil.
func FindService(services []Service, id string) *Service {
	for i := range services {
		if services[i].ID == id {
			return &services[i]
		}
	}
	return nil
}

// FindProvider returns the provider with id, or nil.
func FindProvider(providers []Provider, id string) *Provider {
	for i := range providers {
		if providers[i].ID == id {
			return &providers[i]
		}
	}
	return nil
}

// TimeSlot is a computed, bookable interval. It is never persisted.
type TimeSlot struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Display string    `json:"display"`
}
