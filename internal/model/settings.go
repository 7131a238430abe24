package model

import (
	"strings"
	"time"
)

// Weekday names used as keys of BusinessHours, indexed by time.Weekday.
var weekdayKeys = [...]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// WeekdayKey returns the BusinessHours key for d.
func WeekdayKey(d time.Weekday) string {
	return weekdayKeys[d]
}

// DayHours are the opening hours of one weekday. IsOpen is tri-state: only an
// explicit false closes the day.
type DayHours struct {
	IsOpen *bool  `json:"isOpen,omitempty"`
	Start  string `json:"start,omitempty"` // "HH:MM"
	End    string `json:"end,omitempty"`   // "HH:MM"
}

// Closed reports an explicit isOpen=false.
func (d *DayHours) Closed() bool {
	return d != nil && d.IsOpen != nil && !*d.IsOpen
}

// BusinessHours maps weekday key (sunday..saturday) to opening hours.
type BusinessHours map[string]*DayHours

// For returns the entry for the weekday of date, or nil.
func (h BusinessHours) For(date time.Time) *DayHours {
	if h == nil {
		return nil
	}
	return h[WeekdayKey(date.Weekday())]
}

// CalendarBehavior is the fallback window and slot step.
type CalendarBehavior struct {
	StartTime        string `json:"startTime,omitempty"`
	EndTime          string `json:"endTime,omitempty"`
	TimeSlotInterval int    `json:"timeSlotInterval,omitempty"`
}

// FormFields are the server-driven form switches. Absent means unset.
type FormFields struct {
	RequirePartySize     *bool `json:"requirePartySize,omitempty"`
	RequireNotes         *bool `json:"requireNotes,omitempty"`
	RequireEmail         *bool `json:"requireEmail,omitempty"`
	RequirePhone         *bool `json:"requirePhone,omitempty"`
	AllowSpecialRequests *bool `json:"allowSpecialRequests,omitempty"`
	AllowProductBooking  *bool `json:"allowProductBooking,omitempty"`
}

// FormLabels are tenant specific UI labels.
type FormLabels struct {
	SelectService  string `json:"selectService,omitempty"`
	SelectProvider string `json:"selectProvider,omitempty"`
	SelectTime     string `json:"selectTime,omitempty"`
}

// Terminology holds the tenant's nouns for services and providers.
type Terminology struct {
	Service  string `json:"service,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// IndustryTerminology describes the tenant's industry vocabulary.
type IndustryTerminology struct {
	BusinessType string      `json:"businessType,omitempty"`
	FormLabels   FormLabels  `json:"formLabels"`
	Terminology  Terminology `json:"terminology"`
}

// PaymentSettings tells whether bookings may require prepayment.
type PaymentSettings struct {
	Enabled bool `json:"enabled"`
}

// Settings is the tenant configuration served by the portal. Every part is
// optional; use ResolveFormRules instead of reading form fields directly.
type Settings struct {
	OpeningHours        BusinessHours        `json:"openingHours,omitempty"`
	CalendarBehavior    *CalendarBehavior    `json:"calendarBehavior,omitempty"`
	FormFields          *FormFields          `json:"formFields,omitempty"`
	BusinessType        string               `json:"businessType,omitempty"`
	IndustryTerminology *IndustryTerminology `json:"industryTerminology,omitempty"`
	PaymentSettings     *PaymentSettings     `json:"paymentSettings,omitempty"`
}

// SlotInterval returns the configured step in minutes, defaulting to 30.
func (s *Settings) SlotInterval() int {
	if s == nil || s.CalendarBehavior == nil || s.CalendarBehavior.TimeSlotInterval <= 0 {
		return 30
	}
	return s.CalendarBehavior.TimeSlotInterval
}

// ResolvedFormRules is the fully defaulted view of Settings the form uses.
type ResolvedFormRules struct {
	IsRestaurant bool

	RequirePartySize bool
	RequireNotes     bool
	ShowEmail        bool
	RequireEmail     bool
	ShowPhone        bool
	RequirePhone     bool
	ShowSpecial      bool
	ShowProducts     bool
	PaymentEnabled   bool

	ServiceLabel  string
	ProviderLabel string
	TimeLabel     string
	ServiceTerm   string
	ProviderTerm  string
}

// ResolveFormRules derives the form rules from settings, which may be nil.
func ResolveFormRules(s *Settings) ResolvedFormRules {
	r := ResolvedFormRules{
		ServiceLabel:  "Tjänst",
		ProviderLabel: "Personal",
		TimeLabel:     "Tid",
		ServiceTerm:   "tjänst",
		ProviderTerm:  "personal",
	}
	if s == nil {
		return r
	}

	if f := s.FormFields; f != nil {
		r.RequirePartySize = isTrue(f.RequirePartySize)
		r.RequireNotes = isTrue(f.RequireNotes)
		r.ShowEmail = isTrue(f.RequireEmail)
		r.RequireEmail = r.ShowEmail
		r.ShowPhone = isTrue(f.RequirePhone)
		r.RequirePhone = r.ShowPhone
		r.ShowSpecial = isTrue(f.AllowSpecialRequests)
		r.ShowProducts = isTrue(f.AllowProductBooking)
	}
	if s.PaymentSettings != nil {
		r.PaymentEnabled = s.PaymentSettings.Enabled
	}

	if it := s.IndustryTerminology; it != nil {
		r.ServiceLabel = orDefault(it.FormLabels.SelectService, r.ServiceLabel)
		r.ProviderLabel = orDefault(it.FormLabels.SelectProvider, r.ProviderLabel)
		r.TimeLabel = orDefault(it.FormLabels.SelectTime, r.TimeLabel)
		r.ServiceTerm = orDefault(it.Terminology.Service, r.ServiceTerm)
		r.ProviderTerm = orDefault(it.Terminology.Provider, r.ProviderTerm)
	}
	r.IsRestaurant = isRestaurant(s)
	return r
}

func isRestaurant(s *Settings) bool {
	if strings.EqualFold(s.BusinessType, "restaurant") {
		return true
	}
	it := s.IndustryTerminology
	if it == nil {
		return false
	}
	if strings.EqualFold(it.BusinessType, "restaurant") {
		return true
	}
	// Tenants without a business type still label the service picker as a table.
	label := strings.ToLower(it.FormLabels.SelectService + " " + it.Terminology.Service)
	return strings.Contains(label, "bord") || strings.Contains(label, "table")
}

func isTrue(b *bool) bool {
	return b != nil && *b
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// Bool returns a pointer to v, for building optional settings.
func Bool(v bool) *bool {
	return &v
}
