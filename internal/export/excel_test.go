package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"peran/internal/model"
)

func TestReservations(t *testing.T) {
	day := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return time.Date(2026, 1, 12, h, m, 0, 0, time.UTC) }
	bookings := []model.Booking{
		{ID: "b2", ServiceID: "dinner", Start: at(19, 0), End: at(21, 0), CustomerName: "Bo", PartySize: 2, Status: model.StatusConfirmed},
		{ID: "b3", Start: at(12, 0), End: at(14, 0), CustomerName: "Cia", PartySize: 6, Status: model.StatusCanceled},
		{ID: "b1", ServiceID: "lunch", Start: at(11, 30), End: at(13, 30), CustomerName: "Anna", PartySize: 4, Phone: "+46701234567", Status: model.StatusPending, SpecialRequests: "Barnstol"},
	}
	services := []model.Service{{ID: "lunch", Name: "Lunch"}, {ID: "dinner", Name: "Middag"}}

	var buf bytes.Buffer
	require.NoError(t, Reservations(&buf, day, bookings, services, time.UTC))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	require.Equal(t, []string{"Bokningar 2026-01-12"}, sheets)

	rows, err := f.GetRows(sheets[0])
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, Columns, rows[0])

	assert.Equal(t, []string{"11:30", "13:30", "Anna", "4", "+46701234567", "", "Lunch", "Väntande", "Barnstol", "b1"}, rows[1])
	assert.Equal(t, "Bo", rows[2][2])
	assert.Equal(t, "Middag", rows[2][6])
	assert.Equal(t, "Cia", rows[3][2], "canceled bookings go last")
	assert.Equal(t, "Avbokad", rows[3][7])
}

func TestNewSheet_TruncatesName(t *testing.T) {
	s, err := NewSheet(strings.Repeat("x", 40))
	require.NoError(t, err)
	defer s.Close()
	assert.Len(t, s.name, maxSheetName)

	require.NoError(t, s.Header([]string{"a", "b"}))
	require.NoError(t, s.Row(1, "två"))
	assert.Equal(t, 2, s.Rows())
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "Bekräftad", StatusLabel(model.StatusConfirmed))
	assert.Equal(t, "Uteblev", StatusLabel(model.StatusNoShow))
	assert.Equal(t, "weird", StatusLabel(model.BookingStatus("weird")))
}
