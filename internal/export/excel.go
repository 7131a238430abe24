// Package export writes reservation lists for restaurant staff.
package export

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"peran/internal/model"
)

// maxSheetName is Excel's sheet name limit.
const maxSheetName = 31

// Columns of the reservation sheet.
var Columns = []string{"Tid", "Slut", "Namn", "Gäster", "Telefon", "E-post", "Tjänst", "Status", "Önskemål", "Bokning"}

// Sheet is a single-sheet workbook written row by row.
type Sheet struct {
	file *excelize.File
	name string
	row  int
}

// NewSheet creates a workbook whose only sheet is called name.
func NewSheet(name string) (*Sheet, error) {
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", name); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	return &Sheet{file: f, name: name, row: 1}, nil
}

// Header writes a bold header row and freezes it.
func (s *Sheet) Header(columns []string) error {
	if err := s.writeRow(toAny(columns)); err != nil {
		return err
	}
	style, err := s.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		start, _ := excelize.CoordinatesToCellName(1, s.row-1)
		end, _ := excelize.CoordinatesToCellName(len(columns), s.row-1)
		_ = s.file.SetCellStyle(s.name, start, end, style)
	}
	return s.file.SetPanes(s.name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// Row appends a data row.
func (s *Sheet) Row(values ...any) error {
	return s.writeRow(values)
}

func (s *Sheet) writeRow(values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		return err
	}
	if err := s.file.SetSheetRow(s.name, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", s.row, err)
	}
	s.row++
	return nil
}

// Rows returns the number of written rows, header included.
func (s *Sheet) Rows() int {
	return s.row - 1
}

// WriteTo writes the workbook.
func (s *Sheet) WriteTo(w io.Writer) (int64, error) {
	return s.file.WriteTo(w)
}

// Close releases the workbook.
func (s *Sheet) Close() error {
	return s.file.Close()
}

// Reservations writes the day's bookings, ordered by start time, as an xlsx
// workbook. Canceled bookings are listed last so staff still see them.
func Reservations(w io.Writer, day time.Time, bookings []model.Booking, services []model.Service, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	sheet, err := NewSheet("Bokningar " + day.In(loc).Format(model.DateLayout))
	if err != nil {
		return err
	}
	defer sheet.Close()

	if err := sheet.Header(Columns); err != nil {
		return err
	}

	sorted := append([]model.Booking(nil), bookings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].IsActive() != sorted[j].IsActive() {
			return sorted[i].IsActive()
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	for _, b := range sorted {
		serviceName := ""
		if s := model.FindService(services, b.ServiceID); s != nil {
			serviceName = s.Name
		}
		if err := sheet.Row(
			b.Start.In(loc).Format("15:04"),
			b.End.In(loc).Format("15:04"),
			b.CustomerName,
			b.PartySize,
			b.Phone,
			b.Email,
			serviceName,
			StatusLabel(b.Status),
			b.SpecialRequests,
			b.ID,
		); err != nil {
			return err
		}
	}

	if _, err := sheet.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// StatusLabel is the Swedish label of a booking status.
func StatusLabel(s model.BookingStatus) string {
	switch s {
	case model.StatusPending:
		return "Väntande"
	case model.StatusConfirmed:
		return "Bekräftad"
	case model.StatusCanceled:
		return "Avbokad"
	case model.StatusNoShow:
		return "Uteblev"
	default:
		return string(s)
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
