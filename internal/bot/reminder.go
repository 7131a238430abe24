package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"peran/internal/calendar"
	"peran/internal/export"
	"peran/internal/model"
)

// StartDigest sends every manager the day's bookings each morning at hour.
// A negative hour disables it.
func (b *Bot) StartDigest(ctx context.Context, hour int) {
	if b == nil || len(b.managers) == 0 || hour < 0 {
		return
	}

	go func() {
		timer := time.NewTimer(timeUntilNextHour(b.now().In(b.loc), hour))
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				for id := range b.managers {
					b.sendDigest(ctx, id, b.now())
				}
				timer.Reset(timeUntilNextHour(b.now().In(b.loc), hour))
			}
		}
	}()
}

func (b *Bot) sendDigest(ctx context.Context, chatID int64, day time.Time) {
	from, to := dayBounds(day, b.loc)
	bookings := b.portal.ListBookings(ctx, from, to.Add(-time.Millisecond), "")
	b.reply(chatID, formatDigest(from, bookings, b.loc))
}

func formatDigest(day time.Time, bookings []model.Booking, loc *time.Location) string {
	active := model.ActiveOnly(bookings)
	if len(active) == 0 {
		return "Inga bokningar " + calendar.DayTitle(day) + "."
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Start.Before(active[j].Start) })

	guests := 0
	var sb strings.Builder
	for _, bk := range active {
		guests += bk.PartySize
		fmt.Fprintf(&sb, "\n%s-%s %s", bk.Start.In(loc).Format("15:04"), bk.End.In(loc).Format("15:04"), bk.CustomerName)
		if bk.PartySize > 0 {
			fmt.Fprintf(&sb, ", %d gäster", bk.PartySize)
		}
		if bk.Status != model.StatusConfirmed {
			sb.WriteString(" [" + export.StatusLabel(bk.Status) + "]")
		}
	}
	header := fmt.Sprintf("Bokningar %s: %d st, %d gäster", calendar.DayTitle(day), len(active), guests)
	return header + sb.String()
}

func timeUntilNextHour(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
