package db

import (
	"context"
	"math"

	"campusconnect/models"
)

const (
	recentRegistrationsLimit = 10
	popularEventsLimit       = 5
)

// DashboardStats aggregates the admin dashboard. Each figure is its own
// query; the result is not a single snapshot.
func (d *DB) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	var (
		s   models.DashboardStats
		err error
	)
	counts := []struct {
		dst   *int
		query string
		args  []any
	}{
		{&s.TotalUsers, `SELECT COUNT(*) FROM users`, nil},
		{&s.TotalEvents, `SELECT COUNT(*) FROM events`, nil},
		{&s.TotalRegistrations, `SELECT COUNT(*) FROM registrations`, nil},
		{&s.UpcomingEvents, `SELECT COUNT(*) FROM events WHERE date >= ?`, []any{toMillis(d.nowUTC())}},
		{&s.AttendedCount, `SELECT COUNT(*) FROM registrations WHERE attended = 1`, nil},
	}
	for _, c := range counts {
		if *c.dst, err = d.run.count(ctx, c.query, c.args...); err != nil {
			return nil, failure("dashboard stats", err)
		}
	}
	s.AttendanceRate = AttendanceRate(s.AttendedCount, s.TotalRegistrations)

	s.RecentRegistrations, err = listRegistrations(ctx, d.run,
		registrationSelect+` ORDER BY r.registered_at DESC, r.id LIMIT ?`, recentRegistrationsLimit)
	if err != nil {
		return nil, failure("dashboard stats", err)
	}
	for i := range s.RecentRegistrations {
		s.RecentRegistrations[i].QRCode = ""
	}

	s.PopularEvents, err = d.popularEvents(ctx, popularEventsLimit)
	if err != nil {
		return nil, failure("dashboard stats", err)
	}
	return &s, nil
}

func (d *DB) popularEvents(ctx context.Context, limit int) ([]models.PopularEvent, error) {
	rows, err := d.run.query(ctx, `
		SELECT `+eventColumns+`, `+registeredCountExpr+` AS registration_count
		FROM events e
		ORDER BY registration_count DESC, e.date ASC, e.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.PopularEvent{}
	for rows.Next() {
		var count int
		e, err := scanEvent(rows, &count)
		if err != nil {
			return nil, err
		}
		events = append(events, models.PopularEvent{Event: *e, RegistrationCount: count})
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return events, nil
}

// AttendanceRate is attended/total as a percentage rounded to two decimals,
// or 0 when there are no registrations.
func AttendanceRate(attended, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(attended)/float64(total)*10000) / 100
}
