package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"campusconnect/apperr"
	"campusconnect/models"
)

const eventColumns = `e.id, e.title, e.description, e.venue, e.date, e.time, e.capacity,
	e.image_url, e.category, e.organizer, e.created_at, e.updated_at`

// registeredCountExpr recomputes the seat count from the ledger; there is no cached counter.
const registeredCountExpr = `(SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id)`

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
	// maxPage keeps (page-1)*limit far from overflow.
	maxPage = 100000
)

// eventDest returns scan destinations for eventColumns and a func that
// copies the scanned values into e.
func eventDest(e *models.Event) ([]any, func()) {
	var (
		date, createdAt, updatedAt int64
		image, category, org       sql.NullString
	)
	dest := []any{
		&e.ID, &e.Title, &e.Description, &e.Venue, &date, &e.Time, &e.Capacity,
		&image, &category, &org, &createdAt, &updatedAt,
	}
	return dest, func() {
		e.Date = fromMillis(date)
		e.ImageURL = nullString(image)
		e.Category = nullString(category)
		e.Organizer = nullString(org)
		e.CreatedAt = fromMillis(createdAt)
		e.UpdatedAt = fromMillis(updatedAt)
	}
}

func scanEvent(s scanner, extra ...any) (*models.Event, error) {
	var e models.Event
	dest, finish := eventDest(&e)
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, mapError(err)
	}
	finish()
	return &e, nil
}

func eventNotFound() error { return apperr.NotFound("Event not found") }

// CreateEvent adds an event to the catalog.
func (d *DB) CreateEvent(ctx context.Context, in models.EventInput) (*models.Event, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	if in.Capacity <= 0 {
		return nil, apperr.Validation("Capacity must be a positive integer")
	}
	now := d.nowUTC()
	e := &models.Event{
		ID:          d.newID(),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Venue:       strings.TrimSpace(in.Venue),
		Date:        in.Date.UTC(),
		Time:        strings.TrimSpace(in.Time),
		Capacity:    in.Capacity,
		ImageURL:    in.ImageURL,
		Category:    in.Category,
		Organizer:   in.Organizer,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := d.run.exec(ctx, `
		INSERT INTO events (id, title, description, venue, date, time, capacity,
		                    image_url, category, organizer, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Description, e.Venue, toMillis(e.Date), e.Time, e.Capacity,
		e.ImageURL, e.Category, e.Organizer, toMillis(now), toMillis(now),
	)
	if err != nil {
		return nil, failure("create event", err)
	}
	return e, nil
}

// Event returns one event without viewer annotations.
func (d *DB) Event(ctx context.Context, id string) (*models.Event, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	e, err := getEvent(ctx, d.run, id)
	if err != nil {
		return nil, failure("get event", err)
	}
	return e, nil
}

func getEvent(ctx context.Context, r runner, id string) (*models.Event, error) {
	rows, err := r.query(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, mapError(err)
		}
		return nil, eventNotFound()
	}
	return scanEvent(rows)
}

// EventView returns one event annotated for viewerID. An empty viewerID is anonymous.
func (d *DB) EventView(ctx context.Context, id, viewerID string) (*models.EventView, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	rows, err := d.run.query(ctx, `
		SELECT `+eventColumns+`, `+registeredCountExpr+`,
		       EXISTS (SELECT 1 FROM registrations r WHERE r.event_id = e.id AND r.user_id = ?)
		FROM events e
		WHERE e.id = ?`, viewerID, id)
	if err != nil {
		return nil, failure("get event", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, failure("get event", mapError(err))
		}
		return nil, eventNotFound()
	}
	v, err := scanEventView(rows)
	if err != nil {
		return nil, failure("get event", err)
	}
	return v, nil
}

func scanEventView(s scanner) (*models.EventView, error) {
	var (
		count      int
		registered bool
	)
	e, err := scanEvent(s, &count, &registered)
	if err != nil {
		return nil, err
	}
	return &models.EventView{
		Event:           *e,
		RegisteredCount: count,
		IsRegistered:    registered,
		IsFull:          models.IsFull(count, e.Capacity),
	}, nil
}

// ListEvents returns one page of events ordered by date, annotated for q.ViewerID.
func (d *DB) ListEvents(ctx context.Context, q models.EventQuery) (*models.EventList, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		return nil, apperr.Validation("Validation failed", apperr.FieldError{
			Field:   "page",
			Message: fmt.Sprintf("page must be at most %d", maxPage),
		})
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	now := q.Now
	if now.IsZero() {
		now = d.nowUTC()
	}

	var (
		where []string
		args  []any
	)
	if s := strings.TrimSpace(q.Search); s != "" {
		pattern := "%" + escapeLike(strings.ToLower(s)) + "%"
		where = append(where, `(LOWER(e.title) LIKE ? ESCAPE '\' OR LOWER(e.description) LIKE ? ESCAPE '\' OR LOWER(e.venue) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	switch q.Filter {
	case "upcoming":
		where = append(where, `e.date >= ?`)
		args = append(args, toMillis(now))
	case "past":
		where = append(where, `e.date < ?`)
		args = append(args, toMillis(now))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	total, err := d.run.count(ctx, `SELECT COUNT(*) FROM events e`+clause, args...)
	if err != nil {
		return nil, failure("list events", err)
	}

	pageArgs := append([]any{q.ViewerID}, args...)
	pageArgs = append(pageArgs, limit, (page-1)*limit)
	rows, err := d.run.query(ctx, `
		SELECT `+eventColumns+`, `+registeredCountExpr+`,
		       EXISTS (SELECT 1 FROM registrations r WHERE r.event_id = e.id AND r.user_id = ?)
		FROM events e`+clause+`
		ORDER BY e.date ASC, e.id
		LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, failure("list events", err)
	}
	defer rows.Close()

	events := []models.EventView{}
	for rows.Next() {
		v, err := scanEventView(rows)
		if err != nil {
			return nil, failure("list events", err)
		}
		events = append(events, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, failure("list events", mapError(err))
	}

	return &models.EventList{
		Events: events,
		Metadata: models.Page{
			TotalEvents: total,
			TotalPages:  (total + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		},
	}, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// UpdateEvent applies a partial update. Capacity may not drop below the
// number of registrations already held; the check and the write are one statement.
func (d *DB) UpdateEvent(ctx context.Context, id string, p models.EventPatch) (*models.Event, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Title != nil {
		set("title", strings.TrimSpace(*p.Title))
	}
	if p.Description != nil {
		set("description", strings.TrimSpace(*p.Description))
	}
	if p.Venue != nil {
		set("venue", strings.TrimSpace(*p.Venue))
	}
	if p.Date != nil {
		set("date", toMillis(*p.Date))
	}
	if p.Time != nil {
		set("time", strings.TrimSpace(*p.Time))
	}
	if p.Capacity != nil {
		if *p.Capacity <= 0 {
			return nil, apperr.Validation("Capacity must be a positive integer")
		}
		set("capacity", *p.Capacity)
	}
	if p.ImageURL != nil {
		set("image_url", models.OptionalString(*p.ImageURL))
	}
	if p.Category != nil {
		set("category", models.OptionalString(*p.Category))
	}
	if p.Organizer != nil {
		set("organizer", models.OptionalString(*p.Organizer))
	}
	set("updated_at", toMillis(d.nowUTC()))

	var updated *models.Event
	err := d.inTx(ctx, func(tx runner) error {
		query := `UPDATE events SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
		qargs := append(append([]any{}, args...), id)
		if p.Capacity != nil {
			query += ` AND ? >= (SELECT COUNT(*) FROM registrations WHERE event_id = ?)`
			qargs = append(qargs, *p.Capacity, id)
		}
		res, err := tx.exec(ctx, query, qargs...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			registered, err := tx.count(ctx, `SELECT COUNT(*) FROM registrations WHERE event_id = ?`, id)
			if err != nil {
				return err
			}
			exists, err := tx.count(ctx, `SELECT COUNT(*) FROM events WHERE id = ?`, id)
			if err != nil {
				return err
			}
			if exists == 0 {
				return eventNotFound()
			}
			return apperr.Conflict(fmt.Sprintf("Capacity cannot be lower than the current number of registrations (%d)", registered))
		}
		updated, err = getEvent(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, failure("update event", err)
	}
	return updated, nil
}

// DeleteEvent removes an event. Its registrations are removed with it.
func (d *DB) DeleteEvent(ctx context.Context, id string) error {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	res, err := d.run.exec(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return failure("delete event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return failure("delete event", err)
	}
	if n == 0 {
		return eventNotFound()
	}
	return nil
}

// RegisteredCount returns the number of registrations held for an event.
func (d *DB) RegisteredCount(ctx context.Context, eventID string) (int, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	n, err := d.run.count(ctx, `SELECT COUNT(*) FROM registrations WHERE event_id = ?`, eventID)
	if err != nil {
		return 0, failure("count registrations", err)
	}
	return n, nil
}
