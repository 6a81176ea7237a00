package db

import (
	"context"
	"database/sql"

	"campusconnect/apperr"
	"campusconnect/models"
	"campusconnect/pass"
)

const registrationSelect = `
	SELECT r.id, r.user_id, r.event_id, r.token, r.qr_code, r.attended, r.attended_at, r.registered_at,
	       ` + eventColumns + `,
	       u.id, u.name, u.email, u.roll_number
	FROM registrations r
	JOIN events e ON e.id = r.event_id
	JOIN users u ON u.id = r.user_id`

func scanRegistration(s scanner) (*models.Registration, error) {
	var (
		reg          models.Registration
		e            models.Event
		user         models.UserSummary
		attendedAt   sql.NullInt64
		registeredAt int64
		roll         sql.NullString
	)
	eventCols, finishEvent := eventDest(&e)
	dest := []any{&reg.ID, &reg.UserID, &reg.EventID, &reg.Token, &reg.QRCode, &reg.Attended, &attendedAt, &registeredAt}
	dest = append(dest, eventCols...)
	dest = append(dest, &user.ID, &user.Name, &user.Email, &roll)
	if err := s.Scan(dest...); err != nil {
		return nil, mapError(err)
	}
	finishEvent()
	reg.AttendedAt = nullMillis(attendedAt)
	reg.RegisteredAt = fromMillis(registeredAt)
	user.RollNumber = nullString(roll)
	reg.Event = &e
	reg.User = &user
	return &reg, nil
}

func listRegistrations(ctx context.Context, r runner, query string, args ...any) ([]models.Registration, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	regs := []models.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return regs, nil
}

func getRegistration(ctx context.Context, r runner, where string, arg any) (*models.Registration, error) {
	regs, err := listRegistrations(ctx, r, registrationSelect+` WHERE `+where, arg)
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		return nil, apperr.NotFound("Registration not found")
	}
	return &regs[0], nil
}

// CreateRegistration registers userID for eventID and issues the pass.
//
// The seat check and the insert are a single conditional INSERT inside an
// immediate transaction, so concurrent callers can never push the
// registration count past capacity. A trigger enforces the same bound.
func (d *DB) CreateRegistration(ctx context.Context, userID, eventID string) (*models.Registration, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	now := d.nowUTC()
	token := pass.Token(userID, eventID, now)
	image, err := pass.DataURL(token)
	if err != nil {
		return nil, failure("render pass", err)
	}
	id := d.newID()

	var reg *models.Registration
	err = d.inTx(ctx, func(tx runner) error {
		exists, err := tx.count(ctx, `SELECT COUNT(*) FROM events WHERE id = ?`, eventID)
		if err != nil {
			return err
		}
		if exists == 0 {
			return eventNotFound()
		}

		dup, err := tx.count(ctx, `SELECT COUNT(*) FROM registrations WHERE user_id = ? AND event_id = ?`, userID, eventID)
		if err != nil {
			return err
		}
		if dup > 0 {
			return apperr.Conflict("Already registered for this event")
		}

		res, err := tx.exec(ctx, `
			INSERT INTO registrations (id, user_id, event_id, token, qr_code, attended, attended_at, registered_at)
			SELECT ?, ?, ?, ?, ?, 0, NULL, ?
			WHERE (SELECT COUNT(*) FROM registrations WHERE event_id = ?)
			      < (SELECT capacity FROM events WHERE id = ?)`,
			id, userID, eventID, token, image, toMillis(now), eventID, eventID,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.CapacityExceeded("Event is full")
		}

		reg, err = getRegistration(ctx, tx, `r.id = ?`, id)
		return err
	})
	switch {
	case err == nil:
		return reg, nil
	case uniqueOn(err, "registrations.user_id"):
		return nil, apperr.Conflict("Already registered for this event")
	case IsCheckViolation(err):
		return nil, apperr.CapacityExceeded("Event is full")
	case IsForeignKeyViolation(err):
		return nil, apperr.NotFound("User not found")
	default:
		return nil, failure("create registration", err)
	}
}

// Registration returns a registration visible to actor: its owner or an admin.
func (d *DB) Registration(ctx context.Context, id string, actor *models.User) (*models.Registration, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	reg, err := getRegistration(ctx, d.run, `r.id = ?`, id)
	if err != nil {
		return nil, failure("get registration", err)
	}
	if actor == nil || (reg.UserID != actor.ID && !actor.IsAdmin()) {
		return nil, apperr.Forbidden("Access denied")
	}
	return reg, nil
}

// UserRegistrations lists a user's registrations with their events, newest first.
func (d *DB) UserRegistrations(ctx context.Context, userID string) ([]models.Registration, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	regs, err := listRegistrations(ctx, d.run,
		registrationSelect+` WHERE r.user_id = ? ORDER BY r.registered_at DESC, r.id`, userID)
	if err != nil {
		return nil, failure("list user registrations", err)
	}
	for i := range regs {
		regs[i].User = nil
	}
	return regs, nil
}

// EventRegistrations returns an event's roster with attendance totals.
func (d *DB) EventRegistrations(ctx context.Context, eventID string) (*models.EventRegistrations, error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	var out models.EventRegistrations
	err := d.inTx(ctx, func(tx runner) error {
		e, err := getEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		regs, err := listRegistrations(ctx, tx,
			registrationSelect+` WHERE r.event_id = ? ORDER BY r.registered_at DESC, r.id`, eventID)
		if err != nil {
			return err
		}
		out.Event = *e
		out.Registrations = regs
		return nil
	})
	if err != nil {
		return nil, failure("list event registrations", err)
	}

	for i := range out.Registrations {
		out.Registrations[i].Event = nil
		if out.Registrations[i].Attended {
			out.Stats.Attended++
		}
	}
	out.Stats.Total = len(out.Registrations)
	out.Stats.Pending = out.Stats.Total - out.Stats.Attended
	return &out, nil
}

// CancelRegistration deletes a registration on behalf of actor. A scanned pass
// can never be cancelled, whoever asks; otherwise only the owner or an admin may.
func (d *DB) CancelRegistration(ctx context.Context, id string, actor *models.User) error {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	err := d.inTx(ctx, func(tx runner) error {
		var (
			ownerID  string
			attended bool
		)
		err := tx.scanRow(ctx, `SELECT user_id, attended FROM registrations WHERE id = ?`, []any{id}, &ownerID, &attended)
		if IsNotFound(err) {
			return apperr.NotFound("Registration not found")
		}
		if err != nil {
			return err
		}
		if attended {
			return apperr.Conflict("Cannot cancel a registration after attending the event")
		}
		if actor == nil || (ownerID != actor.ID && !actor.IsAdmin()) {
			return apperr.Forbidden("Not authorized to cancel this registration")
		}

		res, err := tx.exec(ctx, `DELETE FROM registrations WHERE id = ? AND attended = 0`, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return apperr.Conflict("Cannot cancel a registration after attending the event")
		}
		return nil
	})
	if err != nil {
		return failure("cancel registration", err)
	}
	return nil
}

// VerifyAttendance checks in the pass holding token. The transition is
// one-way: the first call marks the registration attended, later calls
// change nothing and report alreadyAttended. Unknown tokens are NotFound.
func (d *DB) VerifyAttendance(ctx context.Context, token string) (reg *models.Registration, alreadyAttended bool, err error) {
	ctx, cancel := d.opContext(ctx)
	defer cancel()

	err = d.inTx(ctx, func(tx runner) error {
		res, err := tx.exec(ctx,
			`UPDATE registrations SET attended = 1, attended_at = ? WHERE token = ? AND attended = 0`,
			toMillis(d.nowUTC()), token,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		reg, err = getRegistration(ctx, tx, `r.token = ?`, token)
		if apperr.KindOf(err) == apperr.KindNotFound {
			return apperr.NotFound("Invalid QR code")
		}
		if err != nil {
			return err
		}
		alreadyAttended = n == 0
		return nil
	})
	if err != nil {
		return nil, false, failure("verify attendance", err)
	}
	return reg, alreadyAttended, nil
}
