package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"p5glab/internal/models"

	"github.com/mattn/go-sqlite3"
)

const bookingColumns = `id, exp_key, username, start_time, end_time, status, created_at`

// CreateBookingWithLock inserts a booking after re-checking the no-overlap
// invariant inside the same transaction. Two concurrent calls for overlapping
// windows on one experiment cannot both commit: SQLite serializes the write
// transaction, and the UNIQUE(exp_key, start_time) index catches identical
// starts that slip past a racing read.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var overlapping int
	queryCount := `SELECT COUNT(*) FROM bookings
                   WHERE exp_key = ? AND status = ? AND start_time < ? AND end_time > ?`
	err = tx.QueryRowContext(ctx, queryCount,
		booking.ExpKey, models.StatusActive,
		formatTime(booking.EndTime), formatTime(booking.StartTime)).Scan(&overlapping)
	if err != nil {
		return fmt.Errorf("check overlap in tx: %w", err)
	}
	if overlapping > 0 {
		return ErrConflict
	}

	queryInsert := `INSERT INTO bookings (exp_key, username, start_time, end_time, status, created_at)
                    VALUES (?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, queryInsert,
		booking.ExpKey,
		booking.Username,
		formatTime(booking.StartTime),
		formatTime(booking.EndTime),
		booking.Status,
		booking.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert booking in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id in tx: %w", err)
	}
	booking.ID = id

	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	booking, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return booking, nil
}

func (db *DB) UpdateBookingStatus(ctx context.Context, id int64, status string) error {
	result, err := db.ExecContext(ctx, `UPDATE bookings SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// ListActive returns active bookings on an experiment whose window has not
// ended before "from", ordered by start. Covers running and upcoming ones.
func (db *DB) ListActive(ctx context.Context, expKey string, from time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE exp_key = ? AND status = ? AND end_time > ?
              ORDER BY start_time ASC`
	return db.queryBookings(ctx, query, expKey, models.StatusActive, formatTime(from))
}

// Overlapping returns bookings on an experiment whose [start_time, end_time)
// intersects [start, end), restricted to the given statuses.
func (db *DB) Overlapping(ctx context.Context, expKey string, start, end time.Time, statuses ...string) ([]*models.Booking, error) {
	if len(statuses) == 0 {
		statuses = []string{models.StatusActive}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE exp_key = ? AND status IN (` + placeholders + `) AND start_time < ? AND end_time > ?
              ORDER BY start_time ASC`

	args := make([]any, 0, len(statuses)+3)
	args = append(args, expKey)
	for _, s := range statuses {
		args = append(args, s)
	}
	args = append(args, formatTime(end), formatTime(start))

	return db.queryBookings(ctx, query, args...)
}

// ListUserBookings returns a user's active bookings that end after "from",
// ordered by start, for the dashboard.
func (db *DB) ListUserBookings(ctx context.Context, username string, from time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE username = ? AND status = ? AND end_time > ?
              ORDER BY start_time ASC`
	return db.queryBookings(ctx, query, username, models.StatusActive, formatTime(from))
}

// CurrentBookings returns every booking live at the given instant.
func (db *DB) CurrentBookings(ctx context.Context, now time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE status = ? AND start_time <= ? AND end_time > ?
              ORDER BY exp_key ASC`
	n := formatTime(now)
	return db.queryBookings(ctx, query, models.StatusActive, n, n)
}

// GetBookingsByDateRange returns all bookings, any status, whose window
// intersects [start, end). Used by exports and the schedule sheet.
func (db *DB) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE start_time < ? AND end_time > ?
              ORDER BY start_time ASC, created_at ASC`
	return db.queryBookings(ctx, query, formatTime(end), formatTime(start))
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bookings, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var startStr, endStr string
	err := row.Scan(&b.ID, &b.ExpKey, &b.Username, &startStr, &endStr, &b.Status, &b.CreatedAt)
	if err != nil {
		return nil, err
	}

	if b.StartTime, err = parseTime(startStr); err != nil {
		return nil, fmt.Errorf("parse start_time %q: %w", startStr, err)
	}
	if b.EndTime, err = parseTime(endStr); err != nil {
		return nil, fmt.Errorf("parse end_time %q: %w", endStr, err)
	}
	return &b, nil
}
