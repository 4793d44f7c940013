package apiapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phillip-england/caresuite/internal/attendance"
	"github.com/phillip-england/caresuite/internal/clocktime"
	"github.com/phillip-england/caresuite/internal/security"
	_ "modernc.org/sqlite"
)

var errNotFound = errors.New("not found")

type userRecord struct {
	ID       int64
	Username string
	IsAdmin  bool
}

type sessionRecord struct {
	ID        string
	UserID    int64
	CSRFToken string
	ExpiresAt time.Time
}

type sqliteStore struct {
	db  *sql.DB
	now func() time.Time
}

func openStore(ctx context.Context, dbPath string) (*sqliteStore, error) {
	// modernc.org/sqlite registers itself as "sqlite".
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", strings.TrimSuffix(pragma, ";"), err)
		}
	}
	s := &sqliteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			is_admin INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			csrf_token TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			last_seen_at INTEGER NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);`,
		`CREATE TABLE IF NOT EXISTS attendance_records (
			id TEXT PRIMARY KEY,
			staff_name TEXT NOT NULL,
			shift_date TEXT NOT NULL,
			clock_in TEXT,
			clock_out TEXT,
			note TEXT NOT NULL DEFAULT '',
			approved_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_shift_date ON attendance_records(shift_date);`,
	}
	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) ensureAdminUser(ctx context.Context, username, password string) error {
	hash, err := security.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, is_admin, created_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(username)
		DO UPDATE SET password_hash = excluded.password_hash, is_admin = 1;
	`, username, hash, s.now().Unix())
	return err
}

func (s *sqliteStore) lookupUserByUsername(ctx context.Context, username string) (*userRecord, string, error) {
	var (
		user    userRecord
		hash    string
		isAdmin int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, is_admin
		FROM users
		WHERE username = ?
		LIMIT 1;
	`, username).Scan(&user.ID, &user.Username, &hash, &isAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", errNotFound
	}
	if err != nil {
		return nil, "", err
	}
	user.IsAdmin = isAdmin == 1
	return &user, hash, nil
}

func (s *sqliteStore) createSession(ctx context.Context, id string, userID int64, csrfToken string, expiresAt time.Time) error {
	now := s.now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, csrf_token, expires_at, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, id, userID, csrfToken, expiresAt.UTC().Unix(), now, now)
	return err
}

func (s *sqliteStore) lookupSession(ctx context.Context, id string) (*sessionRecord, *userRecord, error) {
	var (
		sess        sessionRecord
		user        userRecord
		expiresUnix int64
		isAdmin     int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.user_id, s.csrf_token, s.expires_at, u.username, u.is_admin
		FROM sessions s
		INNER JOIN users u ON u.id = s.user_id
		WHERE s.id = ?
		LIMIT 1;
	`, id).Scan(&sess.ID, &sess.UserID, &sess.CSRFToken, &expiresUnix, &user.Username, &isAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, errNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	sess.ExpiresAt = time.Unix(expiresUnix, 0).UTC()
	if s.now().After(sess.ExpiresAt) {
		_ = s.deleteSession(ctx, id)
		return nil, nil, errNotFound
	}
	user.ID = sess.UserID
	user.IsAdmin = isAdmin == 1

	_, _ = s.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at = ? WHERE id = ?;`, s.now().Unix(), id)
	return &sess, &user, nil
}

func (s *sqliteStore) deleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?;`, id)
	return err
}

const attendanceColumns = `id, staff_name, shift_date, clock_in, clock_out, note, approved_at, created_at, updated_at`

func (s *sqliteStore) listAttendance(ctx context.Context, filter attendance.Filter) ([]attendance.Record, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records`
	var (
		where []string
		args  []any
	)
	if filter.Date != "" {
		where = append(where, "shift_date = ?")
		args = append(args, filter.Date)
	}
	switch filter.Status {
	case attendance.StatusPending:
		where = append(where, "approved_at IS NULL")
	case attendance.StatusApproved:
		where = append(where, "approved_at IS NOT NULL")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY shift_date DESC, staff_name COLLATE NOCASE ASC, clock_in ASC;"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]attendance.Record, 0)
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) getAttendance(ctx context.Context, id string) (attendance.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attendanceColumns+` FROM attendance_records WHERE id = ? LIMIT 1;`, id)
	rec, err := scanAttendance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.Record{}, errNotFound
	}
	return rec, err
}

func (s *sqliteStore) createAttendance(ctx context.Context, entry attendance.NewEntry) (attendance.Record, error) {
	now := s.now()
	rec := attendance.Record{
		ID:        uuid.NewString(),
		StaffName: entry.StaffName,
		ShiftDate: entry.ShiftDate,
		ClockIn:   entry.ClockIn,
		ClockOut:  entry.ClockOut,
		Note:      entry.Note,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, staff_name, shift_date, clock_in, clock_out, note, approved_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?);
	`, rec.ID, rec.StaffName, rec.ShiftDate.Format(attendance.DateLayout), isoValue(rec.ClockIn), isoValue(rec.ClockOut), rec.Note, isoText(now), isoText(now))
	if err != nil {
		return attendance.Record{}, err
	}
	return s.getAttendance(ctx, rec.ID)
}

func (s *sqliteStore) updateAttendanceTimes(ctx context.Context, payload attendance.Payload) (attendance.Record, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET clock_in = ?, clock_out = ?, updated_at = ?
		WHERE id = ? AND approved_at IS NULL;
	`, isoValue(payload.ClockIn), isoValue(payload.ClockOut), isoText(s.now()), payload.ID)
	if err != nil {
		return attendance.Record{}, err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		// Either the id is unknown or an approval landed first.
		if _, err := s.getAttendance(ctx, payload.ID); err != nil {
			return attendance.Record{}, err
		}
		return attendance.Record{}, errApprovedLocked
	}
	return s.getAttendance(ctx, payload.ID)
}

func (s *sqliteStore) approveAttendance(ctx context.Context, id string) (attendance.Record, error) {
	now := isoText(s.now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET approved_at = ?, updated_at = ?
		WHERE id = ? AND approved_at IS NULL;
	`, now, now, id)
	if err != nil {
		return attendance.Record{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return attendance.Record{}, err
	}
	rec, err := s.getAttendance(ctx, id)
	if err != nil {
		return attendance.Record{}, err
	}
	if affected == 0 {
		return rec, attendance.ErrAlreadyApproved
	}
	return rec, nil
}

func (s *sqliteStore) deleteAttendance(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE id = ?;`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttendance(row rowScanner) (attendance.Record, error) {
	var (
		rec                         attendance.Record
		shiftDate                   string
		clockIn, clockOut, approved sql.NullString
		createdAt, updatedAt        string
	)
	if err := row.Scan(&rec.ID, &rec.StaffName, &shiftDate, &clockIn, &clockOut, &rec.Note, &approved, &createdAt, &updatedAt); err != nil {
		return attendance.Record{}, err
	}
	var err error
	if rec.ShiftDate, err = time.Parse(attendance.DateLayout, shiftDate); err != nil {
		return attendance.Record{}, fmt.Errorf("attendance %s shift_date: %w", rec.ID, err)
	}
	if rec.ClockIn, err = parseStoredTime(clockIn); err != nil {
		return attendance.Record{}, fmt.Errorf("attendance %s clock_in: %w", rec.ID, err)
	}
	if rec.ClockOut, err = parseStoredTime(clockOut); err != nil {
		return attendance.Record{}, fmt.Errorf("attendance %s clock_out: %w", rec.ID, err)
	}
	if rec.ApprovedAt, err = parseStoredTime(approved); err != nil {
		return attendance.Record{}, fmt.Errorf("attendance %s approved_at: %w", rec.ID, err)
	}
	if ts, err := parseStoredTime(sql.NullString{String: createdAt, Valid: true}); err == nil && ts != nil {
		rec.CreatedAt = *ts
	}
	if ts, err := parseStoredTime(sql.NullString{String: updatedAt, Valid: true}); err == nil && ts != nil {
		rec.UpdatedAt = *ts
	}
	return rec, nil
}

func parseStoredTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || strings.TrimSpace(value.String) == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, value.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func isoText(t time.Time) string {
	return t.UTC().Format(clocktime.ISOLayout)
}

func isoValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return isoText(*t)
}

func withSQLiteRetry(fn func() error) error {
	const maxAttempts = 3
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		lower := strings.ToLower(err.Error())
		if !strings.Contains(lower, "database is locked") && !strings.Contains(lower, "database is busy") {
			return err
		}
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt) * 125 * time.Millisecond)
		}
	}
	return err
}
