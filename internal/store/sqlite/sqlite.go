package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/VRMX2/USTHB-APP/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// sqlite allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function after
// the schema is applied. Useful for tests to seed fixtures.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}

	if setup != nil {
		if err := setup(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'student',
	department    TEXT NOT NULL DEFAULT '',
	active        BOOLEAN NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS courses (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	code       TEXT NOT NULL UNIQUE,
	title      TEXT NOT NULL,
	department TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS course_members (
	course_id  INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role       TEXT NOT NULL DEFAULT 'enrolled',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (course_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	channel    TEXT NOT NULL,
	user_id    INTEGER NOT NULL REFERENCES users(id),
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel, id);

CREATE TABLE IF NOT EXISTS announcements (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	author_id  INTEGER NOT NULL REFERENCES users(id),
	title      TEXT NOT NULL,
	body       TEXT NOT NULL,
	department TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS grades (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	course_id  INTEGER NOT NULL REFERENCES courses(id),
	student_id INTEGER NOT NULL REFERENCES users(id),
	label      TEXT NOT NULL,
	value      REAL NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_grades_student ON grades(student_id, id);
`

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new account with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash, role, department string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, role, department, active)
		VALUES (?, ?, ?, ?, 1)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash, role, department)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, role, department, active, created_at
		FROM users
		WHERE id = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Role,
		&user.Department,
		&user.Active,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, role, department, active, created_at
		FROM users
		WHERE username = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Role,
		&user.Department,
		&user.Active,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// SetUserActive suspends or reinstates an account.
func (s *SQLiteStore) SetUserActive(ctx context.Context, id int64, active bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("update user active: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// ==== MembershipStore implementation ====

// CreateCourse creates a new course.
func (s *SQLiteStore) CreateCourse(ctx context.Context, code, title, department string) (*store.Course, error) {
	query := `
		INSERT INTO courses (code, title, department)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, code, title, department)
	if err != nil {
		return nil, fmt.Errorf("insert course: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetCourseByID(ctx, id)
}

// GetCourseByID retrieves a course by ID.
func (s *SQLiteStore) GetCourseByID(ctx context.Context, id int64) (*store.Course, error) {
	query := `
		SELECT id, code, title, department, created_at
		FROM courses
		WHERE id = ?
	`
	var course store.Course
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&course.ID,
		&course.Code,
		&course.Title,
		&course.Department,
		&course.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("course %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query course: %w", err)
	}

	return &course, nil
}

// ListCourses lists every course.
func (s *SQLiteStore) ListCourses(ctx context.Context) ([]*store.Course, error) {
	query := `
		SELECT id, code, title, department, created_at
		FROM courses
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	var courses []*store.Course
	for rows.Next() {
		var course store.Course
		if err := rows.Scan(&course.ID, &course.Code, &course.Title, &course.Department, &course.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		courses = append(courses, &course)
	}

	return courses, rows.Err()
}

// SetMembership enrolls a user in a course or records a teaching
// assignment, replacing any previous role.
func (s *SQLiteStore) SetMembership(ctx context.Context, courseID, userID int64, role store.MembershipRole) error {
	query := `
		INSERT INTO course_members (course_id, user_id, role)
		VALUES (?, ?, ?)
		ON CONFLICT(course_id, user_id) DO UPDATE SET role = excluded.role
	`
	if _, err := s.db.ExecContext(ctx, query, courseID, userID, string(role)); err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}

// RemoveMembership removes a user from a course.
func (s *SQLiteStore) RemoveMembership(ctx context.Context, courseID, userID int64) error {
	query := `DELETE FROM course_members WHERE course_id = ? AND user_id = ?`
	if _, err := s.db.ExecContext(ctx, query, courseID, userID); err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return nil
}

// Memberships returns every course the user belongs to with the role held
// in each.
func (s *SQLiteStore) Memberships(ctx context.Context, userID int64) (store.MembershipSet, error) {
	query := `
		SELECT course_id, role
		FROM course_members
		WHERE user_id = ?
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()

	set := make(store.MembershipSet)
	for rows.Next() {
		var courseID int64
		var role string
		if err := rows.Scan(&courseID, &role); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		set[courseID] = store.MembershipRole(role)
	}

	return set, rows.Err()
}

// ListCourseMembers lists user IDs of everyone in a course.
func (s *SQLiteStore) ListCourseMembers(ctx context.Context, courseID int64) ([]int64, error) {
	query := `
		SELECT user_id
		FROM course_members
		WHERE course_id = ?
		ORDER BY user_id
	`
	rows, err := s.db.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("query course members: %w", err)
	}
	defer rows.Close()

	var members []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan course member: %w", err)
		}
		members = append(members, id)
	}

	return members, rows.Err()
}

// ==== MessageStore implementation ====

// SaveMessage persists a message and fills in its ID.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO messages (channel, user_id, body, created_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.Channel, msg.UserID, msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	return nil
}

// ListMessages retrieves the most recent messages from a channel in
// chronological order. If beforeID is provided, returns messages older than
// that ID.
func (s *SQLiteStore) ListMessages(ctx context.Context, channel string, limit int, beforeID *int64) ([]*store.Message, error) {
	var query string
	var args []interface{}

	if beforeID != nil {
		query = `
			SELECT id, channel, user_id, body, created_at
			FROM messages
			WHERE channel = ? AND id < ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []interface{}{channel, *beforeID, limit}
	} else {
		query = `
			SELECT id, channel, user_id, body, created_at
			FROM messages
			WHERE channel = ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []interface{}{channel, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.Channel, &msg.UserID, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	return messages, rows.Err()
}

// ==== AnnouncementStore implementation ====

// SaveAnnouncement persists an announcement and fills in its ID.
func (s *SQLiteStore) SaveAnnouncement(ctx context.Context, a *store.Announcement) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO announcements (author_id, title, body, department, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, a.AuthorID, a.Title, a.Body, a.Department, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert announcement: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	a.ID = id
	return nil
}

// ListAnnouncements retrieves recent announcements visible to a department,
// newest first. Portal-wide announcements (empty department) are always
// included.
func (s *SQLiteStore) ListAnnouncements(ctx context.Context, department string, limit int) ([]*store.Announcement, error) {
	query := `
		SELECT id, author_id, title, body, department, created_at
		FROM announcements
		WHERE department = '' OR department = ?
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, department, limit)
	if err != nil {
		return nil, fmt.Errorf("query announcements: %w", err)
	}
	defer rows.Close()

	var out []*store.Announcement
	for rows.Next() {
		var a store.Announcement
		if err := rows.Scan(&a.ID, &a.AuthorID, &a.Title, &a.Body, &a.Department, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan announcement: %w", err)
		}
		out = append(out, &a)
	}

	return out, rows.Err()
}

// ==== GradeStore implementation ====

// SaveGrade persists a grade entry and fills in its ID.
func (s *SQLiteStore) SaveGrade(ctx context.Context, g *store.Grade) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO grades (course_id, student_id, label, value, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, g.CourseID, g.StudentID, g.Label, g.Value, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert grade: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	g.ID = id
	return nil
}

// ListGrades retrieves a student's grades, newest first.
func (s *SQLiteStore) ListGrades(ctx context.Context, studentID int64) ([]*store.Grade, error) {
	query := `
		SELECT id, course_id, student_id, label, value, created_at
		FROM grades
		WHERE student_id = ?
		ORDER BY id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("query grades: %w", err)
	}
	defer rows.Close()

	var out []*store.Grade
	for rows.Next() {
		var g store.Grade
		if err := rows.Scan(&g.ID, &g.CourseID, &g.StudentID, &g.Label, &g.Value, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan grade: %w", err)
		}
		out = append(out, &g)
	}

	return out, rows.Err()
}
