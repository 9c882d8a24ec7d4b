package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist. Callers use
// it to distinguish a genuine miss from storage being unavailable.
var ErrNotFound = errors.New("not found")

// User represents a portal account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string // "student", "teacher" or "admin"
	Department   string
	Active       bool
	CreatedAt    time.Time
}

// Course represents a taught course.
type Course struct {
	ID         int64
	Code       string
	Title      string
	Department string
	CreatedAt  time.Time
}

// MembershipRole defines how a user relates to a course.
type MembershipRole string

const (
	MembershipEnrolled MembershipRole = "enrolled"
	MembershipTeaches  MembershipRole = "teaches"
)

// CourseMembership links a user to a course.
type CourseMembership struct {
	CourseID  int64
	UserID    int64
	Role      MembershipRole
	CreatedAt time.Time
}

// MembershipSet maps course IDs to the user's role in each course.
type MembershipSet map[int64]MembershipRole

// Message represents a persisted chat message. Channel is the opaque
// channel identifier the message was sent to.
type Message struct {
	ID        int64
	Channel   string
	UserID    int64
	Body      string
	CreatedAt time.Time
}

// Announcement represents a persisted notice. Department is empty for
// portal-wide announcements.
type Announcement struct {
	ID         int64
	AuthorID   int64
	Title      string
	Body       string
	Department string
	CreatedAt  time.Time
}

// Grade represents a published grade entry.
type Grade struct {
	ID        int64
	CourseID  int64
	StudentID int64
	Label     string
	Value     float64
	CreatedAt time.Time
}

// UserStore handles account persistence.
type UserStore interface {
	// CreateUser creates a new account with hashed password.
	CreateUser(ctx context.Context, username, passwordHash, role, department string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SetUserActive suspends or reinstates an account.
	SetUserActive(ctx context.Context, id int64, active bool) error
}

// MembershipStore handles courses and course membership.
type MembershipStore interface {
	// CreateCourse creates a new course.
	CreateCourse(ctx context.Context, code, title, department string) (*Course, error)

	// GetCourseByID retrieves a course by ID.
	GetCourseByID(ctx context.Context, id int64) (*Course, error)

	// ListCourses lists every course.
	ListCourses(ctx context.Context) ([]*Course, error)

	// SetMembership enrolls a user in a course or records a teaching
	// assignment, replacing any previous role.
	SetMembership(ctx context.Context, courseID, userID int64, role MembershipRole) error

	// RemoveMembership removes a user from a course.
	RemoveMembership(ctx context.Context, courseID, userID int64) error

	// Memberships returns every course the user belongs to with the role
	// held in each.
	Memberships(ctx context.Context, userID int64) (MembershipSet, error)

	// ListCourseMembers lists user IDs of everyone in a course.
	ListCourseMembers(ctx context.Context, courseID int64) ([]int64, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and fills in its ID and timestamp.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages retrieves the most recent messages from a channel in
	// chronological order. If beforeID is provided, returns messages older
	// than that ID.
	ListMessages(ctx context.Context, channel string, limit int, beforeID *int64) ([]*Message, error)
}

// AnnouncementStore handles announcement persistence.
type AnnouncementStore interface {
	// SaveAnnouncement persists an announcement and fills in its ID and
	// timestamp.
	SaveAnnouncement(ctx context.Context, a *Announcement) error

	// ListAnnouncements retrieves recent announcements visible to a
	// department, newest first. Portal-wide announcements are always
	// included.
	ListAnnouncements(ctx context.Context, department string, limit int) ([]*Announcement, error)
}

// GradeStore handles grade persistence.
type GradeStore interface {
	// SaveGrade persists a grade entry and fills in its ID and timestamp.
	SaveGrade(ctx context.Context, g *Grade) error

	// ListGrades retrieves a student's grades, newest first.
	ListGrades(ctx context.Context, studentID int64) ([]*Grade, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MembershipStore
	MessageStore
	AnnouncementStore
	GradeStore

	// Close closes the underlying database connection.
	Close() error
}
