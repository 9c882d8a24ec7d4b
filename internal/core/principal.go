package core

// Role classifies a portal account.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// CourseRole is how a principal relates to a single course.
type CourseRole string

const (
	CourseEnrolled CourseRole = "enrolled"
	CourseTeaches  CourseRole = "teaches"
)

// Principal is the authenticated identity behind one or more live
// connections. It is a snapshot taken at connect time, not a live view of
// the portal store.
type Principal struct {
	ID         int64
	Username   string
	Role       Role
	Department string
	Active     bool

	// Courses maps course id to the principal's relation to it. The owning
	// connection refreshes it after an explicit join re-validates against
	// the store; the hub goroutine only reads the identity fields above.
	Courses map[int64]CourseRole
}

// IsAdmin reports whether the principal holds the admin role.
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// MemberOfCourse reports whether the snapshot holds any relation
// (enrolled or teaching) to the given course.
func (p *Principal) MemberOfCourse(courseID int64) bool {
	_, ok := p.Courses[courseID]
	return ok
}

// WithCourses returns a copy of the principal carrying a different course
// membership set. Used when an authorization decision must be made against
// freshly resolved membership instead of the connect-time snapshot.
func (p *Principal) WithCourses(courses map[int64]CourseRole) *Principal {
	clone := *p
	clone.Courses = courses
	return &clone
}
