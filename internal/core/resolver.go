package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/VRMX2/USTHB-APP/internal/store"
)

// MembershipSource is the slice of the portal store the resolver reads.
// This interface allows the resolver to compute channel membership without
// depending on the storage implementation.
type MembershipSource interface {
	// Memberships returns every course the user belongs to with the role
	// held in each.
	Memberships(ctx context.Context, userID int64) (store.MembershipSet, error)

	// GetCourseByID retrieves a course by ID.
	GetCourseByID(ctx context.Context, id int64) (*store.Course, error)

	// ListCourses lists every course.
	ListCourses(ctx context.Context) ([]*store.Course, error)
}

// Resolution is the channel set computed for a connecting principal.
type Resolution struct {
	Channels []ChannelID
	Courses  map[int64]CourseRole
	Partial  bool
}

// Resolver computes channel membership from the portal store. Membership is
// looked up fresh on every call; nothing here trusts data captured at login.
type Resolver struct {
	source MembershipSource
}

func NewResolver(src MembershipSource) *Resolver {
	return &Resolver{source: src}
}

// ResolveDefault computes the channels a principal is subscribed to on
// connect: the personal channel, the department channel, one channel per
// course the principal belongs to, and the global channel. Admins get every
// course channel.
//
// When the store cannot answer, the returned resolution still covers the
// channels that need no lookup and is flagged Partial; the error describes
// the failure so the caller can log it and retry later.
func (r *Resolver) ResolveDefault(ctx context.Context, p *Principal) (*Resolution, error) {
	res := &Resolution{
		Channels: []ChannelID{PersonalChannel(p.ID)},
		Courses:  map[int64]CourseRole{},
	}
	if p.Department != "" {
		res.Channels = append(res.Channels, DepartmentChannel(p.Department))
	}

	courseIDs, courses, err := r.courseSet(ctx, p)
	if err != nil {
		res.Partial = true
		res.Channels = append(res.Channels, GlobalChannelID)
		return res, err
	}

	res.Courses = courses
	sort.Slice(courseIDs, func(i, j int) bool { return courseIDs[i] < courseIDs[j] })
	for _, id := range courseIDs {
		res.Channels = append(res.Channels, CourseChannel(id))
	}
	res.Channels = append(res.Channels, GlobalChannelID)
	return res, nil
}

// courseSet looks up the course channels the principal is entitled to.
func (r *Resolver) courseSet(ctx context.Context, p *Principal) ([]int64, map[int64]CourseRole, error) {
	if p.IsAdmin() {
		all, err := r.source.ListCourses(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("list courses: %w", err)
		}
		ids := make([]int64, 0, len(all))
		for _, c := range all {
			ids = append(ids, c.ID)
		}
		return ids, map[int64]CourseRole{}, nil
	}

	ms, err := r.source.Memberships(ctx, p.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve memberships: %w", err)
	}
	courses := toCourseRoles(ms)
	ids := make([]int64, 0, len(courses))
	for id := range courses {
		ids = append(ids, id)
	}
	return ids, courses, nil
}

// AuthorizeJoin decides an explicit join request against current store
// state. Course entitlements are re-read so a membership revoked after login
// is honored. It returns a display label for the channel and, for course
// joins, the principal's refreshed course set.
//
// Domain rejections come back as *Error; anything else is a storage failure
// the caller should treat as transient.
func (r *Resolver) AuthorizeJoin(ctx context.Context, p *Principal, target Channel) (string, map[int64]CourseRole, error) {
	switch target.Kind {
	case ChannelPersonal:
		if err := Authorize(p, ActionJoin, target); err != nil {
			return "", nil, err
		}
		return p.Username, nil, nil

	case ChannelCourse:
		course, err := r.source.GetCourseByID(ctx, target.Course)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return "", nil, NotFound(fmt.Sprintf("course %d does not exist", target.Course))
			}
			return "", nil, fmt.Errorf("look up course %d: %w", target.Course, err)
		}
		checked := p
		var courses map[int64]CourseRole
		if !p.IsAdmin() {
			ms, err := r.source.Memberships(ctx, p.ID)
			if err != nil {
				return "", nil, fmt.Errorf("resolve memberships: %w", err)
			}
			courses = toCourseRoles(ms)
			checked = p.WithCourses(courses)
		}
		if err := Authorize(checked, ActionJoin, target); err != nil {
			return "", nil, err
		}
		return course.Code, courses, nil

	case ChannelDepartment:
		if err := Authorize(p, ActionJoin, target); err != nil {
			return "", nil, err
		}
		return target.Department, nil, nil

	default:
		return "", nil, Authorize(p, ActionJoin, target)
	}
}

func toCourseRoles(ms store.MembershipSet) map[int64]CourseRole {
	out := make(map[int64]CourseRole, len(ms))
	for id, role := range ms {
		out[id] = CourseRole(role)
	}
	return out
}
