package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/VRMX2/USTHB-APP/internal/core"
	"github.com/VRMX2/USTHB-APP/internal/store"
)

// Common errors for notification operations.
var (
	ErrNotStaff           = errors.New("announcements require a teacher or admin role")
	ErrWrongDepartment    = errors.New("teachers can only announce to their own department")
	ErrNotCourseTeacher   = errors.New("grades can only be posted by the course teacher")
	ErrCourseNotFound     = errors.New("course not found")
	ErrStudentNotEnrolled = errors.New("student is not enrolled in the course")
	ErrEmptyAnnouncement  = errors.New("announcement needs a title and a body")
)

// Publisher is the slice of the hub this service pushes signals through.
type Publisher interface {
	Publish(sig *core.Signal)
}

// Service turns portal-side actions into persisted records plus live
// signals. Persistence always happens first; a signal for a record that was
// never stored would vanish on reconnect.
type Service struct {
	store store.Store
	hub   Publisher
}

// New creates a notification service.
func New(st store.Store, hub Publisher) *Service {
	return &Service{
		store: st,
		hub:   hub,
	}
}

// PublishAnnouncement stores an announcement and fans it out live. An empty
// department makes it portal-wide, which only admins may do; teachers are
// held to their own department.
func (s *Service) PublishAnnouncement(ctx context.Context, author *core.Principal, title, body, department string) (*store.Announcement, error) {
	if title == "" || body == "" {
		return nil, ErrEmptyAnnouncement
	}

	switch author.Role {
	case core.RoleAdmin:
	case core.RoleTeacher:
		if department != author.Department {
			return nil, ErrWrongDepartment
		}
	default:
		return nil, ErrNotStaff
	}

	record := &store.Announcement{
		AuthorID:   author.ID,
		Title:      title,
		Body:       body,
		Department: department,
	}
	if err := s.store.SaveAnnouncement(ctx, record); err != nil {
		return nil, fmt.Errorf("save announcement: %w", err)
	}

	scope := core.GlobalScope()
	if department != "" {
		scope = core.ChannelScope(core.DepartmentChannel(department))
	}

	s.hub.Publish(&core.Signal{
		Kind:       core.SignalAnnouncement,
		Scope:      scope,
		Sender:     author.ID,
		SenderName: author.Username,
		At:         record.CreatedAt,
		Announcement: &core.Announcement{
			ID:         record.ID,
			Author:     author.ID,
			AuthorName: author.Username,
			Title:      title,
			Body:       body,
			Department: department,
			PostedAt:   record.CreatedAt,
		},
	})

	return record, nil
}

// RecordGrade stores a grade for a student and notifies only that student's
// live connections. Admins may post into any course; teachers only into
// courses they teach.
func (s *Service) RecordGrade(ctx context.Context, grader *core.Principal, courseID, studentID int64, label string, value float64) (*store.Grade, error) {
	if _, err := s.store.GetCourseByID(ctx, courseID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("look up course %d: %w", courseID, err)
	}

	if !grader.IsAdmin() {
		if grader.Role != core.RoleTeacher {
			return nil, ErrNotCourseTeacher
		}
		ms, err := s.store.Memberships(ctx, grader.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve grader memberships: %w", err)
		}
		if ms[courseID] != store.MembershipTeaches {
			return nil, ErrNotCourseTeacher
		}
	}

	studentMs, err := s.store.Memberships(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("resolve student memberships: %w", err)
	}
	if _, enrolled := studentMs[courseID]; !enrolled {
		return nil, ErrStudentNotEnrolled
	}

	record := &store.Grade{
		CourseID:  courseID,
		StudentID: studentID,
		Label:     label,
		Value:     value,
	}
	if err := s.store.SaveGrade(ctx, record); err != nil {
		return nil, fmt.Errorf("save grade: %w", err)
	}

	s.hub.Publish(&core.Signal{
		Kind:       core.SignalGrade,
		Scope:      core.PrincipalScope(studentID),
		Sender:     grader.ID,
		SenderName: grader.Username,
		At:         record.CreatedAt,
		Grade: &core.Grade{
			ID:       record.ID,
			Course:   courseID,
			Student:  studentID,
			Label:    label,
			Value:    value,
			PostedAt: record.CreatedAt,
		},
	})

	return record, nil
}
