package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/VRMX2/USTHB-APP/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// mustSignal waits for a routed signal of the given kind, skipping anything
// else on the stream.
func mustSignal(t *testing.T, ch <-chan *Event, kind SignalKind) *Signal {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil || ev.Kind != EventSignal || ev.Signal == nil {
				continue
			}
			if ev.Signal.Kind == kind {
				return ev.Signal
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected signal kind %v not received", kind)
	return nil
}

// mustQuiet asserts no signal of the given kind shows up within the window.
func mustQuiet(t *testing.T, ch <-chan *Event, kind SignalKind) {
	t.Helper()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == EventSignal && ev.Signal != nil && ev.Signal.Kind == kind {
				t.Fatalf("unexpected signal %v: %+v", kind, ev.Signal)
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func testPrincipal(id int64, username string, role Role, dept string, courses map[int64]CourseRole) *Principal {
	if courses == nil {
		courses = map[int64]CourseRole{}
	}
	return &Principal{
		ID:         id,
		Username:   username,
		Role:       role,
		Department: dept,
		Active:     true,
		Courses:    courses,
	}
}

// resolutionFor mirrors what the resolver would produce for the principal
// without touching a store, so hub tests stay synchronous.
func resolutionFor(p *Principal) *Resolution {
	res := &Resolution{
		Channels: []ChannelID{PersonalChannel(p.ID), DepartmentChannel(p.Department)},
		Courses:  p.Courses,
	}
	for id := range p.Courses {
		res.Channels = append(res.Channels, CourseChannel(id))
	}
	res.Channels = append(res.Channels, GlobalChannelID)
	return res
}

// fakeSource is an in-memory MembershipSource for resolver tests. Setting
// err makes every lookup fail, simulating a store outage.
type fakeSource struct {
	memberships map[int64]store.MembershipSet
	courses     map[int64]*store.Course
	err         error
}

func (f *fakeSource) Memberships(_ context.Context, userID int64) (store.MembershipSet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.memberships[userID], nil
}

func (f *fakeSource) GetCourseByID(_ context.Context, id int64) (*store.Course, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.courses[id]
	if !ok {
		return nil, fmt.Errorf("course %d: %w", id, store.ErrNotFound)
	}
	return c, nil
}

func (f *fakeSource) ListCourses(_ context.Context) ([]*store.Course, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*store.Course, 0, len(f.courses))
	for _, c := range f.courses {
		out = append(out, c)
	}
	return out, nil
}
