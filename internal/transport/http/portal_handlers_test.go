package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/VRMX2/USTHB-APP/internal/proto"
	"github.com/VRMX2/USTHB-APP/internal/store"
)

// awaitPresence polls the presence endpoint until the user reports the
// wanted status. Presence flips asynchronously after attach and detach, so
// a single read would race the hub.
func awaitPresence(t *testing.T, env *testEnv, token string, userID int64, want string) PresenceResponse {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	var last PresenceResponse
	for time.Now().Before(deadline) {
		status, body := doJSON(t, env, http.MethodGet, fmt.Sprintf("/api/presence/%d", userID), token, nil)
		if status != http.StatusOK {
			t.Fatalf("presence: expected 200, got %d: %s", status, body)
		}
		if err := json.Unmarshal(body, &last); err != nil {
			t.Fatalf("unmarshal presence: %v", err)
		}
		if last.Status == want {
			return last
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("user %d never reported %q, last %+v", userID, want, last)
	return last
}

func TestPresenceEndpointTracksLifecycle(t *testing.T) {
	env := startTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceToken, aliceID := env.register(t, "alice", "student", "cs")
	bobToken, _ := env.register(t, "bob", "student", "cs")

	// Never connected: offline with no last_seen.
	rec := awaitPresence(t, env, bobToken, aliceID, "offline")
	if rec.LastSeen != 0 {
		t.Fatalf("expected zero last_seen before first connect, got %d", rec.LastSeen)
	}

	conn := env.dialWS(t, ctx, aliceToken)
	awaitWelcome(t, ctx, conn)

	rec = awaitPresence(t, env, bobToken, aliceID, "online")
	if rec.Username != "alice" {
		t.Fatalf("expected username on live record, got %+v", rec)
	}

	if err := conn.Close(websocket.StatusNormalClosure, "done"); err != nil {
		t.Fatalf("close: %v", err)
	}

	rec = awaitPresence(t, env, bobToken, aliceID, "offline")
	if rec.LastSeen == 0 {
		t.Fatalf("expected last_seen after disconnect, got %+v", rec)
	}

	status, _ := doJSON(t, env, http.MethodGet, "/api/presence/abc", bobToken, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("garbage user id: expected 400, got %d", status)
	}
}

func TestChannelHistoryEndpoint(t *testing.T) {
	env := startTestEnv(t)

	aliceToken, aliceID := env.register(t, "alice", "student", "cs")
	outsiderToken, _ := env.register(t, "eve", "student", "ee")

	courseID := env.createCourse(t, "CS101", "Algorithms", "cs")
	env.setMembership(t, courseID, aliceID, store.MembershipEnrolled)

	channel := fmt.Sprintf("course:%d", courseID)
	for i := 0; i < 3; i++ {
		msg := &store.Message{Channel: channel, UserID: aliceID, Body: fmt.Sprintf("note %d", i)}
		if err := env.store.SaveMessage(context.Background(), msg); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	status, body := doJSON(t, env, http.MethodGet, "/api/channels/"+channel+"/messages", aliceToken, nil)
	if status != http.StatusOK {
		t.Fatalf("history: expected 200, got %d: %s", status, body)
	}
	var history []MessageResponse
	if err := json.Unmarshal(body, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(history))
	}
	// Chronological order, oldest first.
	if history[0].Text != "note 0" || history[2].Text != "note 2" {
		t.Fatalf("unexpected order: %+v", history)
	}
	for _, msg := range history {
		if msg.Channel != channel || msg.UserID != aliceID || msg.ID == 0 || msg.TS == 0 {
			t.Fatalf("malformed history row: %+v", msg)
		}
	}

	// Cursor pagination walks backwards from the newest row.
	status, body = doJSON(t, env, http.MethodGet,
		fmt.Sprintf("/api/channels/%s/messages?limit=1&before=%d", channel, history[2].ID), aliceToken, nil)
	if status != http.StatusOK {
		t.Fatalf("paged history: expected 200, got %d: %s", status, body)
	}
	var page []MessageResponse
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page) != 1 || page[0].Text != "note 1" {
		t.Fatalf("unexpected page: %+v", page)
	}

	// Non-members cannot read course history.
	status, _ = doJSON(t, env, http.MethodGet, "/api/channels/"+channel+"/messages", outsiderToken, nil)
	if status != http.StatusForbidden {
		t.Fatalf("outsider history: expected 403, got %d", status)
	}

	// Unknown course and malformed channel names.
	status, _ = doJSON(t, env, http.MethodGet, "/api/channels/course:9999/messages", aliceToken, nil)
	if status != http.StatusNotFound {
		t.Fatalf("missing course history: expected 404, got %d", status)
	}
	status, _ = doJSON(t, env, http.MethodGet, "/api/channels/lecture/messages", aliceToken, nil)
	if status != http.StatusNotFound {
		t.Fatalf("malformed channel history: expected 404, got %d", status)
	}

	// Another student's personal channel stays private.
	status, _ = doJSON(t, env, http.MethodGet,
		fmt.Sprintf("/api/channels/user:%d/messages", aliceID), outsiderToken, nil)
	if status != http.StatusForbidden {
		t.Fatalf("foreign personal history: expected 403, got %d", status)
	}
}

func TestAnnouncementFanoutToDepartment(t *testing.T) {
	env := startTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	teacherToken, teacherID := env.register(t, "prof", "teacher", "cs")
	csToken, _ := env.register(t, "alice", "student", "cs")
	eeToken, _ := env.register(t, "eve", "student", "ee")

	csConn := env.dialWS(t, ctx, csToken)
	awaitWelcome(t, ctx, csConn)
	eeConn := env.dialWS(t, ctx, eeToken)
	awaitWelcome(t, ctx, eeConn)

	status, body := doJSON(t, env, http.MethodPost, "/api/announcements", teacherToken, AnnouncementRequest{
		Title: "Exam moved",
		Body:  "Final exam now on Thursday.",
	})
	if status != http.StatusCreated {
		t.Fatalf("post announcement: expected 201, got %d: %s", status, body)
	}
	var posted AnnouncementResponse
	if err := json.Unmarshal(body, &posted); err != nil {
		t.Fatalf("unmarshal announcement: %v", err)
	}
	if posted.ID == 0 || posted.Department != "cs" || posted.AuthorID != teacherID {
		t.Fatalf("unexpected announcement record: %+v", posted)
	}

	var event proto.EventAnnouncement
	awaitEvent(t, ctx, csConn, "announcement", &event)
	if event.ID != posted.ID || event.Title != "Exam moved" || event.From != teacherID || event.Department != "cs" {
		t.Fatalf("unexpected announcement event: %+v", event)
	}

	// The other department hears nothing.
	mustQuietWS(t, eeConn, 150*time.Millisecond, "announcement", func(frame rxEnvelope) bool {
		return frame.Event == "announcement"
	})

	// Visible in the department listing, invisible across departments.
	status, body = doJSON(t, env, http.MethodGet, "/api/announcements", csToken, nil)
	if status != http.StatusOK {
		t.Fatalf("list announcements: expected 200, got %d", status)
	}
	var visible []AnnouncementResponse
	if err := json.Unmarshal(body, &visible); err != nil {
		t.Fatalf("unmarshal announcements: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != posted.ID {
		t.Fatalf("expected the cs listing to carry the announcement, got %+v", visible)
	}

	status, body = doJSON(t, env, http.MethodGet, "/api/announcements", eeToken, nil)
	if status != http.StatusOK {
		t.Fatalf("list announcements: expected 200, got %d", status)
	}
	var hidden []AnnouncementResponse
	if err := json.Unmarshal(body, &hidden); err != nil {
		t.Fatalf("unmarshal announcements: %v", err)
	}
	if len(hidden) != 0 {
		t.Fatalf("expected an empty ee listing, got %+v", hidden)
	}

	// Students cannot post, teachers cannot post into foreign departments.
	status, _ = doJSON(t, env, http.MethodPost, "/api/announcements", csToken, AnnouncementRequest{
		Title: "Party",
		Body:  "Room 12 tonight.",
	})
	if status != http.StatusForbidden {
		t.Fatalf("student announcement: expected 403, got %d", status)
	}
	status, _ = doJSON(t, env, http.MethodPost, "/api/announcements", teacherToken, AnnouncementRequest{
		Title:      "Wrong dept",
		Body:       "Should not land.",
		Department: "ee",
	})
	if status != http.StatusForbidden {
		t.Fatalf("foreign dept announcement: expected 403, got %d", status)
	}
}

func TestPortalWideAnnouncementFromAdmin(t *testing.T) {
	env := startTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	adminToken, _ := env.register(t, "root", "admin", "it")
	csToken, _ := env.register(t, "alice", "student", "cs")
	eeToken, _ := env.register(t, "eve", "student", "ee")

	csConn := env.dialWS(t, ctx, csToken)
	awaitWelcome(t, ctx, csConn)
	eeConn := env.dialWS(t, ctx, eeToken)
	awaitWelcome(t, ctx, eeConn)

	status, body := doJSON(t, env, http.MethodPost, "/api/announcements", adminToken, AnnouncementRequest{
		Title: "Maintenance window",
		Body:  "Portal down Saturday night.",
	})
	if status != http.StatusCreated {
		t.Fatalf("admin announcement: expected 201, got %d: %s", status, body)
	}
	var posted AnnouncementResponse
	if err := json.Unmarshal(body, &posted); err != nil {
		t.Fatalf("unmarshal announcement: %v", err)
	}
	if posted.Department != "" {
		t.Fatalf("expected a portal-wide announcement, got %+v", posted)
	}

	// Every department receives portal-wide announcements via global.
	var csEvent proto.EventAnnouncement
	awaitEvent(t, ctx, csConn, "announcement", &csEvent)
	if csEvent.ID != posted.ID || csEvent.Department != "" {
		t.Fatalf("cs student got unexpected event: %+v", csEvent)
	}
	var eeEvent proto.EventAnnouncement
	awaitEvent(t, ctx, eeConn, "announcement", &eeEvent)
	if eeEvent.ID != posted.ID || eeEvent.Department != "" {
		t.Fatalf("ee student got unexpected event: %+v", eeEvent)
	}

	// Portal-wide rows appear in every department listing.
	status, body = doJSON(t, env, http.MethodGet, "/api/announcements", eeToken, nil)
	if status != http.StatusOK {
		t.Fatalf("list announcements: expected 200, got %d", status)
	}
	var visible []AnnouncementResponse
	if err := json.Unmarshal(body, &visible); err != nil {
		t.Fatalf("unmarshal announcements: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != posted.ID {
		t.Fatalf("expected the portal-wide row in the ee listing, got %+v", visible)
	}
}

func TestGradeNotificationReachesOnlyStudent(t *testing.T) {
	env := startTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	teacherToken, teacherID := env.register(t, "prof", "teacher", "cs")
	otherTeacherToken, _ := env.register(t, "prof2", "teacher", "cs")
	aliceToken, aliceID := env.register(t, "alice", "student", "cs")
	bobToken, bobID := env.register(t, "bob", "student", "cs")

	courseID := env.createCourse(t, "CS101", "Algorithms", "cs")
	env.setMembership(t, courseID, teacherID, store.MembershipTeaches)
	env.setMembership(t, courseID, aliceID, store.MembershipEnrolled)
	env.setMembership(t, courseID, bobID, store.MembershipEnrolled)

	aliceConn := env.dialWS(t, ctx, aliceToken)
	awaitWelcome(t, ctx, aliceConn)
	bobConn := env.dialWS(t, ctx, bobToken)
	awaitWelcome(t, ctx, bobConn)

	gradesPath := fmt.Sprintf("/api/courses/%d/grades", courseID)
	status, body := doJSON(t, env, http.MethodPost, gradesPath, teacherToken, GradeRequest{
		StudentID: aliceID,
		Label:     "Midterm",
		Value:     17.5,
	})
	if status != http.StatusCreated {
		t.Fatalf("post grade: expected 201, got %d: %s", status, body)
	}
	var posted GradeResponse
	if err := json.Unmarshal(body, &posted); err != nil {
		t.Fatalf("unmarshal grade: %v", err)
	}
	if posted.ID == 0 || posted.CourseID != courseID || posted.Value != 17.5 {
		t.Fatalf("unexpected grade record: %+v", posted)
	}

	var event proto.EventGrade
	awaitEvent(t, ctx, aliceConn, "grade", &event)
	if event.ID != posted.ID || event.Course != courseID || event.Label != "Midterm" || event.Value != 17.5 {
		t.Fatalf("unexpected grade event: %+v", event)
	}

	// Classmates never see each other's grades.
	mustQuietWS(t, bobConn, 150*time.Millisecond, "grade", func(frame rxEnvelope) bool {
		return frame.Event == "grade"
	})

	// The student can read it back over REST.
	status, body = doJSON(t, env, http.MethodGet, "/api/grades", aliceToken, nil)
	if status != http.StatusOK {
		t.Fatalf("list grades: expected 200, got %d", status)
	}
	var mine []GradeResponse
	if err := json.Unmarshal(body, &mine); err != nil {
		t.Fatalf("unmarshal grades: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != posted.ID {
		t.Fatalf("expected one grade for alice, got %+v", mine)
	}

	status, body = doJSON(t, env, http.MethodGet, "/api/grades", bobToken, nil)
	if status != http.StatusOK {
		t.Fatalf("list grades: expected 200, got %d", status)
	}
	var theirs []GradeResponse
	if err := json.Unmarshal(body, &theirs); err != nil {
		t.Fatalf("unmarshal grades: %v", err)
	}
	if len(theirs) != 0 {
		t.Fatalf("expected no grades for bob, got %+v", theirs)
	}

	// Authority checks around the posting endpoint.
	status, _ = doJSON(t, env, http.MethodPost, gradesPath, otherTeacherToken, GradeRequest{
		StudentID: aliceID, Label: "Quiz", Value: 10,
	})
	if status != http.StatusForbidden {
		t.Fatalf("non-teaching teacher: expected 403, got %d", status)
	}
	status, _ = doJSON(t, env, http.MethodPost, gradesPath, aliceToken, GradeRequest{
		StudentID: bobID, Label: "Quiz", Value: 10,
	})
	if status != http.StatusForbidden {
		t.Fatalf("student grader: expected 403, got %d", status)
	}
	status, _ = doJSON(t, env, http.MethodPost, "/api/courses/9999/grades", teacherToken, GradeRequest{
		StudentID: aliceID, Label: "Quiz", Value: 10,
	})
	if status != http.StatusNotFound {
		t.Fatalf("missing course: expected 404, got %d", status)
	}

	_, strangerID := env.register(t, "zoe", "student", "cs")
	status, _ = doJSON(t, env, http.MethodPost, gradesPath, teacherToken, GradeRequest{
		StudentID: strangerID, Label: "Quiz", Value: 10,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("not-enrolled student: expected 400, got %d", status)
	}
}
