package core

import (
	"context"
	"testing"
	"time"
)

func TestHubAttachBroadcastLeave(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	alice := NewConn("a1", testPrincipal(1, "alice", RoleStudent, "cs", map[int64]CourseRole{7: CourseEnrolled}), 0)
	bob := NewConn("b1", testPrincipal(2, "bob", RoleStudent, "cs", map[int64]CourseRole{7: CourseEnrolled}), 0)

	hub.Attach(bob, resolutionFor(bob.Principal))
	hub.Attach(alice, resolutionFor(alice.Principal))

	welcome := mustEvent(t, bob.Events, EventWelcome)
	if welcome.Partial {
		t.Fatalf("unexpected partial welcome: %+v", welcome)
	}
	found := false
	for _, ch := range welcome.Channels {
		if ch == CourseChannel(7) {
			found = true
		}
	}
	if !found {
		t.Fatalf("welcome misses course channel: %+v", welcome.Channels)
	}

	hub.Publish(&Signal{
		Kind:       SignalChat,
		Scope:      ChannelScope(CourseChannel(7)),
		SourceConn: alice.ID,
		Sender:     1,
		SenderName: "alice",
		Message:    &Message{Channel: CourseChannel(7), Sender: 1, SenderName: "alice", Body: "hi"},
	})

	sig := mustSignal(t, bob.Events, SignalChat)
	if sig.Message == nil || sig.Message.Body != "hi" || sig.SenderName != "alice" {
		t.Fatalf("unexpected chat signal: %+v", sig)
	}

	hub.Unsubscribe(alice.ID, CourseChannel(7))
	leftEv := mustEvent(t, alice.Events, EventLeft)
	if leftEv.Channel != CourseChannel(7) {
		t.Fatalf("unexpected left event: %+v", leftEv)
	}

	// Alice is out of the channel now and must not see bob's message.
	hub.Publish(&Signal{
		Kind:       SignalChat,
		Scope:      ChannelScope(CourseChannel(7)),
		SourceConn: bob.ID,
		Sender:     2,
		SenderName: "bob",
		Message:    &Message{Channel: CourseChannel(7), Sender: 2, SenderName: "bob", Body: "still there?"},
	})
	mustQuiet(t, alice.Events, SignalChat)
}

func TestHubMultiDevicePresence(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	courses := map[int64]CourseRole{7: CourseEnrolled}
	bob := NewConn("b1", testPrincipal(2, "bob", RoleStudent, "cs", courses), 0)
	hub.Attach(bob, resolutionFor(bob.Principal))
	mustEvent(t, bob.Events, EventWelcome)

	phone := NewConn("a-phone", testPrincipal(1, "alice", RoleStudent, "cs", courses), 0)
	laptop := NewConn("a-laptop", testPrincipal(1, "alice", RoleStudent, "cs", courses), 0)

	hub.Attach(phone, resolutionFor(phone.Principal))
	online := mustSignal(t, bob.Events, SignalStatusUpdate)
	if online.Status == nil || online.Status.Principal != 1 || online.Status.Status != StatusOnline {
		t.Fatalf("unexpected status signal: %+v", online)
	}

	// Second device of an already-online principal is silent.
	hub.Attach(laptop, resolutionFor(laptop.Principal))
	mustQuiet(t, bob.Events, SignalStatusUpdate)

	// Dropping one device keeps the principal online.
	hub.Detach(phone.ID, ErrCodeNormalClose)
	mustQuiet(t, bob.Events, SignalStatusUpdate)
	if rec := hub.PresenceSnapshot(1); rec.Status != StatusOnline {
		t.Fatalf("expected alice online, got %+v", rec)
	}

	// Dropping the last device emits exactly one offline with lastSeen set.
	hub.Detach(laptop.ID, ErrCodeNormalClose)
	offline := mustSignal(t, bob.Events, SignalStatusUpdate)
	if offline.Status == nil || offline.Status.Status != StatusOffline || offline.Status.LastSeen.IsZero() {
		t.Fatalf("unexpected offline signal: %+v", offline)
	}
	mustQuiet(t, bob.Events, SignalStatusUpdate)

	if rec := hub.PresenceSnapshot(1); rec.Status != StatusOffline || rec.LastSeen.IsZero() {
		t.Fatalf("expected alice offline with lastSeen, got %+v", rec)
	}
}

func TestHubDetachIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	courses := map[int64]CourseRole{7: CourseEnrolled}
	bob := NewConn("b1", testPrincipal(2, "bob", RoleStudent, "cs", courses), 0)
	alice := NewConn("a1", testPrincipal(1, "alice", RoleStudent, "cs", courses), 0)

	hub.Attach(bob, resolutionFor(bob.Principal))
	hub.Attach(alice, resolutionFor(alice.Principal))
	mustSignal(t, bob.Events, SignalStatusUpdate)

	hub.Detach(alice.ID, ErrCodeTransportError)
	hub.Detach(alice.ID, ErrCodeNormalClose)
	hub.Detach("never-registered", ErrCodeNormalClose)

	offline := mustSignal(t, bob.Events, SignalStatusUpdate)
	if offline.Status == nil || offline.Status.Status != StatusOffline {
		t.Fatalf("unexpected status signal: %+v", offline)
	}
	mustQuiet(t, bob.Events, SignalStatusUpdate)
}

func TestHubTypingSignalsKeepOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	courses := map[int64]CourseRole{7: CourseEnrolled}
	alice := NewConn("a1", testPrincipal(1, "alice", RoleStudent, "cs", courses), 0)
	bob := NewConn("b1", testPrincipal(2, "bob", RoleStudent, "cs", courses), 64)

	hub.Attach(alice, resolutionFor(alice.Principal))
	hub.Attach(bob, resolutionFor(bob.Principal))
	mustEvent(t, bob.Events, EventWelcome)

	const pairs = 5
	for i := 0; i < pairs; i++ {
		hub.Publish(&Signal{Kind: SignalTypingStart, Scope: ChannelScope(CourseChannel(7)), SourceConn: alice.ID, Sender: 1})
		hub.Publish(&Signal{Kind: SignalTypingStop, Scope: ChannelScope(CourseChannel(7)), SourceConn: alice.ID, Sender: 1})
	}

	var got []SignalKind
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < pairs*2 && time.Now().Before(deadline) {
		select {
		case ev := <-bob.Events:
			if ev != nil && ev.Kind == EventSignal && ev.Signal != nil {
				if ev.Signal.Kind == SignalTypingStart || ev.Signal.Kind == SignalTypingStop {
					got = append(got, ev.Signal.Kind)
				}
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if len(got) != pairs*2 {
		t.Fatalf("expected %d typing signals, got %d", pairs*2, len(got))
	}
	for i, kind := range got {
		want := SignalTypingStart
		if i%2 == 1 {
			want = SignalTypingStop
		}
		if kind != want {
			t.Fatalf("typing signals out of order at %d: %v", i, got)
		}
	}
}

func TestHubReadReceiptReachesMembersOnly(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	sam := NewConn("s1", testPrincipal(10, "sam", RoleTeacher, "cs", map[int64]CourseRole{7: CourseTeaches}), 0)
	tina := NewConn("t1", testPrincipal(11, "tina", RoleStudent, "cs", map[int64]CourseRole{7: CourseEnrolled}), 0)
	uma := NewConn("u1", testPrincipal(12, "uma", RoleStudent, "ee", nil), 0)

	hub.Attach(sam, resolutionFor(sam.Principal))
	hub.Attach(tina, resolutionFor(tina.Principal))
	hub.Attach(uma, resolutionFor(uma.Principal))
	mustEvent(t, tina.Events, EventWelcome)
	mustEvent(t, uma.Events, EventWelcome)

	hub.Publish(&Signal{
		Kind:       SignalReadReceipt,
		Scope:      ChannelScope(CourseChannel(7)),
		SourceConn: sam.ID,
		Sender:     10,
		SenderName: "sam",
		Receipt:    &Receipt{MessageID: 99, ReadBy: 10, ReadAt: time.Now()},
	})

	receipt := mustSignal(t, tina.Events, SignalReadReceipt)
	if receipt.Receipt == nil || receipt.Receipt.MessageID != 99 || receipt.Receipt.ReadBy != 10 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	mustQuiet(t, tina.Events, SignalReadReceipt)
	mustQuiet(t, uma.Events, SignalReadReceipt)
}

func TestHubRefreshCompletesPartialResolve(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	courses := map[int64]CourseRole{7: CourseEnrolled}
	alice := NewConn("a1", testPrincipal(1, "alice", RoleStudent, "cs", courses), 0)
	bob := NewConn("b1", testPrincipal(2, "bob", RoleStudent, "cs", courses), 0)
	hub.Attach(bob, resolutionFor(bob.Principal))

	partial := &Resolution{
		Channels: []ChannelID{PersonalChannel(1), DepartmentChannel("cs"), GlobalChannelID},
		Partial:  true,
	}
	hub.Attach(alice, partial)
	welcome := mustEvent(t, alice.Events, EventWelcome)
	if !welcome.Partial {
		t.Fatalf("expected partial welcome, got %+v", welcome)
	}

	// Course traffic is invisible until the retry fills in the rest.
	hub.Publish(&Signal{
		Kind:       SignalChat,
		Scope:      ChannelScope(CourseChannel(7)),
		SourceConn: bob.ID,
		Sender:     2,
		Message:    &Message{Channel: CourseChannel(7), Sender: 2, Body: "early"},
	})
	mustQuiet(t, alice.Events, SignalChat)

	hub.Refresh(alice.ID, resolutionFor(alice.Principal))
	refreshed := mustEvent(t, alice.Events, EventWelcome)
	if refreshed.Partial {
		t.Fatalf("expected complete welcome, got %+v", refreshed)
	}

	hub.Publish(&Signal{
		Kind:       SignalChat,
		Scope:      ChannelScope(CourseChannel(7)),
		SourceConn: bob.ID,
		Sender:     2,
		Message:    &Message{Channel: CourseChannel(7), Sender: 2, Body: "caught up"},
	})
	sig := mustSignal(t, alice.Events, SignalChat)
	if sig.Message == nil || sig.Message.Body != "caught up" {
		t.Fatalf("unexpected chat signal: %+v", sig)
	}
}

func TestHubPresencePingBroadcasts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	courses := map[int64]CourseRole{7: CourseEnrolled}
	alice := NewConn("a1", testPrincipal(1, "alice", RoleStudent, "cs", courses), 0)
	bob := NewConn("b1", testPrincipal(2, "bob", RoleStudent, "cs", courses), 0)

	hub.Attach(alice, resolutionFor(alice.Principal))
	hub.Attach(bob, resolutionFor(bob.Principal))
	mustSignal(t, bob.Events, SignalStatusUpdate)

	hub.PresencePing(alice.ID)
	ping := mustSignal(t, bob.Events, SignalStatusUpdate)
	if ping.Status == nil || ping.Status.Principal != 1 || ping.Status.Status != StatusOnline {
		t.Fatalf("unexpected status signal: %+v", ping)
	}
}

func TestHubGradeFanoutIsPrincipalScoped(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	courses := map[int64]CourseRole{7: CourseEnrolled}
	phone := NewConn("a-phone", testPrincipal(1, "alice", RoleStudent, "cs", courses), 0)
	laptop := NewConn("a-laptop", testPrincipal(1, "alice", RoleStudent, "cs", courses), 0)
	bob := NewConn("b1", testPrincipal(2, "bob", RoleStudent, "cs", courses), 0)

	hub.Attach(phone, resolutionFor(phone.Principal))
	hub.Attach(laptop, resolutionFor(laptop.Principal))
	hub.Attach(bob, resolutionFor(bob.Principal))
	mustEvent(t, bob.Events, EventWelcome)

	hub.Publish(&Signal{
		Kind:  SignalGrade,
		Scope: PrincipalScope(1),
		Grade: &Grade{ID: 5, Course: 7, Student: 1, Label: "midterm", Value: 17.5},
	})

	for _, conn := range []*Conn{phone, laptop} {
		sig := mustSignal(t, conn.Events, SignalGrade)
		if sig.Grade == nil || sig.Grade.Value != 17.5 {
			t.Fatalf("unexpected grade signal: %+v", sig)
		}
	}
	mustQuiet(t, bob.Events, SignalGrade)
}
