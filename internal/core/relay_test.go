package core

import (
	"testing"
	"time"
)

func TestRelayValidateChat(t *testing.T) {
	r := NewRelay()
	p := testPrincipal(1, "alice", RoleStudent, "cs", map[int64]CourseRole{7: CourseEnrolled})

	sig := &Signal{
		Kind:    SignalChat,
		Scope:   ChannelScope(CourseChannel(7)),
		Message: &Message{Body: "hello"},
	}
	if rej := r.Validate(p, sig); rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	if sig.Sender != 1 || sig.SenderName != "alice" || sig.At.IsZero() {
		t.Fatalf("sender not stamped: %+v", sig)
	}
	if sig.Message.Sender != 1 || sig.Message.Channel != CourseChannel(7) {
		t.Fatalf("message not normalized: %+v", sig.Message)
	}
}

func TestRelayStampsOverSpoofedSender(t *testing.T) {
	r := NewRelay()
	p := testPrincipal(1, "alice", RoleStudent, "cs", map[int64]CourseRole{7: CourseEnrolled})

	sig := &Signal{
		Kind:       SignalChat,
		Scope:      ChannelScope(CourseChannel(7)),
		Sender:     999,
		SenderName: "mallory",
		Message:    &Message{Body: "hi", Sender: 999, SenderName: "mallory"},
	}
	if rej := r.Validate(p, sig); rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	if sig.Sender != 1 || sig.SenderName != "alice" || sig.Message.Sender != 1 {
		t.Fatalf("spoofed identity survived: %+v", sig)
	}
}

func TestRelayRejections(t *testing.T) {
	r := NewRelay()
	member := testPrincipal(1, "alice", RoleStudent, "cs", map[int64]CourseRole{7: CourseEnrolled})

	cases := []struct {
		name string
		sig  *Signal
		code string
	}{
		{
			"chat to foreign course",
			&Signal{Kind: SignalChat, Scope: ChannelScope(CourseChannel(8)), Message: &Message{Body: "x"}},
			ErrCodeForbidden,
		},
		{
			"typing to malformed channel",
			&Signal{Kind: SignalTypingStart, Scope: ChannelScope("classroom-7")},
			ErrCodeNotFound,
		},
		{
			"typing to another principal",
			&Signal{Kind: SignalTypingStart, Scope: PrincipalScope(2)},
			ErrCodeForbidden,
		},
		{
			"read receipt without message id",
			&Signal{Kind: SignalReadReceipt, Scope: ChannelScope(CourseChannel(7)), Receipt: &Receipt{}},
			ErrCodeBadRequest,
		},
		{
			"global scope send",
			&Signal{Kind: SignalTypingStart, Scope: GlobalScope()},
			ErrCodeForbidden,
		},
		{
			"empty chat body",
			&Signal{Kind: SignalChat, Scope: ChannelScope(CourseChannel(7)), Message: &Message{}},
			ErrCodeBadRequest,
		},
		{
			"file share without metadata",
			&Signal{Kind: SignalFileShared, Scope: ChannelScope(CourseChannel(7))},
			ErrCodeBadRequest,
		},
		{
			"file share to personal scope",
			&Signal{Kind: SignalFileShared, Scope: PrincipalScope(1), File: &FileMeta{Name: "a.pdf"}},
			ErrCodeBadRequest,
		},
		{
			"announcement kind reserved for services",
			&Signal{Kind: SignalAnnouncement, Scope: ChannelScope(CourseChannel(7))},
			ErrCodeBadRequest,
		},
		{
			"grade kind reserved for services",
			&Signal{Kind: SignalGrade, Scope: PrincipalScope(1)},
			ErrCodeBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rej := r.Validate(member, tc.sig)
			if rej == nil {
				t.Fatal("expected rejection")
			}
			if rej.Code != tc.code {
				t.Fatalf("expected %s, got %s (%s)", tc.code, rej.Code, rej.Message)
			}
		})
	}
}

func TestRelaySelfSyncSignals(t *testing.T) {
	r := NewRelay()
	p := testPrincipal(1, "alice", RoleStudent, "cs", map[int64]CourseRole{7: CourseEnrolled})

	// Reading a message on one device syncs the others through the
	// principal scope.
	sig := &Signal{
		Kind:    SignalReadReceipt,
		Scope:   PrincipalScope(1),
		Receipt: &Receipt{MessageID: 42},
	}
	if rej := r.Validate(p, sig); rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	if sig.Receipt.ReadBy != 1 || sig.Receipt.ReadAt.IsZero() {
		t.Fatalf("receipt not stamped: %+v", sig.Receipt)
	}
}

func TestRelayReadReceiptKeepsCallerTimestamp(t *testing.T) {
	r := NewRelay()
	p := testPrincipal(1, "alice", RoleStudent, "cs", map[int64]CourseRole{7: CourseEnrolled})

	at := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	sig := &Signal{
		Kind:    SignalReadReceipt,
		Scope:   ChannelScope(CourseChannel(7)),
		Receipt: &Receipt{MessageID: 9, ReadAt: at},
	}
	if rej := r.Validate(p, sig); rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	if !sig.Receipt.ReadAt.Equal(at) {
		t.Fatalf("caller timestamp overwritten: %+v", sig.Receipt)
	}
}
