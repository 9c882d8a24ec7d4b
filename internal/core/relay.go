package core

import (
	"errors"
	"time"
)

// Relay admits client-originated signals before they reach the router.
// Checks are pure: scope membership is judged against the principal's
// current course set, and nothing here touches the store. Admitted signals
// get their sender identity and timestamp stamped from the connection, so
// clients cannot speak for anyone else.
type Relay struct {
	now func() time.Time
}

func NewRelay() *Relay {
	return &Relay{now: time.Now}
}

// Validate decides whether the connection's principal may send the signal
// to its declared scope. It returns nil and normalizes the signal on
// success, or the rejection to report back to the sender. The connection
// survives either way.
func (r *Relay) Validate(p *Principal, sig *Signal) *Error {
	switch sig.Kind {
	case SignalChat:
		if sig.Message == nil || sig.Message.Body == "" {
			return BadRequest("empty message")
		}
		if sig.Scope.Kind != ScopeChannel {
			return BadRequest("chat messages are channel-scoped")
		}
	case SignalTypingStart, SignalTypingStop:
		// no payload beyond the scope
	case SignalReadReceipt:
		if sig.Receipt == nil || sig.Receipt.MessageID <= 0 {
			return BadRequest("missing message id")
		}
	case SignalFileShared:
		if sig.File == nil || sig.File.Name == "" {
			return BadRequest("missing file metadata")
		}
		if sig.Scope.Kind != ScopeChannel {
			return BadRequest("shared files are channel-scoped")
		}
	default:
		return BadRequest("unsupported signal kind")
	}

	switch sig.Scope.Kind {
	case ScopeChannel:
		ch, err := ParseChannel(sig.Scope.Channel)
		if err != nil {
			return NotFound("unknown channel " + string(sig.Scope.Channel))
		}
		if err := Authorize(p, ActionSend, ch); err != nil {
			var ce *Error
			if errors.As(err, &ce) {
				return ce
			}
			return Forbidden(err.Error())
		}
	case ScopePrincipal:
		// Signals aimed at a principal are self-sync between a user's own
		// devices; nobody may target someone else's sessions directly.
		if sig.Scope.Principal != p.ID {
			return Forbidden("cannot signal another principal directly")
		}
	case ScopeGlobal:
		return Forbidden("global scope is system-managed")
	default:
		return BadRequest("missing scope")
	}

	sig.Sender = p.ID
	sig.SenderName = p.Username
	if sig.At.IsZero() {
		sig.At = r.now()
	}
	if sig.Receipt != nil {
		sig.Receipt.ReadBy = p.ID
		if sig.Receipt.ReadAt.IsZero() {
			sig.Receipt.ReadAt = sig.At
		}
	}
	if sig.Message != nil {
		sig.Message.Sender = p.ID
		sig.Message.SenderName = p.Username
		sig.Message.Channel = sig.Scope.Channel
		if sig.Message.SentAt.IsZero() {
			sig.Message.SentAt = sig.At
		}
	}
	return nil
}
