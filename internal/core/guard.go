package core

import "fmt"

// Action is what a principal wants to do with a channel.
type Action string

const (
	ActionJoin Action = "join"
	ActionSend Action = "send"
)

// Authorize decides whether the principal may perform the action on the
// channel. It is a pure function of its arguments: course membership is
// whatever the principal's Courses map says, so callers that need fresh
// membership must refresh it first.
//
// Rules:
//   - personal channels belong to exactly one principal; nobody else may
//     join or send, admins included
//   - course channels require enrollment or a teaching assignment; admins
//     may always join and send
//   - department channels require membership in that department; admins
//     may always join and send
//   - the global channel is system-managed; explicit joins and sends are
//     always denied
func Authorize(p *Principal, action Action, target Channel) error {
	switch target.Kind {
	case ChannelPersonal:
		if target.Principal != p.ID {
			return Forbidden(fmt.Sprintf("channel %s is private", target.ID))
		}
		return nil
	case ChannelCourse:
		if p.IsAdmin() || p.MemberOfCourse(target.Course) {
			return nil
		}
		return Forbidden(fmt.Sprintf("not a member of course %d", target.Course))
	case ChannelDepartment:
		if p.IsAdmin() || p.Department == target.Department {
			return nil
		}
		return Forbidden(fmt.Sprintf("not a member of department %s", target.Department))
	case ChannelGlobal:
		return Forbidden("global channel is system-managed")
	default:
		return NotFound(fmt.Sprintf("unknown channel %s", target.ID))
	}
}
