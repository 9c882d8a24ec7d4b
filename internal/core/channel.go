package core

import (
	"fmt"
	"strconv"
	"strings"
)

// ChannelKind describes what backs a broadcast channel.
type ChannelKind string

const (
	ChannelPersonal   ChannelKind = "personal"
	ChannelCourse     ChannelKind = "course"
	ChannelDepartment ChannelKind = "department"
	ChannelGlobal     ChannelKind = "global"
)

// ChannelID is the canonical string form of a channel: "user:<id>",
// "course:<id>", "dept:<name>" or "global". Channels carry no persisted
// state of their own; their backing entities live in the portal store.
type ChannelID string

// GlobalChannelID is the single campus-wide channel every connection is
// implicitly subscribed to.
const GlobalChannelID ChannelID = "global"

// PersonalChannel returns the channel id private to one principal.
func PersonalChannel(principalID int64) ChannelID {
	return ChannelID("user:" + strconv.FormatInt(principalID, 10))
}

// CourseChannel returns the channel id for a course.
func CourseChannel(courseID int64) ChannelID {
	return ChannelID("course:" + strconv.FormatInt(courseID, 10))
}

// DepartmentChannel returns the channel id for a department.
func DepartmentChannel(department string) ChannelID {
	return ChannelID("dept:" + department)
}

// Channel is the parsed form of a ChannelID.
type Channel struct {
	ID         ChannelID
	Kind       ChannelKind
	Principal  int64  // set for personal channels
	Course     int64  // set for course channels
	Department string // set for department channels
}

// ParseChannel decodes a channel id. Malformed ids are reported as errors
// so callers can answer not-found without consulting the store.
func ParseChannel(id ChannelID) (Channel, error) {
	s := string(id)
	if s == string(GlobalChannelID) {
		return Channel{ID: id, Kind: ChannelGlobal}, nil
	}

	prefix, rest, ok := strings.Cut(s, ":")
	if !ok || rest == "" {
		return Channel{}, fmt.Errorf("malformed channel id %q", s)
	}

	switch prefix {
	case "user":
		pid, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || pid <= 0 {
			return Channel{}, fmt.Errorf("malformed personal channel id %q", s)
		}
		return Channel{ID: id, Kind: ChannelPersonal, Principal: pid}, nil
	case "course":
		cid, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || cid <= 0 {
			return Channel{}, fmt.Errorf("malformed course channel id %q", s)
		}
		return Channel{ID: id, Kind: ChannelCourse, Course: cid}, nil
	case "dept":
		return Channel{ID: id, Kind: ChannelDepartment, Department: rest}, nil
	default:
		return Channel{}, fmt.Errorf("unknown channel kind in %q", s)
	}
}
