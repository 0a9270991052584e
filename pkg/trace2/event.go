package trace2

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoSid means a line decoded fine but carries no session id, so the
// event cannot be attributed to any invocation. The stream is not safe to
// process past this point.
var ErrNoSid = errors.New("trace2: event record has no sid")

// Common holds the fields present on every trace2 event: the session id
// correlating all events of one process invocation, and the event's
// fractional-second epoch timestamp.
type Common struct {
	Sid  string
	Time float64
}

func (c Common) Base() Common { return c }

func (Common) isEvent() {}

// Event is the closed set of decoded trace2 event variants. Each variant
// carries only the fields its event type actually produces.
type Event interface {
	isEvent()
	Base() Common
}

type Version struct {
	Common
	Evt string
	Exe string
}

type Start struct {
	Common
	Argv []string
}

type CmdName struct {
	Common
	Name      string
	Hierarchy []string
}

type DefRepo struct {
	Common
	Worktree string
}

type Exit struct {
	Common
	Code int
}

type Atexit struct {
	Common
	Code int
}

type Signal struct {
	Common
	Signo int
}

type Data struct {
	Common
	Category string
	Key      string
}

type ChildStart struct {
	Common
	ChildID int
	Argv    []string
}

type ChildExit struct {
	Common
	ChildID int
	Code    int
}

type Exec struct {
	Common
	Argv []string
}

type CmdMode struct {
	Common
	Name string
}

type Error struct {
	Common
	Msg string
}

type Alias struct {
	Common
	Alias string
	Argv  []string
}

type RegionEnter struct {
	Common
	Nesting  int
	Category string
	Label    string
}

type RegionLeave struct {
	Common
	Nesting  int
	Category string
	Label    string
}

// Unknown is produced for event names this tool does not model. It is
// ignored by the session store but surfaced by the diagnostics channel.
type Unknown struct {
	Common
	Event string
}

// rawEvent is the union of every field any event type may carry. Decoding
// maps it onto the matching variant.
type rawEvent struct {
	Event     string   `json:"event"`
	Sid       string   `json:"sid"`
	Time      float64  `json:"time"`
	Evt       string   `json:"evt"`
	Exe       string   `json:"exe"`
	Argv      []string `json:"argv"`
	Name      string   `json:"name"`
	Hierarchy string   `json:"hierarchy"`
	Worktree  string   `json:"worktree"`
	Code      int      `json:"code"`
	Signo     int      `json:"signo"`
	ChildID   int      `json:"child_id"`
	Nesting   int      `json:"nesting"`
	Category  string   `json:"category"`
	Label     string   `json:"label"`
	Key       string   `json:"key"`
	Msg       string   `json:"msg"`
	Alias     string   `json:"alias"`
}

// DecodeLine parses one line of the event stream.
//
// The result is three-way: (event, true, nil) on success, (nil, false, nil)
// for a line that is not a decodable record and must be skipped, and a
// non-nil error for a record that decodes but cannot be attributed.
func DecodeLine(data []byte) (Event, bool, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false, nil
	}
	if raw.Sid == "" {
		return nil, false, ErrNoSid
	}

	common := Common{Sid: raw.Sid, Time: raw.Time}
	switch raw.Event {
	case "version":
		return &Version{common, raw.Evt, raw.Exe}, true, nil
	case "start":
		return &Start{common, raw.Argv}, true, nil
	case "cmd_name":
		return &CmdName{common, raw.Name, splitHierarchy(raw)}, true, nil
	case "def_repo":
		return &DefRepo{common, raw.Worktree}, true, nil
	case "exit":
		return &Exit{common, raw.Code}, true, nil
	case "atexit":
		return &Atexit{common, raw.Code}, true, nil
	case "signal":
		return &Signal{common, raw.Signo}, true, nil
	case "data":
		return &Data{common, raw.Category, raw.Key}, true, nil
	case "child_start":
		return &ChildStart{common, raw.ChildID, raw.Argv}, true, nil
	case "child_exit":
		return &ChildExit{common, raw.ChildID, raw.Code}, true, nil
	case "exec":
		return &Exec{common, raw.Argv}, true, nil
	case "cmd_mode":
		return &CmdMode{common, raw.Name}, true, nil
	case "error":
		return &Error{common, raw.Msg}, true, nil
	case "alias":
		return &Alias{common, raw.Alias, raw.Argv}, true, nil
	case "region_enter":
		return &RegionEnter{common, raw.Nesting, raw.Category, raw.Label}, true, nil
	case "region_leave":
		return &RegionLeave{common, raw.Nesting, raw.Category, raw.Label}, true, nil
	default:
		return &Unknown{common, raw.Event}, true, nil
	}
}

// Trace2 reports the hierarchy as a '/'-joined string. Top-level commands
// sometimes omit it and report only the bare name.
func splitHierarchy(raw rawEvent) []string {
	if raw.Hierarchy != "" {
		return strings.Split(raw.Hierarchy, "/")
	}
	if raw.Name != "" {
		return []string{raw.Name}
	}
	return nil
}

// EventKind names an event variant for diagnostics.
func EventKind(ev Event) string {
	switch e := ev.(type) {
	case *Version:
		return "version"
	case *Start:
		return "start"
	case *CmdName:
		return "cmd_name"
	case *DefRepo:
		return "def_repo"
	case *Exit:
		return "exit"
	case *Atexit:
		return "atexit"
	case *Signal:
		return "signal"
	case *Data:
		return "data"
	case *ChildStart:
		return "child_start"
	case *ChildExit:
		return "child_exit"
	case *Exec:
		return "exec"
	case *CmdMode:
		return "cmd_mode"
	case *Error:
		return "error"
	case *Alias:
		return "alias"
	case *RegionEnter:
		return "region_enter"
	case *RegionLeave:
		return "region_leave"
	case *Unknown:
		return "unknown:" + e.Event
	default:
		return "unknown"
	}
}
