// Package trace2 correlates a stream of trace2 lifecycle events into
// per-invocation records and folds them into aggregated stack-path
// durations for flame graph renderers.
package trace2

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// slashPlaceholder escapes a literal '/' inside a region category or
	// label so it survives path joining. Restored to '/' at emission.
	slashPlaceholder = "\x01"

	// regionKeyMarker prefixes region labels in composite-key renderings
	// (dump mode) so region records cannot collide with invocation ids.
	regionKeyMarker = "REGION:"

	// unattributedPath is a reserved hierarchy for invocations that exited
	// with a code but never announced a command name.
	unattributedPath = "__unattributed__"
)

// PathResolver canonicalizes a worktree path. Failures fall back to the
// raw string.
type PathResolver func(string) (string, error)

func defaultResolver(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// Invocation accumulates everything seen for one session id.
//
// Field presence mirrors the event stream: a nil pointer or zero value
// means the corresponding event never arrived. Duration and FinalPath are
// derived during reconciliation; a record reaches the output only with
// both set.
type Invocation struct {
	Sid        string   `yaml:"sid"`
	Exe        string   `yaml:"exe,omitempty"`
	StartTime  *float64 `yaml:"start_time,omitempty"`
	Argv       []string `yaml:"argv,omitempty"`
	Name       string   `yaml:"name,omitempty"`
	Hierarchy  []string `yaml:"hierarchy,omitempty"`
	Worktree   string   `yaml:"worktree,omitempty"`
	ExitTime   *float64 `yaml:"exit_time,omitempty"`
	ExitCode   *int     `yaml:"exit_code,omitempty"`
	SignalTime *float64 `yaml:"signal_time,omitempty"`
	Signo      *int     `yaml:"signo,omitempty"`
	Modes      []string `yaml:"modes,omitempty"`
	Alias      string   `yaml:"alias,omitempty"`
	AliasArgv  []string `yaml:"alias_argv,omitempty"`
	Duration   *int64   `yaml:"duration,omitempty"`
	FinalPath  string   `yaml:"final_path,omitempty"`
}

// populated reports whether any event beyond record creation has touched
// this invocation. A version event must be the first event of its sid.
func (inv *Invocation) populated() bool {
	return inv.Exe != "" ||
		inv.StartTime != nil ||
		inv.Argv != nil ||
		inv.Name != "" ||
		inv.Hierarchy != nil ||
		inv.Worktree != "" ||
		inv.ExitTime != nil ||
		inv.SignalTime != nil ||
		inv.Modes != nil ||
		inv.Alias != ""
}

// Region is a synthesized record for one named sub-interval of an
// invocation. Enter and leave timestamps accumulate positionally; pairing
// happens on sorted order during reconciliation, so interleaved delivery
// cannot corrupt it.
type Region struct {
	Sid        string    `yaml:"sid"`
	Label      string    `yaml:"label"`
	Enters     []float64 `yaml:"enters,omitempty"`
	Leaves     []float64 `yaml:"leaves,omitempty"`
	EnterCount int       `yaml:"enter_count"`
	LeaveCount int       `yaml:"leave_count"`
	Duration   *int64    `yaml:"duration,omitempty"`
	FinalPath  string    `yaml:"final_path,omitempty"`
}

// RegionKey identifies a region record: owning session id plus the
// escaped "category:label" name.
type RegionKey struct {
	Sid   string
	Label string
}

// Session is the event-correlation context for one run: the keyed record
// collection plus the worktree resolution cache. It is built by a single
// orchestrating routine and is not safe for concurrent use.
type Session struct {
	invocations map[string]*Invocation
	regions     map[RegionKey]*Region

	resolve   PathResolver
	worktrees map[string]string
}

type SessionOption func(*Session)

// WithResolver overrides the worktree path resolver.
func WithResolver(resolve PathResolver) SessionOption {
	return func(s *Session) {
		s.resolve = resolve
	}
}

func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		invocations: make(map[string]*Invocation),
		regions:     make(map[RegionKey]*Region),
		resolve:     defaultResolver,
		worktrees:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) invocation(sid string) *Invocation {
	inv, ok := s.invocations[sid]
	if !ok {
		inv = &Invocation{Sid: sid}
		s.invocations[sid] = inv
	}
	return inv
}

func (s *Session) region(sid, category, label string) *Region {
	key := RegionKey{Sid: sid, Label: regionLabel(category, label)}
	r, ok := s.regions[key]
	if !ok {
		r = &Region{Sid: sid, Label: key.Label}
		s.regions[key] = r
	}
	return r
}

func regionLabel(category, label string) string {
	return escapeSlashes(category) + ":" + escapeSlashes(label)
}

func escapeSlashes(s string) string {
	return strings.ReplaceAll(s, "/", slashPlaceholder)
}

func restoreSlashes(s string) string {
	return strings.ReplaceAll(s, slashPlaceholder, "/")
}

// Apply folds one event into the record collection. The returned error is
// fatal for the whole run.
func (s *Session) Apply(ev Event) error {
	sid := ev.Base().Sid

	switch e := ev.(type) {
	case *Version:
		inv := s.invocation(sid)
		if inv.populated() {
			return fmt.Errorf("trace2: second version event for already populated sid %q", sid)
		}
		inv.Exe = e.Exe

	case *Start:
		inv := s.invocation(sid)
		t := e.Time
		inv.StartTime = &t
		inv.Argv = e.Argv

	case *CmdName:
		inv := s.invocation(sid)
		inv.Name = e.Name
		inv.Hierarchy = e.Hierarchy

	case *DefRepo:
		s.invocation(sid).Worktree = s.resolveWorktree(e.Worktree)

	case *Exit:
		inv := s.invocation(sid)
		t := e.Time
		code := e.Code
		inv.ExitTime = &t
		inv.ExitCode = &code

	case *Signal:
		inv := s.invocation(sid)
		t := e.Time
		signo := e.Signo
		inv.SignalTime = &t
		inv.Signo = &signo

	case *CmdMode:
		inv := s.invocation(sid)
		inv.Modes = append(inv.Modes, e.Name)

	case *Alias:
		inv := s.invocation(sid)
		inv.Alias = e.Alias
		inv.AliasArgv = e.Argv

	case *RegionEnter:
		r := s.region(sid, e.Category, e.Label)
		r.Enters = append(r.Enters, e.Time)
		r.EnterCount++

	case *RegionLeave:
		r := s.region(sid, e.Category, e.Label)
		r.Leaves = append(r.Leaves, e.Time)
		r.LeaveCount++

	default:
		// atexit is superseded by exit; data, child_start, child_exit,
		// exec and error carry nothing we aggregate; unknown kinds are
		// surfaced only through diagnostics.
	}

	return nil
}

// resolveWorktree memoizes canonical-path resolution per raw string,
// falling back to the raw string when resolution fails.
func (s *Session) resolveWorktree(raw string) string {
	if resolved, ok := s.worktrees[raw]; ok {
		return resolved
	}
	resolved, err := s.resolve(raw)
	if err != nil {
		resolved = raw
	}
	s.worktrees[raw] = resolved
	return resolved
}

// Invocations returns the number of invocation records accumulated so far.
func (s *Session) Invocations() int {
	return len(s.invocations)
}

// Regions returns the number of region records accumulated so far.
func (s *Session) Regions() int {
	return len(s.regions)
}
