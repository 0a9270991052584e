package trace2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(v float64) *float64 { return &v }

func iptr(v int) *int { return &v }

func i64ptr(v int64) *int64 { return &v }

func apply(t *testing.T, s *Session, events ...Event) {
	t.Helper()
	for _, ev := range events {
		require.NoError(t, s.Apply(ev))
	}
}

func TestApplyInvocationEffects(t *testing.T) {
	common := Common{Sid: "sid-1", Time: 10.5}

	for _, test := range []struct {
		name     string
		events   []Event
		expected *Invocation
	}{{
		name:     "version",
		events:   []Event{&Version{common, "3", "2.43.0"}},
		expected: &Invocation{Sid: "sid-1", Exe: "2.43.0"},
	}, {
		name:     "start",
		events:   []Event{&Start{common, []string{"git", "status"}}},
		expected: &Invocation{Sid: "sid-1", StartTime: fptr(10.5), Argv: []string{"git", "status"}},
	}, {
		name:     "cmd_name",
		events:   []Event{&CmdName{common, "checkout", []string{"status", "checkout"}}},
		expected: &Invocation{Sid: "sid-1", Name: "checkout", Hierarchy: []string{"status", "checkout"}},
	}, {
		name:     "exit",
		events:   []Event{&Exit{common, 1}},
		expected: &Invocation{Sid: "sid-1", ExitTime: fptr(10.5), ExitCode: iptr(1)},
	}, {
		name:     "signal",
		events:   []Event{&Signal{common, 9}},
		expected: &Invocation{Sid: "sid-1", SignalTime: fptr(10.5), Signo: iptr(9)},
	}, {
		name:     "cmd_mode",
		events:   []Event{&CmdMode{common, "branch"}, &CmdMode{common, "worktree"}},
		expected: &Invocation{Sid: "sid-1", Modes: []string{"branch", "worktree"}},
	}, {
		name:     "alias",
		events:   []Event{&Alias{common, "st", []string{"status"}}},
		expected: &Invocation{Sid: "sid-1", Alias: "st", AliasArgv: []string{"status"}},
	}} {
		t.Run(test.name, func(t *testing.T) {
			s := NewSession()
			apply(t, s, test.events...)
			require.Len(t, s.invocations, 1)
			assert.Equal(t, test.expected, s.invocations["sid-1"])
		})
	}
}

func TestApplyIgnoredEvents(t *testing.T) {
	common := Common{Sid: "sid-1", Time: 10.5}
	s := NewSession()
	apply(t, s,
		&Atexit{common, 0},
		&Data{common, "index", "read"},
		&ChildStart{common, 2, []string{"git", "gc"}},
		&ChildExit{common, 2, 0},
		&Exec{common, []string{"sh"}},
		&Error{common, "oops"},
		&Unknown{common, "data_json"},
	)
	assert.Equal(t, 0, s.Invocations())
	assert.Equal(t, 0, s.Regions())
}

func TestApplyDefRepoResolvesAndMemoizes(t *testing.T) {
	calls := 0
	s := NewSession(WithResolver(func(path string) (string, error) {
		calls++
		return "/resolved" + path, nil
	}))

	apply(t, s,
		&DefRepo{Common{Sid: "sid-1", Time: 1}, "/wt"},
		&DefRepo{Common{Sid: "sid-2", Time: 2}, "/wt"},
	)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "/resolved/wt", s.invocations["sid-1"].Worktree)
	assert.Equal(t, "/resolved/wt", s.invocations["sid-2"].Worktree)
}

func TestApplyDefRepoFallsBackOnResolverError(t *testing.T) {
	s := NewSession(WithResolver(func(path string) (string, error) {
		return "", assert.AnError
	}))

	apply(t, s, &DefRepo{Common{Sid: "sid-1", Time: 1}, "/missing"})
	assert.Equal(t, "/missing", s.invocations["sid-1"].Worktree)
}

func TestApplyRegionEvents(t *testing.T) {
	s := NewSession()
	apply(t, s,
		&RegionEnter{Common{Sid: "sid-1", Time: 10}, 1, "index", "do_read_index"},
		&RegionLeave{Common{Sid: "sid-1", Time: 11}, 1, "index", "do_read_index"},
		&RegionEnter{Common{Sid: "sid-1", Time: 12}, 1, "index", "do_read_index"},
	)

	require.Len(t, s.regions, 1)
	r := s.regions[RegionKey{Sid: "sid-1", Label: "index:do_read_index"}]
	require.NotNil(t, r)
	assert.Equal(t, []float64{10, 12}, r.Enters)
	assert.Equal(t, []float64{11}, r.Leaves)
	assert.Equal(t, 2, r.EnterCount)
	assert.Equal(t, 1, r.LeaveCount)
}

func TestApplyRegionLabelEscaping(t *testing.T) {
	s := NewSession()
	apply(t, s, &RegionEnter{Common{Sid: "sid-1", Time: 10}, 1, "cat", "a/b"})

	require.Len(t, s.regions, 1)
	_, ok := s.regions[RegionKey{Sid: "sid-1", Label: "cat:a" + slashPlaceholder + "b"}]
	assert.True(t, ok)
}

func TestSecondVersionEventIsFatal(t *testing.T) {
	common := Common{Sid: "sid-1", Time: 10.5}
	s := NewSession()
	apply(t, s, &Version{common, "3", "2.43.0"}, &Start{common, []string{"git"}})

	err := s.Apply(&Version{common, "3", "2.43.0"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "sid-1")
}

func TestVersionForFreshSidIsFine(t *testing.T) {
	s := NewSession()
	apply(t, s,
		&Version{Common{Sid: "sid-1", Time: 1}, "3", "2.43.0"},
		&Version{Common{Sid: "sid-2", Time: 2}, "3", "2.43.0"},
	)
	assert.Equal(t, 2, s.Invocations())
}
