package trace2

import (
	"fmt"
	"sort"
	"strings"
)

// durationUnits converts a fractional-second delta into the output unit:
// 100000 units per second, truncated toward zero. Downstream flame-graph
// consumers treat the value as an opaque accumulated quantity, so the
// factor must not change.
func durationUnits(seconds float64) int64 {
	return int64(seconds * 100000)
}

// Reconcile finalizes the record collection after the decode pass: first
// the synthesized region records, then the real invocation records. The
// collection is read-only afterwards.
func (s *Session) Reconcile() error {
	if err := s.reconcileRegions(); err != nil {
		return err
	}
	s.reconcileInvocations()
	return nil
}

// reconcileRegions pairs enter and leave timestamps and computes each
// region's duration and final path.
//
// A region with fewer leaves than enters belongs to a process that died
// mid-region; it is dropped. More leaves than enters cannot happen without
// upstream corruption and aborts the run.
func (s *Session) reconcileRegions() error {
	for key, r := range s.regions {
		if r.LeaveCount > r.EnterCount {
			return fmt.Errorf(
				"trace2: region %s%s of sid %q has %d leave events but only %d enter events",
				regionKeyMarker, restoreSlashes(r.Label), r.Sid, r.LeaveCount, r.EnterCount)
		}
		if r.LeaveCount == 0 || r.LeaveCount < r.EnterCount {
			delete(s.regions, key)
			continue
		}

		sort.Float64s(r.Enters)
		sort.Float64s(r.Leaves)
		var total float64
		for i := range r.Enters {
			total += r.Leaves[i] - r.Enters[i]
		}
		d := durationUnits(total)
		r.Duration = &d

		// Regions inherit the path of their owning invocation. Without a
		// cmd_name on the parent there is nothing to hang the frame on,
		// and the fold step drops the record.
		inv := s.invocations[r.Sid]
		if inv != nil && len(inv.Hierarchy) > 0 {
			r.FinalPath = strings.Join(inv.Hierarchy, "/") + "/" + r.Label
		}
	}
	return nil
}

// reconcileInvocations patches records damaged by abnormal termination or
// ordering gaps and derives their duration and final path.
func (s *Session) reconcileInvocations() {
	for _, inv := range s.invocations {
		// A killed process emits signal instead of exit. Use the signal
		// event as a stand-in so the invocation still gets a duration.
		if inv.ExitCode == nil && inv.Signo != nil {
			inv.ExitTime = inv.SignalTime
			inv.ExitCode = inv.Signo
		}

		if inv.StartTime != nil && inv.ExitTime != nil && inv.Duration == nil {
			d := durationUnits(*inv.ExitTime - *inv.StartTime)
			inv.Duration = &d
		}

		switch {
		case len(inv.Hierarchy) > 0:
			inv.FinalPath = strings.Join(inv.Hierarchy, "/")
		case inv.ExitCode != nil:
			// Errored out before ever announcing a command name. Route to
			// the reserved bucket instead of losing the time silently.
			inv.FinalPath = unattributedPath
		}
	}
}
