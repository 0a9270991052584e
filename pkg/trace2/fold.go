package trace2

import (
	"sort"
	"strings"

	"github.com/trace2tools/trace2fold/pkg/flamegraph/collapsed"
)

// joinMarker replaces '/' in final paths while they serve as fold keys,
// so path structure survives label unescaping.
const joinMarker = ";"

// Fold aggregates every finalized record by its flattened stack path.
// Records missing either a final path or a duration are skipped. Distinct
// records folding to the same path merge by addition; that is the point.
//
// The sum is commutative, so map iteration order does not matter. The
// returned samples are sorted lexicographically by fold key for
// deterministic output.
func (s *Session) Fold() *collapsed.Profile {
	totals := make(map[string]int64)
	add := func(path string, duration *int64) {
		if path == "" || duration == nil {
			return
		}
		totals[strings.ReplaceAll(path, "/", joinMarker)] += *duration
	}

	for _, inv := range s.invocations {
		add(inv.FinalPath, inv.Duration)
	}
	for _, r := range s.regions {
		add(r.FinalPath, r.Duration)
	}

	keys := make([]string, 0, len(totals))
	for key := range totals {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	prof := &collapsed.Profile{
		Samples: make([]collapsed.Sample, 0, len(keys)),
	}
	for _, key := range keys {
		segments := strings.Split(key, joinMarker)
		for i, seg := range segments {
			segments[i] = restoreSlashes(seg)
		}
		prof.Samples = append(prof.Samples, collapsed.Sample{
			Stack: segments,
			Value: totals[key],
		})
	}
	return prof
}
