package convert

import (
	"slices"

	"github.com/google/pprof/profile"

	"github.com/trace2tools/trace2fold/pkg/flamegraph/collapsed"
)

// CollapsedToPProf builds a pprof profile with one sample per folded stack.
// The accumulated quantity is a duration, not a sample count, so the sample
// type says so.
func CollapsedToPProf(prof *collapsed.Profile) (*profile.Profile, error) {
	res := &profile.Profile{
		SampleType: []*profile.ValueType{{
			Type: "duration",
			Unit: "none",
		}},
		Sample: make([]*profile.Sample, len(prof.Samples)),
	}

	locations := make(map[string]*profile.Location)
	for i := range prof.Samples {
		res.Sample[i] = &profile.Sample{
			Value: []int64{prof.Samples[i].Value},
		}
		for _, frame := range prof.Samples[i].Stack {
			loc, found := locations[frame]
			if !found {
				funcPtr := &profile.Function{
					ID:   1 + uint64(len(res.Function)),
					Name: frame,
				}
				loc = &profile.Location{
					ID: 1 + uint64(len(res.Location)),
					Line: []profile.Line{{
						Function: funcPtr,
					}},
				}
				res.Function = append(res.Function, funcPtr)
				res.Location = append(res.Location, loc)
				locations[frame] = loc
			}
			res.Sample[i].Location = append(res.Sample[i].Location, loc)
		}
		slices.Reverse(res.Sample[i].Location)
	}

	return res, nil
}
