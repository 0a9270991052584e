package trace2

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpRendersCompositeKeys(t *testing.T) {
	s := NewSession()
	apply(t, s,
		&Start{Common{Sid: "s1", Time: 10.0}, []string{"git", "status"}},
		&RegionEnter{Common{Sid: "s1", Time: 10.25}, 1, "index", "refresh"},
	)

	var buf bytes.Buffer
	require.NoError(t, s.Dump(&buf))

	out := buf.String()
	assert.Contains(t, out, "sid: s1")
	assert.Contains(t, out, "s1 REGION:index:refresh")
	assert.Contains(t, out, "enter_count: 1")
}
