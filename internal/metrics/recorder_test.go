package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var _ Recorder = NoopRecorder{}
var _ Recorder = (*PrometheusRecorder)(nil)

// countingRecorder is the shape other packages use to assert on metrics.
type countingRecorder struct {
	NoopRecorder
	mu       sync.Mutex
	outcomes map[BuildOutcomeLabel]int
}

func (c *countingRecorder) IncBuildOutcome(o BuildOutcomeLabel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[o]++
}

func TestRecorderEmbedding(t *testing.T) {
	rec := &countingRecorder{outcomes: map[BuildOutcomeLabel]int{}}
	var r Recorder = rec
	r.IncBuildOutcome(BuildOutcomeSuccess)
	r.ObserveBuildDuration(time.Second)
	require.Equal(t, 1, rec.outcomes[BuildOutcomeSuccess])
}
