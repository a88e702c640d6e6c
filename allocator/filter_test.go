package allocator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zmyer/mesos/resources"
)

func TestFilterSuppressesContainedBundles(t *testing.T) {
	r := newFilterRegistry()
	now := time.Unix(1500000000, 0)
	deadline := now.Add(time.Minute)

	r.add("f1", "a1", resources.MustParse("cpus:2;mem:1024"), deadline, 0)

	// The declined bundle covers the candidate: suppressed.
	assert.True(t, r.filtered("f1", "a1",
		resources.MustParse("cpus:1;mem:512"), now, 0))

	// A larger candidate is not covered: offerable.
	assert.False(t, r.filtered("f1", "a1",
		resources.MustParse("cpus:3"), now, 0))

	// Other pairs are unaffected.
	assert.False(t, r.filtered("f1", "a2",
		resources.MustParse("cpus:1"), now, 0))
	assert.False(t, r.filtered("f2", "a1",
		resources.MustParse("cpus:1"), now, 0))
}

func TestFilterExpiresOnlyAfterDeadlineAndARun(t *testing.T) {
	r := newFilterRegistry()
	now := time.Unix(1500000000, 0)
	candidate := resources.MustParse("cpus:1")

	r.add("f1", "a1", candidate, now.Add(time.Second), 3)

	// Past the deadline but no run has completed since install.
	later := now.Add(time.Minute)
	assert.True(t, r.filtered("f1", "a1", candidate, later, 3))

	// Deadline not reached even though runs completed.
	assert.True(t, r.filtered("f1", "a1", candidate, now, 4))

	// Both conditions met: dropped lazily on consultation.
	assert.False(t, r.filtered("f1", "a1", candidate, later, 4))
	assert.Zero(t, r.count("f1"))
}

func TestFilterRemoveFramework(t *testing.T) {
	r := newFilterRegistry()
	now := time.Unix(1500000000, 0)
	deadline := now.Add(time.Hour)

	r.add("f1", "a1", resources.MustParse("cpus:1"), deadline, 0)
	r.add("f1", "a2", resources.MustParse("cpus:1"), deadline, 0)
	assert.Equal(t, 2, r.count("f1"))

	r.removeFramework("f1")
	assert.Zero(t, r.count("f1"))
	assert.False(t, r.filtered("f1", "a1", resources.MustParse("cpus:1"), now, 0))
}

func TestFilterRemoveAgent(t *testing.T) {
	r := newFilterRegistry()
	now := time.Unix(1500000000, 0)
	deadline := now.Add(time.Hour)

	r.add("f1", "a1", resources.MustParse("cpus:1"), deadline, 0)
	r.add("f2", "a1", resources.MustParse("cpus:1"), deadline, 0)

	r.removeAgent("a1")
	assert.Zero(t, r.count("f1"))
	assert.Zero(t, r.count("f2"))
}

func TestFilterListStaysBounded(t *testing.T) {
	r := newFilterRegistry()
	now := time.Unix(1500000000, 0)
	candidate := resources.MustParse("cpus:1")

	// Many short filters pile up, but one consultation after expiry
	// drains them all.
	for i := 0; i < 100; i++ {
		r.add("f1", "a1", candidate, now.Add(time.Second), uint64(i))
	}
	assert.Equal(t, 100, r.count("f1"))

	assert.False(t, r.filtered("f1", "a1", candidate, now.Add(time.Hour), 200))
	assert.Zero(t, r.count("f1"))
}
