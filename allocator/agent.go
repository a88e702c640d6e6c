package allocator

import (
	"time"

	"github.com/zmyer/mesos/resources"
)

// AgentInfo describes an agent at registration time.
type AgentInfo struct {
	Hostname string
}

// Unavailability is a maintenance window on an agent. A zero Duration
// means the window is open ended.
type Unavailability struct {
	Start    time.Time
	Duration time.Duration
}

// covers reports whether t falls inside the window.
func (u *Unavailability) covers(t time.Time) bool {
	if t.Before(u.Start) {
		return false
	}
	if u.Duration == 0 {
		return true
	}
	return t.Before(u.Start.Add(u.Duration))
}

// agent is the allocator's book entry for one agent.
type agent struct {
	id   AgentID
	info AgentInfo

	// total is the non-revocable capacity registered with addSlave, plus
	// any reservations and volumes applied to it since.
	total resources.Bundle

	// oversubscribed is the revocable delta last pushed by updateSlave.
	oversubscribed resources.Bundle

	// allocated holds the per-framework allocations on this agent; the
	// framework-side mirror is kept in sync by the same handlers.
	allocated map[FrameworkID]resources.Bundle

	unavailability *Unavailability
}

func newAgent(id AgentID, info AgentInfo, total resources.Bundle) *agent {
	return &agent{
		id:        id,
		info:      info,
		total:     total,
		allocated: make(map[FrameworkID]resources.Bundle),
	}
}

// capacity is the full announced capacity including the revocable delta.
func (a *agent) capacity() resources.Bundle {
	return a.total.Add(a.oversubscribed)
}

// available is capacity minus allocations. Shared resources stay
// available while allocated: only the non-shared part of each allocation
// is subtracted, so one logical shared unit can appear in several
// allocations at once.
func (a *agent) available() resources.Bundle {
	avail := a.capacity()
	for _, alloc := range a.allocated {
		avail = avail.Subtract(alloc.NonShared())
	}
	return avail
}

// allocatedTotal sums all framework allocations on the agent.
func (a *agent) allocatedTotal() resources.Bundle {
	var sum resources.Bundle
	for _, alloc := range a.allocated {
		sum = sum.Add(alloc)
	}
	return sum
}

// hasGPU reports whether the agent carries gpu capacity; such agents are
// only offered to frameworks with the GPUResources capability.
func (a *agent) hasGPU() bool {
	return a.capacity().Scalar("gpus") > 0
}

// inMaintenance reports whether the agent sits inside its maintenance
// window at time t.
func (a *agent) inMaintenance(t time.Time) bool {
	return a.unavailability != nil && a.unavailability.covers(t)
}
