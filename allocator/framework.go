package allocator

import (
	"github.com/zmyer/mesos/resources"
)

// FrameworkID identifies a registered framework.
type FrameworkID string

// AgentID identifies a registered agent.
type AgentID string

// Capability is a framework opt-in for resource classes it can consume.
type Capability int

const (
	// RevocableResources lets the framework receive oversubscribed
	// resources.
	RevocableResources Capability = iota
	// SharedResources lets the framework receive shared resources it does
	// not hold itself.
	SharedResources
	// GPUResources lets the framework receive offers from agents that
	// carry gpus.
	GPUResources
)

// FrameworkInfo describes a framework at registration time.
type FrameworkInfo struct {
	Name         string
	Role         string
	Capabilities []Capability
}

// framework is the allocator's book entry for one framework.
type framework struct {
	id   FrameworkID
	info FrameworkInfo

	active     bool
	suppressed bool

	// allocated mirrors the per-agent allocations held in the sorters;
	// rebuilt entries are removed together with the agent-side mirror so
	// neither map dangles.
	allocated map[AgentID]resources.Bundle
}

func newFramework(id FrameworkID, info FrameworkInfo, active bool) *framework {
	return &framework{
		id:        id,
		info:      info,
		active:    active,
		allocated: make(map[AgentID]resources.Bundle),
	}
}

func (f *framework) role() string {
	return f.info.Role
}

func (f *framework) hasCapability(c Capability) bool {
	for _, cap := range f.info.Capabilities {
		if cap == c {
			return true
		}
	}
	return false
}

// offerable is true when the framework may appear in its role's sorter.
func (f *framework) offerable() bool {
	return f.active && !f.suppressed
}
