package allocator

import (
	"github.com/zmyer/mesos/resources"
)

// OfferCallback delivers the resources offered to one framework in one
// allocation run, keyed by agent. It is invoked from the allocator's
// worker goroutine and must not call back into the allocator
// synchronously.
type OfferCallback func(FrameworkID, map[AgentID]resources.Bundle)

// InverseOffer asks a framework to hand resources on an agent back ahead
// of a maintenance window. Empty Resources means every current allocation
// on the agent is requested back.
type InverseOffer struct {
	Resources      resources.Bundle
	Unavailability Unavailability
}

// InverseOfferCallback delivers inverse offers to one framework, keyed by
// agent. The same re-entrancy rule as OfferCallback applies.
type InverseOfferCallback func(FrameworkID, map[AgentID]InverseOffer)

// Allocator apportions agent resources among frameworks with hierarchical
// dominant resource fairness. All operations are asynchronous: they
// enqueue onto a single serialized event loop and return immediately,
// except UpdateAvailable which reports its validation result. Callbacks
// fire from the event loop.
type Allocator interface {
	// Start launches the worker and the allocation tick.
	Start() error
	// Stop drains the worker and stops the tick.
	Stop() error

	// AddSlave registers an agent with its total capacity and the
	// resources already in use by frameworks, keyed by framework.
	AddSlave(id AgentID, info AgentInfo, unavailability *Unavailability,
		total resources.Bundle, used map[FrameworkID]resources.Bundle)
	// RemoveSlave deregisters an agent and recovers every allocation on
	// it.
	RemoveSlave(id AgentID)
	// UpdateSlave replaces the agent's oversubscribed (revocable) delta.
	UpdateSlave(id AgentID, oversubscribed resources.Bundle)
	// UpdateUnavailability sets or clears the agent's maintenance window
	// and emits inverse offers for overlapping allocations.
	UpdateUnavailability(id AgentID, unavailability *Unavailability)
	// UpdateAvailable atomically applies offer operations to the agent's
	// available pool. It returns ErrInsufficientResources and leaves the
	// state untouched when the pre-state does not contain the operands.
	UpdateAvailable(id AgentID, operations []*resources.Operation) error

	// AddFramework registers a framework together with any resources it
	// already holds.
	AddFramework(id FrameworkID, info FrameworkInfo,
		used map[AgentID]resources.Bundle, active bool)
	// RemoveFramework deregisters a framework and recovers everything it
	// holds.
	RemoveFramework(id FrameworkID)
	// UpdateFramework refreshes the info of a re-subscribed framework.
	UpdateFramework(id FrameworkID, info FrameworkInfo)
	// ActivateFramework makes the framework eligible for offers again.
	ActivateFramework(id FrameworkID)
	// DeactivateFramework hides the framework from allocation while
	// keeping its allocations tracked.
	DeactivateFramework(id FrameworkID)
	// SuppressOffers stops offers to the framework until revived.
	SuppressOffers(id FrameworkID)
	// ReviveOffers clears the framework's filters and suppression.
	ReviveOffers(id FrameworkID)

	// RequestResources records a resource request; it carries no
	// allocation effect.
	RequestResources(id FrameworkID, requests resources.Bundle)

	// UpdateAllocation replaces a framework's allocation on an agent with
	// the result of applying the operations to the stated resources.
	UpdateAllocation(frameworkID FrameworkID, agentID AgentID,
		allocation resources.Bundle, operations []*resources.Operation)
	// RecoverResources returns resources from a framework to the agent's
	// available pool, installing an offer filter when one is given.
	RecoverResources(frameworkID FrameworkID, agentID AgentID,
		res resources.Bundle, filter *OfferFilter)

	// SetQuota sets a role's quota guarantee (scalar kinds only).
	SetQuota(role string, guarantee resources.Quantities)
	// RemoveQuota clears a role's quota.
	RemoveQuota(role string)

	// UpdateWeights sets per-role weights for the next allocation run.
	UpdateWeights(weights map[string]float64)
	// UpdateWhitelist replaces the agent hostname whitelist; nil allows
	// all agents.
	UpdateWhitelist(hostnames []string)
}
