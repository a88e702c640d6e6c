package allocator

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
	"go.uber.org/atomic"

	"github.com/zmyer/mesos/common/lifecycle"
	"github.com/zmyer/mesos/common/stringset"
	"github.com/zmyer/mesos/resources"
	"github.com/zmyer/mesos/sorter"
)

// event is one serialized operation on the allocator state.
type event struct {
	name string
	fn   func()
}

// roleState tracks the frameworks registered under one role.
type roleState struct {
	frameworks map[FrameworkID]struct{}
}

// hierarchicalAllocator implements Allocator with two-level DRF: roles
// sorted by weighted dominant share at the top, frameworks sorted inside
// each role. All state below is owned by the worker goroutine; public
// methods only enqueue.
type hierarchicalAllocator struct {
	config  Config
	metrics *Metrics
	clock   Clock

	offerCallback        OfferCallback
	inverseOfferCallback InverseOfferCallback

	frameworks map[FrameworkID]*framework
	agents     map[AgentID]*agent
	roles      map[string]*roleState
	weights    map[string]float64
	quotas     map[string]resources.Quantities
	whitelist  stringset.StringSet

	roleSorter       sorter.Sorter
	quotaRoleSorter  sorter.Sorter
	frameworkSorters map[string]sorter.Sorter

	filters *filterRegistry

	// completedRuns counts finished allocation runs; offer filter expiry
	// keys off it.
	completedRuns uint64

	// allocationPending coalesces allocation-triggering events into a
	// single run per queue drain.
	allocationPending bool

	events    chan *event
	lifecycle lifecycle.LifeCycle
	running   atomic.Bool
}

// Options binds the allocator to its collaborators.
type Options struct {
	Config               Config
	Scope                tally.Scope
	Clock                Clock
	OfferCallback        OfferCallback
	InverseOfferCallback InverseOfferCallback
	RoleWeights          map[string]float64
}

// New creates a hierarchical DRF allocator. Start must be called before
// operations are processed.
func New(opts Options) Allocator {
	return newHierarchical(opts)
}

func newHierarchical(opts Options) *hierarchicalAllocator {
	cfg := opts.Config
	cfg.normalize()

	clk := opts.Clock
	if clk == nil {
		clk = SystemClock()
	}
	scope := opts.Scope
	if scope == nil {
		scope = tally.NoopScope
	}

	h := &hierarchicalAllocator{
		config:  cfg,
		metrics: NewMetrics(scope),
		clock:   clk,

		offerCallback:        opts.OfferCallback,
		inverseOfferCallback: opts.InverseOfferCallback,

		frameworks: make(map[FrameworkID]*framework),
		agents:     make(map[AgentID]*agent),
		roles:      make(map[string]*roleState),
		weights:    make(map[string]float64),
		quotas:     make(map[string]resources.Quantities),

		roleSorter:       sorter.New(cfg.FairnessExcluded),
		quotaRoleSorter:  sorter.New(cfg.FairnessExcluded),
		frameworkSorters: make(map[string]sorter.Sorter),

		filters: newFilterRegistry(),

		events:    make(chan *event, cfg.EventQueueSize),
		lifecycle: lifecycle.NewLifeCycle(),
	}

	for role, weight := range opts.RoleWeights {
		h.weights[role] = weight
	}
	return h
}

// Start launches the worker goroutine and the periodic allocation tick.
func (h *hierarchicalAllocator) Start() error {
	if !h.lifecycle.Start() {
		log.Warn("Allocator is already running, no action will be performed")
		return nil
	}
	h.running.Store(true)

	go h.run()
	return nil
}

// Stop drains the worker and stops the tick.
func (h *hierarchicalAllocator) Stop() error {
	if !h.lifecycle.Stop() {
		log.Warn("Allocator is already stopped, no action will be performed")
		return nil
	}
	h.running.Store(false)
	h.lifecycle.Wait()
	return nil
}

// run is the single worker: it serializes every mutation and fires the
// batched allocation when the queue drains.
func (h *hierarchicalAllocator) run() {
	log.WithField("allocation_interval", h.config.AllocationInterval).
		Info("Starting allocator event loop")

	ticker := time.NewTicker(h.config.AllocationInterval)
	defer ticker.Stop()

	stopCh := h.lifecycle.StopCh()
	for {
		select {
		case <-stopCh:
			// Drain what was accepted before Stop so no submitter is left
			// waiting on a result.
			for {
				select {
				case ev := <-h.events:
					h.process(ev)
					continue
				default:
				}
				break
			}
			log.Info("Exiting allocator event loop")
			h.lifecycle.StopComplete()
			return

		case <-ticker.C:
			h.process(&event{name: "tick", fn: func() {
				h.allocationPending = true
			}})

		case ev := <-h.events:
			h.process(ev)
		}

		h.metrics.EventQueueLength.Update(float64(len(h.events)))
		if len(h.events) == 0 && h.allocationPending {
			h.allocationPending = false
			h.process(&event{name: "allocation", fn: h.runAllocation})
		}
	}
}

// process executes one event, catching handler panics at the event
// boundary so the loop continues with whatever state was committed.
func (h *hierarchicalAllocator) process(ev *event) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"event": ev.name,
				"panic": r,
			}).Error("Allocator event handler panicked")
		}
	}()
	ev.fn()
}

// enqueue submits an event, dropping it when the allocator is stopped or
// the queue is saturated.
func (h *hierarchicalAllocator) enqueue(name string, fn func()) error {
	if !h.running.Load() {
		log.WithField("event", name).Warn("Allocator is not running, dropping")
		return ErrNotRunning
	}
	select {
	case h.events <- &event{name: name, fn: fn}:
		return nil
	default:
		h.metrics.EventQueueDropped.Inc(1)
		log.WithField("event", name).Error("Allocator event queue is full, dropping")
		return ErrQueueFull
	}
}

// AddSlave registers an agent.
func (h *hierarchicalAllocator) AddSlave(
	id AgentID,
	info AgentInfo,
	unavailability *Unavailability,
	total resources.Bundle,
	used map[FrameworkID]resources.Bundle) {

	h.enqueue("addSlave", func() {
		h.addSlave(id, info, unavailability, total, used)
	})
}

// RemoveSlave deregisters an agent.
func (h *hierarchicalAllocator) RemoveSlave(id AgentID) {
	h.enqueue("removeSlave", func() { h.removeSlave(id) })
}

// UpdateSlave replaces the agent's oversubscribed delta.
func (h *hierarchicalAllocator) UpdateSlave(id AgentID, oversubscribed resources.Bundle) {
	h.enqueue("updateSlave", func() { h.updateSlave(id, oversubscribed) })
}

// UpdateUnavailability sets the agent's maintenance window.
func (h *hierarchicalAllocator) UpdateUnavailability(id AgentID, unavailability *Unavailability) {
	h.enqueue("updateUnavailability", func() {
		h.updateUnavailability(id, unavailability)
	})
}

// UpdateAvailable applies offer operations to the agent's available pool
// and reports the validation result.
func (h *hierarchicalAllocator) UpdateAvailable(
	id AgentID, operations []*resources.Operation) error {

	result := make(chan error, 1)
	if err := h.enqueue("updateAvailable", func() {
		result <- h.updateAvailable(id, operations)
	}); err != nil {
		return err
	}
	return <-result
}

// AddFramework registers a framework.
func (h *hierarchicalAllocator) AddFramework(
	id FrameworkID,
	info FrameworkInfo,
	used map[AgentID]resources.Bundle,
	active bool) {

	h.enqueue("addFramework", func() { h.addFramework(id, info, used, active) })
}

// RemoveFramework deregisters a framework.
func (h *hierarchicalAllocator) RemoveFramework(id FrameworkID) {
	h.enqueue("removeFramework", func() { h.removeFramework(id) })
}

// UpdateFramework refreshes a framework's info.
func (h *hierarchicalAllocator) UpdateFramework(id FrameworkID, info FrameworkInfo) {
	h.enqueue("updateFramework", func() { h.updateFramework(id, info) })
}

// ActivateFramework flips the framework active.
func (h *hierarchicalAllocator) ActivateFramework(id FrameworkID) {
	h.enqueue("activateFramework", func() { h.activateFramework(id) })
}

// DeactivateFramework flips the framework inactive.
func (h *hierarchicalAllocator) DeactivateFramework(id FrameworkID) {
	h.enqueue("deactivateFramework", func() { h.deactivateFramework(id) })
}

// SuppressOffers stops offers to the framework.
func (h *hierarchicalAllocator) SuppressOffers(id FrameworkID) {
	h.enqueue("suppressOffers", func() { h.suppressOffers(id) })
}

// ReviveOffers clears the framework's filters and suppression.
func (h *hierarchicalAllocator) ReviveOffers(id FrameworkID) {
	h.enqueue("reviveOffers", func() { h.reviveOffers(id) })
}

// RequestResources records a request; the hierarchical allocator does not
// act on it.
func (h *hierarchicalAllocator) RequestResources(id FrameworkID, requests resources.Bundle) {
	h.enqueue("requestResources", func() {
		log.WithFields(log.Fields{
			"framework": id,
			"requests":  requests.String(),
		}).Info("Received resource request")
	})
}

// UpdateAllocation transforms a framework's allocation on an agent.
func (h *hierarchicalAllocator) UpdateAllocation(
	frameworkID FrameworkID,
	agentID AgentID,
	allocation resources.Bundle,
	operations []*resources.Operation) {

	h.enqueue("updateAllocation", func() {
		h.updateAllocation(frameworkID, agentID, allocation, operations)
	})
}

// RecoverResources returns resources to the agent's available pool.
func (h *hierarchicalAllocator) RecoverResources(
	frameworkID FrameworkID,
	agentID AgentID,
	res resources.Bundle,
	filter *OfferFilter) {

	h.enqueue("recoverResources", func() {
		h.recoverResources(frameworkID, agentID, res, filter)
	})
}

// SetQuota sets a role's guarantee.
func (h *hierarchicalAllocator) SetQuota(role string, guarantee resources.Quantities) {
	h.enqueue("setQuota", func() { h.setQuota(role, guarantee) })
}

// RemoveQuota clears a role's guarantee.
func (h *hierarchicalAllocator) RemoveQuota(role string) {
	h.enqueue("removeQuota", func() { h.removeQuota(role) })
}

// UpdateWeights sets per-role weights.
func (h *hierarchicalAllocator) UpdateWeights(weights map[string]float64) {
	h.enqueue("updateWeights", func() { h.updateWeights(weights) })
}

// UpdateWhitelist replaces the agent hostname whitelist.
func (h *hierarchicalAllocator) UpdateWhitelist(hostnames []string) {
	h.enqueue("updateWhitelist", func() { h.updateWhitelist(hostnames) })
}
