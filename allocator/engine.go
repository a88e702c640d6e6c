package allocator

import (
	"sort"

	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/zmyer/mesos/resources"
)

// runAllocation executes one batch allocation pass and publishes metrics.
func (h *hierarchicalAllocator) runAllocation() {
	runID := uuid.NewRandom().String()
	log.WithField("run_id", runID).Debug("Starting allocation run")

	sw := h.metrics.AllocationRunLatency.Start()
	h.allocate()
	sw.Stop()

	h.completedRuns++
	h.metrics.AllocationRuns.Inc(1)
	h.publishMetrics()

	log.WithFields(log.Fields{
		"run_id":         runID,
		"completed_runs": h.completedRuns,
	}).Debug("Finished allocation run")
}

// allocatable applies the minimum-offer threshold to a per-agent slice.
func (h *hierarchicalAllocator) allocatable(b resources.Bundle) bool {
	return b.Scalar("cpus") >= h.config.MinAllocatableCPU ||
		b.Scalar("mem") >= h.config.MinAllocatableMem
}

// offerableAgents returns the agents eligible for offers this run, in a
// deterministic order: whitelisted (when a whitelist is set) and outside
// any maintenance window.
func (h *hierarchicalAllocator) offerableAgents() []*agent {
	now := h.clock.Now()
	out := make([]*agent, 0, len(h.agents))
	for _, a := range h.agents {
		if h.whitelist != nil && !h.whitelist.Contains(a.info.Hostname) {
			continue
		}
		if a.inMaintenance(now) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// unsatisfiedQuota returns how much of the role's guarantee is still
// uncovered by its non-revocable allocation.
func (h *hierarchicalAllocator) unsatisfiedQuota(role string) resources.Quantities {
	guarantee, ok := h.quotas[role]
	if !ok {
		return resources.Quantities{}
	}
	charged := h.quotaRoleSorter.AllocationScalarQuantities(role)
	return guarantee.Clone().Subtract(charged)
}

// totalLaidAway sums the unsatisfied quota across every quota role: the
// pool the fair-share stage must leave untouched.
func (h *hierarchicalAllocator) totalLaidAway() resources.Quantities {
	laidAway := resources.Quantities{}
	for role := range h.quotas {
		laidAway.Add(h.unsatisfiedQuota(role))
	}
	return laidAway
}

// visibleSlice computes the part of an agent's available pool the
// framework may be offered: reservations to its role plus unreserved,
// gated by the framework's capability opt-ins.
func visibleSlice(fw *framework, a *agent) resources.Bundle {
	avail := a.available()
	slice := avail.Reserved(fw.role()).Add(avail.Unreserved())
	if !fw.hasCapability(RevocableResources) {
		slice = slice.NonRevocable()
	}
	if !fw.hasCapability(SharedResources) {
		slice = slice.NonShared()
	}
	return slice
}

// commit records an allocation in all bookkeeping and the outgoing offer
// map.
func (h *hierarchicalAllocator) commit(
	offers map[FrameworkID]map[AgentID]resources.Bundle,
	fw *framework,
	a *agent,
	slice resources.Bundle) {

	h.trackAllocated(fw, a, slice)

	byAgent, ok := offers[fw.id]
	if !ok {
		byAgent = make(map[AgentID]resources.Bundle)
		offers[fw.id] = byAgent
	}
	byAgent[a.id] = byAgent[a.id].Add(slice)

	log.WithFields(log.Fields{
		"framework": fw.id,
		"agent":     a.id,
		"resources": slice.String(),
	}).Debug("Allocated agent slice")
}

// allocate is the two-stage batch allocation pass. Stage 1 satisfies
// quota guarantees in ascending weighted dominant share order; stage 2
// runs DRF fair sharing over whatever remains, laying away enough
// unreserved resources to keep every unsatisfied guarantee reachable.
func (h *hierarchicalAllocator) allocate() {
	now := h.clock.Now()
	agents := h.offerableAgents()
	offers := make(map[FrameworkID]map[AgentID]resources.Bundle)

	// Both stages walk the agents outermost and re-sort roles and
	// frameworks per agent: every coarse-grained commit shifts dominant
	// shares, and the next agent must see the new ordering.

	// Stage 1 — quota.
	for _, a := range agents {
		for _, role := range h.quotaRoleSorter.Sort() {
			unsatisfied := h.unsatisfiedQuota(role)
			if unsatisfied.IsEmpty() {
				continue
			}
			fwSorter, ok := h.frameworkSorters[role]
			if !ok {
				continue
			}
			for _, key := range fwSorter.Sort() {
				fw, ok := h.frameworks[FrameworkID(key)]
				if !ok || !fw.offerable() {
					continue
				}
				if a.hasGPU() && !fw.hasCapability(GPUResources) {
					continue
				}

				// Guarantees are never satisfied by revocable resources.
				slice := visibleSlice(fw, a).NonRevocable()
				if slice.IsEmpty() || !h.allocatable(slice) {
					continue
				}
				if h.filters.filtered(fw.id, a.id, slice, now, h.completedRuns) {
					continue
				}

				// The slice must actually move the guarantee.
				reduces := false
				chargeable := slice.ScalarQuantities()
				for kind := range unsatisfied {
					if chargeable.Get(kind) > 0 {
						reduces = true
						break
					}
				}
				if !reduces {
					continue
				}

				// Coarse grained: the first framework in share order takes
				// the whole visible slice of this agent.
				h.commit(offers, fw, a, slice)
				break
			}
		}
	}

	// Stage 2 — fair share. Track the unreserved non-revocable pool that
	// must keep covering the remaining guarantees.
	laidAway := h.totalLaidAway()
	freePool := resources.Quantities{}
	for _, a := range agents {
		freePool.Add(a.available().Unreserved().NonRevocable().ScalarQuantities())
	}

	for _, a := range agents {
		for _, role := range h.roleSorter.Sort() {
			fwSorter, ok := h.frameworkSorters[role]
			if !ok {
				continue
			}
			for _, key := range fwSorter.Sort() {
				fw, ok := h.frameworks[FrameworkID(key)]
				if !ok || !fw.offerable() {
					continue
				}
				if a.hasGPU() && !fw.hasCapability(GPUResources) {
					continue
				}

				slice := visibleSlice(fw, a)
				if slice.IsEmpty() || !h.allocatable(slice) {
					continue
				}
				if h.filters.filtered(fw.id, a.id, slice, now, h.completedRuns) {
					continue
				}

				// Resources reserved to the role never count against the
				// laid-away pool; only the unreserved part does.
				need := slice.Unreserved().NonRevocable().ScalarQuantities()
				remaining := freePool.Clone().Subtract(need)

				projected := laidAway
				if unsatisfied := h.unsatisfiedQuota(role); !unsatisfied.IsEmpty() {
					// The allocation shrinks this role's own laid-away
					// share.
					reduction := minQuantities(
						unsatisfied, slice.NonRevocable().ScalarQuantities())
					projected = laidAway.Clone().Subtract(reduction)
				}
				if !remaining.Contains(projected) {
					log.WithFields(log.Fields{
						"framework": fw.id,
						"agent":     a.id,
					}).Debug("Slice held back for unsatisfied quota guarantees")
					continue
				}

				h.commit(offers, fw, a, slice)
				freePool = remaining
				laidAway = h.totalLaidAway()
				break
			}
		}
	}

	if h.offerCallback != nil {
		for _, fw := range h.sortedOfferedFrameworks(offers) {
			h.offerCallback(fw, offers[fw])
		}
	}
}

// sortedOfferedFrameworks fixes the callback order for determinism.
func (h *hierarchicalAllocator) sortedOfferedFrameworks(
	offers map[FrameworkID]map[AgentID]resources.Bundle) []FrameworkID {

	out := make([]FrameworkID, 0, len(offers))
	for id := range offers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// minQuantities returns the per-kind minimum of two quantity maps.
func minQuantities(a, b resources.Quantities) resources.Quantities {
	out := resources.Quantities{}
	for kind, amount := range a {
		if other := b.Get(kind); other < amount {
			if other > 0 {
				out[kind] = other
			}
			continue
		}
		out[kind] = amount
	}
	return out
}

// publishMetrics refreshes the gauge surface after a run.
func (h *hierarchicalAllocator) publishMetrics() {
	total := resources.Quantities{}
	allocated := resources.Quantities{}
	for _, a := range h.agents {
		total.Add(a.capacity().ScalarQuantities())
		allocated.Add(a.allocatedTotal().NonShared().ScalarQuantities())
	}
	h.metrics.UpdateResources(total, allocated)

	for role := range h.roles {
		h.metrics.UpdateDominantShare(role, h.roleSorter.DominantShare(role))
	}

	for role, guarantee := range h.quotas {
		h.metrics.UpdateQuota(
			role, guarantee, h.quotaRoleSorter.AllocationScalarQuantities(role))
	}

	filterCounts := make(map[string]int)
	for id, fw := range h.frameworks {
		filterCounts[fw.role()] += h.filters.count(id)
	}
	for role, count := range filterCounts {
		h.metrics.UpdateActiveFilters(role, count)
	}
}
