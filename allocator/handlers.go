package allocator

import (
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/zmyer/mesos/common/stringset"
	"github.com/zmyer/mesos/resources"
	"github.com/zmyer/mesos/sorter"
)

// The methods in this file run on the worker goroutine only.

func (h *hierarchicalAllocator) roleWeight(role string) float64 {
	if w, ok := h.weights[role]; ok {
		return w
	}
	return 1.0
}

// ensureRole creates the role bucket and its framework sorter, seeding
// the sorter with the current cluster totals.
func (h *hierarchicalAllocator) ensureRole(role string) *roleState {
	if rs, ok := h.roles[role]; ok {
		return rs
	}
	rs := &roleState{frameworks: make(map[FrameworkID]struct{})}
	h.roles[role] = rs

	h.roleSorter.Add(role, h.roleWeight(role))

	fs := sorter.New(h.config.FairnessExcluded)
	for id, a := range h.agents {
		fs.UpdateTotal(string(id), a.capacity())
	}
	h.frameworkSorters[role] = fs
	return rs
}

// maybeRemoveRole drops an empty role bucket unless quota or a custom
// weight pins it.
func (h *hierarchicalAllocator) maybeRemoveRole(role string) {
	rs, ok := h.roles[role]
	if !ok || len(rs.frameworks) > 0 {
		return
	}
	if _, hasQuota := h.quotas[role]; hasQuota {
		return
	}
	if w, ok := h.weights[role]; ok && w != 1.0 {
		return
	}
	delete(h.roles, role)
	delete(h.frameworkSorters, role)
	h.roleSorter.Remove(role)
	h.metrics.RemoveDominantShare(role)
}

// updateRoleActivation keeps invariant: a role is active in the top-level
// sorters iff it has at least one active, non-suppressed framework.
func (h *hierarchicalAllocator) updateRoleActivation(role string) {
	rs, ok := h.roles[role]
	if !ok {
		return
	}
	active := false
	for id := range rs.frameworks {
		if fw, ok := h.frameworks[id]; ok && fw.offerable() {
			active = true
			break
		}
	}
	if active {
		h.roleSorter.Activate(role)
		h.quotaRoleSorter.Activate(role)
	} else {
		h.roleSorter.Deactivate(role)
		h.quotaRoleSorter.Deactivate(role)
	}
}

// updateAgentTotals pushes an agent's capacity into every sorter. An
// empty bundle removes the agent from the pools.
func (h *hierarchicalAllocator) updateAgentTotals(id AgentID, capacity resources.Bundle) {
	h.roleSorter.UpdateTotal(string(id), capacity)
	// Revocable resources never count toward quota.
	h.quotaRoleSorter.UpdateTotal(string(id), capacity.NonRevocable())
	for _, fs := range h.frameworkSorters {
		fs.UpdateTotal(string(id), capacity)
	}
}

// trackAllocated credits an allocation in every sorter and both mirror
// maps.
func (h *hierarchicalAllocator) trackAllocated(
	fw *framework, a *agent, res resources.Bundle) {

	role := fw.role()
	a.allocated[fw.id] = a.allocated[fw.id].Add(res)
	fw.allocated[a.id] = fw.allocated[a.id].Add(res)

	h.frameworkSorters[role].Allocated(string(fw.id), string(a.id), res)
	h.roleSorter.Allocated(role, string(a.id), res)
	if _, ok := h.quotas[role]; ok {
		h.quotaRoleSorter.Allocated(role, string(a.id), res.NonRevocable())
	}
}

// untrackAllocated removes an allocation from every sorter and both
// mirror maps. The agent may already be deregistered.
func (h *hierarchicalAllocator) untrackAllocated(
	fw *framework, agentID AgentID, res resources.Bundle) {

	role := fw.role()

	if a, ok := h.agents[agentID]; ok {
		remaining := a.allocated[fw.id].Subtract(res)
		if remaining.IsEmpty() {
			delete(a.allocated, fw.id)
		} else {
			a.allocated[fw.id] = remaining
		}
	}

	left := fw.allocated[agentID].Subtract(res)
	if left.IsEmpty() {
		delete(fw.allocated, agentID)
	} else {
		fw.allocated[agentID] = left
	}

	if fs, ok := h.frameworkSorters[role]; ok {
		fs.Unallocated(string(fw.id), string(agentID), res)
	}
	h.roleSorter.Unallocated(role, string(agentID), res)
	if _, ok := h.quotas[role]; ok {
		h.quotaRoleSorter.Unallocated(role, string(agentID), res.NonRevocable())
	}
}

func (h *hierarchicalAllocator) addSlave(
	id AgentID,
	info AgentInfo,
	unavailability *Unavailability,
	total resources.Bundle,
	used map[FrameworkID]resources.Bundle) {

	if _, ok := h.agents[id]; ok {
		log.WithField("agent", id).Warn("Agent is already registered, dropping addSlave")
		return
	}

	a := newAgent(id, info, total)
	a.unavailability = unavailability
	h.agents[id] = a
	h.updateAgentTotals(id, a.capacity())

	for frameworkID, res := range used {
		if res.IsEmpty() {
			continue
		}
		fw, ok := h.frameworks[frameworkID]
		if !ok {
			// The framework may re-register later; keep the agent-side
			// bookkeeping so available() stays truthful.
			log.WithFields(log.Fields{
				"agent":     id,
				"framework": frameworkID,
			}).Warn("Agent reports usage by unknown framework")
			a.allocated[frameworkID] = a.allocated[frameworkID].Add(res)
			continue
		}
		h.trackAllocated(fw, a, res)
	}

	log.WithFields(log.Fields{
		"agent":    id,
		"hostname": info.Hostname,
		"total":    total.String(),
	}).Info("Added agent")
	h.allocationPending = true
}

func (h *hierarchicalAllocator) removeSlave(id AgentID) {
	a, ok := h.agents[id]
	if !ok {
		log.WithField("agent", id).Warn("Unknown agent, dropping removeSlave")
		return
	}

	for frameworkID, res := range a.allocated {
		fw, ok := h.frameworks[frameworkID]
		if !ok {
			continue
		}
		h.untrackAllocated(fw, id, res)
	}

	delete(h.agents, id)
	h.updateAgentTotals(id, nil)
	h.filters.removeAgent(id)

	log.WithField("agent", id).Info("Removed agent")
	h.allocationPending = true
}

func (h *hierarchicalAllocator) updateSlave(id AgentID, oversubscribed resources.Bundle) {
	a, ok := h.agents[id]
	if !ok {
		log.WithField("agent", id).Warn("Unknown agent, dropping updateSlave")
		return
	}

	// Only the revocable part of the estimate replaces the delta.
	a.oversubscribed = oversubscribed.Revocable()
	h.updateAgentTotals(id, a.capacity())

	log.WithFields(log.Fields{
		"agent":          id,
		"oversubscribed": a.oversubscribed.String(),
	}).Info("Updated agent oversubscription")
	h.allocationPending = true
}

func (h *hierarchicalAllocator) updateUnavailability(id AgentID, unavailability *Unavailability) {
	a, ok := h.agents[id]
	if !ok {
		log.WithField("agent", id).Warn("Unknown agent, dropping updateUnavailability")
		return
	}
	a.unavailability = unavailability

	if unavailability != nil && h.inverseOfferCallback != nil {
		// Ask every framework holding resources on the agent to give
		// them back ahead of the window. Empty resources means all.
		for frameworkID := range a.allocated {
			h.inverseOfferCallback(frameworkID, map[AgentID]InverseOffer{
				id: {Unavailability: *unavailability},
			})
		}
	}
	h.allocationPending = true
}

func (h *hierarchicalAllocator) updateAvailable(
	id AgentID, operations []*resources.Operation) error {

	a, ok := h.agents[id]
	if !ok {
		return errUnknownAgent(id)
	}

	// Validate every operation against the available pool first: either
	// all of them apply or none do. All violations are reported together.
	var verr error
	available := a.available()
	for _, op := range operations {
		next, err := available.Apply(op)
		if err != nil {
			verr = multierr.Append(verr, err)
			continue
		}
		available = next
	}
	if verr != nil {
		log.WithField("agent", id).
			WithError(verr).Info("Rejecting updateAvailable")
		return ErrInsufficientResources
	}

	// The operands were contained in available, so they also apply to the
	// agent total.
	for _, op := range operations {
		next, err := a.total.Apply(op)
		if err != nil {
			return ErrInsufficientResources
		}
		a.total = next
	}

	h.updateAgentTotals(id, a.capacity())
	h.allocationPending = true
	return nil
}

func (h *hierarchicalAllocator) addFramework(
	id FrameworkID,
	info FrameworkInfo,
	used map[AgentID]resources.Bundle,
	active bool) {

	if _, ok := h.frameworks[id]; ok {
		log.WithField("framework", id).Warn("Framework is already registered, dropping addFramework")
		return
	}

	fw := newFramework(id, info, active)
	h.frameworks[id] = fw

	rs := h.ensureRole(info.Role)
	rs.frameworks[id] = struct{}{}

	fs := h.frameworkSorters[info.Role]
	fs.Add(string(id), 1.0)
	if fw.offerable() {
		fs.Activate(string(id))
	}
	h.updateRoleActivation(info.Role)

	for agentID, res := range used {
		if res.IsEmpty() {
			continue
		}
		a, ok := h.agents[agentID]
		if !ok {
			log.WithFields(log.Fields{
				"framework": id,
				"agent":     agentID,
			}).Warn("Framework reports usage on unknown agent")
			continue
		}
		h.trackAllocated(fw, a, res)
	}

	log.WithFields(log.Fields{
		"framework": id,
		"role":      info.Role,
		"active":    active,
	}).Info("Added framework")

	if active {
		h.allocationPending = true
	}
}

func (h *hierarchicalAllocator) removeFramework(id FrameworkID) {
	fw, ok := h.frameworks[id]
	if !ok {
		log.WithField("framework", id).Warn("Unknown framework, dropping removeFramework")
		return
	}
	role := fw.role()

	for agentID, res := range fw.allocated {
		h.untrackAllocated(fw, agentID, res)
	}

	if fs, ok := h.frameworkSorters[role]; ok {
		fs.Remove(string(id))
	}
	if rs, ok := h.roles[role]; ok {
		delete(rs.frameworks, id)
	}
	delete(h.frameworks, id)
	h.filters.removeFramework(id)

	h.updateRoleActivation(role)
	h.maybeRemoveRole(role)

	log.WithField("framework", id).Info("Removed framework")
	h.allocationPending = true
}

func (h *hierarchicalAllocator) updateFramework(id FrameworkID, info FrameworkInfo) {
	fw, ok := h.frameworks[id]
	if !ok {
		log.WithField("framework", id).Warn("Unknown framework, dropping updateFramework")
		return
	}
	if fw.info.Role != info.Role {
		log.WithFields(log.Fields{
			"framework": id,
			"old_role":  fw.info.Role,
			"new_role":  info.Role,
		}).Error("Changing a framework's role is not supported, dropping updateFramework")
		return
	}
	fw.info = info
}

func (h *hierarchicalAllocator) activateFramework(id FrameworkID) {
	fw, ok := h.frameworks[id]
	if !ok {
		log.WithField("framework", id).Warn("Unknown framework, dropping activateFramework")
		return
	}
	fw.active = true
	if fw.offerable() {
		h.frameworkSorters[fw.role()].Activate(string(id))
	}
	h.updateRoleActivation(fw.role())
	h.allocationPending = true
}

func (h *hierarchicalAllocator) deactivateFramework(id FrameworkID) {
	fw, ok := h.frameworks[id]
	if !ok {
		log.WithField("framework", id).Warn("Unknown framework, dropping deactivateFramework")
		return
	}
	fw.active = false
	h.frameworkSorters[fw.role()].Deactivate(string(id))
	h.updateRoleActivation(fw.role())
}

func (h *hierarchicalAllocator) suppressOffers(id FrameworkID) {
	fw, ok := h.frameworks[id]
	if !ok {
		log.WithField("framework", id).Warn("Unknown framework, dropping suppressOffers")
		return
	}
	fw.suppressed = true
	h.frameworkSorters[fw.role()].Deactivate(string(id))
	h.updateRoleActivation(fw.role())
	log.WithField("framework", id).Info("Suppressed offers")
}

func (h *hierarchicalAllocator) reviveOffers(id FrameworkID) {
	fw, ok := h.frameworks[id]
	if !ok {
		log.WithField("framework", id).Warn("Unknown framework, dropping reviveOffers")
		return
	}
	fw.suppressed = false
	h.filters.removeFramework(id)
	if fw.offerable() {
		h.frameworkSorters[fw.role()].Activate(string(id))
	}
	h.updateRoleActivation(fw.role())
	log.WithField("framework", id).Info("Revived offers")
	h.allocationPending = true
}

func (h *hierarchicalAllocator) updateAllocation(
	frameworkID FrameworkID,
	agentID AgentID,
	allocation resources.Bundle,
	operations []*resources.Operation) {

	fw, fok := h.frameworks[frameworkID]
	a, aok := h.agents[agentID]
	if !fok || !aok {
		log.WithFields(log.Fields{
			"framework": frameworkID,
			"agent":     agentID,
		}).Warn("Unknown entity, dropping updateAllocation")
		return
	}
	if !a.allocated[frameworkID].Contains(allocation) {
		log.WithFields(log.Fields{
			"framework":  frameworkID,
			"agent":      agentID,
			"allocation": allocation.String(),
		}).Warn("Stated allocation is not held by the framework, dropping updateAllocation")
		return
	}

	updated := allocation
	for _, op := range operations {
		next, err := updated.Apply(op)
		if err != nil {
			log.WithFields(log.Fields{
				"framework": frameworkID,
				"agent":     agentID,
				"operation": op.Type.String(),
			}).WithError(err).Warn("Invalid operation, dropping updateAllocation")
			return
		}
		updated = next
	}

	// The agent total transforms the same way: a reservation or volume
	// created on allocated resources changes the composition of total.
	total := a.total
	for _, op := range operations {
		next, err := total.Apply(op)
		if err != nil {
			log.WithFields(log.Fields{
				"agent":     agentID,
				"operation": op.Type.String(),
			}).WithError(err).Warn("Operations do not apply to agent total, dropping updateAllocation")
			return
		}
		total = next
	}
	a.total = total

	role := fw.role()
	a.allocated[frameworkID] = a.allocated[frameworkID].Subtract(allocation).Add(updated)
	fw.allocated[agentID] = fw.allocated[agentID].Subtract(allocation).Add(updated)

	h.frameworkSorters[role].UpdateAllocation(string(frameworkID), string(agentID), allocation, updated)
	h.roleSorter.UpdateAllocation(role, string(agentID), allocation, updated)
	if _, ok := h.quotas[role]; ok {
		h.quotaRoleSorter.UpdateAllocation(
			role, string(agentID), allocation.NonRevocable(), updated.NonRevocable())
	}

	h.updateAgentTotals(agentID, a.capacity())
}

func (h *hierarchicalAllocator) recoverResources(
	frameworkID FrameworkID,
	agentID AgentID,
	res resources.Bundle,
	filter *OfferFilter) {

	if res.IsEmpty() {
		return
	}

	fw, fok := h.frameworks[frameworkID]
	a, aok := h.agents[agentID]
	if !fok && !aok {
		log.WithFields(log.Fields{
			"framework": frameworkID,
			"agent":     agentID,
		}).Warn("Unknown framework and agent, dropping recoverResources")
		return
	}

	if fok {
		h.untrackAllocated(fw, agentID, res)
	} else if aok {
		// The framework already unregistered; only the agent-side mirror
		// still holds the resources.
		remaining := a.allocated[frameworkID].Subtract(res)
		if remaining.IsEmpty() {
			delete(a.allocated, frameworkID)
		} else {
			a.allocated[frameworkID] = remaining
		}
	}

	log.WithFields(log.Fields{
		"framework": frameworkID,
		"agent":     agentID,
		"resources": res.String(),
	}).Debug("Recovered resources")

	switch {
	case filter == nil:
		h.allocationPending = true
	case filter.RefuseSeconds > 0 && fok && aok:
		deadline := h.clock.Now().Add(
			time.Duration(filter.RefuseSeconds * float64(time.Second)))
		h.filters.add(frameworkID, agentID, res, deadline, h.completedRuns)
	}
}

func (h *hierarchicalAllocator) setQuota(role string, guarantee resources.Quantities) {
	if guarantee.IsEmpty() {
		log.WithField("role", role).Warn("Empty quota guarantee, dropping setQuota")
		return
	}

	h.ensureRole(role)
	h.quotas[role] = guarantee.Clone()

	if !h.quotaRoleSorter.Contains(role) {
		h.quotaRoleSorter.Add(role, h.roleWeight(role))
		// Seed the quota charge with what the role already holds.
		for id := range h.roles[role].frameworks {
			fw := h.frameworks[id]
			for agentID, res := range fw.allocated {
				h.quotaRoleSorter.Allocated(role, string(agentID), res.NonRevocable())
			}
		}
	}
	h.updateRoleActivation(role)

	log.WithFields(log.Fields{
		"role":      role,
		"guarantee": map[string]float64(guarantee),
	}).Info("Set quota")
	h.allocationPending = true
}

func (h *hierarchicalAllocator) removeQuota(role string) {
	if _, ok := h.quotas[role]; !ok {
		log.WithField("role", role).Warn("Role has no quota, dropping removeQuota")
		return
	}
	delete(h.quotas, role)
	h.quotaRoleSorter.Remove(role)
	h.metrics.RemoveQuota(role)
	h.maybeRemoveRole(role)

	log.WithField("role", role).Info("Removed quota")
	h.allocationPending = true
}

func (h *hierarchicalAllocator) updateWeights(weights map[string]float64) {
	for role, weight := range weights {
		if weight <= 0 {
			log.WithFields(log.Fields{
				"role":   role,
				"weight": weight,
			}).Warn("Invalid weight, skipping")
			continue
		}
		h.weights[role] = weight
		// Creating the bucket now lets the weight apply the moment the
		// first framework registers under the role.
		h.ensureRole(role)
		h.roleSorter.UpdateWeight(role, weight)
		h.quotaRoleSorter.UpdateWeight(role, weight)
		h.updateRoleActivation(role)
	}
	h.allocationPending = true
}

func (h *hierarchicalAllocator) updateWhitelist(hostnames []string) {
	if hostnames == nil {
		h.whitelist = nil
		log.Info("Cleared agent whitelist")
	} else {
		h.whitelist = stringset.New(hostnames...)
		log.WithField("hostnames", hostnames).Info("Updated agent whitelist")
	}
	h.allocationPending = true
}
