package sorter

import (
	log "github.com/sirupsen/logrus"

	"github.com/zmyer/mesos/resources"
)

// Sorter maintains an ordered view of clients (roles or frameworks) by
// weighted dominant share. Client keys are opaque strings. A Sorter is not
// thread safe; the allocator serializes every call through its event loop.
type Sorter interface {
	// Add registers a client with the given weight.
	Add(client string, weight float64)
	// Remove unregisters a client and forgets its allocations.
	Remove(client string)
	// Contains returns whether the client is registered.
	Contains(client string) bool
	// Count returns the number of registered clients.
	Count() int
	// Activate makes the client eligible for Sort output.
	Activate(client string)
	// Deactivate hides the client from Sort output while keeping its
	// allocation tracked.
	Deactivate(client string)
	// Allocated records resources handed to the client on an agent.
	Allocated(client, agentID string, res resources.Bundle)
	// Unallocated removes previously recorded resources.
	Unallocated(client, agentID string, res resources.Bundle)
	// UpdateAllocation substitutes the client's allocation on an agent,
	// used when RESERVE or CREATE style operations transform resources.
	UpdateAllocation(client, agentID string, oldRes, newRes resources.Bundle)
	// Allocation returns the client's allocation keyed by agent.
	Allocation(client string) map[string]resources.Bundle
	// AllocationScalarQuantities returns the client's aggregate scalar
	// quantities across all agents.
	AllocationScalarQuantities(client string) resources.Quantities
	// UpdateTotal announces an agent's total capacity. An empty bundle
	// removes the agent from the pool.
	UpdateTotal(agentID string, total resources.Bundle)
	// TotalScalarQuantities returns the pooled cluster capacity.
	TotalScalarQuantities() resources.Quantities
	// UpdateWeight changes a client's weight; it takes effect on the next
	// Sort.
	UpdateWeight(client string, weight float64)
	// DominantShare returns the client's current weighted dominant share.
	DominantShare(client string) float64
	// Sort returns the active clients in ascending weighted dominant
	// share order with round-robin tie-breaking.
	Sort() []string
}

// client is the per-client sorter state.
type client struct {
	name        string
	weight      float64
	active      bool
	allocations map[string]resources.Bundle
	totals      resources.Quantities

	// count increments every time the client receives an allocation. Equal
	// shares sort by ascending count, so clients at the same share take
	// turns at the front across successive sorts.
	count uint64
}

// drfSorter implements Sorter with dominant resource fairness ordering.
type drfSorter struct {
	clients     map[string]*client
	agentTotals map[string]resources.Quantities
	total       resources.Quantities

	// Resource names excluded from the dominant share computation. The
	// allocations still track them; they just never drive the ordering.
	excluded map[string]struct{}
}

// New creates a DRF sorter. fairnessExcluded lists resource names left out
// of the dominant share computation.
func New(fairnessExcluded []string) Sorter {
	excluded := make(map[string]struct{}, len(fairnessExcluded))
	for _, name := range fairnessExcluded {
		excluded[name] = struct{}{}
	}
	return &drfSorter{
		clients:     make(map[string]*client),
		agentTotals: make(map[string]resources.Quantities),
		total:       resources.Quantities{},
		excluded:    excluded,
	}
}

func (s *drfSorter) Add(name string, weight float64) {
	if _, ok := s.clients[name]; ok {
		return
	}
	s.clients[name] = &client{
		name:        name,
		weight:      weight,
		allocations: make(map[string]resources.Bundle),
		totals:      resources.Quantities{},
	}
}

func (s *drfSorter) Remove(name string) {
	delete(s.clients, name)
}

func (s *drfSorter) Contains(name string) bool {
	_, ok := s.clients[name]
	return ok
}

func (s *drfSorter) Count() int {
	return len(s.clients)
}

func (s *drfSorter) Activate(name string) {
	if c, ok := s.clients[name]; ok {
		c.active = true
	}
}

func (s *drfSorter) Deactivate(name string) {
	if c, ok := s.clients[name]; ok {
		c.active = false
	}
}

func (s *drfSorter) Allocated(name, agentID string, res resources.Bundle) {
	c, ok := s.clients[name]
	if !ok {
		log.WithField("client", name).Warn("Allocation for unknown sorter client")
		return
	}
	c.allocations[agentID] = c.allocations[agentID].Add(res)
	c.totals.Add(res.ScalarQuantities())
	c.count++
}

func (s *drfSorter) Unallocated(name, agentID string, res resources.Bundle) {
	c, ok := s.clients[name]
	if !ok {
		return
	}
	remaining := c.allocations[agentID].Subtract(res)
	if remaining.IsEmpty() {
		delete(c.allocations, agentID)
	} else {
		c.allocations[agentID] = remaining
	}
	c.totals.Subtract(res.ScalarQuantities())
}

func (s *drfSorter) UpdateAllocation(name, agentID string, oldRes, newRes resources.Bundle) {
	c, ok := s.clients[name]
	if !ok {
		return
	}
	c.allocations[agentID] = c.allocations[agentID].Subtract(oldRes).Add(newRes)
	c.totals.Subtract(oldRes.ScalarQuantities())
	c.totals.Add(newRes.ScalarQuantities())
}

func (s *drfSorter) Allocation(name string) map[string]resources.Bundle {
	c, ok := s.clients[name]
	if !ok {
		return nil
	}
	out := make(map[string]resources.Bundle, len(c.allocations))
	for agentID, res := range c.allocations {
		out[agentID] = res
	}
	return out
}

func (s *drfSorter) AllocationScalarQuantities(name string) resources.Quantities {
	c, ok := s.clients[name]
	if !ok {
		return resources.Quantities{}
	}
	return c.totals.Clone()
}

func (s *drfSorter) UpdateTotal(agentID string, total resources.Bundle) {
	if prev, ok := s.agentTotals[agentID]; ok {
		s.total.Subtract(prev)
		delete(s.agentTotals, agentID)
	}
	q := total.ScalarQuantities()
	if !q.IsEmpty() {
		s.agentTotals[agentID] = q
		s.total.Add(q)
	}
}

func (s *drfSorter) TotalScalarQuantities() resources.Quantities {
	return s.total.Clone()
}

func (s *drfSorter) UpdateWeight(name string, weight float64) {
	if c, ok := s.clients[name]; ok {
		c.weight = weight
	}
}

func (s *drfSorter) DominantShare(name string) float64 {
	c, ok := s.clients[name]
	if !ok {
		return 0
	}
	return s.dominantShare(c)
}

// dominantShare computes max_k allocation_k / total_k over non-excluded
// kinds, divided by the client weight.
func (s *drfSorter) dominantShare(c *client) float64 {
	var share float64
	for kind, amount := range c.totals {
		if _, skip := s.excluded[kind]; skip {
			continue
		}
		total := s.total.Get(kind)
		if total <= 0 {
			continue
		}
		if ratio := amount / total; ratio > share {
			share = ratio
		}
	}
	if c.weight <= 0 {
		return share
	}
	return share / c.weight
}

func (s *drfSorter) Sort() []string {
	active := make([]interface{}, 0, len(s.clients))
	for _, c := range s.clients {
		if c.active {
			active = append(active, c)
		}
	}

	byShare := func(p1, p2 interface{}) bool {
		return s.dominantShare(p1.(*client)) < s.dominantShare(p2.(*client))
	}
	byCount := func(p1, p2 interface{}) bool {
		return p1.(*client).count < p2.(*client).count
	}
	byName := func(p1, p2 interface{}) bool {
		return p1.(*client).name < p2.(*client).name
	}
	orderedBy(byShare, byCount, byName).sort(active)

	out := make([]string, 0, len(active))
	for _, c := range active {
		out = append(out, c.(*client).name)
	}
	return out
}
