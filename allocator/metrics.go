package allocator

import (
	"github.com/uber-go/tally"
)

// trackedResourceKinds are the kinds exported on the top-level resource
// gauges.
var trackedResourceKinds = []string{"cpus", "mem", "disk"}

// Metrics is a placeholder for all metrics in allocator.
type Metrics struct {
	AllocationRuns       tally.Counter
	AllocationRunLatency tally.Timer

	EventQueueDropped tally.Counter
	EventQueueLength  tally.Gauge

	scope      tally.Scope
	rolesScope tally.Scope
	quotaScope tally.Scope

	total              map[string]tally.Gauge
	offeredOrAllocated map[string]tally.Gauge

	dominantShares map[string]tally.Gauge
	activeFilters  map[string]tally.Gauge

	quotaGuarantee map[string]map[string]tally.Gauge
	quotaAllocated map[string]map[string]tally.Gauge
}

// NewMetrics returns a new instance of allocator.Metrics.
func NewMetrics(scope tally.Scope) *Metrics {
	resourcesScope := scope.SubScope("resources")
	queueScope := scope.SubScope("event_queue")

	m := &Metrics{
		AllocationRuns:       scope.Counter("allocation_runs"),
		AllocationRunLatency: scope.Timer("allocation_run_ms"),

		EventQueueDropped: queueScope.Counter("dropped"),
		EventQueueLength:  queueScope.Gauge("length"),

		scope:      scope,
		rolesScope: scope.SubScope("roles"),
		quotaScope: scope.SubScope("quota").SubScope("roles"),

		total:              make(map[string]tally.Gauge),
		offeredOrAllocated: make(map[string]tally.Gauge),
		dominantShares:     make(map[string]tally.Gauge),
		activeFilters:      make(map[string]tally.Gauge),
		quotaGuarantee:     make(map[string]map[string]tally.Gauge),
		quotaAllocated:     make(map[string]map[string]tally.Gauge),
	}

	for _, kind := range trackedResourceKinds {
		kindScope := resourcesScope.SubScope(kind)
		m.total[kind] = kindScope.Gauge("total")
		m.offeredOrAllocated[kind] = kindScope.Gauge("offered_or_allocated")
	}
	return m
}

// UpdateResources publishes cluster totals and the offered-or-allocated
// amounts per tracked kind.
func (m *Metrics) UpdateResources(total, allocated map[string]float64) {
	for _, kind := range trackedResourceKinds {
		m.total[kind].Update(total[kind])
		m.offeredOrAllocated[kind].Update(allocated[kind])
	}
}

// UpdateDominantShare publishes a role's dominant share.
func (m *Metrics) UpdateDominantShare(role string, share float64) {
	g, ok := m.dominantShares[role]
	if !ok {
		g = m.rolesScope.SubScope(role).SubScope("shares").Gauge("dominant")
		m.dominantShares[role] = g
	}
	g.Update(share)
}

// RemoveDominantShare zeroes and forgets a role's dominant share gauge
// once the last framework of a non-quota role unregisters.
func (m *Metrics) RemoveDominantShare(role string) {
	if g, ok := m.dominantShares[role]; ok {
		g.Update(0)
		delete(m.dominantShares, role)
	}
}

// UpdateActiveFilters publishes the live offer filter count for a role.
func (m *Metrics) UpdateActiveFilters(role string, count int) {
	g, ok := m.activeFilters[role]
	if !ok {
		g = m.scope.SubScope("offer_filters").
			SubScope("roles").SubScope(role).Gauge("active")
		m.activeFilters[role] = g
	}
	g.Update(float64(count))
}

// UpdateQuota publishes a quota role's guarantee and charged amounts.
func (m *Metrics) UpdateQuota(role string, guarantee, allocated map[string]float64) {
	gm, ok := m.quotaGuarantee[role]
	if !ok {
		gm = make(map[string]tally.Gauge)
		m.quotaGuarantee[role] = gm
	}
	am, ok := m.quotaAllocated[role]
	if !ok {
		am = make(map[string]tally.Gauge)
		m.quotaAllocated[role] = am
	}

	roleScope := m.quotaScope.SubScope(role).SubScope("resources")
	for kind, amount := range guarantee {
		g, ok := gm[kind]
		if !ok {
			g = roleScope.SubScope(kind).Gauge("guarantee")
			gm[kind] = g
		}
		g.Update(amount)

		a, ok := am[kind]
		if !ok {
			a = roleScope.SubScope(kind).Gauge("offered_or_allocated")
			am[kind] = a
		}
		a.Update(allocated[kind])
	}
}

// RemoveQuota zeroes and forgets a role's quota gauges.
func (m *Metrics) RemoveQuota(role string) {
	for _, g := range m.quotaGuarantee[role] {
		g.Update(0)
	}
	for _, g := range m.quotaAllocated[role] {
		g.Update(0)
	}
	delete(m.quotaGuarantee, role)
	delete(m.quotaAllocated, role)
}
