package allocator

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zmyer/mesos/resources"
)

// OfferFilter is the decline filter a framework attaches when refusing
// resources. RefuseSeconds of zero installs no filter.
type OfferFilter struct {
	RefuseSeconds float64
}

// offerFilter is one installed suppression entry for a (framework, agent)
// pair.
type offerFilter struct {
	res      resources.Bundle
	deadline time.Time

	// installedAtRun is the allocation run count at install time. The
	// filter is only dropped once at least one run has completed after
	// install, so a tiny timeout still suppresses the very next run.
	installedAtRun uint64
}

// suppresses reports whether the filter blocks offering the candidate
// bundle: the filter's declined bundle must cover the candidate.
func (f *offerFilter) suppresses(candidate resources.Bundle) bool {
	return f.res.Contains(candidate)
}

// expired reports whether the filter may be dropped.
func (f *offerFilter) expired(now time.Time, completedRuns uint64) bool {
	return !now.Before(f.deadline) && completedRuns > f.installedAtRun
}

// filterRegistry holds the per-(framework, agent) filter lists. Expired
// filters are removed lazily when consulted.
type filterRegistry struct {
	filters map[FrameworkID]map[AgentID][]*offerFilter
}

func newFilterRegistry() *filterRegistry {
	return &filterRegistry{
		filters: make(map[FrameworkID]map[AgentID][]*offerFilter),
	}
}

func (r *filterRegistry) add(
	frameworkID FrameworkID,
	agentID AgentID,
	res resources.Bundle,
	deadline time.Time,
	completedRuns uint64) {

	byAgent, ok := r.filters[frameworkID]
	if !ok {
		byAgent = make(map[AgentID][]*offerFilter)
		r.filters[frameworkID] = byAgent
	}
	byAgent[agentID] = append(byAgent[agentID], &offerFilter{
		res:            res,
		deadline:       deadline,
		installedAtRun: completedRuns,
	})

	log.WithFields(log.Fields{
		"framework": frameworkID,
		"agent":     agentID,
		"resources": res.String(),
		"deadline":  deadline,
	}).Debug("Installed offer filter")
}

// filtered prunes expired entries for the pair and reports whether any
// remaining filter suppresses the candidate bundle.
func (r *filterRegistry) filtered(
	frameworkID FrameworkID,
	agentID AgentID,
	candidate resources.Bundle,
	now time.Time,
	completedRuns uint64) bool {

	byAgent, ok := r.filters[frameworkID]
	if !ok {
		return false
	}
	entries := byAgent[agentID]
	if len(entries) == 0 {
		return false
	}

	kept := entries[:0]
	suppressed := false
	for _, f := range entries {
		if f.expired(now, completedRuns) {
			continue
		}
		kept = append(kept, f)
		if f.suppresses(candidate) {
			suppressed = true
		}
	}

	if len(kept) == 0 {
		delete(byAgent, agentID)
		if len(byAgent) == 0 {
			delete(r.filters, frameworkID)
		}
	} else {
		byAgent[agentID] = kept
	}
	return suppressed
}

// removeFramework drops every filter of a framework, e.g. on revive or
// unregistration.
func (r *filterRegistry) removeFramework(frameworkID FrameworkID) {
	delete(r.filters, frameworkID)
}

// removeAgent drops the filters targeting a deregistered agent.
func (r *filterRegistry) removeAgent(agentID AgentID) {
	for frameworkID, byAgent := range r.filters {
		delete(byAgent, agentID)
		if len(byAgent) == 0 {
			delete(r.filters, frameworkID)
		}
	}
}

// count returns the number of live entries for a framework.
func (r *filterRegistry) count(frameworkID FrameworkID) int {
	var n int
	for _, entries := range r.filters[frameworkID] {
		n += len(entries)
	}
	return n
}
