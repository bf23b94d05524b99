/*
resolver.go - Identity Resolver: correlate masters with canonical facts

PURPOSE:
  Produces exactly one ResolvedState per eligible entity per analysis date
  by outer-correlating the master set against the fact stream. An entity
  with no matching fact still yields a ResolvedState with an absent fact -
  "no observation" is itself meaningful (an employee who never clocked in
  is not the same as one marked absent).

CONFLICT RESOLUTION (latest-wins):
  Multiple facts can share the same (entity, analysis date) key, e.g. an
  order inspected twice. The fact with the maximum observed_at wins; equal
  timestamps fall back to the higher arrival sequence. The policy is stable
  and deterministic regardless of input order.

ELIGIBILITY:
  Entities terminated at or before the analysis date are excluded from the
  eligible set (and therefore from every denominator), but the subset whose
  termination date equals the analysis date exactly is exposed separately
  for attrition tracking.

SEE ALSO:
  - types.go:  MasterRecord, ResolvedState, Classifier
  - errors.go: OrphanReferenceError, EmptyMasterSetError
*/
package engine

import (
	"sort"
)

// =============================================================================
// RESOLUTION INPUT / OUTPUT
// =============================================================================

type ResolveInput struct {
	Masters []MasterRecord
	Facts   []CanonicalFact
	Date    TimePoint
	// Classify extracts the reporting category per master record.
	// Defaults to ClassifyByDepartment when nil.
	Classify Classifier
}

type ResolveOutput struct {
	// States holds one row per eligible entity, ordered by EntityID.
	States []ResolvedState

	// ByCategory partitions States by classifier output. Partitions share
	// no entities, so downstream metric work parallelizes across them.
	ByCategory map[CategoryID][]ResolvedState

	// TerminatedToday is the attrition audit set: masters whose termination
	// date equals the analysis date exactly. Not part of any denominator.
	TerminatedToday []MasterRecord

	// Orphans are facts whose entity has no master record. They are excluded
	// from all aggregates and surfaced as a warning count.
	Orphans []OrphanReferenceError
}

func (ro *ResolveOutput) OrphanCount() int { return len(ro.Orphans) }

// =============================================================================
// RESOLVE
// =============================================================================

// Resolve performs the outer correlation for one analysis date.
// Returns ErrEmptyMasterSet when the master set is wholesale empty; that is
// the only condition that fails the call rather than degrading it.
func Resolve(in ResolveInput) (*ResolveOutput, error) {
	if len(in.Masters) == 0 {
		return nil, ErrEmptyMasterSet
	}
	classify := in.Classify
	if classify == nil {
		classify = ClassifyByDepartment
	}

	known := make(map[EntityID]bool, len(in.Masters))
	for _, m := range in.Masters {
		known[m.EntityID] = true
	}

	// Latest-wins selection per entity for this date.
	chosen := make(map[EntityID]CanonicalFact)
	out := &ResolveOutput{ByCategory: make(map[CategoryID][]ResolvedState)}

	for _, fact := range in.Facts {
		if !fact.ObservedAt.SameDay(in.Date) {
			continue
		}
		if !known[fact.EntityID] {
			out.Orphans = append(out.Orphans, OrphanReferenceError{EntityID: fact.EntityID, Source: fact.Source})
			continue
		}
		current, exists := chosen[fact.EntityID]
		if !exists || supersedes(fact, current) {
			chosen[fact.EntityID] = fact
		}
	}

	for _, m := range in.Masters {
		if m.TerminatedOn(in.Date) {
			out.TerminatedToday = append(out.TerminatedToday, m)
		}
		if !m.EligibleOn(in.Date) {
			continue
		}
		state := ResolvedState{
			Master:   m,
			Category: classify(m),
			Date:     in.Date.Day(),
		}
		if fact, ok := chosen[m.EntityID]; ok {
			f := fact
			state.Fact = &f
		}
		out.States = append(out.States, state)
	}

	sort.Slice(out.States, func(i, j int) bool {
		return out.States[i].Master.EntityID < out.States[j].Master.EntityID
	})
	for _, s := range out.States {
		out.ByCategory[s.Category] = append(out.ByCategory[s.Category], s)
	}

	return out, nil
}

// supersedes reports whether candidate beats incumbent under latest-wins:
// later observed_at first, then higher arrival sequence on a timestamp tie.
func supersedes(candidate, incumbent CanonicalFact) bool {
	if candidate.ObservedAt.After(incumbent.ObservedAt) {
		return true
	}
	if candidate.ObservedAt.Equal(incumbent.ObservedAt) {
		return candidate.ArrivalSeq > incumbent.ArrivalSeq
	}
	return false
}
