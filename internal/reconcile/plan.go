package reconcile

import "sort"

// Mutation is one remote-state change the reconciler wants to apply. Kind
// determines which Client method handles it.
type Mutation struct {
	Kind   MutationKind
	Target string
	Active bool // only meaningful for PCCategory/PCService
}

// MutationKind is the closed set of remote operations a tick can emit, in
// the cross-kind ordering spec.md §5 mandates.
type MutationKind int

const (
	DenyRemove MutationKind = iota
	DenyAdd
	AllowRemove
	AllowAdd
	PCCategory
	PCService
)

// Plan is the ordered, deterministic sequence of mutations one tick
// produces. Building it from sorted set differences (rather than map
// iteration) is what makes two ticks over identical inputs produce
// identical plans (spec.md §4.6 Determinism, §8 property 3).
type Plan struct {
	Mutations []Mutation
}

func diff(desired, current map[string]bool) (toAdd, toRemove []string) {
	for d := range desired {
		if !current[d] {
			toAdd = append(toAdd, d)
		}
	}
	for c := range current {
		if !desired[c] {
			toRemove = append(toRemove, c)
		}
	}
	sort.Strings(toAdd)
	sort.Strings(toRemove)
	return toAdd, toRemove
}

// pcToggle is one native category/service whose desired active state
// differs from the remote's current state.
type pcToggle struct {
	kind MutationKind
	id   string
	want bool
}

// buildPlan assembles the cross-kind-ordered mutation list: denylist
// removals, denylist additions, allowlist removals, allowlist additions,
// native-PC toggles (spec.md §5). Within the PC-toggle group, categories
// and services are merged and sorted lexically by id, matching the "lexical
// order within a kind" rule applied to the combined native-PC resource.
func buildPlan(
	desiredBlock, remoteDeny map[string]bool,
	desiredAllow, remoteAllow map[string]bool,
	pauseActive bool,
	desiredPCCatOn, currentPCCatOn map[string]bool, configuredCategories []string,
	desiredPCSvcOn, currentPCSvcOn map[string]bool, configuredServices []string,
) *Plan {
	denyAdd, denyRemove := diff(desiredBlock, remoteDeny)
	if pauseActive {
		denyAdd = nil // drop toAdd on the deny side while paused; keep toRemove
	}
	allowAdd, allowRemove := diff(desiredAllow, remoteAllow)

	plan := &Plan{}
	for _, d := range denyRemove {
		plan.Mutations = append(plan.Mutations, Mutation{Kind: DenyRemove, Target: d})
	}
	for _, d := range denyAdd {
		plan.Mutations = append(plan.Mutations, Mutation{Kind: DenyAdd, Target: d})
	}
	for _, d := range allowRemove {
		plan.Mutations = append(plan.Mutations, Mutation{Kind: AllowRemove, Target: d})
	}
	for _, d := range allowAdd {
		plan.Mutations = append(plan.Mutations, Mutation{Kind: AllowAdd, Target: d})
	}

	var toggles []pcToggle
	for _, id := range configuredCategories {
		if want := desiredPCCatOn[id]; want != currentPCCatOn[id] {
			toggles = append(toggles, pcToggle{kind: PCCategory, id: id, want: want})
		}
	}
	for _, id := range configuredServices {
		if want := desiredPCSvcOn[id]; want != currentPCSvcOn[id] {
			toggles = append(toggles, pcToggle{kind: PCService, id: id, want: want})
		}
	}
	sort.Slice(toggles, func(i, j int) bool { return toggles[i].id < toggles[j].id })
	for _, t := range toggles {
		plan.Mutations = append(plan.Mutations, Mutation{Kind: t.kind, Target: t.id, Active: t.want})
	}
	return plan
}
