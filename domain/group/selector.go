package group

import (
	"goale/domain/core"
	"goale/domain/experiment"
	"goale/domain/predicate"
)

// Select returns the experiments satisfying the definition in table order.
// Unknown fields fail fast; zero matches is a valid empty group.
func Select(table *experiment.Table, def Definition) (Group, error) {
	if err := predicate.Validate(def.Predicate, table); err != nil {
		return Group{}, err
	}
	return filter(table, def, def.Predicate), nil
}

// Complement returns the experiments failing the definition's predicate,
// computed from the already loaded table
func Complement(table *experiment.Table, def Definition) (Group, error) {
	neg := def.Negated()
	if err := predicate.Validate(neg.Predicate, table); err != nil {
		return Group{}, err
	}
	return filter(table, neg, neg.Predicate), nil
}

// Split returns a definition's group and its complement in one pass
func Split(table *experiment.Table, def Definition) (Group, Group, error) {
	if err := predicate.Validate(def.Predicate, table); err != nil {
		return Group{}, Group{}, err
	}
	in := Group{Definition: def, Experiments: []experiment.Experiment{}}
	out := Group{Definition: def.Negated(), Experiments: []experiment.Experiment{}}
	for _, e := range table.Experiments() {
		if def.Predicate.Eval(e) {
			in.Experiments = append(in.Experiments, e)
		} else {
			out.Experiments = append(out.Experiments, e)
		}
	}
	return in, out, nil
}

func filter(table *experiment.Table, def Definition, p predicate.Predicate) Group {
	g := Group{Definition: def, Experiments: []experiment.Experiment{}}
	for _, e := range table.Experiments() {
		if p.Eval(e) {
			g.Experiments = append(g.Experiments, e)
		}
	}
	return g
}

// Partitions reports whether a and b split the table exactly: every
// experiment lies in exactly one of them
func Partitions(table *experiment.Table, a, b Group) bool {
	seen := make(map[core.ExperimentID]int, table.Len())
	for _, id := range a.IDs() {
		seen[id]++
	}
	for _, id := range b.IDs() {
		seen[id]++
	}
	if len(seen) != table.Len() {
		return false
	}
	for _, id := range table.IDs() {
		if seen[id] != 1 {
			return false
		}
	}
	return true
}

// SameMembers reports whether two groups hold the same experiment set
func SameMembers(a, b Group) bool {
	if a.Len() != b.Len() {
		return false
	}
	ids := make(map[core.ExperimentID]struct{}, a.Len())
	for _, id := range a.IDs() {
		ids[id] = struct{}{}
	}
	for _, id := range b.IDs() {
		if _, ok := ids[id]; !ok {
			return false
		}
	}
	return true
}
