// Package contrast holds the contrast plan: the named analysis groups, the
// subtraction pairs drawn from them and the parameters they share.
package contrast

import (
	"fmt"
	"strings"

	"goale/domain/core"
	"goale/domain/experiment"
	"goale/domain/group"
	"goale/domain/predicate"
)

// PairSpec declares "minuend minus subtrahend" by group export path
type PairSpec struct {
	Minuend    string `yaml:"minuend" json:"minuend"`
	Subtrahend string `yaml:"subtrahend" json:"subtrahend"`
}

// Pair is a validated subtraction between two registered groups
type Pair struct {
	Name           core.PairName  `json:"name"`
	Minuend        core.GroupName `json:"minuend"`
	Subtrahend     core.GroupName `json:"subtrahend"`
	MinuendPath    string         `json:"minuend_path"`
	SubtrahendPath string         `json:"subtrahend_path"`
}

// PairName names the output of "a minus b"
func PairName(a, b core.GroupName) core.PairName {
	return core.PairName(fmt.Sprintf("%s_minus_%s", a, b))
}

// Plan is the validated contrast plan over one experiment table
type Plan struct {
	table       *experiment.Table
	groups      []group.Group
	byOutput    map[string]int
	byName      map[core.GroupName]int
	pairs       []Pair
	ALE         ALEParams
	Subtraction SubtractionParams
}

// NewPlan validates everything a run needs before any computation starts:
// parameters, predicates against the table schema, unique group outputs,
// and that every pair draws on two registered, related groups. Groups are
// materialized here, in declaration order.
func NewPlan(table *experiment.Table, defs []group.Definition, pairs []PairSpec, ale ALEParams, sub SubtractionParams) (*Plan, error) {
	if table == nil {
		return nil, core.NewConfigError(core.ErrConfiguration, "no experiment table")
	}
	if err := ale.Validate(); err != nil {
		return nil, err
	}
	if len(pairs) > 0 {
		if err := sub.Validate(); err != nil {
			return nil, err
		}
	}

	p := &Plan{
		table:       table,
		groups:      make([]group.Group, 0, len(defs)),
		byOutput:    make(map[string]int, len(defs)),
		byName:      make(map[core.GroupName]int, len(defs)),
		ALE:         ale,
		Subtraction: sub,
	}

	for _, def := range defs {
		if err := p.register(def); err != nil {
			return nil, err
		}
	}
	for _, spec := range pairs {
		pair, err := p.pair(spec)
		if err != nil {
			return nil, err
		}
		p.pairs = append(p.pairs, pair)
	}
	return p, nil
}

func (p *Plan) register(def group.Definition) error {
	if def.Predicate == nil {
		return core.NewConfigError(core.ErrMalformedPredicate, "group %q has no predicate", def.Name)
	}
	if strings.TrimSpace(def.Output) == "" {
		return core.NewConfigError(core.ErrConfiguration, "group %q has no output path", def.Name)
	}
	if def.Name.String() == "" {
		def.Name = group.NameFromPath(def.Output)
	}
	key := cleanPath(def.Output)
	if _, dup := p.byOutput[key]; dup {
		return core.NewConfigError(core.ErrDuplicateGroup, "output %q declared twice", def.Output)
	}
	if _, dup := p.byName[def.Name]; dup {
		return core.NewConfigError(core.ErrDuplicateGroup, "name %q declared twice", def.Name)
	}

	g, err := group.Select(p.table, def)
	if err != nil {
		return fmt.Errorf("group %s: %w", def.Name, err)
	}
	p.byOutput[key] = len(p.groups)
	p.byName[def.Name] = len(p.groups)
	p.groups = append(p.groups, g)
	return nil
}

func (p *Plan) pair(spec PairSpec) (Pair, error) {
	ia, ok := p.byOutput[cleanPath(spec.Minuend)]
	if !ok {
		return Pair{}, core.NewConfigError(core.ErrUnregisteredExport, "minuend %q", spec.Minuend)
	}
	ib, ok := p.byOutput[cleanPath(spec.Subtrahend)]
	if !ok {
		return Pair{}, core.NewConfigError(core.ErrUnregisteredExport, "subtrahend %q", spec.Subtrahend)
	}
	a, b := p.groups[ia], p.groups[ib]
	if ia == ib {
		return Pair{}, core.NewConfigError(core.ErrUnrelatedPair, "%q minus itself", a.Name())
	}
	if !Related(p.table, a, b) {
		return Pair{}, core.NewConfigError(core.ErrUnrelatedPair, "%s (%s) and %s (%s) share no field and do not partition the table",
			a.Name(), a.Definition.Predicate, b.Name(), b.Definition.Predicate)
	}
	return Pair{
		Name:           PairName(a.Name(), b.Name()),
		Minuend:        a.Name(),
		Subtrahend:     b.Name(),
		MinuendPath:    a.Definition.Output,
		SubtrahendPath: b.Definition.Output,
	}, nil
}

// Related reports whether two groups may be subtracted: their predicates are
// complementary, their members partition the table, or they constrain at
// least one common metadata field
func Related(table *experiment.Table, a, b group.Group) bool {
	pa, pb := a.Definition.Predicate, b.Definition.Predicate
	return predicate.Complementary(pa, pb) ||
		group.Partitions(table, a, b) ||
		predicate.SharesField(pa, pb)
}

func cleanPath(path string) string {
	return strings.TrimPrefix(strings.ReplaceAll(strings.TrimSpace(path), "\\", "/"), "./")
}

// Table returns the experiment table the plan was built on
func (p *Plan) Table() *experiment.Table { return p.table }

// Groups returns the materialized groups in declaration order
func (p *Plan) Groups() []group.Group {
	out := make([]group.Group, len(p.groups))
	copy(out, p.groups)
	return out
}

// Group looks a group up by name
func (p *Plan) Group(name core.GroupName) (group.Group, bool) {
	i, ok := p.byName[name]
	if !ok {
		return group.Group{}, false
	}
	return p.groups[i], true
}

// ExportPath returns the registered export path of a group
func (p *Plan) ExportPath(name core.GroupName) (string, bool) {
	g, ok := p.Group(name)
	if !ok {
		return "", false
	}
	return g.Definition.Output, true
}

// Pairs returns the subtraction pairs in declaration order
func (p *Plan) Pairs() []Pair {
	out := make([]Pair, len(p.pairs))
	copy(out, p.pairs)
	return out
}

// PairsUsing returns the pairs that read a group's export
func (p *Plan) PairsUsing(name core.GroupName) []Pair {
	var out []Pair
	for _, pair := range p.pairs {
		if pair.Minuend == name || pair.Subtrahend == name {
			out = append(out, pair)
		}
	}
	return out
}

// Hash fingerprints groups, pairs and parameters
func (p *Plan) Hash() core.PlanHash {
	values := map[string]string{
		"ale":         fmt.Sprintf("%+v", p.ALE),
		"subtraction": fmt.Sprintf("%+v", p.Subtraction),
	}
	for i, g := range p.groups {
		values[fmt.Sprintf("group/%03d", i)] = fmt.Sprintf("%s|%s|%s", g.Name(), g.Definition.Output, g.Definition.Predicate)
	}
	for i, pair := range p.pairs {
		values[fmt.Sprintf("pair/%03d", i)] = string(pair.Name)
	}
	return core.PlanHash(core.ComputeMapHash(values))
}

// Summary lists group sizes in declaration order, for logs and the CLI
func (p *Plan) Summary() []GroupSummary {
	out := make([]GroupSummary, len(p.groups))
	for i, g := range p.groups {
		out[i] = GroupSummary{Name: g.Name(), Output: g.Definition.Output, Predicate: g.Definition.Predicate.String(), Experiments: g.Len(), Peaks: g.PeakCount()}
	}
	return out
}

// GroupSummary describes one materialized group
type GroupSummary struct {
	Name        core.GroupName `json:"name"`
	Output      string         `json:"output"`
	Predicate   string         `json:"predicate"`
	Experiments int            `json:"experiments"`
	Peaks       int            `json:"peaks"`
}
