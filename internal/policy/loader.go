package policy

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	dErrors "custos/pkg/domain-errors"
)

// Loader produces immutable rule set snapshots. A failed load is a
// configuration error, never a deny-all.
type Loader interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// FileLoader parses a YAML rule file into a Snapshot.
type FileLoader struct {
	path string
}

// NewFileLoader returns a loader for the given rule file path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

type ruleFile struct {
	Version string     `yaml:"version"`
	Rules   []ruleNode `yaml:"rules"`
}

type ruleNode struct {
	ID          string     `yaml:"id"`
	Role        string     `yaml:"role"`
	Object      string     `yaml:"object"`
	Action      string     `yaml:"action"`
	Effect      string     `yaml:"effect"`
	Description string     `yaml:"description"`
	Guard       *guardNode `yaml:"guard"`
}

type guardNode struct {
	Flag string      `yaml:"flag"`
	Eq   *eqNode     `yaml:"eq"`
	In   *inNode     `yaml:"in"`
	All  []guardNode `yaml:"all"`
	Any  []guardNode `yaml:"any"`
}

type eqNode struct {
	Field string `yaml:"field"`
	Value string `yaml:"value"`
}

type inNode struct {
	Field  string   `yaml:"field"`
	Values []string `yaml:"values"`
}

// Load reads and parses the rule file. All structural problems surface as
// CodeConfig errors so operators are alerted instead of the engine silently
// denying everything.
func (l *FileLoader) Load(_ context.Context) (*Snapshot, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfig, fmt.Sprintf("cannot read policy file %s", l.path))
	}

	var f ruleFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfig, fmt.Sprintf("cannot parse policy file %s", l.path))
	}

	rules := make([]Rule, 0, len(f.Rules))
	for i, n := range f.Rules {
		guard, err := n.Guard.toPredicate()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeConfig, fmt.Sprintf("rule %q (position %d) has an invalid guard", n.ID, i))
		}
		rules = append(rules, Rule{
			ID:          n.ID,
			Role:        n.Role,
			ObjectType:  n.Object,
			Action:      n.Action,
			Effect:      Effect(n.Effect),
			Guard:       guard,
			Description: n.Description,
		})
	}

	return NewSnapshot(f.Version, rules)
}

// toPredicate converts a parsed guard node into the tagged predicate form,
// rejecting ambiguous nodes (more than one variant set) and empty composites.
func (g *guardNode) toPredicate() (*Predicate, error) {
	if g == nil {
		return nil, nil
	}

	set := 0
	if g.Flag != "" {
		set++
	}
	if g.Eq != nil {
		set++
	}
	if g.In != nil {
		set++
	}
	if len(g.All) > 0 {
		set++
	}
	if len(g.Any) > 0 {
		set++
	}
	if set == 0 {
		return nil, fmt.Errorf("guard node is empty")
	}
	if set > 1 {
		return nil, fmt.Errorf("guard node sets more than one variant")
	}

	switch {
	case g.Flag != "":
		return &Predicate{Kind: PredFlag, Field: g.Flag}, nil
	case g.Eq != nil:
		if g.Eq.Field == "" {
			return nil, fmt.Errorf("eq guard has no field")
		}
		return &Predicate{Kind: PredEquality, Field: g.Eq.Field, Value: g.Eq.Value}, nil
	case g.In != nil:
		if g.In.Field == "" || len(g.In.Values) == 0 {
			return nil, fmt.Errorf("in guard needs a field and at least one value")
		}
		return &Predicate{Kind: PredMembership, Field: g.In.Field, Values: g.In.Values}, nil
	case len(g.All) > 0:
		children, err := childPredicates(g.All)
		if err != nil {
			return nil, err
		}
		return &Predicate{Kind: PredAll, Preds: children}, nil
	default:
		children, err := childPredicates(g.Any)
		if err != nil {
			return nil, err
		}
		return &Predicate{Kind: PredAny, Preds: children}, nil
	}
}

func childPredicates(nodes []guardNode) ([]Predicate, error) {
	out := make([]Predicate, 0, len(nodes))
	for i := range nodes {
		p, err := nodes[i].toPredicate()
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}
