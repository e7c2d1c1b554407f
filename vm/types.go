package vm

import (
	"fmt"
)

// Type is a node in the type graph. A type is created once and mutated only
// by ExtendType, which revalidates the whole linearization before committing.
//
// Dataclass types carry a slot layout; mixin types are slotless and exist
// only to contribute to linearizations.
type Type struct {
	Name      string
	Bases     []*Type
	Sealed    bool
	Dataclass bool
	Mixin     bool

	// SlotNames are the slots declared on this type itself; layout is the
	// cumulative, inherited-first slot list a dataclass instance stores.
	SlotNames []string
	layout    []string

	lin      []*Type // cached linearization, self first
	subtypes []*Type // types whose linearization contains this one, creation order
}

func (t *Type) Kind() Kind     { return KindType }
func (t *Type) String() string { return t.Name }

// Linearization returns the cached C3 linearization, starting with t itself.
func (t *Type) Linearization() []*Type { return t.lin }

// SlotLayout returns the cumulative slot names of a dataclass type,
// inherited slots first.
func (t *Type) SlotLayout() []string { return t.layout }

// NumSlots returns the cumulative slot count of a dataclass type.
func (t *Type) NumSlots() int { return len(t.layout) }

// IsSubtype reports whether a is b or descends from b: b's linearization
// must appear head-first as a suffix of a's.
func IsSubtype(a, b *Type) bool {
	la, lb := a.lin, b.lin
	if len(la) < len(lb) {
		return false
	}
	return la[len(la)-len(lb)] == b
}

// NewType creates a primitive type.
func NewType(name string, bases []*Type, sealed bool) (*Type, error) {
	return makeType(&Type{Name: name, Bases: bases, Sealed: sealed})
}

// NewMixin creates a slotless mixin type.
func NewMixin(name string, bases []*Type) (*Type, error) {
	return makeType(&Type{Name: name, Bases: bases, Mixin: true})
}

// NewDataclass creates a dataclass type with the given own slots. Its
// cumulative layout prepends the slots of its most derived dataclass
// ancestor, which requires all dataclass ancestors to form a single chain.
func NewDataclass(name string, bases []*Type, slotNames []string) (*Type, error) {
	seen := map[string]bool{}
	for _, s := range slotNames {
		if seen[s] {
			return nil, fmt.Errorf("dataclass %s: duplicate slot %q", name, s)
		}
		seen[s] = true
	}
	return makeType(&Type{Name: name, Bases: bases, Dataclass: true, SlotNames: slotNames})
}

func makeType(t *Type) (*Type, error) {
	for _, b := range t.Bases {
		if b.Sealed {
			return nil, fmt.Errorf("type %s: base %s is sealed", t.Name, b.Name)
		}
	}
	lin, err := linearize(t, t.Bases)
	if err != nil {
		return nil, err
	}
	t.lin = lin

	layout, err := dataclassLayout(t)
	if err != nil {
		return nil, err
	}
	t.layout = layout

	for _, anc := range lin[1:] {
		anc.subtypes = append(anc.subtypes, t)
	}
	return t, nil
}

// ExtendType appends new bases to an existing type. The merge is computed
// and validated before anything is mutated, so a failed extension leaves the
// type exactly as it was. On success every existing subtype is re-linearized.
func ExtendType(t *Type, newBases []*Type) error {
	if t.Sealed {
		return fmt.Errorf("cannot extend sealed type %s", t.Name)
	}
	for _, b := range newBases {
		if b.Sealed {
			return fmt.Errorf("type %s: base %s is sealed", t.Name, b.Name)
		}
	}

	proposed := make([]*Type, 0, len(t.Bases)+len(newBases))
	proposed = append(proposed, t.Bases...)
	proposed = append(proposed, newBases...)

	lin, err := linearize(t, proposed)
	if err != nil {
		return err
	}

	if t.Dataclass {
		trial := &Type{Name: t.Name, Dataclass: true, SlotNames: t.SlotNames, lin: lin}
		layout, err := dataclassLayout(trial)
		if err != nil {
			return err
		}
		if len(layout) != len(t.layout) {
			return fmt.Errorf("cannot extend dataclass %s: new bases would change its slot layout", t.Name)
		}
	}

	t.Bases = proposed
	t.lin = lin
	for _, anc := range lin[1:] {
		registerSubtype(anc, t)
	}

	// Subtype constraints are a superset of what just succeeded, so these
	// re-linearizations cannot fail. Creation order keeps bases ahead of
	// their descendants.
	for _, sub := range t.subtypes {
		subLin, err := linearize(sub, sub.Bases)
		if err != nil {
			return fmt.Errorf("re-linearizing %s after extending %s: %w", sub.Name, t.Name, err)
		}
		sub.lin = subLin
		for _, anc := range subLin[1:] {
			registerSubtype(anc, sub)
		}
	}
	return nil
}

func registerSubtype(anc, t *Type) {
	for _, s := range anc.subtypes {
		if s == t {
			return
		}
	}
	anc.subtypes = append(anc.subtypes, t)
}

// linearize computes the C3 linearization of t over the given bases:
// t itself, then the merge of each base's linearization plus the bases list.
func linearize(t *Type, bases []*Type) ([]*Type, error) {
	if len(bases) == 0 {
		return []*Type{t}, nil
	}
	seqs := make([][]*Type, 0, len(bases)+1)
	for _, b := range bases {
		for _, anc := range b.lin {
			if anc == t {
				return nil, fmt.Errorf("inheritance cycle: %s occurs in the ancestry of its base %s", t.Name, b.Name)
			}
		}
		seqs = append(seqs, append([]*Type(nil), b.lin...))
	}
	seqs = append(seqs, append([]*Type(nil), bases...))

	merged, err := c3Merge(seqs)
	if err != nil {
		return nil, fmt.Errorf("type %s: %w", t.Name, err)
	}
	return append([]*Type{t}, merged...), nil
}

// c3Merge repeatedly takes the first sequence head that appears in no
// sequence tail; if no head qualifies the hierarchies are inconsistent.
func c3Merge(seqs [][]*Type) ([]*Type, error) {
	var result []*Type
	for {
		remaining := false
		for _, s := range seqs {
			if len(s) > 0 {
				remaining = true
				break
			}
		}
		if !remaining {
			return result, nil
		}

		var candidate *Type
		for _, s := range seqs {
			if len(s) == 0 {
				continue
			}
			head := s[0]
			if inAnyTail(head, seqs) {
				continue
			}
			candidate = head
			break
		}
		if candidate == nil {
			return nil, fmt.Errorf("bases cannot be consistently linearized")
		}

		result = append(result, candidate)
		for i, s := range seqs {
			if len(s) > 0 && s[0] == candidate {
				seqs[i] = s[1:]
			}
		}
	}
}

func inAnyTail(t *Type, seqs [][]*Type) bool {
	for _, s := range seqs {
		if len(s) == 0 {
			continue
		}
		for _, u := range s[1:] {
			if u == t {
				return true
			}
		}
	}
	return false
}

// dataclassLayout computes the cumulative slot list for a dataclass type.
// All dataclass ancestors must lie on a single subtype chain; otherwise two
// unrelated slot layouts would both claim the instance's slots.
func dataclassLayout(t *Type) ([]string, error) {
	if !t.Dataclass {
		return nil, nil
	}
	var ancestors []*Type
	for _, anc := range t.lin[1:] {
		if anc.Dataclass {
			ancestors = append(ancestors, anc)
		}
	}
	for i := 0; i+1 < len(ancestors); i++ {
		if !IsSubtype(ancestors[i], ancestors[i+1]) && !IsSubtype(ancestors[i+1], ancestors[i]) {
			return nil, fmt.Errorf(
				"dataclass %s: ancestors %s and %s have incompatible slot layouts",
				t.Name, ancestors[i].Name, ancestors[i+1].Name)
		}
	}
	var layout []string
	if len(ancestors) > 0 {
		layout = append(layout, ancestors[0].layout...)
	}
	for _, s := range t.SlotNames {
		for _, inherited := range layout {
			if s == inherited {
				return nil, fmt.Errorf("dataclass %s: slot %q shadows an inherited slot", t.Name, s)
			}
		}
		layout = append(layout, s)
	}
	return layout, nil
}
