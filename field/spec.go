// Package field describes the quantities stored per point: their shape, their
// temporal arity and how a set of them is classified for allocation.
package field

import (
	"cmp"
	"fmt"
	"github.com/pkg/errors"
	"slices"
)

// ErrInvalidSpec is returned when a field specification cannot be classified.
var ErrInvalidSpec = errors.New("invalid field specification")

// Length is the shape of a field
type Length int

const (
	Scalar   Length = iota // One value per point
	Vector3D               // Three values per point
	Bond                   // One value per bond of the point
)

func (l Length) String() string {
	switch l {
	case Scalar:
		return "scalar"
	case Vector3D:
		return "vector3d"
	case Bond:
		return "bond"
	default:
		return fmt.Sprintf("length(%d)", int(l))
	}
}

// Valid reports whether l is a known shape.
func (l Length) Valid() bool { return l >= Scalar && l <= Bond }

// Arch is the temporal arity of a field
type Arch int

const (
	Stateless Arch = iota // One buffer, StepNone
	Stateful              // Two buffers, StepN and StepNP1
)

func (a Arch) String() string {
	switch a {
	case Stateless:
		return "stateless"
	case Stateful:
		return "stateful"
	default:
		return fmt.Sprintf("arch(%d)", int(a))
	}
}

// Valid reports whether a is a known arity.
func (a Arch) Valid() bool { return a == Stateless || a == Stateful }

// Step selects the temporal role of a buffer
type Step int

const (
	StepNone Step = iota // Stateless data
	StepN                // Current step
	StepNP1              // Next step
)

func (s Step) String() string {
	switch s {
	case StepNone:
		return "none"
	case StepN:
		return "n"
	case StepNP1:
		return "np1"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Spec identifies one quantity. Specs are compared by value.
type Spec struct {
	Label  string
	Length Length
	Arch   Arch
}

// NewSpec returns the spec with the given shape, arity and label.
func NewSpec(length Length, arch Arch, label string) Spec {
	return Spec{Label: label, Length: length, Arch: arch}
}

// Compare orders specs by shape, then arity, then label.
func (s Spec) Compare(other Spec) int {
	if c := cmp.Compare(s.Length, other.Length); c != 0 {
		return c
	}
	if c := cmp.Compare(s.Arch, other.Arch); c != 0 {
		return c
	}
	return cmp.Compare(s.Label, other.Label)
}

func (s Spec) String() string {
	return fmt.Sprintf("%s(%s,%s)", s.Label, s.Length, s.Arch)
}

// Validate checks shape and arity.
func (s Spec) Validate() error {
	switch {
	case !s.Length.Valid():
		return errors.Wrapf(ErrInvalidSpec, "%s: unknown shape", s)
	case !s.Arch.Valid():
		return errors.Wrapf(ErrInvalidSpec, "%s: unknown arity", s)
	}
	return nil
}

// Dedup returns the specs sorted with exact duplicates removed. The input is
// not modified.
func Dedup(specs []Spec) []Spec {
	sorted := slices.Clone(specs)
	slices.SortFunc(sorted, Spec.Compare)
	return slices.Compact(sorted)
}
