// Package target defines coverage objectives tracked by the archive.
package target

import "fmt"

// Kind is the family of coverage criterion a target belongs to.
type Kind string

const (
	KindBranch    Kind = "branch"
	KindLine      Kind = "line"
	KindMutant    Kind = "mutant"
	KindMethod    Kind = "method"
	KindException Kind = "exception"
)

// Kinds lists every kind in a fixed reporting order.
func Kinds() []Kind {
	return []Kind{KindBranch, KindLine, KindMutant, KindMethod, KindException}
}

// Target identifies one coverage objective inside one method of one class.
// It is a comparable value and is used directly as a map key.
type Target struct {
	Class  string `json:"class" yaml:"class"`
	Method string `json:"method" yaml:"method"`
	Kind   Kind   `json:"kind" yaml:"kind"`
	ID     string `json:"id" yaml:"id"` // unique within (Class, Method, Kind), e.g. "b3:true"
}

// New creates a target.
func New(class, method string, kind Kind, id string) Target {
	return Target{Class: class, Method: method, Kind: kind, ID: id}
}

// MethodKey returns the key of the method owning this target.
func (t Target) MethodKey() string {
	return t.Class + t.Method
}

// String returns a human-readable form, e.g. "Calc.add#branch:b0:true".
func (t Target) String() string {
	return fmt.Sprintf("%s.%s#%s:%s", t.Class, t.Method, t.Kind, t.ID)
}
