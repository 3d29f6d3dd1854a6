// Package symtab provides the process-wide unique-symbol generator used by
// every lowering pass. A UniqueSym pairs a source name, kept for
// diagnostics, with a monotonic integer that is the only thing equality
// actually compares.
package symtab

import "sync/atomic"

// UniqueSym is a globally unique binding identifier. Two symbols are equal
// iff their IDs match; the Name field exists purely for error messages and
// debug dumps.
type UniqueSym struct {
	Name string
	ID   uint64
}

// Equal reports whether s and other name the same binding.
func (s UniqueSym) Equal(other UniqueSym) bool { return s.ID == other.ID }

func (s UniqueSym) String() string {
	if s.Name == "" {
		return "_"
	}
	return s.Name
}

// Table is the process-wide counter backing symbol generation. Its only
// operation is atomic-increment; ordering between increments is immaterial
// beyond uniqueness, per the relaxed-counter contract documented for this
// compiler's symbol table.
type Table struct {
	next uint64
}

// NewTable returns a fresh, empty counter. Each compilation should own one.
func NewTable() *Table { return &Table{} }

// Fresh allocates a brand new symbol carrying name for diagnostics.
func (t *Table) Fresh(name string) UniqueSym {
	id := atomic.AddUint64(&t.next, 1)
	return UniqueSym{Name: name, ID: id}
}

// FreshTemp allocates a fresh symbol with a conventional "tmp" prefix, used
// by atomize and explicate when a binding has no source-level name.
func (t *Table) FreshTemp(hint string) UniqueSym {
	return t.Fresh("tmp." + hint)
}
