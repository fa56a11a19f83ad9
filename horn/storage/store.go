// Package storage persists ground facts between compilations. Facts are
// keyed by relation and by the canonical byte encoding of their argument
// tuple, so a relation scan returns tuples in a deterministic order and
// re-asserting a fact is idempotent.
package storage

import (
	"github.com/wbrown/horn/horn"
)

// Store is the interface for fact persistence.
type Store interface {
	// Write operations
	Assert(facts []horn.Fact) error
	Retract(facts []horn.Fact) error

	// Read operations
	LoadRelation(relation string) (*horn.FactTable, error)
	Relations() ([]string, error)

	// Lifecycle
	Close() error
}

// LoadInto reads every persisted relation named by the registry into the
// program's fact list, after any facts already present.
func LoadInto(s Store, p *horn.Program) error {
	for _, name := range p.Registry.RelationNames() {
		table, err := s.LoadRelation(name)
		if err != nil {
			return err
		}
		for _, tuple := range table.Tuples {
			p.Facts = append(p.Facts, horn.Fact{Relation: name, Args: tuple})
		}
	}
	return nil
}
