package vm

import (
	"fmt"

	"github.com/google/uuid"
)

// PrivateName is the identity tag of one private field declaration in one
// activation of its enclosing scope. Tags compare by pointer; the
// description is informational only, so two classes that both declare
// "#x" never share storage.
type PrivateName struct {
	description string
	id          uuid.UUID
}

// NewPrivateName creates a fresh tag.
func NewPrivateName(description string) *PrivateName {
	return &PrivateName{description: description, id: uuid.New()}
}

// Description returns the declared field name, e.g. "#count".
func (p *PrivateName) Description() string {
	return p.description
}

// ID returns the diagnostic id distinguishing tags with equal descriptions.
func (p *PrivateName) ID() uuid.UUID {
	return p.id
}

func (p *PrivateName) String() string {
	s := p.id.String()
	return fmt.Sprintf("%s@%s", p.description, s[:8])
}
