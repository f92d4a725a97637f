package vm

// Shape describes the private-field layout of an instance: which tags it
// holds and at what offset. Shapes form a transition tree rooted at the
// VM's empty shape; instances that receive the same tags in the same order
// end up with the same *Shape, which is what inline caches compare.
//
// A straight run of transitions shares one offset table, so a shape costs
// a constant amount of memory and Lookup is a single map access. A shape
// only sees the first count entries of its table. A new table is started
// when a shape that is not the table's tail grows a second branch.
//
// Shapes are owned by one VM and are not safe for concurrent mutation.
type Shape struct {
	table       *shapeTable
	count       int
	transitions map[*PrivateName]*Shape
}

type shapeTable struct {
	keys    []*PrivateName
	offsets map[*PrivateName]int
}

// NewRootShape returns an empty shape.
func NewRootShape() *Shape {
	return &Shape{table: &shapeTable{offsets: make(map[*PrivateName]int)}}
}

// FieldCount returns the number of tags in the layout.
func (s *Shape) FieldCount() int {
	return s.count
}

// Lookup returns the storage offset of tag. This is the identity-keyed slow
// path used on inline cache misses.
func (s *Shape) Lookup(tag *PrivateName) (int, bool) {
	off, ok := s.table.offsets[tag]
	if !ok || off >= s.count {
		return -1, false
	}
	return off, true
}

// Transition returns the shape reached by appending tag, which must not
// already be in the layout. The child is created on first use and reused
// afterwards.
func (s *Shape) Transition(tag *PrivateName) *Shape {
	if next, ok := s.transitions[tag]; ok {
		return next
	}
	t := s.table
	if len(t.keys) != s.count {
		t = &shapeTable{
			keys:    make([]*PrivateName, s.count, s.count+1),
			offsets: make(map[*PrivateName]int, s.count+1),
		}
		copy(t.keys, s.table.keys[:s.count])
		for i, k := range t.keys {
			t.offsets[k] = i
		}
	}
	t.offsets[tag] = len(t.keys)
	t.keys = append(t.keys, tag)

	next := &Shape{table: t, count: s.count + 1}
	if s.transitions == nil {
		s.transitions = make(map[*PrivateName]*Shape)
	}
	s.transitions[tag] = next
	return next
}

// keys returns the tags in offset order. The slice is shared.
func (s *Shape) keys() []*PrivateName {
	return s.table.keys[:s.count]
}
