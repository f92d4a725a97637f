package compiler

// FieldSlot records where a private field's tag lives in the environment.
type FieldSlot struct {
	Class *ClassDecl
	Name  string
	Slot  uint32
}

// EnvLayout is the environment shape of one scope: one slot per captured
// binding and per private field declaration, dense from 0 in source order.
type EnvLayout struct {
	Size     uint32
	Bindings map[string]uint32
	Fields   []FieldSlot

	fields map[*ClassDecl]map[string]uint32
}

// AllocateEnvironment assigns environment slots to decls. Class and
// function bindings themselves are not captured; only vars and private
// fields are.
func AllocateEnvironment(decls []Decl) *EnvLayout {
	l := &EnvLayout{
		Bindings: make(map[string]uint32),
		fields:   make(map[*ClassDecl]map[string]uint32),
	}
	for _, d := range decls {
		switch d := d.(type) {
		case *VarDecl:
			if _, ok := l.Bindings[d.Name]; !ok {
				l.Bindings[d.Name] = l.Size
			}
			l.Size++
		case *ClassDecl:
			slots := make(map[string]uint32, len(d.Fields))
			for _, f := range d.Fields {
				if _, ok := slots[f.Name]; !ok {
					slots[f.Name] = l.Size
				}
				l.Fields = append(l.Fields, FieldSlot{Class: d, Name: f.Name, Slot: l.Size})
				l.Size++
			}
			l.fields[d] = slots
		}
	}
	if l.Size > 0 {
		log.Debugf("environment layout: %d slots (%d fields)", l.Size, len(l.Fields))
	}
	return l
}

// Binding returns the slot of a captured binding.
func (l *EnvLayout) Binding(name string) (uint32, bool) {
	slot, ok := l.Bindings[name]
	return slot, ok
}

// FieldSlot returns the slot holding the tag of cls's field name.
func (l *EnvLayout) FieldSlot(cls *ClassDecl, name string) (uint32, bool) {
	slot, ok := l.fields[cls][name]
	return slot, ok
}

// ClassSlots returns the tag slots of cls's fields in declaration order.
func (l *EnvLayout) ClassSlots(cls *ClassDecl) []uint32 {
	slots := make([]uint32, 0, len(cls.Fields))
	for _, f := range l.Fields {
		if f.Class == cls {
			slots = append(slots, f.Slot)
		}
	}
	return slots
}

// envScope is one link of the compile-time environment chain. Only scopes
// that create an environment appear; a function without one sees its
// parent's chain unchanged, exactly as it does at run time.
type envScope struct {
	layout *EnvLayout
	parent *envScope
}

// resolve finds a captured binding and the number of environments to walk
// out to reach it.
func (s *envScope) resolve(name string) (depth int, slot uint32, ok bool) {
	for ; s != nil; s = s.parent {
		if slot, ok := s.layout.Binding(name); ok {
			return depth, slot, true
		}
		depth++
	}
	return 0, 0, false
}
