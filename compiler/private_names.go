package compiler

import "github.com/chazu/classvm/pkg/bytecode"

// emitPrivateNames creates one fresh tag per private field in declaration
// order and stores each into its environment slot. It runs at the start of
// the declaring function, before any class object exists, so every class
// and instance of this activation sees the same tags.
func emitPrivateNames(chunk *bytecode.Chunk, layout *EnvLayout) {
	for _, f := range layout.Fields {
		chunk.EmitCreatePrivateName(f.Name)
		chunk.EmitStoreEnv(f.Slot)
	}
}
