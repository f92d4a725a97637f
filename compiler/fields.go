package compiler

import "github.com/chazu/classvm/pkg/bytecode"

// emitFieldInstaller emits the field installation sequence of fs.class
// against the receiver in local 0:
//
//	LOAD_LOCAL 0; <tag of first field>; FIELD_EXISTS; JUMP_TRUE fail
//	for each field: LOAD_LOCAL 0; <init>; <tag>; INSTALL_FIELD cache=i
//
// One cache id per field is reserved before any initializer is compiled,
// so install sites take the lowest ids of the chunk. A single existence
// check covers every field: the fields of one class are always installed
// together, so the first one is present iff all are. The JUMP_TRUE is
// inserted by emitInstallFailure once the distance is known; the returned
// offset marks where it goes, or -1 when the class has no fields.
func (c *Compiler) emitFieldInstaller(fs *funcState) int {
	fields := fs.class.Fields
	if len(fields) == 0 {
		return -1
	}
	chunk := fs.chunk

	ids := make([]uint8, len(fields))
	for i := range fields {
		ids[i] = chunk.AllocCacheID()
	}

	first, _ := fs.scope.layout.FieldSlot(fs.class, fields[0].Name)
	chunk.EmitU8(bytecode.OpLoadLocal, 0)
	chunk.EmitLoadEnv(first)
	chunk.Emit(bytecode.OpFieldExists)
	guard := chunk.CurrentOffset()

	// Initializers see the receiver and captured bindings but not the
	// constructor's parameters.
	init := &funcState{
		chunk:  chunk,
		locals: make(map[string]uint8),
		scope:  fs.scope,
		class:  fs.class,
	}
	for i, f := range fields {
		slot, _ := fs.scope.layout.FieldSlot(fs.class, f.Name)
		chunk.EmitU8(bytecode.OpLoadLocal, 0)
		c.compileOptional(init, f.Init)
		chunk.EmitLoadEnv(slot)
		chunk.EmitCacheOp(bytecode.OpInstallField, ids[i])
	}
	return guard
}

// emitInstallFailure emits the block reached when the installer finds the
// receiver already initialized, and the jump to it at guard. Large classes
// get the long jump form.
func (c *Compiler) emitInstallFailure(fs *funcState, guard int) {
	if guard < 0 {
		return
	}
	c.insertJump(fs, guard, bytecode.OpJumpTrue, fs.chunk.CurrentOffset())
	fs.chunk.EmitThrowTypeError(bytecode.DoubleInitMessage)
}
