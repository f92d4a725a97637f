package compiler

import "github.com/chazu/classvm/pkg/bytecode"

// Private field sites take their cache id at the position of the #name
// token: after the object expression, before a written value.

// fieldSlot resolves a private name against the home class of fs. Class
// code runs in the declaring scope's environment, so the slot is always at
// depth 0.
func (c *Compiler) fieldSlot(fs *funcState, field string) (uint32, bool) {
	if fs.class == nil {
		c.errorf("%s: private name %s outside a class body", fs.chunk.Name, field)
		return 0, false
	}
	var slot uint32
	ok := false
	if fs.scope != nil {
		slot, ok = fs.scope.layout.FieldSlot(fs.class, field)
	}
	if !ok {
		c.errorf("%s: undeclared private name %s in class %s", fs.chunk.Name, field, fs.class.Name)
	}
	return slot, ok
}

func (c *Compiler) compilePrivateGet(fs *funcState, e *PrivateGet) {
	c.compileExpr(fs, e.Object)
	slot, ok := c.fieldSlot(fs, e.Field)
	if !ok {
		return
	}
	id := fs.chunk.AllocCacheID()
	fs.chunk.EmitLoadEnv(slot)
	fs.chunk.EmitCacheOp(bytecode.OpGetField, id)
}

func (c *Compiler) compilePrivatePut(fs *funcState, e *PrivatePut) {
	c.compileExpr(fs, e.Object)
	slot, ok := c.fieldSlot(fs, e.Field)
	if !ok {
		return
	}
	id := fs.chunk.AllocCacheID()
	c.compileExpr(fs, e.Value)
	fs.chunk.EmitLoadEnv(slot)
	fs.chunk.EmitCacheOp(bytecode.OpPutField, id)
}

func (c *Compiler) compilePrivateIn(fs *funcState, e *PrivateIn) {
	c.compileExpr(fs, e.Object)
	slot, ok := c.fieldSlot(fs, e.Field)
	if !ok {
		return
	}
	fs.chunk.EmitLoadEnv(slot)
	fs.chunk.Emit(bytecode.OpFieldExists)
}
