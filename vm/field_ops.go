package vm

import (
	"fmt"

	"github.com/chazu/classvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Private field operations
// ---------------------------------------------------------------------------

// Every operation consults the inline cache first and falls back to the
// tag-keyed shape lookup. The fallback alone decides the result; the cache
// only skips work the fallback would redo.

func operandTag(v Value) (*PrivateName, error) {
	tag, ok := v.AsPrivateName()
	if !ok {
		return nil, fmt.Errorf("expected private name, got %s", v.Kind())
	}
	return tag, nil
}

// fieldExists implements OpFieldExists and `#x in obj`.
func (vm *VM) fieldExists(obj, tagv Value) (bool, error) {
	tag, err := operandTag(tagv)
	if err != nil {
		return false, err
	}
	inst, ok := obj.AsInstance()
	if !ok {
		return false, nil
	}
	return inst.HasField(tag), nil
}

// installField implements OpInstallField.
func (vm *VM) installField(chunk *bytecode.Chunk, id uint8, obj, value, tagv Value) error {
	tag, err := operandTag(tagv)
	if err != nil {
		return err
	}
	inst, ok := obj.AsInstance()
	if !ok {
		return newTypeError("Cannot define private field %s on %s", tag.Description(), obj.Kind())
	}

	cell := vm.caches.Cell(chunk, id)
	if next, hit := cell.lookupInstall(inst.shape, tag); hit {
		inst.install(next, value)
		return nil
	}

	if inst.HasField(tag) {
		return &TypeError{Message: MsgDoubleInit}
	}
	from := inst.shape
	next := from.Transition(tag)
	inst.install(next, value)
	cell.updateInstall(from, tag, next)
	return nil
}

// getField implements OpGetField.
func (vm *VM) getField(chunk *bytecode.Chunk, id uint8, obj, tagv Value) (Value, error) {
	tag, err := operandTag(tagv)
	if err != nil {
		return Undefined, err
	}
	inst, ok := obj.AsInstance()
	if !ok {
		return Undefined, newTypeError(msgReadField, tag.Description())
	}

	cell := vm.caches.Cell(chunk, id)
	if off, hit := cell.lookupAccess(inst.shape, tag); hit {
		return inst.fields[off], nil
	}

	off, found := inst.shape.Lookup(tag)
	if !found {
		return Undefined, newTypeError(msgReadField, tag.Description())
	}
	cell.updateAccess(inst.shape, tag, off)
	return inst.fields[off], nil
}

// putField implements OpPutField.
func (vm *VM) putField(chunk *bytecode.Chunk, id uint8, obj, value, tagv Value) error {
	tag, err := operandTag(tagv)
	if err != nil {
		return err
	}
	inst, ok := obj.AsInstance()
	if !ok {
		return newTypeError(msgWriteField, tag.Description())
	}

	cell := vm.caches.Cell(chunk, id)
	if off, hit := cell.lookupAccess(inst.shape, tag); hit {
		inst.fields[off] = value
		return nil
	}

	off, found := inst.shape.Lookup(tag)
	if !found {
		return newTypeError(msgWriteField, tag.Description())
	}
	cell.updateAccess(inst.shape, tag, off)
	inst.fields[off] = value
	return nil
}
