package vm

import (
	"errors"
	"testing"

	"github.com/chazu/classvm/pkg/bytecode"
)

func newTestVM() (*VM, *bytecode.Chunk) {
	chunk := bytecode.NewNamedChunk("test")
	for i := 0; i < 4; i++ {
		chunk.AllocCacheID()
	}
	return NewVM(bytecode.NewProgram("test")), chunk
}

func tagValue(p *PrivateName) Value {
	return FromPrivateName(p)
}

func TestFieldCacheEmpty(t *testing.T) {
	c := &FieldCache{}
	if _, hit := c.lookupAccess(NewRootShape(), NewPrivateName("#x")); hit {
		t.Error("empty cell hit")
	}
	if c.Misses != 1 || c.Populated() {
		t.Errorf("Misses = %d, Populated = %v", c.Misses, c.Populated())
	}
}

func TestFieldCacheNeedsShapeAndTag(t *testing.T) {
	root := NewRootShape()
	x, y := NewPrivateName("#x"), NewPrivateName("#y")
	s := root.Transition(x).Transition(y)

	c := &FieldCache{}
	c.updateAccess(s, x, 0)

	if off, hit := c.lookupAccess(s, x); !hit || off != 0 {
		t.Errorf("lookup(s, x) = %d, %v", off, hit)
	}
	if _, hit := c.lookupAccess(s, y); hit {
		t.Error("same shape with another tag must miss")
	}
	if _, hit := c.lookupAccess(root.Transition(x), x); hit {
		t.Error("same tag on another shape must miss")
	}
	if _, hit := c.lookupInstall(s, x); hit {
		t.Error("access cell must not answer an install lookup")
	}
	if c.Hits != 1 || c.Misses != 3 {
		t.Errorf("Hits = %d, Misses = %d", c.Hits, c.Misses)
	}

	c.updateAccess(s, y, 1)
	if c.Rewrites != 1 {
		t.Errorf("Rewrites = %d, want 1", c.Rewrites)
	}
	if c.HitRate() != 25 {
		t.Errorf("HitRate = %v, want 25", c.HitRate())
	}
	c.Reset()
	if c.Populated() || c.Hits != 0 {
		t.Error("Reset did not clear the cell")
	}
}

func TestInstallFieldUsesCache(t *testing.T) {
	vm, chunk := newTestVM()
	x := NewPrivateName("#x")

	a := NewInstance(nil, vm.rootShape)
	b := NewInstance(nil, vm.rootShape)
	if err := vm.installField(chunk, 0, FromInstance(a), Number(1), tagValue(x)); err != nil {
		t.Fatalf("install a: %v", err)
	}
	if err := vm.installField(chunk, 0, FromInstance(b), Number(2), tagValue(x)); err != nil {
		t.Fatalf("install b: %v", err)
	}

	cell := vm.caches.Get(chunk, 0)
	if cell.Hits != 1 || cell.Misses != 1 {
		t.Errorf("Hits = %d, Misses = %d, want 1, 1", cell.Hits, cell.Misses)
	}
	if a.Shape() != b.Shape() {
		t.Error("instances with the same fields should share a shape")
	}
	if v, _ := b.Get(x); v.AsNumber() != 2 {
		t.Errorf("b.#x = %v, want 2", v)
	}
}

func TestInstallFieldTwiceFails(t *testing.T) {
	vm, chunk := newTestVM()
	x := NewPrivateName("#x")
	inst := NewInstance(nil, vm.rootShape)

	if err := vm.installField(chunk, 0, FromInstance(inst), Number(1), tagValue(x)); err != nil {
		t.Fatalf("install: %v", err)
	}
	err := vm.installField(chunk, 0, FromInstance(inst), Number(9), tagValue(x))

	var te *TypeError
	if !errors.As(err, &te) || te.Message != MsgDoubleInit {
		t.Fatalf("second install: %v", err)
	}
	if v, _ := inst.Get(x); v.AsNumber() != 1 {
		t.Errorf("#x = %v after failed install, want 1", v)
	}
	if inst.FieldCount() != 1 {
		t.Errorf("FieldCount = %d, want 1", inst.FieldCount())
	}
}

func TestSharedCacheIDStaysCorrect(t *testing.T) {
	// Saturated chunks route many sites to one cell.
	vm, chunk := newTestVM()
	x, y := NewPrivateName("#x"), NewPrivateName("#y")
	inst := NewInstance(nil, vm.rootShape)
	obj := FromInstance(inst)

	if err := vm.installField(chunk, 255, obj, Number(1), tagValue(x)); err != nil {
		t.Fatal(err)
	}
	if err := vm.installField(chunk, 255, obj, Number(2), tagValue(y)); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		vx, err := vm.getField(chunk, 255, obj, tagValue(x))
		if err != nil || vx.AsNumber() != 1 {
			t.Fatalf("round %d: #x = %v, %v", i, vx, err)
		}
		vy, err := vm.getField(chunk, 255, obj, tagValue(y))
		if err != nil || vy.AsNumber() != 2 {
			t.Fatalf("round %d: #y = %v, %v", i, vy, err)
		}
	}
	if err := vm.putField(chunk, 255, obj, Number(5), tagValue(x)); err != nil {
		t.Fatal(err)
	}
	if v, _ := inst.Get(x); v.AsNumber() != 5 {
		t.Errorf("#x = %v after put, want 5", v)
	}

	cell := vm.caches.Get(chunk, 255)
	if cell.Hits != 0 {
		t.Errorf("alternating tags should never hit, got %d hits", cell.Hits)
	}
	if cell.Rewrites == 0 {
		t.Error("expected rewrites on a shared cell")
	}
}

func TestGetFieldMissingTag(t *testing.T) {
	vm, chunk := newTestVM()
	x := NewPrivateName("#x")
	foreign := NewPrivateName("#x")
	inst := NewInstance(nil, vm.rootShape)
	obj := FromInstance(inst)

	if err := vm.installField(chunk, 0, obj, Number(1), tagValue(x)); err != nil {
		t.Fatal(err)
	}
	// Warm the cell with the real tag, then present the foreign one.
	if _, err := vm.getField(chunk, 1, obj, tagValue(x)); err != nil {
		t.Fatal(err)
	}

	_, err := vm.getField(chunk, 1, obj, tagValue(foreign))
	var te *TypeError
	if !errors.As(err, &te) || te.Message != "Cannot read private field #x" {
		t.Errorf("read with foreign tag: %v", err)
	}
	err = vm.putField(chunk, 1, obj, Number(3), tagValue(foreign))
	if !errors.As(err, &te) || te.Message != "Cannot write private field #x" {
		t.Errorf("write with foreign tag: %v", err)
	}
	if _, err := vm.getField(chunk, 2, Number(1), tagValue(x)); !errors.As(err, &te) {
		t.Errorf("read from a number: %v", err)
	}
	if ok, _ := vm.fieldExists(Number(1), tagValue(x)); ok {
		t.Error("a number holds no private fields")
	}
}

func TestCacheOperandMustBeTag(t *testing.T) {
	vm, chunk := newTestVM()
	inst := FromInstance(NewInstance(nil, vm.rootShape))

	if _, err := vm.getField(chunk, 0, inst, String("#x")); err == nil {
		t.Error("expected error for a non-tag key")
	}
}

func TestFieldCacheTableStats(t *testing.T) {
	table := NewFieldCacheTable()
	c1 := bytecode.NewNamedChunk("a")
	c2 := bytecode.NewNamedChunk("b")

	if table.Get(c1, 0) != nil {
		t.Error("Get on an unused chunk should return nil")
	}
	s := NewRootShape()
	x := NewPrivateName("#x")
	table.Cell(c1, 0).updateAccess(s, x, 0)
	table.Cell(c1, 0).lookupAccess(s, x)
	table.Cell(c2, 3).lookupAccess(s, x)

	stats := table.Stats()
	if stats.Chunks != 2 || stats.Populated != 1 || stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Stats = %+v", stats)
	}
	if stats.HitRate() != 50 {
		t.Errorf("HitRate = %v, want 50", stats.HitRate())
	}
	if cs := table.ChunkStats(c2); cs.Chunks != 1 || cs.Misses != 1 {
		t.Errorf("ChunkStats(b) = %+v", cs)
	}

	table.Reset()
	if table.Stats().Chunks != 0 {
		t.Error("Reset did not empty the table")
	}
}
