package vm

import (
	"testing"

	"github.com/chazu/classvm/compiler"
)

// =============================================================================
// Benchmark Helpers
// =============================================================================

// benchmarkWide compiles and runs a wide class program and returns the VM
// and the instance main produced.
func benchmarkWide(b *testing.B, n int) (*VM, Value) {
	b.Helper()
	vm := NewVM(compileProgram(b, compiler.WideClassProgram(n)))
	return vm, runMain(b, vm)
}

// =============================================================================
// Private field access
// =============================================================================

// BenchmarkFieldReadCached measures reads where every site owns a cache id.
func BenchmarkFieldReadCached(b *testing.B) {
	vm, obj := benchmarkWide(b, 64)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := vm.CallMethod(obj, "sum"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFieldReadSaturated measures reads past the cache id limit, where
// the trailing sites share cell 255.
func BenchmarkFieldReadSaturated(b *testing.B) {
	vm, obj := benchmarkWide(b, 512)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := vm.CallMethod(obj, "sum"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFieldReadUncached measures the shape lookup slow path.
func BenchmarkFieldReadUncached(b *testing.B) {
	vm, obj := benchmarkWide(b, 64)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		vm.ResetCaches()
		if _, err := vm.CallMethod(obj, "sum"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFieldWrite measures read-modify-write of every field.
func BenchmarkFieldWrite(b *testing.B) {
	vm, obj := benchmarkWide(b, 64)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := vm.CallMethod(obj, "bump"); err != nil {
			b.Fatal(err)
		}
	}
}

// =============================================================================
// Construction
// =============================================================================

// BenchmarkConstruct measures running the field installer.
func BenchmarkConstruct(b *testing.B) {
	vm, obj := benchmarkWide(b, 16)
	inst, _ := obj.AsInstance()
	cls := inst.Class()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := vm.Construct(cls); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkShapeLookup measures the identity-keyed slow path directly.
func BenchmarkShapeLookup(b *testing.B) {
	s := NewRootShape()
	var last *PrivateName
	for i := 0; i < 32; i++ {
		last = NewPrivateName("#f")
		s = s.Transition(last)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := s.Lookup(last); !ok {
			b.Fatal("missing tag")
		}
	}
}
