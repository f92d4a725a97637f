package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/chazu/classvm/compiler"
	"github.com/chazu/classvm/pkg/bytecode"
	"github.com/chazu/classvm/vm"
)

// stressResult summarizes one stress run.
type stressResult struct {
	Fields    int
	Calls     int
	Sum       float64
	Saturated bool
	Elapsed   time.Duration
	Stats     vm.CacheStats
}

func (a *app) stressCmd(args []string) error {
	fs := flag.NewFlagSet("stress", flag.ContinueOnError)
	fields := fs.Int("fields", 257, "Number of private fields")
	calls := fs.Int("calls", 100, "Number of sum/bump rounds")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r, err := runStress(*fields, *calls)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "class with %d fields, %d rounds in %v\n", r.Fields, r.Calls, r.Elapsed)
	fmt.Fprintf(a.out, "final sum %v, cache ids saturated: %v\n", r.Sum, r.Saturated)
	fmt.Fprintf(a.out, "inline caches: hits %d, misses %d, rewrites %d (%.1f%% hit rate)\n",
		r.Stats.Hits, r.Stats.Misses, r.Stats.Rewrites, r.Stats.HitRate())
	return nil
}

// runStress builds a class with n fields, alternates bump and sum k times
// and checks every sum against the closed form.
func runStress(n, k int) (*stressResult, error) {
	if n < 1 {
		return nil, fmt.Errorf("stress: need at least one field")
	}
	prog, err := compiler.Compile(compiler.WideClassProgram(n))
	if err != nil {
		return nil, err
	}
	machine := vm.NewVM(prog)

	start := time.Now()
	obj, err := machine.Run()
	if err != nil {
		return nil, err
	}
	base := float64(n * (n - 1) / 2)
	sum, err := machine.CallMethod(obj, "sum")
	if err != nil {
		return nil, err
	}
	if sum.AsNumber() != base {
		return nil, fmt.Errorf("stress: initial sum %v, want %v", sum, base)
	}
	for i := 0; i < k; i++ {
		if _, err := machine.CallMethod(obj, "bump"); err != nil {
			return nil, err
		}
		if sum, err = machine.CallMethod(obj, "sum"); err != nil {
			return nil, err
		}
		if want := base + float64((i+1)*n); sum.AsNumber() != want {
			return nil, fmt.Errorf("stress: round %d: sum %v, want %v", i, sum, want)
		}
	}

	inst, ok := obj.AsInstance()
	if !ok {
		return nil, fmt.Errorf("stress: main returned %v", obj)
	}
	m, _ := inst.Class().Method("sum")
	return &stressResult{
		Fields:    n,
		Calls:     k,
		Sum:       sum.AsNumber(),
		Saturated: m.Chunk().Flags&bytecode.ChunkFlagCacheSaturated != 0,
		Elapsed:   time.Since(start),
		Stats:     machine.CacheStats(),
	}, nil
}
