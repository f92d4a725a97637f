// cvm - compile, run and inspect classvm programs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chazu/classvm/manifest"
	"github.com/chazu/classvm/store"
	"github.com/chazu/classvm/vm"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("classvm.cvm")

func main() {
	projectDir := flag.String("C", ".", "Project directory (searched upwards for classvm.toml)")
	verbosity := flag.Int("v", -1, "Log verbosity (overrides the manifest; 0 = errors only)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cvm [options] <command> [arguments]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  compile [-o out] <unit.toml>   Compile a unit to a program image\n")
		fmt.Fprintf(os.Stderr, "  run [-trace] [-stats] [file]    Run a unit or image (default: manifest entry)\n")
		fmt.Fprintf(os.Stderr, "  dis <file>                      Disassemble a unit or image\n")
		fmt.Fprintf(os.Stderr, "  stress [-fields n] [-calls k]   Exercise a class with n private fields\n")
		fmt.Fprintf(os.Stderr, "  images                          List cached images\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  cvm run examples/units/counter.toml\n")
		fmt.Fprintf(os.Stderr, "  cvm run examples/units/factory.toml\n")
		fmt.Fprintf(os.Stderr, "  cvm dis examples/units/point.toml\n")
		fmt.Fprintf(os.Stderr, "  cvm stress -fields 257\n")
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*projectDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *verbosity >= 0 {
		cfg.Log.Verbosity = *verbosity
	}
	commonlog.Configure(cfg.Log.Verbosity, cfg.LogFile())

	app := &app{cfg: cfg, out: os.Stdout}
	if err := app.dispatch(context.Background(), flag.Arg(0), flag.Args()[1:]); err != nil {
		var te *vm.TypeError
		if errors.As(err, &te) {
			fmt.Fprintf(os.Stderr, "Uncaught %v\n", te)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// loadConfig finds the project manifest, falling back to defaults.
func loadConfig(dir string) (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return manifest.Default(dir)
	}
	return m, nil
}

// app carries the configuration shared by every command.
type app struct {
	cfg *manifest.Manifest
	out io.Writer
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "compile":
		return a.compileCmd(ctx, args)
	case "run":
		return a.runCmd(ctx, args)
	case "dis":
		return a.disCmd(ctx, args)
	case "stress":
		return a.stressCmd(args)
	case "images":
		return a.imagesCmd(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// openStore opens the image cache when the manifest enables it.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	if !a.cfg.Store.Enabled {
		return nil, nil
	}
	return store.Open(ctx, a.cfg.StorePath())
}

func (a *app) compileCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	out := fs.String("o", "", "Output image path (default: <unit>.cvbc)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("compile: expected one unit file")
	}
	path := fs.Arg(0)

	prog, err := a.compileUnit(ctx, path)
	if err != nil {
		return err
	}
	dest := *out
	if dest == "" {
		dest = imagePath(path)
	}
	if err := writeImage(dest, prog); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %s (%d functions, %d classes)\n", dest, len(prog.Functions), len(prog.Classes))
	return nil
}

func (a *app) runCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	trace := fs.Bool("trace", a.cfg.VM.Trace, "Trace every instruction")
	stats := fs.Bool("stats", false, "Print inline cache statistics")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path, err := a.targetPath(fs.Args())
	if err != nil {
		return err
	}
	prog, err := a.loadProgram(ctx, path)
	if err != nil {
		return err
	}

	machine := vm.NewVM(prog)
	machine.Trace = *trace
	if a.cfg.VM.StackSize > 0 {
		machine.StackSize = a.cfg.VM.StackSize
	}
	if a.cfg.VM.MaxDepth > 0 {
		machine.MaxDepth = a.cfg.VM.MaxDepth
	}

	result, err := machine.Run()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, result)
	if *stats {
		printStats(a.out, machine)
	}
	return nil
}

func (a *app) disCmd(ctx context.Context, args []string) error {
	path, err := a.targetPath(args)
	if err != nil {
		return err
	}
	prog, err := a.loadProgram(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, prog.Disassemble())
	return nil
}

func (a *app) imagesCmd(ctx context.Context) error {
	if !a.cfg.Store.Enabled {
		return fmt.Errorf("image store disabled (set [store] enabled = true or %s)", manifest.EnvStore)
	}
	s, err := store.Open(ctx, a.cfg.StorePath())
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(a.out, "%s  %-20s %8d bytes  %s\n", e.Hash[:16], e.Name, e.Size, e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// targetPath returns the single file argument, or the manifest's entry
// unit when none is given.
func (a *app) targetPath(args []string) (string, error) {
	switch len(args) {
	case 0:
		u, err := a.cfg.EntryUnit()
		if err != nil {
			return "", err
		}
		return u.Path, nil
	case 1:
		return args[0], nil
	default:
		return "", fmt.Errorf("expected at most one file, got %d", len(args))
	}
}

func printStats(w io.Writer, machine *vm.VM) {
	s := machine.CacheStats()
	fmt.Fprintf(w, "inline caches: %d chunks, %d cells populated\n", s.Chunks, s.Populated)
	fmt.Fprintf(w, "  hits %d, misses %d, rewrites %d (%.1f%% hit rate)\n", s.Hits, s.Misses, s.Rewrites, s.HitRate())
}
