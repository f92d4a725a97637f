package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/classvm/compiler"
	"github.com/chazu/classvm/pkg/bytecode"
	"github.com/chazu/classvm/store"
)

// ImageExt is the file extension of compiled program images.
const ImageExt = ".cvbc"

// imagePath returns the default image path for a unit file.
func imagePath(unit string) string {
	return strings.TrimSuffix(unit, filepath.Ext(unit)) + ImageExt
}

func writeImage(path string, p *bytecode.Program) error {
	data, err := bytecode.MarshalProgram(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// loadProgram reads either a compiled image or a unit file. Images are
// recognized by their magic bytes, not their extension.
func (a *app) loadProgram(ctx context.Context, path string) (*bytecode.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if bytes.HasPrefix(data, []byte("CVBC")) {
		return bytecode.UnmarshalProgram(data)
	}
	return a.compileSource(ctx, path, data)
}

// compileUnit compiles a unit file, consulting the image store first.
func (a *app) compileUnit(ctx context.Context, path string) (*bytecode.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return a.compileSource(ctx, path, data)
}

func (a *app) compileSource(ctx context.Context, path string, data []byte) (*bytecode.Program, error) {
	s, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if s != nil {
		defer s.Close()
	}

	debug := a.cfg.Compiler.DebugInfo
	key := store.SourceKey(data, debug)
	if s != nil {
		prog, err := s.Lookup(ctx, key)
		if err == nil {
			return prog, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			log.Warningf("image store: %v", err)
		}
	}

	unit, err := compiler.ParseUnit(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if unit.Name == "" {
		unit.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	c := compiler.NewCompiler()
	c.SetDebugInfo(debug)
	prog, err := c.Compile(unit)
	if err != nil {
		return nil, err
	}

	if s != nil {
		hash, err := s.Put(ctx, prog)
		if err == nil {
			err = s.Bind(ctx, key, hash)
		}
		if err != nil {
			log.Warningf("image store: %v", err)
		}
	}
	return prog, nil
}
