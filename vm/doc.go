// Package vm implements the classvm virtual machine.
//
// This package contains:
//   - Tagged value representation
//   - Lexical environments and private name tags
//   - Shape-based private field storage
//   - Inline caches for private field access
//   - Bytecode interpreter
package vm
