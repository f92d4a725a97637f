// Package bytecode defines the instruction set, chunk format and program
// image of classvm.
//
// The bytecode format is designed for:
//   - Compact representation (typically 1-5 bytes per instruction)
//   - Fast decoding (one-byte opcodes, big-endian fixed-width operands)
//   - Easy serialization (canonical CBOR images, storable in SQLite)
//
// # Architecture Overview
//
//   - Opcodes: stack-based instructions for constants, locals, lexical
//     environments, private fields, arithmetic, control flow and classes.
//
//   - Chunk: the compiled code of one function, constructor, initializer
//     or method, with its constant pool and local/parameter counts.
//
//   - Program: every chunk of a compilation unit plus class descriptors.
//     MarshalProgram writes the "CVBC" image format.
//
// # Operand encodings
//
// Environment loads and stores come in two forms. The compact form carries
// a one-byte index and is used for indices 0-255; the extended form (the
// _L opcodes) carries a four-byte index. SelectEnvOp and the Chunk emit
// helpers always pick the narrowest form, and Program.Validate rejects an
// extended instruction whose index would have fit the compact one. The
// outer forms add a one-byte depth and address an enclosing environment.
//
// Jumps are forward only and have a short (i16) and a long (i32) form.
// Chunk.InsertJump places a jump in front of code that is already emitted,
// so the distance is known and SelectJump picks the form. Constant pool
// references switch to a u32 form (CONST_L, CREATE_PRIVATE_NAME_L) once the
// pool outgrows a u16 index.
//
// Private field operations carry a one-byte inline cache id. Ids are
// allocated per chunk in emission order by CacheIDAllocator; once 255 is
// reached every further site shares it. A shared id only costs cache hits,
// never correctness, because the VM verifies every cache entry before use.
//
// # Disassembly
//
// Chunk.Disassemble and Program.Disassemble produce listings such as:
//
//	0000  LOAD_LOCAL 0 ; this
//	0002  LOAD_ENV 3
//	0004  GET_FIELD cache=1
//	0006  RETURN
package bytecode
