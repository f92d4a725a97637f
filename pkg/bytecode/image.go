package bytecode

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// imageMagic prefixes every encoded program image: "CVBC" (ClassVM ByteCode).
var imageMagic = []byte{'C', 'V', 'B', 'C'}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalProgram serializes a Program to a CBOR image. Encoding is
// canonical, so equal programs produce equal bytes.
func MarshalProgram(p *Program) ([]byte, error) {
	body, err := cborEncMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("bytecode: marshal program: %w", err)
	}
	out := make([]byte, 0, len(imageMagic)+len(body))
	out = append(out, imageMagic...)
	return append(out, body...), nil
}

// UnmarshalProgram decodes and validates a CBOR program image.
func UnmarshalProgram(data []byte) (*Program, error) {
	if len(data) < len(imageMagic) || string(data[:len(imageMagic)]) != string(imageMagic) {
		return nil, fmt.Errorf("bytecode: invalid image magic")
	}
	var p Program
	if err := cbor.Unmarshal(data[len(imageMagic):], &p); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal program: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("bytecode: invalid program: %w", err)
	}
	return &p, nil
}

// ContentHash returns the SHA-256 of the program's canonical image.
func ContentHash(p *Program) ([32]byte, error) {
	data, err := MarshalProgram(p)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}
