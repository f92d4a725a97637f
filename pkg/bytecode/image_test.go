package bytecode

import (
	"bytes"
	"strings"
	"testing"
)

// testProgram builds a small, valid program with one class.
func testProgram() *Program {
	p := NewProgram("image-test")

	main := NewNamedChunk("main")
	main.LocalCount = 2
	main.EmitCreateEnv(1)
	main.EmitCreatePrivateName("#x")
	main.EmitStoreEnv(0)
	main.EmitU16(OpMakeClass, 0)
	main.EmitU8(OpStoreLocal, 1)
	main.Emit(OpReturnUndefined)
	p.Main = p.AddFunction(main)

	ctor := NewNamedChunk("C.constructor")
	ctor.Flags |= ChunkFlagConstructor
	ctor.LocalCount = 1
	id := ctor.AllocCacheID()
	ctor.Emit(OpNewInstance)
	ctor.EmitU8(OpStoreLocal, 0)
	ctor.EmitU8(OpLoadLocal, 0)
	ctor.EmitConstant(NumberConstant(1.5))
	ctor.EmitLoadEnv(0)
	ctor.EmitCacheOp(OpInstallField, id)
	ctor.EmitU8(OpLoadLocal, 0)
	ctor.Emit(OpReturn)

	init := NewNamedChunk("C.<instance_members_initializer>")
	init.Flags |= ChunkFlagInitializer
	init.LocalCount = 1
	init.Emit(OpReturnUndefined)

	p.AddClass(&ClassInfo{
		Name:        "C",
		Constructor: p.AddFunction(ctor),
		Initializer: p.AddFunction(init),
		Fields:      []string{"#x"},
		FieldSlots:  []uint32{0},
	})
	return p
}

func TestProgramImageRoundTrip(t *testing.T) {
	p := testProgram()

	data, err := MarshalProgram(p)
	if err != nil {
		t.Fatalf("MarshalProgram: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("CVBC")) {
		t.Errorf("image does not start with magic")
	}

	got, err := UnmarshalProgram(data)
	if err != nil {
		t.Fatalf("UnmarshalProgram: %v", err)
	}
	if got.Name != p.Name || len(got.Functions) != 3 || len(got.Classes) != 1 {
		t.Fatalf("decoded %s with %d functions, %d classes", got.Name, len(got.Functions), len(got.Classes))
	}
	if !bytes.Equal(got.Functions[1].Code, p.Functions[1].Code) {
		t.Error("constructor code differs after round trip")
	}
	if got.Functions[1].CacheSites != 1 {
		t.Errorf("CacheSites = %d, want 1", got.Functions[1].CacheSites)
	}
	if got.Functions[1].GetConstant(0).Number != 1.5 {
		t.Errorf("constant = %+v, want 1.5", got.Functions[1].GetConstant(0))
	}

	again, err := MarshalProgram(got)
	if err != nil {
		t.Fatalf("MarshalProgram (second): %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Error("canonical encoding is not stable across a round trip")
	}
}

func TestContentHashStable(t *testing.T) {
	h1, err := ContentHash(testProgram())
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	h2, err := ContentHash(testProgram())
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	if h1 != h2 {
		t.Error("equal programs hash differently")
	}

	p := testProgram()
	p.Name = "other"
	h3, _ := ContentHash(p)
	if h3 == h1 {
		t.Error("different programs hash the same")
	}
}

func TestUnmarshalProgramErrors(t *testing.T) {
	if _, err := UnmarshalProgram([]byte("nope")); err == nil {
		t.Error("expected error for bad magic")
	}
	if _, err := UnmarshalProgram([]byte("CVBC\xff\xff")); err == nil {
		t.Error("expected error for bad body")
	}

	p := testProgram()
	p.Classes[0].Constructor = 99
	data, err := MarshalProgram(p)
	if err != nil {
		t.Fatalf("MarshalProgram: %v", err)
	}
	if _, err := UnmarshalProgram(data); err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestValidateRejectsWideCompactIndex(t *testing.T) {
	p := testProgram()
	main := p.Functions[0]
	// LOAD_ENV_L with an index that fits the compact form
	main.Code = append([]byte{byte(OpLoadEnvL), 0, 0, 0, 5, byte(OpPop)}, main.Code...)

	if err := p.Validate(); err == nil {
		t.Error("expected error for extended op carrying a compact index")
	}
}

func TestValidateRejectsBadJump(t *testing.T) {
	p := testProgram()
	c := p.Functions[2]
	c.Code = []byte{byte(OpJump), 0x10, 0x00}

	if err := p.Validate(); err == nil {
		t.Error("expected error for jump outside code")
	}
}

func TestValidateRejectsMissingEntries(t *testing.T) {
	p := testProgram()
	p.Functions[2] = nil
	if err := p.Validate(); err == nil || !strings.Contains(err.Error(), "function 2 is missing") {
		t.Errorf("nil function: got %v", err)
	}

	p = testProgram()
	p.Classes = append(p.Classes, nil)
	if err := p.Validate(); err == nil || !strings.Contains(err.Error(), "class 1 is missing") {
		t.Errorf("nil class: got %v", err)
	}
}

func TestUnmarshalProgramRejectsNilFunction(t *testing.T) {
	p := testProgram()
	p.Functions = append(p.Functions, nil)
	data, err := MarshalProgram(p)
	if err != nil {
		t.Fatalf("MarshalProgram: %v", err)
	}
	if _, err := UnmarshalProgram(data); err == nil {
		t.Error("expected error for an image with a null function")
	}
}

func TestValidateBoundsCreateEnv(t *testing.T) {
	p := testProgram()
	main := p.Functions[0]
	// CREATE_ENV 0xFFFFFFF0 in place of CREATE_ENV 1
	copy(main.Code[1:5], []byte{0xFF, 0xFF, 0xFF, 0xF0})
	if err := p.Validate(); err == nil || !strings.Contains(err.Error(), "only slots below 1") {
		t.Errorf("oversized environment: got %v", err)
	}

	p = testProgram()
	p.Functions[0].Code = append([]byte{byte(OpCreateEnv), 0, 0, 0, 1}, p.Functions[0].Code...)
	if err := p.Validate(); err == nil || !strings.Contains(err.Error(), "already created") {
		t.Errorf("second CREATE_ENV: got %v", err)
	}
}

func TestValidateRejectsStoreOutsideEnv(t *testing.T) {
	p := testProgram()
	main := p.Functions[0]
	// STORE_ENV 0 becomes STORE_ENV 4 in a one-slot environment
	for i := 0; i < len(main.Code); {
		in, err := Decode(main.Code, i)
		if err != nil {
			t.Fatal(err)
		}
		if in.Op == OpStoreEnv {
			main.Code[i+1] = 4
		}
		i += in.Len()
	}
	if err := p.Validate(); err == nil || !strings.Contains(err.Error(), "outside environment") {
		t.Errorf("got %v", err)
	}
}

func TestValidateRejectsShortFormInLongJump(t *testing.T) {
	p := testProgram()
	c := p.Functions[2]
	c.Code = []byte{byte(OpJumpL), 0, 0, 0, 0, byte(OpReturnUndefined)}

	if err := p.Validate(); err == nil || !strings.Contains(err.Error(), "fits the short form") {
		t.Errorf("got %v", err)
	}
}

func TestValidateRejectsDepthZeroOuterAccess(t *testing.T) {
	p := testProgram()
	c := p.Functions[2]
	c.Code = []byte{byte(OpLoadOuterEnv), 0, 0, byte(OpPop), byte(OpReturnUndefined)}

	if err := p.Validate(); err == nil || !strings.Contains(err.Error(), "depth 0") {
		t.Errorf("got %v", err)
	}
}
