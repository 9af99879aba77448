package shader

import (
	"encoding/binary"
	"slices"
	"strings"
	"testing"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

func TestSimulationSourceSubstitutesWorkgroupSize(t *testing.T) {
	src, err := Simulation(64)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(src, "@workgroup_size(64)") {
		t.Fatal("workgroup size not substituted")
	}
	if strings.Contains(src, "{{") {
		t.Fatal("template markers left in kernel source")
	}
	if _, err := Simulation(0); err == nil {
		t.Fatal("expected error for zero workgroup size")
	}
}

func TestKernelsCompile(t *testing.T) {
	sim, err := Simulation(64)
	if err != nil {
		t.Fatal(err)
	}
	for name, src := range map[string]string{"simulation": sim, "cell": Cell()} {
		code, err := Compile(name, src)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(code) == 0 {
			t.Fatalf("%s: empty SPIR-V module", name)
		}
		if code[0] != spirvMagic {
			t.Fatalf("%s: not a SPIR-V module (first word %#x)", name, code[0])
		}
	}
}

func TestCompileRejectsBrokenSource(t *testing.T) {
	if _, err := Compile("broken", "fn main( {"); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestCompileBytesMatchesWords(t *testing.T) {
	raw, err := CompileBytes("cell", Cell())
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) < 4 || binary.LittleEndian.Uint32(raw) != spirvMagic {
		t.Fatalf("not a little-endian SPIR-V binary (%d bytes)", len(raw))
	}
	words, err := Compile("cell", Cell())
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != len(words)*4 {
		t.Fatalf("%d bytes for %d words", len(raw), len(words))
	}
	back := make([]uint32, len(words))
	for i := range back {
		back[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	if !slices.Equal(back, words) {
		t.Fatal("byte and word forms differ")
	}
}
