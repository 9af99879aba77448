// Package shader holds the WGSL kernels of the simulation and compiles them
// with naga.
package shader

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"strings"
	"text/template"

	"github.com/gogpu/naga"
)

// Entry points.
const (
	ComputeEntry  = "computeMain"
	VertexEntry   = "vertexMain"
	FragmentEntry = "fragmentMain"
)

//go:embed life.wgsl
var lifeSource string

//go:embed cell.wgsl
var cellSource string

var lifeTemplate = template.Must(template.New("life.wgsl").Parse(lifeSource))

// Simulation returns the compute kernel source for the given 1-D workgroup
// size.
func Simulation(workgroupSize uint32) (string, error) {
	if workgroupSize == 0 {
		return "", fmt.Errorf("shader: workgroup size must be positive")
	}
	var sb strings.Builder
	if err := lifeTemplate.Execute(&sb, struct{ WorkgroupSize uint32 }{workgroupSize}); err != nil {
		return "", fmt.Errorf("shader: render simulation kernel: %w", err)
	}
	return sb.String(), nil
}

// Cell returns the vertex+fragment kernel source.
func Cell() string { return cellSource }

// CompileBytes translates WGSL to a little-endian SPIR-V binary.
func CompileBytes(label, source string) ([]byte, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("shader: compile %s: %w", label, err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("shader: compile %s: SPIR-V length %d is not word aligned", label, len(spirvBytes))
	}
	return spirvBytes, nil
}

// Compile translates WGSL to SPIR-V words.
func Compile(label, source string) ([]uint32, error) {
	spirvBytes, err := CompileBytes(label, source)
	if err != nil {
		return nil, err
	}
	// SPIR-V is little-endian 32-bit words.
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return code, nil
}
