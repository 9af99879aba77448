package core

// Size describes the dimensions of a simulation grid.
type Size struct {
	W int
	H int
}

// Sim is what the frame loop and HUD need from a running simulation.
type Sim interface {
	Name() string
	Size() Size
	// Tick advances one generation and renders it.
	Tick() error
	// Generation is the number of ticks completed.
	Generation() uint64
	Parameters() ParameterSnapshot
}
