package device

import (
	"fmt"
	"sort"

	"lifegpu/pkg/core"
)

// Options configures device acquisition.
type Options struct {
	Label string
	// Width and Height size the render target in pixels.
	Width, Height int
	// Workers bounds host-side parallelism; zero means GOMAXPROCS.
	Workers int
	// MaxBufferSize caps allocations; zero keeps the device default.
	MaxBufferSize uint64
	// ValidateShaders compiles every kernel's WGSL with naga at pipeline
	// creation even when the device does not need the SPIR-V.
	ValidateShaders bool
}

// Factory acquires a device.
type Factory func(opts Options) (Device, error)

var factories = map[string]Factory{}

// Register adds a device factory under the provided name.
func Register(name string, f Factory) {
	if name == "" || f == nil {
		return
	}
	factories[name] = f
}

// Names lists the registered device names in sorted order.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open acquires the named device. Any failure is reported as
// core.ErrDeviceUnavailable.
func Open(name string, opts Options) (Device, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: no device named %q (have %v)", core.ErrDeviceUnavailable, name, Names())
	}
	dev, err := f(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrDeviceUnavailable, name, err)
	}
	if !dev.Limits().SupportsCompute {
		dev.Release()
		return nil, fmt.Errorf("%w: %s has no compute support", core.ErrDeviceUnavailable, name)
	}
	core.Logger().Info("device acquired", "device", dev.Name())
	return dev, nil
}
