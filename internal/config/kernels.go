package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxnlabs/occupancy/pkg/occupancy"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrKernelNotFound is returned when neither the kernel nor a "default" entry exists.
var ErrKernelNotFound = errors.New("kernel not found")

// DynamicSharedMemory models a kernel's dynamic shared memory as a fixed size plus a
// per-thread size.
type DynamicSharedMemory struct {
	Bytes          int `yaml:"bytes" json:"bytes"`
	BytesPerThread int `yaml:"bytesPerThread" json:"bytesPerThread"`
}

type Kernel struct {
	// Name is the catalog entry the kernel was resolved from.
	Name                string                       `yaml:"-" json:"name"`
	Attributes          occupancy.FunctionAttributes `yaml:"attributes" json:"attributes"`
	DynamicSharedMemory DynamicSharedMemory          `yaml:"dynamicSharedMemory" json:"dynamicSharedMemory"`
}

// SharedMemSizeFunc returns nil when the dynamic shared memory does not depend on the
// block size.
func (k *Kernel) SharedMemSizeFunc() occupancy.SharedMemSizeFunc {
	if k.DynamicSharedMemory.BytesPerThread == 0 {
		return nil
	}
	return k.DynamicSharedMemory.Size
}

// Size is the dynamic shared memory needed by a block of blockSize threads.
func (d DynamicSharedMemory) Size(blockSize int) int {
	return d.Bytes + d.BytesPerThread*blockSize
}

type KernelConfig struct {
	Kernels map[string]Kernel `yaml:"kernels"`
}

func LoadKernelConfig(path string) (*KernelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseKernelConfig(data)
}

func ParseKernelConfig(data []byte) (*KernelConfig, error) {
	var config KernelConfig
	err := yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, err
	}
	if config.Kernels == nil {
		config.Kernels = make(map[string]Kernel)
	}

	for name, k := range config.Kernels {
		if k.Attributes.MaxThreadsPerBlock == 0 {
			k.Attributes.MaxThreadsPerBlock = occupancy.MaxThreadsPerBlockUnlimited
		}
		if k.DynamicSharedMemory.Bytes < 0 || k.DynamicSharedMemory.BytesPerThread < 0 {
			return nil, fmt.Errorf("kernel %q: negative dynamic shared memory", name)
		}
		config.Kernels[name] = k
	}

	return &config, nil
}

// GetKernel looks up a kernel by name, falling back to the "default" entry. The
// returned kernel's Name tells which entry was used.
func (c *KernelConfig) GetKernel(name string, log *zap.Logger) (*Kernel, error) {
	if k, ok := c.Kernels[name]; ok {
		k.Name = name
		return &k, nil
	}
	if k, ok := c.Kernels["default"]; ok {
		log.Info("kernel not found, using default", zap.String("kernel", name))
		k.Name = "default"
		return &k, nil
	}
	log.Warn("kernel not found and no default kernel configured", zap.String("kernel", name))
	return nil, fmt.Errorf("%w: %s", ErrKernelNotFound, name)
}
