package occupancy

import "fmt"

const kib = 1024

// Newest compute capability the architecture table knows about.
const (
	maxComputeMajor = 9
	maxComputeMinor = 0
)

// MaxComputeCapability reports the newest compute capability supported.
func MaxComputeCapability() (major, minor int) {
	return maxComputeMajor, maxComputeMinor
}

// Architecture holds the per-generation constants that are not part of the
// device properties reported by the driver.
type Architecture struct {
	Family                         string `json:"family"`
	SharedMemAllocationGranularity int    `json:"sharedMemAllocationGranularity"`
	RegisterAllocationGranularity  int    `json:"registerAllocationGranularity"`
	// Warps are handed out whole; kept for symmetry with the other granularities.
	WarpAllocationGranularity  int `json:"warpAllocationGranularity"`
	MaxRegistersPerThread      int `json:"maxRegistersPerThread"`
	SubPartitions              int `json:"subPartitions"`
	MaxBlocksPerMultiprocessor int `json:"maxBlocksPerMultiprocessor"`
	// SharedMemConfigs lists the shared memory sizes an SM can be carved into,
	// ascending. Empty before Volta, where the split is not configurable this way.
	SharedMemConfigs []int `json:"sharedMemConfigs,omitempty"`
}

var (
	voltaSharedMemConfigs  = []int{0, 8 * kib, 16 * kib, 32 * kib, 64 * kib, 96 * kib}
	turingSharedMemConfigs = []int{32 * kib, 64 * kib}
	ga100SharedMemConfigs  = []int{0, 8 * kib, 16 * kib, 32 * kib, 64 * kib, 100 * kib, 132 * kib, 164 * kib}
	ga10xSharedMemConfigs  = []int{0, 8 * kib, 16 * kib, 32 * kib, 64 * kib, 100 * kib}
	hopperSharedMemConfigs = []int{0, 8 * kib, 16 * kib, 32 * kib, 64 * kib, 100 * kib, 132 * kib, 164 * kib, 196 * kib, 228 * kib}
)

// ArchitectureOf looks up the architecture constants for the device's compute capability.
func ArchitectureOf(props *DeviceProperties) (Architecture, error) {
	if props == nil {
		return Architecture{}, invalidf("nil device properties")
	}
	minor := props.ComputeMinor
	switch props.ComputeMajor {
	case 3:
		return Architecture{
			Family:                         "Kepler",
			SharedMemAllocationGranularity: 256,
			RegisterAllocationGranularity:  256,
			WarpAllocationGranularity:      1,
			MaxRegistersPerThread:          255,
			SubPartitions:                  4,
			MaxBlocksPerMultiprocessor:     16,
		}, nil
	case 5:
		return Architecture{
			Family:                         "Maxwell",
			SharedMemAllocationGranularity: 256,
			RegisterAllocationGranularity:  256,
			WarpAllocationGranularity:      1,
			MaxRegistersPerThread:          255,
			SubPartitions:                  4,
			MaxBlocksPerMultiprocessor:     32,
		}, nil
	case 6:
		subPartitions := 4
		if minor == 0 {
			// GP100 has two sub-partitions per SM.
			subPartitions = 2
		}
		return Architecture{
			Family:                         "Pascal",
			SharedMemAllocationGranularity: 256,
			RegisterAllocationGranularity:  256,
			WarpAllocationGranularity:      1,
			MaxRegistersPerThread:          255,
			SubPartitions:                  subPartitions,
			MaxBlocksPerMultiprocessor:     32,
		}, nil
	case 7:
		arch := Architecture{
			Family:                         "Volta",
			SharedMemAllocationGranularity: 256,
			RegisterAllocationGranularity:  256,
			WarpAllocationGranularity:      1,
			MaxRegistersPerThread:          256,
			SubPartitions:                  4,
			MaxBlocksPerMultiprocessor:     32,
			SharedMemConfigs:               voltaSharedMemConfigs,
		}
		if minor == 5 {
			arch.Family = "Turing"
			arch.MaxBlocksPerMultiprocessor = 16
			arch.SharedMemConfigs = turingSharedMemConfigs
		}
		return arch, nil
	case 8:
		arch := Architecture{
			Family:                         "Ampere",
			SharedMemAllocationGranularity: 128,
			RegisterAllocationGranularity:  256,
			WarpAllocationGranularity:      1,
			MaxRegistersPerThread:          256,
			SubPartitions:                  4,
			MaxBlocksPerMultiprocessor:     16,
			SharedMemConfigs:               ga10xSharedMemConfigs,
		}
		switch minor {
		case 0:
			arch.MaxBlocksPerMultiprocessor = 32
			arch.SharedMemConfigs = ga100SharedMemConfigs
		case 7:
			arch.SharedMemConfigs = ga100SharedMemConfigs
		case 9:
			arch.Family = "Ada"
			arch.MaxBlocksPerMultiprocessor = 24
		}
		return arch, nil
	case 9:
		return Architecture{
			Family:                         "Hopper",
			SharedMemAllocationGranularity: 128,
			RegisterAllocationGranularity:  256,
			WarpAllocationGranularity:      1,
			MaxRegistersPerThread:          256,
			SubPartitions:                  4,
			MaxBlocksPerMultiprocessor:     32,
			SharedMemConfigs:               hopperSharedMemConfigs,
		}, nil
	default:
		return Architecture{}, fmt.Errorf("%w: compute capability %d.%d", ErrUnknownDevice, props.ComputeMajor, minor)
	}
}

// SharedMemAllocationGranularity returns the unit, in bytes, in which the device
// allocates shared memory to a block.
func SharedMemAllocationGranularity(props *DeviceProperties) (int, error) {
	if err := checkDeviceProperties(props); err != nil {
		return 0, err
	}
	arch, err := ArchitectureOf(props)
	if err != nil {
		return 0, err
	}
	return arch.SharedMemAllocationGranularity, nil
}

// RegisterAllocationGranularity returns the unit in which registers are allocated to a warp.
func RegisterAllocationGranularity(props *DeviceProperties) (int, error) {
	if err := checkDeviceProperties(props); err != nil {
		return 0, err
	}
	arch, err := ArchitectureOf(props)
	if err != nil {
		return 0, err
	}
	return arch.RegisterAllocationGranularity, nil
}

// alignUpSharedMemConfig maps size onto the smallest supported shared memory
// configuration that holds it. Only defined from Volta on.
func alignUpSharedMemConfig(arch Architecture, size int) (int, error) {
	if len(arch.SharedMemConfigs) == 0 {
		return 0, ErrUnknownDevice
	}
	for _, c := range arch.SharedMemConfigs {
		if size <= c {
			return c, nil
		}
	}
	return 0, invalidf("shared memory size %d exceeds the largest %s configuration", size, arch.Family)
}
