package occupancy

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned for structurally invalid input. Infeasible but
// well-formed launch configurations are not errors; they report zero occupancy.
var ErrInvalidArgument = errors.New("occupancy: invalid argument")

// ErrUnknownDevice is returned when the compute capability has no architecture entry.
var ErrUnknownDevice = fmt.Errorf("%w: unknown device architecture", ErrInvalidArgument)

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidArgument}, args...)...)
}

// maxWarpsPerBlock bounds the block size search, which visits one candidate per warp.
const maxWarpsPerBlock = 4096

func checkDeviceProperties(p *DeviceProperties) error {
	if p == nil {
		return invalidf("nil device properties")
	}
	if p.MaxThreadsPerBlock <= 0 ||
		p.MaxThreadsPerMultiprocessor <= 0 ||
		p.RegsPerBlock <= 0 ||
		p.RegsPerMultiprocessor <= 0 ||
		p.WarpSize <= 0 ||
		p.SharedMemPerBlock <= 0 ||
		p.SharedMemPerMultiprocessor <= 0 ||
		p.NumSMs <= 0 {
		return invalidf("device limits must be positive")
	}
	if p.MaxThreadsPerBlock/p.WarpSize > maxWarpsPerBlock {
		return invalidf("maxThreadsPerBlock %d spans more than %d warps of %d threads",
			p.MaxThreadsPerBlock, maxWarpsPerBlock, p.WarpSize)
	}
	if p.SharedMemPerBlockOptin < 0 || p.ReservedSharedMemPerBlock < 0 {
		return invalidf("negative shared memory size in device properties")
	}
	return nil
}

func checkFunctionAttributes(a *FunctionAttributes) error {
	if a == nil {
		return invalidf("nil function attributes")
	}
	// A kernel may use zero registers (empty kernels).
	if a.MaxThreadsPerBlock <= 0 || a.NumRegs < 0 {
		return invalidf("kernel maxThreadsPerBlock must be positive and numRegs non-negative")
	}
	if a.SharedSizeBytes < 0 || a.MaxDynamicSharedSizeBytes < 0 || a.NumBlockBarriers < 0 {
		return invalidf("negative size in function attributes")
	}
	switch a.PartitionedGCConfig {
	case PartitionedGCOff, PartitionedGCOn, PartitionedGCOnStrict:
	default:
		return invalidf("partitioned GC config %d", a.PartitionedGCConfig)
	}
	switch a.ShmemLimitConfig {
	case FuncShmemLimitDefault, FuncShmemLimitOptin:
	default:
		return invalidf("shared memory limit config %d", a.ShmemLimitConfig)
	}
	return nil
}

func checkDeviceState(s *DeviceState) error {
	if s == nil {
		return invalidf("nil device state")
	}
	if s.CacheConfig < CachePreferNone || s.CacheConfig > CachePreferEqual {
		return invalidf("cache config %d", s.CacheConfig)
	}
	if s.CarveoutConfig < CarveoutDefault || s.CarveoutConfig > CarveoutMaxShared {
		return invalidf("carveout %d outside [%d, %d]", s.CarveoutConfig, CarveoutDefault, CarveoutMaxShared)
	}
	return nil
}

func checkInputs(p *DeviceProperties, a *FunctionAttributes, s *DeviceState) error {
	if err := checkDeviceProperties(p); err != nil {
		return err
	}
	if err := checkFunctionAttributes(a); err != nil {
		return err
	}
	return checkDeviceState(s)
}
