package occupancy

// Kepler splits 64KB between L1 and shared memory; L1 gets 16KB to 48KB of it.
const (
	keplerMinCacheSize = 16 * kib
	keplerMaxCacheSize = 48 * kib
)

// sharedMemPerMultiprocessor returns the shared memory the user's cache or carveout
// preference leaves on one SM.
func sharedMemPerMultiprocessor(props *DeviceProperties, arch Architecture, state *DeviceState) (int, error) {
	if props.ComputeMajor >= 7 {
		return carveoutPreference(props, arch, state)
	}
	return legacyCachePreference(props, state)
}

func legacyCachePreference(props *DeviceProperties, state *DeviceState) (int, error) {
	high := props.SharedMemPerMultiprocessor
	switch props.ComputeMajor {
	case 3:
		low := high + keplerMinCacheSize - keplerMaxCacheSize
		switch state.CacheConfig {
		case CachePreferL1:
			return low, nil
		case CachePreferEqual:
			return (high + low) / 2, nil
		default:
			return high, nil
		}
	case 5, 6:
		// Maxwell and Pascal have dedicated shared memory.
		return high, nil
	default:
		return 0, ErrUnknownDevice
	}
}

// carveoutPreference resolves the Volta+ carveout. The carveout takes precedence
// over the legacy cache config, which is only consulted when the carveout is default.
func carveoutPreference(props *DeviceProperties, arch Architecture, state *DeviceState) (int, error) {
	preference := state.CarveoutConfig
	if preference == CarveoutDefault {
		switch state.CacheConfig {
		case CachePreferL1:
			preference = CarveoutMaxL1
		case CachePreferShared:
			preference = CarveoutMaxShared
		case CachePreferEqual:
			preference = CarveoutHalf
		}
	}

	size := props.SharedMemPerMultiprocessor
	if preference != CarveoutDefault {
		size = preference * props.SharedMemPerMultiprocessor / 100
	}
	return alignUpSharedMemConfig(arch, size)
}

// sharedMemPerBlockLimit is the most shared memory one block may allocate,
// including the driver's per-block reservation on Ampere and later.
func sharedMemPerBlockLimit(props *DeviceProperties, config FuncShmemLimitConfig, smemPerBlock int) int {
	limit := props.SharedMemPerBlock
	if props.ComputeMajor >= 7 && config == FuncShmemLimitOptin && smemPerBlock > props.SharedMemPerBlock {
		limit = props.SharedMemPerBlockOptin
	}
	if props.ComputeMajor >= 8 {
		limit = saturatingAdd(limit, props.ReservedSharedMemPerBlock)
	}
	return limit
}
