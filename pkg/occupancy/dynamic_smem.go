package occupancy

// AvailableDynamicSharedMemory returns the most dynamic shared memory, in bytes, each
// block may request while numBlocks blocks of blockSize threads stay resident on one
// SM. It returns 0 when numBlocks is out of reach even without dynamic shared memory.
func AvailableDynamicSharedMemory(
	props *DeviceProperties,
	attrs *FunctionAttributes,
	state *DeviceState,
	numBlocks int,
	blockSize int,
) (int, error) {
	if numBlocks <= 0 {
		return 0, invalidf("number of blocks %d must be positive", numBlocks)
	}

	baseline, err := MaxActiveBlocksPerMultiprocessor(props, attrs, state, blockSize, 0)
	if err != nil {
		return 0, err
	}
	if baseline.ActiveBlocksPerMultiprocessor < numBlocks {
		return 0, nil
	}

	arch, err := ArchitectureOf(props)
	if err != nil {
		return 0, err
	}
	perBlockLimit := sharedMemPerBlockLimit(props, attrs.ShmemLimitConfig, props.SharedMemPerMultiprocessor)

	// A lone block may use the whole per-block limit regardless of the preference;
	// several blocks share whatever the preference leaves on the SM.
	var perSM int
	if numBlocks == 1 {
		perSM = perBlockLimit
	} else {
		perSM, err = sharedMemPerMultiprocessor(props, arch, state)
		if err != nil {
			return 0, err
		}
		if perSM == 0 {
			// A zero carveout still gets the smallest non-empty configuration.
			perSM, err = alignUpSharedMemConfig(arch, 1)
			if err != nil {
				return 0, err
			}
		}
	}

	granularity := arch.SharedMemAllocationGranularity
	available := perSM / numBlocks / granularity * granularity
	available = min(available, perBlockLimit)
	available -= min(saturatingAdd(attrs.SharedSizeBytes, props.ReservedSharedMemPerBlock), available)

	if attrs.ShmemLimitConfig == FuncShmemLimitOptin {
		available = min(available, attrs.MaxDynamicSharedSizeBytes)
	}
	return max(available, 0), nil
}
