// Package occupancy estimates how many thread blocks of a kernel can be resident on
// one GPU multiprocessor at a time, and searches for launch configurations that
// maximize it.
//
// Every function in this package is pure: inputs are never modified, nothing is
// cached between calls, and all functions are safe for concurrent use.
package occupancy

// MaxActiveBlocksPerMultiprocessor computes the number of blocks of blockSize threads,
// each requesting dynamicSmemSize bytes of dynamic shared memory, that fit on one SM
// at once. A configuration that cannot run at all yields a Result with zero active
// blocks and a nil error; only malformed input is an error.
func MaxActiveBlocksPerMultiprocessor(
	props *DeviceProperties,
	attrs *FunctionAttributes,
	state *DeviceState,
	blockSize int,
	dynamicSmemSize int,
) (*Result, error) {
	if blockSize <= 0 {
		return nil, invalidf("block size %d must be positive", blockSize)
	}
	if dynamicSmemSize < 0 {
		return nil, invalidf("dynamic shared memory size %d is negative", dynamicSmemSize)
	}
	if err := checkInputs(props, attrs, state); err != nil {
		return nil, err
	}
	arch, err := ArchitectureOf(props)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	gcConfig := expectedPartitionedGC(props, attrs)

	// The register limit may turn partitioned caching off, which the warp limit
	// below must see.
	limitRegs, gcConfig := registerLimit(result, props, arch, attrs, blockSize, gcConfig)

	// GP100 has fewer, larger sub-partitions than GP10x. A kernel that cannot run
	// on GP10x is not allowed to run on any Pascal part.
	if props.ComputeMajor == 6 && props.ComputeMinor == 0 && limitRegs > 0 {
		gp10x := *props
		gp10x.ComputeMinor = 1
		gp10xArch, err := ArchitectureOf(&gp10x)
		if err != nil {
			return nil, err
		}
		var scratch Result
		if limit, _ := registerLimit(&scratch, &gp10x, gp10xArch, attrs, blockSize, gcConfig); limit == 0 {
			limitRegs = 0
		}
	}

	limitWarps := warpLimit(props, gcConfig, blockSize)
	limitBlocks := arch.MaxBlocksPerMultiprocessor
	limitThreads := threadLimit(props, arch, attrs, blockSize)

	limitSmem, err := sharedMemLimit(result, props, arch, attrs, state, dynamicSmemSize)
	if err != nil {
		return nil, err
	}

	// Block barriers only constrain residency from Hopper on.
	limitBarriers := unlimited
	if props.ComputeMajor >= 9 && attrs.NumBlockBarriers > 0 {
		limitBarriers = barrierLimit(limitBlocks, attrs)
	}

	limit := min(limitRegs, limitSmem, limitWarps, limitBlocks, limitThreads, limitBarriers)

	var factors LimitingFactor
	if limit == limitWarps {
		factors |= LimitWarps
	}
	if limit == limitRegs {
		factors |= LimitRegisters
	}
	if limit == limitSmem {
		factors |= LimitSharedMemory
	}
	if limit == limitBlocks {
		factors |= LimitBlocks
	}
	if limit == limitThreads {
		factors |= LimitThreads
	}
	if limit == limitBarriers {
		factors |= LimitBarriers
	}

	result.ActiveBlocksPerMultiprocessor = limit
	result.LimitingFactors = factors
	result.BlockLimitRegs = limitRegs
	result.BlockLimitSharedMem = limitSmem
	result.BlockLimitWarps = limitWarps
	result.BlockLimitBlocks = limitBlocks
	result.BlockLimitThreads = limitThreads
	result.BlockLimitBarriers = limitBarriers
	result.PartitionedGCConfig = gcConfig
	return result, nil
}

func partitionedGCSupported(props *DeviceProperties) bool {
	switch props.ComputeMajor {
	case 5:
		return props.ComputeMinor == 2 || props.ComputeMinor == 3
	case 6:
		return props.ComputeMinor != 0
	default:
		return false
	}
}

func expectedPartitionedGC(props *DeviceProperties, attrs *FunctionAttributes) PartitionedGCConfig {
	if !partitionedGCSupported(props) {
		return PartitionedGCOff
	}
	return attrs.PartitionedGCConfig
}

// threadLimit is 0 when the block is larger than the device or kernel allows.
func threadLimit(props *DeviceProperties, arch Architecture, attrs *FunctionAttributes, blockSize int) int {
	if blockSize > min(props.MaxThreadsPerBlock, attrs.MaxThreadsPerBlock) {
		return 0
	}
	return min(props.MaxThreadsPerMultiprocessor/blockSize, arch.MaxBlocksPerMultiprocessor)
}

func warpLimit(props *DeviceProperties, gcConfig PartitionedGCConfig, blockSize int) int {
	if blockSize > props.MaxThreadsPerBlock {
		return 0
	}
	maxWarps := props.MaxWarpsPerMultiprocessor()
	warpsPerBlock := divideRoundUp(blockSize, props.WarpSize)

	if gcConfig != PartitionedGCOff {
		// With partitioned caching a block is confined to half an SM and its warp slots.
		return (maxWarps / 2 / warpsPerBlock) * 2
	}
	return maxWarps / warpsPerBlock
}

// registerLimit returns the register-bound block count and the partitioned caching
// mode that actually applies.
func registerLimit(
	result *Result,
	props *DeviceProperties,
	arch Architecture,
	attrs *FunctionAttributes,
	blockSize int,
	gcConfig PartitionedGCConfig,
) (int, PartitionedGCConfig) {
	warpsPerBlock := divideRoundUp(blockSize, props.WarpSize)

	// Registers are allocated per warp, rounded to the allocation granularity.
	regsPerWarp := roundUp(attrs.NumRegs*props.WarpSize, arch.RegisterAllocationGranularity)
	regsPerBlock := regsPerWarp * warpsPerBlock
	result.AllocatedRegistersPerBlock = regsPerBlock

	// The hardware per-block check assumes warps are spread over every sub-partition.
	regsAssumedPerBlock := regsPerWarp * roundUp(warpsPerBlock, arch.SubPartitions)

	if props.RegsPerBlock < regsAssumedPerBlock ||
		props.RegsPerBlock < regsPerBlock ||
		attrs.NumRegs > arch.MaxRegistersPerThread {
		return 0, gcConfig
	}
	if regsPerWarp == 0 {
		return unlimited, gcConfig
	}

	regsPerSubPartition := props.RegsPerMultiprocessor / arch.SubPartitions
	warpsPerSubPartition := regsPerSubPartition / regsPerWarp

	maxBlocks := 0
	if gcConfig != PartitionedGCOff {
		warpsPerHalf := warpsPerSubPartition * (arch.SubPartitions / 2)
		maxBlocks = (warpsPerHalf / warpsPerBlock) * 2
	}

	// The device drops partitioned caching when a block does not fit in half an SM,
	// unless it was forced on.
	if maxBlocks == 0 && gcConfig != PartitionedGCOnStrict {
		gcConfig = PartitionedGCOff
		maxBlocks = warpsPerSubPartition * arch.SubPartitions / warpsPerBlock
	}
	return maxBlocks, gcConfig
}

func sharedMemLimit(
	result *Result,
	props *DeviceProperties,
	arch Architecture,
	attrs *FunctionAttributes,
	state *DeviceState,
	dynamicSmemSize int,
) (int, error) {
	preference, err := sharedMemPerMultiprocessor(props, arch, state)
	if err != nil {
		return 0, err
	}

	staticSmem := saturatingAdd(attrs.SharedSizeBytes, props.ReservedSharedMemPerBlock)
	perBlockLimit := sharedMemPerBlockLimit(props, attrs.ShmemLimitConfig, saturatingAdd(staticSmem, attrs.MaxDynamicSharedSizeBytes))

	allocated := roundUpSaturating(saturatingAdd(staticSmem, dynamicSmemSize), arch.SharedMemAllocationGranularity)
	result.AllocatedSharedMemPerBlock = allocated

	if attrs.ShmemLimitConfig != FuncShmemLimitDefault && dynamicSmemSize > attrs.MaxDynamicSharedSizeBytes {
		return 0, nil
	}
	if allocated > perBlockLimit {
		return 0, nil
	}
	if allocated == 0 {
		return unlimited, nil
	}

	// The preference is honoured as long as at least one block fits in it.
	available := preference
	if preference < allocated {
		if props.ComputeMajor >= 7 {
			available, err = alignUpSharedMemConfig(arch, allocated)
			if err != nil {
				return 0, err
			}
		} else {
			available = props.SharedMemPerMultiprocessor
		}
	}
	return available / allocated, nil
}

func barrierLimit(limitBlocks int, attrs *FunctionAttributes) int {
	// Each block slot on an SM comes with two barriers.
	return limitBlocks * 2 / attrs.NumBlockBarriers
}
