package occupancy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxActiveBlocksPerMultiprocessor(t *testing.T) {
	t.Run("worked example", func(t *testing.T) {
		res, err := MaxActiveBlocksPerMultiprocessor(voltaLike(), kernel(32), defaultState(), 256, 0)
		require.NoError(t, err)

		assert.Equal(t, 8, res.ActiveBlocksPerMultiprocessor)
		assert.Equal(t, 8, res.BlockLimitThreads)
		assert.Equal(t, 8, res.BlockLimitRegs)
		assert.Equal(t, 8, res.BlockLimitWarps)
		assert.Equal(t, 32, res.BlockLimitBlocks)
		assert.Equal(t, unlimited, res.BlockLimitSharedMem)
		assert.Equal(t, 8192, res.AllocatedRegistersPerBlock)
		assert.Equal(t, 0, res.AllocatedSharedMemPerBlock)
		assert.Equal(t, LimitWarps|LimitRegisters|LimitThreads, res.LimitingFactors)
		assert.InDelta(t, 1.0, res.Occupancy(voltaLike(), 256), 1e-9)
	})

	t.Run("sm_86 register bound", func(t *testing.T) {
		res, err := MaxActiveBlocksPerMultiprocessor(sm86(), kernel(59), defaultState(), 256, 0)
		require.NoError(t, err)

		assert.Equal(t, 4, res.ActiveBlocksPerMultiprocessor)
		assert.Equal(t, LimitRegisters, res.LimitingFactors)
		assert.Equal(t, 6, res.BlockLimitWarps)
		assert.Equal(t, 16, res.BlockLimitBlocks)
		assert.Equal(t, 100, res.BlockLimitSharedMem)
		assert.Equal(t, 1024, res.AllocatedSharedMemPerBlock)
		assert.Equal(t, 16384, res.AllocatedRegistersPerBlock)
		assert.InDelta(t, 2.0/3.0, res.Occupancy(sm86(), 256), 1e-9)
	})

	t.Run("hopper barrier bound", func(t *testing.T) {
		attrs := kernel(16)
		attrs.NumBlockBarriers = 16

		res, err := MaxActiveBlocksPerMultiprocessor(sm90(), attrs, defaultState(), 64, 0)
		require.NoError(t, err)

		assert.Equal(t, 4, res.ActiveBlocksPerMultiprocessor)
		assert.Equal(t, 4, res.BlockLimitBarriers)
		assert.Equal(t, LimitBarriers, res.LimitingFactors)
	})

	t.Run("barriers ignored before hopper", func(t *testing.T) {
		attrs := kernel(59)
		attrs.NumBlockBarriers = 16

		res, err := MaxActiveBlocksPerMultiprocessor(sm86(), attrs, defaultState(), 256, 0)
		require.NoError(t, err)
		assert.Equal(t, 4, res.ActiveBlocksPerMultiprocessor)
		assert.Equal(t, unlimited, res.BlockLimitBarriers)
	})
}

func TestMaxActiveBlocksZeroOccupancy(t *testing.T) {
	testCases := []struct {
		name      string
		props     *DeviceProperties
		attrs     func() *FunctionAttributes
		blockSize int
		dynamic   int
	}{
		{
			name:      "block larger than device allows",
			props:     sm86(),
			attrs:     func() *FunctionAttributes { return kernel(32) },
			blockSize: 2048,
		},
		{
			name:  "block larger than kernel allows",
			props: sm86(),
			attrs: func() *FunctionAttributes {
				a := kernel(32)
				a.MaxThreadsPerBlock = 128
				return a
			},
			blockSize: 256,
		},
		{
			name:      "too many registers per thread",
			props:     sm86(),
			attrs:     func() *FunctionAttributes { return kernel(300) },
			blockSize: 32,
		},
		{
			name:      "register file cannot hold one block",
			props:     sm86(),
			attrs:     func() *FunctionAttributes { return kernel(128) },
			blockSize: 1024,
		},
		{
			name:      "shared memory above per-block limit",
			props:     sm86(),
			attrs:     func() *FunctionAttributes { return kernel(32) },
			blockSize: 128,
			dynamic:   60000,
		},
		{
			name:  "dynamic shared memory above opt-in maximum",
			props: sm86(),
			attrs: func() *FunctionAttributes {
				a := kernel(32)
				a.ShmemLimitConfig = FuncShmemLimitOptin
				a.MaxDynamicSharedSizeBytes = 98304
				return a
			},
			blockSize: 128,
			dynamic:   99000,
		},
		{
			name:  "static and dynamic shared memory overflow to a negative total",
			props: sm86(),
			attrs: func() *FunctionAttributes {
				a := kernel(32)
				a.SharedSizeBytes = math.MaxInt
				return a
			},
			blockSize: 128,
			dynamic:   math.MaxInt - 1024 + 2 - 300,
		},
		{
			name:  "static and dynamic shared memory overflow to a small total",
			props: sm86(),
			attrs: func() *FunctionAttributes {
				a := kernel(32)
				a.SharedSizeBytes = math.MaxInt
				return a
			},
			blockSize: 128,
			dynamic:   math.MaxInt - 300,
		},
		{
			name:      "dynamic shared memory at the integer limit",
			props:     sm86(),
			attrs:     func() *FunctionAttributes { return kernel(32) },
			blockSize: 128,
			dynamic:   math.MaxInt,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := MaxActiveBlocksPerMultiprocessor(tc.props, tc.attrs(), defaultState(), tc.blockSize, tc.dynamic)
			require.NoError(t, err)
			assert.Equal(t, 0, res.ActiveBlocksPerMultiprocessor)
		})
	}
}

func TestMaxActiveBlocksOverLimitAllocation(t *testing.T) {
	// 60000 + 1024 reserved rounds up to the 128 byte granularity even past the limit.
	res, err := MaxActiveBlocksPerMultiprocessor(sm86(), kernel(32), defaultState(), 128, 60000)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ActiveBlocksPerMultiprocessor)
	assert.Equal(t, 61056, res.AllocatedSharedMemPerBlock)
	assert.True(t, res.LimitingFactors&LimitSharedMemory != 0)
}

func TestMaxActiveBlocksInvalidInput(t *testing.T) {
	t.Run("zero block size", func(t *testing.T) {
		res, err := MaxActiveBlocksPerMultiprocessor(sm86(), kernel(32), defaultState(), 0, 0)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.Nil(t, res)
	})

	t.Run("negative block size", func(t *testing.T) {
		_, err := MaxActiveBlocksPerMultiprocessor(sm86(), kernel(32), defaultState(), -32, 0)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("negative dynamic shared memory", func(t *testing.T) {
		_, err := MaxActiveBlocksPerMultiprocessor(sm86(), kernel(32), defaultState(), 128, -1)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("nil inputs", func(t *testing.T) {
		_, err := MaxActiveBlocksPerMultiprocessor(nil, kernel(32), defaultState(), 128, 0)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		_, err = MaxActiveBlocksPerMultiprocessor(sm86(), nil, defaultState(), 128, 0)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		_, err = MaxActiveBlocksPerMultiprocessor(sm86(), kernel(32), nil, 128, 0)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("zero field in device properties", func(t *testing.T) {
		props := sm86()
		props.WarpSize = 0
		_, err := MaxActiveBlocksPerMultiprocessor(props, kernel(32), defaultState(), 128, 0)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("negative registers", func(t *testing.T) {
		_, err := MaxActiveBlocksPerMultiprocessor(sm86(), kernel(-1), defaultState(), 128, 0)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("carveout out of range", func(t *testing.T) {
		state := &DeviceState{CarveoutConfig: 101}
		_, err := MaxActiveBlocksPerMultiprocessor(sm86(), kernel(32), state, 128, 0)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("unknown architecture", func(t *testing.T) {
		props := sm86()
		props.ComputeMajor = 2
		_, err := MaxActiveBlocksPerMultiprocessor(props, kernel(32), defaultState(), 128, 0)
		assert.ErrorIs(t, err, ErrUnknownDevice)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestSharedMemoryPreference(t *testing.T) {
	t.Run("kepler cache config", func(t *testing.T) {
		attrs := kernel(0)
		attrs.SharedSizeBytes = 8192

		testCases := []struct {
			cache    CacheConfig
			expected int
		}{
			{CachePreferNone, 6},
			{CachePreferShared, 6},
			{CachePreferL1, 2},
			{CachePreferEqual, 4},
		}
		for _, tc := range testCases {
			state := &DeviceState{CacheConfig: tc.cache, CarveoutConfig: CarveoutDefault}
			res, err := MaxActiveBlocksPerMultiprocessor(kepler(), attrs, state, 64, 0)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, res.ActiveBlocksPerMultiprocessor, "cache config %d", tc.cache)
		}
	})

	t.Run("volta carveout", func(t *testing.T) {
		attrs := kernel(0)
		attrs.SharedSizeBytes = 8192

		testCases := []struct {
			name     string
			state    DeviceState
			expected int
		}{
			{"default", DeviceState{CarveoutConfig: CarveoutDefault}, 8},
			{"half", DeviceState{CarveoutConfig: CarveoutHalf}, 4},
			{"max L1 still fits one block", DeviceState{CarveoutConfig: CarveoutMaxL1}, 1},
			{"cache config maps to carveout", DeviceState{CacheConfig: CachePreferL1, CarveoutConfig: CarveoutDefault}, 1},
			{"carveout wins over cache config", DeviceState{CacheConfig: CachePreferL1, CarveoutConfig: CarveoutMaxShared}, 8},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				state := tc.state
				res, err := MaxActiveBlocksPerMultiprocessor(voltaLike(), attrs, &state, 64, 0)
				require.NoError(t, err)
				assert.Equal(t, tc.expected, res.ActiveBlocksPerMultiprocessor)
				assert.Equal(t, 8192, res.AllocatedSharedMemPerBlock)
			})
		}
	})

	t.Run("opt-in raises the per-block limit", func(t *testing.T) {
		attrs := kernel(32)
		res, err := MaxActiveBlocksPerMultiprocessor(sm86(), attrs, defaultState(), 128, 81920)
		require.NoError(t, err)
		assert.Equal(t, 0, res.ActiveBlocksPerMultiprocessor)

		attrs.ShmemLimitConfig = FuncShmemLimitOptin
		attrs.MaxDynamicSharedSizeBytes = 98304
		res, err = MaxActiveBlocksPerMultiprocessor(sm86(), attrs, defaultState(), 128, 81920)
		require.NoError(t, err)
		assert.Equal(t, 1, res.ActiveBlocksPerMultiprocessor)
		assert.Equal(t, 82944, res.AllocatedSharedMemPerBlock)
		assert.Equal(t, LimitSharedMemory, res.LimitingFactors)
	})
}

func TestPartitionedGlobalCaching(t *testing.T) {
	t.Run("stays on when a block fits in half an SM", func(t *testing.T) {
		attrs := kernel(32)
		attrs.PartitionedGCConfig = PartitionedGCOn

		res, err := MaxActiveBlocksPerMultiprocessor(pascal(1), attrs, defaultState(), 1024, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, res.ActiveBlocksPerMultiprocessor)
		assert.Equal(t, PartitionedGCOn, res.PartitionedGCConfig)
	})

	t.Run("falls back to off", func(t *testing.T) {
		attrs := kernel(64)
		attrs.PartitionedGCConfig = PartitionedGCOn

		res, err := MaxActiveBlocksPerMultiprocessor(pascal(1), attrs, defaultState(), 1024, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, res.ActiveBlocksPerMultiprocessor)
		assert.Equal(t, PartitionedGCOff, res.PartitionedGCConfig)
	})

	t.Run("strict keeps caching and zero occupancy", func(t *testing.T) {
		attrs := kernel(64)
		attrs.PartitionedGCConfig = PartitionedGCOnStrict

		res, err := MaxActiveBlocksPerMultiprocessor(pascal(1), attrs, defaultState(), 1024, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, res.ActiveBlocksPerMultiprocessor)
		assert.Equal(t, PartitionedGCOnStrict, res.PartitionedGCConfig)
	})

	t.Run("unsupported devices ignore the request", func(t *testing.T) {
		attrs := kernel(32)
		attrs.PartitionedGCConfig = PartitionedGCOnStrict

		res, err := MaxActiveBlocksPerMultiprocessor(sm86(), attrs, defaultState(), 256, 0)
		require.NoError(t, err)
		assert.Equal(t, PartitionedGCOff, res.PartitionedGCConfig)
	})
}

func TestGP100ForwardCompatibility(t *testing.T) {
	// Fits GP100's two sub-partitions but not GP10x's four.
	props := pascal(0)
	props.RegsPerBlock = 63488

	res, err := MaxActiveBlocksPerMultiprocessor(props, kernel(64), defaultState(), 960, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, res.BlockLimitRegs)
	assert.Equal(t, 0, res.ActiveBlocksPerMultiprocessor)
}

func TestMaxActiveBlocksProperties(t *testing.T) {
	devices := map[string]*DeviceProperties{
		"volta":  voltaLike(),
		"sm_86":  sm86(),
		"sm_90":  sm90(),
		"kepler": kepler(),
	}

	for name, props := range devices {
		arch, err := ArchitectureOf(props)
		require.NoError(t, err)

		t.Run(name+" bounded by block limit", func(t *testing.T) {
			for blockSize := 1; blockSize <= props.MaxThreadsPerBlock; blockSize += 7 {
				res, err := MaxActiveBlocksPerMultiprocessor(props, kernel(24), defaultState(), blockSize, 0)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, res.ActiveBlocksPerMultiprocessor, 0)
				assert.LessOrEqual(t, res.ActiveBlocksPerMultiprocessor, arch.MaxBlocksPerMultiprocessor)
			}
		})

		t.Run(name+" thread limit non-increasing in block size", func(t *testing.T) {
			prev := unlimited
			for blockSize := 1; blockSize <= props.MaxThreadsPerBlock+64; blockSize++ {
				res, err := MaxActiveBlocksPerMultiprocessor(props, kernel(24), defaultState(), blockSize, 0)
				require.NoError(t, err)
				assert.LessOrEqual(t, res.BlockLimitThreads, prev, "block size %d", blockSize)
				prev = res.BlockLimitThreads
			}
		})

		t.Run(name+" non-increasing in dynamic shared memory", func(t *testing.T) {
			prev := unlimited
			for dynamic := 0; dynamic <= 64*kib; dynamic += 512 {
				res, err := MaxActiveBlocksPerMultiprocessor(props, kernel(24), defaultState(), 128, dynamic)
				require.NoError(t, err)
				assert.LessOrEqual(t, res.ActiveBlocksPerMultiprocessor, prev, "dynamic %d", dynamic)
				prev = res.ActiveBlocksPerMultiprocessor
			}
		})
	}
}

func TestResultOccupancy(t *testing.T) {
	var nilResult *Result
	assert.Zero(t, nilResult.Occupancy(sm86(), 128))
	assert.Zero(t, (&Result{ActiveBlocksPerMultiprocessor: 3}).Occupancy(nil, 128))
	assert.Zero(t, (&Result{ActiveBlocksPerMultiprocessor: 3}).Occupancy(sm86(), 0))
}

func TestLimitingFactorString(t *testing.T) {
	assert.Equal(t, "none", LimitingFactor(0).String())
	assert.Equal(t, "warps|smem", (LimitWarps | LimitSharedMemory).String())
	assert.Equal(t, []string{"registers", "barriers"}, (LimitBarriers | LimitRegisters).Names())
}
