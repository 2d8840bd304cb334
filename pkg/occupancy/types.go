package occupancy

import (
	"math"
	"strings"
)

// MaxThreadsPerBlockUnlimited marks a kernel that places no limit of its own on the block size.
const MaxThreadsPerBlockUnlimited = math.MaxInt32

// unlimited is the block count reported for a resource a block does not consume.
const unlimited = math.MaxInt32

// DeviceProperties describes one GPU. Granularities and per-SM block limits are
// derived from the compute capability, see ArchitectureOf.
type DeviceProperties struct {
	ComputeMajor                int `yaml:"computeMajor" json:"computeMajor"`
	ComputeMinor                int `yaml:"computeMinor" json:"computeMinor"`
	MaxThreadsPerBlock          int `yaml:"maxThreadsPerBlock" json:"maxThreadsPerBlock"`
	MaxThreadsPerMultiprocessor int `yaml:"maxThreadsPerMultiprocessor" json:"maxThreadsPerMultiprocessor"`
	RegsPerBlock                int `yaml:"regsPerBlock" json:"regsPerBlock"`
	RegsPerMultiprocessor       int `yaml:"regsPerMultiprocessor" json:"regsPerMultiprocessor"`
	WarpSize                    int `yaml:"warpSize" json:"warpSize"`
	SharedMemPerBlock           int `yaml:"sharedMemPerBlock" json:"sharedMemPerBlock"`
	SharedMemPerMultiprocessor  int `yaml:"sharedMemPerMultiprocessor" json:"sharedMemPerMultiprocessor"`
	NumSMs                      int `yaml:"numSms" json:"numSms"`
	SharedMemPerBlockOptin      int `yaml:"sharedMemPerBlockOptin" json:"sharedMemPerBlockOptin"`
	ReservedSharedMemPerBlock   int `yaml:"reservedSharedMemPerBlock" json:"reservedSharedMemPerBlock"`
}

// MaxWarpsPerMultiprocessor is the number of warp slots on one SM.
func (p *DeviceProperties) MaxWarpsPerMultiprocessor() int {
	return p.MaxThreadsPerMultiprocessor / p.WarpSize
}

// PartitionedGCConfig controls partitioned global caching for a kernel.
type PartitionedGCConfig int

const (
	PartitionedGCOff PartitionedGCConfig = iota
	PartitionedGCOn
	// PartitionedGCOnStrict keeps caching on even when it drives occupancy to zero.
	PartitionedGCOnStrict
)

// FuncShmemLimitConfig selects which per-block shared memory limit applies to a kernel.
type FuncShmemLimitConfig int

const (
	FuncShmemLimitDefault FuncShmemLimitConfig = iota
	FuncShmemLimitOptin
)

// FunctionAttributes describes one compiled kernel.
type FunctionAttributes struct {
	MaxThreadsPerBlock        int                  `yaml:"maxThreadsPerBlock" json:"maxThreadsPerBlock"`
	NumRegs                   int                  `yaml:"numRegs" json:"numRegs"`
	SharedSizeBytes           int                  `yaml:"sharedSizeBytes" json:"sharedSizeBytes"`
	PartitionedGCConfig       PartitionedGCConfig  `yaml:"partitionedGCConfig" json:"partitionedGCConfig"`
	ShmemLimitConfig          FuncShmemLimitConfig `yaml:"shmemLimitConfig" json:"shmemLimitConfig"`
	MaxDynamicSharedSizeBytes int                  `yaml:"maxDynamicSharedSizeBytes" json:"maxDynamicSharedSizeBytes"`
	NumBlockBarriers          int                  `yaml:"numBlockBarriers" json:"numBlockBarriers"`
}

// CacheConfig is the legacy L1/shared memory split preference.
type CacheConfig int

const (
	CachePreferNone CacheConfig = iota
	CachePreferShared
	CachePreferL1
	CachePreferEqual
)

// Shared memory carveout presets, expressed as a percentage of the SM's shared memory.
const (
	CarveoutDefault   = -1
	CarveoutMaxL1     = 0
	CarveoutHalf      = 50
	CarveoutMaxShared = 100
)

// DeviceState holds the runtime toggles that change the usable shared memory.
type DeviceState struct {
	CacheConfig    CacheConfig `yaml:"cacheConfig" json:"cacheConfig"`
	CarveoutConfig int         `yaml:"carveoutConfig" json:"carveoutConfig"`
}

// DefaultDeviceState is the state of a device nobody reconfigured.
func DefaultDeviceState() DeviceState {
	return DeviceState{CacheConfig: CachePreferNone, CarveoutConfig: CarveoutDefault}
}

// LimitingFactor is a bitmask of the resources that bound occupancy.
type LimitingFactor uint

const (
	LimitWarps LimitingFactor = 1 << iota
	LimitRegisters
	LimitSharedMemory
	LimitBlocks
	LimitBarriers
	LimitThreads
)

var limitNames = []struct {
	flag LimitingFactor
	name string
}{
	{LimitWarps, "warps"},
	{LimitRegisters, "registers"},
	{LimitSharedMemory, "smem"},
	{LimitBlocks, "blocks"},
	{LimitBarriers, "barriers"},
	{LimitThreads, "threads"},
}

// Names lists the set factors in a stable order.
func (f LimitingFactor) Names() []string {
	var names []string
	for _, l := range limitNames {
		if f&l.flag != 0 {
			names = append(names, l.name)
		}
	}
	return names
}

func (f LimitingFactor) String() string {
	if f == 0 {
		return "none"
	}
	return strings.Join(f.Names(), "|")
}

// Result is the outcome of an occupancy computation for one launch configuration.
type Result struct {
	ActiveBlocksPerMultiprocessor int                 `json:"activeBlocksPerMultiprocessor"`
	LimitingFactors               LimitingFactor      `json:"limitingFactors"`
	BlockLimitRegs                int                 `json:"blockLimitRegs"`
	BlockLimitSharedMem           int                 `json:"blockLimitSharedMem"`
	BlockLimitWarps               int                 `json:"blockLimitWarps"`
	BlockLimitBlocks              int                 `json:"blockLimitBlocks"`
	BlockLimitThreads             int                 `json:"blockLimitThreads"`
	BlockLimitBarriers            int                 `json:"blockLimitBarriers"`
	AllocatedRegistersPerBlock    int                 `json:"allocatedRegistersPerBlock"`
	AllocatedSharedMemPerBlock    int                 `json:"allocatedSharedMemPerBlock"`
	PartitionedGCConfig           PartitionedGCConfig `json:"partitionedGCConfig"`
}

// Occupancy returns resident warps over warp slots, in [0, 1].
func (r *Result) Occupancy(props *DeviceProperties, blockSize int) float64 {
	if r == nil || props == nil || props.WarpSize <= 0 || blockSize <= 0 {
		return 0
	}
	maxWarps := props.MaxWarpsPerMultiprocessor()
	if maxWarps == 0 {
		return 0
	}
	warps := r.ActiveBlocksPerMultiprocessor * divideRoundUp(blockSize, props.WarpSize)
	return float64(warps) / float64(maxWarps)
}

// SharedMemSizeFunc maps a candidate block size to its dynamic shared memory need in
// bytes. It must be pure: it is called once per candidate during a search and may be
// called from several goroutines at once.
type SharedMemSizeFunc func(blockSize int) int

func divideRoundUp(x, y int) int {
	return (x + y - 1) / y
}

func roundUp(x, y int) int {
	return y * divideRoundUp(x, y)
}

// saturatingAdd adds two non-negative sizes, stopping at math.MaxInt.
func saturatingAdd(x, y int) int {
	if x > math.MaxInt-y {
		return math.MaxInt
	}
	return x + y
}

func roundUpSaturating(x, y int) int {
	if x > math.MaxInt-y {
		return math.MaxInt
	}
	return roundUp(x, y)
}
