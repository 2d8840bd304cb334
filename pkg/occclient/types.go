package occclient

import "github.com/fxnlabs/occupancy/pkg/occupancy"

// Query types understood by POST /v1/query.
const (
	TypeGranularity       = "GRANULARITY"
	TypeActiveBlocks      = "ACTIVE_BLOCKS"
	TypeDynamicSmem       = "DYNAMIC_SMEM"
	TypeBlockSize         = "BLOCK_SIZE"
	TypeSweep             = "SWEEP"
	TypeComputeCapability = "COMPUTE_CAPABILITY"
)

// Query is the request body of POST /v1/query.
type Query struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Target picks the device, kernel and device state a query runs against.
// Inline properties or attributes take precedence over the named preset or kernel.
// Empty names mean the server's default device and "default" kernel.
type Target struct {
	Device     string                        `json:"device,omitempty"`
	Properties *occupancy.DeviceProperties   `json:"properties,omitempty"`
	Kernel     string                        `json:"kernel,omitempty"`
	Attributes *occupancy.FunctionAttributes `json:"attributes,omitempty"`
	State      *occupancy.DeviceState        `json:"state,omitempty"`
}

type GranularityRequest struct {
	Target
}

type GranularityResponse struct {
	Device      string `json:"device"`
	Granularity int    `json:"granularity"`
}

// ActiveBlocksRequest leaves DynamicSmemSize nil to use the kernel's own model.
type ActiveBlocksRequest struct {
	Target
	BlockSize       int  `json:"blockSize"`
	DynamicSmemSize *int `json:"dynamicSmemSize,omitempty"`
}

type ActiveBlocksResponse struct {
	Device          string            `json:"device"`
	Kernel          string            `json:"kernel"`
	BlockSize       int               `json:"blockSize"`
	DynamicSmemSize int               `json:"dynamicSmemSize"`
	Occupancy       float64           `json:"occupancy"`
	LimitingFactors []string          `json:"limitingFactors"`
	Result          *occupancy.Result `json:"result"`
}

type DynamicSmemRequest struct {
	Target
	NumBlocks int `json:"numBlocks"`
	BlockSize int `json:"blockSize"`
}

type DynamicSmemResponse struct {
	Device          string `json:"device"`
	Kernel          string `json:"kernel"`
	NumBlocks       int    `json:"numBlocks"`
	BlockSize       int    `json:"blockSize"`
	DynamicSmemSize int    `json:"dynamicSmemSize"`
}

// BlockSizeRequest leaves DynamicSmemSize nil to use the kernel's own model.
type BlockSizeRequest struct {
	Target
	DynamicSmemSize *int `json:"dynamicSmemSize,omitempty"`
}

type BlockSizeResponse struct {
	Device          string  `json:"device"`
	Kernel          string  `json:"kernel"`
	MinGridSize     int     `json:"minGridSize"`
	BlockSize       int     `json:"blockSize"`
	DynamicSmemSize int     `json:"dynamicSmemSize"`
	Occupancy       float64 `json:"occupancy"`
}

type SweepRequest = BlockSizeRequest

type SweepCandidate struct {
	BlockSize       int      `json:"blockSize"`
	DynamicSmemSize int      `json:"dynamicSmemSize"`
	ActiveBlocks    int      `json:"activeBlocks"`
	Occupancy       float64  `json:"occupancy"`
	LimitingFactors []string `json:"limitingFactors"`
}

type SweepSummary struct {
	MeanOccupancy   float64 `json:"meanOccupancy"`
	StdDevOccupancy float64 `json:"stdDevOccupancy"`
	BestBlockSize   int     `json:"bestBlockSize"`
	BestOccupancy   float64 `json:"bestOccupancy"`
	ZeroOccupancy   int     `json:"zeroOccupancy"`
}

type SweepResponse struct {
	Device     string           `json:"device"`
	Kernel     string           `json:"kernel"`
	Candidates []SweepCandidate `json:"candidates"`
	Summary    SweepSummary     `json:"summary"`
}

type ComputeCapabilityRequest struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

type ComputeCapabilityResponse struct {
	Supported    bool                    `json:"supported"`
	Newest       string                  `json:"newest"`
	Architecture *occupancy.Architecture `json:"architecture,omitempty"`
	Presets      []string                `json:"presets"`
}

type Device struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Properties  occupancy.DeviceProperties `json:"properties"`
}

type DevicesResponse struct {
	Devices []Device `json:"devices"`
}
