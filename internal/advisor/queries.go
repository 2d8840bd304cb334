package advisor

import (
	"github.com/fxnlabs/occupancy/internal/metrics"
	"github.com/fxnlabs/occupancy/pkg/occclient"
	"github.com/fxnlabs/occupancy/pkg/occupancy"
	"go.uber.org/zap"
)

// GranularityAdvisor reports the shared memory allocation unit of a device.
type GranularityAdvisor struct {
	env *Environment
}

func (a *GranularityAdvisor) Execute(payload interface{}, log *zap.Logger) (interface{}, error) {
	var req occclient.GranularityRequest
	if err := decodePayload(payload, &req, log); err != nil {
		return nil, err
	}

	device, calc, err := a.env.resolveDevice(req.Target)
	if err != nil {
		return nil, err
	}
	granularity, err := calc.SharedMemAllocationGranularity()
	if err != nil {
		return nil, err
	}
	return &occclient.GranularityResponse{Device: device, Granularity: granularity}, nil
}

// ActiveBlocksAdvisor computes the resident blocks per SM for one launch configuration.
type ActiveBlocksAdvisor struct {
	env *Environment
}

func (a *ActiveBlocksAdvisor) Execute(payload interface{}, log *zap.Logger) (interface{}, error) {
	var req occclient.ActiveBlocksRequest
	if err := decodePayload(payload, &req, log); err != nil {
		return nil, err
	}

	target, err := a.env.resolve(req.Target, log)
	if err != nil {
		return nil, err
	}

	dynamic := target.kernel.DynamicSharedMemory.Size(req.BlockSize)
	if req.DynamicSmemSize != nil {
		dynamic = *req.DynamicSmemSize
	}

	result, err := target.calc.MaxActiveBlocksPerMultiprocessor(&target.kernel.Attributes, nil, req.BlockSize, dynamic)
	if err != nil {
		return nil, err
	}
	if result.ActiveBlocksPerMultiprocessor == 0 {
		metrics.ZeroOccupancyResults.Inc()
		log.Info("Launch configuration cannot run",
			zap.String("device", target.device),
			zap.String("kernel", target.kernelName),
			zap.Int("blockSize", req.BlockSize),
			zap.Stringer("limitingFactors", result.LimitingFactors))
	}

	return &occclient.ActiveBlocksResponse{
		Device:          target.device,
		Kernel:          target.kernelName,
		BlockSize:       req.BlockSize,
		DynamicSmemSize: dynamic,
		Occupancy:       result.Occupancy(target.properties(), req.BlockSize),
		LimitingFactors: factorNames(result.LimitingFactors),
		Result:          result,
	}, nil
}

// DynamicSmemAdvisor finds the dynamic shared memory left per block for a residency target.
type DynamicSmemAdvisor struct {
	env *Environment
}

func (a *DynamicSmemAdvisor) Execute(payload interface{}, log *zap.Logger) (interface{}, error) {
	var req occclient.DynamicSmemRequest
	if err := decodePayload(payload, &req, log); err != nil {
		return nil, err
	}

	target, err := a.env.resolve(req.Target, log)
	if err != nil {
		return nil, err
	}

	size, err := target.calc.AvailableDynamicSharedMemory(&target.kernel.Attributes, nil, req.NumBlocks, req.BlockSize)
	if err != nil {
		return nil, err
	}
	return &occclient.DynamicSmemResponse{
		Device:          target.device,
		Kernel:          target.kernelName,
		NumBlocks:       req.NumBlocks,
		BlockSize:       req.BlockSize,
		DynamicSmemSize: size,
	}, nil
}

// BlockSizeAdvisor recommends the block size with the most resident threads.
type BlockSizeAdvisor struct {
	env *Environment
}

func (a *BlockSizeAdvisor) Execute(payload interface{}, log *zap.Logger) (interface{}, error) {
	var req occclient.BlockSizeRequest
	if err := decodePayload(payload, &req, log); err != nil {
		return nil, err
	}

	target, err := a.env.resolve(req.Target, log)
	if err != nil {
		return nil, err
	}
	fn, dynamic := dynamicSmemModel(target, req.DynamicSmemSize)

	minGridSize, blockSize, err := target.calc.MaxPotentialOccupancyBlockSize(&target.kernel.Attributes, nil, fn, dynamic)
	if err != nil {
		return nil, err
	}
	if fn != nil {
		dynamic = fn(blockSize)
	}
	result, err := target.calc.MaxActiveBlocksPerMultiprocessor(&target.kernel.Attributes, nil, blockSize, dynamic)
	if err != nil {
		return nil, err
	}

	metrics.RecommendedBlockSize.WithLabelValues(target.device).Set(float64(blockSize))
	log.Debug("Recommended block size",
		zap.String("device", target.device),
		zap.String("kernel", target.kernelName),
		zap.Int("blockSize", blockSize),
		zap.Int("minGridSize", minGridSize))

	return &occclient.BlockSizeResponse{
		Device:          target.device,
		Kernel:          target.kernelName,
		MinGridSize:     minGridSize,
		BlockSize:       blockSize,
		DynamicSmemSize: dynamic,
		Occupancy:       result.Occupancy(target.properties(), blockSize),
	}, nil
}

// SweepAdvisor evaluates every candidate block size and summarizes the spread.
type SweepAdvisor struct {
	env *Environment
}

func (a *SweepAdvisor) Execute(payload interface{}, log *zap.Logger) (interface{}, error) {
	var req occclient.SweepRequest
	if err := decodePayload(payload, &req, log); err != nil {
		return nil, err
	}

	target, err := a.env.resolve(req.Target, log)
	if err != nil {
		return nil, err
	}
	fn, dynamic := dynamicSmemModel(target, req.DynamicSmemSize)

	candidates, err := target.calc.Sweep(&target.kernel.Attributes, nil, fn, dynamic)
	if err != nil {
		return nil, err
	}
	metrics.SweepCandidates.Observe(float64(len(candidates)))

	props := target.properties()
	resp := &occclient.SweepResponse{
		Device:     target.device,
		Kernel:     target.kernelName,
		Candidates: make([]occclient.SweepCandidate, 0, len(candidates)),
	}
	for _, c := range candidates {
		resp.Candidates = append(resp.Candidates, occclient.SweepCandidate{
			BlockSize:       c.BlockSize,
			DynamicSmemSize: c.DynamicSmemSize,
			ActiveBlocks:    c.Result.ActiveBlocksPerMultiprocessor,
			Occupancy:       c.Result.Occupancy(props, c.BlockSize),
			LimitingFactors: factorNames(c.Result.LimitingFactors),
		})
	}
	resp.Summary = summarize(resp.Candidates)

	return resp, nil
}

// ComputeCapabilityAdvisor reports whether a compute capability is supported and
// what its architecture constants are.
type ComputeCapabilityAdvisor struct {
	env *Environment
}

func (a *ComputeCapabilityAdvisor) Execute(payload interface{}, log *zap.Logger) (interface{}, error) {
	var req occclient.ComputeCapabilityRequest
	if err := decodePayload(payload, &req, log); err != nil {
		return nil, err
	}

	major, minor := occupancy.MaxComputeCapability()
	resp := &occclient.ComputeCapabilityResponse{
		Newest:  formatComputeCapability(major, minor),
		Presets: []string{},
	}

	arch, err := occupancy.ArchitectureOf(&occupancy.DeviceProperties{ComputeMajor: req.Major, ComputeMinor: req.Minor})
	if err != nil {
		log.Debug("Unsupported compute capability", zap.Int("major", req.Major), zap.Int("minor", req.Minor))
		return resp, nil
	}
	resp.Supported = true
	resp.Architecture = &arch

	for _, p := range a.env.Catalog.Presets() {
		if p.Properties.ComputeMajor == req.Major && p.Properties.ComputeMinor == req.Minor {
			resp.Presets = append(resp.Presets, p.Name)
		}
	}
	return resp, nil
}

// dynamicSmemModel picks the explicit size when one is given, otherwise the kernel's
// per-block-size model.
func dynamicSmemModel(target *launchTarget, explicit *int) (occupancy.SharedMemSizeFunc, int) {
	if explicit != nil {
		return nil, *explicit
	}
	return target.kernel.SharedMemSizeFunc(), target.kernel.DynamicSharedMemory.Bytes
}

func factorNames(f occupancy.LimitingFactor) []string {
	names := f.Names()
	if names == nil {
		return []string{}
	}
	return names
}
