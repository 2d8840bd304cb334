package occupancy

// Candidate is one block size tried by a block size search.
type Candidate struct {
	BlockSize       int     `json:"blockSize"`
	DynamicSmemSize int     `json:"dynamicSmemSize"`
	Result          *Result `json:"result"`
}

// ResidentThreads is the number of threads of this candidate resident on one SM.
func (c Candidate) ResidentThreads() int {
	return c.BlockSize * c.Result.ActiveBlocksPerMultiprocessor
}

// MaxPotentialOccupancyBlockSize finds the block size that maximizes resident threads
// per SM, and the smallest grid that fills every SM at that block size.
//
// When smemSizeForBlockSize is non-nil it supplies the dynamic shared memory for each
// candidate and dynamicSmemSize is ignored. Ties go to the larger block size.
func MaxPotentialOccupancyBlockSize(
	props *DeviceProperties,
	attrs *FunctionAttributes,
	state *DeviceState,
	smemSizeForBlockSize SharedMemSizeFunc,
	dynamicSmemSize int,
) (minGridSize, blockSize int, err error) {
	var best Candidate
	err = searchBlockSizes(props, attrs, state, smemSizeForBlockSize, dynamicSmemSize, func(c Candidate) bool {
		if best.Result == nil || c.ResidentThreads() > best.ResidentThreads() {
			best = c
		}
		return best.ResidentThreads() < props.MaxThreadsPerMultiprocessor
	})
	if err != nil {
		return 0, 0, err
	}
	if best.Result == nil || best.Result.ActiveBlocksPerMultiprocessor == 0 {
		return 0, 0, invalidf("no block size gives non-zero occupancy")
	}
	return best.Result.ActiveBlocksPerMultiprocessor * props.NumSMs, best.BlockSize, nil
}

// Sweep evaluates every block size MaxPotentialOccupancyBlockSize would consider,
// largest first, without stopping early.
func Sweep(
	props *DeviceProperties,
	attrs *FunctionAttributes,
	state *DeviceState,
	smemSizeForBlockSize SharedMemSizeFunc,
	dynamicSmemSize int,
) ([]Candidate, error) {
	var candidates []Candidate
	err := searchBlockSizes(props, attrs, state, smemSizeForBlockSize, dynamicSmemSize, func(c Candidate) bool {
		candidates = append(candidates, c)
		return true
	})
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// searchBlockSizes walks block sizes from the largest allowed down in warp-size steps
// and hands each evaluated candidate to visit until visit returns false.
func searchBlockSizes(
	props *DeviceProperties,
	attrs *FunctionAttributes,
	state *DeviceState,
	smemSizeForBlockSize SharedMemSizeFunc,
	dynamicSmemSize int,
	visit func(Candidate) bool,
) error {
	if dynamicSmemSize < 0 {
		return invalidf("dynamic shared memory size %d is negative", dynamicSmemSize)
	}
	if err := checkInputs(props, attrs, state); err != nil {
		return err
	}

	granularity := props.WarpSize
	limit := min(props.MaxThreadsPerBlock, attrs.MaxThreadsPerBlock)
	for aligned := roundUpSaturating(limit, granularity); aligned > 0; aligned -= granularity {
		size := min(limit, aligned)

		dynamic := dynamicSmemSize
		if smemSizeForBlockSize != nil {
			dynamic = smemSizeForBlockSize(size)
		}

		result, err := MaxActiveBlocksPerMultiprocessor(props, attrs, state, size, dynamic)
		if err != nil {
			return err
		}
		if !visit(Candidate{BlockSize: size, DynamicSmemSize: dynamic, Result: result}) {
			return nil
		}
	}
	return nil
}
