package occupancy

// Calculator binds the occupancy operations to one device and its default state.
// It holds copies of its inputs and is safe for concurrent use.
type Calculator struct {
	props DeviceProperties
	state DeviceState
}

// NewCalculator validates props and state and returns a Calculator for them.
func NewCalculator(props DeviceProperties, state DeviceState) (*Calculator, error) {
	if err := checkDeviceProperties(&props); err != nil {
		return nil, err
	}
	if err := checkDeviceState(&state); err != nil {
		return nil, err
	}
	if _, err := ArchitectureOf(&props); err != nil {
		return nil, err
	}
	return &Calculator{props: props, state: state}, nil
}

// Properties returns a copy of the device properties.
func (c *Calculator) Properties() DeviceProperties {
	return c.props
}

// State returns the default device state.
func (c *Calculator) State() DeviceState {
	return c.state
}

// resolve picks the override when one is given.
func (c *Calculator) resolve(state *DeviceState) *DeviceState {
	if state != nil {
		return state
	}
	s := c.state
	return &s
}

// SharedMemAllocationGranularity reports the granularity of the calculator's device.
func (c *Calculator) SharedMemAllocationGranularity() (int, error) {
	props := c.props
	return SharedMemAllocationGranularity(&props)
}

// MaxActiveBlocksPerMultiprocessor uses the calculator's state when state is nil.
func (c *Calculator) MaxActiveBlocksPerMultiprocessor(attrs *FunctionAttributes, state *DeviceState, blockSize, dynamicSmemSize int) (*Result, error) {
	props := c.props
	return MaxActiveBlocksPerMultiprocessor(&props, attrs, c.resolve(state), blockSize, dynamicSmemSize)
}

// AvailableDynamicSharedMemory uses the calculator's state when state is nil.
func (c *Calculator) AvailableDynamicSharedMemory(attrs *FunctionAttributes, state *DeviceState, numBlocks, blockSize int) (int, error) {
	props := c.props
	return AvailableDynamicSharedMemory(&props, attrs, c.resolve(state), numBlocks, blockSize)
}

// MaxPotentialOccupancyBlockSize uses the calculator's state when state is nil.
func (c *Calculator) MaxPotentialOccupancyBlockSize(attrs *FunctionAttributes, state *DeviceState, smemSizeForBlockSize SharedMemSizeFunc, dynamicSmemSize int) (minGridSize, blockSize int, err error) {
	props := c.props
	return MaxPotentialOccupancyBlockSize(&props, attrs, c.resolve(state), smemSizeForBlockSize, dynamicSmemSize)
}

// Sweep uses the calculator's state when state is nil.
func (c *Calculator) Sweep(attrs *FunctionAttributes, state *DeviceState, smemSizeForBlockSize SharedMemSizeFunc, dynamicSmemSize int) ([]Candidate, error) {
	props := c.props
	return Sweep(&props, attrs, c.resolve(state), smemSizeForBlockSize, dynamicSmemSize)
}
