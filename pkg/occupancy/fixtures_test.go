package occupancy

// voltaLike matches the worked example: 64KB shared memory and 64K registers per SM,
// 2048 threads and 32 blocks per SM, warps of 32.
func voltaLike() *DeviceProperties {
	return &DeviceProperties{
		ComputeMajor:                7,
		ComputeMinor:                0,
		MaxThreadsPerBlock:          1024,
		MaxThreadsPerMultiprocessor: 2048,
		RegsPerBlock:                65536,
		RegsPerMultiprocessor:       65536,
		WarpSize:                    32,
		SharedMemPerBlock:           49152,
		SharedMemPerMultiprocessor:  65536,
		NumSMs:                      80,
		SharedMemPerBlockOptin:      65536,
	}
}

// sm86 is an RTX A2000 12GB.
func sm86() *DeviceProperties {
	return &DeviceProperties{
		ComputeMajor:                8,
		ComputeMinor:                6,
		MaxThreadsPerBlock:          1024,
		MaxThreadsPerMultiprocessor: 1536,
		RegsPerBlock:                65536,
		RegsPerMultiprocessor:       65536,
		WarpSize:                    32,
		SharedMemPerBlock:           49152,
		SharedMemPerMultiprocessor:  102400,
		NumSMs:                      26,
		SharedMemPerBlockOptin:      101376,
		ReservedSharedMemPerBlock:   1024,
	}
}

func sm90() *DeviceProperties {
	return &DeviceProperties{
		ComputeMajor:                9,
		ComputeMinor:                0,
		MaxThreadsPerBlock:          1024,
		MaxThreadsPerMultiprocessor: 2048,
		RegsPerBlock:                65536,
		RegsPerMultiprocessor:       65536,
		WarpSize:                    32,
		SharedMemPerBlock:           49152,
		SharedMemPerMultiprocessor:  233472,
		NumSMs:                      132,
		SharedMemPerBlockOptin:      232448,
		ReservedSharedMemPerBlock:   1024,
	}
}

func kepler() *DeviceProperties {
	return &DeviceProperties{
		ComputeMajor:                3,
		ComputeMinor:                5,
		MaxThreadsPerBlock:          1024,
		MaxThreadsPerMultiprocessor: 2048,
		RegsPerBlock:                65536,
		RegsPerMultiprocessor:       65536,
		WarpSize:                    32,
		SharedMemPerBlock:           49152,
		SharedMemPerMultiprocessor:  49152,
		NumSMs:                      15,
	}
}

func pascal(minor int) *DeviceProperties {
	return &DeviceProperties{
		ComputeMajor:                6,
		ComputeMinor:                minor,
		MaxThreadsPerBlock:          1024,
		MaxThreadsPerMultiprocessor: 2048,
		RegsPerBlock:                65536,
		RegsPerMultiprocessor:       65536,
		WarpSize:                    32,
		SharedMemPerBlock:           49152,
		SharedMemPerMultiprocessor:  98304,
		NumSMs:                      20,
	}
}

func kernel(numRegs int) *FunctionAttributes {
	return &FunctionAttributes{
		MaxThreadsPerBlock: MaxThreadsPerBlockUnlimited,
		NumRegs:            numRegs,
	}
}

func defaultState() *DeviceState {
	s := DefaultDeviceState()
	return &s
}
