package advisor

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fxnlabs/occupancy/internal/config"
	"github.com/fxnlabs/occupancy/internal/gpu"
	"github.com/fxnlabs/occupancy/pkg/occclient"
	"github.com/fxnlabs/occupancy/pkg/occupancy"
	"go.uber.org/zap"
)

var (
	// ErrUnknownQueryType is returned by NewAdvisor for a type it has no advisor for.
	ErrUnknownQueryType = errors.New("unknown query type")
	// ErrInvalidPayload is returned when a payload does not decode into the query's request.
	ErrInvalidPayload = errors.New("invalid payload")
)

// Advisor answers one type of query.
type Advisor interface {
	Execute(payload interface{}, log *zap.Logger) (interface{}, error)
}

// Environment is what advisors resolve device and kernel names against.
type Environment struct {
	Catalog       *gpu.Catalog
	Kernels       *config.KernelConfig
	DefaultDevice string
	State         occupancy.DeviceState
}

// NewAdvisor creates a new advisor based on the query type.
func NewAdvisor(queryType string, env *Environment) (Advisor, error) {
	switch queryType {
	case occclient.TypeGranularity:
		return &GranularityAdvisor{env: env}, nil
	case occclient.TypeActiveBlocks:
		return &ActiveBlocksAdvisor{env: env}, nil
	case occclient.TypeDynamicSmem:
		return &DynamicSmemAdvisor{env: env}, nil
	case occclient.TypeBlockSize:
		return &BlockSizeAdvisor{env: env}, nil
	case occclient.TypeSweep:
		return &SweepAdvisor{env: env}, nil
	case occclient.TypeComputeCapability:
		return &ComputeCapabilityAdvisor{env: env}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueryType, queryType)
	}
}

// decodePayload round-trips the generic payload through JSON into a typed request.
func decodePayload(payload interface{}, v interface{}, log *zap.Logger) error {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error("Failed to marshal payload", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn("Failed to unmarshal payload", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// launchTarget is a Target resolved to concrete values.
type launchTarget struct {
	device     string
	calc       *occupancy.Calculator
	kernelName string
	kernel     *config.Kernel
}

func (t *launchTarget) properties() *occupancy.DeviceProperties {
	props := t.calc.Properties()
	return &props
}

func (env *Environment) resolveDevice(target occclient.Target) (string, *occupancy.Calculator, error) {
	state := env.State
	if target.State != nil {
		state = *target.State
	}

	if target.Properties != nil {
		calc, err := occupancy.NewCalculator(*target.Properties, state)
		return "custom", calc, err
	}

	name := target.Device
	if name == "" {
		name = env.DefaultDevice
	}
	preset, err := env.Catalog.Lookup(name)
	if err != nil {
		return "", nil, err
	}
	calc, err := occupancy.NewCalculator(preset.Properties, state)
	return preset.Name, calc, err
}

func (env *Environment) resolve(target occclient.Target, log *zap.Logger) (*launchTarget, error) {
	device, calc, err := env.resolveDevice(target)
	if err != nil {
		return nil, err
	}

	if target.Attributes != nil {
		attrs := *target.Attributes
		if attrs.MaxThreadsPerBlock == 0 {
			attrs.MaxThreadsPerBlock = occupancy.MaxThreadsPerBlockUnlimited
		}
		return &launchTarget{
			device:     device,
			calc:       calc,
			kernelName: "custom",
			kernel:     &config.Kernel{Attributes: attrs},
		}, nil
	}

	name := target.Kernel
	if name == "" {
		name = "default"
	}
	if env.Kernels == nil {
		return nil, fmt.Errorf("%w: %s", config.ErrKernelNotFound, name)
	}
	kernel, err := env.Kernels.GetKernel(name, log)
	if err != nil {
		return nil, err
	}
	return &launchTarget{device: device, calc: calc, kernelName: kernel.Name, kernel: kernel}, nil
}
