package gpu

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// DetectedDevice is the identity of a GPU as reported by nvidia-smi.
type DetectedDevice struct {
	Index         int    `json:"index"`
	Name          string `json:"name"`
	ComputeMajor  int    `json:"computeMajor"`
	ComputeMinor  int    `json:"computeMinor"`
	MemoryTotalMB int    `json:"memoryTotalMB"`
}

// CommandRunner runs a command and returns its standard output.
type CommandRunner func(name string, args ...string) ([]byte, error)

// ExecRunner runs commands on the host.
func ExecRunner(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

var nvidiaSMIArgs = []string{
	"--query-gpu=index,name,compute_cap,memory.total",
	"--format=csv,noheader,nounits",
}

// Probe queries the local GPUs.
type Probe struct {
	run    CommandRunner
	logger *zap.Logger
}

// NewProbe creates a probe; a nil runner means ExecRunner.
func NewProbe(run CommandRunner, logger *zap.Logger) *Probe {
	if run == nil {
		run = ExecRunner
	}
	return &Probe{run: run, logger: logger}
}

// Detect lists the local NVIDIA GPUs. A host without nvidia-smi has no devices.
func (p *Probe) Detect() ([]DetectedDevice, error) {
	output, err := p.run("nvidia-smi", nvidiaSMIArgs...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			p.logger.Warn("nvidia-smi command not found, no devices detected")
			return nil, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.logger.Error("nvidia-smi failed", zap.Error(exitErr), zap.String("stderr", string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("failed to execute nvidia-smi: %w", err)
	}

	var devices []DetectedDevice
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		d, err := parseDeviceLine(line)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	p.logger.Debug("detected devices", zap.Int("count", len(devices)))
	return devices, nil
}

func parseDeviceLine(line string) (DetectedDevice, error) {
	values := strings.Split(line, ",")
	if len(values) != 4 {
		return DetectedDevice{}, fmt.Errorf("unexpected nvidia-smi line %q", line)
	}
	for i := range values {
		values[i] = strings.TrimSpace(values[i])
	}

	index, err := strconv.Atoi(values[0])
	if err != nil {
		return DetectedDevice{}, fmt.Errorf("invalid device index %q: %w", values[0], err)
	}
	major, minor, err := parseComputeCapability(values[2])
	if err != nil {
		return DetectedDevice{}, err
	}
	memory, err := strconv.Atoi(values[3])
	if err != nil {
		return DetectedDevice{}, fmt.Errorf("invalid memory total %q: %w", values[3], err)
	}

	return DetectedDevice{
		Index:         index,
		Name:          values[1],
		ComputeMajor:  major,
		ComputeMinor:  minor,
		MemoryTotalMB: memory,
	}, nil
}

func parseComputeCapability(s string) (major, minor int, err error) {
	majorStr, minorStr, ok := strings.Cut(s, ".")
	if !ok {
		return 0, 0, fmt.Errorf("invalid compute capability %q", s)
	}
	if major, err = strconv.Atoi(majorStr); err != nil {
		return 0, 0, fmt.Errorf("invalid compute capability %q: %w", s, err)
	}
	if minor, err = strconv.Atoi(minorStr); err != nil {
		return 0, 0, fmt.Errorf("invalid compute capability %q: %w", s, err)
	}
	return major, minor, nil
}
