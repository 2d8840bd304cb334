package gpu

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fxnlabs/occupancy/fixtures"
	"github.com/fxnlabs/occupancy/pkg/occupancy"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrDeviceNotFound is returned when a name matches no preset in the catalog.
var ErrDeviceNotFound = errors.New("device not found")

// Preset is a named set of device properties.
type Preset struct {
	Name        string                     `yaml:"-" json:"name"`
	Description string                     `yaml:"description" json:"description"`
	Properties  occupancy.DeviceProperties `yaml:"properties" json:"properties"`
}

type catalogFile struct {
	Devices map[string]Preset `yaml:"devices"`
}

var computeCapabilityName = regexp.MustCompile(`^sm_?(\d+)(\d)$`)

// Catalog holds the device presets the advisor can compute against.
// It is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	presets map[string]Preset
	logger  *zap.Logger
}

// NewCatalog creates an empty catalog.
func NewCatalog(logger *zap.Logger) *Catalog {
	return &Catalog{
		presets: make(map[string]Preset),
		logger:  logger,
	}
}

// NewDefaultCatalog creates a catalog holding the built-in presets.
func NewDefaultCatalog(logger *zap.Logger) (*Catalog, error) {
	c := NewCatalog(logger)
	if err := c.Load(fixtures.DeviceCatalog); err != nil {
		return nil, fmt.Errorf("failed to load built-in device catalog: %w", err)
	}
	return c, nil
}

// LoadFile merges the presets in a YAML catalog file into c.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.Load(data)
}

// Load merges YAML catalog data into c. Nothing is merged if any preset is invalid.
func (c *Catalog) Load(data []byte) error {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}

	presets := make([]Preset, 0, len(file.Devices))
	for name, p := range file.Devices {
		p.Name = name
		if err := validate(p); err != nil {
			return err
		}
		presets = append(presets, p)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range presets {
		c.presets[strings.ToLower(p.Name)] = p
	}
	c.logger.Debug("loaded device presets", zap.Int("count", len(presets)))
	return nil
}

// Register adds or replaces a single preset.
func (c *Catalog) Register(p Preset) error {
	if err := validate(p); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presets[strings.ToLower(p.Name)] = p
	return nil
}

func validate(p Preset) error {
	if p.Name == "" {
		return fmt.Errorf("device preset has no name")
	}
	if _, err := occupancy.NewCalculator(p.Properties, occupancy.DefaultDeviceState()); err != nil {
		return fmt.Errorf("device preset %q: %w", p.Name, err)
	}
	return nil
}

// Lookup finds a preset by name, case-insensitively. Names of the form "sm_86" or
// "sm86" match the first preset, by name, with that compute capability.
func (c *Catalog) Lookup(name string) (Preset, error) {
	key := strings.ToLower(strings.TrimSpace(name))

	c.mu.RLock()
	p, ok := c.presets[key]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	if m := computeCapabilityName.FindStringSubmatch(key); m != nil {
		major, _ := strconv.Atoi(m[1])
		minor, _ := strconv.Atoi(m[2])
		if p, ok := c.FindByComputeCapability(major, minor); ok {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
}

// FindByComputeCapability returns the first preset, ordered by name, with the given
// compute capability.
func (c *Catalog) FindByComputeCapability(major, minor int) (Preset, bool) {
	for _, p := range c.Presets() {
		if p.Properties.ComputeMajor == major && p.Properties.ComputeMinor == minor {
			return p, true
		}
	}
	return Preset{}, false
}

// Presets returns every preset ordered by name.
func (c *Catalog) Presets() []Preset {
	c.mu.RLock()
	defer c.mu.RUnlock()

	presets := make([]Preset, 0, len(c.presets))
	for _, p := range c.presets {
		presets = append(presets, p)
	}
	sort.Slice(presets, func(i, j int) bool { return presets[i].Name < presets[j].Name })
	return presets
}

// Match finds the preset for a detected device. A preset whose description equals the
// reported name wins over one that only shares the compute capability.
func (c *Catalog) Match(d DetectedDevice) (Preset, bool) {
	var fallback *Preset
	for _, p := range c.Presets() {
		if p.Properties.ComputeMajor != d.ComputeMajor || p.Properties.ComputeMinor != d.ComputeMinor {
			continue
		}
		if strings.EqualFold(p.Description, d.Name) {
			return p, true
		}
		if fallback == nil {
			p := p
			fallback = &p
		}
	}
	if fallback == nil {
		return Preset{}, false
	}
	return *fallback, true
}
