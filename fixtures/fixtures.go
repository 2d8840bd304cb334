package fixtures

import (
	_ "embed"
)

//go:embed devices/devices.yaml
var DeviceCatalog []byte

//go:embed config/config.yaml.template
var ConfigTemplate []byte

//go:embed config/kernels.yaml.template
var KernelsTemplate []byte
