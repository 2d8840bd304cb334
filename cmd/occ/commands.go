package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/fxnlabs/occupancy/fixtures"
	"github.com/fxnlabs/occupancy/internal/advisor"
	"github.com/fxnlabs/occupancy/internal/gpu"
	"github.com/fxnlabs/occupancy/internal/logger"
	"github.com/fxnlabs/occupancy/internal/server"
	"github.com/fxnlabs/occupancy/pkg/occclient"
	"github.com/fxnlabs/occupancy/pkg/occupancy"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func targetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "device", Aliases: []string{"d"}, Usage: "Device preset name or sm_XY"},
		&cli.StringFlag{Name: "kernel", Aliases: []string{"k"}, Usage: "Kernel name from the kernel catalog"},
		&cli.IntFlag{Name: "cache-config", Usage: "Cache preference: 0 none, 1 shared, 2 L1, 3 equal"},
		&cli.IntFlag{Name: "carveout", Usage: "Shared memory carveout percent, -1 for the default"},
		&cli.BoolFlag{Name: "json", Usage: "Print the raw JSON result"},
	}
}

func withTargetFlags(flags ...cli.Flag) []cli.Flag {
	return append(targetFlags(), flags...)
}

// targetFrom builds a query target from the command's flags. Unset state flags keep
// the configured device state.
func targetFrom(c *cli.Context, rt *session) occclient.Target {
	target := occclient.Target{
		Device: c.String("device"),
		Kernel: c.String("kernel"),
	}
	if c.IsSet("cache-config") || c.IsSet("carveout") {
		state := rt.cfg.DeviceState
		if c.IsSet("cache-config") {
			state.CacheConfig = occupancy.CacheConfig(c.Int("cache-config"))
		}
		if c.IsSet("carveout") {
			state.CarveoutConfig = c.Int("carveout")
		}
		target.State = &state
	}
	return target
}

func optionalInt(c *cli.Context, name string) *int {
	if !c.IsSet(name) {
		return nil
	}
	v := c.Int(name)
	return &v
}

// query runs one advisor query locally and prints the result.
func query(c *cli.Context, rt *session, queryType string, payload interface{}, render func(interface{}) error) error {
	env, err := rt.environment()
	if err != nil {
		return err
	}
	result, err := advisor.Run(occclient.Query{Type: queryType, Payload: payload}, env, rt.log.Named("advisor"))
	if err != nil {
		return err
	}
	if c.Bool("json") || render == nil {
		return printJSON(c.App.Writer, result)
	}
	return render(result)
}

func initCommand(rt *session) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a default config and kernel catalog into the home directory",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Overwrite existing files"},
		},
		Action: func(c *cli.Context) error {
			if err := os.MkdirAll(rt.home, 0755); err != nil {
				return err
			}
			files := []struct {
				name string
				data []byte
			}{
				{"config.yaml", fixtures.ConfigTemplate},
				{"kernels.yaml", fixtures.KernelsTemplate},
			}
			for _, f := range files {
				path := filepath.Join(rt.home, f.name)
				if _, err := os.Stat(path); err == nil && !c.Bool("force") {
					rt.log.Info("File exists, skipping", zap.String("path", path))
					continue
				} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
					return err
				}
				if err := os.WriteFile(path, f.data, 0644); err != nil {
					return err
				}
				rt.log.Info("Wrote file", zap.String("path", path))
			}
			return nil
		},
	}
}

func devicesCommand(rt *session) *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List the device presets",
		Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "Print the raw JSON result"}},
		Action: func(c *cli.Context) error {
			catalog, err := server.NewCatalog(rt.cfg, rt.log)
			if err != nil {
				return err
			}
			presets := catalog.Presets()
			if c.Bool("json") {
				return printJSON(c.App.Writer, presets)
			}
			return printPresets(c.App.Writer, presets)
		},
	}
}

func detectCommand(rt *session) *cli.Command {
	return &cli.Command{
		Name:  "detect",
		Usage: "Detect local NVIDIA GPUs and match them to device presets",
		Action: func(c *cli.Context) error {
			catalog, err := server.NewCatalog(rt.cfg, rt.log)
			if err != nil {
				return err
			}
			devices, err := gpu.NewProbe(nil, rt.log.Named("probe")).Detect()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Fprintln(c.App.Writer, "No NVIDIA GPUs detected.")
				return nil
			}
			return printDetected(c.App.Writer, devices, catalog)
		},
	}
}

func granularityCommand(rt *session) *cli.Command {
	return &cli.Command{
		Name:  "granularity",
		Usage: "Print the shared memory allocation granularity of a device",
		Flags: targetFlags(),
		Action: func(c *cli.Context) error {
			req := occclient.GranularityRequest{Target: targetFrom(c, rt)}
			return query(c, rt, occclient.TypeGranularity, req, func(result interface{}) error {
				resp := result.(*occclient.GranularityResponse)
				_, err := fmt.Fprintf(c.App.Writer, "%s: %d bytes\n", resp.Device, resp.Granularity)
				return err
			})
		},
	}
}

func activeBlocksCommand(rt *session) *cli.Command {
	return &cli.Command{
		Name:  "active-blocks",
		Usage: "Compute the resident blocks per multiprocessor for a launch configuration",
		Flags: withTargetFlags(
			&cli.IntFlag{Name: "block-size", Aliases: []string{"b"}, Required: true, Usage: "Threads per block"},
			&cli.IntFlag{Name: "dynamic-smem", Usage: "Dynamic shared memory per block in bytes (default: the kernel's model)"},
		),
		Action: func(c *cli.Context) error {
			req := occclient.ActiveBlocksRequest{
				Target:          targetFrom(c, rt),
				BlockSize:       c.Int("block-size"),
				DynamicSmemSize: optionalInt(c, "dynamic-smem"),
			}
			return query(c, rt, occclient.TypeActiveBlocks, req, func(result interface{}) error {
				return printActiveBlocks(c.App.Writer, result.(*occclient.ActiveBlocksResponse))
			})
		},
	}
}

func dynamicSmemCommand(rt *session) *cli.Command {
	return &cli.Command{
		Name:  "dynamic-smem",
		Usage: "Compute the dynamic shared memory available per block for a residency target",
		Flags: withTargetFlags(
			&cli.IntFlag{Name: "num-blocks", Aliases: []string{"n"}, Required: true, Usage: "Blocks that must be resident per multiprocessor"},
			&cli.IntFlag{Name: "block-size", Aliases: []string{"b"}, Required: true, Usage: "Threads per block"},
		),
		Action: func(c *cli.Context) error {
			req := occclient.DynamicSmemRequest{
				Target:    targetFrom(c, rt),
				NumBlocks: c.Int("num-blocks"),
				BlockSize: c.Int("block-size"),
			}
			return query(c, rt, occclient.TypeDynamicSmem, req, func(result interface{}) error {
				resp := result.(*occclient.DynamicSmemResponse)
				_, err := fmt.Fprintf(c.App.Writer, "%s/%s: %d bytes of dynamic shared memory per block for %d blocks of %d threads\n",
					resp.Device, resp.Kernel, resp.DynamicSmemSize, resp.NumBlocks, resp.BlockSize)
				return err
			})
		},
	}
}

func blockSizeCommand(rt *session) *cli.Command {
	return &cli.Command{
		Name:  "block-size",
		Usage: "Recommend the block size with the most resident threads",
		Flags: withTargetFlags(
			&cli.IntFlag{Name: "dynamic-smem", Usage: "Dynamic shared memory per block in bytes (default: the kernel's model)"},
		),
		Action: func(c *cli.Context) error {
			req := occclient.BlockSizeRequest{
				Target:          targetFrom(c, rt),
				DynamicSmemSize: optionalInt(c, "dynamic-smem"),
			}
			return query(c, rt, occclient.TypeBlockSize, req, func(result interface{}) error {
				resp := result.(*occclient.BlockSizeResponse)
				_, err := fmt.Fprintf(c.App.Writer, "%s/%s: block size %d, min grid size %d, occupancy %.1f%%\n",
					resp.Device, resp.Kernel, resp.BlockSize, resp.MinGridSize, resp.Occupancy*100)
				return err
			})
		},
	}
}

func sweepCommand(rt *session) *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Evaluate every candidate block size",
		Flags: withTargetFlags(
			&cli.IntFlag{Name: "dynamic-smem", Usage: "Dynamic shared memory per block in bytes (default: the kernel's model)"},
		),
		Action: func(c *cli.Context) error {
			req := occclient.SweepRequest{
				Target:          targetFrom(c, rt),
				DynamicSmemSize: optionalInt(c, "dynamic-smem"),
			}
			return query(c, rt, occclient.TypeSweep, req, func(result interface{}) error {
				return printSweep(c.App.Writer, result.(*occclient.SweepResponse))
			})
		},
	}
}

func computeCapabilityCommand(rt *session) *cli.Command {
	return &cli.Command{
		Name:      "compute-capability",
		Usage:     "Show the architecture constants for a compute capability",
		ArgsUsage: "MAJOR.MINOR",
		Flags:     []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "Print the raw JSON result"}},
		Action: func(c *cli.Context) error {
			major, minor, err := parseComputeCapability(c.Args().First())
			if err != nil {
				return err
			}
			req := occclient.ComputeCapabilityRequest{Major: major, Minor: minor}
			return query(c, rt, occclient.TypeComputeCapability, req, func(result interface{}) error {
				return printComputeCapability(c.App.Writer, major, minor, result.(*occclient.ComputeCapabilityResponse))
			})
		},
	}
}

func parseComputeCapability(s string) (major, minor int, err error) {
	s = strings.TrimPrefix(strings.ToLower(s), "sm_")
	majorStr, minorStr, ok := strings.Cut(s, ".")
	if !ok && len(s) >= 2 {
		majorStr, minorStr, ok = s[:len(s)-1], s[len(s)-1:], true
	}
	if !ok {
		return 0, 0, fmt.Errorf("invalid compute capability %q, expected MAJOR.MINOR", s)
	}
	if major, err = strconv.Atoi(majorStr); err != nil {
		return 0, 0, fmt.Errorf("invalid compute capability %q: %w", s, err)
	}
	if minor, err = strconv.Atoi(minorStr); err != nil {
		return 0, 0, fmt.Errorf("invalid compute capability %q: %w", s, err)
	}
	return major, minor, nil
}

func serveCommand(rt *session) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the advisor over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen-address", Usage: "Address to listen on"},
			&cli.IntFlag{Name: "listen-port", Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			if c.IsSet("listen-address") {
				rt.cfg.Server.ListenAddress = c.String("listen-address")
			}
			if c.IsSet("listen-port") {
				rt.cfg.Server.ListenPort = c.Int("listen-port")
			}

			figure.NewFigure("occ", "", true).Print()
			fmt.Println("")

			serviceLogger, err := logger.New(rt.cfg.Logger.Verbosity)
			if err != nil {
				return err
			}
			app := server.NewApp(rt.cfg, serviceLogger)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}
