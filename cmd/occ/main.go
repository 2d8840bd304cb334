package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fxnlabs/occupancy/internal/advisor"
	"github.com/fxnlabs/occupancy/internal/config"
	"github.com/fxnlabs/occupancy/internal/logger"
	"github.com/fxnlabs/occupancy/internal/server"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var version = "dev"

// session is what Before hands to the commands.
type session struct {
	home string
	cfg  *config.Config
	log  *zap.Logger
}

// environment builds the advisor environment the same way the server does.
func (r *session) environment() (*advisor.Environment, error) {
	catalog, err := server.NewCatalog(r.cfg, r.log)
	if err != nil {
		return nil, err
	}
	kernels, err := server.NewKernels(r.cfg)
	if err != nil {
		return nil, err
	}
	return server.NewEnvironment(r.cfg, catalog, kernels)
}

func newApp() *cli.App {
	rt := &session{}
	defaultHome, err := config.GetDefaultConfigHome()
	if err != nil {
		defaultHome = ".occ"
	}

	return &cli.App{
		Name:    "occ",
		Usage:   "Estimate GPU kernel occupancy and recommend launch configurations",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "home",
				Value:   defaultHome,
				Usage:   "Path to the occ home directory",
				EnvVars: []string{"OCC_HOME"},
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Load configuration from `FILE` (default: <home>/config.yaml)",
				EnvVars: []string{"OCC_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "catalog",
				Usage: "Merge extra device presets from `FILE`",
			},
			&cli.StringFlag{
				Name:  "kernels",
				Usage: "Load the kernel catalog from `FILE`",
			},
			&cli.StringFlag{
				Name:  "verbosity",
				Usage: "Log level, overriding the config file",
			},
		},
		Before: func(c *cli.Context) error {
			rt.home = c.String("home")

			cfg, err := loadConfig(c, rt.home)
			if err != nil {
				return err
			}
			// Paths given on the command line are relative to the working directory.
			if c.IsSet("catalog") {
				if cfg.Devices.CatalogPath, err = filepath.Abs(c.String("catalog")); err != nil {
					return err
				}
			}
			if c.IsSet("kernels") {
				if cfg.KernelsPath, err = filepath.Abs(c.String("kernels")); err != nil {
					return err
				}
			}
			if c.IsSet("verbosity") {
				cfg.Logger.Verbosity = c.String("verbosity")
			}
			rt.cfg = cfg

			zapLogger, err := logger.NewConsole(cfg.Logger.Verbosity)
			if err != nil {
				return err
			}
			rt.log = zapLogger.Named("cli")
			return nil
		},
		Commands: []*cli.Command{
			initCommand(rt),
			devicesCommand(rt),
			detectCommand(rt),
			granularityCommand(rt),
			activeBlocksCommand(rt),
			dynamicSmemCommand(rt),
			blockSizeCommand(rt),
			sweepCommand(rt),
			computeCapabilityCommand(rt),
			serveCommand(rt),
		},
	}
}

// loadConfig reads --config, or <home>/config.yaml when it exists. Without either the
// defaults apply.
func loadConfig(c *cli.Context, home string) (*config.Config, error) {
	if c.IsSet("config") {
		return config.LoadConfig(c.String("config"))
	}
	cfg, err := config.LoadConfig(filepath.Join(home, "config.yaml"))
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
