package server

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/fxnlabs/occupancy/internal/config"
	"github.com/fxnlabs/occupancy/internal/gpu"
	"github.com/fxnlabs/occupancy/pkg/occclient"
	"github.com/fxnlabs/occupancy/pkg/occupancy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig("../../fixtures/tests/config/valid_config.yaml")
	require.NoError(t, err)
	cfg.Server.ListenPort = 0
	return cfg
}

func TestServer_EndToEnd(t *testing.T) {
	var srv *Server
	app := fxtest.New(t,
		fx.Supply(testConfig(t), zap.NewNop()),
		Module,
		fx.Populate(&srv),
	)
	app.RequireStart()
	defer app.RequireStop()

	baseURL := "http://" + srv.Addr()
	client := occclient.NewClient(baseURL, nil)
	ctx := context.Background()

	t.Run("devices include the extra catalog", func(t *testing.T) {
		devices, err := client.Devices(ctx)
		require.NoError(t, err)
		assert.Len(t, devices, 10)
	})

	t.Run("block size", func(t *testing.T) {
		resp, err := client.BlockSize(ctx, occclient.BlockSizeRequest{
			Target: occclient.Target{
				Device:     "a2000",
				Attributes: &occupancy.FunctionAttributes{NumRegs: 59},
				State:      &occupancy.DeviceState{CarveoutConfig: occupancy.CarveoutDefault},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 1024, resp.BlockSize)
		assert.Equal(t, 26, resp.MinGridSize)
	})

	t.Run("configured kernel on extra device", func(t *testing.T) {
		resp, err := client.ActiveBlocks(ctx, occclient.ActiveBlocksRequest{
			Target:    occclient.Target{Device: "rtx4090", Kernel: "gemm"},
			BlockSize: 256,
		})
		require.NoError(t, err)
		assert.Equal(t, "rtx4090", resp.Device)
		assert.Equal(t, 4, resp.Result.ActiveBlocksPerMultiprocessor)
	})

	t.Run("unknown device", func(t *testing.T) {
		_, err := client.Sweep(ctx, occclient.SweepRequest{Target: occclient.Target{Device: "gtx480"}})
		assert.ErrorIs(t, err, occclient.ErrNotFound)
	})

	t.Run("invalid argument", func(t *testing.T) {
		_, err := client.DynamicSmem(ctx, occclient.DynamicSmemRequest{NumBlocks: 1, BlockSize: -32})
		assert.ErrorIs(t, err, occclient.ErrBadRequest)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "advisor_queries_total")
		assert.Contains(t, string(body), `endpoint_responses_total{endpoint="/v1/devices",status_code="200"}`)
	})
}

func TestNewEnvironment(t *testing.T) {
	cfg := testConfig(t)
	catalog, err := NewCatalog(cfg, zap.NewNop())
	require.NoError(t, err)
	kernels, err := NewKernels(cfg)
	require.NoError(t, err)

	env, err := NewEnvironment(cfg, catalog, kernels)
	require.NoError(t, err)
	assert.Equal(t, "a2000", env.DefaultDevice)
	assert.Equal(t, occupancy.CarveoutHalf, env.State.CarveoutConfig)

	t.Run("unknown default device", func(t *testing.T) {
		cfg.Devices.Default = "gtx480"
		_, err := NewEnvironment(cfg, catalog, kernels)
		assert.ErrorIs(t, err, gpu.ErrDeviceNotFound)
	})
}

func TestProviders(t *testing.T) {
	t.Run("built-in kernels when none configured", func(t *testing.T) {
		kernels, err := NewKernels(config.Default())
		require.NoError(t, err)
		assert.Contains(t, kernels.Kernels, "default")
	})

	t.Run("missing kernel file", func(t *testing.T) {
		cfg := config.Default()
		cfg.KernelsPath = "non-existent-file.yaml"
		_, err := NewKernels(cfg)
		assert.Error(t, err)
	})

	t.Run("bad extra catalog", func(t *testing.T) {
		cfg := config.Default()
		cfg.Devices.CatalogPath = "../../fixtures/tests/devices/bad_devices.yaml"
		_, err := NewCatalog(cfg, zap.NewNop())
		assert.ErrorIs(t, err, occupancy.ErrUnknownDevice)
	})

	t.Run("app fails to start without a default device", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Devices.Default = "gtx480"
		app := NewApp(cfg, zap.NewNop())
		require.Error(t, app.Err())
		assert.Contains(t, app.Err().Error(), "device not found")
	})
}
