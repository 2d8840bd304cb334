package advisor

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fxnlabs/occupancy/internal/config"
	"github.com/fxnlabs/occupancy/internal/gpu"
	"github.com/fxnlabs/occupancy/internal/metrics"
	"github.com/fxnlabs/occupancy/pkg/occclient"
	"github.com/fxnlabs/occupancy/pkg/occupancy"
	"go.uber.org/zap"
)

// statusFor maps advisor errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownQueryType),
		errors.Is(err, ErrInvalidPayload),
		errors.Is(err, occupancy.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, gpu.ErrDeviceNotFound),
		errors.Is(err, config.ErrKernelNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func outcomeFor(status int) string {
	switch status {
	case http.StatusOK:
		return "ok"
	case http.StatusBadRequest:
		return "invalid"
	case http.StatusNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// QueryHandler handles advisor queries.
func QueryHandler(log *zap.Logger, env *Environment) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var query occclient.Query
		if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		start := time.Now()
		result, err := Run(query, env, log)

		status := http.StatusOK
		if err != nil {
			status = statusFor(err)
		}
		// Unknown types share one label value.
		label := query.Type
		if errors.Is(err, ErrUnknownQueryType) {
			label = "unknown"
		}
		metrics.AdvisorQueryDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		metrics.AdvisorQueries.WithLabelValues(label, outcomeFor(status)).Inc()
		if err != nil {
			log.Debug("Query failed", zap.String("type", query.Type), zap.Int("status", status), zap.Error(err))
			http.Error(w, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

// Run executes one query against env.
func Run(query occclient.Query, env *Environment, log *zap.Logger) (interface{}, error) {
	advisor, err := NewAdvisor(query.Type, env)
	if err != nil {
		return nil, err
	}
	return advisor.Execute(query.Payload, log.With(zap.String("type", query.Type)))
}

// DevicesHandler lists the device presets in the catalog.
func DevicesHandler(env *Environment) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		presets := env.Catalog.Presets()
		resp := occclient.DevicesResponse{Devices: make([]occclient.Device, 0, len(presets))}
		for _, p := range presets {
			resp.Devices = append(resp.Devices, occclient.Device{
				Name:        p.Name,
				Description: p.Description,
				Properties:  p.Properties,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
