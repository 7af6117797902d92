package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pulse-go/pulse/pkg/host"
	"github.com/pulse-go/pulse/pkg/middleware"
	"github.com/pulse-go/pulse/pkg/pulse"
	"github.com/pulse-go/pulse/pkg/reconcile"
	"github.com/pulse-go/pulse/pkg/store"
)

func serveCmd() *cobra.Command {
	var (
		addr       string
		dbPath     string
		cycleBound int
		noMetrics  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo control surface server",
		Long: `Start a WebSocket server hosting the bounded-value demo surface.

The surface has a value clamped between an adjustable minimum and
maximum; enabling the advanced toggle reveals a step-size control.
Connect a client to ws://<addr>/ws to drive it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner()

			engineCfg := pulse.DefaultConfig()
			engineCfg.CycleBound = cycleBound

			opts := []host.ServerOption{
				host.WithLogger(slog.Default()),
				host.WithEngineConfig(engineCfg),
				host.WithMiddleware(
					middleware.Prometheus(),
					middleware.OpenTelemetry(),
				),
			}

			if dbPath != "" {
				st, err := store.Open(dbPath)
				if err != nil {
					return err
				}
				defer st.Close()
				opts = append(opts, host.WithStore(st))
				info("snapshots:  %s", dbPath)
			}

			srv := host.NewServer(host.AppFunc(boundedValueApp), opts...)
			if !noMetrics {
				srv.Router().Handle("/metrics", promhttp.Handler())
				info("metrics:    http://%s/metrics", addr)
			}
			info("websocket:  ws://%s/ws", addr)
			info("health:     http://%s/healthz", addr)

			httpSrv := &http.Server{Addr: addr, Handler: srv}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- httpSrv.ListenAndServe()
			}()
			success("listening on %s", addr)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			warn("shutting down")
			srv.Shutdown()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			success("stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "localhost:8080", "Address to listen on")
	cmd.Flags().StringVar(&dbPath, "db", "", "Path to the snapshot database (disabled when empty)")
	cmd.Flags().IntVar(&cycleBound, "cycle-bound", 2, "Re-entrant advances allowed per cell per frame")
	cmd.Flags().BoolVar(&noMetrics, "no-metrics", false, "Disable the Prometheus endpoint")

	return cmd
}

// boundedValueApp is the demo surface: a value clamped between an
// adjustable minimum and maximum, with a step control revealed by the
// advanced toggle. The clamp writes back into the value cell, so the
// engine needs a cycle bound of at least 2 to let one correction settle.
func boundedValueApp(s *host.Session) (string, error) {
	e, root := s.Engine(), s.Scope()

	cells := map[string]any{
		"min":      float64(0),
		"max":      float64(10),
		"value":    float64(5),
		"advanced": false,
		"step":     float64(1),
	}
	for id, initial := range cells {
		if _, err := e.DeclareCell(root, id, initial); err != nil {
			return "", err
		}
	}

	if _, err := e.DeclareComputation(root, "clamp", func(rc *pulse.RunContext) (any, error) {
		min, err := rc.ReadFloat("min")
		if err != nil {
			return nil, err
		}
		max, err := rc.ReadFloat("max")
		if err != nil {
			return nil, err
		}
		v, err := rc.ReadFloat("value")
		if err != nil {
			return nil, err
		}
		clamped := v
		if clamped < min {
			clamped = min
		}
		if clamped > max {
			clamped = max
		}
		return clamped, rc.Write("value", clamped)
	}); err != nil {
		return "", err
	}

	_, err := e.DeclareComputation(root, "ui", func(rc *pulse.RunContext) (any, error) {
		min, err := rc.ReadFloat("min")
		if err != nil {
			return nil, err
		}
		max, err := rc.ReadFloat("max")
		if err != nil {
			return nil, err
		}
		v, err := rc.ReadFloat("value")
		if err != nil {
			return nil, err
		}
		advanced, err := rc.ReadBool("advanced")
		if err != nil {
			return nil, err
		}

		desc := reconcile.Description{
			{ID: "min", Kind: "numeric", Value: min},
			{ID: "max", Kind: "numeric", Value: max},
			{ID: "value", Kind: "slider", Value: v, Constraints: map[string]any{
				"min": min,
				"max": max,
			}},
			{ID: "advanced", Kind: "toggle", Value: advanced},
		}
		if advanced {
			step, err := rc.ReadFloat("step")
			if err != nil {
				return nil, err
			}
			desc = append(desc, reconcile.ControlSpec{
				ID: "step", Kind: "numeric", Value: step,
			})
		}
		return desc, nil
	})
	return "ui", err
}
