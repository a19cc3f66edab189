package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/warmpool/internal/config"
	"github.com/oriys/warmpool/internal/dispatch"
	"github.com/oriys/warmpool/internal/httpapi"
	"github.com/oriys/warmpool/internal/janitor"
	"github.com/oriys/warmpool/internal/obslog"
	"github.com/oriys/warmpool/internal/registry"
	"github.com/oriys/warmpool/internal/reqlog"
	"github.com/oriys/warmpool/internal/runtime/local"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler's HTTP server and janitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configPath != "" {
				loaded, err := config.LoadFromFile(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			config.LoadFromEnv(cfg)

			obslog.SetFormat(cfg.LogFormat)
			obslog.SetLevelFromString(cfg.LogLevel)

			adapter := local.New(local.DefaultConfig())
			reg := registry.New(adapter, cfg.Image, cfg.DefaultConcurrencyCap, cfg.LaunchRetries, cfg.InitialStrategy)
			for fnID, cap := range cfg.PreconfiguredPools {
				reg.Preconfigure(fnID, cap)
			}

			logBatcher := reqlog.NewBatcher(os.Stdout, 32, 2*time.Second)
			defer logBatcher.Close()

			ctrl := dispatch.New(reg, adapter, logBatcher)

			ready := make(chan struct{})
			handler := &httpapi.Handler{
				Ctrl: ctrl,
				Reg:  reg,
				Ready: func() bool {
					select {
					case <-ready:
						return true
					default:
						return false
					}
				},
			}

			jan := janitor.New(reg, cfg.WarmTime, cfg.JanitorSleep, cfg.HealthCheckInterval)
			janCtx, janCancel := context.WithCancel(context.Background())
			go jan.Run(janCtx)

			srv := httpapi.NewServer(cfg.HTTPAddr, handler)
			go func() {
				obslog.Op().Info("listening", "addr", cfg.HTTPAddr)
				close(ready)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					obslog.Op().Error("server exited", "err", err)
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			obslog.Op().Info("shutting down")
			janCancel()
			jan.Stop()
			reg.Drain()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpapi.Shutdown(shutdownCtx, srv)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a JSON or YAML config file")
	return cmd
}
