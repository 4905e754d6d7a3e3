// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/mpqtt/internal/httpserver"
	"github.com/Thermoquad/mpqtt/internal/metrics"
	"github.com/Thermoquad/mpqtt/internal/poller"
	"github.com/Thermoquad/mpqtt/internal/publish"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the inverter and publish readings to MQTT",
	Long: `Connect to the MQTT broker and the inverter, then poll until interrupted.

Each cycle reads the general status (QPIGS) several times, then the mode,
rating and warning status. Every reading is published on <topic>/<command>,
failures on <topic>/error and cycle timings on <topic>/stats. The inverter
stream is re-opened after timeouts and framing errors.

With http.enable set, /healthz, /readyz, /metrics and /api/readings are served
on http.addr.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	defer logger.Sync()

	dial, connInfo, err := NewDialer(cfg.Inverter)
	if err != nil {
		return err
	}
	enc, err := publish.NewEncoder(cfg.MQTT.Encoding)
	if err != nil {
		return err
	}

	broker, err := publish.DialMQTT(cfg.MQTT, logger.Named("mqtt"))
	if err != nil {
		return err
	}
	defer broker.Close()

	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	p := poller.New(poller.Options{
		Dial:     dial,
		Sink:     publish.NewSink(broker, enc, cfg.MQTT.Topic),
		Inverter: cfg.Inverter,
		Poll:     cfg.Poll,
		Mode:     cfg.Mode,
		Debug:    cfg.Debug,
		Metrics:  m,
		Logger:   logger.Named("poller"),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.HTTP.Enable {
		srv := httpserver.New(cfg.HTTP, metrics.Handler(reg), p.Store(), p.Ready)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
	}

	logger.Info("polling inverter",
		zap.String("connection", connInfo),
		zap.String("topic", cfg.MQTT.Topic),
		zap.String("encoding", enc.Name()),
	)

	err = p.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}
