// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/mpqtt/internal/config"
	"github.com/Thermoquad/mpqtt/internal/poller"
	"github.com/Thermoquad/mpqtt/pkg/pi30"
	"github.com/Thermoquad/mpqtt/pkg/pi30/commands"
)

// session is a one-shot connection used by the interactive subcommands
type session struct {
	cfg      *config.Config
	logger   *zap.Logger
	conn     io.ReadWriteCloser
	inv      *pi30.Inverter
	connInfo string
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	dial, connInfo, err := NewDialer(cfg.Inverter)
	if err != nil {
		return nil, err
	}
	conn, err := dial(cmd.Context())
	if err != nil {
		return nil, err
	}

	inv := pi30.New(conn,
		pi30.WithLogger(logger.Named("pi30")),
		pi30.WithStrictMarker(cfg.Inverter.StrictMarker),
	)
	return &session{cfg: cfg, logger: logger, conn: conn, inv: inv, connInfo: connInfo}, nil
}

func (s *session) Close() error {
	_ = s.logger.Sync()
	return s.conn.Close()
}

// queryFunc runs one catalog command and returns its decoded result
type queryFunc func(ctx context.Context, s *session) (any, error)

func query[R any](cmd pi30.Command[R]) queryFunc {
	return func(ctx context.Context, s *session) (any, error) {
		v, err := poller.ExecuteTimeout(ctx, s.inv, s.conn, s.cfg.Inverter.CommandTimeout, cmd)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// catalog holds the read-only commands with typed decoders
var catalog = map[string]queryFunc{
	"QPI":   query[int](commands.ProtocolID{}),
	"QID":   query[string](commands.SerialNumber{}),
	"QVFW":  query[string](commands.FirmwareVersion{}),
	"QVFW2": query[string](commands.FirmwareVersion{Secondary: true}),
	"QMOD":  query[commands.Mode](commands.DeviceMode{}),
	"QPIGS": query[commands.GeneralStatusResponse](commands.GeneralStatus{}),
	"QPIRI": query[commands.RatingInfoResponse](commands.RatingInfo{}),
	"QPIWS": query[commands.WarningStatusResponse](commands.WarningStatus{}),
	"QFLAG": query[commands.FlagsResponse](commands.Flags{}),
	"QPGS0": query[commands.ParallelStatusResponse](commands.ParallelStatus{Index: 0}),
	"QPGS1": query[commands.ParallelStatusResponse](commands.ParallelStatus{Index: 1}),
	"QPGS2": query[commands.ParallelStatusResponse](commands.ParallelStatus{Index: 2}),
}

// lookupQuery returns the typed decoder for mnemonic, or a raw text query
// when raw is set or the mnemonic is not in the catalog.
func lookupQuery(mnemonic string, raw bool) queryFunc {
	mnemonic = strings.ToUpper(mnemonic)
	if q, ok := catalog[mnemonic]; ok && !raw {
		return q
	}
	return query[string](pi30.Raw{Mnemonic: mnemonic})
}

// runTimed is ExecuteTimeout bound to a session, for setters and pings
func runTimed[R any](ctx context.Context, s *session, cmd pi30.Command[R]) (R, time.Duration, error) {
	start := time.Now()
	v, err := poller.ExecuteTimeout(ctx, s.inv, s.conn, s.cfg.Inverter.CommandTimeout, cmd)
	return v, time.Since(start), err
}
