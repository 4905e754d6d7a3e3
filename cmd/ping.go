// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mpqtt/pkg/pi30"
	"github.com/Thermoquad/mpqtt/pkg/pi30/commands"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the inverter link by sending QPI and timing the reply",
	Long: `Send protocol id queries (QPI) and report round trip times.

This is useful for verifying:
  - The device path, baud rate or WebSocket bridge is correct
  - Frames and checksums survive the link
  - The device speaks PI30

Exit codes:
  0 - All pings answered
  1 - One or more pings failed
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 500*time.Millisecond, "Delay between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingCount < 1 {
		return fmt.Errorf("--count must be at least 1, got %d", pingCount)
	}

	s, err := openSession(cmd)
	if err != nil {
		return exitErrorf(2, "connection error: %w", err)
	}
	defer s.Close()

	fmt.Printf("mpqtt - Link Test\n")
	fmt.Printf("Connection: %s\n", s.connInfo)
	fmt.Printf("Timeout: %v per ping\n\n", s.cfg.Inverter.CommandTimeout)

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		id, rtt, err := runTimed[int](cmd.Context(), s, commands.ProtocolID{})
		if err != nil {
			fmt.Printf("FAILED (%s): %v\n", pi30.KindOf(err), err)
			failCount++
			if pi30.Resync(err) {
				break
			}
		} else {
			fmt.Printf("PI%02d, rtt=%v\n", id, rtt.Round(time.Millisecond))
			successCount++
		}

		if i < pingCount {
			time.Sleep(pingInterval)
		}
	}

	printPingStats(os.Stdout, successCount, failCount)

	if failCount > 0 {
		return exitErrorf(1, "%d of %d pings failed", failCount, successCount+failCount)
	}
	return nil
}

func printPingStats(w io.Writer, successCount, failCount int) {
	sent := successCount + failCount
	loss := 0.0
	if sent > 0 {
		loss = float64(failCount) / float64(sent) * 100
	}
	fmt.Fprintf(w, "\n--- Ping statistics ---\n")
	fmt.Fprintf(w, "%d pings sent, %d responses received, %.0f%% loss\n", sent, successCount, loss)
}
