// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mpqtt/pkg/pi30"
)

var (
	frameDecode bool
	frameStrict bool
)

var frameCmd = &cobra.Command{
	Use:   "frame REQUEST | --decode HEX",
	Short: "Encode a request frame or check a captured response frame",
	Long: `Print the wire bytes and checksum of a request without touching the device,
or validate a response captured from the wire.

Examples:
  mpqtt frame QPIGS
  mpqtt frame POP02
  mpqtt frame --decode "28 50 49 33 30 90 92 0D"

Exit status is non-zero when a decoded frame is rejected.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFrame,
}

func init() {
	rootCmd.AddCommand(frameCmd)
	frameCmd.Flags().BoolVar(&frameDecode, "decode", false, "Treat the arguments as a hex response frame")
	frameCmd.Flags().BoolVar(&frameStrict, "strict", false, "Require the '(' response marker when decoding")
}

func runFrame(cmd *cobra.Command, args []string) error {
	if frameDecode {
		return decodeFrameHex(cmd.OutOrStdout(), strings.Join(args, ""), frameStrict)
	}
	for _, req := range args {
		printRequestFrame(cmd.OutOrStdout(), []byte(req))
	}
	return nil
}

func printRequestFrame(w io.Writer, req []byte) {
	frame := pi30.EncodeFrame(req)
	fmt.Fprintf(w, "Request: %s\n", pi30.FormatFrame(frame))
	fmt.Fprintf(w, "  Hex: % X\n", frame)
	fmt.Fprintf(w, "  CRC: 0x%04X\n", pi30.Checksum(req))
}

func decodeFrameHex(w io.Writer, text string, strict bool) error {
	text = strings.NewReplacer(" ", "", ":", "", "0x", "", "0X", "").Replace(text)
	frame, err := hex.DecodeString(text)
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}

	fmt.Fprintf(w, "Frame: %s\n", pi30.FormatFrame(frame))
	payload, err := pi30.DecodeFrame(frame, strict)
	if err != nil {
		fmt.Fprintf(w, "  REJECTED (%s)\n", pi30.KindOf(err))
		return err
	}
	fmt.Fprintf(w, "  Payload: %q\n", payload)
	fmt.Fprintf(w, "  CRC: 0x%04X (OK)\n", pi30.Checksum(payload))
	return nil
}
