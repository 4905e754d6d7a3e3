// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mpqtt/pkg/pi30"
)

var queryRaw bool

var queryCmd = &cobra.Command{
	Use:   "query MNEMONIC...",
	Short: "Send one or more query commands and print the decoded results",
	Long: `Send each command once and print the results as JSON.

Known commands (QPI, QID, QVFW, QVFW2, QMOD, QPIGS, QPIRI, QPIWS, QFLAG) are
decoded into named fields. Anything else, or everything with --raw, is sent
as-is and the response payload is printed as text.

Exit status is non-zero if any command failed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().BoolVar(&queryRaw, "raw", false, "Print raw response payloads")
}

type queryResult struct {
	Command string `json:"command"`
	Value   any    `json:"value,omitempty"`
	Error   string `json:"error,omitempty"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	failed := 0
	for _, mnemonic := range args {
		mnemonic = strings.ToUpper(mnemonic)
		res := queryResult{Command: mnemonic}

		v, err := lookupQuery(mnemonic, queryRaw)(cmd.Context(), s)
		if err != nil {
			res.Error = err.Error()
			failed++
		} else {
			res.Value = v
		}
		if err := enc.Encode(res); err != nil {
			return err
		}
		if err != nil && pi30.Resync(err) {
			return fmt.Errorf("%s left the stream out of step, remaining commands skipped", mnemonic)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d commands failed", failed, len(args))
	}
	return nil
}
