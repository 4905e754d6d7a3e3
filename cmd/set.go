// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mpqtt/pkg/pi30"
	"github.com/Thermoquad/mpqtt/pkg/pi30/commands"
)

var outputPriorities = map[string]commands.OutputSourcePriority{
	"utility": commands.OutputUtilityFirst,
	"solar":   commands.OutputSolarFirst,
	"sbu":     commands.OutputSBUFirst,
}

var chargerPriorities = map[string]commands.ChargerSourcePriority{
	"utility":           commands.ChargerUtilityFirst,
	"solar":             commands.ChargerSolarFirst,
	"solar-and-utility": commands.ChargerSolarAndUtility,
	"solar-only":        commands.ChargerSolarOnly,
}

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change inverter settings",
	Long: `Change inverter settings. The device answers ACK when the new value is
accepted and NAK when the model does not support it.`,
}

var setOutputCmd = &cobra.Command{
	Use:       "output-priority {" + strings.Join(sortedKeys(outputPriorities), "|") + "}",
	Short:     "Set the output source priority (POP)",
	Args:      cobra.ExactArgs(1),
	ValidArgs: sortedKeys(outputPriorities),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, ok := outputPriorities[args[0]]
		if !ok {
			return fmt.Errorf("unknown output priority %q", args[0])
		}
		return runSetter(cmd, commands.SetOutputSourcePriority{Priority: p}, p.String())
	},
}

var setChargerCmd = &cobra.Command{
	Use:       "charger-priority {" + strings.Join(sortedKeys(chargerPriorities), "|") + "}",
	Short:     "Set the charger source priority (PCP)",
	Args:      cobra.ExactArgs(1),
	ValidArgs: sortedKeys(chargerPriorities),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, ok := chargerPriorities[args[0]]
		if !ok {
			return fmt.Errorf("unknown charger priority %q", args[0])
		}
		return runSetter(cmd, commands.SetChargerSourcePriority{Priority: p}, p.String())
	},
}

func init() {
	rootCmd.AddCommand(setCmd)
	setCmd.AddCommand(setOutputCmd, setChargerCmd)
}

func runSetter(cmd *cobra.Command, setter pi30.Command[bool], value string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	name := pi30.CommandName(setter)
	_, rtt, err := runTimed(cmd.Context(), s, setter)
	if errors.Is(err, pi30.ErrNAK) {
		return fmt.Errorf("%s %s: rejected by inverter", name, value)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", name, value, err)
	}

	fmt.Printf("%s %s: ACK (%v)\n", name, value, rtt.Round(time.Millisecond))
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
