// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/simplebinary/internal/transport"
	"github.com/Thermoquad/simplebinary/pkg/simplebinary"
)

var crcCmd = &cobra.Command{
	Use:   "crc <hex bytes>...",
	Short: "Compute the CRC-8 of a frame and decode it",
	Long: `Compute the CRC-8 of the given bytes and print the complete frame.

Bytes may be separated by spaces or written as one hex string:
  sbmaster crc 01 D0 00
  sbmaster crc 01D000`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCRC,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := transport.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(crcCmd)
	rootCmd.AddCommand(portsCmd)
}

func runCRC(cmd *cobra.Command, args []string) error {
	data, err := hex.DecodeString(strings.Join(args, ""))
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("no bytes given")
	}

	crc := simplebinary.CRC8(data)
	frame := append(data, crc)
	fmt.Printf("CRC:   0x%02X\n", crc)
	fmt.Printf("Frame: %s\n", simplebinary.FormatBytes(frame))

	msg, err := simplebinary.DecompileBytes(frame, nil)
	if err != nil {
		fmt.Printf("Decode: %v\n", err)
		return nil
	}
	fmt.Print("Decode: ", simplebinary.FormatMessage(msg))
	return nil
}
