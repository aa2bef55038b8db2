package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkeye/callview/internal/adapters/capture"
	"github.com/dkeye/callview/internal/domain"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available capture devices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			capt, err := capture.New()
			if err != nil {
				return fmt.Errorf("capture provider: %w", err)
			}
			for _, kind := range []domain.DeviceKind{domain.DeviceAudioInput, domain.DeviceVideoInput} {
				devices := capt.EnumerateDevices(kind)
				fmt.Printf("%s (%d):\n", kind, len(devices))
				for _, d := range devices {
					fmt.Printf("  %s\t%s\n", d.ID, d.Label)
				}
			}
			return nil
		},
	}
}
