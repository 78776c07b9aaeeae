package cli

import (
	"encoding/json"
	"fmt"

	"github.com/fmueller/voxscribe/internal/platform"
	"github.com/spf13/cobra"
)

func newDevicesCmd(app *appState) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Show compute devices available for transcription on this host",
		RunE: func(cmd *cobra.Command, _ []string) error {
			selector := platform.NewSelector(app.probe(), app.log())
			caps := selector.Capabilities()
			optimal := selector.OptimalDevice()
			out := cmd.OutOrStdout()

			if asJSON {
				data, err := json.MarshalIndent(struct {
					platform.Capabilities
					OptimalDevice platform.Device `json:"optimal_device"`
				}{caps, optimal}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprintf(out, "Platform:       %s/%s\n", caps.OS, caps.Arch)
			fmt.Fprintf(out, "CPU cores:      %d\n", caps.CPUCount)
			if caps.CUDAAvailable {
				fmt.Fprintf(out, "CUDA:           %d device(s)\n", caps.CUDADeviceCount)
				for i, name := range caps.CUDADevices {
					fmt.Fprintf(out, "  %-12s  %s\n", platform.CUDADevice(i), name)
				}
			} else {
				fmt.Fprintln(out, "CUDA:           not available")
			}
			fmt.Fprintf(out, "Metal (mps):    %s\n", availability(caps.MPSAvailable))
			fmt.Fprintf(out, "Optimal device: %s\n", optimal)
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print capabilities as JSON")
	return cmd
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "not available"
}
