package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/connectmesh-bridge/internal/cloud"
)

func newDevicesCmd() *cobra.Command {
	flags := &cloudFlags{}

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Query devices in the cloud account",
	}
	flags.register(cmd)

	cmd.AddCommand(newDevicesListCmd(flags))
	cmd.AddCommand(newDevicesStatusCmd(flags))

	return cmd
}

func newDevicesListCmd(flags *cloudFlags) *cobra.Command {
	var network string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List devices visible to the configured token",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var devices []cloud.Device
			if network != "" {
				devices, err = client.DevicesForNetwork(ctx, network)
			} else {
				devices, err = client.Devices(ctx)
			}
			if err != nil {
				return fmt.Errorf("listing devices: %w", err)
			}
			loggerFromContext(ctx).Debugf("cloud returned %d devices", len(devices))

			if len(devices) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No devices found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "UNIQUE ID\tNAME\tTYPE\tNETWORK\tUNICAST\tELEMENTS")
			for _, d := range devices {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%04X\t%d\n",
					d.UniqueID, d.Name, d.Type, d.NetworkID, d.UnicastAddress, len(d.Elements))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&network, "network", "", "limit to one network ID")

	return cmd
}

func newDevicesStatusCmd(flags *cloudFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <device-id>",
		Short: "Read the live status of one device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}

			status, err := client.DeviceStatus(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("reading device status: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Device:\t%s\n", args[0])
			fmt.Fprintf(w, "Online:\t%t\n", status.Online)
			if st := status.State; st != nil {
				fmt.Fprintf(w, "Power:\t%s\n", onOff(st.Power))
				if st.Lightness != nil {
					fmt.Fprintf(w, "Lightness:\t%.0f (%.1f%%)\n", *st.Lightness, meshPercent(*st.Lightness))
				}
				if st.Temperature != nil {
					fmt.Fprintf(w, "Temperature:\t%.0f (%.1f%%)\n", *st.Temperature, meshPercent(*st.Temperature))
				}
				if st.Hue != nil {
					fmt.Fprintf(w, "Hue:\t%.1f\n", *st.Hue)
				}
				if st.Saturation != nil {
					fmt.Fprintf(w, "Saturation:\t%.2f\n", *st.Saturation)
				}
			}
			return w.Flush()
		},
	}
}

func onOff(power bool) string {
	if power {
		return "on"
	}
	return "off"
}
