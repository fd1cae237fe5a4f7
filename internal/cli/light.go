package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/connectmesh-bridge/internal/cloud"
)

// cloudLightClient is the slice of the cloud client light commands use,
// split out so tests can drive the flag handling without HTTP.
type cloudLightClient interface {
	SetPower(ctx context.Context, deviceID string, on bool, opts *cloud.CommandOptions) error
	SetLightness(ctx context.Context, deviceID string, lightness float64, opts *cloud.CommandOptions) error
	SetTemperature(ctx context.Context, deviceID string, temperature int, opts *cloud.CommandOptions) error
	SetHSL(ctx context.Context, deviceID string, hue, saturation, lightness float64, opts *cloud.CommandOptions) error
}

type lightOpts struct {
	brightness  float64
	temperature float64
	hsl         string
}

// unsetLevel marks a percent flag the user did not pass. Negative values
// are outside the valid 0-100 range so they cannot collide.
const unsetLevel = -1

func newLightCmd() *cobra.Command {
	flags := &cloudFlags{}
	opts := lightOpts{brightness: unsetLevel, temperature: unsetLevel}

	cmd := &cobra.Command{
		Use:   "light <device-id> on|off|set",
		Short: "Switch and dim a light through the cloud",
		Long: `Light sends power, brightness, temperature and colour commands to one
device. Brightness and temperature are percentages; --hsl takes hue in
degrees plus saturation and lightness percentages.

Examples:
  meshctl light dev-abc on
  meshctl light dev-abc set --brightness 60
  meshctl light dev-abc set --temperature 30 --brightness 80
  meshctl light dev-abc set --hsl 120,50,40`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}
			return runLight(cmd, client, opts, args[0], args[1])
		},
	}
	flags.register(cmd)

	cmd.Flags().Float64Var(&opts.brightness, "brightness", unsetLevel, "target brightness percent (0-100)")
	cmd.Flags().Float64Var(&opts.temperature, "temperature", unsetLevel, "colour temperature percent (0-100, warm to cool)")
	cmd.Flags().StringVar(&opts.hsl, "hsl", "", "hue,saturation,lightness (degrees, percent, percent)")

	return cmd
}

func runLight(cmd *cobra.Command, client cloudLightClient, opts lightOpts, deviceID, action string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch action {
	case "on", "off":
		on := action == "on"
		if err := client.SetPower(ctx, deviceID, on, nil); err != nil {
			return fmt.Errorf("setting power: %w", err)
		}
		fmt.Fprintf(out, "%s: power %s\n", deviceID, action)
		return nil

	case "set":
		return runLightSet(cmd, client, opts, deviceID)

	default:
		return fmt.Errorf("unknown action %q: expected on, off or set", action)
	}
}

func runLightSet(cmd *cobra.Command, client cloudLightClient, opts lightOpts, deviceID string) error {
	if opts.brightness == unsetLevel && opts.temperature == unsetLevel && opts.hsl == "" {
		return errors.New("set requires at least one of --brightness, --temperature or --hsl")
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if opts.temperature != unsetLevel {
		if opts.temperature < 0 || opts.temperature > 100 {
			return fmt.Errorf("temperature %.1f is outside 0-100", opts.temperature)
		}
		mesh := int(opts.temperature/100*meshScaleMax + 0.5)
		if err := client.SetTemperature(ctx, deviceID, mesh, nil); err != nil {
			return fmt.Errorf("setting temperature: %w", err)
		}
		fmt.Fprintf(out, "%s: temperature %.1f%%\n", deviceID, opts.temperature)
	}

	if opts.brightness != unsetLevel {
		if opts.brightness < 0 || opts.brightness > 100 {
			return fmt.Errorf("brightness %.1f is outside 0-100", opts.brightness)
		}
		if err := client.SetLightness(ctx, deviceID, opts.brightness/100, nil); err != nil {
			return fmt.Errorf("setting brightness: %w", err)
		}
		fmt.Fprintf(out, "%s: brightness %.1f%%\n", deviceID, opts.brightness)
	}

	if opts.hsl != "" {
		hue, sat, lightness, err := parseHSL(opts.hsl)
		if err != nil {
			return err
		}
		if err := client.SetHSL(ctx, deviceID, hue, sat/100, lightness/100, nil); err != nil {
			return fmt.Errorf("setting colour: %w", err)
		}
		fmt.Fprintf(out, "%s: hsl %.1f,%.1f%%,%.1f%%\n", deviceID, hue, sat, lightness)
	}

	return nil
}

// parseHSL splits "hue,saturation,lightness" into its parts and checks
// the ranges: hue in degrees 0-360, saturation and lightness in percent.
func parseHSL(s string) (hue, sat, lightness float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid --hsl %q: expected hue,saturation,lightness", s)
	}

	vals := make([]float64, 3)
	for i, p := range parts {
		v, parseErr := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if parseErr != nil {
			return 0, 0, 0, fmt.Errorf("invalid --hsl component %q: %w", p, parseErr)
		}
		vals[i] = v
	}

	if vals[0] < 0 || vals[0] > 360 {
		return 0, 0, 0, fmt.Errorf("hue %.1f is outside 0-360", vals[0])
	}
	if vals[1] < 0 || vals[1] > 100 {
		return 0, 0, 0, fmt.Errorf("saturation %.1f is outside 0-100", vals[1])
	}
	if vals[2] < 0 || vals[2] > 100 {
		return 0, 0, 0, fmt.Errorf("lightness %.1f is outside 0-100", vals[2])
	}

	return vals[0], vals[1], vals[2], nil
}
