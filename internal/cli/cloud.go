package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/connectmesh-bridge/internal/cloud"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/config"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/logging"
)

// defaultCloudBaseURL is the production Connect Mesh cloud endpoint.
const defaultCloudBaseURL = "https://cloud.connect-mesh.io/api/core"

// meshScaleMax is the top of the mesh lightness/temperature scale.
const meshScaleMax = 65535

// cloudFlags are the connection settings shared by every cloud command.
type cloudFlags struct {
	baseURL string
	token   string
}

// register adds the shared cloud connection flags to cmd's persistent set
// so they work on the parent and all its subcommands.
func (f *cloudFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.baseURL, "base-url", defaultCloudBaseURL, "cloud API base URL")
	cmd.PersistentFlags().StringVar(&f.token, "token", "", "cloud API bearer token (defaults to MESHBRIDGE_CLOUD_TOKEN)")
}

// client builds a cloud API client from the flags. The token falls back
// to the MESHBRIDGE_CLOUD_TOKEN environment variable so scripted use
// does not put secrets on the command line.
func (f *cloudFlags) client() (*cloud.Client, error) {
	token := f.token
	if token == "" {
		token = os.Getenv("MESHBRIDGE_CLOUD_TOKEN")
	}
	if token == "" {
		return nil, errors.New("a cloud token is required: pass --token or set MESHBRIDGE_CLOUD_TOKEN")
	}

	cfg := config.CloudConfig{
		BaseURL: f.baseURL,
		Token:   token,
		Timeout: 15,
		Retry: config.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}

	// The cloud client logs retries through the bridge's structured
	// logger; keep it at warn so it stays out of normal CLI output.
	quiet := logging.New(config.LoggingConfig{
		Level:  "warn",
		Format: "text",
		Output: "stderr",
	}, version)

	return cloud.New(cfg, quiet), nil
}

// meshPercent renders a mesh-scale value as a percentage.
func meshPercent(v float64) float64 {
	return v / meshScaleMax * 100
}
