package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newScenesCmd() *cobra.Command {
	flags := &cloudFlags{}

	cmd := &cobra.Command{
		Use:   "scenes",
		Short: "List and recall scenes",
	}
	flags.register(cmd)

	cmd.AddCommand(newScenesListCmd(flags))
	cmd.AddCommand(newScenesRecallCmd(flags))

	return cmd
}

func newScenesListCmd(flags *cloudFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scenes visible to the configured token",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}

			scenes, err := client.Scenes(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing scenes: %w", err)
			}

			if len(scenes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No scenes found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tNUMBER\tNETWORK")
			for _, s := range scenes {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.Name, s.Number, s.NetworkID)
			}
			return w.Flush()
		},
	}
}

func newScenesRecallCmd(flags *cloudFlags) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "recall <scene-id>",
		Short: "Recall a scene across its members",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}

			if err := client.RecallScene(cmd.Context(), args[0], target, nil); err != nil {
				return fmt.Errorf("recalling scene: %w", err)
			}

			if target != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "scene %s recalled on %s\n", args[0], target)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "scene %s recalled\n", args[0])
			}
			return nil
		},
		Args: cobra.ExactArgs(1),
	}

	cmd.Flags().StringVar(&target, "target", "", "limit recall to one group or device ID")

	return cmd
}
