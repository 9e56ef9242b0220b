package cmd

import (
	"fmt"

	"github.com/naka-gawa/github-contrib/internal/checkpoint"
	"github.com/naka-gawa/github-contrib/internal/domain"
	"github.com/spf13/cobra"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspects or removes the saved scan checkpoint",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Prints the saved checkpoint metadata",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cp, closeBackend, err := openCheckpointer(cmd)
		if err != nil {
			return err
		}
		defer closeBackend()

		out := cmd.OutOrStdout()
		snap := cp.Load(cmd.Context())
		if snap == nil {
			fmt.Fprintf(out, "No usable checkpoint at %s\n", cp.Location())
			return nil
		}
		printSnapshot(cmd, cp.Location(), snap)
		return nil
	},
}

var checkpointClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Deletes the saved checkpoint",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cp, closeBackend, err := openCheckpointer(cmd)
		if err != nil {
			return err
		}
		defer closeBackend()

		if err := cp.Delete(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Checkpoint cleared: %s\n", cp.Location())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointShowCmd, checkpointClearCmd)
}

func openCheckpointer(cmd *cobra.Command) (*checkpoint.Checkpointer, func(), error) {
	cfg, log, err := setup(cmd)
	if err != nil {
		return nil, nil, err
	}
	backend, closeBackend, err := newCheckpointBackend(cfg)
	if err != nil {
		return nil, nil, err
	}
	return checkpoint.New(backend, log), closeBackend, nil
}

func printSnapshot(cmd *cobra.Command, location string, snap *checkpoint.Snapshot) {
	out := cmd.OutOrStdout()
	total := 0
	for _, rec := range snap.Records {
		total += rec.Total
	}
	fmt.Fprintf(out, "Location:      %s\n", location)
	fmt.Fprintf(out, "Organization:  %s\n", snap.Organization)
	fmt.Fprintf(out, "Since:         %s\n", snap.Floor.Format(domain.DateLayout))
	fmt.Fprintf(out, "Saved at:      %s\n", snap.SavedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Processed:     %d repositories\n", len(snap.Processed))
	fmt.Fprintf(out, "Contributors:  %d\n", len(snap.Records))
	fmt.Fprintf(out, "Contributions: %d\n", total)
}
