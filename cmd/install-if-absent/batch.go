package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aquasecurity/install-if-absent/pkg/batch"
)

func newBatchCmd(opts *globalOptions) *cobra.Command {
	var parallel int
	cmd := &cobra.Command{
		Use:   "batch <manifest.yaml>",
		Short: "Install every artifact listed in a manifest unless it already exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			m, err := batch.LoadManifest(args[0])
			if err != nil {
				return err
			}

			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.close(opts.metricsFile); err == nil {
					err = cerr
				}
			}()

			b := batch.New(a.installer, batch.Option{
				Parallel: parallel,
				Progress: cmd.ErrOrStderr(),
			})
			results, err := b.Run(cmd.Context(), m)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, res := range results {
				printResult(out, res)
			}
			installed, skipped := batch.Summarize(results)
			fmt.Fprintln(out, color.New(color.Bold).Sprintf("%d installed, %d skipped", installed, skipped))
			return nil
		},
	}
	cmd.Flags().IntVar(&parallel, "parallel", 1, "number of artifacts installed concurrently")
	return cmd
}
