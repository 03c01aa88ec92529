package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aquasecurity/install-if-absent/pkg/install"
	"github.com/aquasecurity/install-if-absent/pkg/types"
)

func newInstallCmd(opts *globalOptions) *cobra.Command {
	var req install.Request
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install a file unless the artifact exists locally or remotely",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.close(opts.metricsFile); err == nil {
					err = cerr
				}
			}()

			res, err := a.installer.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.GroupID, "group-id", "", "groupId of the artifact")
	f.StringVar(&req.ArtifactID, "artifact-id", "", "artifactId of the artifact")
	f.StringVar(&req.Version, "version", "", "version of the artifact")
	f.StringVar(&req.Packaging, "packaging", "", "packaging of the artifact (default: extension of the file)")
	f.StringVar(&req.Classifier, "classifier", "", "classifier of the artifact")
	f.StringVar(&req.File, "file", "", "file to install")
	for _, name := range []string{"group-id", "artifact-id", "version", "file"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func printResult(w io.Writer, res install.Result) {
	switch res.Outcome {
	case types.OutcomeInstalled:
		fmt.Fprintf(w, "%s %s -> %s\n", color.GreenString("installed"), res.Artifact.Coordinate, res.LocalPath)
	case types.OutcomeSkipped:
		where := "local repository"
		if res.Remote {
			where = "remote repository"
		}
		fmt.Fprintf(w, "%s %s (found in %s)\n", color.YellowString("skipped"), res.Artifact.Coordinate, where)
	}
}
