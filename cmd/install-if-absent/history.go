package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/install-if-absent/pkg/db"
	"github.com/aquasecurity/install-if-absent/pkg/fileutil"
	"github.com/aquasecurity/install-if-absent/pkg/types"
)

type historyEntry struct {
	GroupID     string    `json:"groupId"`
	ArtifactID  string    `json:"artifactId"`
	Version     string    `json:"version"`
	Classifier  string    `json:"classifier,omitempty"`
	Extension   string    `json:"extension"`
	SHA1        string    `json:"sha1"`
	Size        int64     `json:"size"`
	Path        string    `json:"path"`
	InstalledAt time.Time `json:"installedAt"`
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var (
		groupID    string
		artifactID string
		sha1       string
		asJSON     bool
		output     string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the artifacts recorded in the install ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if !fileutil.IsFile(db.Path(cfg.CacheDir)) {
				return xerrors.Errorf("no install ledger in %s", cfg.CacheDir)
			}

			dbc, err := db.New(cfg.CacheDir)
			if err != nil {
				return xerrors.Errorf("db error: %w", err)
			}
			defer dbc.Close()

			var records []types.InstallRecord
			if sha1 != "" {
				rec, err := dbc.SelectInstallBySHA1(sha1)
				if err != nil {
					return xerrors.Errorf("db select error: %w", err)
				}
				if rec.ArtifactID != "" {
					records = append(records, rec)
				}
			} else if records, err = dbc.SelectInstalls(groupID, artifactID); err != nil {
				return xerrors.Errorf("db select error: %w", err)
			}
			entries := lo.Map(records, func(r types.InstallRecord, _ int) historyEntry {
				return historyEntry{
					GroupID:     r.GroupID,
					ArtifactID:  r.ArtifactID,
					Version:     r.Version,
					Classifier:  r.Classifier,
					Extension:   r.Extension,
					SHA1:        hex.EncodeToString(r.SHA1),
					Size:        r.Size,
					Path:        r.Path,
					InstalledAt: r.InstalledAt,
				}
			})

			switch {
			case output != "":
				if err = fileutil.WriteJSON(output, entries); err != nil {
					return xerrors.Errorf("unable to write %s: %w", output, err)
				}
			case asJSON:
				e := json.NewEncoder(cmd.OutOrStdout())
				e.SetIndent("", "  ")
				if err = e.Encode(entries); err != nil {
					return xerrors.Errorf("json encode error: %w", err)
				}
			default:
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "INSTALLED AT\tARTIFACT\tSIZE\tSHA1")
				for _, e := range entries {
					gav := types.Coordinate{
						GroupID:    e.GroupID,
						ArtifactID: e.ArtifactID,
						Version:    e.Version,
						Packaging:  e.Extension,
						Classifier: e.Classifier,
					}
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", e.InstalledAt.Local().Format(time.RFC3339), gav, e.Size, e.SHA1)
				}
				return w.Flush()
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&groupID, "group-id", "", "only show this groupId")
	f.StringVar(&artifactID, "artifact-id", "", "only show this artifactId")
	f.StringVar(&sha1, "sha1", "", "find the install of a file by its SHA-1 digest")
	f.BoolVar(&asJSON, "json", false, "print JSON")
	f.StringVarP(&output, "output", "o", "", "write JSON to this file")
	return cmd
}
