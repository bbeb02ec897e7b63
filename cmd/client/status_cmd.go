package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/openmined/syncmirror/internal/client/sync"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether the local folder has changes to push",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			engine, b, err := newEngine(cmd, cfg, nil)
			if err != nil {
				return err
			}
			defer b.Close()

			res, err := engine.CheckNeedsSync()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}
			printStatus(cmd, res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func printStatus(cmd *cobra.Command, res *sync.NeedsSyncResult) {
	out := cmd.OutOrStdout()

	lastSync := "never"
	if res.LastSync > 0 {
		lastSync = humanize.Time(time.UnixMilli(res.LastSync))
	}

	if res.NeedsSync {
		fmt.Fprintf(out, "%s %s\n", yellow("needs sync:"), res.Reason)
	} else {
		fmt.Fprintf(out, "%s %s\n", green("in sync:"), res.Reason)
	}
	fmt.Fprintf(out, "%s %s\n", cyan("last sync:"), lastSync)
	for _, path := range res.ChangedFiles {
		fmt.Fprintf(out, "  %s %s\n", yellow("changed"), path)
	}
}
