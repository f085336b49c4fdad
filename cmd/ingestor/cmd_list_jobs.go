package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/databento-ingest/tsdb-ingestor/internal/config"
)

func newListJobsCmd() *cobra.Command {
	var (
		jobsFilePath string
		vendorAPI    string
	)

	cmd := &cobra.Command{
		Use:   "list-jobs",
		Short: "Enumerate configured jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			jf, err := config.LoadJobsFile(jobsFilePath)
			if err != nil {
				return err
			}
			if len(jf.Jobs) == 0 {
				fmt.Println("(no jobs configured)")
				return nil
			}
			printed := 0
			for _, js := range jf.Jobs {
				if vendorAPI != "" && !strings.EqualFold(js.Vendor, vendorAPI) {
					continue
				}
				job, err := js.ToJob(nil)
				if err != nil {
					// A malformed entry is a config error (spec §4.1), but
					// list-jobs still reports the rest rather than aborting
					// the whole listing on one bad entry.
					fmt.Printf("%-24s INVALID: %v\n", js.Name, err)
					continue
				}
				printed++
				fmt.Printf("%-24s %-10s %-12s %-10s %s..%s (chunk_days=%d)\n",
					job.Name, job.Vendor, job.Schema, job.SymbolType,
					job.StartDate.Format("2006-01-02"), job.EndDate.Format("2006-01-02"), job.ChunkDays)
			}
			if printed == 0 && vendorAPI != "" {
				fmt.Printf("(no jobs configured for --api %q)\n", vendorAPI)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&jobsFilePath, "jobs-file", "config/jobs.yaml", "path to the jobs YAML file to enumerate")
	cmd.Flags().StringVar(&vendorAPI, "api", "", "filter to jobs for this vendor adapter (default: show all)")
	return cmd
}
