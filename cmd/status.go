package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/directory-crawler/internal/checkpoint"
	"github.com/JakeFAU/directory-crawler/internal/crawler"
)

type statusReport struct {
	File             string    `json:"file"`
	RegionIndex      int       `json:"region_index"`
	RegionCount      int       `json:"region_count"`
	Region           string    `json:"region,omitempty"`
	PageIndex        int       `json:"page_index"`
	Processed        int       `json:"processed"`
	CompletedRegions []string  `json:"completed_regions"`
	SavedAt          time.Time `json:"saved_at,omitzero"`
	Finished         bool      `json:"finished"`
}

// newStatusCmd creates the 'status' subcommand, which prints the saved
// checkpoint without touching the network.
func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Prints the saved crawl checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cp, err := appInstance.Status(cmd.Context())
			if err != nil {
				return err
			}
			report := newStatusReport(cp, appInstance.Regions())
			report.File = appInstance.CheckpointPath()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printStatus(cmd.OutOrStdout(), report, time.Now())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the checkpoint as JSON")
	return cmd
}

func newStatusReport(cp crawler.Checkpoint, regions []crawler.Region) statusReport {
	report := statusReport{
		RegionIndex:      cp.RegionIndex,
		RegionCount:      len(regions),
		PageIndex:        cp.PageIndex,
		Processed:        len(cp.ProcessedIDs),
		CompletedRegions: append([]string{}, cp.CompletedRegions...),
		SavedAt:          cp.SavedAt,
		Finished:         cp.RegionIndex >= len(regions),
	}
	if !report.Finished && cp.RegionIndex >= 0 {
		report.Region = regions[cp.RegionIndex].Name()
	}
	return report
}

func printStatus(w io.Writer, r statusReport, now time.Time) error {
	var b strings.Builder
	fmt.Fprintf(&b, "checkpoint: %s\n", r.File)
	if r.Finished {
		fmt.Fprintf(&b, "crawl finished: all %d regions completed\n", r.RegionCount)
	} else {
		fmt.Fprintf(&b, "region:     %s (%d of %d)\n", r.Region, r.RegionIndex+1, r.RegionCount)
		fmt.Fprintf(&b, "next page:  %d\n", r.PageIndex+1)
	}
	fmt.Fprintf(&b, "processed:  %d records\n", r.Processed)
	fmt.Fprintf(&b, "completed:  %d regions", len(r.CompletedRegions))
	if len(r.CompletedRegions) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(r.CompletedRegions, ", "))
	}
	b.WriteString("\n")
	if r.SavedAt.IsZero() {
		b.WriteString("saved:      never\n")
	} else {
		age := checkpoint.Age(crawler.Checkpoint{SavedAt: r.SavedAt}, now).Round(time.Second)
		fmt.Fprintf(&b, "saved:      %s (%s ago)\n", r.SavedAt.Format(time.RFC3339), age)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
