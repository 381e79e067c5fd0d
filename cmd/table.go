package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-mel/fieldqc-cli/internal/analysis"
	"github.com/meridian-mel/fieldqc-cli/internal/model"
	"github.com/meridian-mel/fieldqc-cli/internal/store"
)

var (
	tableRun      string
	tableVariable string
	tableTopBreak string
	tableStat     string
	tableJSON     bool
)

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Build a banner table over a stored run",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		stat := analysis.Stat(tableStat)
		if !analysis.ValidStat(stat) {
			return eris.Errorf("table: unknown stat %q", tableStat)
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		subs, err := st.ListProcessed(ctx, tableRun, store.ProcessedFilter{})
		if err != nil {
			return err
		}
		if len(subs) == 0 {
			return eris.Errorf("table: run %s has no submissions", tableRun)
		}

		rows := make([]model.RawSubmission, len(subs))
		for i, sub := range subs {
			rows[i] = sub.Raw
		}

		opts := analysis.DefaultSeriesOptions()

		if tableTopBreak == "" {
			dist, err := analysis.Distribute(rows, tableVariable, opts)
			if err != nil {
				return err
			}
			if tableJSON {
				return printJSON(dist)
			}
			for i, cat := range dist.Categories {
				fmt.Printf("%-28s %6d  %5.1f%%\n", cat, dist.Counts[i], dist.Percents[i])
			}
			fmt.Printf("n=%d\n", dist.N)
			return nil
		}

		table, err := analysis.Crosstab(rows, tableTopBreak, tableVariable, opts)
		if err != nil {
			return err
		}
		if tableJSON {
			return printJSON(table)
		}
		fmt.Print(table.RenderText(stat))
		for _, note := range table.Notes {
			fmt.Printf("note: %s\n", note)
		}
		return nil
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "table: encode")
}

func init() {
	tableCmd.Flags().StringVar(&tableRun, "run", "", "run id")
	tableCmd.Flags().StringVar(&tableVariable, "var", "", "variable column")
	tableCmd.Flags().StringVar(&tableTopBreak, "top", "", "top-break column")
	tableCmd.Flags().StringVar(&tableStat, "stat", string(analysis.StatCounts), "counts, rowpct, colpct, or totalpct")
	tableCmd.Flags().BoolVar(&tableJSON, "json", false, "emit JSON instead of text")
	tableCmd.MarkFlagRequired("run") //nolint:errcheck
	tableCmd.MarkFlagRequired("var") //nolint:errcheck
	rootCmd.AddCommand(tableCmd)
}
