package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-mel/fieldqc-cli/internal/boundary"
	"github.com/meridian-mel/fieldqc-cli/internal/engine"
	"github.com/meridian-mel/fieldqc-cli/internal/ingest"
	"github.com/meridian-mel/fieldqc-cli/internal/model"
)

var (
	checkInput       string
	checkBoundaries  string
	checkRadius      float64
	checkOut         string
	checkSave        bool
	checkFlaggedOnly bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run quality checks over a survey export",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		opts, err := engineOptions()
		if err != nil {
			return err
		}
		if checkRadius > 0 {
			opts.ClusterRadiusM = checkRadius
		}

		boundaryPath := checkBoundaries
		if boundaryPath == "" {
			boundaryPath = cfg.Boundary.Path
		}

		// Input and boundary files load concurrently.
		var (
			rows       []model.RawSubmission
			boundaries []model.Boundary
		)
		g, _ := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			rows, err = ingest.ReadSubmissions(checkInput, csvOptions(), xlsxOptions())
			return err
		})
		if boundaryPath != "" {
			g.Go(func() error {
				var err error
				boundaries, err = boundary.Load(boundaryPath, boundaryOptions())
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		processed, err := engine.New(opts).Run(ctx, rows, boundaries)
		if err != nil {
			return err
		}

		flagged := 0
		flagCounts := make(map[model.Flag]int)
		for _, p := range processed {
			if !p.Valid {
				flagged++
			}
			for _, f := range p.Flags {
				flagCounts[f]++
			}
		}

		if checkSave {
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			run, err := st.CreateRun(ctx, checkInput, opts.ClusterRadiusM, len(boundaries))
			if err != nil {
				return err
			}
			if err := st.SaveProcessed(ctx, run.ID, processed); err != nil {
				return err
			}
			if err := st.CompleteRun(ctx, run.ID, len(processed), flagged); err != nil {
				return err
			}
			zap.L().Info("check: run saved", zap.String("run", run.ID))
			fmt.Printf("run: %s\n", run.ID)
		}

		out := processed
		if checkFlaggedOnly {
			out = out[:0:0]
			for _, p := range processed {
				if !p.Valid {
					out = append(out, p)
				}
			}
		}

		if err := writeResults(out, checkOut); err != nil {
			return err
		}

		fmt.Printf("checked %d submissions, %d flagged\n", len(processed), flagged)
		for _, f := range []model.Flag{
			model.FlagOddHour, model.FlagLowLOI, model.FlagHighLOI,
			model.FlagOutsideLGABoundary, model.FlagDuplicatePhone,
			model.FlagInterwoven, model.FlagShortGap,
			model.FlagClusteredInterview, model.FlagTerminated,
		} {
			if n := flagCounts[f]; n > 0 {
				fmt.Printf("  %-20s %d\n", f, n)
			}
		}
		return nil
	},
}

func writeResults(subs []model.ProcessedSubmission, path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "check: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(subs); err != nil {
		return eris.Wrap(err, "check: write results")
	}
	return nil
}

func init() {
	checkCmd.Flags().StringVarP(&checkInput, "input", "i", "", "survey export file (csv or xlsx)")
	checkCmd.Flags().StringVarP(&checkBoundaries, "boundaries", "b", "", "boundary file (geojson or shapefile)")
	checkCmd.Flags().Float64Var(&checkRadius, "radius", 0, "cluster radius in meters (default from config)")
	checkCmd.Flags().StringVarP(&checkOut, "out", "o", "", "write processed submissions to a JSON file")
	checkCmd.Flags().BoolVar(&checkSave, "save", false, "persist the run to the configured store")
	checkCmd.Flags().BoolVar(&checkFlaggedOnly, "flagged-only", false, "write only flagged submissions")
	checkCmd.MarkFlagRequired("input") //nolint:errcheck
	rootCmd.AddCommand(checkCmd)
}
