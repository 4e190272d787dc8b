package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/provider-risk/internal/fetcher"
	"github.com/sells-group/provider-risk/internal/investigate"
	"github.com/sells-group/provider-risk/internal/model"
	"github.com/sells-group/provider-risk/internal/resilience"
)

var (
	batchInput       string
	batchOutput      string
	batchConcurrency int
	batchReport      bool
	batchNoSave      bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Investigate every NPI in a CSV file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		in, err := os.Open(batchInput)
		if err != nil {
			return eris.Wrapf(err, "batch: open %s", batchInput)
		}
		defer in.Close() //nolint:errcheck

		npis, err := readNPIs(ctx, in)
		if err != nil {
			return err
		}

		env, err := initEngine(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}

		rows := processBatch(ctx, npis, concurrency, env.Investigator, investigate.RunOptions{
			Report: batchReport,
			Save:   !batchNoSave,
		})

		out := cmd.OutOrStdout()
		if batchOutput != "" {
			f, err := os.Create(batchOutput)
			if err != nil {
				return eris.Wrapf(err, "batch: create %s", batchOutput)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}
		if err := writeBatchCSV(out, rows); err != nil {
			return err
		}
		return ctx.Err()
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "CSV file with an NPI column (required)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "summary CSV path (default stdout)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "parallel investigations (default from config)")
	batchCmd.Flags().BoolVar(&batchReport, "report", false, "write a report for each provider")
	batchCmd.Flags().BoolVar(&batchNoSave, "no-save", false, "do not persist investigations")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}

// investigationRunner runs one investigation.
type investigationRunner interface {
	Run(ctx context.Context, npi string, opts investigate.RunOptions) (*model.Investigation, error)
}

// batchRow is one line of the batch summary.
type batchRow struct {
	NPI          string
	ID           string
	RiskScore    int
	Priority     model.Priority
	Quality      float64
	Evidence     int
	SourceErrors int
	Err          error
}

var batchHeader = []string{
	"npi", "investigation_id", "risk_score", "priority", "quality_score",
	"evidence_count", "unavailable_sources", "error", "error_kind",
}

// readNPIs reads NPIs from a CSV with an NPI column, or from a headerless
// single-column file. Duplicates are dropped; input order is kept.
func readNPIs(ctx context.Context, r io.Reader) ([]string, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "batch: read input")
	}

	var header []string
	select {
	case header = <-headerCh:
	default:
		return nil, nil
	}
	col, err := npiColumn(header)
	if err != nil {
		return nil, err
	}

	var npis []string
	seen := make(map[string]struct{})
	add := func(npi string) {
		if npi == "" {
			return
		}
		if _, dup := seen[npi]; dup {
			return
		}
		seen[npi] = struct{}{}
		npis = append(npis, npi)
	}

	if len(header) == 1 && model.ValidNPI(header[0]) {
		add(header[0])
	}
	for _, row := range rows {
		if col < len(row) {
			add(row[col])
		}
	}

	zap.L().Info("batch: input read", zap.Int("npis", len(npis)))
	return npis, nil
}

func npiColumn(header []string) (int, error) {
	if i, ok := fetcher.HeaderIndex(header)["NPI"]; ok {
		return i, nil
	}
	if len(header) == 1 && model.ValidNPI(header[0]) {
		return 0, nil
	}
	return -1, eris.New("batch: input has no NPI column")
}

// processBatch investigates npis with at most concurrency in flight. A failed
// investigation is recorded on its row and never aborts the batch. Rows come
// back in input order.
func processBatch(ctx context.Context, npis []string, concurrency int, run investigationRunner, opts investigate.RunOptions) []batchRow {
	rows := make([]batchRow, len(npis))
	if len(npis) == 0 {
		zap.L().Info("batch: no NPIs to process")
		return rows
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("npis", len(npis)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for i, npi := range npis {
		g.Go(func() error {
			row := batchRow{NPI: npi}
			defer func() { rows[i] = row }()

			inv, err := run.Run(gctx, npi, opts)
			if err != nil {
				failed.Add(1)
				row.Err = err
				zap.L().Error("investigation failed",
					zap.String("npi", npi),
					zap.String("kind", resilience.ErrorKind(err)),
					zap.Error(err),
				)
				return nil
			}

			succeeded.Add(1)
			row.ID = inv.ID
			row.RiskScore = inv.Assessment.RiskScore
			row.Priority = inv.Assessment.Priority
			row.Quality = inv.Assessment.QualityScore
			row.Evidence = len(inv.Assessment.Evidence)
			row.SourceErrors = len(inv.SourceErrors)
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return rows
}

func writeBatchCSV(out io.Writer, rows []batchRow) error {
	w := csv.NewWriter(out)
	if err := w.Write(batchHeader); err != nil {
		return eris.Wrap(err, "batch: write header")
	}
	for _, r := range rows {
		rec := []string{r.NPI, r.ID, "", "", "", "", "", "", ""}
		if r.Err != nil {
			rec[7] = r.Err.Error()
			rec[8] = resilience.ErrorKind(r.Err)
		} else {
			rec[2] = strconv.Itoa(r.RiskScore)
			rec[3] = string(r.Priority)
			rec[4] = strconv.FormatFloat(r.Quality, 'f', 2, 64)
			rec[5] = strconv.Itoa(r.Evidence)
			rec[6] = strconv.Itoa(r.SourceErrors)
		}
		if err := w.Write(rec); err != nil {
			return eris.Wrap(err, "batch: write row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "batch: flush")
}
