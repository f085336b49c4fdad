package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/databento-ingest/tsdb-ingestor/internal/config"
	"github.com/databento-ingest/tsdb-ingestor/internal/model"
	"github.com/databento-ingest/tsdb-ingestor/internal/query"
)

const isoDateLayout = "2006-01-02"

func newQueryCmd() *cobra.Command {
	var (
		symbolsCSV   []string
		startDateStr string
		endDateStr   string
		schemaName   string
		outputFormat string
		outputFile   string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read persisted data by symbol and time range",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := model.ParseSchema(schemaName)
			if err != nil {
				return err
			}
			start, err := time.ParseInLocation(isoDateLayout, startDateStr, time.UTC)
			if err != nil {
				return fmt.Errorf("invalid --start-date %q: %w", startDateStr, err)
			}
			end, err := time.ParseInLocation(isoDateLayout, endDateStr, time.UTC)
			if err != nil {
				return fmt.Errorf("invalid --end-date %q: %w", endDateStr, err)
			}
			if start.After(end) {
				return fmt.Errorf("--start-date %s must be <= --end-date %s", startDateStr, endDateStr)
			}
			symbols := normalizeSymbols(symbolsCSV)
			if len(symbols) == 0 {
				return fmt.Errorf("--symbols is required")
			}
			switch outputFormat {
			case "table", "csv", "json":
			default:
				return fmt.Errorf("unsupported --output-format %q (want table|csv|json)", outputFormat)
			}

			sys, err := config.LoadSystemConfig(flagSystemConfig)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			db, tableSpecs, err := openStorage(ctx, sys)
			if err != nil {
				return err
			}
			defer db.Close()

			reader := query.NewReader(db, tableSpecs, 30*time.Second)
			rows, err := reader.Query(ctx, schema, symbols, start, end, limit)
			if err != nil {
				var symErr *query.SymbolResolutionError
				if asSymbolResolutionError(err, &symErr) {
					return fmt.Errorf("symbol resolution failed: %w", symErr)
				}
				return err
			}

			out := os.Stdout
			if outputFile != "" {
				f, err := os.Create(outputFile)
				if err != nil {
					return fmt.Errorf("failed to create --output-file %q: %w", outputFile, err)
				}
				defer f.Close()
				out = f
			}
			return writeRows(out, rows, outputFormat)
		},
	}

	cmd.Flags().StringSliceVar(&symbolsCSV, "symbols", nil, "comma-delimited or repeated --symbols flags")
	cmd.Flags().StringVar(&startDateStr, "start-date", "", "ISO start date (YYYY-MM-DD), inclusive")
	cmd.Flags().StringVar(&endDateStr, "end-date", "", "ISO end date (YYYY-MM-DD), inclusive")
	cmd.Flags().StringVar(&schemaName, "schema", "", "record schema (ohlcv|trades|tbbo|statistics|definition)")
	cmd.Flags().StringVar(&outputFormat, "output-format", "table", "output format (table|csv|json)")
	cmd.Flags().StringVar(&outputFile, "output-file", "", "write output to this path instead of stdout")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows to return (0 = unbounded)")

	return cmd
}

func asSymbolResolutionError(err error, target **query.SymbolResolutionError) bool {
	se, ok := err.(*query.SymbolResolutionError)
	if !ok {
		return false
	}
	*target = se
	return true
}

func writeRows(w io.Writer, rows []query.Row, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "csv":
		return writeCSV(w, rows)
	default:
		return writeTable(w, rows)
	}
}

// columnOrder returns a stable, sorted column order across a result set so
// table/CSV output is reproducible across runs with the same data.
func columnOrder(rows []query.Row) []string {
	seen := map[string]bool{}
	var cols []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

func writeCSV(w io.Writer, rows []query.Row) error {
	cols := columnOrder(rows)
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write(cols); err != nil {
		return err
	}
	for _, row := range rows {
		record := make([]string, len(cols))
		for i, c := range cols {
			record[i] = fmt.Sprint(row[c])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func writeTable(w io.Writer, rows []query.Row) error {
	cols := columnOrder(rows)
	if len(cols) == 0 {
		fmt.Fprintln(w, "(no rows)")
		return nil
	}
	fmt.Fprintln(w, strings.Join(cols, "\t"))
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = fmt.Sprint(row[c])
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	return nil
}
