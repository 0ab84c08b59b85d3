package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/newthinker/btviz/internal/dataset"
	"github.com/newthinker/btviz/internal/format"
	"github.com/newthinker/btviz/internal/session"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var inspectFormat string

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Validate a backtest file and print its summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", "text", "output format: text, json or yaml")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	v, err := dataset.NewValidator(cfg.Upload.StrictValidation)
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening %s: %w", args[0], err)
	}
	defer f.Close()

	ds, err := v.Load(f)
	if err != nil {
		return err
	}

	m := session.NewManager(1, 0, session.Options{
		AlignTolerance: cfg.Playback.AlignTolerance,
		Window:         cfg.Playback.VisibleWindow,
		DefaultSpeed:   cfg.Playback.DefaultSpeed,
		Logger:         log,
	})
	defer m.Close()
	s, err := m.Create(ds)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch inspectFormat {
	case "text":
		return printSummary(out, s)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s.Summary())
	case "yaml":
		return printYAML(out, s.Summary())
	default:
		return fmt.Errorf("unknown format %q, want text, json or yaml", inspectFormat)
	}
}

func printSummary(out io.Writer, s *session.Session) error {
	sum := s.Summary()
	candles := s.Candles()
	m := sum.Metrics

	profitFactor := fmt.Sprintf("%.2f", float64(m.ProfitFactor))
	if m.ProfitFactor.IsInf() {
		profitFactor = "∞"
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Symbol:\t%s\n", sum.Symbol)
	fmt.Fprintf(w, "Timeframe:\t%s\n", sum.Timeframe)
	fmt.Fprintf(w, "Period:\t%s to %s\n", unixTime(candles[0].Time), unixTime(candles[len(candles)-1].Time))
	fmt.Fprintf(w, "Candles:\t%d\n", sum.Candles)
	fmt.Fprintf(w, "Trades:\t%d (%d on chart)\n", sum.Trades, sum.AlignedTrades)
	fmt.Fprintln(w, "\t")
	fmt.Fprintf(w, "Starting balance:\t%s\n", format.Currency(sum.StartingBalance))
	fmt.Fprintf(w, "Final balance:\t%s\n", format.Currency(m.FinalBalance))
	fmt.Fprintf(w, "Total P/L:\t%s\n", format.Currency(m.TotalProfitLoss))
	fmt.Fprintf(w, "Win rate:\t%s (%d won, %d lost)\n", format.Percentage(m.WinRate), m.WinningTrades, m.LosingTrades)
	fmt.Fprintf(w, "Profit factor:\t%s\n", profitFactor)
	fmt.Fprintf(w, "Average profit:\t%s\n", format.Currency(m.AverageProfit))
	fmt.Fprintf(w, "Average loss:\t%s\n", format.Currency(m.AverageLoss))
	fmt.Fprintf(w, "Largest win:\t%s\n", format.Currency(m.LargestWin))
	fmt.Fprintf(w, "Largest loss:\t%s\n", format.Currency(m.LargestLoss))
	fmt.Fprintf(w, "Max drawdown:\t%s\n", format.Percentage(m.MaxDrawdown))
	return w.Flush()
}

// printYAML writes v as YAML using its JSON field names
func printYAML(out io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func unixTime(sec int64) string {
	return time.Unix(sec, 0).UTC().Format("2006-01-02 15:04")
}
