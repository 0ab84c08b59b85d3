package main

import (
	"fmt"

	"github.com/newthinker/btviz/internal/app"
	"github.com/newthinker/btviz/internal/report"
	"github.com/spf13/cobra"
)

var (
	renderIndex int
	renderName  string
)

var renderCmd = &cobra.Command{
	Use:   "render [file]",
	Short: "Export a chart and metrics report for a backtest file",
	Long: `Render freezes the replay at --index (the last candle by default) and
writes chart.html and metrics.json to the configured export storage.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().IntVar(&renderIndex, "index", -1, "candle index to freeze the replay at (default last)")
	renderCmd.Flags().StringVar(&renderName, "name", "", "report name (default timestamp)")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	a, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("creating app: %w", err)
	}
	defer a.Close()

	s, err := a.LoadFile(args[0])
	if err != nil {
		return err
	}

	index := renderIndex
	if index < 0 {
		index = s.Summary().Candles - 1
	}
	res, err := a.Export(cmd.Context(), s.ID, report.Request{Index: index, Name: renderName})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Report stored at %s\n", res.Location)
	fmt.Fprintf(out, "  chart:   %s\n", res.ChartPath)
	fmt.Fprintf(out, "  metrics: %s\n", res.MetricsPath)
	return nil
}
