package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/Lllllllleong/pagecapture/internal/services"
	"github.com/spf13/cobra"
)

var (
	batchIDs    []string
	sweepBatch  string
	sweepReopen bool
	sweepFail   bool
)

var rootCmd = &cobra.Command{
	Use:           "capture-batch",
	Short:         "Capture PDF pages as images for pending document records",
	SilenceUsage:  true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture the open records of one or more batches",
	Long: `Scans the open records of each --batch (all open records when no batch
is given), renders every page of each PDF and uploads the page images.
The capture response is printed as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := services.NewCapture(cmd.Context())
		if err != nil {
			return err
		}
		defer f.Close()

		res := f.Process(cmd.Context(), batchIDs)
		if err := printJSON(res); err != nil {
			return err
		}
		if res.StatusCode != http.StatusOK {
			return fmt.Errorf("capture run %s failed: %s", res.RunID, res.Error)
		}
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "List, reopen or fail records stuck in processing_capture",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sweepReopen && sweepFail {
			return fmt.Errorf("--reopen and --fail are mutually exclusive")
		}
		action := services.SweepList
		switch {
		case sweepReopen:
			action = services.SweepReopen
		case sweepFail:
			action = services.SweepFail
		}

		f, err := services.NewCapture(cmd.Context())
		if err != nil {
			return err
		}
		defer f.Close()

		records, sweepErr := f.Sweep(cmd.Context(), sweepBatch, action)
		if err := printJSON(records); err != nil {
			return err
		}
		return sweepErr
	},
}

func init() {
	runCmd.Flags().StringArrayVarP(&batchIDs, "batch", "b", nil, "batch identifier to capture (repeatable)")

	sweepCmd.Flags().StringVarP(&sweepBatch, "batch", "b", "", "only sweep records of this batch")
	sweepCmd.Flags().BoolVar(&sweepReopen, "reopen", false, "move stuck records back to open")
	sweepCmd.Flags().BoolVar(&sweepFail, "fail", false, "mark stuck records as failed_capture")

	rootCmd.AddCommand(runCmd, sweepCmd, serveCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
