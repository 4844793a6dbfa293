package main

import (
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"discrescue/internal/logging"
	"discrescue/internal/recovery"
	"discrescue/internal/rescue"
)

func newRecoverCommand(ctx *commandContext) *cobra.Command {
	var (
		inputFlag      string
		outputFlag     string
		mapFlag        string
		sequenceLength int
		brutePasses    int
		sectorSize     int
		readTimeout    int
		waitFlag       bool
		ejectFlag      bool
	)

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Recover a disc into an image file and a repair map",
		Long: `Recover reads the source medium with staged probing: a coarse trial scan,
an isolation pass that narrows failures to exact sectors, and bounded
per-sector retries. Recovered data lands in the output image; sectors that
never read stay zero-filled and are recorded in the map database.

An interrupted run leaves the map database behind and resumes from it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("sequence-length") {
				cfg.Recovery.SequenceLength = sequenceLength
			}
			if flags.Changed("brute-passes") {
				cfg.Recovery.BrutePasses = brutePasses
			}
			if flags.Changed("sector-size") {
				cfg.Recovery.SectorSize = sectorSize
			}
			if flags.Changed("read-timeout") {
				cfg.Device.ReadTimeout = readTimeout
			}
			if flags.Changed("eject") {
				cfg.Device.EjectOnCompletion = ejectFlag
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			logPaths := []string{filepath.Join(cfg.Paths.LogDir, "discrescue.log")}
			if !isTerminal(out) {
				logPaths = append(logPaths, "stderr")
			}
			logger, err := logging.New(logging.Options{
				Level:       cfg.Logging.Level,
				Format:      cfg.Logging.Format,
				OutputPaths: logPaths,
			})
			if err != nil {
				return err
			}

			var progress recovery.ProgressFunc
			if isTerminal(out) {
				progress = newProgressReporter(out)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			result, err := rescue.Run(runCtx, rescue.Options{
				Config:      cfg,
				InputPath:   inputFlag,
				OutputPath:  outputFlag,
				MapPath:     mapFlag,
				WaitForDisc: waitFlag,
				Logger:      logger,
				Progress:    progress,
			})
			if err != nil {
				return fmt.Errorf("recovery failed (%s): %w", recovery.ErrorKind(err), err)
			}

			printRunSummary(out, result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputFlag, "input", "i", "", "Source medium (defaults to the configured device)")
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output image path (defaults to <input>.iso)")
	cmd.Flags().StringVarP(&mapFlag, "map", "m", "", "Repair map database path (defaults to <input>.map.db)")
	cmd.Flags().IntVar(&sequenceLength, "sequence-length", 0, "Probe granularity in sectors for the trial scan")
	cmd.Flags().IntVar(&brutePasses, "brute-passes", 0, "Retry passes over sectors confirmed bad")
	cmd.Flags().IntVar(&sectorSize, "sector-size", 0, "Sector size override in bytes")
	cmd.Flags().IntVar(&readTimeout, "read-timeout", 0, "Per-read timeout in seconds")
	cmd.Flags().BoolVar(&waitFlag, "wait", false, "Wait for a disc to be inserted before reading")
	cmd.Flags().BoolVar(&ejectFlag, "eject", false, "Eject the disc when the run completes")

	return cmd
}

// newProgressReporter renders one progress bar per stage.
func newProgressReporter(out io.Writer) recovery.ProgressFunc {
	var bar *progressbar.ProgressBar
	var stage string
	return func(p recovery.Progress) {
		if bar == nil || p.Stage != stage {
			if bar != nil {
				_ = bar.Finish()
				fmt.Fprintln(out)
			}
			stage = p.Stage
			bar = progressbar.NewOptions(100,
				progressbar.OptionSetWriter(out),
				progressbar.OptionSetDescription(stage),
				progressbar.OptionSetPredictTime(false),
			)
		}
		_ = bar.Set(int(p.Percent))
	}
}

func printRunSummary(out io.Writer, result *rescue.Result) {
	rows := [][2]string{
		{"Session", result.Session.ID},
		{"Resumed", yesNo(result.Resumed)},
		{"Image", result.ImagePath},
		{"Map", result.MapPath},
		{"Good sectors", formatCount(result.Counts.Good)},
		{"Bad sectors", formatCount(result.Counts.Bad)},
		{"Elapsed", result.Elapsed.Round(100 * time.Millisecond).String()},
	}
	fmt.Fprintln(out, renderSummary(rows))
	if result.Counts.Bad > 0 {
		fmt.Fprintf(out, "%s sectors remain unreadable; see `discrescue map show --map %s`\n",
			formatCount(result.Counts.Bad), result.MapPath)
	}
}
