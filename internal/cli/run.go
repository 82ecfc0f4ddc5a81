/*
PURPOSE:
  Defines the 'run' subcommand.
  Executes the full numjobs/iodepth search.

REQUIREMENTS:
  User-specified:
  - Run the optimization.
  - Specific flags for overrides.

  Implementation-discovered:
  - Need to load config first.
  - Apply flag overrides to config.
  - Print the best result found so far even on failure or Ctrl-C.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Run()
  - Uses: internal/config, internal/output

ERROR HANDLING:
  - Returns error if config load fails or the search fails.

IMPLEMENTATION RULES:
  - Setup flags in newRunCmd().
  - Logic: Load Config -> Override -> Engine.Run -> Summary.

USAGE:
  fio-tuner run --job-file randread.fio

RELATED FILES:
  - internal/cli/root.go
*/

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/daryltucker/fio-tuner/internal/config"
	"github.com/daryltucker/fio-tuner/internal/engine"
	"github.com/daryltucker/fio-tuner/internal/output"
)

type runOverrides struct {
	jobFile     string
	clientFile  string
	fioPath     string
	outputDir   string
	metricsFile string
	runtime     time.Duration
	threshold   float64
	maxIODepth  int
	maxNumJobs  int
	bestPolicy  string
}

func newRunCmd() *cobra.Command {
	var o runOverrides

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the numjobs/iodepth search",
		Long: `Runs fio with the configured job file, injecting numjobs and iodepth through
the environment (the job file refers to ${numjobs} and ${iodepth}).

For each numjobs value (1, 2, 4, ...) iodepth doubles from 1 until a trial is not a
significant improvement (> threshold) over the best of the previous trials in the
window. numjobs stops doubling once its best result plateaus the same way.

Every trial is written to a CSV and a JSON Lines log; the final report is written to
the output directory. Relative trials_file, report_file and metrics_file names are
resolved against the output directory; absolute paths are used as given.

fio-tuner does not read the job file. Set --runtime (or runtime in the config) to the
job file's runtime=: every trial is killed after runtime + timeout_grace, and a
warning is logged when a trial gets close to that deadline.

Ctrl-C stops after the current trial and still reports the best result found so
far. A second Ctrl-C aborts immediately.`,
		Example: `  # Run with defaults (uses fio_tuner.yaml, fio.job, client.txt)
  fio-tuner run

  # Use a specific job file and results directory
  fio-tuner run --job-file randread.fio -o ./results

  # Client/server mode (start 'fio --server' on each client first)
  fio-tuner run --client-file clients.txt

  # Tighter safeguards and a 10% improvement threshold
  fio-tuner run --max-iodepth 64 --max-numjobs 16 --threshold 1.10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			o.apply(cmd, cfg)

			report, err := engine.Run(cmd.Context(), cfg)
			if report != nil {
				fmt.Fprintln(cmd.OutOrStdout(), output.Summary(report))
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.jobFile, "job-file", "", "fio job file (workload template)")
	f.StringVar(&o.clientFile, "client-file", "", "file listing fio server hosts, one per line")
	f.StringVar(&o.fioPath, "fio", "", "fio executable")
	f.StringVarP(&o.outputDir, "output-dir", "o", "", "directory for the trial log, report and metrics file (relative file names resolve here)")
	f.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus textfile metrics to this file (relative to --output-dir unless absolute)")
	f.DurationVar(&o.runtime, "runtime", 0, "must match runtime= in the job file; trial timeout = runtime + timeout_grace")
	f.Float64Var(&o.threshold, "threshold", 0, "required improvement ratio, e.g. 1.05 for 5%")
	f.IntVar(&o.maxIODepth, "max-iodepth", 0, "safeguard limit for iodepth")
	f.IntVar(&o.maxNumJobs, "max-numjobs", 0, "safeguard limit for numjobs")
	f.StringVar(&o.bestPolicy, "best-policy", "", "best trial of a plateaued level: predecessor or highest")
	return cmd
}

func (o *runOverrides) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("job-file") {
		cfg.JobFile = o.jobFile
	}
	if flags.Changed("client-file") {
		cfg.ClientFile = o.clientFile
	}
	if flags.Changed("fio") {
		cfg.FioPath = o.fioPath
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = o.outputDir
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = o.metricsFile
	}
	if flags.Changed("runtime") {
		cfg.Runtime = o.runtime
	}
	if flags.Changed("threshold") {
		cfg.Search.Threshold = o.threshold
	}
	if flags.Changed("max-iodepth") {
		cfg.Search.MaxQueueDepth = o.maxIODepth
	}
	if flags.Changed("max-numjobs") {
		cfg.Search.MaxJobCount = o.maxNumJobs
	}
	if flags.Changed("best-policy") {
		cfg.Search.BestPolicy = o.bestPolicy
	}
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}
