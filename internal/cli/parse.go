/*
PURPOSE:
  `fio-tuner parse`: extracts IOPS and p99 latency from saved fio JSON output.

REQUIREMENTS:
  Implementation-discovered:
  - Reads a file argument or stdin; refuses to wait on an interactive terminal.

ARCHITECTURE INTEGRATION:
  - Uses: internal/fio (Parse)
*/

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/daryltucker/fio-tuner/internal/fio"
)

var parseCmd = &cobra.Command{
	Use:   "parse [fio-output.json]",
	Short: "Parse saved fio JSON output and print the extracted metrics",
	Long: `Applies the same extraction the search uses to a saved fio run. Useful to check
a job file produces parsable output before starting a long search. Reads stdin when
no file (or "-") is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			raw []byte
			err error
		)
		if len(args) == 0 || args[0] == "-" {
			in := cmd.InOrStdin()
			if f, ok := in.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
				return errors.New("no fio output given: pass a file or pipe it on stdin")
			}
			raw, err = io.ReadAll(in)
		} else {
			raw, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to read fio output: %w", err)
		}

		m, err := fio.Parse(raw)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "source:          %s\n", m.Source)
		fmt.Fprintf(out, "direction:       %s\n", m.Direction)
		fmt.Fprintf(out, "iops:            %.2f\n", m.IOPS)
		fmt.Fprintf(out, "tail_latency_ms: %.3f\n", m.TailLatencyMs)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
}
