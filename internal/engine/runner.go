/*
PURPOSE:
  High-level runner that orchestrates the optimization process.
  Wires the fio client, the trial log writers and the searcher together.

REQUIREMENTS:
  User-specified:
  - Run the search against the configured job file, locally or via clients.
  - Log results to CSV/JSON.

  Implementation-discovered:
  - Needs to report progress to CLI.
  - The report must be written even when the search fails or is canceled.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Uses: internal/engine (Searcher), internal/fio, internal/output

ERROR HANDLING:
  - Pre-flight problems (missing job file, fio not found) fail before any trial.
  - Writer errors are logged; they never abort a search.

IMPLEMENTATION RULES:
  - Check job file -> read clients -> open writers -> search -> write report.

USAGE:
  report, err := engine.Run(ctx, cfg)

RELATED FILES:
  - internal/engine/search.go
  - internal/fio/client.go
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/daryltucker/fio-tuner/internal/config"
	"github.com/daryltucker/fio-tuner/internal/fio"
	"github.com/daryltucker/fio-tuner/internal/model"
	"github.com/daryltucker/fio-tuner/internal/output"
)

// Run executes the full search described by cfg.
func Run(ctx context.Context, cfg *config.Config) (*model.Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.JobFile); err != nil {
		return nil, fmt.Errorf("fio job file not found at %s: %w", cfg.JobFile, err)
	}

	client := &fio.Client{
		Path:    cfg.FioPath,
		JobFile: cfg.JobFile,
		Timeout: cfg.TrialTimeout(),
	}
	if err := client.LookPath(); err != nil {
		return nil, err
	}

	clients, err := fio.ReadClients(cfg.ClientFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		output.Logger.Warn("Client file not found. Will run in local mode.", "client_file", cfg.ClientFile)
	case err != nil:
		return nil, err
	case len(clients) > 0:
		client.ClientFile = cfg.ClientFile
		output.Logger.Info("Client/Server mode enabled.", "clients", len(clients))
	default:
		output.Logger.Info("No client file specified or found. Running in local mode.")
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", cfg.OutputDir, err)
	}

	writers, closeWriters, err := openWriters(cfg)
	if err != nil {
		return nil, err
	}
	defer closeWriters()

	runID := uuid.NewString()
	output.Logger.Info("Starting fio performance optimization",
		"run_id", runID,
		"job_file", cfg.JobFile,
		"trial_timeout", cfg.TrialTimeout(),
		"threshold", cfg.Search.Threshold)

	s, err := NewSearcher(cfg.Search, client, fio.Parse,
		WithWriters(writers...),
		WithRunID(runID),
		WithSettleDelay(cfg.SettleDelay),
		WithTrialTimeout(cfg.TrialTimeout()),
	)
	if err != nil {
		return nil, err
	}

	report, searchErr := s.Search(ctx)

	for _, w := range writers {
		if m, ok := w.(*output.MetricsWriter); ok {
			if err := m.Finish(report); err != nil {
				output.Logger.Error("Failed to write metrics textfile", "error", err)
			}
		}
	}

	if cfg.ReportFile != "" {
		path := cfg.OutputPath(cfg.ReportFile)
		if err := output.WriteReport(path, report); err != nil {
			output.Logger.Error("Failed to write report", "path", path, "error", err)
		} else {
			output.Logger.Info("Report written", "path", path)
		}
	}

	return report, searchErr
}

func openWriters(cfg *config.Config) ([]TrialWriter, func(), error) {
	var (
		writers []TrialWriter
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				output.Logger.Error("Failed to close trial log", "error", err)
			}
		}
	}

	if cfg.TrialsFile != "" {
		path := cfg.OutputPath(cfg.TrialsFile)
		csvPath, jsonPath := path, strings.TrimSuffix(path, filepath.Ext(path))+".jsonl"
		if strings.EqualFold(filepath.Ext(path), ".jsonl") {
			csvPath = strings.TrimSuffix(path, filepath.Ext(path)) + ".csv"
			jsonPath = path
		}

		csvWriter, err := output.NewCSVWriter(csvPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init CSV writer at %s: %w", csvPath, err)
		}
		writers = append(writers, csvWriter)
		closers = append(closers, csvWriter.Close)

		jsonWriter, err := output.NewJSONWriter(jsonPath)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to init JSON writer at %s: %w", jsonPath, err)
		}
		writers = append(writers, jsonWriter)
		closers = append(closers, jsonWriter.Close)
	}

	if cfg.MetricsFile != "" {
		writers = append(writers, output.NewMetricsWriter(cfg.OutputPath(cfg.MetricsFile)))
	}

	return writers, closeAll, nil
}
