// Package pipeline orchestrates a projection run: open the export store,
// validate the schema configuration against it, then project each patient
// through hydration, the typed chart, and the clean document.
package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehi/projector/internal/catalog"
	"github.com/ehi/projector/internal/clean"
	"github.com/ehi/projector/internal/domain/chart"
	"github.com/ehi/projector/internal/hydrate"
	"github.com/ehi/projector/internal/platform/store"
)

// Runner projects patients from one export store. A Runner is scoped to a
// single run: it builds a fresh lookup service and fresh indices, so
// concurrent runs construct independent Runners over their own stores.
type Runner struct {
	st     store.Store
	outDir string
	mode   clean.Mode
	logger zerolog.Logger
	runID  string
}

func NewRunner(st store.Store, outDir string, mode clean.Mode, logger zerolog.Logger) *Runner {
	runID := uuid.New().String()
	return &Runner{
		st:     st,
		outDir: outDir,
		mode:   mode,
		logger: logger.With().Str("run_id", runID).Logger(),
		runID:  runID,
	}
}

// Result summarizes one run.
type Result struct {
	RunID     string
	Projected int
	Failed    int
	Elapsed   time.Duration
}

// Run projects every patient in the export, or only the given ids. A
// missing root patient row fails that patient; other patients still run.
func (r *Runner) Run(patientIDs []string) (*Result, error) {
	start := time.Now()

	if err := catalog.Validate(r.st); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	if len(patientIDs) == 0 {
		ids, err := hydrate.PatientIDs(r.st)
		if err != nil {
			return nil, fmt.Errorf("list patients: %w", err)
		}
		patientIDs = ids
	}
	r.logger.Info().Int("patients", len(patientIDs)).Str("mode", string(r.mode)).Msg("projection run starting")

	res := &Result{RunID: r.runID}
	for _, pid := range patientIDs {
		if err := r.projectOne(pid); err != nil {
			r.logger.Error().Err(err).Str("patient_id", pid).Msg("projection failed")
			res.Failed++
			continue
		}
		res.Projected++
	}

	res.Elapsed = time.Since(start)
	r.logger.Info().
		Int("projected", res.Projected).
		Int("failed", res.Failed).
		Dur("elapsed", res.Elapsed).
		Msg("projection run finished")
	return res, nil
}

func (r *Runner) projectOne(patientID string) error {
	chartDoc, cleanDoc, err := ProjectPatient(r.st, patientID, r.mode)
	if err != nil {
		return err
	}

	dir := filepath.Join(r.outDir, patientID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, "chart.json"), chartDoc); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "clean.json"), cleanDoc); err != nil {
		return err
	}

	r.logger.Info().Str("patient_id", patientID).Msg("patient projected")
	return nil
}

// ProjectPatient runs the two projection stages for one patient and
// returns both documents. The caller decides what to do with them; the
// batch runner writes files, the serve surface returns them directly.
func ProjectPatient(st store.Store, patientID string, mode clean.Mode) (store.Row, clean.Document, error) {
	doc, err := hydrate.BuildChartDocument(st, patientID)
	if err != nil {
		return nil, nil, err
	}
	c, err := chart.Build(doc, hydrate.NewLookupService(st))
	if err != nil {
		return nil, nil, err
	}
	return doc, clean.Project(c, mode), nil
}

// writeJSON marshals fully before touching the file, then writes it in a
// single truncating write: a failed projection never leaves partial
// output behind.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
