// Package batch turns an uploaded record list into a confirmed job and runs
// its targets one at a time through the research engine.
package batch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/atlas-research/internal/ingest"
	"github.com/sells-group/atlas-research/internal/model"
	"github.com/sells-group/atlas-research/internal/report"
)

// Runner researches one target to a terminal outcome.
type Runner interface {
	Run(ctx context.Context, target model.Target, events chan<- model.Event) model.Outcome
}

// Recorder persists terminal outcomes and batch summaries.
type Recorder interface {
	SaveRun(ctx context.Context, run model.Run) (*model.Run, error)
	SaveBatch(ctx context.Context, summary model.BatchSummary) error
}

// Exporter writes the bulk workbook and returns its name.
type Exporter interface {
	ExportBulk(rep report.Report) (string, error)
}

// Controller owns the upload handshake and sequential batch processing.
// Recorder and Exporter may be nil.
type Controller struct {
	registry  Registry
	uploadDir string
	runner    Runner
	recorder  Recorder
	exporter  Exporter
	maxSize   int64
}

// Options configures a Controller.
type Options struct {
	UploadDir string
	// MaxUploadBytes bounds accepted files; zero means 10 MiB.
	MaxUploadBytes int64
	Recorder       Recorder
	Exporter       Exporter
}

// NewController creates a Controller.
func NewController(registry Registry, runner Runner, opts Options) *Controller {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	return &Controller{
		registry:  registry,
		uploadDir: opts.UploadDir,
		runner:    runner,
		recorder:  opts.Recorder,
		exporter:  opts.Exporter,
		maxSize:   opts.MaxUploadBytes,
	}
}

// Accept stores r under a generated name keeping the extension of
// original, and registers it as uploaded.
func (c *Controller) Accept(ctx context.Context, original string, r io.Reader) (model.Upload, error) {
	format, ok := ingest.DetectFormat(original)
	if !ok {
		return model.Upload{}, model.NewValidationError(original, "unsupported file type, expected .csv or .xlsx")
	}
	if err := os.MkdirAll(c.uploadDir, 0o755); err != nil {
		return model.Upload{}, eris.Wrap(err, "batch: create upload dir")
	}

	name := uuid.New().String() + "." + string(format)
	path := filepath.Join(c.uploadDir, name)
	f, err := os.Create(path)
	if err != nil {
		return model.Upload{}, eris.Wrap(err, "batch: create upload")
	}
	n, err := io.Copy(f, io.LimitReader(r, c.maxSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > c.maxSize {
		err = model.NewValidationError(original, "file too large")
	}
	if err != nil {
		_ = os.Remove(path)
		if model.IsValidation(err) {
			return model.Upload{}, err
		}
		return model.Upload{}, eris.Wrap(err, "batch: write upload")
	}

	up, err := c.registry.Register(ctx, name)
	if err != nil {
		_ = os.Remove(path)
		return model.Upload{}, err
	}
	zap.L().Info("batch: upload accepted",
		zap.String("original", original),
		zap.String("filename", name),
		zap.Int64("bytes", n),
	)
	return up, nil
}

// Analyze validates an uploaded file and records its targets. Analyzing
// the same upload again yields the same result.
func (c *Controller) Analyze(ctx context.Context, filename string) (Analysis, error) {
	if err := validName(filename); err != nil {
		return Analysis{}, err
	}
	up, err := c.registry.Get(ctx, filename)
	if err != nil {
		return Analysis{}, err
	}
	if up.State == model.UploadConsumed {
		return Analysis{}, model.NewValidationError(filename, "upload already consumed")
	}

	table, err := readUpload(ctx, filepath.Join(c.uploadDir, filename), filename)
	if err != nil {
		return Analysis{}, err
	}
	targets, skipped := parseTargets(table)

	_, err = c.registry.Update(ctx, filename, func(u *model.Upload) error {
		if u.State == model.UploadConsumed {
			return model.NewValidationError(filename, "upload already consumed")
		}
		u.State = model.UploadAnalyzed
		u.Targets = targets
		u.Skipped = skipped
		u.AnalyzedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return Analysis{}, err
	}

	zap.L().Info("batch: upload analyzed",
		zap.String("filename", filename),
		zap.Int("count", len(targets)),
		zap.Int("skipped", skipped),
	)
	return Analysis{Filename: filename, Count: len(targets), Skipped: skipped, Targets: targets}, nil
}

// Confirm consumes an analyzed upload and creates its job. Any other state
// is rejected without side effects.
func (c *Controller) Confirm(ctx context.Context, filename string) (*model.BatchJob, error) {
	if err := validName(filename); err != nil {
		return nil, err
	}
	up, err := c.registry.Update(ctx, filename, func(u *model.Upload) error {
		switch u.State {
		case model.UploadAnalyzed:
		case model.UploadConsumed:
			return model.NewValidationError(filename, "upload already consumed")
		default:
			return model.NewValidationError(filename, "upload has not been analyzed")
		}
		if len(u.Targets) == 0 {
			return model.NewValidationError(filename, "upload has no valid records")
		}
		u.State = model.UploadConsumed
		return nil
	})
	if err != nil {
		return nil, err
	}
	job := model.NewBatchJob(uuid.New().String(), filename, up.Targets)
	zap.L().Info("batch: job confirmed", zap.String("job_id", job.ID), zap.Int("total", job.Total))
	return job, nil
}

// Run processes job one target at a time in order. After each target a
// progress event is sent; per-target failures are recorded and processing
// continues. A cancelled context stops the job: the interrupted target is
// neither counted nor persisted.
func (c *Controller) Run(ctx context.Context, job *model.BatchJob, events chan<- model.Event) (model.BatchResult, error) {
	log := zap.L().With(zap.String("job_id", job.ID))

	for i := job.Next(); i >= 0; i = job.Next() {
		if ctx.Err() != nil {
			break
		}
		if err := job.Begin(i); err != nil {
			return model.BatchResult{}, err
		}
		target := job.Records[i].Target
		o := c.runner.Run(ctx, target, events)
		if !o.Persistable() {
			break
		}

		c.saveRun(ctx, log, o, job.ID)
		p, err := job.Finish(i, o)
		if err != nil {
			return model.BatchResult{}, err
		}
		log.Info("batch: target finished",
			zap.String("target", p.Target),
			zap.String("status", p.Status),
			zap.Int("current", p.Current),
			zap.Int("total", p.Total),
		)
		if !send(ctx, events, model.ProgressEventOf(p)) {
			break
		}
	}

	if !job.Done() {
		job.Status = model.BatchCancelled
		log.Warn("batch: job cancelled", zap.Int("processed", job.Processed), zap.Int("total", job.Total))
		cause := context.Cause(ctx)
		if cause == nil {
			cause = eris.New("interrupted")
		}
		return model.BatchResult{}, eris.Wrap(cause, "batch: cancelled")
	}
	return c.finish(ctx, log, job), nil
}

func (c *Controller) finish(ctx context.Context, log *zap.Logger, job *model.BatchJob) model.BatchResult {
	outcomes := job.Outcomes()
	succeeded, failed := job.Counts()
	res := model.BatchResult{
		JobID:     job.ID,
		Filename:  job.Filename,
		Count:     len(outcomes),
		Succeeded: succeeded,
		Failed:    failed,
		Outcomes:  outcomes,
	}

	if c.exporter != nil {
		name, err := c.exporter.ExportBulk(report.Assemble(outcomes))
		if err != nil {
			log.Error("batch: export failed", zap.Error(err))
		}
		res.ReportName = name
	}

	if c.recorder != nil {
		err := c.recorder.SaveBatch(ctx, model.BatchSummary{
			ID:         job.ID,
			Filename:   job.Filename,
			Total:      job.Total,
			Succeeded:  succeeded,
			Failed:     failed,
			ReportName: res.ReportName,
			CreatedAt:  job.CreatedAt,
			FinishedAt: job.FinishedAt,
		})
		if err != nil {
			log.Error("batch: save summary failed", zap.Error(err))
		}
	}

	log.Info("batch: job completed",
		zap.Int("count", res.Count),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.String("report", res.ReportName),
	)
	return res
}

func (c *Controller) saveRun(ctx context.Context, log *zap.Logger, o model.Outcome, jobID string) {
	if c.recorder == nil {
		return
	}
	if _, err := c.recorder.SaveRun(ctx, model.RunFromOutcome(o, jobID)); err != nil {
		log.Error("batch: save run failed", zap.String("target", o.Target.Label()), zap.Error(err))
	}
}

// send delivers ev unless ctx is done first. A nil channel accepts
// everything.
func send(ctx context.Context, events chan<- model.Event, ev model.Event) bool {
	if events == nil {
		return ctx.Err() == nil
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func validName(filename string) error {
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return model.NewValidationError(filename, "invalid upload name")
	}
	return nil
}
