// Package session binds one websocket connection to one research or batch
// run. Inbound directives are dispatched to the run; every event the run
// produces is written to the observer in emission order. Closing the
// connection cancels the run.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/atlas-research/internal/batch"
	"github.com/sells-group/atlas-research/internal/model"
	"github.com/sells-group/atlas-research/internal/report"
)

// Researcher starts a single-target run.
type Researcher interface {
	Start(ctx context.Context, target model.Target) (<-chan model.Event, <-chan model.Outcome)
}

// Batches drives the upload handshake and batch processing.
type Batches interface {
	Analyze(ctx context.Context, filename string) (batch.Analysis, error)
	Confirm(ctx context.Context, filename string) (*model.BatchJob, error)
	Run(ctx context.Context, job *model.BatchJob, events chan<- model.Event) (model.BatchResult, error)
}

// ProfileExporter writes a single-target workbook and returns its name.
type ProfileExporter interface {
	ExportProfile(label string, rep report.Report) (string, error)
}

// Recorder persists terminal single-target outcomes.
type Recorder interface {
	SaveRun(ctx context.Context, run model.Run) (*model.Run, error)
}

// Deps are the collaborators of a Session. Batches, Profiles and Recorder
// may be nil.
type Deps struct {
	Researcher Researcher
	Batches    Batches
	Profiles   ProfileExporter
	Recorder   Recorder
	// ReportURL maps an exported workbook name to the link sent to the
	// observer. Nil serves names under /reports/.
	ReportURL func(name string) string
}

// errPeerClosed ends the read pump when the observer goes away.
var errPeerClosed = errors.New("session: peer closed")

const (
	outBuffer     = 64
	inboundBuffer = 16
)

// inbound is one parsed frame. Parse failures travel the same queue so
// their error messages stay in arrival order.
type inbound struct {
	directive Directive
	err       error
}

// Session holds connection plumbing and the active run's context only.
type Session struct {
	id   string
	conn Conn
	deps Deps
	log  *zap.Logger

	out        chan any
	directives chan inbound
	closing    chan struct{}
}

// New creates a Session over conn.
func New(conn Conn, deps Deps) *Session {
	id := uuid.New().String()
	return &Session{
		id:         id,
		conn:       conn,
		deps:       deps,
		log:        zap.L().With(zap.String("session_id", id)),
		out:        make(chan any, outBuffer),
		directives: make(chan inbound, inboundBuffer),
		closing:    make(chan struct{}),
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Serve runs the session until its terminal message is written or the
// connection drops. A non-empty target starts a single-target run at once;
// otherwise the session waits for batch directives.
func (s *Session) Serve(ctx context.Context, target string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.log.Info("session: opened", zap.String("target", target))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readPump(gctx) })
	g.Go(func() error { return s.writePump(gctx) })
	g.Go(func() error {
		defer close(s.out)
		s.dispatch(gctx, target)
		return nil
	})

	err := g.Wait()
	if errors.Is(err, errPeerClosed) {
		s.log.Info("session: observer disconnected")
		_ = s.conn.Close("peer closed")
		return nil
	}
	if err != nil {
		s.log.Warn("session: closed with error", zap.Error(err))
		_ = s.conn.Close("internal error")
		return err
	}
	s.log.Info("session: closed")
	return nil
}

// readPump queues frames for the dispatcher in arrival order.
func (s *Session) readPump(ctx context.Context) error {
	for {
		data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || isDone(s.closing) {
				return nil
			}
			if !normalClose(err) {
				s.log.Debug("session: read failed", zap.Error(err))
			}
			return errPeerClosed
		}

		d, err := ParseDirective(data)
		select {
		case s.directives <- inbound{directive: d, err: err}:
		case <-s.closing:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// writePump writes queued messages and pings the peer. Once the dispatcher
// closes out, the connection is closed normally.
func (s *Session) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-s.out:
			if !ok {
				close(s.closing)
				return s.closeNormally()
			}
			if err := s.write(ctx, msg); err != nil {
				return err
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeWait)
			err := s.conn.Ping(pctx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return eris.Wrap(err, "session: ping")
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Session) closeNormally() error {
	if err := s.conn.Close("done"); err != nil && !normalClose(err) {
		s.log.Debug("session: close", zap.Error(err))
	}
	return nil
}

func (s *Session) write(ctx context.Context, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return eris.Wrap(err, "session: marshal message")
	}
	wctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	if err := s.conn.Write(wctx, data); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return eris.Wrap(err, "session: write")
	}
	return nil
}

// emit queues msg for the writer. It reports false once ctx is done.
func (s *Session) emit(ctx context.Context, msg any) bool {
	select {
	case s.out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Session) dispatch(ctx context.Context, target string) {
	if target != "" {
		s.research(ctx, target)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-s.directives:
			if in.err != nil {
				s.emit(ctx, s.errorFor(in.err))
				continue
			}
			if s.handle(ctx, in.directive) {
				return
			}
		}
	}
}

// handle runs one directive and reports whether the session is finished.
func (s *Session) handle(ctx context.Context, d Directive) bool {
	log := s.log.With(zap.String("directive", d.Type), zap.String("filename", d.Filename))
	if s.deps.Batches == nil {
		s.emit(ctx, errorMessage("batch processing is not available"))
		return false
	}

	switch d.Type {
	case DirectiveAnalyze:
		a, err := s.deps.Batches.Analyze(ctx, d.Filename)
		if err != nil {
			log.Info("session: analyze rejected", zap.Error(err))
			s.emit(ctx, s.errorFor(err))
			return false
		}
		s.emit(ctx, AnalysisMessage{Type: TypeAnalysisResult, Filename: a.Filename, Count: a.Count, Skipped: a.Skipped})
		return false

	case DirectiveConfirm:
		job, err := s.deps.Batches.Confirm(ctx, d.Filename)
		if err != nil {
			log.Info("session: confirm rejected", zap.Error(err))
			s.emit(ctx, s.errorFor(err))
			return false
		}
		s.runBatch(ctx, job)
		return true
	}
	return false
}

func (s *Session) research(ctx context.Context, input string) {
	t, err := model.NewTarget(input)
	if err != nil {
		s.emit(ctx, s.errorFor(err))
		return
	}

	events, outcomes := s.deps.Researcher.Start(ctx, t)
	s.forward(ctx, events)
	o := <-outcomes

	if !o.Persistable() {
		s.log.Info("session: run discarded", zap.String("target", t.Label()), zap.String("phase", string(o.Phase)))
		return
	}
	s.record(ctx, o)

	if !o.Succeeded() {
		s.emit(ctx, errorMessage(fmt.Sprintf("Research failed for %s: %s", t.Label(), o.Failure)))
		return
	}

	rep := report.Assemble([]model.Outcome{o})
	msg := ResultMessage{Type: TypeResult, Profile: rep.Profile}
	if s.deps.Profiles != nil {
		name, err := s.deps.Profiles.ExportProfile(t.Label(), rep)
		if err != nil {
			s.log.Error("session: profile export failed", zap.String("target", t.Label()), zap.Error(err))
		} else {
			msg.ReportURL = s.reportURL(name)
		}
	}
	s.emit(ctx, msg)
}

func (s *Session) runBatch(ctx context.Context, job *model.BatchJob) {
	events := make(chan model.Event, outBuffer)
	var (
		res    model.BatchResult
		runErr error
	)
	go func() {
		defer close(events)
		res, runErr = s.deps.Batches.Run(ctx, job, events)
	}()
	s.forward(ctx, events)

	if runErr != nil {
		if ctx.Err() != nil {
			s.log.Info("session: batch discarded", zap.String("job_id", job.ID), zap.Int("processed", job.Processed))
			return
		}
		s.emit(ctx, s.errorFor(runErr))
		return
	}
	s.emit(ctx, BulkResultMessage{
		Type:      TypeBulkResult,
		ExcelURL:  s.reportURL(res.ReportName),
		Filename:  res.Filename,
		Count:     res.Count,
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
	})
}

// forward relays events until the producer closes the channel. Directives
// arriving meanwhile are rejected in line with the run's messages.
func (s *Session) forward(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if msg := eventMessage(ev); msg != nil {
				s.emit(ctx, msg)
			}
		case in := <-s.directives:
			if in.err != nil {
				s.emit(ctx, s.errorFor(in.err))
				continue
			}
			s.log.Info("session: directive rejected during run", zap.String("directive", in.directive.Type))
			s.emit(ctx, errorMessage("a run is already in progress"))
		}
	}
}

func (s *Session) record(ctx context.Context, o model.Outcome) {
	if s.deps.Recorder == nil {
		return
	}
	if _, err := s.deps.Recorder.SaveRun(ctx, model.RunFromOutcome(o, "")); err != nil {
		s.log.Error("session: save run failed", zap.String("target", o.Target.Label()), zap.Error(err))
	}
}

func (s *Session) reportURL(name string) string {
	if name == "" {
		return ""
	}
	if s.deps.ReportURL != nil {
		return s.deps.ReportURL(name)
	}
	return "/reports/" + name
}

// errorFor renders err for the observer. Validation errors and session
// faults are shown as is; anything else is logged and reported generically.
func (s *Session) errorFor(err error) ErrorMessage {
	var fault *model.SessionFault
	if model.IsValidation(err) || errors.As(err, &fault) {
		return errorMessage(err.Error())
	}
	s.log.Error("session: internal error", zap.Error(err))
	return errorMessage("internal error")
}

func isDone(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
