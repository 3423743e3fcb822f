// Package ingest drives one reference through resolve, extract, analyze and
// store.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/paper-cli/internal/library"
	"github.com/sells-group/paper-cli/internal/model"
)

// Stage names used in logs.
const (
	StageResolve   = "resolve"
	StageExtract   = "extract"
	StageDuplicate = "duplicate-check"
	StageAnalyze   = "analyze"
	StageStore     = "store"
)

// Resolver obtains document bytes for a reference.
type Resolver interface {
	Resolve(ctx context.Context, ref model.Reference) (*model.ResolvedDocument, error)
}

// Extractor turns PDF bytes into sectioned text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (*model.ExtractedText, error)
}

// Analyzer turns text into a metadata record.
type Analyzer interface {
	Analyze(ctx context.Context, text *model.ExtractedText, maxChars int) (*model.MetadataRecord, error)
}

// Library stores records and answers duplicate lookups.
type Library interface {
	Upsert(ctx context.Context, rec *model.MetadataRecord, prov model.Provenance) (*model.StoredPageRef, error)
	FindDuplicate(ctx context.Context, title, origin string) (*library.Match, error)
	Policy() library.Policy
}

// Recorder persists outcomes to the run ledger.
type Recorder interface {
	RecordOutcome(ctx context.Context, runID string, outcome model.BatchItemOutcome) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder records every outcome under runID.
func WithRecorder(r Recorder, runID string) Option {
	return func(o *Orchestrator) {
		o.recorder = r
		o.runID = runID
	}
}

// WithMaxChars sets the text budget passed to the analyzer.
func WithMaxChars(n int) Option {
	return func(o *Orchestrator) { o.maxChars = n }
}

// Orchestrator runs the pipeline for one reference at a time. It holds no
// per-document state and may be shared by workers.
type Orchestrator struct {
	resolver  Resolver
	extractor Extractor
	analyzer  Analyzer
	library   Library
	recorder  Recorder
	runID     string
	maxChars  int
	log       *zap.Logger
}

// New creates an Orchestrator from its stages.
func New(r Resolver, e Extractor, a Analyzer, lib Library, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver:  r,
		extractor: e,
		analyzer:  a,
		library:   lib,
		log:       zap.L().With(zap.String("component", "ingest")),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run waits for the pacer, then processes ref. It never returns an error:
// every failure is folded into the outcome.
func (o *Orchestrator) Run(ctx context.Context, ref model.Reference, pacer *Pacer) model.BatchItemOutcome {
	start := time.Now()
	out := model.BatchItemOutcome{Reference: ref}

	err := pacer.Wait(ctx)
	if err == nil {
		err = o.process(ctx, ref, &out)
	}
	out.Duration = time.Since(start)

	switch {
	case err != nil:
		out.Status = model.StatusFailed
		out.ErrorKind = model.KindOf(err)
		out.Error = err.Error()
		out.Page = nil
		out.Partial = false
	case out.Page != nil && out.Page.Operation == model.OpSkipped:
		out.Status = model.StatusSkipped
		out.ErrorKind = model.ErrDuplicateSkipped
		out.Error = "already in library: " + out.Page.URL
	default:
		out.Status = model.StatusSuccess
	}

	o.logOutcome(out)
	o.record(ctx, out)
	return out
}

func (o *Orchestrator) process(ctx context.Context, ref model.Reference, out *model.BatchItemOutcome) error {
	var doc *model.ResolvedDocument
	if err := o.stage(StageResolve, ref, func() (err error) {
		doc, err = o.resolver.Resolve(ctx, ref)
		return err
	}); err != nil {
		return err
	}

	var text *model.ExtractedText
	if err := o.stage(StageExtract, ref, func() (err error) {
		text, err = o.extractor.Extract(ctx, doc.Data)
		if err == nil && text.IsProbablyScanned {
			err = model.NewError(model.ErrScannedDocument,
				fmt.Sprintf("%d characters across %d pages; OCR the file first", text.Chars, text.Pages), nil)
		}
		return err
	}); err != nil {
		return err
	}
	out.Title = text.Title

	prov := model.Provenance{Source: ref.Source, Origin: doc.Origin}

	if o.library.Policy() == library.PolicySkip && text.Title != "" {
		var match *library.Match
		if err := o.stage(StageDuplicate, ref, func() (err error) {
			match, err = o.library.FindDuplicate(ctx, text.Title, doc.Origin)
			return err
		}); err != nil {
			return err
		}
		if match != nil {
			out.Page = &model.StoredPageRef{PageID: match.PageID, URL: match.URL, Operation: model.OpSkipped}
			return nil
		}
	}

	var rec *model.MetadataRecord
	if err := o.stage(StageAnalyze, ref, func() (err error) {
		rec, err = o.analyzer.Analyze(ctx, text, o.maxChars)
		return err
	}); err != nil {
		return err
	}
	out.Title = rec.Title
	out.Partial = rec.Partial

	return o.stage(StageStore, ref, func() error {
		page, err := o.library.Upsert(ctx, rec, prov)
		if err != nil {
			return err
		}
		out.Page = page
		return nil
	})
}

// stage runs fn, converting a panic into an Internal error, and logs the
// transition.
func (o *Orchestrator) stage(name string, ref model.Reference, fn func() error) error {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = model.NewError(model.ErrInternal, fmt.Sprintf("panic in %s: %v", name, r), nil)
			}
		}()
		return fn()
	}()

	fields := []zap.Field{
		zap.String("stage", name),
		zap.String("reference", ref.Raw),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		o.log.Warn("stage failed", append(fields,
			zap.String("error_kind", string(model.KindOf(err))),
			zap.Error(err),
		)...)
		return err
	}
	o.log.Info("stage complete", fields...)
	return nil
}

func (o *Orchestrator) logOutcome(out model.BatchItemOutcome) {
	fields := []zap.Field{
		zap.String("reference", out.Reference.Raw),
		zap.String("status", string(out.Status)),
		zap.Duration("duration", out.Duration),
	}
	if out.Title != "" {
		fields = append(fields, zap.String("title", out.Title))
	}
	if out.Page != nil {
		fields = append(fields, zap.String("page_url", out.Page.URL), zap.String("operation", string(out.Page.Operation)))
	}
	if out.ErrorKind != "" {
		fields = append(fields, zap.String("error_kind", string(out.ErrorKind)), zap.String("error", out.Error))
	}
	if out.Partial {
		fields = append(fields, zap.Bool("partial", true))
	}
	o.log.Info("document finished", fields...)
}

// record writes the outcome even when ctx is already cancelled.
func (o *Orchestrator) record(ctx context.Context, out model.BatchItemOutcome) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordOutcome(context.WithoutCancel(ctx), o.runID, out); err != nil {
		o.log.Error("failed to record outcome", zap.String("run_id", o.runID), zap.Error(err))
	}
}
