// Package pipeline drives each mailbox message through extraction, projection and filing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-processor/constants"
	"github.com/joseph-ayodele/invoice-processor/internal/async"
	"github.com/joseph-ayodele/invoice-processor/internal/common"
	"github.com/joseph-ayodele/invoice-processor/internal/entity"
	"github.com/joseph-ayodele/invoice-processor/internal/export"
	"github.com/joseph-ayodele/invoice-processor/internal/ingest"
	"github.com/joseph-ayodele/invoice-processor/internal/llm"
	"github.com/joseph-ayodele/invoice-processor/internal/mailbox"
	"github.com/joseph-ayodele/invoice-processor/internal/metrics"
	"github.com/joseph-ayodele/invoice-processor/internal/upload"
)

// Deps are the collaborators an Orchestrator is built from.
type Deps struct {
	Source    mailbox.Source
	Extractor *ingest.Extractor
	Fields    llm.FieldExtractor
	Schemas   []export.Schema
	Writer    *export.Writer
	Archive   *Archive
	Uploader  upload.Uploader  // optional
	Metrics   *metrics.Recorder // optional
	Pool      *async.Pool       // optional, sequential when nil
}

// Orchestrator owns the per-message state machine.
type Orchestrator struct {
	deps   Deps
	locks  async.KeyedMutex
	logger *slog.Logger
}

func NewOrchestrator(deps Deps, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case deps.Source == nil:
		return nil, common.ConfigErrorf("pipeline: mailbox source is required")
	case deps.Extractor == nil:
		return nil, common.ConfigErrorf("pipeline: attachment extractor is required")
	case deps.Fields == nil:
		return nil, common.ConfigErrorf("pipeline: field extractor is required")
	case len(deps.Schemas) == 0:
		return nil, common.ConfigErrorf("pipeline: at least one output schema is required")
	case deps.Writer == nil:
		return nil, common.ConfigErrorf("pipeline: output writer is required")
	case deps.Archive == nil:
		return nil, common.ConfigErrorf("pipeline: archive is required")
	}
	if deps.Uploader == nil {
		deps.Uploader = upload.Nop{}
	}
	if deps.Pool == nil {
		deps.Pool = async.NewPool(async.WithLogger(logger))
	}
	return &Orchestrator{deps: deps, logger: logger}, nil
}

// Run fetches the unprocessed messages and processes each one. A fetch failure aborts the run
// before any message is touched; per-message failures are only reported in the Report.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = common.WithRunID(ctx, runID)
	log := common.LoggerFromContext(ctx, o.logger)

	msgs, err := o.deps.Source.FetchUnprocessed(ctx)
	if err != nil {
		log.Error("pipeline.fetch.failed", "error", err)
		if !errors.Is(err, common.ErrTransport) {
			err = common.NewTransportError("fetch unprocessed messages", err)
		}
		return Report{RunID: runID}, err
	}
	log.Info("pipeline.run.start", "messages", len(msgs), "workers", o.deps.Pool.Workers())

	outcomes := make([]entity.ProcessingOutcome, len(msgs))
	done := make([]bool, len(msgs))
	runErr := o.deps.Pool.Run(ctx, len(msgs), func(ctx context.Context, i int) {
		outcomes[i] = o.ProcessMessage(ctx, msgs[i])
		done[i] = true
	})

	report := Report{RunID: runID, Fetched: len(msgs)}
	for i, oc := range outcomes {
		if done[i] {
			report.add(oc)
		}
	}
	report.Elapsed = time.Since(start)
	report.Log(log)

	if runErr != nil {
		return report, fmt.Errorf("run interrupted: %w", runErr)
	}
	return report, nil
}

// ProcessMessage runs one message to a terminal state. It never returns an error: every
// failure is carried by the outcome.
func (o *Orchestrator) ProcessMessage(ctx context.Context, msg mailbox.Message) entity.ProcessingOutcome {
	start := time.Now()
	ctx = common.WithMessageID(ctx, msg.ID)
	log := common.LoggerFromContext(ctx, o.logger)

	oc := o.process(ctx, log, msg)
	oc.MessageID = msg.ID
	oc.Elapsed = time.Since(start)

	o.deps.Metrics.RecordMessage(string(oc.Kind), string(oc.State))
	attrs := []any{
		"kind", oc.Kind,
		"state", oc.State,
		"document", oc.Document,
		"elapsed_ms", oc.Elapsed.Milliseconds(),
	}
	switch oc.Kind {
	case constants.OutcomeFailed:
		log.Error("pipeline.message.failed", append(attrs, "reason", oc.Reason)...)
	case constants.OutcomeSkipped:
		log.Info("pipeline.message.skipped", append(attrs, "reason", oc.Reason)...)
	default:
		log.Info("pipeline.message.filed", append(attrs,
			"archived_to", oc.ArchivedTo,
			"schemas", oc.SchemasWritten,
		)...)
	}
	return oc
}

func (o *Orchestrator) process(ctx context.Context, log *slog.Logger, msg mailbox.Message) entity.ProcessingOutcome {
	att, err := o.deps.Extractor.Locate(ctx, msg.Raw)
	if err != nil {
		return entity.Failed(msg.ID, constants.StateStageFailed, err)
	}
	if att == nil {
		return entity.Skipped(msg.ID, constants.StateNoAttachment, "no pdf attachment")
	}

	name := ingest.StagedName(att)
	if name == "" {
		return entity.Failed(msg.ID, constants.StateStageFailed,
			fmt.Errorf("attachment filename %q is not usable", att.Filename))
	}
	unlock := o.locks.Lock(name)
	defer unlock()

	if oc, done := o.alreadyFiled(ctx, log, msg, name, ingest.HashBytes(att.Data)); done {
		return oc
	}

	doc, err := o.deps.Extractor.Stage(ctx, att)
	if err != nil {
		oc := entity.Failed(msg.ID, constants.StateStageFailed, err)
		oc.Document = name
		return oc
	}
	log.Debug("pipeline.message.state", "state", constants.StateAttachmentFound, "document", doc.Filename)

	result, err := o.deps.Fields.ExtractFields(ctx, *doc)
	if err != nil {
		oc := entity.Failed(msg.ID, constants.StateExtractionFailed, err)
		oc.Document = doc.Filename
		return oc
	}
	log.Debug("pipeline.message.state", "state", constants.StateExtracted, "document", doc.Filename)

	written, err := o.writeOutputs(ctx, log, *doc, result)
	if err != nil {
		oc := entity.Failed(msg.ID, constants.StateOutputFailed, err)
		oc.Document = doc.Filename
		return oc
	}
	log.Debug("pipeline.message.state", "state", constants.StateProjected, "document", doc.Filename)

	archived, err := o.deps.Archive.File(*doc)
	if err != nil {
		oc := entity.Failed(msg.ID, constants.StateArchiveFailed, common.NewIOError("archive "+doc.Filename, err))
		oc.Document = doc.Filename
		return oc
	}

	if err := o.deps.Source.MarkProcessed(ctx, msg); err != nil {
		log.Error("pipeline.message.filed_not_marked", "archived_to", archived, "error", err)
		oc := entity.Failed(msg.ID, constants.StateFiledNotMarked, fmt.Errorf("filed but not marked: %w", err))
		oc.Document = doc.Filename
		oc.ArchivedTo = archived
		oc.SchemasWritten = written
		return oc
	}

	oc := entity.Processed(msg.ID, archived, written)
	oc.Document = doc.Filename
	return oc
}

// alreadyFiled handles a message whose document the archive already holds: nothing is
// re-extracted and only the mailbox mark is retried.
func (o *Orchestrator) alreadyFiled(ctx context.Context, log *slog.Logger, msg mailbox.Message, name, sha string) (entity.ProcessingOutcome, bool) {
	archived, ok, err := o.deps.Archive.Holds(name, sha)
	if err != nil {
		log.Warn("pipeline.archive.lookup_failed", "document", name, "error", err)
		return entity.ProcessingOutcome{}, false
	}
	if !ok {
		return entity.ProcessingOutcome{}, false
	}

	if err := o.deps.Source.MarkProcessed(ctx, msg); err != nil {
		oc := entity.Failed(msg.ID, constants.StateFiledNotMarked, fmt.Errorf("filed but not marked: %w", err))
		oc.Document = name
		oc.ArchivedTo = archived
		return oc, true
	}
	oc := entity.Skipped(msg.ID, constants.StateAlreadyFiled, "archive already holds "+filepath.Base(archived))
	oc.Document = name
	oc.ArchivedTo = archived
	return oc, true
}

// writeOutputs writes the markdown transcript and one CSV per schema. Every output is attempted
// even after a failure; the joined error lists each one that failed.
func (o *Orchestrator) writeOutputs(ctx context.Context, log *slog.Logger, doc entity.Document, result entity.ExtractionResult) ([]string, error) {
	base := doc.BaseName()
	var errs []error
	written := make([]string, 0, len(o.deps.Schemas))

	mdPath, err := o.deps.Writer.WriteMarkdown(result.Markdown, base)
	if err == nil {
		err = o.deps.Uploader.Upload(ctx, mdPath, path.Join("markdown", filepath.Base(mdPath)))
	}
	o.recordOutput("markdown", err)
	if err != nil {
		errs = append(errs, fmt.Errorf("markdown: %w", err))
	}

	for _, schema := range o.deps.Schemas {
		rec := export.Project(result.Fields, schema)
		csvPath, err := o.deps.Writer.WriteRecord(rec, base)
		if err == nil {
			err = o.deps.Uploader.Upload(ctx, csvPath, path.Join("csv", filepath.Base(csvPath)))
		}
		o.recordOutput(schema.Name, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("schema %s: %w", schema.Name, err))
			continue
		}
		written = append(written, schema.Name)
	}

	if len(errs) > 0 {
		log.Error("pipeline.outputs.failed", "document", doc.Filename, "failed", len(errs), "written", written)
		return written, errors.Join(errs...)
	}
	return written, nil
}

func (o *Orchestrator) recordOutput(output string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.deps.Metrics.RecordOutput(output, status)
}
