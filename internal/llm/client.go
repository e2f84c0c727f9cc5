// Package llm turns a staged invoice PDF into a validated ExtractionResult through a
// document-understanding capability.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/invoice-processor/internal/common"
	"github.com/joseph-ayodele/invoice-processor/internal/entity"
)

// DefaultTimeout bounds a single capability call when none is configured.
const DefaultTimeout = 90 * time.Second

// Options tune an ExtractionClient.
type Options struct {
	Timeout  time.Duration
	Lenient  bool
	Observer Observer
}

// ExtractionClient implements FieldExtractor over a Capability.
type ExtractionClient struct {
	capability Capability
	catalog    Catalog
	prompt     string
	schema     *jsonschema.Schema
	opts       Options
	logger     *slog.Logger
}

// NewExtractionClient builds the prompt and compiles the reply schema for the catalog once.
func NewExtractionClient(capability Capability, catalog Catalog, opts Options, logger *slog.Logger) (*ExtractionClient, error) {
	if capability == nil {
		return nil, common.ConfigErrorf("extraction capability is required")
	}
	if catalog == nil {
		return nil, common.ConfigErrorf("field mapping catalog is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	schema, err := CompileSchema(BuildEnvelopeJSONSchema(catalog.Accounts(), catalog.Projects()))
	if err != nil {
		return nil, common.NewConfigError("compile reply schema", err)
	}
	return &ExtractionClient{
		capability: capability,
		catalog:    catalog,
		prompt:     BuildPrompt(catalog.Accounts(), catalog.Projects()),
		schema:     schema,
		opts:       opts,
		logger:     logger,
	}, nil
}

// ExtractFields makes exactly one capability call and returns a result whose account and
// project are catalog members, or an ExtractionError.
func (c *ExtractionClient) ExtractFields(ctx context.Context, doc entity.Document) (entity.ExtractionResult, error) {
	rid := uuid.New().String()
	start := time.Now()
	log := common.LoggerFromContext(ctx, c.logger).With("req_id", rid, "provider", c.capability.Name())

	log.Info("llm.extract.start",
		"document", doc.Filename,
		"size_bytes", doc.Size,
		"timeout_ms", c.opts.Timeout.Milliseconds(),
		"lenient", c.opts.Lenient,
	)

	callCtx, cancel := common.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	text, err := c.capability.Invoke(callCtx, doc, c.prompt)
	if err != nil {
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			status = "timeout"
			err = fmt.Errorf("no reply within %s: %w", c.opts.Timeout, err)
		}
		c.observe(status, start)
		log.Error("llm.extract.capability_failed",
			"status", status,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.ExtractionResult{}, common.NewExtractionError("capability call failed", err)
	}

	res, err := c.parse(log, text)
	if err != nil {
		c.observe("invalid", start)
		log.Error("llm.extract.invalid_reply",
			"error", err,
			"reply_bytes", len(text),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.ExtractionResult{}, common.NewExtractionError("invalid reply", err)
	}

	c.observe("ok", start)
	log.Info("llm.extract.ok",
		"invoice_number", res.Fields.InvoiceNumber,
		"vendor", res.Fields.VendorName,
		"account", res.Fields.Account,
		"project", res.Fields.Project,
		"markdown_len", len(res.Markdown),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (c *ExtractionClient) parse(log *slog.Logger, text string) (entity.ExtractionResult, error) {
	reply, err := ParseReply(StripCodeFences(text), c.opts.Lenient)
	if err != nil {
		return entity.ExtractionResult{}, err
	}
	if len(reply.Dropped) > 0 {
		log.Warn("llm.extract.lenient_dropped_keys", "dropped", reply.Dropped)
	}

	fields, _, err := entity.InvoiceFieldsFromMap(reply.Data)
	if err != nil {
		return entity.ExtractionResult{}, err
	}
	if err := fields.Validate(c.catalog); err != nil {
		return entity.ExtractionResult{}, err
	}
	if err := validateValue(c.schema, reply.envelopeValue()); err != nil {
		return entity.ExtractionResult{}, err
	}
	return entity.ExtractionResult{Markdown: reply.Markdown, Fields: fields}, nil
}

func (c *ExtractionClient) observe(status string, start time.Time) {
	if c.opts.Observer == nil {
		return
	}
	c.opts.Observer.ObserveExtraction(c.capability.Name(), status, time.Since(start).Seconds())
}
