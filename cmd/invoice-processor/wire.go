package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joseph-ayodele/invoice-processor/internal/async"
	"github.com/joseph-ayodele/invoice-processor/internal/catalog"
	"github.com/joseph-ayodele/invoice-processor/internal/common"
	"github.com/joseph-ayodele/invoice-processor/internal/export"
	"github.com/joseph-ayodele/invoice-processor/internal/ingest"
	"github.com/joseph-ayodele/invoice-processor/internal/llm"
	"github.com/joseph-ayodele/invoice-processor/internal/llm/gemini"
	"github.com/joseph-ayodele/invoice-processor/internal/llm/openai"
	"github.com/joseph-ayodele/invoice-processor/internal/mailbox"
	"github.com/joseph-ayodele/invoice-processor/internal/metrics"
	"github.com/joseph-ayodele/invoice-processor/internal/pipeline"
	"github.com/joseph-ayodele/invoice-processor/internal/upload"
)

func (a *app) capability() (llm.Capability, error) {
	c := a.cfg.LLM
	// The extraction client bounds each call; the transport itself carries no timeout.
	httpClient := &http.Client{}
	switch c.Provider {
	case "gemini":
		return gemini.NewClient(gemini.Config{
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			Temperature: c.Temperature,
		}, httpClient, a.logger), nil
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			Temperature: c.Temperature,
		}, httpClient, a.logger), nil
	}
	return nil, common.ConfigErrorf("unknown LLM_PROVIDER %q", c.Provider)
}

func (a *app) extractionClient(rec *metrics.Recorder) (*llm.ExtractionClient, error) {
	cat, err := catalog.Load(a.cfg.Paths.FieldMappingsFile)
	if err != nil {
		return nil, err
	}
	capability, err := a.capability()
	if err != nil {
		return nil, err
	}
	opts := llm.Options{Timeout: a.cfg.LLM.Timeout, Lenient: a.cfg.LLM.Lenient}
	if rec != nil {
		opts.Observer = rec
	}
	client, err := llm.NewExtractionClient(capability, cat, opts, a.logger)
	if err != nil {
		return nil, err
	}
	a.logger.Info("llm.client.ready",
		"provider", capability.Name(),
		"model", a.cfg.LLM.Model,
		"accounts", len(cat.Accounts()),
		"projects", len(cat.Projects()),
	)
	return client, nil
}

func (a *app) source() (mailbox.Source, error) {
	m := a.cfg.Mail
	switch m.Source {
	case "imap":
		return mailbox.NewIMAPSource(mailbox.IMAPOptions{
			Host:               m.IMAPHost,
			Port:               m.IMAPPort,
			Username:           m.IMAPUser,
			Password:           m.IMAPPass,
			UseTLS:             m.UseTLS,
			InsecureSkipVerify: m.InsecureSkipVerify,
			Inbox:              m.InboxFolder,
			ProcessedFolder:    m.ProcessedFolder,
		}, a.logger)
	case "mbox":
		return mailbox.NewMboxSource(m.MboxPath, m.StateDir, a.logger)
	}
	return nil, common.ConfigErrorf("unknown MAIL_SOURCE %q", m.Source)
}

func (a *app) uploader(ctx context.Context) (upload.Uploader, error) {
	u := a.cfg.Upload
	if !u.Enabled() {
		return upload.Nop{}, nil
	}
	return upload.NewS3Uploader(ctx, upload.S3Options{
		Bucket:          u.Bucket,
		Prefix:          u.Prefix,
		Region:          u.Region,
		Endpoint:        u.Endpoint,
		AccessKeyID:     u.AccessKeyID,
		SecretAccessKey: u.SecretAccessKey,
	}, a.logger)
}

// orchestrator wires every collaborator of a run. The returned source must be closed by the caller.
func (a *app) orchestrator(ctx context.Context, rec *metrics.Recorder) (*pipeline.Orchestrator, mailbox.Source, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, nil, err
	}
	schemas, err := export.LoadSchemas(a.cfg.TemplatePaths())
	if err != nil {
		return nil, nil, err
	}
	fields, err := a.extractionClient(rec)
	if err != nil {
		return nil, nil, err
	}
	up, err := a.uploader(ctx)
	if err != nil {
		return nil, nil, err
	}
	src, err := a.source()
	if err != nil {
		return nil, nil, err
	}

	p := a.cfg.Paths
	orch, err := pipeline.NewOrchestrator(pipeline.Deps{
		Source:    src,
		Extractor: ingest.NewExtractor(p.InvoiceDir, a.logger),
		Fields:    fields,
		Schemas:   schemas,
		Writer:    export.NewWriter(p.CSVDir, p.MarkdownDir, a.logger),
		Archive:   pipeline.NewArchive(p.ProcessedPDFDir),
		Uploader:  up,
		Metrics:   rec,
		Pool:      async.NewPool(async.WithWorkers(a.cfg.Run.Workers), async.WithLogger(a.logger)),
	}, a.logger)
	if err != nil {
		_ = src.Close()
		return nil, nil, fmt.Errorf("build pipeline: %w", err)
	}
	return orch, src, nil
}
