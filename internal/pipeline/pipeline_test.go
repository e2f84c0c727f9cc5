package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/joseph-ayodele/invoice-processor/constants"
	"github.com/joseph-ayodele/invoice-processor/internal/async"
	"github.com/joseph-ayodele/invoice-processor/internal/catalog"
	"github.com/joseph-ayodele/invoice-processor/internal/common"
	"github.com/joseph-ayodele/invoice-processor/internal/entity"
	"github.com/joseph-ayodele/invoice-processor/internal/export"
	"github.com/joseph-ayodele/invoice-processor/internal/ingest"
	"github.com/joseph-ayodele/invoice-processor/internal/llm"
	"github.com/joseph-ayodele/invoice-processor/internal/mailbox"
	"github.com/joseph-ayodele/invoice-processor/internal/metrics"
)

type fakeSource struct {
	mu        sync.Mutex
	msgs      []mailbox.Message
	marked    map[string]bool
	markFails int
	fetchErr  error
}

func (s *fakeSource) FetchUnprocessed(context.Context) ([]mailbox.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []mailbox.Message
	for _, m := range s.msgs {
		if !s.marked[m.Key] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeSource) MarkProcessed(_ context.Context, msg mailbox.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markFails > 0 {
		s.markFails--
		return errors.New("imap: connection reset")
	}
	if s.marked == nil {
		s.marked = make(map[string]bool)
	}
	s.marked[msg.Key] = true
	return nil
}

func (s *fakeSource) Close() error { return nil }

func (s *fakeSource) markedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.marked)
}

// replyCapability answers with the reply registered for the document name.
type replyCapability struct {
	replies map[string]string
	calls   atomic.Int32
}

func (c *replyCapability) Name() string { return "fake" }

func (c *replyCapability) Invoke(_ context.Context, doc entity.Document, _ string) (string, error) {
	c.calls.Add(1)
	if r, ok := c.replies[doc.Filename]; ok {
		return r, nil
	}
	return reply(strings.TrimSuffix(doc.Filename, ".pdf"), "Account A", "Project X"), nil
}

func reply(number, account, project string) string {
	return fmt.Sprintf("```json\n{\"markdown\": \"# Invoice %s\", \"data\": {"+
		"\"invoice_number\": %q, \"invoice_date\": \"2025-07-01\", \"total_amount\": 99.99, "+
		"\"vendor_name\": \"ACME Corp\", \"account\": %q, \"project\": %q}}\n```", number, number, account, project)
}

func invoiceMessage(key, filename string, pdf []byte) mailbox.Message {
	var b strings.Builder
	b.WriteString("From: billing@acme.example\r\n")
	b.WriteString("Subject: Invoice\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=\"B\"\r\n\r\n")
	b.WriteString("--B\r\nContent-Type: text/plain\r\n\r\nPlease find the invoice attached.\r\n")
	if filename != "" {
		b.WriteString("--B\r\nContent-Type: application/pdf\r\n")
		b.WriteString("Content-Disposition: attachment; filename=\"" + filename + "\"\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		b.WriteString(base64.StdEncoding.EncodeToString(pdf) + "\r\n")
	}
	b.WriteString("--B--\r\n")
	return mailbox.Message{ID: "<" + key + "@acme.example>", Key: key, Raw: []byte(b.String())}
}

var acmePDF = []byte("%PDF-1.4\nACME invoice 12345\n%%EOF\n")

type harness struct {
	root       string
	source     *fakeSource
	capability *replyCapability
	metrics    *metrics.Recorder
	orch       *Orchestrator
}

func (h *harness) dir(name string) string { return filepath.Join(h.root, name) }

func newHarness(t *testing.T, workers int, msgs ...mailbox.Message) *harness {
	t.Helper()
	h := &harness{
		root:       t.TempDir(),
		source:     &fakeSource{msgs: msgs},
		capability: &replyCapability{replies: map[string]string{}},
		metrics:    metrics.NewRecorder(),
	}
	h.build(t, workers)
	return h
}

func (h *harness) build(t *testing.T, workers int) {
	t.Helper()
	cat, err := catalog.New([]string{"Account A", "Account B"}, []string{"Project X", "Project Y"})
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	fields, err := llm.NewExtractionClient(h.capability, cat, llm.Options{Lenient: true, Observer: h.metrics}, nil)
	if err != nil {
		t.Fatalf("NewExtractionClient() error = %v", err)
	}
	orch, err := NewOrchestrator(Deps{
		Source:    h.source,
		Extractor: ingest.NewExtractor(h.dir("invoices"), nil),
		Fields:    fields,
		Schemas: []export.Schema{
			{Name: "system1", Columns: []string{"Invoice Number", "Vendor Name", "Total Amount", "Account"}},
			{Name: "system2", Columns: []string{"invoice_date", "project", "memo"}},
		},
		Writer:  export.NewWriter(h.dir("csv_uploads"), h.dir("processed_markdown"), nil),
		Archive: NewArchive(h.dir("processed_pdfs")),
		Metrics: h.metrics,
		Pool:    async.NewPool(async.WithWorkers(workers)),
	}, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	h.orch = orch
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestRunFilesACMEInvoice(t *testing.T) {
	h := newHarness(t, 1, invoiceMessage("1", "ACME.pdf", acmePDF))
	h.capability.replies["ACME.pdf"] = reply("12345", "Account B", "Project Y")

	report, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Processed != 1 || report.Failed != 0 || report.Skipped != 0 {
		t.Fatalf("report = %+v", report)
	}
	oc := report.Outcomes[0]
	if oc.State != constants.StateFiled {
		t.Fatalf("state = %s, reason = %s", oc.State, oc.Reason)
	}
	if got, want := oc.SchemasWritten, []string{"system1", "system2"}; strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("schemas = %v, want %v", got, want)
	}

	if got, want := readFile(t, h.dir("csv_uploads/ACME_system1.csv")),
		"Invoice Number,Vendor Name,Total Amount,Account\n12345,ACME Corp,99.99,Account B\n"; got != want {
		t.Errorf("system1 csv = %q, want %q", got, want)
	}
	if got, want := readFile(t, h.dir("csv_uploads/ACME_system2.csv")),
		"invoice_date,project,memo\n2025-07-01,Project Y,\n"; got != want {
		t.Errorf("system2 csv = %q, want %q", got, want)
	}
	if got := readFile(t, h.dir("processed_markdown/ACME.md")); got != "# Invoice 12345" {
		t.Errorf("markdown = %q", got)
	}
	if got := readFile(t, h.dir("processed_pdfs/ACME.pdf")); got != string(acmePDF) {
		t.Errorf("archived document content differs")
	}
	if oc.ArchivedTo != h.dir("processed_pdfs/ACME.pdf") {
		t.Errorf("archived_to = %s", oc.ArchivedTo)
	}
	if exists(h.dir("invoices/ACME.pdf")) {
		t.Error("staged document still present after filing")
	}
	if h.source.markedCount() != 1 {
		t.Error("message not marked processed")
	}

	if n := testutil.CollectAndCount(h.metrics.Registry(), "invoice_messages_total"); n != 1 {
		t.Errorf("invoice_messages_total series = %d, want 1", n)
	}
	if n := testutil.CollectAndCount(h.metrics.Registry(), "invoice_outputs_total"); n != 3 {
		t.Errorf("invoice_outputs_total series = %d, want 3", n)
	}
}

func TestExtractionFailureLeavesMessageUntouched(t *testing.T) {
	h := newHarness(t, 1, invoiceMessage("1", "ACME.pdf", acmePDF))
	h.capability.replies["ACME.pdf"] = reply("12345", "Account Z", "Project X")

	report, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	oc := report.Outcomes[0]
	if oc.Kind != constants.OutcomeFailed || oc.State != constants.StateExtractionFailed {
		t.Fatalf("outcome = %s/%s", oc.Kind, oc.State)
	}
	if !errors.Is(oc.Err, common.ErrExtraction) {
		t.Errorf("err = %v, want extraction error", oc.Err)
	}
	if entries, _ := os.ReadDir(h.dir("csv_uploads")); len(entries) != 0 {
		t.Errorf("csv outputs written: %d", len(entries))
	}
	if !exists(h.dir("invoices/ACME.pdf")) {
		t.Error("staged document should be retained")
	}
	if exists(h.dir("processed_pdfs/ACME.pdf")) {
		t.Error("document archived after extraction failure")
	}
	if h.source.markedCount() != 0 {
		t.Error("message marked after extraction failure")
	}
}

func TestMessageWithoutAttachmentIsSkipped(t *testing.T) {
	h := newHarness(t, 1, invoiceMessage("1", "", nil))

	report, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	oc := report.Outcomes[0]
	if oc.Kind != constants.OutcomeSkipped || oc.State != constants.StateNoAttachment {
		t.Fatalf("outcome = %s/%s", oc.Kind, oc.State)
	}
	if h.capability.calls.Load() != 0 {
		t.Error("capability invoked for a message without attachment")
	}
	if h.source.markedCount() != 0 {
		t.Error("message without attachment was marked")
	}
}

func TestUnparseableMessageFails(t *testing.T) {
	msg := mailbox.Message{ID: "bad", Key: "1", Raw: []byte("this is not a header line\r\n\r\nbody")}
	h := newHarness(t, 1, msg)

	oc := h.orch.ProcessMessage(context.Background(), msg)
	if oc.Kind != constants.OutcomeFailed || oc.State != constants.StateStageFailed {
		t.Fatalf("outcome = %s/%s (%s)", oc.Kind, oc.State, oc.Reason)
	}
}

func TestOutputFailureBlocksFiling(t *testing.T) {
	h := newHarness(t, 1, invoiceMessage("1", "ACME.pdf", acmePDF))
	// A regular file where the CSV directory should be makes every CSV write fail.
	if err := os.WriteFile(h.dir("csv_uploads"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	oc := report.Outcomes[0]
	if oc.State != constants.StateOutputFailed {
		t.Fatalf("state = %s", oc.State)
	}
	if !errors.Is(oc.Err, common.ErrIO) {
		t.Errorf("err = %v, want io error", oc.Err)
	}
	if !strings.Contains(oc.Reason, "system1") || !strings.Contains(oc.Reason, "system2") {
		t.Errorf("reason should name every failed schema: %s", oc.Reason)
	}
	if !exists(h.dir("processed_markdown/ACME.md")) {
		t.Error("markdown output should still be attempted")
	}
	if exists(h.dir("processed_pdfs/ACME.pdf")) {
		t.Error("document archived although an output failed")
	}
	if h.source.markedCount() != 0 {
		t.Error("message marked although an output failed")
	}
}

func TestRerunAfterMarkFailureDoesNotRefile(t *testing.T) {
	h := newHarness(t, 1, invoiceMessage("1", "ACME.pdf", acmePDF))
	h.source.markFails = 1

	first, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if oc := first.Outcomes[0]; oc.State != constants.StateFiledNotMarked {
		t.Fatalf("first state = %s", oc.State)
	}

	second, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	oc := second.Outcomes[0]
	if oc.Kind != constants.OutcomeSkipped || oc.State != constants.StateAlreadyFiled {
		t.Fatalf("second outcome = %s/%s", oc.Kind, oc.State)
	}
	if got := h.capability.calls.Load(); got != 1 {
		t.Errorf("capability calls = %d, want 1", got)
	}
	if h.source.markedCount() != 1 {
		t.Error("message should be marked by the second run")
	}
	entries, _ := os.ReadDir(h.dir("processed_pdfs"))
	if len(entries) != 1 {
		t.Errorf("archive holds %d files, want 1", len(entries))
	}

	third, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("third Run() error = %v", err)
	}
	if third.Fetched != 0 {
		t.Errorf("third run fetched %d messages", third.Fetched)
	}
}

func TestArchiveCollisionKeepsExistingDocument(t *testing.T) {
	h := newHarness(t, 1, invoiceMessage("1", "ACME.pdf", acmePDF))
	if err := os.MkdirAll(h.dir("processed_pdfs"), 0o755); err != nil {
		t.Fatal(err)
	}
	older := []byte("%PDF-1.4\nan older ACME invoice\n%%EOF\n")
	if err := os.WriteFile(h.dir("processed_pdfs/ACME.pdf"), older, 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	oc := report.Outcomes[0]
	if oc.State != constants.StateFiled {
		t.Fatalf("state = %s (%s)", oc.State, oc.Reason)
	}
	want := h.dir("processed_pdfs/ACME-" + ingest.HashBytes(acmePDF)[:8] + ".pdf")
	if oc.ArchivedTo != want {
		t.Errorf("archived_to = %s, want %s", oc.ArchivedTo, want)
	}
	if got := readFile(t, h.dir("processed_pdfs/ACME.pdf")); got != string(older) {
		t.Error("existing archived document was overwritten")
	}
}

func TestRunWithWorkersProcessesEveryMessage(t *testing.T) {
	var msgs []mailbox.Message
	for i := range 6 {
		name := fmt.Sprintf("INV-%d.pdf", i)
		msgs = append(msgs, invoiceMessage(fmt.Sprint(i), name, []byte("%PDF-1.4\n"+name+"\n%%EOF\n")))
	}
	h := newHarness(t, 3, msgs...)

	report, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Processed != 6 {
		t.Fatalf("processed = %d, want 6: %+v", report.Processed, report.ByState)
	}
	if h.source.markedCount() != 6 {
		t.Errorf("marked = %d, want 6", h.source.markedCount())
	}
	for i := range 6 {
		if !exists(h.dir(fmt.Sprintf("csv_uploads/INV-%d_system1.csv", i))) {
			t.Errorf("missing csv for INV-%d", i)
		}
	}
}

func TestFetchFailureAbortsRun(t *testing.T) {
	h := newHarness(t, 1)
	h.source.fetchErr = common.NewTransportError("imap login", errors.New("connection refused"))

	report, err := h.orch.Run(context.Background())
	if !errors.Is(err, common.ErrTransport) {
		t.Fatalf("Run() error = %v, want transport error", err)
	}
	if report.Fetched != 0 || len(report.Outcomes) != 0 {
		t.Errorf("report = %+v", report)
	}
	if h.capability.calls.Load() != 0 {
		t.Error("capability invoked after fetch failure")
	}
}

func TestNewOrchestratorRequiresDeps(t *testing.T) {
	_, err := NewOrchestrator(Deps{}, nil)
	if !errors.Is(err, common.ErrConfig) {
		t.Fatalf("err = %v, want config error", err)
	}
}
