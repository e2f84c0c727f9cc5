package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj<<>>endobj\ntrailer<<>>\n%%EOF\n")

func buildMessage(parts ...string) []byte {
	var b strings.Builder
	b.WriteString("From: billing@acme.example\r\n")
	b.WriteString("To: ap@example.com\r\n")
	b.WriteString("Subject: Invoice 12345\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=\"BOUNDARY\"\r\n\r\n")
	for _, p := range parts {
		b.WriteString("--BOUNDARY\r\n")
		b.WriteString(p)
		b.WriteString("\r\n")
	}
	b.WriteString("--BOUNDARY--\r\n")
	return []byte(b.String())
}

func textPart(body string) string {
	return "Content-Type: text/plain; charset=utf-8\r\n\r\n" + body + "\r\n"
}

func pdfPart(headers string) string {
	return "Content-Type: application/pdf" + headers + "\r\n" +
		"Content-Transfer-Encoding: base64\r\n\r\n" +
		base64.StdEncoding.EncodeToString(pdfBytes) + "\r\n"
}

func TestLocate(t *testing.T) {
	tests := []struct {
		name     string
		raw      []byte
		wantName string
		wantNil  bool
	}{
		{
			name: "attachment with disposition filename",
			raw: buildMessage(
				textPart("Please find the invoice attached."),
				pdfPart("\r\nContent-Disposition: attachment; filename=\"ACME-2025-07.pdf\""),
			),
			wantName: "ACME-2025-07.pdf",
		},
		{
			name:     "content type name fallback",
			raw:      buildMessage(pdfPart("; name=\"inv-42.pdf\"")),
			wantName: "inv-42.pdf",
		},
		{
			name: "first named pdf wins",
			raw: buildMessage(
				pdfPart(""),
				pdfPart("\r\nContent-Disposition: attachment; filename=\"second.pdf\""),
				pdfPart("\r\nContent-Disposition: attachment; filename=\"third.pdf\""),
			),
			wantName: "second.pdf",
		},
		{
			name: "encoded filename",
			raw: buildMessage(
				pdfPart("\r\nContent-Disposition: attachment; filename=\"=?UTF-8?B?" +
					base64.StdEncoding.EncodeToString([]byte("Rechnung-Müller.pdf")) + "?=\""),
			),
			wantName: "Rechnung-Müller.pdf",
		},
		{
			name:    "no attachment",
			raw:     buildMessage(textPart("Lunch on Friday?")),
			wantNil: true,
		},
		{
			name: "non pdf attachment only",
			raw: buildMessage(
				"Content-Type: image/png\r\nContent-Disposition: attachment; filename=\"scan.png\"\r\n\r\nxyz\r\n",
			),
			wantNil: true,
		},
	}

	ex := NewExtractor(t.TempDir(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			att, err := ex.Locate(context.Background(), tt.raw)
			if err != nil {
				t.Fatalf("Locate() error = %v", err)
			}
			if tt.wantNil {
				if att != nil {
					t.Fatalf("Locate() = %+v, want nil", att)
				}
				return
			}
			if att == nil {
				t.Fatal("Locate() = nil, want attachment")
			}
			if att.Filename != tt.wantName {
				t.Errorf("Filename = %q, want %q", att.Filename, tt.wantName)
			}
			if !bytes.Equal(att.Data, pdfBytes) {
				t.Errorf("Data not decoded: %q", att.Data)
			}
		})
	}
}

func TestExtractStagesDocument(t *testing.T) {
	dir := t.TempDir()
	ex := NewExtractor(dir, nil)

	raw := buildMessage(pdfPart("\r\nContent-Disposition: attachment; filename=\"ACME-2025-07.pdf\""))
	doc, err := ex.Extract(context.Background(), raw)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if doc == nil {
		t.Fatal("Extract() returned nil document")
	}
	if doc.Path != filepath.Join(dir, "ACME-2025-07.pdf") {
		t.Errorf("Path = %q", doc.Path)
	}
	if doc.BaseName() != "ACME-2025-07" {
		t.Errorf("BaseName() = %q", doc.BaseName())
	}
	if doc.SHA256 != HashBytes(pdfBytes) || doc.Size != len(pdfBytes) {
		t.Errorf("unexpected hash/size: %s %d", doc.SHA256, doc.Size)
	}
	got, err := os.ReadFile(doc.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, pdfBytes) {
		t.Error("staged bytes differ from attachment")
	}
	if h, err := HashFile(doc.Path); err != nil || h != doc.SHA256 {
		t.Errorf("HashFile() = %s, %v", h, err)
	}
}

func TestExtractNoAttachmentWritesNothing(t *testing.T) {
	dir := t.TempDir()
	ex := NewExtractor(dir, nil)

	doc, err := ex.Extract(context.Background(), buildMessage(textPart("hello")))
	if err != nil || doc != nil {
		t.Fatalf("Extract() = %v, %v; want nil, nil", doc, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("staging dir has %d entries, want 0", len(entries))
	}
}

func TestStageConfinesToStagingDir(t *testing.T) {
	dir := t.TempDir()
	ex := NewExtractor(dir, nil)

	doc, err := ex.Stage(context.Background(), &Attachment{Filename: "../../etc/evil.pdf", Data: pdfBytes})
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if filepath.Dir(doc.Path) != dir || doc.Filename != "evil.pdf" {
		t.Errorf("staged outside staging dir: %q", doc.Path)
	}
}

func TestStageOverwritesSameName(t *testing.T) {
	dir := t.TempDir()
	ex := NewExtractor(dir, nil)
	ctx := context.Background()

	if _, err := ex.Stage(ctx, &Attachment{Filename: "inv.pdf", Data: []byte("old")}); err != nil {
		t.Fatal(err)
	}
	doc, err := ex.Stage(ctx, &Attachment{Filename: "inv.pdf", Data: pdfBytes})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(doc.Path)
	if !bytes.Equal(got, pdfBytes) {
		t.Error("second stage did not overwrite the first")
	}
}

func TestSafeFilename(t *testing.T) {
	tests := map[string]string{
		"invoice.pdf":         "invoice.pdf",
		"  spaced.pdf ":       "spaced.pdf",
		"a/b/c.pdf":           "c.pdf",
		`C:\Users\x\bill.pdf`: "bill.pdf",
		"..":                  "",
		"":                    "",
	}
	for in, want := range tests {
		if got := SafeFilename(in); got != want {
			t.Errorf("SafeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStagedName(t *testing.T) {
	tests := map[string]string{
		"ACME.pdf":       "ACME.pdf",
		"scan.PDF":       "scan.PDF",
		"invoice":        "invoice.pdf",
		"invoice.2025":   "invoice.2025.pdf",
		`C:\tmp\inv.pdf`: "inv.pdf",
		"..":             "",
	}
	for in, want := range tests {
		if got := StagedName(&Attachment{Filename: in}); got != want {
			t.Errorf("StagedName(%q) = %q, want %q", in, got, want)
		}
	}
}
