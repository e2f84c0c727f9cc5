package common

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Mail   MailConfig
	LLM    LLMConfig
	Paths  PathsConfig
	Upload UploadConfig
	Run    RunConfig
}

// MailConfig holds mailbox-related configuration
type MailConfig struct {
	Source             string // "imap" | "mbox"
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool
	InboxFolder        string
	ProcessedFolder    string
	MboxPath           string
	StateDir           string
}

// LLMConfig holds extraction capability configuration
type LLMConfig struct {
	Provider    string // "gemini" | "openai"
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
	Lenient     bool
}

// PathsConfig holds the filesystem layout
type PathsConfig struct {
	InvoiceDir        string
	ProcessedPDFDir   string
	MarkdownDir       string
	CSVDir            string
	TemplateDir       string
	Templates         []string
	FieldMappingsFile string
}

// UploadConfig holds the optional S3 mirror of written outputs
type UploadConfig struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether outputs should be mirrored to S3.
func (u UploadConfig) Enabled() bool {
	return strings.TrimSpace(u.Bucket) != ""
}

// RunConfig holds per-run knobs
type RunConfig struct {
	Workers     int
	LogLevel    string
	LogFormat   string
	MetricsFile string
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment without
// overriding variables that are already set. A missing default file is not an error.
func LoadEnvFile(path string, required bool) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return NewConfigError("load env file "+path, err)
	}
	return nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	provider := strings.ToLower(getEnv("LLM_PROVIDER", "gemini"))
	return &Config{
		Mail: MailConfig{
			Source:             strings.ToLower(getEnv("MAIL_SOURCE", "imap")),
			IMAPHost:           getEnv("IMAP_SERVER", ""),
			IMAPPort:           getEnvAsInt("IMAP_PORT", 993),
			IMAPUser:           getEnv("EMAIL_ADDRESS", ""),
			IMAPPass:           getEnv("EMAIL_PASSWORD", ""),
			UseTLS:             getEnvAsBool("IMAP_USE_TLS", true),
			InsecureSkipVerify: getEnvAsBool("IMAP_INSECURE_SKIP_VERIFY", false),
			InboxFolder:        getEnv("INBOX_FOLDER", "INBOX"),
			ProcessedFolder:    getEnv("PROCESSED_FOLDER", "Processed"),
			MboxPath:           getEnv("MBOX_PATH", ""),
			StateDir:           getEnv("STATE_DIR", ".state"),
		},
		LLM: LLMConfig{
			Provider:    provider,
			Model:       getEnv("LLM_MODEL", defaultModel(provider)),
			APIKey:      getEnv("LLM_API_KEY", getEnv(apiKeyEnv(provider), "")),
			BaseURL:     getEnv("LLM_BASE_URL", ""),
			Temperature: getEnvAsFloat32("LLM_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("LLM_TIMEOUT", 90*time.Second),
			Lenient:     getEnvAsBool("LLM_LENIENT", true),
		},
		Paths: PathsConfig{
			InvoiceDir:        getEnv("INVOICE_DIR", "invoices"),
			ProcessedPDFDir:   getEnv("PROCESSED_PDF_DIR", "processed_pdfs"),
			MarkdownDir:       getEnv("PROCESSED_MARKDOWN_DIR", "processed_markdown"),
			CSVDir:            getEnv("CSV_UPLOADS_DIR", "csv_uploads"),
			TemplateDir:       getEnv("TEMPLATE_DIR", "templates"),
			Templates:         getEnvAsList("TEMPLATES", []string{"system1_template.csv", "system2_template.csv"}),
			FieldMappingsFile: getEnv("FIELD_MAPPINGS_FILE", "field_mappings.json"),
		},
		Upload: UploadConfig{
			Bucket:          getEnv("S3_BUCKET", ""),
			Prefix:          getEnv("S3_PREFIX", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		},
		Run: RunConfig{
			Workers:     getEnvAsInt("WORKERS", 1),
			LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
			LogFormat:   strings.ToLower(getEnv("LOG_FORMAT", "json")),
			MetricsFile: getEnv("METRICS_FILE", ""),
		},
	}
}

// TemplatePaths resolves the configured template names against the template directory.
func (c *Config) TemplatePaths() []string {
	out := make([]string, 0, len(c.Paths.Templates))
	for _, t := range c.Paths.Templates {
		if filepath.IsAbs(t) {
			out = append(out, t)
			continue
		}
		out = append(out, filepath.Join(c.Paths.TemplateDir, t))
	}
	return out
}

func defaultModel(provider string) string {
	if provider == "openai" {
		return "gpt-4o-mini"
	}
	return "gemini-1.5-flash"
}

func apiKeyEnv(provider string) string {
	if provider == "openai" {
		return "OPENAI_API_KEY"
	}
	return "GEMINI_API_KEY"
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("MAIL_SOURCE", c.Mail.Source, OneOf("imap", "mbox"))
	switch c.Mail.Source {
	case "imap":
		v.Field("IMAP_SERVER", c.Mail.IMAPHost, Required)
		v.Field("IMAP_PORT", c.Mail.IMAPPort, Port)
		v.Field("EMAIL_ADDRESS", c.Mail.IMAPUser, Required)
		v.Field("EMAIL_PASSWORD", c.Mail.IMAPPass, Required)
		v.Field("PROCESSED_FOLDER", c.Mail.ProcessedFolder, Required)
	case "mbox":
		v.Field("MBOX_PATH", c.Mail.MboxPath, Required)
		v.Field("STATE_DIR", c.Mail.StateDir, Required)
	}
	c.validateExtraction(v)
	v.Field("INVOICE_DIR", c.Paths.InvoiceDir, Required)
	v.Field("PROCESSED_PDF_DIR", c.Paths.ProcessedPDFDir, Required)
	v.Field("PROCESSED_MARKDOWN_DIR", c.Paths.MarkdownDir, Required)
	v.Field("CSV_UPLOADS_DIR", c.Paths.CSVDir, Required)
	v.Field("TEMPLATES", c.Paths.Templates, Required)
	v.Field("FIELD_MAPPINGS_FILE", c.Paths.FieldMappingsFile, Required)
	v.Field("WORKERS", c.Run.Workers, Positive)
	v.Field("LOG_LEVEL", c.Run.LogLevel, OneOf("debug", "info", "warn", "error"))
	v.Field("LOG_FORMAT", c.Run.LogFormat, OneOf("json", "text"))
	return ValidateAndReturnError(v)
}

// ValidateExtraction validates only what a standalone extraction needs.
func (c *Config) ValidateExtraction() error {
	v := NewValidator()
	c.validateExtraction(v)
	v.Field("FIELD_MAPPINGS_FILE", c.Paths.FieldMappingsFile, Required)
	return ValidateAndReturnError(v)
}

func (c *Config) validateExtraction(v *Validator) {
	v.Field("LLM_PROVIDER", c.LLM.Provider, OneOf("gemini", "openai"))
	v.Field("LLM_API_KEY", c.LLM.APIKey, Required)
	v.Field("LLM_MODEL", c.LLM.Model, Required)
	v.Field("LLM_TIMEOUT", c.LLM.Timeout, Positive)
}
