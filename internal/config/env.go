package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// TableConfig locates the reference table and describes how it is imported
// from a spreadsheet.
type TableConfig struct {
	Path        string
	Sheet       string // empty means first sheet
	KeyColumn   string
	RouteColumn string
	HeaderRows  int
}

// ExtractConfig controls page text extraction.
type ExtractConfig struct {
	Backend     string // "fitz"|"pure"
	PreferOCR   bool
	MinChars    int
	PageTimeout time.Duration
	OCREnabled  bool
	OCRDPI      int
	OCRLang     string
	KeepText    bool
}

// OutputConfig controls where partition files go.
type OutputConfig struct {
	Dir         string
	Concurrency int
	S3Bucket    string
	S3Prefix    string
}

// AWSConfig carries optional explicit AWS settings. Empty values fall back
// to the default credential chain.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// QueueConfig defines queue connectivity and names.
type QueueConfig struct {
	RedisURL     string
	Stream       string
	Group        string
	PollInterval time.Duration
	// StatusTTL expires job status and page records after the last write.
	StatusTTL time.Duration
}

// WorkerConfig defines worker behavior and limits.
type WorkerConfig struct {
	Concurrency int
	JobTimeout  time.Duration
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Port        string
	UploadDir   string
	MaxUploadMB int
	// AllowExternalRefs lets POST /jobs name local paths outside UploadDir
	// and http(s):// or file:// documents.
	AllowExternalRefs bool
}

// ConverterConfig configures spreadsheet conversion through LibreOffice.
type ConverterConfig struct {
	Binary  string
	Timeout time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Logging   LoggingConfig
	Axiom     AxiomConfig
	Table     TableConfig
	Extract   ExtractConfig
	Output    OutputConfig
	AWS       AWSConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Server    ServerConfig
	Converter ConverterConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/routesort.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_routesort",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	// Columns C and J of the dispatch spreadsheet.
	cfg.Table = TableConfig{
		Path:        getEnv("TABLE_PATH", "data/driver_data.json"),
		Sheet:       getEnv("TABLE_SHEET", ""),
		KeyColumn:   strings.ToUpper(getEnv("TABLE_KEY_COLUMN", "C")),
		RouteColumn: strings.ToUpper(getEnv("TABLE_ROUTE_COLUMN", "J")),
		HeaderRows:  parseInt(getEnv("TABLE_HEADER_ROWS", "1"), 1),
	}

	cfg.Extract = ExtractConfig{
		Backend:     strings.ToLower(getEnv("EXTRACT_BACKEND", "fitz")),
		PreferOCR:   parseBool(getEnv("EXTRACT_PREFER_OCR", "false")),
		MinChars:    parseInt(getEnv("EXTRACT_MIN_CHARS", "1"), 1),
		PageTimeout: parseDuration(getEnv("EXTRACT_PAGE_TIMEOUT", "60s"), 60*time.Second),
		OCREnabled:  parseBool(getEnv("OCR_ENABLED", "true")),
		OCRDPI:      parseInt(getEnv("OCR_DPI", "300"), 300),
		OCRLang:     getEnv("OCR_LANG", "eng"),
		KeepText:    parseBool(getEnv("KEEP_PAGE_TEXT", "false")),
	}

	cfg.Output = OutputConfig{
		Dir:         getEnv("OUTPUT_DIR", "output"),
		Concurrency: parseInt(getEnv("OUTPUT_CONCURRENCY", "4"), 4),
		S3Bucket:    getEnv("OUTPUT_S3_BUCKET", ""),
		S3Prefix:    strings.Trim(getEnv("OUTPUT_S3_PREFIX", "routesort"), "/"),
	}

	cfg.AWS = AWSConfig{
		Region:          getEnv("AWS_REGION", ""),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		Endpoint:        getEnv("AWS_S3_ENDPOINT", ""),
	}

	cfg.Queue = QueueConfig{
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
		Stream:       getEnv("QUEUE_STREAM", "jobs:routesort"),
		Group:        getEnv("QUEUE_GROUP", "workers:routesort"),
		PollInterval: parseDuration(getEnv("QUEUE_POLL_INTERVAL", "2s"), 2*time.Second),
		StatusTTL:    parseDuration(getEnv("STATUS_TTL", "168h"), 7*24*time.Hour),
	}

	// One job at a time keeps classification strictly sequential.
	cfg.Worker = WorkerConfig{
		Concurrency: parseInt(getEnv("WORKER_CONCURRENCY", "1"), 1),
		JobTimeout:  parseDuration(getEnv("JOB_TIMEOUT", "30m"), 30*time.Minute),
	}
	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 1
	}

	cfg.Server = ServerConfig{
		Port:        getEnv("PORT", "8080"),
		UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadMB: parseInt(getEnv("MAX_UPLOAD_MB", "64"), 64),

		AllowExternalRefs: parseBool(getEnv("ALLOW_EXTERNAL_REFS", "false")),
	}

	cfg.Converter = ConverterConfig{
		Binary:  getEnv("LIBREOFFICE_BIN", "libreoffice"),
		Timeout: parseDuration(getEnv("CONVERT_TIMEOUT", "2m"), 2*time.Minute),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
