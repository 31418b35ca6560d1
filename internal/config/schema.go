package config

import "time"

// Config holds studioops configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Server        ServerCfg   `mapstructure:"server" yaml:"server"`
	Storage       StorageCfg  `mapstructure:"storage" yaml:"storage"`
	Upload        UploadCfg   `mapstructure:"upload" yaml:"upload"`
	Pipeline      PipelineCfg `mapstructure:"pipeline" yaml:"pipeline"`
	Collaborators CollabCfg   `mapstructure:"collaborators" yaml:"collaborators"`
}

// ServerCfg configures the HTTP API server.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// StorageCfg configures the MinIO content store and its dev container.
type StorageCfg struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"` // supports ${ENV_VAR} syntax
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
	// ContainerName is the Docker container name for the local MinIO
	// instance (default: studioops-minio)
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	// Image is the Docker image to use (default: minio/minio:latest)
	Image string `mapstructure:"image" yaml:"image"`
	// Port is the host port to bind (default: 9000)
	Port string `mapstructure:"port" yaml:"port"`
}

// UploadCfg configures upload limits.
type UploadCfg struct {
	MaxSizeMB int64 `mapstructure:"max_size_mb" yaml:"max_size_mb"`
}

// MaxSizeBytes returns the upload ceiling in bytes.
func (u UploadCfg) MaxSizeBytes() int64 {
	return u.MaxSizeMB << 20
}

// PipelineCfg configures the orchestrator and worker pool.
type PipelineCfg struct {
	Workers             int     `mapstructure:"workers" yaml:"workers"`
	QueueSize           int     `mapstructure:"queue_size" yaml:"queue_size"`
	MaxRetries          int     `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelaySeconds   int     `mapstructure:"retry_delay_seconds" yaml:"retry_delay_seconds"`
	StageTimeoutSeconds int     `mapstructure:"stage_timeout_seconds" yaml:"stage_timeout_seconds"`
	ReviewThreshold     float64 `mapstructure:"review_threshold" yaml:"review_threshold"`
	TotalTolerance      float64 `mapstructure:"total_tolerance" yaml:"total_tolerance"`
}

// RetryDelay returns the initial backoff as a duration.
func (p PipelineCfg) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelaySeconds) * time.Second
}

// StageTimeout returns the per-attempt stage deadline as a duration.
func (p PipelineCfg) StageTimeout() time.Duration {
	return time.Duration(p.StageTimeoutSeconds) * time.Second
}

// CollabCfg configures the external stage collaborators.
type CollabCfg struct {
	// OCRURL is the base URL of the OCR service.
	OCRURL string `mapstructure:"ocr_url" yaml:"ocr_url"`
	// ParserURL is the base URL of the document-structure parser.
	ParserURL string `mapstructure:"parser_url" yaml:"parser_url"`
	// LinkerURL is the base URL of the pricing-catalog linker. Empty
	// disables linking.
	LinkerURL string `mapstructure:"linker_url" yaml:"linker_url"`
	// TimeoutSeconds is the HTTP timeout for collaborator calls.
	TimeoutSeconds int       `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	OpenAI         OpenAICfg `mapstructure:"openai" yaml:"openai"`
}

// Timeout returns the collaborator HTTP timeout as a duration.
func (c CollabCfg) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// OpenAICfg configures the OpenAI-backed classifier and extractor.
type OpenAICfg struct {
	Model     string  `mapstructure:"model" yaml:"model"`
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`       // supports ${ENV_VAR} syntax
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: 8321,
		},
		Storage: StorageCfg{
			Endpoint:      "localhost:9000",
			AccessKey:     "studioops",
			SecretKey:     "${MINIO_SECRET_KEY}",
			Bucket:        "documents",
			ContainerName: "studioops-minio",
			Image:         "minio/minio:latest",
			Port:          "9000",
		},
		Upload: UploadCfg{
			MaxSizeMB: 50,
		},
		Pipeline: PipelineCfg{
			Workers:             2,
			QueueSize:           64,
			MaxRetries:          3,
			RetryDelaySeconds:   2,
			StageTimeoutSeconds: 120,
			ReviewThreshold:     0.7,
			TotalTolerance:      0.01,
		},
		Collaborators: CollabCfg{
			OCRURL:         "http://localhost:8884",
			ParserURL:      "http://localhost:8885",
			TimeoutSeconds: 300,
			OpenAI: OpenAICfg{
				Model:     "gpt-4o-mini",
				APIKey:    "${OPENAI_API_KEY}",
				RateLimit: 3.0,
				Enabled:   true,
			},
		},
	}
}
