// Package config loads runtime settings from the environment.
//
// Settings are layered with koanf: struct defaults first, then environment
// variables. Empty variables are ignored so they never clobber a default.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const DefaultRegion = "ap-northeast-2"

// Config holds every setting the backend reads.
type Config struct {
	BucketName   string `koanf:"s3_bucket_name"`
	TablePrefix  string `koanf:"dynamodb_table_prefix"`
	InferenceURL string `koanf:"ai_server_url"`

	AWSRegion string `koanf:"aws_region"`
	S3Region  string `koanf:"s3_region"`

	SessionsTable string `koanf:"dynamodb_sessions_table"`
	ImagesTable   string `koanf:"dynamodb_images_table"`
	SurveyTable   string `koanf:"dynamodb_survey_table"`
	CreateTables  bool   `koanf:"create_tables"`

	ParamPrefix string `koanf:"param_prefix"`
	WebURL      string `koanf:"web_url"`
	Environment string `koanf:"environment"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	Port      int      `koanf:"port"`
	BasePaths []string `koanf:"api_base_paths"`

	MaxUploadBytes   int64         `koanf:"max_upload_bytes"`
	InferenceTimeout time.Duration `koanf:"inference_timeout"`
	UploadURLTTL     time.Duration `koanf:"upload_url_ttl"`
	DownloadURLTTL   time.Duration `koanf:"download_url_ttl"`
}

func defaultConfig() *Config {
	return &Config{
		AWSRegion:        DefaultRegion,
		WebURL:           "https://fairstay.app",
		Environment:      "production",
		LogLevel:         "info",
		LogFormat:        "json",
		Port:             3000,
		BasePaths:        []string{"/default/fairstay-mvp-backend", "/fairstay-mvp-backend"},
		MaxUploadBytes:   10 << 20,
		InferenceTimeout: 60 * time.Second,
		UploadURLTTL:     5 * time.Minute,
		DownloadURLTTL:   time.Hour,
	}
}

// required lists the variables without which no request can be served.
var required = []struct {
	env string
	get func(*Config) string
}{
	{"S3_BUCKET_NAME", func(c *Config) string { return c.BucketName }},
	{"DYNAMODB_TABLE_PREFIX", func(c *Config) string { return c.TablePrefix }},
	{"AI_SERVER_URL", func(c *Config) string { return c.InferenceURL }},
}

// MissingError lists required variables that are absent or blank.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "Missing environment variables: " + strings.Join(e.Keys, ", ")
}

// Load reads the configuration. When required variables are missing the
// returned Config is still usable for logging and the error is a *MissingError.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}
	if err := k.Load(env.ProviderWithValue("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}
	if err := splitList(k, "api_base_paths"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.normalize()

	var missing []string
	for _, r := range required {
		if r.get(cfg) == "" {
			missing = append(missing, r.env)
		}
	}
	if len(missing) > 0 {
		return cfg, &MissingError{Keys: missing}
	}
	return cfg, nil
}

var knownKeys = map[string]bool{
	"s3_bucket_name":          true,
	"dynamodb_table_prefix":   true,
	"ai_server_url":           true,
	"aws_region":              true,
	"s3_region":               true,
	"dynamodb_sessions_table": true,
	"dynamodb_images_table":   true,
	"dynamodb_survey_table":   true,
	"create_tables":           true,
	"param_prefix":            true,
	"web_url":                 true,
	"environment":             true,
	"log_level":               true,
	"log_format":              true,
	"port":                    true,
	"api_base_paths":          true,
	"max_upload_bytes":        true,
	"inference_timeout":       true,
	"upload_url_ttl":          true,
	"download_url_ttl":        true,
}

// envTransform maps S3_BUCKET_NAME to s3_bucket_name and drops unrelated or
// empty variables.
func envTransform(key, value string) (string, interface{}) {
	k := strings.ToLower(key)
	if !knownKeys[k] {
		return "", nil
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	return k, value
}

func splitList(k *koanf.Koanf, path string) error {
	s, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if err := k.Set(path, out); err != nil {
		return fmt.Errorf("config: set %s: %w", path, err)
	}
	return nil
}

func (c *Config) normalize() {
	c.BucketName = strings.TrimSpace(c.BucketName)
	c.TablePrefix = strings.TrimSpace(c.TablePrefix)
	c.InferenceURL = strings.TrimRight(strings.TrimSpace(c.InferenceURL), "/")
	c.WebURL = strings.TrimRight(c.WebURL, "/")
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	for i, p := range c.BasePaths {
		c.BasePaths[i] = "/" + strings.Trim(p, "/")
	}
}

// Region is the bucket region: S3_REGION, then AWS_REGION, then the default.
func (c *Config) Region() string {
	if c.S3Region != "" {
		return c.S3Region
	}
	if c.AWSRegion != "" {
		return c.AWSRegion
	}
	return DefaultRegion
}

// IsDevelopment reports whether internal error details may be exposed.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// InferenceTokenParam is the SSM parameter holding the inference bearer
// token, or "" when no parameter prefix is configured.
func (c *Config) InferenceTokenParam() string {
	p := strings.TrimRight(strings.TrimSpace(c.ParamPrefix), "/")
	if p == "" {
		return ""
	}
	return p + "/inference-token"
}
