// Package config provides configuration loading for the HTTP email service:
// defaults, then an optional YAML file, then environment variables, then
// validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Directory sources.
const (
	SourceFile      = "file"
	SourceAzureFile = "azurefile"
	SourceS3        = "s3"
)

// Credential stores.
const (
	StoreKeyVault = "keyvault"
	StoreEnv      = "env"
)

// Delivery providers.
const (
	ProviderSMTP   = "smtp"
	ProviderStdout = "stdout"
)

// Config holds the complete application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Directory   DirectoryConfig   `yaml:"directory"`
	Credentials CredentialsConfig `yaml:"credentials"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Listen string `yaml:"listen" validate:"required"`
}

// DirectoryConfig selects and configures where the sender directory document
// is fetched from.
type DirectoryConfig struct {
	Source string `yaml:"source" validate:"oneof=file azurefile s3"`

	// Path is the local document for the file source.
	Path string `yaml:"path" validate:"required_if=Source file"`

	// Azure File Share location.
	StorageConnectionString string `yaml:"storage_connection_string" validate:"required_if=Source azurefile"`
	ShareName               string `yaml:"share_name" validate:"required_if=Source azurefile"`
	FilePath                string `yaml:"file_path" validate:"required_if=Source azurefile"`

	S3 S3Config `yaml:"s3"`
}

// S3Config holds the S3 object location of the directory document.
type S3Config struct {
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Key             string `yaml:"key"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint" validate:"omitempty,url"`
}

// CredentialsConfig selects the credential store.
type CredentialsConfig struct {
	Store     string `yaml:"store" validate:"oneof=keyvault env"`
	VaultURI  string `yaml:"vault_uri" validate:"required_if=Store keyvault"`
	EnvPrefix string `yaml:"env_prefix"`
}

// SMTPConfig holds delivery configuration.
type SMTPConfig struct {
	Provider           string        `yaml:"provider" validate:"oneof=smtp stdout"`
	LocalName          string        `yaml:"local_name"`
	DialTimeout        time.Duration `yaml:"dial_timeout" validate:"gte=0"`
	CAFile             string        `yaml:"ca_file" validate:"omitempty,file"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// envOverrides lists the environment variables read by envconfig. A nil
// field means the variable is not set.
type envOverrides struct {
	Listen      *string `envconfig:"HTTP_EMAIL_LISTEN"`
	HandlerPort *string `envconfig:"FUNCTIONS_CUSTOMHANDLER_PORT"`

	DirectorySource *string `envconfig:"HTTP_EMAIL_DIRECTORY_SOURCE"`
	DirectoryPath   *string `envconfig:"HTTP_EMAIL_DIRECTORY_PATH"`
	ShareName       *string `envconfig:"HTTP_EMAIL_SHARE_NAME"`
	FilePath        *string `envconfig:"HTTP_EMAIL_FILE_PATH"`

	S3Region          *string `envconfig:"HTTP_EMAIL_S3_REGION"`
	S3Bucket          *string `envconfig:"HTTP_EMAIL_S3_BUCKET"`
	S3Key             *string `envconfig:"HTTP_EMAIL_S3_KEY"`
	S3AccessKeyID     *string `envconfig:"HTTP_EMAIL_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey *string `envconfig:"HTTP_EMAIL_S3_SECRET_ACCESS_KEY"`
	S3Endpoint        *string `envconfig:"HTTP_EMAIL_S3_ENDPOINT"`

	CredentialStore *string `envconfig:"HTTP_EMAIL_CREDENTIAL_STORE"`
	VaultURI        *string `envconfig:"KEY_VAULT_URI"`
	EnvPrefix       *string `envconfig:"HTTP_EMAIL_CREDENTIAL_ENV_PREFIX"`

	Provider           *string        `envconfig:"HTTP_EMAIL_SMTP_PROVIDER"`
	LocalName          *string        `envconfig:"HTTP_EMAIL_SMTP_LOCAL_NAME"`
	DialTimeout        *time.Duration `envconfig:"HTTP_EMAIL_SMTP_DIAL_TIMEOUT"`
	CAFile             *string        `envconfig:"HTTP_EMAIL_SMTP_CA_FILE"`
	InsecureSkipVerify *bool          `envconfig:"HTTP_EMAIL_SMTP_INSECURE_SKIP_VERIFY"`

	LogLevel *string `envconfig:"LOG_LEVEL"`
}

// storageConnectionEnv is the Azure Functions storage setting. Its mixed case
// is significant, so it is read directly instead of through envconfig.
const storageConnectionEnv = "AzureWebJobsStorage"

// Defaults.
const (
	DefaultListen    = ":8080"
	DefaultShareName = "email-app"
	DefaultFilePath  = "emails.json"
	DefaultEnvPrefix = "HTTP_EMAIL_SECRET_"
)

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files (".env" when none is
// given) without overriding variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Server.Listen = DefaultListen
	c.Directory.Source = SourceAzureFile
	c.Directory.ShareName = DefaultShareName
	c.Directory.FilePath = DefaultFilePath
	c.Credentials.Store = StoreKeyVault
	c.Credentials.EnvPrefix = DefaultEnvPrefix
	c.SMTP.Provider = ProviderSMTP
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Empty string variables do not override.
func (c *Config) applyEnvVars() error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	setString(&c.Server.Listen, env.Listen)
	if env.HandlerPort != nil && *env.HandlerPort != "" {
		// The Functions host owns the port when running as a custom handler.
		c.Server.Listen = ":" + *env.HandlerPort
	}

	setString(&c.Directory.Source, env.DirectorySource)
	setString(&c.Directory.Path, env.DirectoryPath)
	setString(&c.Directory.ShareName, env.ShareName)
	setString(&c.Directory.FilePath, env.FilePath)
	if v := os.Getenv(storageConnectionEnv); v != "" {
		c.Directory.StorageConnectionString = v
	}

	setString(&c.Directory.S3.Region, env.S3Region)
	setString(&c.Directory.S3.Bucket, env.S3Bucket)
	setString(&c.Directory.S3.Key, env.S3Key)
	setString(&c.Directory.S3.AccessKeyID, env.S3AccessKeyID)
	setString(&c.Directory.S3.SecretAccessKey, env.S3SecretAccessKey)
	setString(&c.Directory.S3.Endpoint, env.S3Endpoint)

	setString(&c.Credentials.Store, env.CredentialStore)
	setString(&c.Credentials.VaultURI, env.VaultURI)
	setString(&c.Credentials.EnvPrefix, env.EnvPrefix)

	setString(&c.SMTP.Provider, env.Provider)
	setString(&c.SMTP.LocalName, env.LocalName)
	setString(&c.SMTP.CAFile, env.CAFile)
	if env.DialTimeout != nil {
		c.SMTP.DialTimeout = *env.DialTimeout
	}
	if env.InsecureSkipVerify != nil {
		c.SMTP.InsecureSkipVerify = *env.InsecureSkipVerify
	}

	setString(&c.Logging.Level, env.LogLevel)
	c.Logging.Level = strings.ToLower(c.Logging.Level)

	return nil
}

func setString(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their YAML names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and the settings each selected source,
// store and provider needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Directory.Source == SourceS3 && (c.Directory.S3.Bucket == "" || c.Directory.S3.Key == "") {
		return fmt.Errorf("invalid configuration: directory.s3.bucket and directory.s3.key are required for the s3 source")
	}
	return nil
}
