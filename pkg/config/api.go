package config

import (
	"errors"
)

// ServerConfig configures the HTTP event receiver.
type ServerConfig struct {
	Listen      string   `yaml:"listen" mapstructure:"listen" validate:"required"`
	CORSOrigins []string `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	// AuthTokenHash is a bcrypt hash of the bearer token runners must send.
	// Empty disables authentication.
	AuthTokenHash string `yaml:"auth_token_hash,omitempty" mapstructure:"auth_token_hash"`
	// RequestsPerMinute limits event posts per client IP. Zero disables it.
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute" validate:"gte=0"`
}

// UploadConfig configures artifact upload after a run.
type UploadConfig struct {
	S3 S3UploadConfig `yaml:"s3" mapstructure:"s3"`
}

// S3UploadConfig contains S3 upload settings.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url" validate:"omitempty,url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

func (u *UploadConfig) validate() error {
	if !u.S3.Enabled {
		return nil
	}

	if u.S3.Bucket == "" {
		return errors.New("s3.bucket is required when s3 upload is enabled")
	}

	if (u.S3.AccessKeyID == "") != (u.S3.SecretAccessKey == "") {
		return errors.New("s3.access_key_id and s3.secret_access_key must be set together")
	}

	return nil
}
