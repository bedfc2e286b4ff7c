package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/animus-assets/internal/platform/env"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

// ConfigFromEnv reads ASSETS_MINIO_*. An empty endpoint leaves partition
// storage disabled.
func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("ASSETS_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:  env.String("ASSETS_MINIO_ENDPOINT", ""),
		AccessKey: env.String("ASSETS_MINIO_ACCESS_KEY", "animus"),
		SecretKey: env.String("ASSETS_MINIO_SECRET_KEY", "animusminio"),
		Region:    env.String("ASSETS_MINIO_REGION", "us-east-1"),
		UseSSL:    useSSL,
		Bucket:    env.String("ASSETS_MINIO_BUCKET", "assets"),
		Prefix:    env.String("ASSETS_MINIO_PREFIX", "partitions"),
	}
	if cfg.Enabled() {
		if err := cfg.Validate(); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.HasPrefix(c.Prefix, "/") || strings.HasSuffix(c.Prefix, "/") {
		return fmt.Errorf("prefix must not start or end with '/': %q", c.Prefix)
	}
	return nil
}
