package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix is prepended to every environment override, e.g. SEOAUDIT_MAX_PAGES
const EnvPrefix = "SEOAUDIT"

const DefaultUserAgent = "SEOAuditBot/1.0 (+https://github.com/BenjaminSRussell/seo_audit)"

// Default returns the settings used when nothing else is supplied
func Default() types.AuditConfig {
	return types.AuditConfig{
		MaxPages:          500,
		MaxDepth:          5,
		RequestsPerSecond: 2,
		RequestTimeout:    15 * time.Second,
		UserAgent:         DefaultUserAgent,
		FollowRedirects:   true,
		AnalyzeImages:     true,
		Workers:           4,
		MaxRedirects:      10,
		MaxBodyBytes:      5 << 20,
		TopIssues:         10,
	}
}

// SetDefaults registers every key with v so env overrides and Unmarshal see them
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("seed_url", d.SeedURL)
	v.SetDefault("max_pages", d.MaxPages)
	v.SetDefault("max_depth", d.MaxDepth)
	v.SetDefault("requests_per_second", d.RequestsPerSecond)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("follow_redirects", d.FollowRedirects)
	v.SetDefault("analyze_images", d.AnalyzeImages)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("max_redirects", d.MaxRedirects)
	v.SetDefault("max_duration", d.MaxDuration)
	v.SetDefault("max_body_bytes", d.MaxBodyBytes)
	v.SetDefault("top_issues", d.TopIssues)
}

// Load reads configuration from an optional config file, the environment
// and whatever flags the caller bound to v, then validates the result.
func Load(v *viper.Viper) (types.AuditConfig, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return types.AuditConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg types.AuditConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return types.AuditConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return types.AuditConfig{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks limits and the seed URL. The returned error wraps ErrInvalidConfig.
func Validate(cfg types.AuditConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	seed, err := url.Parse(cfg.SeedURL)
	if err != nil {
		return fmt.Errorf("%w: seed url: %v", ErrInvalidConfig, err)
	}
	if seed.Scheme != "http" && seed.Scheme != "https" {
		return fmt.Errorf("%w: seed url must be http or https, got %q", ErrInvalidConfig, seed.Scheme)
	}
	if seed.Host == "" {
		return fmt.Errorf("%w: seed url has no host", ErrInvalidConfig)
	}

	return nil
}
