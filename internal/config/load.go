package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/dgellow/restaurant-reviews/internal/crypto"
	"github.com/dgellow/restaurant-reviews/internal/log"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// minSecretKeyLength is the shortest accepted SESSION_SECRET_KEY
const minSecretKeyLength = 32

// ErrAzureMisconfigured is returned when only part of the Azure app
// registration is configured.
var ErrAzureMisconfigured = errors.New("azure sign-in is misconfigured")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the configuration from the environment. When envFile is not
// empty it is loaded first; variables already set in the environment win.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("loading env file: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	mode, err := resolveAuthMode(cfg.Azure)
	if err != nil {
		return Config{}, err
	}
	cfg.AuthMode = mode

	if cfg.Session.SecretKey == "" {
		if cfg.Production {
			return Config{}, fmt.Errorf("SESSION_SECRET_KEY is required when RUNNING_IN_PRODUCTION is set")
		}
		key, err := crypto.GenerateKey(minSecretKeyLength)
		if err != nil {
			return Config{}, fmt.Errorf("generating session key: %w", err)
		}
		cfg.Session.SecretKey = Secret(base64.RawURLEncoding.EncodeToString(key))
		cfg.Session.Generated = true
		log.LogWarnWithFields("config", "SESSION_SECRET_KEY not set, using a random key; sessions will not survive a restart", nil)
	}

	return cfg, nil
}

// ValidateConfig checks field-level constraints.
func ValidateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if key := cfg.Session.SecretKey; key != "" && len(key) < minSecretKeyLength {
		return fmt.Errorf("SESSION_SECRET_KEY must be at least %d characters", minSecretKeyLength)
	}
	return nil
}

// resolveAuthMode tells an intentionally unconfigured provider (no
// credentials at all) from a broken one (some credentials).
func resolveAuthMode(az AzureConfig) (AuthMode, error) {
	present := map[string]bool{
		"AZURE_CLIENT_ID":     az.ClientID != "",
		"AZURE_CLIENT_SECRET": az.ClientSecret != "",
		"AZURE_TENANT_ID":     az.TenantID != "",
	}

	var missing []string
	count := 0
	for _, name := range []string{"AZURE_CLIENT_ID", "AZURE_CLIENT_SECRET", "AZURE_TENANT_ID"} {
		if present[name] {
			count++
		} else {
			missing = append(missing, name)
		}
	}

	switch count {
	case 0:
		log.LogInfoWithFields("config", "Azure credentials not configured, sign-in disabled", nil)
		return AuthModeDisabled, nil
	case len(present):
		return AuthModeAzure, nil
	default:
		return "", fmt.Errorf("%w: missing %s", ErrAzureMisconfigured, strings.Join(missing, ", "))
	}
}
