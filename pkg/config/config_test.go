package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
	"github.com/bulwark-run/ecosphere/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns spec-mandated defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BW_POLICY_PATH", "")
	t.Setenv("BW_KERNEL_MODE", "")
	t.Setenv("ECOSPHERE_PROVIDER", "")
	t.Setenv("ECOSPHERE_MODEL", "")
	t.Setenv("ECOSPHERE_EPACK_STORE_PATH", "")
	t.Setenv("ECOSPHERE_PERSIST_EPACKS", "")
	t.Setenv("ECOSPHERE_REDACT_MODE", "")
	t.Setenv("ECOSPHERE_HASH_ALGORITHM", "")
	t.Setenv("EPACK_SIGNING_KEY", "")
	t.Setenv("ECOSPHERE_OTEL_ENABLED", "")
	t.Setenv("ECOSPHERE_OTLP_ENDPOINT", "")

	cfg := config.Load()

	assert.Equal(t, "policies/default.yaml", cfg.PolicyPath)
	assert.Equal(t, config.ModeBaseline, cfg.KernelMode)
	assert.Equal(t, "stub", cfg.Provider)
	assert.Equal(t, "default", cfg.Model)
	assert.Equal(t, "epacks.ndjson", cfg.EpackStorePath)
	assert.False(t, cfg.PersistEpacks)
	assert.Equal(t, config.RedactHash, cfg.RedactMode)
	assert.Equal(t, canonicalize.SHA256, cfg.HashAlgorithm)
	assert.Empty(t, cfg.EpackSigningKey)
	assert.False(t, cfg.OTelEnabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BW_POLICY_PATH", "/etc/ecosphere/custom.yaml")
	t.Setenv("BW_KERNEL_MODE", "v9")
	t.Setenv("ECOSPHERE_PROVIDER", "openai")
	t.Setenv("ECOSPHERE_MODEL", "gpt-test")
	t.Setenv("ECOSPHERE_EPACK_STORE_PATH", "/var/lib/ecosphere/epacks.ndjson")
	t.Setenv("ECOSPHERE_PERSIST_EPACKS", "true")
	t.Setenv("ECOSPHERE_REDACT_MODE", "off")
	t.Setenv("ECOSPHERE_HASH_ALGORITHM", "sha512")
	t.Setenv("EPACK_SIGNING_KEY", "top-secret-key")
	t.Setenv("ECOSPHERE_OTEL_ENABLED", "true")
	t.Setenv("ECOSPHERE_OTLP_ENDPOINT", "collector.internal:4317")

	cfg := config.Load()

	assert.Equal(t, "/etc/ecosphere/custom.yaml", cfg.PolicyPath)
	assert.Equal(t, config.ModeFullResilience, cfg.KernelMode)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-test", cfg.Model)
	assert.Equal(t, "/var/lib/ecosphere/epacks.ndjson", cfg.EpackStorePath)
	assert.True(t, cfg.PersistEpacks)
	assert.Equal(t, config.RedactOff, cfg.RedactMode)
	assert.Equal(t, canonicalize.SHA512, cfg.HashAlgorithm)
	assert.Equal(t, []byte("top-secret-key"), cfg.EpackSigningKey)
	assert.True(t, cfg.OTelEnabled)
	assert.Equal(t, "collector.internal:4317", cfg.OTLPEndpoint)
}

// TestLoad_InvalidEnumsFallBackToDefaults verifies that unrecognized
// values for enum-like variables fall back rather than propagate.
func TestLoad_InvalidEnumsFallBackToDefaults(t *testing.T) {
	t.Setenv("BW_KERNEL_MODE", "v7")
	t.Setenv("ECOSPHERE_REDACT_MODE", "bogus")
	t.Setenv("ECOSPHERE_HASH_ALGORITHM", "md5")
	t.Setenv("ECOSPHERE_PERSIST_EPACKS", "not-a-bool")

	cfg := config.Load()

	assert.Equal(t, config.ModeBaseline, cfg.KernelMode)
	assert.Equal(t, config.RedactHash, cfg.RedactMode)
	assert.Equal(t, canonicalize.SHA256, cfg.HashAlgorithm)
	assert.False(t, cfg.PersistEpacks)
}

// TestLoad_DeploymentProfileAttached verifies that naming a jurisdiction
// code via BW_DEPLOYMENT_PROFILE loads the matching overlay from
// BW_PROFILES_DIR.
func TestLoad_DeploymentProfileAttached(t *testing.T) {
	t.Setenv("BW_DEPLOYMENT_PROFILE", "eu")
	t.Setenv("BW_PROFILES_DIR", "profiles")

	cfg := config.Load()

	if assert.NotNil(t, cfg.DeploymentProfile) {
		assert.Equal(t, "European Union", cfg.DeploymentProfile.Name)
		assert.True(t, cfg.DeploymentProfile.RightToErasure)
	}
}

// TestLoad_UnknownDeploymentProfileLeavesUnset verifies that an unreadable
// profile code does not fail Load, since the jurisdiction overlay is
// optional.
func TestLoad_UnknownDeploymentProfileLeavesUnset(t *testing.T) {
	t.Setenv("BW_DEPLOYMENT_PROFILE", "zz")
	t.Setenv("BW_PROFILES_DIR", "profiles")

	cfg := config.Load()

	assert.Nil(t, cfg.DeploymentProfile)
}
