// Package config loads the kernel's environment-variable surface
// (spec.md §6 "Environment") into a typed Config, following the
// teacher's Load()-reads-os.Getenv-with-a-default idiom: every variable
// has a safe fallback, and Load never fails. The only file it reads is the
// optional deployment profile named by BW_DEPLOYMENT_PROFILE.
package config

import (
	"os"
	"strconv"

	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
)

// KernelMode selects which governance loop the kernel runs (spec.md §6:
// "BW_KERNEL_MODE: v8 (baseline) or v9 (enables full resilience loop)").
type KernelMode string

const (
	ModeBaseline       KernelMode = "v8"
	ModeFullResilience KernelMode = "v9"
)

// RedactMode controls how the EPACK sink handles sensitive payload
// fields before persistence.
type RedactMode string

const (
	RedactHash RedactMode = "hash"
	RedactOff  RedactMode = "off"
)

// Config holds the kernel's full environment-derived configuration.
type Config struct {
	PolicyPath        string
	KernelMode        KernelMode
	Provider          string
	Model             string
	EpackStorePath    string
	PersistEpacks     bool
	RedactMode        RedactMode
	HashAlgorithm     canonicalize.Algorithm
	EpackSigningKey   []byte
	OTelEnabled       bool
	OTLPEndpoint      string
	DeploymentProfile *DeploymentProfile
}

// Load reads the kernel's environment variables into a Config, applying
// spec.md §6's defaults for every unset variable. If BW_DEPLOYMENT_PROFILE
// names a jurisdiction code, its profile is loaded from BW_PROFILES_DIR
// (default pkg/config/profiles) and attached to the Config; an unknown or
// unreadable profile code is left unset rather than failing Load, since
// the jurisdiction overlay is optional and kernelruntime.New enforces it.
func Load() *Config {
	cfg := &Config{
		PolicyPath:      getenvDefault("BW_POLICY_PATH", "policies/default.yaml"),
		KernelMode:      parseKernelMode(getenvDefault("BW_KERNEL_MODE", string(ModeBaseline))),
		Provider:        getenvDefault("ECOSPHERE_PROVIDER", "stub"),
		Model:           getenvDefault("ECOSPHERE_MODEL", "default"),
		EpackStorePath:  getenvDefault("ECOSPHERE_EPACK_STORE_PATH", "epacks.ndjson"),
		PersistEpacks:   getenvBool("ECOSPHERE_PERSIST_EPACKS", false),
		RedactMode:      parseRedactMode(getenvDefault("ECOSPHERE_REDACT_MODE", string(RedactHash))),
		HashAlgorithm:   parseHashAlgorithm(getenvDefault("ECOSPHERE_HASH_ALGORITHM", string(canonicalize.SHA256))),
		EpackSigningKey: []byte(os.Getenv("EPACK_SIGNING_KEY")),
		OTelEnabled:     getenvBool("ECOSPHERE_OTEL_ENABLED", false),
		OTLPEndpoint:    getenvDefault("ECOSPHERE_OTLP_ENDPOINT", "localhost:4317"),
	}

	if code := os.Getenv("BW_DEPLOYMENT_PROFILE"); code != "" {
		dir := getenvDefault("BW_PROFILES_DIR", "pkg/config/profiles")
		if profile, err := LoadDeploymentProfile(dir, code); err == nil {
			cfg.DeploymentProfile = profile
		}
	}

	return cfg
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func parseKernelMode(v string) KernelMode {
	if KernelMode(v) == ModeFullResilience {
		return ModeFullResilience
	}
	return ModeBaseline
}

func parseRedactMode(v string) RedactMode {
	if RedactMode(v) == RedactOff {
		return RedactOff
	}
	return RedactHash
}

func parseHashAlgorithm(v string) canonicalize.Algorithm {
	switch canonicalize.Algorithm(v) {
	case canonicalize.SHA384, canonicalize.SHA512:
		return canonicalize.Algorithm(v)
	default:
		return canonicalize.SHA256
	}
}
