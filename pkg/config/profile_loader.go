package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeploymentProfile is a jurisdiction-specific overlay on top of Config:
// it restricts which model providers a deployment may call out to and which
// EPACK signing algorithms satisfy local crypto policy, and it records how
// long EPACK records may be retained before erasure. A kernel instance loads
// at most one DeploymentProfile, selected by deployment region code.
type DeploymentProfile struct {
	Name           string             `yaml:"name" json:"name"`
	Code           string             `yaml:"code" json:"code"`
	Ceremony       CeremonyConfig     `yaml:"ceremony" json:"ceremony"`
	DataResidency  string             `yaml:"data_residency" json:"data_residency"`
	Compliance     []string           `yaml:"compliance" json:"compliance"`
	Encryption     string             `yaml:"encryption" json:"encryption"`
	PIIHandling    string             `yaml:"pii_handling,omitempty" json:"pii_handling,omitempty"`
	RightToErasure bool               `yaml:"right_to_erasure,omitempty" json:"right_to_erasure,omitempty"`
	Providers      ProviderPolicy     `yaml:"providers" json:"providers"`
	CryptoPolicy   CryptoPolicyConfig `yaml:"crypto_policy" json:"crypto_policy"`
	Retention      RetentionConfig    `yaml:"retention" json:"retention"`
}

// CeremonyConfig holds approval-ceremony thresholds for high-assurance
// gate transitions (REFLECT/SCAFFOLD confirmation) in this jurisdiction.
type CeremonyConfig struct {
	MinTimelockMs    int    `yaml:"min_timelock_ms" json:"min_timelock_ms"`
	MinHoldMs        int    `yaml:"min_hold_ms" json:"min_hold_ms"`
	RequireChallenge bool   `yaml:"require_challenge" json:"require_challenge"`
	DomainSeparation string `yaml:"domain_separation" json:"domain_separation"`
}

// ProviderPolicy controls which model providers a deployment may call.
type ProviderPolicy struct {
	OutboundMode string   `yaml:"outbound_mode" json:"outbound_mode"` // "allowlist" | "denylist" | "island"
	Allowlist    []string `yaml:"allowlist,omitempty" json:"allowlist,omitempty"`
	Denylist     []string `yaml:"denylist,omitempty" json:"denylist,omitempty"`
	IslandMode   bool     `yaml:"island_mode" json:"island_mode"` // if true, no external provider calls permitted
}

// CryptoPolicyConfig defines the EPACK signing/hash algorithms this
// jurisdiction permits and their rotation cadence.
type CryptoPolicyConfig struct {
	AllowedAlgorithms     []string `yaml:"allowed_algorithms" json:"allowed_algorithms"`
	KeyRotationDays       int      `yaml:"key_rotation_days" json:"key_rotation_days"`
	RequireHSM            bool     `yaml:"require_hsm,omitempty" json:"require_hsm,omitempty"`
	RequireNationalCrypto bool     `yaml:"require_national_crypto,omitempty" json:"require_national_crypto,omitempty"`
}

// RetentionConfig records this jurisdiction's EPACK retention limits. It is
// loaded with the profile but not enforced, and it is not compared with the
// policy document's replay.retention_years.
type RetentionConfig struct {
	MaxDays          int  `yaml:"max_days" json:"max_days"`
	AuditLogDays     int  `yaml:"audit_log_days" json:"audit_log_days"`
	PIIRetentionDays int  `yaml:"pii_retention_days,omitempty" json:"pii_retention_days,omitempty"`
	RightToErasure   bool `yaml:"right_to_erasure,omitempty" json:"right_to_erasure,omitempty"`
}

// LoadDeploymentProfile loads a jurisdiction profile YAML by region code.
// It searches profilesDir for profile_<code>.yaml.
func LoadDeploymentProfile(profilesDir, code string) (*DeploymentProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load deployment profile %q: %w", code, err)
	}

	var profile DeploymentProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse deployment profile %q: %w", code, err)
	}

	if profile.Code == "" {
		profile.Code = code
	}

	return &profile, nil
}

// LoadAllDeploymentProfiles loads every profile_*.yaml file in profilesDir.
func LoadAllDeploymentProfiles(profilesDir string) (map[string]*DeploymentProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*DeploymentProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile DeploymentProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Code == "" {
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}

		profiles[profile.Code] = &profile
	}

	return profiles, nil
}

// IsIslandMode reports whether this jurisdiction forbids all outbound
// calls to model providers, forcing the kernel onto local-only adapters.
func (p *DeploymentProfile) IsIslandMode() bool {
	return p.Providers.IslandMode || p.Providers.OutboundMode == "island"
}

// AllowsProvider reports whether the named provider may be called from
// this deployment.
func (p *DeploymentProfile) AllowsProvider(provider string) bool {
	if p.IsIslandMode() {
		return false
	}

	switch p.Providers.OutboundMode {
	case "allowlist":
		for _, name := range p.Providers.Allowlist {
			if name == provider {
				return true
			}
		}
		return false
	case "denylist":
		for _, name := range p.Providers.Denylist {
			if name == provider {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// AllowsHashAlgorithm reports whether algo satisfies this jurisdiction's
// crypto policy for EPACK signing. An empty allowlist permits any
// algorithm.
func (p *DeploymentProfile) AllowsHashAlgorithm(algo string) bool {
	if len(p.CryptoPolicy.AllowedAlgorithms) == 0 {
		return true
	}
	for _, a := range p.CryptoPolicy.AllowedAlgorithms {
		if strings.EqualFold(a, algo) {
			return true
		}
	}
	return false
}
