package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDeploymentProfile_US(t *testing.T) {
	profilesDir := locateProfiles(t)
	p, err := LoadDeploymentProfile(profilesDir, "us")
	if err != nil {
		t.Fatalf("LoadDeploymentProfile(us): %v", err)
	}
	if p.Name != "United States" {
		t.Errorf("expected name 'United States', got %q", p.Name)
	}
	if p.Encryption != "AES-256-GCM" {
		t.Errorf("expected AES-256-GCM, got %q", p.Encryption)
	}
	if p.IsIslandMode() {
		t.Error("US should not be island mode")
	}
}

func TestLoadDeploymentProfile_EU_GDPR(t *testing.T) {
	profilesDir := locateProfiles(t)
	p, err := LoadDeploymentProfile(profilesDir, "eu")
	if err != nil {
		t.Fatalf("LoadDeploymentProfile(eu): %v", err)
	}
	if p.PIIHandling != "strict" {
		t.Errorf("EU should have strict PII handling, got %q", p.PIIHandling)
	}
	if !p.RightToErasure {
		t.Error("EU should have right to erasure")
	}
	if !p.Ceremony.RequireChallenge {
		t.Error("EU should require ceremony challenge")
	}
}

func TestLoadDeploymentProfile_RU_IslandMode(t *testing.T) {
	profilesDir := locateProfiles(t)
	p, err := LoadDeploymentProfile(profilesDir, "ru")
	if err != nil {
		t.Fatalf("LoadDeploymentProfile(ru): %v", err)
	}
	if !p.IsIslandMode() {
		t.Error("RU should default to island mode")
	}
	if !p.CryptoPolicy.RequireNationalCrypto {
		t.Error("RU should require national crypto")
	}
}

func TestLoadDeploymentProfile_CN_SM4(t *testing.T) {
	profilesDir := locateProfiles(t)
	p, err := LoadDeploymentProfile(profilesDir, "cn")
	if err != nil {
		t.Fatalf("LoadDeploymentProfile(cn): %v", err)
	}
	if p.Encryption != "SM4" {
		t.Errorf("CN should use SM4, got %q", p.Encryption)
	}
	if !p.IsIslandMode() {
		t.Error("CN should default to island mode")
	}
}

func TestLoadAllDeploymentProfiles(t *testing.T) {
	profilesDir := locateProfiles(t)
	profiles, err := LoadAllDeploymentProfiles(profilesDir)
	if err != nil {
		t.Fatalf("LoadAllDeploymentProfiles: %v", err)
	}
	if len(profiles) < 4 {
		t.Errorf("expected at least 4 profiles, got %d", len(profiles))
	}
	for code, p := range profiles {
		if p.Name == "" {
			t.Errorf("profile %s has empty name", code)
		}
	}
}

func TestAllowsProvider_Allowlist(t *testing.T) {
	p := &DeploymentProfile{
		Providers: ProviderPolicy{
			OutboundMode: "allowlist",
			Allowlist:    []string{"openai"},
		},
	}
	if !p.AllowsProvider("openai") {
		t.Error("should allow openai")
	}
	if p.AllowsProvider("evil-provider") {
		t.Error("should deny evil-provider")
	}
}

func TestAllowsProvider_IslandMode(t *testing.T) {
	p := &DeploymentProfile{
		Providers: ProviderPolicy{
			IslandMode: true,
		},
	}
	if p.AllowsProvider("openai") {
		t.Error("island mode should deny all")
	}
}

func TestAllowsHashAlgorithm(t *testing.T) {
	p := &DeploymentProfile{
		CryptoPolicy: CryptoPolicyConfig{
			AllowedAlgorithms: []string{"sha256", "sha384"},
		},
	}
	if !p.AllowsHashAlgorithm("sha256") {
		t.Error("should allow sha256")
	}
	if p.AllowsHashAlgorithm("sha512") {
		t.Error("should deny sha512")
	}
}

func locateProfiles(t *testing.T) string {
	t.Helper()
	candidates := []string{
		"profiles",
		"../config/profiles",
		filepath.Join(os.Getenv("GOPATH"), "src/github.com/bulwark-run/ecosphere/pkg/config/profiles"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	wd, _ := os.Getwd()
	p := filepath.Join(wd, "profiles")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	t.Skip("profiles directory not found")
	return ""
}
