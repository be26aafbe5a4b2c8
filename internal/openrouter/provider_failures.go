package openrouter

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const providerFailuresFilename = "openrouter_provider_failures.json"

// DefaultProviderCooldown is how long an upstream provider is skipped after it fails.
const DefaultProviderCooldown = 10 * time.Minute

// key = "model|provider_slug", value = blocked-until in RFC3339.
type providerFailures map[string]string

func readProviderFailures(configDir string) (providerFailures, error) {
	data, err := os.ReadFile(filepath.Join(configDir, providerFailuresFilename))
	if errors.Is(err, fs.ErrNotExist) {
		return providerFailures{}, nil
	}
	if err != nil {
		return nil, err
	}
	f := providerFailures{}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f, nil
}

func (f providerFailures) write(configDir string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(configDir, providerFailuresFilename), data, 0o600)
}

// LoadBlockedProviders returns provider slugs still in cooldown for model. Expired entries
// are pruned from the file.
func LoadBlockedProviders(configDir, model string) ([]string, error) {
	if configDir == "" || model == "" {
		return nil, nil
	}
	f, err := readProviderFailures(configDir)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	prefix := model + "|"
	var blocked []string
	live := providerFailures{}
	for key, until := range f {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil || !t.After(now) {
			continue
		}
		live[key] = until
		if slug := strings.TrimPrefix(key, prefix); slug != key && slug != "" {
			blocked = append(blocked, slug)
		}
	}
	if len(live) != len(f) {
		_ = live.write(configDir)
	}
	return blocked, nil
}

// RecordProviderFailure blocks providerSlug for model until blockedUntil. A later existing
// deadline is kept.
func RecordProviderFailure(configDir, model, providerSlug string, blockedUntil time.Time) error {
	if configDir == "" || model == "" || providerSlug == "" {
		return nil
	}
	f, err := readProviderFailures(configDir)
	if err != nil {
		f = providerFailures{}
	}
	key := model + "|" + providerSlug
	if existing, ok := f[key]; ok {
		if t, err := time.Parse(time.RFC3339, existing); err == nil && !blockedUntil.After(t) {
			return nil
		}
	}
	f[key] = blockedUntil.UTC().Format(time.RFC3339)
	return f.write(configDir)
}
