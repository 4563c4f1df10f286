package credential

import (
	"os"
	"strings"
	"sync"
)

// Source names the layer a key was resolved from.
type Source string

const (
	SourceOverride Source = "override"
	SourceEnv      Source = "env"
	SourceDefault  Source = "default"
	SourceNone     Source = "none"
)

// DefaultEnvKey is the environment variable consulted by the env layer.
const DefaultEnvKey = "GEMINI_API_KEY"

// Provider resolves the API key for every gateway call:
// runtime override, then process environment, then the compiled default.
// Each session owns its own Provider.
type Provider struct {
	mu         sync.RWMutex
	override   string
	envKey     string
	defaultKey string
	lookupEnv  func(string) string
}

// NewProvider - envKey가 비어 있으면 GEMINI_API_KEY 사용
func NewProvider(envKey, defaultKey string) *Provider {
	if envKey == "" {
		envKey = DefaultEnvKey
	}
	return &Provider{
		envKey:     envKey,
		defaultKey: strings.TrimSpace(defaultKey),
		lookupEnv:  os.Getenv,
	}
}

// NewStaticProvider returns a provider whose env layer is fixed to envValue.
// Used where the process environment must not leak in.
func NewStaticProvider(envValue, defaultKey string) *Provider {
	p := NewProvider("", defaultKey)
	p.lookupEnv = func(string) string { return envValue }
	return p
}

// Resolve returns the most recently supplied key.
func (p *Provider) Resolve() string {
	key, _ := p.ResolveWithSource()
	return key
}

// ResolveWithSource also reports which layer answered.
func (p *Provider) ResolveWithSource() (string, Source) {
	p.mu.RLock()
	override := p.override
	p.mu.RUnlock()

	if override != "" {
		return override, SourceOverride
	}
	if v := strings.TrimSpace(p.lookupEnv(p.envKey)); v != "" {
		return v, SourceEnv
	}
	if p.defaultKey != "" {
		return p.defaultKey, SourceDefault
	}
	return "", SourceNone
}

// SetOverride installs key as the runtime override. Blank keys are ignored
// and reported as false.
func (p *Provider) SetOverride(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	p.mu.Lock()
	p.override = key
	p.mu.Unlock()
	return true
}

// ClearOverride drops the runtime override.
func (p *Provider) ClearOverride() {
	p.mu.Lock()
	p.override = ""
	p.mu.Unlock()
}
