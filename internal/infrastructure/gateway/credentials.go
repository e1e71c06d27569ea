package gateway

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvCredentialResolver resolves "env://NAME" references from the process
// environment. Deployments with a real secrets manager plug in their own
// resolver.
type EnvCredentialResolver struct{}

// Resolve implements CredentialResolver
func (EnvCredentialResolver) Resolve(_ context.Context, ref string) (string, error) {
	name, ok := strings.CutPrefix(ref, "env://")
	if !ok {
		return "", fmt.Errorf("unsupported credentials reference %q", ref)
	}
	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("credentials variable %q is not set", name)
	}
	return value, nil
}

// StaticCredentialResolver resolves references from a fixed table
type StaticCredentialResolver map[string]string

// Resolve implements CredentialResolver
func (r StaticCredentialResolver) Resolve(_ context.Context, ref string) (string, error) {
	token, ok := r[ref]
	if !ok {
		return "", fmt.Errorf("unknown credentials reference %q", ref)
	}
	return token, nil
}
