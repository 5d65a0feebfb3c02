// Package testutil provides shared helpers for end-to-end tests that drive
// the built binary against a live server. It depends only on the standard
// library so that packages outside internal/ can use it.
package testutil

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables read by the end-to-end suite.
const (
	EnvServer   = "CLOUDVAULT_E2E_SERVER"
	EnvUser     = "CLOUDVAULT_E2E_USER"
	EnvPassword = "CLOUDVAULT_E2E_PASSWORD"
)

// Credentials identify the test account on a live server.
type Credentials struct {
	Server   string
	User     string
	Password string
}

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// LoadCredentials returns the test account from the environment. ok is
// false when any of the three variables is unset.
func LoadCredentials() (Credentials, bool) {
	c := Credentials{
		Server:   os.Getenv(EnvServer),
		User:     os.Getenv(EnvUser),
		Password: os.Getenv(EnvPassword),
	}

	return c, c.Server != "" && c.User != "" && c.Password != ""
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}
