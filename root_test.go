package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cloudvault/internal/api"
	"github.com/tonimelisma/cloudvault/internal/auth"
	"github.com/tonimelisma/cloudvault/internal/config"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests either
// call helpers directly with a CLIFlags value, or run the command through
// SetArgs + Execute and let Cobra parse the flags.

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		flags      CLIFlags
		want       slog.Level
	}{
		{"default is warn", "", CLIFlags{}, slog.LevelWarn},
		{"config debug", "debug", CLIFlags{}, slog.LevelDebug},
		{"config info", "info", CLIFlags{}, slog.LevelInfo},
		{"config error", "error", CLIFlags{}, slog.LevelError},
		{"verbose beats config", "error", CLIFlags{Verbose: true}, slog.LevelDebug},
		{"quiet beats config", "debug", CLIFlags{Quiet: true}, slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logLevel(tt.configured, tt.flags))
		})
	}
}

func TestBootstrapLogger_HonorsFlags(t *testing.T) {
	ctx := context.Background()

	logger := bootstrapLogger(CLIFlags{})
	assert.True(t, logger.Enabled(ctx, slog.LevelWarn))
	assert.False(t, logger.Enabled(ctx, slog.LevelInfo))

	logger = bootstrapLogger(CLIFlags{Verbose: true})
	assert.True(t, logger.Enabled(ctx, slog.LevelDebug))
}

func TestBuildLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer

	cfg := &config.Resolved{LogLevel: "info", LogFormat: "json"}
	logger := buildLogger(cfg, CLIFlags{}, &buf)

	logger.Info("hello", slog.String("k", "v"))

	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestBuildLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer

	cfg := &config.Resolved{LogLevel: "warn", LogFormat: "auto"}
	logger := buildLogger(cfg, CLIFlags{}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestDescribeError(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		assert.Equal(t, "boom", describeError(errors.New("boom")))
	})

	t.Run("rejected login shows server message", func(t *testing.T) {
		err := &auth.AuthError{Op: "login", Err: &api.APIError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Invalid credentials",
			Err:        api.ErrUnauthorized,
		}}

		assert.Equal(t, "Invalid credentials", describeError(err))
	})

	t.Run("transport error gets friendly wording", func(t *testing.T) {
		err := fmt.Errorf("listing %q: %w", "/", &api.APIError{
			StatusCode: http.StatusUnauthorized,
			Err:        api.ErrUnauthorized,
		})

		assert.Equal(t, "Your session has expired. Please log in again.", describeError(err))
	})

	t.Run("quota domain error", func(t *testing.T) {
		err := &api.APIError{
			StatusCode: http.StatusBadRequest,
			Message:    "Storage quota exceeded",
			Err:        api.ErrBadRequest,
			Domain:     api.ErrQuotaExceeded,
		}

		assert.Equal(t, "Storage quota exceeded. Free up space and try again.", describeError(err))
	})
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{
		"login", "logout", "register", "whoami", "quota", "ls", "put", "rm",
		"mkdir", "get", "share", "public", "theme", "config",
	} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"config", "server", "json", "verbose", "quiet"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing persistent flag %q", name)
	}
}

func TestNewRootCmd_VerboseAndQuietExclusive(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--verbose", "--quiet", "theme"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others can be")
}

func TestMustCLIContext_WithoutPreRun(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetContext(context.Background())

	_, err := mustCLIContext(cmd)
	require.Error(t, err)
}
