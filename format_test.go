package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"bytes", 512, "512 B"},
		{"kibibytes", 1536, "1.5 KiB"},
		{"mebibytes", 5 * 1024 * 1024, "5.0 MiB"},
		{"gibibytes", 1610612736, "1.5 GiB"},
		{"unknown", -1, "-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSize(tt.bytes))
		})
	}
}

func TestFormatTime(t *testing.T) {
	now := time.Now()

	t.Run("same year", func(t *testing.T) {
		got := formatTime(time.Date(now.Year(), time.March, 15, 10, 30, 0, 0, time.Local))
		assert.Equal(t, "Mar 15 10:30", got)
	})

	t.Run("different year", func(t *testing.T) {
		got := formatTime(time.Date(2020, time.December, 25, 8, 0, 0, 0, time.Local))
		assert.Equal(t, "Dec 25  2020", got)
	})

	t.Run("zero", func(t *testing.T) {
		assert.Equal(t, "-", formatTime(time.Time{}))
	})
}

func TestPrintTable_AlignsColumns(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"NAME", "SIZE", "KEY"}, [][]string{
		{"report.pdf", "1.2 MiB", "u1/report.pdf"},
		{"docs/", "-", "u1/docs/"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)

	assert.Equal(t, "NAME        SIZE     KEY", lines[0])
	assert.Equal(t, "report.pdf  1.2 MiB  u1/report.pdf", lines[1])
	assert.Equal(t, "docs/       -        u1/docs/", lines[2])
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[..........]", progressBar(0, 10))
	assert.Equal(t, "[#####.....]", progressBar(50, 10))
	assert.Equal(t, "[##########]", progressBar(100, 10))
	assert.Equal(t, "[##########]", progressBar(250, 10), "clamped high")
	assert.Equal(t, "[..........]", progressBar(-5, 10), "clamped low")
}

func TestStatusf_Quiet(t *testing.T) {
	var errOut bytes.Buffer

	cc := &CLIContext{ErrOut: &errOut}
	cc.Statusf("hello %s\n", "there")
	assert.Equal(t, "hello there\n", errOut.String())

	errOut.Reset()
	cc.Flags.Quiet = true
	cc.Statusf("hidden\n")
	assert.Empty(t, errOut.String())
}
