package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

// RenderEffective writes the resolved configuration as an annotated summary
// to w. This powers "config show": users see the effective values after all
// override layers have been applied.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)

	ew.printf("[server]\n")
	ew.printf("  base_url         = %q\n", r.BaseURL)

	if r.ShareBaseURL != "" {
		ew.printf("  share_base_url   = %q\n", r.ShareBaseURL)
	}

	if r.UserAgent != "" {
		ew.printf("  user_agent       = %q\n", r.UserAgent)
	}

	ew.printf("  metadata_timeout = %q\n", r.MetadataTimeout)
	ew.printf("  upload_timeout   = %q\n", r.UploadTimeout)
	ew.printf("  refresh_timeout  = %q\n", r.RefreshTimeout)
	ew.printf("\n")

	ew.printf("[transfers]\n")
	ew.printf("  max_file_size      = %q\n", humanize.IBytes(uint64(r.MaxFileSize)))
	ew.printf("  max_batch_files    = %d\n", r.MaxBatchFiles)
	ew.printf("  parallel_uploads   = %d\n", r.ParallelUploads)
	ew.printf("  success_linger     = %q\n", r.SuccessLinger)

	if r.BandwidthLimit > 0 {
		ew.printf("  bandwidth_limit    = %q\n", humanize.IBytes(uint64(r.BandwidthLimit))+"/s")
	} else {
		ew.printf("  bandwidth_limit    = \"unlimited\"\n")
	}

	if len(r.AllowedTypes) > 0 {
		ew.printf("  allowed_extensions = [%s]\n", joinQuoted(r.AllowedTypes))
	}

	ew.printf("\n")

	ew.printf("[storage]\n")
	ew.printf("  session_backend = %q\n", r.SessionBackend)
	ew.printf("  data_dir        = %q\n", r.DataDir)
	ew.printf("\n")

	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", r.LogLevel)
	ew.printf("  log_format = %q\n", r.LogFormat)

	if r.MetricsTextfile != "" {
		ew.printf("\n[metrics]\n")
		ew.printf("  textfile = %q\n", r.MetricsTextfile)
	}

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}

	return strings.Join(quoted, ", ")
}
