package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudvault/internal/upload"
)

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <file>...",
		Short: "Upload files",
		Long: `Upload one or more local files. Each file is checked against the size,
type, and batch limits first; the accepted files must then fit in the
remaining storage quota together, or nothing is uploaded. Files upload
concurrently and fail independently.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runPut,
	}

	cmd.Flags().String("to", "/", "destination folder")

	return cmd
}

// putOutput is the JSON schema for `put --json`.
type putOutput struct {
	Rejected  []upload.Rejection `json:"rejected"`
	Items     []upload.Item      `json:"items"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
}

func runPut(cmd *cobra.Command, args []string) error {
	cc, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}

	if err := cc.requireSession(cmd.Context()); err != nil {
		return err
	}

	target, _ := cmd.Flags().GetString("to")
	target = cleanRemotePath(target)

	sources, rejected := localSources(args)

	q := upload.NewQueue(cc.Client, cc.Quota, upload.Options{
		MaxFileSize:   cc.Cfg.MaxFileSize,
		MaxBatchFiles: cc.Cfg.MaxBatchFiles,
		AllowedTypes:  cc.Cfg.AllowedTypes,
		Parallel:      cc.Cfg.ParallelUploads,
		SuccessLinger: cc.Cfg.SuccessLinger,
		OnSuccess: func(it upload.Item) {
			cc.Auth.AdjustQuotaEstimate(it.Size)
		},
		Observer: cc.Metrics,
	}, cc.Logger)
	defer q.Close()

	report := q.AddFiles(sources, target)
	rejected = append(rejected, report.Rejected...)

	for _, r := range rejected {
		cc.Statusf("Skipped %s: %s\n", r.Name, r.Reason)
	}

	if report.BatchErr != nil {
		return report.BatchErr
	}

	if len(report.Accepted) == 0 {
		return errors.New("no files to upload")
	}

	parent, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ctx := shutdownContext(parent, cc.Logger)

	var stopProgress func()
	if cc.showProgress() {
		stopProgress = renderProgress(q, cc.ErrOut, len(report.Accepted))
	}

	summary := q.Run(ctx)

	if stopProgress != nil {
		stopProgress()
	}

	items := q.Snapshot()

	// Usage changed on the server; replace the local estimate with the
	// authoritative figure.
	if summary.Succeeded > 0 {
		if _, ok := cc.Auth.RefreshProfile(cmd.Context()); !ok {
			cc.Logger.Debug("profile refresh after upload failed")
		}
	}

	cc.Logger.Info("upload batch finished",
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
	)

	if cc.Flags.JSON {
		if err := printJSON(cc.Out, putOutput{
			Rejected:  rejected,
			Items:     items,
			Succeeded: summary.Succeeded,
			Failed:    summary.Failed,
		}); err != nil {
			return err
		}
	} else {
		printUploadResults(cc.Out, items)
		cc.Statusf("%s\n", summary.Message())
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d upload(s) failed", summary.Failed, summary.Failed+summary.Succeeded)
	}

	return nil
}

// localSources stats each path. Paths that cannot be read become rejections
// so the rest of the batch still goes through admission.
func localSources(paths []string) ([]upload.Source, []upload.Rejection) {
	var (
		sources  []upload.Source
		rejected []upload.Rejection
	)

	for _, p := range paths {
		src, err := upload.FileSource(p)
		if err != nil {
			rejected = append(rejected, upload.Rejection{Name: p, Reason: err.Error(), Err: err})
			continue
		}

		sources = append(sources, src)
	}

	return sources, rejected
}

// showProgress reports whether live progress should be drawn on stderr.
func (cc *CLIContext) showProgress() bool {
	if cc.Flags.Quiet || cc.Flags.JSON {
		return false
	}

	f, ok := cc.ErrOut.(*os.File)

	return ok && isatty.IsTerminal(f.Fd())
}

// renderProgress draws one aggregate progress line until the returned stop
// function is called.
func renderProgress(q *upload.Queue, w io.Writer, total int) func() {
	ch := q.Subscribe()

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		progress := make(map[string]int, total)
		done := 0

		for ev := range ch {
			switch ev.Kind {
			case upload.EventProgress, upload.EventStatus:
				progress[ev.Item.ID] = ev.Item.Progress
			default:
				continue
			}

			// A failed file counts as finished for the aggregate bar.
			if ev.Kind == upload.EventStatus && (ev.Item.Status == upload.Success || ev.Item.Status == upload.Error) {
				progress[ev.Item.ID] = 100
				done++
			}

			sum := 0
			for _, p := range progress {
				sum += p
			}

			pct := sum / total
			fmt.Fprintf(w, "\rUploading %d/%d %s %3d%%", done, total, progressBar(pct, 30), pct)
		}

		fmt.Fprint(w, "\n")
	}()

	return func() {
		q.Unsubscribe(ch)
		wg.Wait()
	}
}

// printUploadResults lists each item's final state.
func printUploadResults(w io.Writer, items []upload.Item) {
	rows := make([][]string, 0, len(items))

	for _, it := range items {
		detail := it.Key
		if it.Status == upload.Error {
			detail = it.Error
		}

		rows = append(rows, []string{it.Name, formatSize(it.Size), it.Status.String(), detail})
	}

	printTable(w, []string{"NAME", "SIZE", "STATUS", "DETAIL"}, rows)
}
