package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudvault/internal/api"
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List files and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}

	cmd.Flags().Int("limit", api.DefaultListLimit, "page size")
	cmd.Flags().Int("offset", 0, "number of entries to skip")

	return cmd
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <key-or-path>",
		Short: "Delete a file, or a folder with -r",
		Long: `Delete a file by its storage key. With --recursive (-r) the argument is a
folder path and the folder is deleted with all of its contents.`,
		Args: cobra.ExactArgs(1),
		RunE: runRm,
	}

	cmd.Flags().BoolP("recursive", "r", false, "delete a folder and its contents")

	return cmd
}

func newMkdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}

	cmd.Flags().String("in", "/", "parent folder")

	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key> [local-path]",
		Short: "Download a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}
}

// cleanRemotePath strips leading/trailing slashes, returns "" for root.
func cleanRemotePath(path string) string {
	return strings.Trim(path, "/")
}

func runLs(cmd *cobra.Command, args []string) error {
	cc, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := cc.requireSession(ctx); err != nil {
		return err
	}

	remotePath := ""
	if len(args) > 0 {
		remotePath = cleanRemotePath(args[0])
	}

	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	cc.Logger.Debug("ls", slog.String("path", remotePath))

	listing, err := cc.Client.ListFiles(ctx, remotePath, limit, offset)
	if err != nil {
		return fmt.Errorf("listing %q: %w", "/"+remotePath, err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, listing)
	}

	if len(listing.Items) == 0 {
		cc.Statusf("Folder is empty.\n")
		return nil
	}

	rows := make([][]string, 0, len(listing.Items))

	for i := range listing.Items {
		e := &listing.Items[i]

		name, size := e.Name, formatSize(e.Size)
		if e.IsFolder() {
			name += "/"
			size = "-"
		}

		rows = append(rows, []string{name, size, formatTime(e.LastModified), e.Path})
	}

	printTable(cc.Out, []string{"NAME", "SIZE", "MODIFIED", "KEY"}, rows)

	if shown := offset + len(listing.Items); listing.Total > shown {
		cc.Statusf("%d of %d entries shown; use --offset %d for more.\n", shown, listing.Total, shown)
	}

	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	cc, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := cc.requireSession(ctx); err != nil {
		return err
	}

	recursive, _ := cmd.Flags().GetBool("recursive")
	target := args[0]

	if recursive {
		if err := cc.Client.DeleteFolder(ctx, cleanRemotePath(target)); err != nil {
			return fmt.Errorf("deleting folder %q: %w", target, err)
		}

		cc.Statusf("Deleted folder %s\n", target)
	} else {
		if err := cc.Client.DeleteFile(ctx, target); err != nil {
			return fmt.Errorf("deleting %q: %w", target, err)
		}

		cc.Statusf("Deleted %s\n", target)
	}

	// Usage changed; refresh the cached profile so quota stays current.
	cc.Auth.RefreshProfile(ctx)

	return nil
}

func runMkdir(cmd *cobra.Command, args []string) error {
	cc, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}

	name, err := api.ValidateFolderName(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := cc.requireSession(ctx); err != nil {
		return err
	}

	parent, _ := cmd.Flags().GetString("in")

	entry, err := cc.Client.CreateFolder(ctx, name, cleanRemotePath(parent))
	if err != nil {
		return fmt.Errorf("creating folder %q: %w", name, err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, entry)
	}

	cc.Statusf("Created folder %s\n", "/"+cleanRemotePath(entry.Path))

	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	cc, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := cc.requireSession(ctx); err != nil {
		return err
	}

	key := args[0]

	link, err := cc.Client.DownloadURL(ctx, key)
	if err != nil {
		return downloadError(key, err)
	}

	localPath := ""
	if len(args) > 1 {
		localPath = args[1]
	}

	localPath = downloadTarget(localPath, link.FileName, key)

	n, err := saveLink(ctx, cc.Client, link, localPath)
	if err != nil {
		return downloadError(key, err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, map[string]any{"key": key, "path": localPath, "bytes": n})
	}

	cc.Statusf("Downloaded %s (%s) to %s\n", key, formatSize(n), localPath)

	return nil
}

// downloadTarget picks the local file name: an explicit path wins, a
// directory gets the server-suggested name appended, and with nothing given
// the file lands in the working directory.
func downloadTarget(localPath, suggested, key string) string {
	name := filepath.Base(suggested)
	if suggested == "" || name == "." || name == string(filepath.Separator) {
		name = filepath.Base(key)
	}

	if localPath == "" {
		return name
	}

	if info, err := os.Stat(localPath); err == nil && info.IsDir() {
		return filepath.Join(localPath, name)
	}

	return localPath
}

// saveLink streams a download link into path. The content is written to a
// temp file next to path and renamed into place only when complete.
func saveLink(ctx context.Context, client *api.Client, link *api.DownloadLink, path string) (int64, error) {
	dir := filepath.Dir(path)

	f, err := os.CreateTemp(dir, ".cloudvault-"+strconv.Itoa(os.Getpid())+"-*.partial")
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", path, err)
	}

	tmp := f.Name()

	n, err := client.FetchLink(ctx, link, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		os.Remove(tmp)
		return n, err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("saving %s: %w", path, err)
	}

	return n, nil
}

// downloadError adds the download-specific wording for storage failures.
func downloadError(key string, err error) error {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) || errors.Is(err, api.ErrMockDownload) {
		return fmt.Errorf("downloading %q: %s", key, api.DescribeDownload(err))
	}

	return fmt.Errorf("downloading %q: %w", key, err)
}
