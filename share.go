package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudvault/internal/api"
)

func newShareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Manage public share links",
	}

	cmd.AddCommand(newShareCreateCmd())
	cmd.AddCommand(newShareListCmd())
	cmd.AddCommand(newShareRevokeCmd())

	return cmd
}

func newShareCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <file-id>",
		Short: "Create a share link for a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runShareCreate,
	}

	cmd.Flags().Int("expires-days", api.DefaultShareExpiryDays, "days until the link expires")
	cmd.Flags().Int("max-access", 0, "maximum number of downloads (0 = unlimited)")
	cmd.Flags().Bool("password-stdin", false, "protect the link with a password read from stdin")

	return cmd
}

func newShareListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your share links",
		Args:  cobra.NoArgs,
		RunE:  runShareList,
	}
}

func newShareRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <share-id>",
		Short: "Deactivate a share link",
		Args:  cobra.ExactArgs(1),
		RunE:  runShareRevoke,
	}
}

func newPublicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "public <code> [local-path]",
		Short: "Inspect or download a public share",
		Long: `Show the file behind a share code. With --download the file is saved to
local-path (or the working directory). No login is needed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runPublic,
	}

	cmd.Flags().Bool("download", false, "download the shared file")
	cmd.Flags().Bool("password-stdin", false, "read the share password from stdin")

	return cmd
}

func runShareCreate(cmd *cobra.Command, args []string) error {
	cc, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := cc.requireSession(ctx); err != nil {
		return err
	}

	days, _ := cmd.Flags().GetInt("expires-days")
	maxAccess, _ := cmd.Flags().GetInt("max-access")
	withPassword, _ := cmd.Flags().GetBool("password-stdin")

	if days < 1 {
		return fmt.Errorf("--expires-days must be at least 1, got %d", days)
	}

	opts := api.ShareOptions{ExpiresIn: days}
	if maxAccess > 0 {
		opts.MaxAccess = &maxAccess
	}

	if withPassword {
		if opts.Password, err = newPrompter(cmd.InOrStdin(), cc.ErrOut).secret("Share password: ", true); err != nil {
			return err
		}
	}

	share, err := cc.Client.ShareFile(ctx, args[0], opts)
	if err != nil {
		return fmt.Errorf("sharing %q: %w", args[0], err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, share)
	}

	fmt.Fprintln(cc.Out, share.ShareURL)
	cc.Statusf("Share %s expires %s\n", share.ShortCode, formatTime(share.ExpiresAt))

	return nil
}

func runShareList(cmd *cobra.Command, _ []string) error {
	cc, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := cc.requireSession(ctx); err != nil {
		return err
	}

	shares, err := cc.Client.Shares(ctx)
	if err != nil {
		return fmt.Errorf("listing shares: %w", err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, shares)
	}

	if len(shares) == 0 {
		cc.Statusf("No share links.\n")
		return nil
	}

	rows := make([][]string, 0, len(shares))

	for i := range shares {
		s := &shares[i]

		access := strconv.Itoa(s.AccessCount)
		if s.MaxAccess != nil {
			access += "/" + strconv.Itoa(*s.MaxAccess)
		}

		state := "active"
		if !s.IsActive {
			state = "revoked"
		}

		rows = append(rows, []string{s.ID, s.FileName, s.ShortCode, access, formatTime(s.ExpiresAt), state})
	}

	printTable(cc.Out, []string{"ID", "FILE", "CODE", "ACCESS", "EXPIRES", "STATE"}, rows)

	return nil
}

func runShareRevoke(cmd *cobra.Command, args []string) error {
	cc, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := cc.requireSession(ctx); err != nil {
		return err
	}

	if err := cc.Client.DeactivateShare(ctx, args[0]); err != nil {
		return fmt.Errorf("revoking share %q: %w", args[0], err)
	}

	cc.Statusf("Revoked share %s\n", args[0])

	return nil
}

func runPublic(cmd *cobra.Command, args []string) error {
	cc, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	code := args[0]

	info, err := cc.Client.PublicShare(ctx, code)
	if err != nil {
		return fmt.Errorf("looking up share %q: %w", code, err)
	}

	download, _ := cmd.Flags().GetBool("download")
	if !download {
		if cc.Flags.JSON {
			return printJSON(cc.Out, info)
		}

		fmt.Fprintf(cc.Out, "File:     %s\n", info.FileName)
		fmt.Fprintf(cc.Out, "Size:     %s\n", formatSize(info.FileSize))
		fmt.Fprintf(cc.Out, "Expires:  %s\n", formatTime(info.ExpiresAt))

		if info.RequiresPassword {
			fmt.Fprintf(cc.Out, "Password: required\n")
		}

		return nil
	}

	var link *api.DownloadLink

	if info.RequiresPassword {
		fromStdin, _ := cmd.Flags().GetBool("password-stdin")

		password, perr := newPrompter(cmd.InOrStdin(), cc.ErrOut).secret("Share password: ", fromStdin)
		if perr != nil {
			return perr
		}

		link, err = cc.Client.VerifySharePassword(ctx, code, password)
	} else {
		link, err = cc.Client.PublicShareDownload(ctx, code)
	}

	if err != nil {
		return downloadError(code, err)
	}

	localPath := ""
	if len(args) > 1 {
		localPath = args[1]
	}

	suggested := link.FileName
	if suggested == "" {
		suggested = info.FileName
	}

	localPath = downloadTarget(localPath, suggested, code)

	n, err := saveLink(ctx, cc.Client, link, localPath)
	if err != nil {
		return downloadError(code, err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, map[string]any{"code": code, "path": localPath, "bytes": n})
	}

	cc.Statusf("Downloaded %s (%s) to %s\n", info.FileName, formatSize(n), localPath)

	return nil
}
