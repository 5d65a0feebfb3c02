package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tonimelisma/cloudvault/internal/api"
	"github.com/tonimelisma/cloudvault/internal/quota"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with a username or email and password",
		Long: `Log in to the storage server. The password is read from the terminal
without echo, or from the first line of stdin with --password-stdin.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().StringP("user", "u", "", "username or email")
	cmd.Flags().Bool("password-stdin", false, "read the password from stdin")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the session and remove saved tokens",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}

	cmd.Flags().Bool("local", false, "only clear local state, do not notify the server")

	return cmd
}

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE:  runRegister,
	}

	cmd.Flags().String("username", "", "username (3-30 letters, digits, underscores)")
	cmd.Flags().String("email", "", "email address")
	cmd.Flags().Bool("password-stdin", false, "read the password from stdin")

	return cmd
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated user",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func newQuotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Display storage usage",
		Args:  cobra.NoArgs,
		RunE:  runQuota,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}

	fromStdin, _ := cmd.Flags().GetBool("password-stdin")
	prompt := newPrompter(cmd.InOrStdin(), cc.ErrOut)

	identifier, _ := cmd.Flags().GetString("user")
	if identifier == "" {
		if identifier, err = prompt.line("Username or email: "); err != nil {
			return err
		}
	}

	password, err := prompt.secret("Password: ", fromStdin)
	if err != nil {
		return err
	}

	user, err := cc.Auth.Login(cmd.Context(), identifier, password)
	if user == nil && err != nil {
		return err
	}

	if err != nil {
		// Logged in, but the session will not survive this process.
		cc.Logger.Warn("session not saved", slog.String("error", err.Error()))
		cc.Statusf("Warning: logged in, but the session could not be saved.\n")
	}

	cc.Statusf("Logged in as %s.\n", user.Username)

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	local, _ := cmd.Flags().GetBool("local")

	// Initialize loads the stored tokens; a failed revalidation does not
	// matter here because the session is being discarded anyway.
	if err := cc.Auth.Initialize(ctx); err != nil {
		cc.Logger.Debug("session validation before logout failed", slog.String("error", err.Error()))
	}

	if err := cc.Auth.Logout(ctx, !local); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}

	cc.Statusf("Logged out.\n")

	return nil
}

func runRegister(cmd *cobra.Command, _ []string) error {
	cc, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}

	fromStdin, _ := cmd.Flags().GetBool("password-stdin")
	prompt := newPrompter(cmd.InOrStdin(), cc.ErrOut)

	var req api.RegisterRequest

	req.Username, _ = cmd.Flags().GetString("username")
	if req.Username == "" {
		if req.Username, err = prompt.line("Username: "); err != nil {
			return err
		}
	}

	req.Email, _ = cmd.Flags().GetString("email")
	if req.Email == "" {
		if req.Email, err = prompt.line("Email: "); err != nil {
			return err
		}
	}

	if req.Password, err = prompt.secret("Password: ", fromStdin); err != nil {
		return err
	}

	if fromStdin {
		req.ConfirmPassword = req.Password
	} else if req.ConfirmPassword, err = prompt.secret("Confirm password: ", false); err != nil {
		return err
	}

	conf, err := cc.Auth.Register(cmd.Context(), req)
	if err != nil {
		return err
	}

	msg := "Account created."
	if conf != nil && conf.Message != "" {
		msg = conf.Message
	}

	cc.Statusf("%s Run 'cloudvault login' to sign in.\n", msg)

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	IsAdmin      bool       `json:"isAdmin"`
	TokenExpires *time.Time `json:"tokenExpires,omitempty"`
	Quota        quota.Info `json:"quota"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}

	if err := cc.requireSession(cmd.Context()); err != nil {
		return err
	}

	user := cc.Auth.User()
	out := whoamiOutput{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		IsAdmin:  user.IsAdmin,
		Quota:    cc.Quota.Info(),
	}

	if exp, ok := cc.Auth.TokenExpiry(); ok {
		out.TokenExpires = &exp
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, out)
	}

	fmt.Fprintf(cc.Out, "User:     %s\n", out.Username)
	fmt.Fprintf(cc.Out, "Email:    %s\n", out.Email)

	if out.IsAdmin {
		fmt.Fprintf(cc.Out, "Role:     admin\n")
	}

	fmt.Fprintf(cc.Out, "Storage:  %s of %s used\n", formatSize(out.Quota.TotalSize), formatSize(out.Quota.Quota))

	if out.TokenExpires != nil {
		fmt.Fprintf(cc.Out, "Session:  expires %s\n", formatTime(*out.TokenExpires))
	}

	return nil
}

func runQuota(cmd *cobra.Command, _ []string) error {
	cc, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}

	if err := cc.requireSession(cmd.Context()); err != nil {
		return err
	}

	info := cc.Quota.Info()

	if cc.Flags.JSON {
		return printJSON(cc.Out, info)
	}

	fmt.Fprintf(cc.Out, "%s %.1f%%\n", progressBar(int(info.UsagePercentage), 30), info.UsagePercentage)
	fmt.Fprintf(cc.Out, "Used:      %s\n", formatSize(info.TotalSize))
	fmt.Fprintf(cc.Out, "Quota:     %s\n", formatSize(info.Quota))
	fmt.Fprintf(cc.Out, "Remaining: %s\n", formatSize(info.RemainingQuota))
	fmt.Fprintf(cc.Out, "Files:     %d\n", info.FilesCount)

	return nil
}

// prompter reads answers from the terminal or a piped stdin.
type prompter struct {
	in  io.Reader
	r   *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, r: bufio.NewReader(in), out: out}
}

// line prompts and reads one trimmed line.
func (p *prompter) line(label string) (string, error) {
	fmt.Fprint(p.out, label)

	s, err := p.r.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || s == "") {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}

	return strings.TrimSpace(s), nil
}

// secret reads a password. On a terminal the input is not echoed; otherwise
// (or with fromStdin) the next line of input is used as is.
func (p *prompter) secret(label string, fromStdin bool) (string, error) {
	f, isFile := p.in.(*os.File)
	if fromStdin || !isFile || !term.IsTerminal(int(f.Fd())) {
		s, err := p.r.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || s == "") {
			return "", fmt.Errorf("reading password: %w", err)
		}

		return strings.TrimRight(s, "\r\n"), nil
	}

	fmt.Fprint(p.out, label)

	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(p.out)

	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	return string(b), nil
}
