package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudvault/internal/sessionstore"
)

func newThemeCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "theme [light|dark]",
		Short:     "Show or set the display theme preference",
		Long:      "The theme is stored alongside the session and survives logout.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{sessionstore.ThemeLight, sessionstore.ThemeDark},
		RunE:      runTheme,
	}
}

func runTheme(cmd *cobra.Command, args []string) error {
	cc, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	if len(args) == 1 {
		if err := sessionstore.SaveTheme(ctx, cc.Store, args[0]); err != nil {
			return fmt.Errorf("saving theme: %w", err)
		}

		cc.Statusf("Theme set to %s.\n", args[0])

		return nil
	}

	theme, err := sessionstore.LoadTheme(ctx, cc.Store)
	if err != nil {
		return fmt.Errorf("loading theme: %w", err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, map[string]string{"theme": theme})
	}

	fmt.Fprintln(cc.Out, theme)

	return nil
}
