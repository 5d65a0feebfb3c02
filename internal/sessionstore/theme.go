package sessionstore

import (
	"context"
	"errors"
	"fmt"
)

// Themes accepted by SaveTheme.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// ErrInvalidTheme is returned by SaveTheme for anything but light or dark.
var ErrInvalidTheme = errors.New("sessionstore: theme must be light or dark")

// LoadTheme returns the saved theme, or ThemeLight when none is saved or the
// saved value is unrecognized.
func LoadTheme(ctx context.Context, s Store) (string, error) {
	v, err := GetOptional(ctx, s, KeyTheme)
	if err != nil {
		return ThemeLight, err
	}

	if v != ThemeDark {
		return ThemeLight, nil
	}

	return v, nil
}

// SaveTheme persists theme.
func SaveTheme(ctx context.Context, s Store, theme string) error {
	if theme != ThemeLight && theme != ThemeDark {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, theme)
	}

	return s.Set(ctx, KeyTheme, theme)
}
