package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/suitenumerique/ui-kit/pkg/model"
)

// TermProfile holds the detected terminal color profile, computed once at
// package init.
var TermProfile colorprofile.Profile

func init() {
	TermProfile = colorprofile.Detect(os.Stdout, os.Environ())
}

// ThemeBg returns the given hex color for TrueColor terminals and
// lipgloss.NoColor{} otherwise, so lower-color terminals keep their own
// background.
func ThemeBg(hex string) lipgloss.TerminalColor {
	if TermProfile < colorprofile.TrueColor {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(hex)
}

// ThemeFg returns the given hex color for ANSI256+ terminals and ANSI white
// for 16-color or lower terminals.
func ThemeFg(hex string) lipgloss.TerminalColor {
	if TermProfile < colorprofile.ANSI256 {
		return lipgloss.ANSIColor(7)
	}
	return lipgloss.Color(hex)
}

type Theme struct {
	Renderer *lipgloss.Renderer

	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Subtext   lipgloss.AdaptiveColor

	// Node kinds
	Folder lipgloss.AdaptiveColor
	File   lipgloss.AdaptiveColor

	Border    lipgloss.AdaptiveColor
	Highlight lipgloss.AdaptiveColor
	Muted     lipgloss.AdaptiveColor

	Base     lipgloss.Style
	Selected lipgloss.Style
	Header   lipgloss.Style

	// Pre-computed row styles, created once instead of per frame.
	MutedText     lipgloss.Style
	SecondaryText lipgloss.Style
	PrimaryBold   lipgloss.Style
	Branch        lipgloss.Style
	SectionTitle  lipgloss.Style
	ViewMore      lipgloss.Style
	DropTarget    lipgloss.Style
	Grabbed       lipgloss.Style
	Spinner       lipgloss.Style
	Error         lipgloss.Style
}

// DefaultTheme returns the Dracula-inspired adaptive theme.
func DefaultTheme(r *lipgloss.Renderer) Theme {
	t := Theme{
		Renderer: r,

		Primary:   ColorPrimary,
		Secondary: ColorSecondary,
		Subtext:   ColorSubtext,

		Folder: lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#FFB86C"},
		File:   lipgloss.AdaptiveColor{Light: "#2684FF", Dark: "#4C9AFF"},

		Border:    lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#44475A"},
		Highlight: lipgloss.AdaptiveColor{Light: "#E0E0E0", Dark: "#44475A"},
		Muted:     ColorMuted,
	}

	t.Base = r.NewStyle().Foreground(ColorText)

	t.Selected = r.NewStyle().
		Background(t.Highlight).
		Border(lipgloss.ThickBorder(), false, false, false, true).
		BorderForeground(t.Primary).
		Bold(true)

	t.Header = r.NewStyle().
		Background(t.Primary).
		Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}).
		Bold(true).
		Padding(0, 1)

	t.MutedText = r.NewStyle().Foreground(t.Muted)
	t.SecondaryText = r.NewStyle().Foreground(t.Secondary)
	t.PrimaryBold = r.NewStyle().Foreground(t.Primary).Bold(true)
	t.Branch = r.NewStyle().Foreground(t.Muted)
	t.SectionTitle = r.NewStyle().Foreground(ColorInfo).Bold(true)
	t.ViewMore = r.NewStyle().Foreground(ColorInfo).Italic(true)
	t.DropTarget = r.NewStyle().Foreground(ColorSuccess).Bold(true)
	t.Grabbed = r.NewStyle().Foreground(ThemeFg("#FFD700")).Bold(true)
	t.Spinner = r.NewStyle().Foreground(ColorInfo).Bold(true)
	t.Error = r.NewStyle().Foreground(ColorDanger)

	return t
}

// KindIcon returns the glyph and color drawn before a document title.
func (t Theme) KindIcon(k model.Kind) (string, lipgloss.AdaptiveColor) {
	switch k {
	case model.KindFolder:
		return "▣", t.Folder
	case model.KindFile:
		return "▤", t.File
	default:
		return "·", t.Subtext
	}
}

// TestTheme returns a theme for tests.
func TestTheme() Theme {
	return DefaultTheme(lipgloss.NewRenderer(os.Stdout))
}

// ThemeByName resolves the ui.theme config value. "mono" drops every color
// and keeps only bold and reverse attributes.
func ThemeByName(name string, r *lipgloss.Renderer) (Theme, error) {
	switch name {
	case "", "auto", "default":
		return DefaultTheme(r), nil
	case "mono":
		r.SetColorProfile(termenv.Ascii)
		return DefaultTheme(r), nil
	default:
		return Theme{}, fmt.Errorf("unknown theme %q", name)
	}
}
