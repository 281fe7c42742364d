package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/moffa90/go-fwupdate/catalog"
)

// newLogger writes human-readable text to a terminal and JSON records
// everywhere else.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if isTerminal(w) {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// listingStyles colours the build listing.
type listingStyles struct {
	bullet  lipgloss.Style
	current lipgloss.Style
}

func newListingStyles(w io.Writer, color bool) listingStyles {
	renderer := lipgloss.NewRenderer(w)
	if !color || !isTerminal(w) {
		renderer.SetColorProfile(termenv.Ascii)
	}
	return listingStyles{
		bullet:  renderer.NewStyle().Foreground(lipgloss.Color("4")),
		current: renderer.NewStyle().Foreground(lipgloss.Color("3")),
	}
}

// renderListing prints the builds a user can switch to, newest first.
func renderListing(w io.Writer, listing catalog.Listing, color bool) error {
	styles := newListingStyles(w, color)

	var b strings.Builder
	b.WriteString("Switch to any of these builds with `fwupdate -b <build name>`\n")
	for _, build := range listing.Entries {
		label := catalog.Label(build)
		if build.Tag() == "" {
			label = styles.current.Render(label)
		}
		b.WriteString(styles.bullet.Render("  o "))
		b.WriteString(label)
		b.WriteByte('\n')
	}
	if listing.Truncated {
		b.WriteString("  ...\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
