// Package term detects what the attached terminal can render.
package term

import (
	"os"

	"github.com/mattn/go-isatty"
)

// Caps describes an output stream.
type Caps struct {
	TTY        bool
	Color      bool
	Hyperlinks bool
}

// Detect inspects f and the environment. Non-terminals get plain text.
func Detect(f *os.File) Caps {
	return detect(f, os.Getenv)
}

func detect(f *os.File, getenv func(string) string) Caps {
	tty := f != nil && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
	if !tty {
		return Caps{}
	}
	return Caps{
		TTY:        true,
		Color:      getenv("NO_COLOR") == "" && getenv("TERM") != "dumb",
		Hyperlinks: supportsHyperlinks(getenv),
	}
}

func supportsHyperlinks(getenv func(string) string) bool {
	term := getenv("TERM")
	if term == "" || term == "dumb" || term == "alacritty" {
		return false
	}
	for _, key := range []string{
		"WT_SESSION",
		"VTE_VERSION",
		"KONSOLE_VERSION",
		"KITTY_WINDOW_ID",
		"WEZTERM_EXECUTABLE",
		"DOMTERM",
		"TERM_PROGRAM",
	} {
		if getenv(key) != "" {
			return true
		}
	}
	return false
}

// Link renders url as an OSC 8 hyperlink when supported, else label.
func (c Caps) Link(label string, url string) string {
	if url == "" {
		return label
	}
	if label == "" {
		label = url
	}
	if !c.Hyperlinks {
		return label
	}
	return "\x1b]8;;" + url + "\x1b\\" + label + "\x1b]8;;\x1b\\"
}
