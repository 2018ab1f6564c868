package cli

import (
	"fmt"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// styler colors interactive output when stdout is a terminal. Piped
// output stays plain so transcripts diff cleanly.
type styler struct {
	enabled bool
	profile termenv.Profile
}

func newStyler() styler {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return styler{}
	}
	return styler{enabled: true, profile: termenv.ColorProfile()}
}

func (s styler) paint(text, color string) string {
	if !s.enabled {
		return text
	}
	return termenv.String(text).Foreground(s.profile.Color(color)).String()
}

func (s styler) story(text string) string {
	return text
}

func (s styler) prompt(text string) string {
	return s.paint(text, "#a78bfa")
}

func (s styler) option(index int, text string) string {
	return fmt.Sprintf("  %s %s", s.paint(fmt.Sprintf("[%d]", index), "#818cf8"), text)
}

func (s styler) faint(text string) string {
	if !s.enabled {
		return text
	}
	return termenv.String(text).Faint().String()
}

// PrintBanner outputs an ASCII art banner for interactive runs.
func PrintBanner(version string) {
	p := termenv.ColorProfile()
	lines := []string{
		`     _         _     _ `,
		` ___| |_ ___ _| |___| |`,
		`|_ -| '_| .'| | | . | |`,
		`|___|_,_|__,|_|_|___|_|`,
	}
	colors := []string{"#818cf8", "#a78bfa", "#c084fc", "#e879f9"}

	fmt.Println()
	for i, line := range lines {
		fmt.Println(termenv.String(line).Foreground(p.Color(colors[i])))
	}
	fmt.Printf("  %s\n\n", termenv.String("v"+version).Faint())
}
