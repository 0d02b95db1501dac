package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/annotscan/internal/models"
)

var (
	faint = color.New(color.Faint).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
)

// SetColor turns colored output on or off for the whole process.
func SetColor(enabled bool) {
	color.NoColor = !enabled
}

// FormatMatches renders the final list of highlighted files.
func FormatMatches(files []string, outDir string) string {
	var sb strings.Builder

	if len(files) == 0 {
		sb.WriteString("\nNo PDFs found containing the search string.\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("\n%s %s:\n",
		bold("PDFs containing the search string have been highlighted and saved to"),
		green(outDir)))
	for _, f := range files {
		sb.WriteString(fmt.Sprintf("- %s\n", f))
	}
	return sb.String()
}

// FormatError renders a scan failure the way it is reported on the terminal.
func FormatError(err error) string {
	var se *models.ScanError
	if errors.As(err, &se) && se.Kind == models.KindInputFolderMissing {
		return red(fmt.Sprintf("Error: Folder '%v' does not exist", se.Err))
	}
	return red(fmt.Sprintf("Error: %v", err))
}

// FormatOutcome renders one processed document for verbose output.
func FormatOutcome(o models.Outcome) string {
	switch o.State {
	case models.StatePersisted:
		return fmt.Sprintf("%s %s %s", green("✓"), o.File, faint(fmt.Sprintf("(%d highlighted)", o.Highlights)))
	case models.StateFailed:
		return fmt.Sprintf("%s %s", red("✗"), FormatError(o.Err))
	default:
		return fmt.Sprintf("%s %s", faint("-"), faint(o.File))
	}
}

// NewProgressBar returns a bar over total documents writing to w.
func NewProgressBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(!color.NoColor),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
}
