package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/xhad/annotscan/internal/models"
	"github.com/xhad/annotscan/internal/ui"
	cfgPkg "github.com/xhad/annotscan/pkg/config"
	"github.com/xhad/annotscan/pkg/fsutil"
	"github.com/xhad/annotscan/pkg/pipeline"
	"github.com/xhad/annotscan/pkg/processor"
)

var rootCmd = &cobra.Command{
	Use:   "annotscan [input-folder] [search-term]",
	Short: "Highlight PDF comments that mention a search term",
	Long: `Scan every PDF in the input folder for annotations (comments) containing the
search term, ignoring case and spaces. Matching annotations are highlighted in
a copy written to Output/<search-term-without-spaces>/; the input folder is
never modified.

Without arguments the input folder and term come from the config file.`,
	Version:       version,
	Args:          cobra.MaximumNArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := parseFlags(cmd, args)
		if err != nil {
			return err
		}
		return run(config, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("output", "", "Output base directory")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.Flags().Bool("no-progress", false, "Disable the progress bar")
	rootCmd.Flags().BoolP("verbose", "v", false, "Print the outcome of every file")
}

// parseFlags reads the config file and applies flags and positional
// arguments on top of it.
func parseFlags(cmd *cobra.Command, args []string) (*cfgPkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	config, err := cfgPkg.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if output, _ := cmd.Flags().GetString("output"); output != "" {
		config.Output.BaseDir = output
	}
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		config.UI.Color = false
	}
	if f := cmd.Flags().Lookup("no-progress"); f != nil && f.Value.String() == "true" {
		config.UI.Progress = false
	}
	if f := cmd.Flags().Lookup("verbose"); f != nil && f.Value.String() == "true" {
		config.UI.Verbose = true
	}
	if len(args) > 0 {
		config.Input.Folder = args[0]
	}
	if len(args) > 1 {
		config.Search.Term = args[1]
	}

	if errs := config.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}
	return config, nil
}

func run(config *cfgPkg.Config, stdout, stderr io.Writer) error {
	ui.SetColor(config.UI.Color)

	input, err := fsutil.Resolve(config.Input.Folder)
	if err != nil {
		return err
	}
	output, err := fsutil.Resolve(config.Output.BaseDir)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	var failures []models.Outcome
	p := pipeline.New(pipeline.Config{
		FS:         fsutil.NewOS(),
		OutputBase: output,
		Highlight:  config.HighlightStyle(),
		OnDiscover: func(files []string) {
			if config.UI.Progress && len(files) > 0 {
				bar = ui.NewProgressBar(stderr, len(files), "Scanning annotations")
			}
		},
		OnOutcome: func(o models.Outcome) {
			if bar != nil {
				bar.Describe(color.BlueString("Scanning %s", o.File))
				bar.Add(1)
			}
			if o.Err != nil {
				failures = append(failures, o)
			}
			if config.UI.Verbose && bar == nil && o.Err == nil {
				fmt.Fprintln(stderr, ui.FormatOutcome(o))
			}
		},
	})

	result, err := p.Run(input, config.Search.Term)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		var se *models.ScanError
		if errors.As(err, &se) {
			return err
		}
		return fmt.Errorf("failed to run scan: %w", err)
	}

	for _, f := range failures {
		fmt.Fprintln(stderr, ui.FormatError(f.Err))
	}

	outDir := filepath.Join(config.Output.BaseDir, processor.FolderName(config.Search.Term))
	fmt.Fprint(stdout, ui.FormatMatches(result.Files(), outDir))
	return nil
}
