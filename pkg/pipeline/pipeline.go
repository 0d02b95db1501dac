// Package pipeline runs a scan over every PDF of an input folder.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-git/go-billy/v5"

	"github.com/xhad/annotscan/internal/models"
	"github.com/xhad/annotscan/internal/types"
	"github.com/xhad/annotscan/pkg/fsutil"
	"github.com/xhad/annotscan/pkg/pdfdoc"
	"github.com/xhad/annotscan/pkg/processor"
)

const DefaultOutputBase = "Output"

type Config struct {
	FS         billy.Filesystem
	OutputBase string
	Highlight  pdfdoc.HighlightStyle
	Processor  types.DocumentProcessor

	// OnDiscover receives the files about to be processed, in order.
	OnDiscover func(files []string)
	// OnOutcome is called after each document.
	OnOutcome func(outcome models.Outcome)
}

type Pipeline struct {
	config Config
}

func New(config Config) *Pipeline {
	if config.FS == nil {
		config.FS = fsutil.NewOS()
	}
	if config.OutputBase == "" {
		config.OutputBase = DefaultOutputBase
	}
	if config.Processor == nil {
		p := processor.NewWithConfig(processor.ProcessorConfig{
			FS:        config.FS,
			Highlight: config.Highlight,
		})
		config.Processor = &p
	}
	return &Pipeline{config: config}
}

// OutputDir is the folder matching copies for term are written to.
func (p *Pipeline) OutputDir(term models.SearchTerm) string {
	return filepath.Join(p.config.OutputBase, term.Folder)
}

// Run processes every PDF of inputFolder in lexicographic order and returns
// the files that had at least one matching annotation. Per-document failures
// go to OnOutcome and do not stop the run. A missing input folder returns an
// empty result and a KindInputFolderMissing error. A term whose folder name
// would leave the output base is rejected before anything is written.
func (p *Pipeline) Run(inputFolder, search string) (*models.MatchResult, error) {
	result := models.NewMatchResult()

	if !fsutil.IsDir(p.config.FS, inputFolder) {
		return result, models.NewScanError(models.KindInputFolderMissing, "", errors.New(inputFolder))
	}

	files, err := p.discover(inputFolder)
	if err != nil {
		return result, err
	}

	term := processor.NewSearchTerm(search)
	if term.Folder != "" {
		if err := processor.ValidateTerm(search); err != nil {
			return result, err
		}
	}
	outDir := p.OutputDir(term)
	if err := p.config.FS.MkdirAll(outDir, 0o755); err != nil {
		return result, fmt.Errorf("failed to create output folder %s: %w", outDir, err)
	}

	if p.config.OnDiscover != nil {
		p.config.OnDiscover(files)
	}

	for _, name := range files {
		doc := models.Document{
			Name:       name,
			SourcePath: filepath.Join(inputFolder, name),
			OutputPath: processor.OutputPath(p.config.OutputBase, term, name),
		}
		outcome := p.config.Processor.Process(doc, term)
		if outcome.Matched() {
			result.Add(name)
		}
		if p.config.OnOutcome != nil {
			p.config.OnOutcome(outcome)
		}
	}

	return result, nil
}

// discover lists the regular .pdf files of dir, sorted by name.
func (p *Pipeline) discover(dir string) ([]string, error) {
	entries, err := p.config.FS.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.NewScanError(models.KindInputFolderMissing, "", err)
		}
		return nil, fmt.Errorf("failed to read input folder %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !fsutil.IsPDF(entry.Name()) {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}
