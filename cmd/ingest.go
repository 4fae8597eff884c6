package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aerodoc/aerodoc/internal/app"
	"github.com/aerodoc/aerodoc/internal/config"
	"github.com/aerodoc/aerodoc/internal/rag"
)

// runIngest indexes local text or markdown files as pages of a document.
//
//	aerodoc ingest --doc poh-c172 manual.txt appendix.md
//
// Files are read in argument order. A form feed (\f) inside a file starts a
// new page, matching how pdftotext separates pages. Page numbers are
// assigned sequentially across all files, starting at 1.
func runIngest() error {
	ingestFlags := flag.NewFlagSet("ingest", flag.ContinueOnError)
	ingestFlags.SetOutput(os.Stderr)

	docID := ingestFlags.String("doc", "", "Document identifier (required)")

	args := []string{}
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}
	if err := ingestFlags.Parse(args); err != nil {
		return fmt.Errorf("parsing ingest flags: %w", err)
	}

	if *docID == "" {
		return fmt.Errorf("--doc is required")
	}
	files := ingestFlags.Args()
	if len(files) == 0 {
		return fmt.Errorf("at least one file is required")
	}

	pages, err := readPages(files)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	n, err := a.Engine.Ingest(ctx, *docID, pages)
	if err != nil {
		return fmt.Errorf("indexing %q: %w", *docID, err)
	}

	fmt.Printf("Indexed %d chunks from %d pages into document %q\n", n, len(pages), *docID)
	return nil
}

// readPages loads the given files and splits each on form feeds into pages.
// Blank pages are skipped; page numbers stay sequential across files.
func readPages(files []string) ([]rag.Page, error) {
	var pages []rag.Page
	number := 0
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for _, text := range strings.Split(string(data), "\f") {
			number++
			if strings.TrimSpace(text) == "" {
				continue
			}
			pages = append(pages, rag.Page{Number: number, Text: text})
		}
	}
	return pages, nil
}
