package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docextract/internal/config"
	"github.com/kailas-cloud/docextract/internal/domain"
	"github.com/kailas-cloud/docextract/internal/export"
	"github.com/kailas-cloud/docextract/internal/version"
)

const defaultImagePath = "images/sample.webp"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// Variables already present in the environment win over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "load .env: %v\n", err)
	}

	if len(args) > 0 && args[0] == "serve" {
		return serve(args[1:], stderr)
	}

	fs := flag.NewFlagSet("docextract", flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "print version and exit")
	xlsxPath := fs.String("xlsx", "", "also write line items and summary to this XLSX file")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: docextract [flags] [image]")
		fmt.Fprintln(stderr, "       docextract serve [flags]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *showVersion {
		fmt.Fprintf(stdout, "docextract %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		return 0
	}

	imagePath := defaultImagePath
	if fs.NArg() > 0 {
		imagePath = fs.Arg(0)
	}

	app, err := newApp(config.GetEnv())
	if err != nil {
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}
	defer app.Close()

	return extract(context.Background(), app, imagePath, *xlsxPath, stdout, stderr)
}

// extract runs the pipeline once and prints the result.
func extract(ctx context.Context, app *app, imagePath, xlsxPath string, stdout, stderr io.Writer) int {
	fmt.Fprintf(stdout, "Processing image: %s\n", imagePath)

	doc, err := app.pipeline.Run(ctx, imagePath)
	if err != nil {
		app.logger.Error("Extraction failed", zap.String("error_kind", domain.KindOf(err)), zap.Error(err))
		fmt.Fprintf(stderr, "%s: %v\n", domain.KindOf(err), err)
		return 1
	}

	if err := printDocument(stdout, doc); err != nil {
		fmt.Fprintf(stderr, "Error: write result: %v\n", err)
		return 1
	}

	if xlsxPath != "" {
		if err := writeXLSX(xlsxPath, doc); err != nil {
			app.logger.Error("XLSX export failed", zap.String("path", xlsxPath), zap.Error(err))
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		app.logger.Info("XLSX written", zap.String("path", xlsxPath))
	}
	return 0
}

// printDocument writes doc as indented JSON with non-ASCII and HTML characters left as is.
func printDocument(w io.Writer, doc *domain.Document) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func writeXLSX(path string, doc *domain.Document) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	w := bufio.NewWriter(f)
	if err := export.WriteXLSX(w, doc); err != nil {
		return err
	}
	return w.Flush()
}
