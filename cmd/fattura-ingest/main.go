package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/mfresc/fattura-ingest/internal/ingest"
	"github.com/mfresc/fattura-ingest/internal/ocr"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

var inputExtensions = map[string]bool{
	".xml":  true,
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".heic": true,
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("fattura-ingest")
	var (
		inputDir    = fs.StringLong("input", ".", "Directory containing invoice files (.xml, .pdf, scans)")
		dbPath      = fs.StringLong("db", "fattura-ingest.db", "Repository database file path")
		exportsPath = fs.StringLong("exports", "./exports", "Directory for OCR text exports")
		projectID   = fs.StringLong("project", "default", "Project the invoices belong to")
		engineType  = fs.StringLong("engine", "tesseract", "Recognition engine: 'tesseract' or 'gemini'")
		language    = fs.StringLong("lang", "ita", "Recognition language")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("FATTURA_INGEST"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	slog.Info("Initializing repositories...")
	db, err := ingest.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize repository database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var engine ocr.Engine
	switch *engineType {
	case "tesseract":
		slog.Info("Initializing Tesseract engine...", "language", *language)
		engine = ocr.NewTesseractEngine()
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini engine...", "model", *geminiModel)
		gemini, err := ocr.NewGeminiEngine(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
		defer gemini.Close()
		engine = gemini
	default:
		slog.Error("Invalid engine type", "type", *engineType, "valid", "tesseract or gemini")
		os.Exit(1)
	}

	exports, err := ingest.NewLocalTextStore(*exportsPath)
	if err != nil {
		slog.Error("Failed to initialize export store", "error", err)
		os.Exit(1)
	}

	files, err := collectFiles(*inputDir)
	if err != nil {
		slog.Error("Failed to read input directory", "error", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		slog.Error("No invoice files found", "input", *inputDir)
		os.Exit(1)
	}
	slog.Info("Starting batch", "files", len(files), "project", *projectID)

	extractor := ocr.NewExtractor(engine, *language)
	service := ingest.NewService(db, db, exports, extractor, *projectID)

	report, err := service.RunBatch(files, func(percent int) {
		slog.Debug("Progress", "percent", percent)
	})
	if err != nil {
		slog.Error("Batch aborted", "error", err)
		os.Exit(1)
	}

	for _, e := range report.Errors {
		slog.Warn("File failed", "file", e.FileName, "reason", e.Reason)
	}
	fmt.Printf("created: %d  skipped duplicates: %d  failed: %d  extraction failures: %d\n",
		report.Created, report.SkippedDuplicate, report.Failed, report.ExtractionFailed)

	if report.Created == 0 && len(report.Errors) > 0 {
		os.Exit(1)
	}
}

// collectFiles reads every supported invoice file in dir, non-recursively,
// in directory order.
func collectFiles(dir string) ([]ingest.File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []ingest.File
	for _, entry := range entries {
		if entry.IsDir() || !inputExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		files = append(files, ingest.File{Name: entry.Name(), Data: data})
	}
	return files, nil
}
