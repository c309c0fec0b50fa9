// Package ocr turns lab documents (PDFs and images from uploads, local paths or
// remote URLs) into page-ordered text.
package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/lab-extractor/constants"
	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
)

type Config struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Language    string // default "eng"
	TessdataDir string
	DPI         int // rasterization DPI, default 150
	PSM         int // 6 = uniform block of text
	OEM         int // 3 = default engine

	LargeFileThreshold int64 // PDFs above this are rasterized page by page
	PageWorkers        int   // parallel page recognition for small PDFs
	MaxPages           int   // 0 = no limit

	HeicConverter    string // heif-convert | magick | sips
	TempDir          string // parent of per-document work dirs; "" = os.TempDir()
	ArtifactCacheDir string // HEIC->PNG cache; "" disables it
}

// Source is one document to extract: exactly one of URL, Path and Data is used.
type Source struct {
	URL      string
	Path     string
	Data     []byte
	Filename string
	MIMEType string
	Kind     entity.DocumentKind // declared kind; detected when empty or unknown
}

type Extractor struct {
	cfg        Config
	runner     Runner
	recognizer Recognizer
	fetcher    *Fetcher
	logger     *slog.Logger
}

type Option func(*Extractor)

// WithRunner replaces the command runner used for pdftoppm and converters.
func WithRunner(r Runner) Option { return func(e *Extractor) { e.runner = r } }

// WithRecognizer replaces the tesseract recognizer.
func WithRecognizer(r Recognizer) Option { return func(e *Extractor) { e.recognizer = r } }

func WithFetcher(f *Fetcher) Option { return func(e *Extractor) { e.fetcher = f } }

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 150
	}
	if cfg.LargeFileThreshold <= 0 {
		cfg.LargeFileThreshold = constants.LargeFileThresholdDefault
	}
	if cfg.PageWorkers <= 0 {
		cfg.PageWorkers = 4
	}
	if cfg.HeicConverter == "" {
		cfg.HeicConverter = "magick"
	}
	e := &Extractor{cfg: cfg, runner: ExecRunner{}, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	if e.recognizer == nil {
		e.recognizer = NewTesseract(cfg, e.runner, logger)
	}
	if e.fetcher == nil {
		e.fetcher = NewFetcher(FetchConfig{}, nil, logger)
	}
	return e
}

// Load resolves a Source into document bytes with a detected kind.
func (e *Extractor) Load(ctx context.Context, src Source) (entity.RawDocument, error) {
	var doc entity.RawDocument
	switch {
	case src.URL != "":
		d, err := e.fetcher.Fetch(ctx, src.URL)
		if err != nil {
			return entity.RawDocument{}, err
		}
		doc = d
	case src.Path != "":
		data, err := os.ReadFile(src.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return entity.RawDocument{}, common.NewExtractionError(common.ErrSourceUnavailable, "file not found: "+src.Path, err)
			}
			return entity.RawDocument{}, common.NewExtractionError(common.ErrSourceUnavailable, "cannot read "+src.Path, err)
		}
		doc = entity.RawDocument{Data: data, Filename: filepath.Base(src.Path), Origin: src.Path, MIMEType: src.MIMEType}
	case src.Data != nil || src.Filename != "":
		doc = entity.RawDocument{Data: src.Data, Filename: src.Filename, Origin: src.Filename, MIMEType: src.MIMEType}
	default:
		return entity.RawDocument{}, common.NewAppError("INVALID_SOURCE", "a file, path or document_url is required", common.ErrInvalidInput)
	}
	if src.Filename != "" && doc.Filename == "" {
		doc.Filename = src.Filename
	}
	switch {
	case src.Kind != "" && src.Kind != entity.KindUnknown:
		doc.Kind = src.Kind
	case doc.Kind == "" || doc.Kind == entity.KindUnknown:
		doc.Kind = DetectKind(doc.Filename, doc.MIMEType, doc.Data)
	}
	return doc, nil
}

// Extract loads src and extracts its text.
func (e *Extractor) Extract(ctx context.Context, src Source) (entity.ExtractedText, error) {
	doc, err := e.Load(ctx, src)
	if err != nil {
		return entity.ExtractedText{}, err
	}
	return e.ExtractDocument(ctx, doc)
}

// ExtractDocument OCRs doc. Temporary files are removed on every return path.
// Failed pages are reported as warnings; a document with no text at all is an
// EmptyExtraction error.
func (e *Extractor) ExtractDocument(ctx context.Context, doc entity.RawDocument) (entity.ExtractedText, error) {
	start := time.Now()
	if len(doc.Data) == 0 {
		return entity.ExtractedText{}, common.NewExtractionError(common.ErrCorruptDocument, "document is empty", nil)
	}
	kind := doc.Kind
	if kind == "" || kind == entity.KindUnknown {
		kind = DetectKind(doc.Filename, doc.MIMEType, doc.Data)
	}
	if kind == entity.KindUnknown {
		return entity.ExtractedText{}, common.NewExtractionError(common.ErrUnsupportedFormat,
			"document is neither a PDF nor a supported image", nil)
	}

	workDir, err := os.MkdirTemp(e.cfg.TempDir, "lab-ocr-*")
	if err != nil {
		return entity.ExtractedText{}, fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			e.logger.Warn("ocr.cleanup_failed", "dir", workDir, "error", err)
		}
	}()

	e.logger.Debug("ocr.extract.start", "kind", kind, "bytes", len(doc.Data), "filename", doc.Filename)

	var (
		pages  []string
		warns  []string
		method string
	)
	switch kind {
	case entity.KindPDF:
		method = "pdf-ocr"
		pages, warns, err = e.extractPDF(ctx, workDir, doc.Data)
	default:
		method = "image-ocr"
		pages, warns, err = e.extractImage(ctx, workDir, doc)
	}
	if err != nil {
		if ctx.Err() != nil {
			e.logger.Warn("ocr.extract.cancelled", "kind", kind, "error", ctx.Err())
			return entity.ExtractedText{}, fmt.Errorf("ocr cancelled: %w", ctx.Err())
		}
		return entity.ExtractedText{}, err
	}

	out := entity.NewExtractedText(pages)
	out.Method = method
	out.Warnings = warns
	out.Duration = time.Since(start)
	if out.IsEmpty() {
		e.logger.Warn("ocr.extract.empty", "kind", kind, "pages", len(pages), "warnings", len(warns))
		var cause error
		if len(warns) > 0 {
			cause = errors.New(strings.Join(warns, "; "))
		}
		return out, common.NewExtractionError(common.ErrEmptyExtraction, "no text could be recognized in the document", cause)
	}
	e.logger.Info("ocr.extract.ok",
		"kind", kind,
		"pages", len(pages),
		"chars", len(out.Text),
		"warnings", len(warns),
		"elapsed_ms", out.Duration.Milliseconds(),
	)
	return out, nil
}

func (e *Extractor) extractImage(ctx context.Context, workDir string, doc entity.RawDocument) ([]string, []string, error) {
	ext := imageExt(doc.Filename, doc.Data)
	in := filepath.Join(workDir, "image."+ext)
	if err := os.WriteFile(in, doc.Data, 0o600); err != nil {
		return nil, nil, fmt.Errorf("write image: %w", err)
	}

	if constants.IsHEICExt(ext) || isHEIC(doc.Data) {
		sum := sha256.Sum256(doc.Data)
		out, cleanup, err := convertHEIC(ctx, e.runner, e.logger, e.cfg.HeicConverter, in, e.cfg.ArtifactCacheDir, hex.EncodeToString(sum[:]))
		if err != nil {
			e.logger.Error("ocr.heic.failed", "error", err)
			return nil, nil, common.NewExtractionError(common.ErrUnsupportedFormat, "HEIC image could not be converted", err)
		}
		if cleanup != nil {
			defer cleanup()
		}
		in = out
	}

	f, err := os.Open(in)
	if err != nil {
		return nil, nil, err
	}
	_, _, err = image.DecodeConfig(f)
	_ = f.Close()
	if err != nil {
		return nil, nil, common.NewExtractionError(common.ErrCorruptDocument, "image could not be decoded", err)
	}

	txt, err := e.ocrPage(ctx, in)
	if err != nil {
		e.logger.Warn("ocr.image.failed", "error", err)
		return []string{""}, []string{err.Error()}, nil
	}
	return []string{txt}, nil, nil
}

// ocrPage preprocesses one page image and recognizes it. When preprocessing fails the
// original image is recognized instead.
func (e *Extractor) ocrPage(ctx context.Context, img string) (string, error) {
	target := img
	pre := filepath.Join(filepath.Dir(img), "pre-"+strings.TrimSuffix(filepath.Base(img), filepath.Ext(img))+".png")
	if err := preprocessFile(img, pre); err != nil {
		e.logger.Warn("ocr.preprocess_failed", "image", filepath.Base(img), "error", err)
	} else {
		target = pre
		defer func() { _ = os.Remove(pre) }()
	}
	txt, err := e.recognizer.Recognize(ctx, target)
	if err != nil {
		return "", err
	}
	return Normalize(txt), nil
}
