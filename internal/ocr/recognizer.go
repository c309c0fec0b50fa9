package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
)

// Recognizer is the OCR capability: one prepared image in, its text out.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// Tesseract recognizes text with the tesseract CLI.
type Tesseract struct {
	bin         string
	lang        string
	tessdataDir string
	psm         int
	oem         int
	runner      Runner
	logger      *slog.Logger
}

func NewTesseract(cfg Config, runner Runner, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Tesseract{
		bin:         cfg.Tesseract,
		lang:        cfg.Language,
		tessdataDir: cfg.TessdataDir,
		psm:         cfg.PSM,
		oem:         cfg.OEM,
		runner:      runner,
		logger:      logger,
	}
}

// Recognize runs `tesseract <image> stdout -l <lang> [--oem N] [--psm N]`.
func (t *Tesseract) Recognize(ctx context.Context, imagePath string) (string, error) {
	args := []string{imagePath, "stdout", "-l", t.lang}
	if t.oem > 0 {
		args = append(args, "--oem", strconv.Itoa(t.oem))
	}
	if t.psm > 0 {
		args = append(args, "--psm", strconv.Itoa(t.psm))
	}
	if t.tessdataDir != "" {
		args = append(args, "--tessdata-dir", t.tessdataDir)
	}
	out, errb, err := t.runner.Run(ctx, t.bin, t.logger, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	return string(out), nil
}
