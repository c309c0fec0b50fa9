package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/lab-extractor/internal/common"
)

var pdfcpuInit sync.Once

func pdfPageCount(data []byte) (int, error) {
	pdfcpuInit.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu read: %w", err)
	}
	return ctx.PageCount, nil
}

// ValidatePDF rejects empty, malformed and zero-page PDFs and returns the page count.
func ValidatePDF(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, common.NewExtractionError(common.ErrCorruptDocument, "document is empty", nil)
	}
	n, err := pdfPageCount(data)
	if err != nil {
		return 0, common.NewExtractionError(common.ErrCorruptDocument, "document is not a valid PDF", err)
	}
	if n == 0 {
		return 0, common.NewExtractionError(common.ErrCorruptDocument, "PDF has no pages", nil)
	}
	return n, nil
}

// extractPDF rasterizes and recognizes every page. Documents above the large-file
// threshold are rasterized one page at a time; smaller ones in a single pdftoppm run
// with pages recognized in parallel.
func (e *Extractor) extractPDF(ctx context.Context, workDir string, data []byte) ([]string, []string, error) {
	n, err := ValidatePDF(data)
	if err != nil {
		return nil, nil, err
	}
	var warns []string
	if e.cfg.MaxPages > 0 && n > e.cfg.MaxPages {
		warns = append(warns, fmt.Sprintf("only the first %d of %d pages were processed", e.cfg.MaxPages, n))
		n = e.cfg.MaxPages
	}

	in := filepath.Join(workDir, "document.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, nil, fmt.Errorf("write pdf: %w", err)
	}

	large := int64(len(data)) > e.cfg.LargeFileThreshold
	e.logger.Info("ocr.pdf.start", "pages", n, "bytes", len(data), "paged", large, "dpi", e.cfg.DPI)

	var texts, w []string
	if large {
		texts, w, err = e.pdfPagesSequential(ctx, in, workDir, n)
	} else {
		texts, w, err = e.pdfPagesParallel(ctx, in, workDir, n)
	}
	return texts, append(warns, w...), err
}

func (e *Extractor) pdfPagesSequential(ctx context.Context, in, workDir string, n int) ([]string, []string, error) {
	texts := make([]string, n)
	var warns []string
	for p := 1; p <= n; p++ {
		if err := ctx.Err(); err != nil {
			return nil, warns, err
		}
		imgs, err := e.rasterize(ctx, in, workDir, p, p)
		if err != nil || len(imgs) == 0 {
			e.logger.Warn("ocr.pdf.page_raster_failed", "page", p, "error", err)
			warns = append(warns, fmt.Sprintf("page %d: rasterization failed", p))
			continue
		}
		txt, err := e.ocrPage(ctx, imgs[0])
		for _, img := range imgs {
			_ = os.Remove(img)
		}
		if err != nil {
			e.logger.Warn("ocr.pdf.page_failed", "page", p, "error", err)
			warns = append(warns, fmt.Sprintf("page %d: %v", p, err))
			continue
		}
		texts[p-1] = txt
	}
	return texts, warns, nil
}

func (e *Extractor) pdfPagesParallel(ctx context.Context, in, workDir string, n int) ([]string, []string, error) {
	imgs, err := e.rasterize(ctx, in, workDir, 1, n)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, common.NewExtractionError(common.ErrCorruptDocument, "PDF pages could not be rendered", err)
	}
	if len(imgs) == 0 {
		return nil, nil, common.NewExtractionError(common.ErrCorruptDocument, "pdftoppm produced no images", nil)
	}

	texts := make([]string, len(imgs))
	var (
		mu    sync.Mutex
		warns []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.PageWorkers)
	for i, img := range imgs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			txt, err := e.ocrPage(gctx, img)
			if err != nil {
				e.logger.Warn("ocr.pdf.page_failed", "page", i+1, "error", err)
				mu.Lock()
				warns = append(warns, fmt.Sprintf("page %d: %v", i+1, err))
				mu.Unlock()
				return nil
			}
			texts[i] = txt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, warns, err
	}
	if err := ctx.Err(); err != nil {
		return nil, warns, err
	}
	return texts, warns, nil
}

// rasterize runs `pdftoppm -r DPI -png -f first -l last in prefix` and returns the
// generated images in page order.
func (e *Extractor) rasterize(ctx context.Context, in, workDir string, first, last int) ([]string, error) {
	prefix := filepath.Join(workDir, "p"+strconv.Itoa(first))
	args := []string{
		"-r", strconv.Itoa(e.cfg.DPI), "-png",
		"-f", strconv.Itoa(first), "-l", strconv.Itoa(last),
		in, prefix,
	}
	if _, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, e.logger, args...); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	// pdftoppm zero-pads page numbers consistently within one run
	sort.Strings(matches)
	return matches, nil
}
