package ocr

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// convertHEIC converts a HEIC/HEIF image to PNG with the configured converter
// ("heif-convert" | "magick" | "sips").
// When cacheDir and hashHex are set the PNG is kept at {cacheDir}/{hashHex}.png and
// reused; cleanup is then nil. Otherwise the PNG lives in a temp dir removed by cleanup.
func convertHEIC(
	ctx context.Context,
	r Runner,
	logger *slog.Logger,
	converter string,
	in string,
	cacheDir string,
	hashHex string,
) (string, func(), error) {
	var cached string
	if cacheDir != "" && hashHex != "" {
		cached = filepath.Join(cacheDir, hashHex+".png")
		if st, err := os.Stat(cached); err == nil && !st.IsDir() {
			logger.Debug("ocr.heic.cache_hit", "cache", cached)
			return cached, nil, nil
		}
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return "", nil, fmt.Errorf("heic cache dir: %w", err)
		}
	}

	tmpDir, err := os.MkdirTemp("", "lab-heic-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }
	out := filepath.Join(tmpDir, "image.png")

	var args []string
	switch converter {
	case "heif-convert", "magick":
		args = []string{in, out}
	case "sips":
		args = []string{"-s", "format", "png", in, "--out", out}
	default:
		cleanup()
		return "", nil, fmt.Errorf("heic converter %q not supported (heif-convert | magick | sips)", converter)
	}
	if _, errb, err := r.Run(ctx, converter, logger, args...); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("%s: %w: %s", converter, err, truncate(string(errb), 512))
	}
	if _, err := os.Stat(out); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("heic conversion produced no output: %w", err)
	}

	if cached == "" {
		return out, cleanup, nil
	}
	defer cleanup()
	if err := os.Rename(out, cached); err != nil {
		// cross-device rename: copy instead
		if err := copyFile(out, cached); err != nil {
			return "", nil, fmt.Errorf("persist heic png: %w", err)
		}
	}
	logger.Debug("ocr.heic.cached", "cache", cached)
	return cached, nil, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
