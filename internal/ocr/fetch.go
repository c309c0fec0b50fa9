package ocr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/lab-extractor/constants"
	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
)

// FetchConfig controls remote downloads.
type FetchConfig struct {
	DownloadTimeout time.Duration
	HeadTimeout     time.Duration
	MaxBytes        int64
	Cloudinary      CloudinaryCredentials
}

// Fetcher downloads remote documents. Object-storage URLs get a signed-download retry
// when the anonymous fetch fails.
type Fetcher struct {
	cfg    FetchConfig
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewFetcher(cfg FetchConfig, client *http.Client, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{}
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 360 * time.Second
	}
	if cfg.HeadTimeout <= 0 {
		cfg.HeadTimeout = 10 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = constants.MaxUploadBytesDefault
	}
	return &Fetcher{cfg: cfg, client: client, logger: logger, now: time.Now}
}

// Fetch downloads rawURL and detects its kind: URL extension, then a HEAD
// content-type, then the bytes themselves.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (entity.RawDocument, error) {
	v := common.NewValidator().Field("document_url", rawURL, common.Required, common.HTTPURL)
	if err := common.ValidateAndReturnError(v); err != nil {
		return entity.RawDocument{}, err
	}
	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	u, _ := url.Parse(rawURL)
	filename := path.Base(u.Path)

	data, ct, err := f.get(ctx, reqID, rawURL)
	if err != nil {
		asset, ok := ParseCloudinaryURL(rawURL)
		if !ok || !f.cfg.Cloudinary.Configured() || !errors.Is(err, common.ErrSourceUnavailable) {
			return entity.RawDocument{}, err
		}
		f.logger.Warn("ocr.fetch.signed_retry", "req_id", reqID, "public_id", asset.PublicID, "error", err)
		data, ct, err = f.get(ctx, reqID, SignedDownloadURL(asset, f.cfg.Cloudinary, f.now()))
		if err != nil {
			return entity.RawDocument{}, err
		}
		if filename == "" || path.Ext(filename) == "" {
			filename = path.Base(asset.PublicID)
			if asset.Format != "" {
				filename += "." + asset.Format
			}
		}
	}

	doc := entity.RawDocument{Data: data, Filename: filename, Origin: rawURL}
	if kind := kindFromExt(filename); kind != entity.KindUnknown {
		doc.Kind = kind
		doc.MIMEType = ct
		return doc, nil
	}
	headCT, herr := f.Head(ctx, rawURL)
	if herr != nil {
		f.logger.Debug("ocr.fetch.head_failed", "req_id", reqID, "error", herr)
		headCT = ct
	}
	doc.MIMEType = headCT
	doc.Kind = DetectKind("", headCT, data)
	return doc, nil
}

// Head returns the Content-Type reported for rawURL.
func (f *Fetcher) Head(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.HeadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build head request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	_ = resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("head: status %d", resp.StatusCode)
	}
	return resp.Header.Get("Content-Type"), nil
}

func (f *Fetcher) get(ctx context.Context, reqID, rawURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.DownloadTimeout)
	defer cancel()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", common.NewExtractionError(common.ErrSourceUnavailable, "invalid document url", err)
	}
	f.logger.Info("ocr.fetch.request", "req_id", reqID, "url", redact(rawURL))

	resp, err := f.client.Do(req)
	if err != nil {
		msg := "document unreachable"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "document download timed out"
		}
		f.logger.Error("ocr.fetch.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, "", common.NewExtractionError(common.ErrSourceUnavailable, msg, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			f.logger.Warn("ocr.fetch.body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("ocr.fetch.status", "req_id", reqID, "status", resp.StatusCode)
		return nil, "", common.NewExtractionError(common.ErrSourceUnavailable,
			fmt.Sprintf("document download returned HTTP %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, "", common.NewExtractionError(common.ErrSourceUnavailable, "document download interrupted", err)
	}
	if int64(len(data)) > f.cfg.MaxBytes {
		return nil, "", common.NewAppError("DOCUMENT_TOO_LARGE",
			fmt.Sprintf("document exceeds %d bytes", f.cfg.MaxBytes), common.ErrInvalidInput)
	}
	f.logger.Info("ocr.fetch.response",
		"req_id", reqID,
		"bytes", len(data),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return data, resp.Header.Get("Content-Type"), nil
}

// redact drops the query string, which carries signatures for signed URLs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}
