package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/lab-extractor/constants"
	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
	"github.com/joseph-ayodele/lab-extractor/internal/normalize"
	"github.com/joseph-ayodele/lab-extractor/internal/ocr"
)

// multipart overhead allowed on top of the file limit
const formSlack = 1 << 20

// DocumentProcessor runs the extraction pipeline for one document.
type DocumentProcessor interface {
	Process(ctx context.Context, src ocr.Source) entity.ExtractionOutcome
}

type DocumentHandler struct {
	proc      DocumentProcessor
	maxUpload int64
	timeout   time.Duration
	logger    *slog.Logger
}

func NewDocumentHandler(proc DocumentProcessor, cfg common.ServerConfig, logger *slog.Logger) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = constants.MaxUploadBytesDefault
	}
	return &DocumentHandler{proc: proc, maxUpload: maxUpload, timeout: cfg.RequestTimeout, logger: logger}
}

type processRequest struct {
	DocumentURL string `json:"document_url"`
}

// ProcessDocument handles POST /process-document. The body is either a multipart
// form with a "file" part (or a document_url field) or a JSON {document_url}.
func (h *DocumentHandler) ProcessDocument(c *gin.Context) {
	ctx, cancel := common.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	src, err := h.source(c)
	if err != nil {
		h.logger.Warn("http.process.rejected",
			"req_id", common.RequestIDFromContext(ctx),
			"code", common.ErrorCode(err),
			"error", err,
		)
		writeError(c, err)
		return
	}

	out := h.proc.Process(ctx, src)
	if out.Err != nil {
		writeError(c, out.Err)
		return
	}
	resp := normalize.BuildResponse(out.Results, out.TestType)
	if resp.DocumentID == "" && out.DocumentID != nil {
		resp.DocumentID = out.DocumentID.String()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *DocumentHandler) source(c *gin.Context) (ocr.Source, error) {
	ct := c.ContentType()
	if strings.HasPrefix(ct, "multipart/") {
		return h.multipartSource(c)
	}

	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return ocr.Source{}, invalid("body must be multipart with a file or JSON with document_url")
	}
	return urlSource(req.DocumentURL)
}

func (h *DocumentHandler) multipartSource(c *gin.Context) (ocr.Source, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+formSlack)
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ocr.Source{}, h.tooLarge()
		}
		return ocr.Source{}, invalid("invalid multipart form")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		if u := strings.TrimSpace(c.PostForm("document_url")); u != "" {
			return urlSource(u)
		}
		return ocr.Source{}, invalid("file or document_url is required")
	}
	if fh.Size > h.maxUpload {
		return ocr.Source{}, h.tooLarge()
	}
	data, err := readPart(fh)
	if err != nil {
		return ocr.Source{}, common.NewExtractionError(common.ErrCorruptDocument, "could not read uploaded file", err)
	}
	if len(data) == 0 {
		return ocr.Source{}, common.NewExtractionError(common.ErrCorruptDocument, "uploaded file is empty", nil)
	}
	return ocr.Source{
		Data:     data,
		Filename: fh.Filename,
		MIMEType: fh.Header.Get("Content-Type"),
	}, nil
}

func (h *DocumentHandler) tooLarge() error {
	return common.NewAppError(codeFileTooLarge,
		fmt.Sprintf("file exceeds the %d MB upload limit", h.maxUpload>>20), common.ErrInvalidInput)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func urlSource(raw string) (ocr.Source, error) {
	u := strings.TrimSpace(raw)
	v := common.NewValidator().Field("document_url", u, common.Required, common.HTTPURL)
	if err := common.ValidateAndReturnError(v); err != nil {
		return ocr.Source{}, err
	}
	return ocr.Source{URL: u}, nil
}

func invalid(msg string) error {
	return common.NewAppError("INVALID_INPUT", msg, common.ErrInvalidInput)
}
