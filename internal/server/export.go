package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
	"github.com/joseph-ayodele/lab-extractor/internal/export"
	"github.com/joseph-ayodele/lab-extractor/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func maxCodeLength(field string, value interface{}) *common.ValidationError {
	return common.MaxLength(field, value, 64)
}

type HistoryReader interface {
	History(ctx context.Context, code string, from, to *time.Time) ([]entity.HistoryPoint, error)
}

// Exporter renders stored results as XLSX.
type Exporter interface {
	HistoryXLSX(ctx context.Context, code string, from, to *time.Time) ([]byte, error)
	ResultsXLSX(ctx context.Context, testType string, from, to *time.Time) ([]byte, error)
}

type ExportHandler struct {
	history HistoryReader
	xlsx    Exporter
	logger  *slog.Logger
}

func NewExportHandler(history HistoryReader, xlsx Exporter, logger *slog.Logger) *ExportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportHandler{history: history, xlsx: xlsx, logger: logger}
}

type historyResponse struct {
	Code   string                `json:"code"`
	From   string                `json:"from,omitempty"`
	To     string                `json:"to,omitempty"`
	Points []entity.HistoryPoint `json:"points"`
}

// History handles GET /parameters/:code/history?from=YYYY-MM-DD&to=YYYY-MM-DD&format=xlsx.
func (h *ExportHandler) History(c *gin.Context) {
	code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
	v := common.NewValidator().Field("code", code, common.Required, common.Code, maxCodeLength)
	if err := common.ValidateAndReturnError(v); err != nil {
		writeError(c, err)
		return
	}
	from, to, err := dateWindow(c)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	if strings.EqualFold(c.Query("format"), "xlsx") {
		b, err := h.xlsx.HistoryXLSX(ctx, code, from, to)
		if err != nil {
			h.logger.Error("http.history.export_failed", "code", code, "error", err)
			writeError(c, err)
			return
		}
		attachment(c, fmt.Sprintf("%s-history.xlsx", strings.ToLower(code)), b)
		return
	}

	from, to = export.Window(from, to)
	points, err := h.history.History(ctx, code, from, to)
	if err != nil {
		h.logger.Error("http.history.failed", "code", code, "error", err)
		writeError(c, err)
		return
	}
	if points == nil {
		points = []entity.HistoryPoint{}
	}
	resp := historyResponse{Code: code, Points: points}
	if from != nil {
		resp.From = from.Format(time.DateOnly)
	}
	if to != nil {
		resp.To = to.Format(time.DateOnly)
	}
	c.JSON(http.StatusOK, resp)
}

// Results handles GET /results/export?test_type=CBC&from=...&to=... and always
// answers with a workbook.
func (h *ExportHandler) Results(c *gin.Context) {
	from, to, err := dateWindow(c)
	if err != nil {
		writeError(c, err)
		return
	}
	testType := strings.ToUpper(strings.TrimSpace(c.Query("test_type")))
	b, err := h.xlsx.ResultsXLSX(c.Request.Context(), testType, from, to)
	if err != nil {
		h.logger.Error("http.results.export_failed", "test_type", testType, "error", err)
		writeError(c, err)
		return
	}
	name := "lab-results.xlsx"
	if testType != "" {
		name = strings.ToLower(testType) + "-results.xlsx"
	}
	attachment(c, name, b)
}

func dateWindow(c *gin.Context) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if s := strings.TrimSpace(c.Query("from")); s != "" {
		t, err := utils.ParseYMD(s)
		if err != nil {
			return nil, nil, invalid("from must be YYYY-MM-DD")
		}
		from = &t
	}
	if s := strings.TrimSpace(c.Query("to")); s != "" {
		t, err := utils.ParseYMD(s)
		if err != nil {
			return nil, nil, invalid("to must be YYYY-MM-DD")
		}
		to = &t
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, invalid("to must not be before from")
	}
	return from, to, nil
}

func attachment(c *gin.Context, filename string, b []byte) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, b)
}
