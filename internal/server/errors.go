package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/lab-extractor/internal/common"
)

const codeFileTooLarge = "FILE_TOO_LARGE"

type errorDetail struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
}

// errorBody is the JSON shape of every failed request. Category tells the caller
// whether to re-upload (document_unreadable) or enter results by hand (no_test_data).
type errorBody struct {
	Error errorDetail `json:"error"`
}

func statusFor(err error) int {
	var ae *common.AppError
	if errors.As(err, &ae) && ae.Code == codeFileTooLarge {
		return http.StatusRequestEntityTooLarge
	}
	switch {
	case errors.Is(err, common.ErrSourceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, common.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, common.ErrCorruptDocument),
		errors.Is(err, common.ErrInvalidInput),
		errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrEmptyExtraction),
		errors.Is(err, common.ErrNoParametersExtracted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// message hides internal causes from callers.
func message(err error) string {
	var ae *common.AppError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	if common.ErrorCategory(err) == common.CategoryInternal {
		return "internal error"
	}
	return err.Error()
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), errorBody{Error: errorDetail{
		Code:     common.ErrorCode(err),
		Message:  message(err),
		Category: common.ErrorCategory(err),
	}})
}
