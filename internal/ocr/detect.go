package ocr

import (
	"bytes"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/lab-extractor/constants"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
)

func kindFromExt(name string) entity.DocumentKind {
	switch constants.MapExtToFormat(filepath.Ext(name)) {
	case constants.PDF:
		return entity.KindPDF
	case constants.IMAGE:
		return entity.KindImage
	}
	return entity.KindUnknown
}

// DetectKind classifies a document by file extension, then declared content type,
// then by parsing the bytes as a PDF container and sniffing image signatures.
func DetectKind(filename, contentType string, data []byte) entity.DocumentKind {
	if k := kindFromExt(filename); k != entity.KindUnknown {
		return k
	}
	switch constants.MapContentTypeToFormat(contentType) {
	case constants.PDF:
		return entity.KindPDF
	case constants.IMAGE:
		return entity.KindImage
	}
	if len(data) == 0 {
		return entity.KindUnknown
	}
	if hasPDFHeader(data) {
		return entity.KindPDF
	}
	if _, err := pdfPageCount(data); err == nil {
		return entity.KindPDF
	}
	if isHEIC(data) || strings.HasPrefix(http.DetectContentType(data), "image/") {
		return entity.KindImage
	}
	return entity.KindUnknown
}

func hasPDFHeader(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, []byte("%PDF-"))
}

// isHEIC checks the ISO-BMFF ftyp brand used by HEIC/HEIF files.
func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "hevc", "heim", "heis", "mif1", "msf1":
		return true
	}
	return false
}

// imageExt picks a file extension for image bytes without a usable name.
func imageExt(filename string, data []byte) string {
	if ext := constants.NormalizeExt(filepath.Ext(filename)); constants.MapExtToFormat(ext) == constants.IMAGE {
		return ext
	}
	if isHEIC(data) {
		return "heic"
	}
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return "jpg"
	case "image/gif":
		return "gif"
	case "image/bmp":
		return "bmp"
	case "image/webp":
		return "webp"
	}
	return "png"
}
