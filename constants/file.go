package constants

import "strings"

// Document kinds understood by the text extraction adapter.
const (
	PDF   = "pdf"
	IMAGE = "image"
)

// AllowedExtensions holds the file extensions accepted for lab report ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"bmp":  {},
	"tif":  {},
	"tiff": {},
	"webp": {},
	"heic": {},
	"heif": {},
}

var imageExts = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "bmp": {},
	"tif": {}, "tiff": {}, "webp": {}, "heic": {}, "heif": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// MapExtToFormat returns PDF, IMAGE or "" for an extension with or without the dot.
func MapExtToFormat(ext string) string {
	ext = NormalizeExt(ext)
	if ext == "pdf" {
		return PDF
	}
	if _, ok := imageExts[ext]; ok {
		return IMAGE
	}
	return ""
}

// MapContentTypeToFormat classifies a MIME type header value.
func MapContentTypeToFormat(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case ct == "application/pdf", strings.HasSuffix(ct, "/pdf"):
		return PDF
	case strings.HasPrefix(ct, "image/"):
		return IMAGE
	}
	return ""
}

func IsHEICExt(ext string) bool {
	ext = NormalizeExt(ext)
	return ext == "heic" || ext == "heif"
}

// Size limits.
const (
	MaxUploadBytesDefault     = 50 << 20
	LargeFileThresholdDefault = 5_000_000
	RawExcerptLen             = 500
)
