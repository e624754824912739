package constants

import "strings"

// RasterFormats holds the page image formats pdftoppm can emit for us.
var RasterFormats = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
}

// ReviewConfidenceThreshold: records below it are flagged needsReview.
const ReviewConfidenceThreshold = 0.7

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "jpg" {
		return "jpeg"
	}
	return ext
}

// MimeForFormat returns the MIME type for a raster format, or "" if unsupported.
func MimeForFormat(format string) string {
	return RasterFormats[NormalizeExt(format)]
}
