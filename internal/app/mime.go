package app

import (
	"log/slog"
	"mime"
)

// assetTypes covers the embedded static files and the export downloads. Some
// container base images ship without /etc/mime.types.
var assetTypes = map[string]string{
	".css":  "text/css; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".png":  "image/png",
	".ico":  "image/x-icon",
	".csv":  "text/csv; charset=utf-8",
	".pdf":  "application/pdf",
}

func init() {
	for ext, typ := range assetTypes {
		if mime.TypeByExtension(ext) != "" {
			continue
		}
		if err := mime.AddExtensionType(ext, typ); err != nil {
			slog.Warn("register mime type", slog.String("ext", ext), slog.Any("error", err))
		}
	}
}
