package service

import (
	"mime"
	"path/filepath"
)

// previewMetadata is the minimal contract send_files needs from the preview builder collaborator:
// a best-effort MIME type by extension. Thumbnail/text-snippet preview generation belongs to
// that external collaborator and is out of this engine's scope; previewKind/previewData are left
// empty here and simply pass through whatever the store already holds on resume.
func previewMetadata(path string) (mimeType *string, previewKind *string, previewData []byte) {
	ext := filepath.Ext(path)
	if ext == "" {
		return nil, nil, nil
	}
	t := mime.TypeByExtension(ext)
	if t == "" {
		return nil, nil, nil
	}
	return &t, nil, nil
}
