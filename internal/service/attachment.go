package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/noah-isme/internlog-api/internal/models"
)

// FileStorage abstracts the attachment upload destination.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

var documentMimeTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"application/vnd.oasis.opendocument.text":                                   {},
	"text/plain":                                                                {},
	"text/csv":                                                                  {},
}

// attachmentPayload is a validated upload ready for storage.
type attachmentPayload struct {
	name     string
	kind     models.AttachmentKind
	mimeType string
	content  []byte
}

// readAttachment loads the upload with a hard size cap and classifies it by sniffed content,
// ignoring the client-declared content type.
func readAttachment(file *multipart.FileHeader, maxSize int64) (attachmentPayload, error) {
	if file == nil {
		return attachmentPayload{}, ErrAttachmentRequired
	}
	if file.Size > maxSize {
		return attachmentPayload{}, ErrAttachmentTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		return attachmentPayload{}, fmt.Errorf("open attachment: %w", err)
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, maxSize+1)); err != nil {
		return attachmentPayload{}, fmt.Errorf("read attachment: %w", err)
	}
	if int64(buf.Len()) > maxSize {
		return attachmentPayload{}, ErrAttachmentTooLarge
	}

	detected := mimetype.Detect(buf.Bytes())
	kind, ok := classifyMime(detected)
	if !ok {
		return attachmentPayload{}, ErrAttachmentTypeNotAllowed
	}

	return attachmentPayload{
		name:     sanitizeFileName(file.Filename, detected.Extension()),
		kind:     kind,
		mimeType: baseMime(detected.String()),
		content:  buf.Bytes(),
	}, nil
}

func classifyMime(detected *mimetype.MIME) (models.AttachmentKind, bool) {
	for mime := detected; mime != nil; mime = mime.Parent() {
		base := baseMime(mime.String())
		if strings.HasPrefix(base, "image/") {
			return models.AttachmentPhoto, true
		}
		if _, ok := documentMimeTypes[base]; ok {
			return models.AttachmentDocument, true
		}
	}
	return "", false
}

func baseMime(value string) string {
	if idx := strings.Index(value, ";"); idx >= 0 {
		value = value[:idx]
	}
	return strings.ToLower(strings.TrimSpace(value))
}

func sanitizeFileName(name, fallbackExt string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = fallbackExt
	}
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = "attachment"
	}
	return base + ext
}
