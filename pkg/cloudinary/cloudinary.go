package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const uploadTimeout = 30 * time.Second

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// AttachmentStore keeps daily log photos and documents in Cloudinary.
type AttachmentStore struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary-backed attachment store.
func New(cfg Config, logger zerolog.Logger) (*AttachmentStore, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	folder := strings.Trim(cfg.Folder, "/")
	if folder == "" {
		folder = "internlog/attachments"
	}

	return &AttachmentStore{
		client: cld,
		folder: folder,
		logger: logger.With().Str("component", "attachment_store").Logger(),
	}, nil
}

// Upload stores one attachment and returns its secure URL. Existing assets are never overwritten.
func (s *AttachmentStore) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	publicID := PublicID(name)
	result, err := s.client.Upload.Upload(ctx, reader, uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     publicID,
		ResourceType: "auto",
		Overwrite:    api.Bool(false),
		Tags:         []string{"internlog", "daily-log"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload attachment: %w", err)
	}
	if result.Error.Message != "" {
		return "", errors.New("cloudinary: " + result.Error.Message)
	}

	s.logger.Info().
		Str("public_id", result.PublicID).
		Str("resource_type", result.ResourceType).
		Int("bytes", result.Bytes).
		Msg("attachment uploaded")

	return result.SecureURL, nil
}

// PublicID derives a collision-free Cloudinary public id from a file name.
func PublicID(name string) string {
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	if base == "" {
		base = "attachment"
	}

	return base + "-" + uuid.NewString()[:8]
}
