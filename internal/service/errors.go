package service

import "errors"

var (
	// ErrLogNotFound indicates the requested daily log does not exist.
	ErrLogNotFound = errors.New("daily log not found")
	// ErrLogForbidden indicates the caller is not the owner or an assigned reviewer.
	ErrLogForbidden = errors.New("daily log access forbidden")
	// ErrLogNotEditable indicates the log content is frozen in its current status.
	ErrLogNotEditable = errors.New("daily log is not editable in its current status")
	// ErrContentLockedForRevision indicates a direct content edit while a revision is pending.
	ErrContentLockedForRevision = errors.New("content changes during revision must be sent with the resubmission")
	// ErrLogContentEmpty indicates the content was empty after sanitisation.
	ErrLogContentEmpty = errors.New("daily log content is empty")
	// ErrInvalidLogDate indicates the log date could not be parsed.
	ErrInvalidLogDate = errors.New("invalid log date")
	// ErrProgressForbidden indicates a student asked for another student's progress.
	ErrProgressForbidden = errors.New("progress access forbidden")
	// ErrInvalidHistoryLimit indicates an XP history limit outside 1..200.
	ErrInvalidHistoryLimit = errors.New("invalid history limit")

	// ErrAttachmentRequired indicates no file was sent.
	ErrAttachmentRequired = errors.New("attachment file is required")
	// ErrAttachmentTooLarge indicates the payload exceeded the configured limit.
	ErrAttachmentTooLarge = errors.New("attachment exceeds maximum allowed size")
	// ErrAttachmentTypeNotAllowed indicates the sniffed MIME type is neither a photo nor a document.
	ErrAttachmentTypeNotAllowed = errors.New("attachment type not allowed")
	// ErrStorageUnavailable indicates no file storage backend is configured.
	ErrStorageUnavailable = errors.New("attachment storage not configured")
)
