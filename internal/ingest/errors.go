package ingest

import (
	"errors"
	"fmt"

	"tripchat-service/internal/models"
)

// ErrRoomNotFound rejects a submission before anything is persisted.
var ErrRoomNotFound = errors.New("room not found")

// AssetUploadError aborts an image submission: nothing was persisted or
// published.
type AssetUploadError struct {
	Err error
}

func (e *AssetUploadError) Error() string {
	return fmt.Sprintf("asset upload failed: %v", e.Err)
}

func (e *AssetUploadError) Unwrap() error { return e.Err }

// DeliveryDegradedError reports that the message is durably stored but the
// broker publish exhausted its retries. Real-time fan-out may be delayed;
// history remains retrievable by polling.
type DeliveryDegradedError struct {
	Message models.ChatMessage
	Err     error
}

func (e *DeliveryDegradedError) Error() string {
	return fmt.Sprintf("message %s stored but not published: %v", e.Message.ID.Hex(), e.Err)
}

func (e *DeliveryDegradedError) Unwrap() error { return e.Err }
