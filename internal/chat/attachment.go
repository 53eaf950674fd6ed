package chat

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// DefaultMaxAttachmentBytes caps decoded attachment size when the caller
// does not configure a limit.
const DefaultMaxAttachmentBytes = 8 << 20

// ErrAttachmentTooLarge is returned when a decoded attachment exceeds the
// configured cap. The rejection happens before any pipeline work.
var ErrAttachmentTooLarge = errors.New("attachment too large")

// Attachment is a single file sent alongside a user query. At most one
// attachment accompanies a turn.
type Attachment struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Data      []byte `json:"data"`
}

// NewAttachment validates raw attachment bytes against the size cap.
// maxBytes <= 0 selects DefaultMaxAttachmentBytes.
func NewAttachment(name, mediaType string, data []byte, maxBytes int64) (*Attachment, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAttachmentBytes
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %q is %d bytes, limit %d", ErrAttachmentTooLarge, name, len(data), maxBytes)
	}
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return &Attachment{Name: name, MediaType: mediaType, Data: data}, nil
}

// DecodeAttachment decodes a base64 payload as received on the wire and
// applies the size cap. The cap is checked on the decoded size.
func DecodeAttachment(name, mediaType, encoded string, maxBytes int64) (*Attachment, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("attachment %q: decode base64: %w", name, err)
	}
	return NewAttachment(name, mediaType, data, maxBytes)
}
