// ABOUTME: Media attachment references and their validation limits
// ABOUTME: Images up to 10 MiB and videos up to 50 MiB, checked before any upload

package chat

import (
	"fmt"
	"io"
	"strings"
)

// MediaKind distinguishes image and video attachments.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Upload size limits.
const (
	MaxImageSize int64 = 10 << 20
	MaxVideoSize int64 = 50 << 20
)

// MediaRef describes an attachment. Open supplies the upload body and is
// never serialized; URL holds a local preview or the server location.
type MediaRef struct {
	Kind        MediaKind                     `json:"kind"`
	Name        string                        `json:"name,omitempty"`
	ContentType string                        `json:"contentType,omitempty"`
	Size        int64                         `json:"size,omitempty"`
	URL         string                        `json:"url,omitempty"`
	Open        func() (io.ReadCloser, error) `json:"-"`
}

// Validate checks kind, content type and size. The returned error wraps
// ErrInvalidMedia.
func (m *MediaRef) Validate() error {
	if m == nil {
		return nil
	}
	var prefix string
	var limit int64
	switch m.Kind {
	case MediaImage:
		prefix, limit = "image/", MaxImageSize
	case MediaVideo:
		prefix, limit = "video/", MaxVideoSize
	default:
		return invalidMedia("unknown media kind %q", m.Kind)
	}
	if !strings.HasPrefix(m.ContentType, prefix) {
		return invalidMedia("content type %q is not %s*", m.ContentType, prefix)
	}
	if m.Size <= 0 {
		return invalidMedia("empty %s", m.Kind)
	}
	if m.Size > limit {
		return invalidMedia("%s is %d bytes, limit is %d", m.Kind, m.Size, limit)
	}
	return nil
}

// KindForContentType maps a MIME type onto a MediaKind, or "" when it is
// neither an image nor a video.
func KindForContentType(contentType string) MediaKind {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return MediaImage
	case strings.HasPrefix(contentType, "video/"):
		return MediaVideo
	default:
		return ""
	}
}

func invalidMedia(format string, args ...any) error {
	return &ValidationError{Err: ErrInvalidMedia, Detail: fmt.Sprintf(format, args...)}
}
