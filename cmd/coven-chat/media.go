// ABOUTME: Builds media attachments from local files for /image and /video
// ABOUTME: Content type comes from the extension, falling back to mimetype content sniffing

package main

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/2389/coven-chat/internal/chat"
)

func loadMedia(kind chat.MediaKind, path string) (*chat.MediaRef, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	contentType, err := detectContentType(path)
	if err != nil {
		return nil, err
	}

	ref := &chat.MediaRef{
		Kind:        kind,
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return ref, nil
}

func detectContentType(path string) (string, error) {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err == nil {
			return mediaType, nil
		}
	}

	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("sniffing %s: %w", path, err)
	}
	ct, _, _ := mime.ParseMediaType(detected.String())
	return ct, nil
}
