// Package filehandler holds the upload policy for tennis videos: which
// containers are accepted, how large they may be, and what a safe filename
// looks like. The server enforces it when issuing upload URLs and the CLI
// applies the same checks before any bytes leave the machine.
package filehandler

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// MaxUploadSize is the largest video accepted for analysis (500 MiB).
const MaxUploadSize int64 = 500 * 1024 * 1024

// SupportedVideoExtensions maps accepted file extensions to the content type
// sent with the upload.
var SupportedVideoExtensions = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
}

// AllowedContentTypes is the content-type allowlist for uploads.
var AllowedContentTypes = map[string]bool{
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/webm":       true,
	"video/x-msvideo":  true,
	"video/x-matroska": true,
	"video/mov":        true,
	"video/avi":        true,
}

// safeFilenameRegex allows alphanumeric, dots, hyphens, underscores, spaces, and parentheses.
var safeFilenameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._ ()-]{0,254}$`)

// ValidateFilename rejects empty names, path components, and characters
// outside the safe set.
func ValidateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename is required")
	}
	if strings.Contains(name, "..") || strings.Contains(name, "/") || strings.Contains(name, "\\") {
		return fmt.Errorf("filename contains invalid characters")
	}
	if !safeFilenameRegex.MatchString(name) {
		return fmt.Errorf("filename contains invalid characters; only alphanumeric, dots, hyphens, underscores, spaces, and parentheses allowed")
	}
	return nil
}

// ValidateUpload checks a proposed upload against the policy. size <= 0
// means the caller did not declare one and only the type is checked.
func ValidateUpload(filename, contentType string, size int64) error {
	if err := ValidateFilename(filename); err != nil {
		return err
	}
	if !AllowedContentTypes[contentType] {
		return fmt.Errorf("unsupported content type: %s", contentType)
	}
	if size > MaxUploadSize {
		return fmt.Errorf("file is too large: %d bytes exceeds the %d MB limit", size, MaxUploadSize/(1024*1024))
	}
	return nil
}

// IsVideo returns true if the file extension corresponds to a supported video.
func IsVideo(ext string) bool {
	_, ok := SupportedVideoExtensions[strings.ToLower(ext)]
	return ok
}

// GetMIMEType returns the upload content type for a file extension.
func GetMIMEType(ext string) (string, error) {
	if mimeType, ok := SupportedVideoExtensions[strings.ToLower(ext)]; ok {
		return mimeType, nil
	}
	return "", fmt.Errorf("unsupported file extension: %s", ext)
}

// VideoFile is a local video that passed the upload policy.
type VideoFile struct {
	Path     string
	Name     string
	MIMEType string
	Size     int64
}

// LoadVideoFile stats a local file and applies the upload policy to it. A
// file is accepted when either its extension or its declared type is on the
// allowlist and it is no larger than MaxUploadSize.
func LoadVideoFile(filePath string) (*VideoFile, error) {
	log.Debug().Str("path", filePath).Msg("Loading video file")

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", filePath)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	name := filepath.Base(filePath)
	mimeType, err := GetMIMEType(filepath.Ext(name))
	if err != nil {
		return nil, fmt.Errorf("please select a valid video file (MP4, MOV, WebM, AVI, MKV): %w", err)
	}
	if info.Size() > MaxUploadSize {
		return nil, fmt.Errorf("file is too large (%d MB); maximum size is %d MB",
			info.Size()/(1024*1024), MaxUploadSize/(1024*1024))
	}
	if err := ValidateFilename(name); err != nil {
		return nil, err
	}

	log.Info().
		Str("path", filePath).
		Str("mime_type", mimeType).
		Int64("size_bytes", info.Size()).
		Msg("Video file loaded")

	return &VideoFile{
		Path:     filePath,
		Name:     name,
		MIMEType: mimeType,
		Size:     info.Size(),
	}, nil
}
