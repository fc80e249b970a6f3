package common

import "strings"

// MediaType is the kind of media attached to a message.
type MediaType string

const (
	MediaTypeImage    MediaType = "image"
	MediaTypeVideo    MediaType = "video"
	MediaTypeAudio    MediaType = "audio"
	MediaTypeDocument MediaType = "document"
)

// String returns the string representation
func (mt MediaType) String() string {
	return string(mt)
}

// IsValid checks if the media type is one of the supported kinds
func (mt MediaType) IsValid() bool {
	switch mt {
	case MediaTypeImage, MediaTypeVideo, MediaTypeAudio, MediaTypeDocument:
		return true
	}
	return false
}

// DetectMediaType maps a MIME type onto a MediaType. Anything that is not
// image, video or audio is treated as a document.
func DetectMediaType(mimeType string) MediaType {
	lowerMimeType := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(lowerMimeType, "image/"):
		return MediaTypeImage
	case strings.HasPrefix(lowerMimeType, "video/"):
		return MediaTypeVideo
	case strings.HasPrefix(lowerMimeType, "audio/"):
		return MediaTypeAudio
	}
	return MediaTypeDocument
}
