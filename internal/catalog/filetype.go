package catalog

import (
	"path/filepath"
	"strings"
)

// Type classifications for file records.
const (
	TypeFolder   = "folder"
	TypeImage    = "image"
	TypeVideo    = "video"
	TypeAudio    = "audio"
	TypePDF      = "pdf"
	TypeDocument = "document"
	TypeText     = "text"
	TypeArchive  = "archive"
	TypeOther    = "other"
)

var extensionTypes = map[string]string{
	".jpg": TypeImage, ".jpeg": TypeImage, ".png": TypeImage,
	".gif": TypeImage, ".bmp": TypeImage, ".webp": TypeImage,

	".mp4": TypeVideo, ".mov": TypeVideo, ".avi": TypeVideo,
	".mkv": TypeVideo, ".webm": TypeVideo,

	".mp3": TypeAudio, ".wav": TypeAudio, ".flac": TypeAudio,
	".ogg": TypeAudio, ".m4a": TypeAudio,

	".pdf": TypePDF,

	".doc": TypeDocument, ".docx": TypeDocument,
	".xls": TypeDocument, ".xlsx": TypeDocument,
	".ppt": TypeDocument, ".pptx": TypeDocument,

	".txt": TypeText, ".md": TypeText, ".csv": TypeText, ".log": TypeText,

	".zip": TypeArchive, ".tar": TypeArchive, ".gz": TypeArchive,
	".rar": TypeArchive, ".7z": TypeArchive,
}

// TypeOf classifies a file by its extension, case-insensitively.
func TypeOf(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return TypeOther
}
