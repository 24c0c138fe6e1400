package domain

import "time"

// FileKind classifies a stored file
type FileKind string

const (
	FileKindGuestUpload FileKind = "guest_upload"
	FileKindGallery     FileKind = "gallery"
	FileKindDesign      FileKind = "design"
	FileKindContract    FileKind = "contract"
)

// Valid reports whether k is a known kind
func (k FileKind) Valid() bool {
	switch k {
	case FileKindGuestUpload, FileKindGallery, FileKindDesign, FileKindContract:
		return true
	}
	return false
}

// IsGalleryContent reports kinds shown in the host gallery
func (k FileKind) IsGalleryContent() bool {
	return k == FileKindGuestUpload || k == FileKindGallery
}

// FileRecord references a blob stored by the upload collaborator
type FileRecord struct {
	ID          string    `json:"id"`
	EventID     string    `json:"eventId"`
	Kind        FileKind  `json:"kind"`
	URL         string    `json:"url"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType,omitempty"`
	Size        int64     `json:"size"`
	UploadedBy  string    `json:"uploadedBy"`
	CreatedAt   time.Time `json:"createdAt"`
	Versioned
}

func (f *FileRecord) EntityID() string { return f.ID }
