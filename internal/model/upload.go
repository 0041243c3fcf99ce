package model

// UploadedFile is the transient in-memory form of one multipart file part.
// Data is nil for files that were rejected during streaming.
type UploadedFile struct {
	FieldName string
	FileName  string
	MediaType string
	Data      []byte
	Size      int64
}

// FileStatus tags the outcome of a single file part after streaming validation.
type FileStatus string

const (
	FileAccepted            FileStatus = "accepted"
	FileRejectedInvalidType FileStatus = "rejected_invalid_type"
	FileRejectedOversized   FileStatus = "rejected_oversized"
	FileRejectedByLimit     FileStatus = "rejected_by_limit"
)

// FileOutcome pairs a file part with its validation outcome. Outcomes are
// accumulated while the multipart body streams and aggregated once into the
// warnings payload after parsing completes.
type FileOutcome struct {
	File   UploadedFile
	Status FileStatus
}

// UploadWarnings is the aggregate of per-file rejections in an otherwise
// successful upload request.
type UploadWarnings struct {
	MaxFilesExceeded bool     `json:"maxFilesExceeded,omitempty"`
	UnsupportedFiles []string `json:"unsupportedFiles,omitempty"`
	OversizedFiles   []string `json:"oversizedFiles,omitempty"`
}

// Empty reports whether no warning was recorded.
func (w UploadWarnings) Empty() bool {
	return !w.MaxFilesExceeded && len(w.UnsupportedFiles) == 0 && len(w.OversizedFiles) == 0
}
