package model

import "time"

// Document represents one uploaded patient file's metadata row.
// This is a pure domain model with no database-specific dependencies or tags.
// The raw bytes live in object storage; BlobPath is the durable pointer to them.
type Document struct {
	ID            string    `json:"id"`
	PatientID     string    `json:"patientId"`
	UserID        string    `json:"userId"`
	FileName      string    `json:"fileName"`
	FileType      string    `json:"fileType"`
	FileSize      int64     `json:"fileSize"`
	BlobURL       string    `json:"blobUrl"`
	BlobPath      string    `json:"blobPath"`
	BlobContainer string    `json:"blobContainer"`
	UploadedBy    string    `json:"uploadedBy"`
	CreatedAt     time.Time `json:"createdAt"`
}

// User is the metadata-store row for an authenticated uploader.
// ExternalID is the identity provider's stable subject; rows are upserted by it.
type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"externalId"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	PatientID  string    `json:"patientId,omitempty"`
	FirstName  string    `json:"firstName,omitempty"`
	LastName   string    `json:"lastName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RolePatient is the restricted role: it may only act on its own linked patient record.
const RolePatient = "patient"
