package models

import "time"

// DocumentCategory groups document types for review.
type DocumentCategory string

const (
	DocumentCategoryBank        DocumentCategory = "bank"
	DocumentCategoryRealEstate  DocumentCategory = "real_estate"
	DocumentCategoryLiabilities DocumentCategory = "liabilities"
	DocumentCategoryOther       DocumentCategory = "other"
	DocumentCategoryGeneral     DocumentCategory = "general"
)

// documentCategories maps the file types clients pick in the portal to their
// category. Existing rows depend on these exact keys.
var documentCategories = map[string]DocumentCategory{
	"bank_il":           DocumentCategoryBank,
	"bank_foreign":      DocumentCategoryBank,
	"investments":       DocumentCategoryBank,
	"tabu":              DocumentCategoryRealEstate,
	"purchase_contract": DocumentCategoryRealEstate,
	"mortgage":          DocumentCategoryLiabilities,
	"loans":             DocumentCategoryLiabilities,
	"vehicle":           DocumentCategoryOther,
	"other_assets":      DocumentCategoryOther,
}

// CategoryForFileType derives the category of a file type. Unknown types are general.
func CategoryForFileType(fileType string) DocumentCategory {
	if c, ok := documentCategories[fileType]; ok {
		return c
	}
	return DocumentCategoryGeneral
}

// DocumentStatus is the staff review state of an uploaded document.
type DocumentStatus string

const (
	DocumentStatusPending  DocumentStatus = "pending"
	DocumentStatusApproved DocumentStatus = "approved"
	DocumentStatusRejected DocumentStatus = "rejected"
)

// Document is a file uploaded against a declaration. Only the review fields change after insert.
// FileURL and StorageKey stay server side; clients download through a signed link.
type Document struct {
	ID            string           `db:"id" json:"id"`
	FirmID        string           `db:"firm_id" json:"firmId"`
	DeclarationID string           `db:"declaration_id" json:"declarationId"`
	FileType      string           `db:"file_type" json:"fileType"`
	Category      DocumentCategory `db:"category" json:"category"`
	FileName      string           `db:"file_name" json:"fileName"`
	FileURL       string           `db:"file_url" json:"-"`
	StorageKey    string           `db:"storage_key" json:"-"`
	SizeBytes     int64            `db:"size_bytes" json:"sizeBytes"`
	MimeType      *string          `db:"mime_type" json:"mimeType,omitempty"`
	Status        DocumentStatus   `db:"status" json:"status"`
	UploadedBy    *string          `db:"uploaded_by" json:"uploadedBy,omitempty"`
	ReviewedBy    *string          `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt    *time.Time       `db:"reviewed_at" json:"reviewedAt,omitempty"`
	ReviewNote    *string          `db:"review_note" json:"reviewNote,omitempty"`
	UploadedAt    time.Time        `db:"uploaded_at" json:"uploadedAt"`
}

// DocumentTypeCount is a per file type tally used by the portal checklist.
type DocumentTypeCount struct {
	FileType string `db:"file_type"`
	Count    int    `db:"count"`
}
