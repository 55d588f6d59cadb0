package index

import (
	"context"
	"time"
)

// MaxResults caps browse and search result sets.
const MaxResults = 1000

// Record is a submitted application as stored in the search index.
// The attachment is carried base64-encoded so its content is searchable
// alongside the form fields.
type Record struct {
	Email               string    `json:"email"`
	Name                string    `json:"name"`
	Resume              string    `json:"resume"`
	PositionID          string    `json:"position_id"`
	OrgID               string    `json:"orgid"`
	ResumeAttachment    string    `json:"resume_attachment,omitempty"`
	ResumeAttachmentURL string    `json:"resume_attachment_url"`
	SubmittedAt         time.Time `json:"submitted_at"`
}

// Hit is a search result: the indexed record plus highlighted fragments.
type Hit struct {
	Record     Record
	Highlights []string
}

// Index holds application records and answers organization-scoped queries.
// Search takes the organization id as a mandatory parameter so an unscoped
// query cannot be expressed; an empty query text lists everything in the
// organization. Results are newest first, at most MaxResults.
type Index interface {
	Create(ctx context.Context, id string, rec Record) error
	Search(ctx context.Context, orgID, query string) ([]Hit, error)
}
