package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"applydesk/internal/index"
	"applydesk/internal/mail"
	"applydesk/internal/queue"
	"applydesk/internal/storage"
	"applydesk/internal/store"
	"applydesk/internal/util"
)

// Notifier enqueues staff-notification tasks for accepted applications.
type Notifier interface {
	Enqueue(ctx context.Context, n queue.Notification) (queue.Job, error)
}

// Config wires the application core to its collaborators.
type Config struct {
	Store    store.Store
	Index    index.Index
	Objects  storage.ObjectStore
	Notifier Notifier
	Mailer   mail.Mailer

	// BaseURL is the external origin used when building emailed links.
	BaseURL string
	// FromEmail/FromName identify the sender of transactional mail.
	FromEmail string
	FromName  string
	// DefaultOrgID tags submissions and signups that carry no explicit org.
	DefaultOrgID string
}

// App implements the portal's business operations on top of injected
// collaborators. All handles are interfaces; tests swap in in-memory fakes.
type App struct {
	store    store.Store
	index    index.Index
	objects  storage.ObjectStore
	notifier Notifier
	mailer   mail.Mailer
	validate *validator.Validate

	baseURL      string
	from         mail.Address
	defaultOrgID string
}

// New validates the wiring and constructs the application core.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("app: store is required")
	}
	if cfg.Index == nil {
		return nil, errors.New("app: index is required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("app: object store is required")
	}
	if cfg.Notifier == nil {
		return nil, errors.New("app: notifier is required")
	}
	if cfg.Mailer == nil {
		return nil, errors.New("app: mailer is required")
	}
	return &App{
		store:        cfg.Store,
		index:        cfg.Index,
		objects:      cfg.Objects,
		notifier:     cfg.Notifier,
		mailer:       cfg.Mailer,
		validate:     validator.New(),
		baseURL:      cfg.BaseURL,
		from:         mail.Address{Email: cfg.FromEmail, Name: cfg.FromName},
		defaultOrgID: cfg.DefaultOrgID,
	}, nil
}

// Submission is one applicant's filled-in apply form.
type Submission struct {
	Name       string `validate:"required"`
	Email      string `validate:"required,email"`
	Resume     string `validate:"required"`
	PositionID string
	OrgID      string

	FileName string
	FileData []byte
	FileType string
}

// SubmitApplication runs the intake pipeline: validate, then three
// best-effort stages (blob upload, index write, staff notification).
// Only validation failures are surfaced to the applicant; collaborator
// errors after that point are logged and masked as success so a submitted
// application is never bounced by backend trouble. The record can be
// re-indexed later from logs (accept-now, repair-later).
func (a *App) SubmitApplication(ctx context.Context, sub Submission) error {
	if err := a.validateSubmission(sub); err != nil {
		return err
	}
	log := util.LoggerFromContext(ctx)
	now := time.Now()
	millis := now.UnixMilli()
	orgID := sub.OrgID
	if orgID == "" {
		orgID = a.defaultOrgID
	}

	var objectKey, attachmentURL, attachmentB64 string
	if len(sub.FileData) > 0 {
		objectKey = fmt.Sprintf("uploaded/%s/%d%s", sub.Email, millis, sub.FileName)
		contentType := sub.FileType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if err := a.objects.Put(ctx, objectKey, bytes.NewReader(sub.FileData), int64(len(sub.FileData)), contentType); err != nil {
			log.Error("resume upload failed", "error", err, "object_key", objectKey)
			objectKey = ""
		} else {
			attachmentURL = a.objects.URL(objectKey)
		}
		attachmentB64 = base64.StdEncoding.EncodeToString(sub.FileData)
	}

	docID := fmt.Sprintf("%s_%s_%d", sub.PositionID, sub.Email, millis)
	rec := index.Record{
		Email:               sub.Email,
		Name:                sub.Name,
		Resume:              sub.Resume,
		PositionID:          sub.PositionID,
		OrgID:               orgID,
		ResumeAttachment:    attachmentB64,
		ResumeAttachmentURL: attachmentURL,
		SubmittedAt:         now.UTC(),
	}
	if err := a.index.Create(ctx, docID, rec); err != nil {
		log.Error("index write failed", "error", err, "doc_id", docID)
	}

	if _, err := a.notifier.Enqueue(ctx, queue.Notification{
		ApplicantName:  sub.Name,
		ApplicantEmail: sub.Email,
		PositionID:     sub.PositionID,
		OrgID:          orgID,
		Resume:         sub.Resume,
		ObjectKey:      objectKey,
		AttachmentName: sub.FileName,
		SubmittedAt:    now.UTC(),
	}); err != nil {
		log.Error("notification enqueue failed", "error", err, "applicant", sub.Email)
	}
	return nil
}

func (a *App) validateSubmission(sub Submission) error {
	err := a.validate.Struct(sub)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	ve := &ValidationError{}
	for _, fe := range fieldErrs {
		switch fe.Field() {
		case "Name":
			ve.Messages = append(ve.Messages, "Name is required.")
		case "Email":
			if fe.Tag() == "email" {
				ve.Messages = append(ve.Messages, "Email is not valid.")
			} else {
				ve.Messages = append(ve.Messages, "Email is required.")
			}
		case "Resume":
			ve.Messages = append(ve.Messages, "Resume cannot be empty.")
		}
	}
	return ve
}

// Applications lists the caller organization's applications, newest first.
func (a *App) Applications(ctx context.Context, orgID string) ([]index.Hit, error) {
	return a.index.Search(ctx, orgID, "")
}

// SearchApplications runs a free-text query inside the caller's organization.
func (a *App) SearchApplications(ctx context.Context, orgID, query string) ([]index.Hit, error) {
	return a.index.Search(ctx, orgID, query)
}

// ProcessNotification is the queue worker handler: it mails every staff
// account of the applicant's organization, attaching the résumé fetched
// back from object storage when one was uploaded. A returned error makes
// the queue retry the task.
func (a *App) ProcessNotification(ctx context.Context, job queue.Job) error {
	n := job.Notification
	staff, err := a.store.ListUsersByOrg(n.OrgID)
	if err != nil {
		return fmt.Errorf("list staff for org %s: %w", n.OrgID, err)
	}
	if len(staff) == 0 {
		util.LoggerFromContext(ctx).Warn("no staff to notify", "org_id", n.OrgID, "applicant", n.ApplicantEmail)
		return nil
	}

	var attachments []mail.Attachment
	if n.ObjectKey != "" {
		data, err := a.objects.Get(ctx, n.ObjectKey)
		if err != nil {
			return fmt.Errorf("fetch resume %s: %w", n.ObjectKey, err)
		}
		contentType := mime.TypeByExtension(filepath.Ext(n.AttachmentName))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		attachments = append(attachments, mail.Attachment{
			Type:    contentType,
			Name:    n.AttachmentName,
			Content: base64.StdEncoding.EncodeToString(data),
		})
	}

	to := make([]mail.Address, 0, len(staff))
	for _, u := range staff {
		to = append(to, mail.Address{Email: u.Email, Name: u.Profile.Name})
	}
	return a.mailer.SendTemplate(ctx, mail.Message{
		Template: mail.TemplateNewApplication,
		To:       to,
		Vars: map[string]string{
			"APPLICANT_NAME":  n.ApplicantName,
			"APPLICANT_EMAIL": n.ApplicantEmail,
			"POSITION_ID":     n.PositionID,
			"RESUME":          n.Resume,
		},
		Attachments: attachments,
		Tags:        []string{"application_emails"},
	})
}
