package app

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"applydesk/internal/index"
	"applydesk/internal/mail"
	"applydesk/internal/queue"
	"applydesk/internal/storage"
	"applydesk/internal/store"
)

type fakeNotifier struct {
	notifications []queue.Notification
	err           error
}

func (f *fakeNotifier) Enqueue(_ context.Context, n queue.Notification) (queue.Job, error) {
	if f.err != nil {
		return queue.Job{}, f.err
	}
	f.notifications = append(f.notifications, n)
	return queue.Job{ID: "job-1", Notification: n, Status: queue.StatusQueued}, nil
}

type recordingMailer struct {
	messages []mail.Message
	err      error
}

func (r *recordingMailer) SendTemplate(_ context.Context, msg mail.Message) error {
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, msg)
	return nil
}

type failingIndex struct{}

func (failingIndex) Create(context.Context, string, index.Record) error {
	return errors.New("index unavailable")
}

func (failingIndex) Search(context.Context, string, string) ([]index.Hit, error) {
	return nil, errors.New("index unavailable")
}

type testEnv struct {
	app      *App
	store    *store.MemoryStore
	index    *index.MemoryIndex
	objects  *storage.MemoryStore
	notifier *fakeNotifier
	mailer   *recordingMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    store.NewMemoryStore(),
		index:    index.NewMemoryIndex(),
		objects:  storage.NewMemoryStore(),
		notifier: &fakeNotifier{},
		mailer:   &recordingMailer{},
	}
	a, err := New(Config{
		Store:        env.store,
		Index:        env.index,
		Objects:      env.objects,
		Notifier:     env.notifier,
		Mailer:       env.mailer,
		BaseURL:      "http://localhost:8080",
		FromEmail:    "jobs@example.com",
		FromName:     "ApplyDesk",
		DefaultOrgID: "default-org",
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	env.app = a
	return env
}

func TestSubmitApplicationRejectsInvalidForm(t *testing.T) {
	env := newTestEnv(t)

	err := env.app.SubmitApplication(context.Background(), Submission{Email: "not-an-email"})
	ve, ok := AsValidation(err)
	if !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(ve.Messages) != 3 {
		t.Fatalf("expected messages for name, email, resume; got %v", ve.Messages)
	}
	if env.index.Len() != 0 {
		t.Fatalf("invalid submission reached the index")
	}
	if len(env.objects.Keys()) != 0 {
		t.Fatalf("invalid submission reached object storage")
	}
	if len(env.notifier.notifications) != 0 {
		t.Fatalf("invalid submission was enqueued")
	}
}

func TestSubmitApplicationWithoutFile(t *testing.T) {
	env := newTestEnv(t)

	err := env.app.SubmitApplication(context.Background(), Submission{
		Name:       "Ada Lovelace",
		Email:      "ada@example.com",
		Resume:     "Analytical engines and more.",
		PositionID: "eng-1",
		OrgID:      "42",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := len(env.objects.Keys()); got != 0 {
		t.Fatalf("expected zero storage writes, got %d", got)
	}
	if env.index.Len() != 1 {
		t.Fatalf("expected one indexed record, got %d", env.index.Len())
	}
	hits, err := env.app.Applications(context.Background(), "42")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected one hit, got %d", len(hits))
	}
	if hits[0].Record.ResumeAttachmentURL != "" {
		t.Fatalf("expected empty attachment URL, got %q", hits[0].Record.ResumeAttachmentURL)
	}
	if len(env.notifier.notifications) != 1 {
		t.Fatalf("expected one queued notification, got %d", len(env.notifier.notifications))
	}
	if env.notifier.notifications[0].ObjectKey != "" {
		t.Fatalf("no-file submission should carry no object key")
	}
}

func TestSubmitApplicationWithFile(t *testing.T) {
	env := newTestEnv(t)
	fileBody := []byte("Curriculum vitae of Ada Lovelace")

	err := env.app.SubmitApplication(context.Background(), Submission{
		Name:       "Ada Lovelace",
		Email:      "ada@example.com",
		Resume:     "See attached.",
		PositionID: "eng-1",
		OrgID:      "42",
		FileName:   "resume.pdf",
		FileData:   fileBody,
		FileType:   "application/pdf",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	keys := env.objects.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected exactly one storage write, got %d", len(keys))
	}
	if !strings.HasPrefix(keys[0], "uploaded/ada@example.com/") || !strings.HasSuffix(keys[0], "resume.pdf") {
		t.Fatalf("unexpected object key: %q", keys[0])
	}

	hits, err := env.app.Applications(context.Background(), "42")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected one hit, got %d", len(hits))
	}
	rec := hits[0].Record
	if rec.ResumeAttachmentURL != "memory://"+keys[0] {
		t.Fatalf("unexpected attachment URL: %q", rec.ResumeAttachmentURL)
	}
	decoded, err := base64.StdEncoding.DecodeString(rec.ResumeAttachment)
	if err != nil || string(decoded) != string(fileBody) {
		t.Fatalf("attachment not indexed as base64 of the upload: %v", err)
	}
	if env.notifier.notifications[0].ObjectKey != keys[0] {
		t.Fatalf("notification carries wrong object key: %q", env.notifier.notifications[0].ObjectKey)
	}
}

func TestSubmitApplicationMasksIndexFailure(t *testing.T) {
	env := newTestEnv(t)
	a, err := New(Config{
		Store:        env.store,
		Index:        failingIndex{},
		Objects:      env.objects,
		Notifier:     env.notifier,
		Mailer:       env.mailer,
		DefaultOrgID: "default-org",
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	err = a.SubmitApplication(context.Background(), Submission{
		Name:   "Ada Lovelace",
		Email:  "ada@example.com",
		Resume: "Analytical engines.",
	})
	if err != nil {
		t.Fatalf("index failure must not surface to the applicant, got %v", err)
	}
	if len(env.notifier.notifications) != 1 {
		t.Fatalf("pipeline should continue past the index stage")
	}
}

func TestSubmitApplicationDefaultsOrg(t *testing.T) {
	env := newTestEnv(t)

	err := env.app.SubmitApplication(context.Background(), Submission{
		Name:   "Ada Lovelace",
		Email:  "ada@example.com",
		Resume: "Analytical engines.",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	hits, err := env.app.Applications(context.Background(), "default-org")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("record not tagged with the default org")
	}
}

func TestSearchApplicationsScopedToOrg(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	subs := []Submission{
		{Name: "Ada Lovelace", Email: "ada@example.com", Resume: "Engines", OrgID: "42"},
		{Name: "Grace Hopper", Email: "grace@example.com", Resume: "Compilers", OrgID: "42"},
		{Name: "Ada Byron", Email: "byron@example.com", Resume: "Engines", OrgID: "7"},
	}
	for _, s := range subs {
		if err := env.app.SubmitApplication(ctx, s); err != nil {
			t.Fatalf("submit %s: %v", s.Email, err)
		}
	}

	hits, err := env.app.SearchApplications(ctx, "42", "Ada")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected one scoped match, got %d", len(hits))
	}
	if hits[0].Record.Email != "ada@example.com" {
		t.Fatalf("unexpected match: %q", hits[0].Record.Email)
	}
}

func TestProcessNotificationMailsOrgStaff(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.app.Signup(ctx, "staff@example.com", "secret1", "secret1", "42"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if err := env.objects.Put(ctx, "uploaded/ada@example.com/1resume.pdf", strings.NewReader("cv bytes"), 8, "application/pdf"); err != nil {
		t.Fatalf("seed object: %v", err)
	}

	err := env.app.ProcessNotification(ctx, queue.Job{
		ID: "job-1",
		Notification: queue.Notification{
			ApplicantName:  "Ada Lovelace",
			ApplicantEmail: "ada@example.com",
			PositionID:     "eng-1",
			OrgID:          "42",
			ObjectKey:      "uploaded/ada@example.com/1resume.pdf",
			AttachmentName: "resume.pdf",
		},
	})
	if err != nil {
		t.Fatalf("process notification: %v", err)
	}
	if len(env.mailer.messages) != 1 {
		t.Fatalf("expected one mail, got %d", len(env.mailer.messages))
	}
	msg := env.mailer.messages[0]
	if msg.Template != mail.TemplateNewApplication {
		t.Fatalf("unexpected template: %q", msg.Template)
	}
	if len(msg.To) != 1 || msg.To[0].Email != "staff@example.com" {
		t.Fatalf("unexpected recipients: %+v", msg.To)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("expected resume attachment, got %d", len(msg.Attachments))
	}
	decoded, err := base64.StdEncoding.DecodeString(msg.Attachments[0].Content)
	if err != nil || string(decoded) != "cv bytes" {
		t.Fatalf("attachment content not round-tripped: %v", err)
	}
}

func TestProcessNotificationRetriesOnMissingObject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.app.Signup(ctx, "staff@example.com", "secret1", "secret1", "42"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	err := env.app.ProcessNotification(ctx, queue.Job{
		Notification: queue.Notification{
			ApplicantEmail: "ada@example.com",
			OrgID:          "42",
			ObjectKey:      "uploaded/missing",
		},
	})
	if err == nil {
		t.Fatalf("expected error so the queue retries the task")
	}
	if len(env.mailer.messages) != 0 {
		t.Fatalf("no mail should be sent when the attachment cannot be fetched")
	}
}
