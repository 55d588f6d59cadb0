package server

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"applydesk/internal/app"
	"applydesk/internal/index"
	"applydesk/internal/mail"
	"applydesk/internal/queue"
	"applydesk/internal/session"
	"applydesk/internal/storage"
	"applydesk/internal/store"
)

type stubNotifier struct {
	notifications []queue.Notification
}

func (s *stubNotifier) Enqueue(_ context.Context, n queue.Notification) (queue.Job, error) {
	s.notifications = append(s.notifications, n)
	return queue.Job{ID: "job", Notification: n, Status: queue.StatusQueued}, nil
}

type stubMailer struct {
	messages []mail.Message
}

func (s *stubMailer) SendTemplate(_ context.Context, msg mail.Message) error {
	s.messages = append(s.messages, msg)
	return nil
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(string) bool { return false }

type testPortal struct {
	srv      *httptest.Server
	client   *http.Client
	store    *store.MemoryStore
	index    *index.MemoryIndex
	objects  *storage.MemoryStore
	notifier *stubNotifier
	mailer   *stubMailer
}

func newTestPortal(t *testing.T, mutate func(*Config)) *testPortal {
	t.Helper()
	redisSrv := miniredis.RunT(t)

	p := &testPortal{
		store:    store.NewMemoryStore(),
		index:    index.NewMemoryIndex(),
		objects:  storage.NewMemoryStore(),
		notifier: &stubNotifier{},
		mailer:   &stubMailer{},
	}
	a, err := app.New(app.Config{
		Store:        p.store,
		Index:        p.index,
		Objects:      p.objects,
		Notifier:     p.notifier,
		Mailer:       p.mailer,
		BaseURL:      "http://localhost:8080",
		DefaultOrgID: "42",
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg := Config{
		App:          a,
		Sessions:     session.NewRedisStore(redisSrv.Addr(), "", time.Hour),
		BaseURL:      "http://localhost:8080",
		DefaultOrgID: "42",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	p.srv = httptest.NewServer(s.Router())
	t.Cleanup(p.srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	p.client = &http.Client{Jar: jar}
	return p
}

var csrfRe = regexp.MustCompile(`name="_csrf" value="([^"]+)"`)

func (p *testPortal) get(t *testing.T, path string) string {
	t.Helper()
	resp, err := p.client.Get(p.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func (p *testPortal) csrf(t *testing.T, path string) string {
	t.Helper()
	body := p.get(t, path)
	m := csrfRe.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("no csrf token on %s", path)
	}
	return m[1]
}

func (p *testPortal) postForm(t *testing.T, path string, form url.Values) string {
	t.Helper()
	resp, err := p.client.PostForm(p.srv.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func (p *testPortal) signupAndLogin(t *testing.T, email string) {
	t.Helper()
	token := p.csrf(t, "/signup")
	body := p.postForm(t, "/signup", url.Values{
		"_csrf":            {token},
		"email":            {email},
		"password":         {"secret1"},
		"confirm_password": {"secret1"},
		"org_id":           {"42"},
	})
	if strings.Contains(body, "flash-error") {
		t.Fatalf("signup failed: %s", body)
	}
}

func TestApplyFlowWithAttachment(t *testing.T) {
	p := newTestPortal(t, nil)
	token := p.csrf(t, "/apply")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, val := range map[string]string{
		"_csrf":       token,
		"name":        "Ada Lovelace",
		"email":       "ada@example.com",
		"resume":      "Analytical engines.",
		"org_id":      "42",
		"position_id": "eng-1",
	} {
		if err := mw.WriteField(field, val); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	fw, err := mw.CreateFormFile("resume_file", "resume.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte("cv bytes")); err != nil {
		t.Fatalf("write file: %v", err)
	}
	mw.Close()

	resp, err := p.client.Post(p.srv.URL+"/apply", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST /apply: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "Your application has been submitted.") {
		t.Fatalf("missing success flash: %s", body)
	}
	if p.index.Len() != 1 {
		t.Fatalf("expected one indexed record, got %d", p.index.Len())
	}
	if len(p.objects.Keys()) != 1 {
		t.Fatalf("expected one stored object, got %d", len(p.objects.Keys()))
	}
	if len(p.notifier.notifications) != 1 {
		t.Fatalf("expected one queued notification, got %d", len(p.notifier.notifications))
	}
}

func TestApplyValidationFlash(t *testing.T) {
	p := newTestPortal(t, nil)
	token := p.csrf(t, "/apply")

	body := p.postForm(t, "/apply", url.Values{"_csrf": {token}})
	for _, msg := range []string{"Name is required.", "Email is required.", "Resume cannot be empty."} {
		if !strings.Contains(body, msg) {
			t.Fatalf("missing %q in: %s", msg, body)
		}
	}
	if p.index.Len() != 0 || len(p.objects.Keys()) != 0 || len(p.notifier.notifications) != 0 {
		t.Fatalf("invalid submission reached a collaborator")
	}
}

func TestApplyRejectsBadCSRF(t *testing.T) {
	p := newTestPortal(t, nil)
	p.get(t, "/apply")

	resp, err := p.client.PostForm(p.srv.URL+"/apply", url.Values{
		"_csrf":  {"forged"},
		"name":   {"Ada"},
		"email":  {"ada@example.com"},
		"resume": {"text"},
	})
	if err != nil {
		t.Fatalf("POST /apply: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestBrowseRequiresLogin(t *testing.T) {
	p := newTestPortal(t, nil)
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Get(p.srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestSignupLoginAndOrgScopedBrowse(t *testing.T) {
	p := newTestPortal(t, nil)

	// Two applications, one inside the staff org and one outside.
	token := p.csrf(t, "/apply")
	p.postForm(t, "/apply", url.Values{
		"_csrf": {token}, "name": {"Ada Lovelace"}, "email": {"ada@example.com"},
		"resume": {"Engines"}, "org_id": {"42"},
	})
	p.postForm(t, "/apply", url.Values{
		"_csrf": {token}, "name": {"Grace Hopper"}, "email": {"grace@example.com"},
		"resume": {"Compilers"}, "org_id": {"7"},
	})

	p.signupAndLogin(t, "staff@example.com")
	body := p.get(t, "/")
	if !strings.Contains(body, "ada@example.com") {
		t.Fatalf("own-org application not listed: %s", body)
	}
	if strings.Contains(body, "grace@example.com") {
		t.Fatalf("foreign-org application leaked into the listing")
	}

	body = p.get(t, "/search?query=Ada")
	if !strings.Contains(body, "ada@example.com") {
		t.Fatalf("search missed the scoped match: %s", body)
	}
}

func TestLoginReturnsToRequestedPage(t *testing.T) {
	p := newTestPortal(t, nil)
	p.signupAndLogin(t, "staff@example.com")
	p.get(t, "/logout")

	// Hitting a protected page while logged out must come back to it
	// after logging in.
	p.get(t, "/search")
	token := p.csrf(t, "/login")
	resp, err := p.client.PostForm(p.srv.URL+"/login", url.Values{
		"_csrf":    {token},
		"email":    {"staff@example.com"},
		"password": {"secret1"},
	})
	if err != nil {
		t.Fatalf("POST /login: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Request.URL.Path; got != "/search" {
		t.Fatalf("expected to land on /search, got %q", got)
	}
}

func TestLoginFailureFlashesGenericMessage(t *testing.T) {
	p := newTestPortal(t, nil)
	token := p.csrf(t, "/login")

	body := p.postForm(t, "/login", url.Values{
		"_csrf":    {token},
		"email":    {"nobody@example.com"},
		"password": {"whatever"},
	})
	if !strings.Contains(body, "Invalid email or password.") {
		t.Fatalf("missing generic failure flash: %s", body)
	}
}

func TestLoginRateLimited(t *testing.T) {
	p := newTestPortal(t, func(cfg *Config) {
		cfg.LoginLimiter = denyAllLimiter{}
	})
	token := p.csrf(t, "/login")

	resp, err := p.client.PostForm(p.srv.URL+"/login", url.Values{
		"_csrf":    {token},
		"email":    {"staff@example.com"},
		"password": {"secret1"},
	})
	if err != nil {
		t.Fatalf("POST /login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
}

func TestForgotFlashesSameMessageForUnknownEmail(t *testing.T) {
	p := newTestPortal(t, nil)
	p.signupAndLogin(t, "staff@example.com")
	p.get(t, "/logout")

	neutral := "If an account with that address exists, an email has been sent with further instructions."

	token := p.csrf(t, "/forgot")
	body := p.postForm(t, "/forgot", url.Values{"_csrf": {token}, "email": {"staff@example.com"}})
	if !strings.Contains(body, neutral) {
		t.Fatalf("missing neutral flash for known address: %s", body)
	}
	body = p.postForm(t, "/forgot", url.Values{"_csrf": {token}, "email": {"nobody@example.com"}})
	if !strings.Contains(body, neutral) {
		t.Fatalf("missing neutral flash for unknown address: %s", body)
	}
	// Only the real account got an email.
	if len(p.mailer.messages) != 1 || p.mailer.messages[0].To[0].Email != "staff@example.com" {
		t.Fatalf("unexpected reset mail: %+v", p.mailer.messages)
	}
}

func TestResetPasswordEndToEnd(t *testing.T) {
	p := newTestPortal(t, nil)
	p.signupAndLogin(t, "staff@example.com")
	p.get(t, "/logout")

	token := p.csrf(t, "/forgot")
	p.postForm(t, "/forgot", url.Values{"_csrf": {token}, "email": {"staff@example.com"}})
	if len(p.mailer.messages) != 1 {
		t.Fatalf("expected reset mail, got %d", len(p.mailer.messages))
	}
	resetURL := p.mailer.messages[0].Vars["RESET_URL"]
	path := resetURL[strings.Index(resetURL, "/reset/"):]

	csrfToken := p.csrf(t, path)
	body := p.postForm(t, path, url.Values{
		"_csrf":            {csrfToken},
		"password":         {"newsecret"},
		"confirm_password": {"newsecret"},
	})
	if !strings.Contains(body, "Success! Your password has been changed.") {
		t.Fatalf("missing success flash: %s", body)
	}

	// Token is single use.
	p.get(t, "/logout")
	csrfToken = p.csrf(t, path)
	body = p.postForm(t, path, url.Values{
		"_csrf":            {csrfToken},
		"password":         {"another1"},
		"confirm_password": {"another1"},
	})
	if !strings.Contains(body, "Password reset token is invalid or has expired.") {
		t.Fatalf("reused token was accepted: %s", body)
	}
}

func TestAccountPasswordChangeSendsConfirmation(t *testing.T) {
	p := newTestPortal(t, nil)
	p.signupAndLogin(t, "staff@example.com")

	token := p.csrf(t, "/account")
	body := p.postForm(t, "/account/password", url.Values{
		"_csrf":            {token},
		"password":         {"newsecret"},
		"confirm_password": {"newsecret"},
	})
	if !strings.Contains(body, "Password has been changed.") {
		t.Fatalf("missing success flash: %s", body)
	}
	if len(p.mailer.messages) != 1 || p.mailer.messages[0].Template != mail.TemplatePasswordChanged {
		t.Fatalf("expected change confirmation mail, got %+v", p.mailer.messages)
	}
}

func TestDeleteAccountEndsSession(t *testing.T) {
	p := newTestPortal(t, nil)
	p.signupAndLogin(t, "staff@example.com")

	token := p.csrf(t, "/account")
	p.postForm(t, "/account/delete", url.Values{"_csrf": {token}})

	client := &http.Client{
		Jar:           p.client.Jar,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Get(p.srv.URL + "/account")
	if err != nil {
		t.Fatalf("GET /account: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/login" {
		t.Fatalf("expected redirect to login after delete, got %d", resp.StatusCode)
	}
	if _, ok, _ := p.store.GetUserByEmail("staff@example.com"); ok {
		t.Fatalf("account still present after delete")
	}
}

func TestHealthz(t *testing.T) {
	p := newTestPortal(t, nil)
	body := p.get(t, "/healthz")
	if !strings.Contains(body, `"status":"ok"`) {
		t.Fatalf("unexpected healthz body: %s", body)
	}
}

func TestUnknownPathRenders404(t *testing.T) {
	p := newTestPortal(t, nil)
	resp, err := p.client.Get(p.srv.URL + "/no-such-page")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "Page not found") {
		t.Fatalf("missing 404 page body: %s", body)
	}
}
