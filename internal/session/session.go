package session

import "context"

// Flash message kinds, matching what the templates render.
const (
	FlashErrors  = "errors"
	FlashSuccess = "success"
	FlashInfo    = "info"
)

// Session is the server-side state bound to one visitor cookie.
type Session struct {
	Token string `json:"-"`

	UserID string `json:"userId,omitempty"`
	// ReturnTo is the last non-auth GET path, replayed after login.
	ReturnTo   string `json:"returnTo,omitempty"`
	CSRFToken  string `json:"csrfToken"`
	OAuthState string `json:"oauthState,omitempty"`
	// Flash holds one-shot notices keyed by kind; PopFlashes drains them.
	Flash map[string][]string `json:"flash,omitempty"`
}

// AddFlash queues a one-shot notice of the given kind.
func (s *Session) AddFlash(kind, msg string) {
	if s.Flash == nil {
		s.Flash = make(map[string][]string)
	}
	s.Flash[kind] = append(s.Flash[kind], msg)
}

// PopFlashes returns queued notices and clears them. The caller must Save
// the session afterwards so the notices are shown exactly once.
func (s *Session) PopFlashes() map[string][]string {
	out := s.Flash
	s.Flash = nil
	return out
}

// LoggedIn reports whether the session is bound to a user.
func (s *Session) LoggedIn() bool {
	return s != nil && s.UserID != ""
}

// Store persists sessions keyed by an opaque client token.
type Store interface {
	New(ctx context.Context) (*Session, error)
	Get(ctx context.Context, token string) (*Session, bool, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, token string) error
}
