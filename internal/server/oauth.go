package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"applydesk/internal/session"
	"applydesk/internal/util"
)

// handleOAuth serves /auth/{provider} and /auth/{provider}/callback.
func (s *Server) handleOAuth(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/auth/")
	parts := strings.Split(rest, "/")
	conf, ok := s.oauth[parts[0]]
	if !ok {
		s.notFound(w, r, sess)
		return
	}
	switch {
	case len(parts) == 1:
		s.startOAuth(w, r, sess, conf)
	case len(parts) == 2 && parts[1] == "callback":
		s.finishOAuth(w, r, sess, parts[0], conf)
	default:
		s.notFound(w, r, sess)
	}
}

func (s *Server) startOAuth(w http.ResponseWriter, r *http.Request, sess *session.Session, conf *oauth2.Config) {
	state := util.NewToken()
	sess.OAuthState = state
	s.save(r.Context(), sess)
	http.Redirect(w, r, conf.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) finishOAuth(w http.ResponseWriter, r *http.Request, sess *session.Session, provider string, conf *oauth2.Config) {
	fail := func(err error) {
		util.LoggerFromContext(r.Context()).Error("oauth sign-in failed", "provider", provider, "error", err)
		sess.AddFlash(session.FlashErrors, "Authentication failed. Try again.")
		s.save(r.Context(), sess)
		http.Redirect(w, r, "/login", http.StatusFound)
	}

	state := r.URL.Query().Get("state")
	if state == "" || state != sess.OAuthState {
		fail(fmt.Errorf("state mismatch"))
		return
	}
	sess.OAuthState = ""
	tok, err := conf.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		fail(fmt.Errorf("exchange code: %w", err))
		return
	}
	email, name, err := fetchIdentity(r.Context(), provider, conf, tok)
	if err != nil {
		fail(err)
		return
	}
	u, err := s.app.OAuthLogin(r.Context(), provider, email, name, tok.AccessToken)
	if err != nil {
		fail(err)
		return
	}
	sess.UserID = u.ID
	s.redirectAfterLogin(w, r, sess)
}

func fetchIdentity(ctx context.Context, provider string, conf *oauth2.Config, tok *oauth2.Token) (email, name string, err error) {
	client := conf.Client(ctx, tok)
	switch provider {
	case "github":
		return fetchGitHubIdentity(client)
	case "google":
		return fetchGoogleIdentity(client)
	default:
		return "", "", fmt.Errorf("unknown provider %q", provider)
	}
}

func fetchGitHubIdentity(client *http.Client) (string, string, error) {
	var profile struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Login string `json:"login"`
	}
	if err := getJSON(client, "https://api.github.com/user", &profile); err != nil {
		return "", "", fmt.Errorf("fetch github profile: %w", err)
	}
	name := profile.Name
	if name == "" {
		name = profile.Login
	}
	if profile.Email != "" {
		return profile.Email, name, nil
	}
	// The profile email is hidden for many accounts; the emails endpoint
	// still lists them for the user:email scope.
	var emails []struct {
		Email   string `json:"email"`
		Primary bool   `json:"primary"`
	}
	if err := getJSON(client, "https://api.github.com/user/emails", &emails); err != nil {
		return "", "", fmt.Errorf("fetch github emails: %w", err)
	}
	for _, e := range emails {
		if e.Primary {
			return e.Email, name, nil
		}
	}
	if len(emails) > 0 {
		return emails[0].Email, name, nil
	}
	return "", "", fmt.Errorf("github account has no visible email")
}

func fetchGoogleIdentity(client *http.Client) (string, string, error) {
	var profile struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := getJSON(client, "https://www.googleapis.com/oauth2/v2/userinfo", &profile); err != nil {
		return "", "", fmt.Errorf("fetch google profile: %w", err)
	}
	return profile.Email, profile.Name, nil
}

func getJSON(client *http.Client, url string, out any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
