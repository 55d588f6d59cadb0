package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"applydesk/internal/auth"
	"applydesk/internal/domain"
	"applydesk/internal/mail"
	"applydesk/internal/util"
)

const resetTokenTTL = time.Hour

// Login authenticates a staff account by email and password.
func (a *App) Login(ctx context.Context, email, password string) (domain.User, error) {
	u, ok, err := a.store.GetUserByEmail(normalizeEmail(email))
	if err != nil {
		return domain.User{}, fmt.Errorf("look up user: %w", err)
	}
	if !ok || u.PasswordHash == "" || !auth.CheckPassword(password, u.PasswordHash) {
		return domain.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Signup registers a staff account and returns it logged in.
func (a *App) Signup(ctx context.Context, email, password, confirm, orgID string) (domain.User, error) {
	email = normalizeEmail(email)
	if err := a.validateCredentials(email, password, confirm); err != nil {
		return domain.User{}, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	if orgID == "" {
		orgID = a.defaultOrgID
	}
	u := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		OrgID:        orgID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.SaveUser(u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// RequestPasswordReset issues a single-use reset token and emails a reset
// link. An unknown address is silently ignored so the endpoint cannot be
// used to probe which emails hold accounts.
func (a *App) RequestPasswordReset(ctx context.Context, email string) error {
	u, ok, err := a.store.GetUserByEmail(normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	if !ok {
		return nil
	}
	token := util.NewToken()
	u.ResetPasswordToken = token
	u.ResetPasswordExpires = time.Now().Add(resetTokenTTL)
	if err := a.store.SaveUser(u); err != nil {
		return fmt.Errorf("save reset token: %w", err)
	}
	return a.mailer.SendTemplate(ctx, mail.Message{
		Template: mail.TemplatePasswordReset,
		To:       []mail.Address{{Email: u.Email, Name: u.Profile.Name}},
		Vars: map[string]string{
			"RESET_URL": fmt.Sprintf("%s/reset/%s", strings.TrimRight(a.baseURL, "/"), token),
		},
		Tags: []string{"password_emails"},
	})
}

// ResetPassword redeems a reset token, replaces the credential, and sends a
// change confirmation. The token is cleared so it cannot be redeemed twice.
func (a *App) ResetPassword(ctx context.Context, token, password, confirm string) (domain.User, error) {
	if err := a.validatePassword(password, confirm); err != nil {
		return domain.User{}, err
	}
	u, ok, err := a.store.GetUserByResetToken(token)
	if err != nil {
		return domain.User{}, fmt.Errorf("look up token: %w", err)
	}
	if !ok || time.Now().After(u.ResetPasswordExpires) {
		return domain.User{}, ErrInvalidToken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash
	u.ResetPasswordToken = ""
	u.ResetPasswordExpires = time.Time{}
	if err := a.store.SaveUser(u); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	if err := a.sendPasswordChanged(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// User loads a staff account by id.
func (a *App) User(ctx context.Context, userID string) (domain.User, bool, error) {
	return a.store.GetUserByID(userID)
}

// UpdateProfile overwrites the account's email and display fields.
func (a *App) UpdateProfile(ctx context.Context, userID, email string, profile domain.Profile) (domain.User, error) {
	u, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("look up user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrInvalidCredentials
	}
	email = normalizeEmail(email)
	if err := a.validate.Var(email, "required,email"); err != nil {
		return domain.User{}, &ValidationError{Messages: []string{"Email is not valid."}}
	}
	u.Email = email
	u.Profile = profile
	if err := a.store.SaveUser(u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// ChangePassword replaces the credential and sends a confirmation email.
// The email is awaited so the user is not redirected before it is accepted
// by the provider.
func (a *App) ChangePassword(ctx context.Context, userID, password, confirm string) error {
	if err := a.validatePassword(password, confirm); err != nil {
		return err
	}
	u, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash
	if err := a.store.SaveUser(u); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return a.sendPasswordChanged(ctx, u)
}

// DeleteAccount removes the staff account and its linked identities.
func (a *App) DeleteAccount(ctx context.Context, userID string) error {
	return a.store.DeleteUser(userID)
}

// UnlinkProvider drops the given provider's tokens from the account.
func (a *App) UnlinkProvider(ctx context.Context, userID, provider string) (domain.User, error) {
	u, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("look up user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrInvalidCredentials
	}
	kept := u.Tokens[:0]
	for _, t := range u.Tokens {
		if t.Kind != provider {
			kept = append(kept, t)
		}
	}
	u.Tokens = kept
	if err := a.store.SaveUser(u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// OAuthLogin unifies an external identity onto a staff account by email.
// A first-time identity creates the account; a returning one refreshes the
// stored provider token.
func (a *App) OAuthLogin(ctx context.Context, provider, email, name, accessToken string) (domain.User, error) {
	email = normalizeEmail(email)
	if err := a.validate.Var(email, "required,email"); err != nil {
		return domain.User{}, fmt.Errorf("provider returned no usable email")
	}
	u, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("look up user: %w", err)
	}
	if !ok {
		u = domain.User{
			ID:        uuid.NewString(),
			Email:     email,
			OrgID:     a.defaultOrgID,
			Profile:   domain.Profile{Name: name},
			CreatedAt: time.Now().UTC(),
		}
	}
	if u.Profile.Name == "" {
		u.Profile.Name = name
	}
	kept := make([]domain.ProviderToken, 0, len(u.Tokens)+1)
	for _, t := range u.Tokens {
		if t.Kind != provider {
			kept = append(kept, t)
		}
	}
	kept = append(kept, domain.ProviderToken{Kind: provider, AccessToken: accessToken})
	u.Tokens = kept
	if err := a.store.SaveUser(u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (a *App) sendPasswordChanged(ctx context.Context, u domain.User) error {
	return a.mailer.SendTemplate(ctx, mail.Message{
		Template: mail.TemplatePasswordChanged,
		To:       []mail.Address{{Email: u.Email, Name: u.Profile.Name}},
		Vars:     map[string]string{"USERNAME": u.Email},
		Tags:     []string{"password_emails"},
	})
}

func (a *App) validateCredentials(email, password, confirm string) error {
	ve := &ValidationError{}
	if err := a.validate.Var(email, "required,email"); err != nil {
		ve.Messages = append(ve.Messages, "Email is not valid.")
	}
	if len(password) < 6 {
		ve.Messages = append(ve.Messages, "Password must be at least 6 characters long.")
	}
	if password != confirm {
		ve.Messages = append(ve.Messages, "Passwords do not match.")
	}
	if len(ve.Messages) > 0 {
		return ve
	}
	return nil
}

func (a *App) validatePassword(password, confirm string) error {
	ve := &ValidationError{}
	if len(password) < 6 {
		ve.Messages = append(ve.Messages, "Password must be at least 6 characters long.")
	}
	if password != confirm {
		ve.Messages = append(ve.Messages, "Passwords do not match.")
	}
	if len(ve.Messages) > 0 {
		return ve
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
