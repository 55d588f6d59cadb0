package store

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"applydesk/internal/domain"
)

// ErrDuplicateEmail reports a signup against an already-registered address.
var ErrDuplicateEmail = errors.New("email already registered")

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &ProviderTokenModel{}, &PositionModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser registers or updates a user along with its linked provider tokens.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"email", "password_hash", "org_id", "name", "location", "website",
				"reset_password_token", "reset_password_expires",
			}),
		}).Omit("Tokens").Create(&model).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ProviderTokenModel{}, "user_id = ?", u.ID).Error; err != nil {
			return err
		}
		if len(model.Tokens) == 0 {
			return nil
		}
		return tx.Create(&model.Tokens).Error
	})
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	return s.getUser("email = ?", email)
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	return s.getUser("id = ?", id)
}

// GetUserByResetToken looks up a user holding the given reset token.
// Expiry is checked by the caller.
func (s *GormStore) GetUserByResetToken(token string) (domain.User, bool, error) {
	if token == "" {
		return domain.User{}, false, nil
	}
	return s.getUser("reset_password_token = ?", token)
}

func (s *GormStore) getUser(cond string, arg any) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Preload("Tokens").Where(cond, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsersByOrg returns every staff account in the organization.
func (s *GormStore) ListUsersByOrg(orgID string) ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Preload("Tokens").Where("org_id = ?", orgID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// DeleteUser removes the account and its provider tokens.
func (s *GormStore) DeleteUser(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ProviderTokenModel{}, "user_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&UserModel{}, "id = ?", id).Error
	})
}

// SavePosition stores or updates an open role.
func (s *GormStore) SavePosition(p domain.Position) error {
	model := positionToModel(p)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "starting_date"}),
	}).Create(&model).Error
}

// GetPosition retrieves a position by ID.
func (s *GormStore) GetPosition(id string) (domain.Position, bool, error) {
	var model PositionModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Position{}, false, nil
		}
		return domain.Position{}, false, err
	}
	return positionFromModel(model), true, nil
}

// ListPositionsByOrg returns an organization's positions, newest first.
func (s *GormStore) ListPositionsByOrg(orgID string) ([]domain.Position, error) {
	var models []PositionModel
	if err := s.db.Where("org_id = ?", orgID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Position, 0, len(models))
	for _, m := range models {
		res = append(res, positionFromModel(m))
	}
	return res, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// pgx surfaces SQLSTATE 23505 for unique constraint violations.
	return strings.Contains(err.Error(), "23505")
}

func userToModel(u domain.User) UserModel {
	tokens := make([]ProviderTokenModel, 0, len(u.Tokens))
	for _, t := range u.Tokens {
		tokens = append(tokens, ProviderTokenModel{
			UserID:      u.ID,
			Kind:        t.Kind,
			AccessToken: t.AccessToken,
		})
	}
	return UserModel{
		ID:                   u.ID,
		Email:                u.Email,
		PasswordHash:         u.PasswordHash,
		OrgID:                u.OrgID,
		Name:                 u.Profile.Name,
		Location:             u.Profile.Location,
		Website:              u.Profile.Website,
		ResetPasswordToken:   u.ResetPasswordToken,
		ResetPasswordExpires: u.ResetPasswordExpires,
		CreatedAt:            u.CreatedAt,
		Tokens:               tokens,
	}
}

func userFromModel(m UserModel) domain.User {
	tokens := make([]domain.ProviderToken, 0, len(m.Tokens))
	for _, t := range m.Tokens {
		tokens = append(tokens, domain.ProviderToken{
			Kind:        t.Kind,
			AccessToken: t.AccessToken,
		})
	}
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		OrgID:        m.OrgID,
		Profile: domain.Profile{
			Name:     m.Name,
			Location: m.Location,
			Website:  m.Website,
		},
		ResetPasswordToken:   m.ResetPasswordToken,
		ResetPasswordExpires: m.ResetPasswordExpires,
		CreatedAt:            m.CreatedAt,
		Tokens:               tokens,
	}
}

func positionToModel(p domain.Position) PositionModel {
	return PositionModel{
		ID:           p.ID,
		OrgID:        p.OrgID,
		Title:        p.Title,
		StartingDate: p.StartingDate,
		CreatedAt:    p.CreatedAt,
	}
}

func positionFromModel(m PositionModel) domain.Position {
	return domain.Position{
		ID:           m.ID,
		OrgID:        m.OrgID,
		Title:        m.Title,
		StartingDate: m.StartingDate,
		CreatedAt:    m.CreatedAt,
	}
}
