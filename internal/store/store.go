package store

import "applydesk/internal/domain"

// Store persists hiring-staff accounts and open positions.
// Application records never pass through here; they live in the search index.
type Store interface {
	SaveUser(u domain.User) error
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	GetUserByResetToken(token string) (domain.User, bool, error)
	ListUsersByOrg(orgID string) ([]domain.User, error)
	DeleteUser(id string) error

	SavePosition(p domain.Position) error
	GetPosition(id string) (domain.Position, bool, error)
	ListPositionsByOrg(orgID string) ([]domain.Position, error)
}
