package store

import (
	"testing"
	"time"

	"applydesk/internal/domain"
)

func TestMemoryStoreUserLifecycle(t *testing.T) {
	s := NewMemoryStore()
	u := domain.User{ID: "u1", Email: "staff@example.com", OrgID: "42"}
	if err := s.SaveUser(u); err != nil {
		t.Fatalf("save user: %v", err)
	}

	got, ok, err := s.GetUserByEmail("staff@example.com")
	if err != nil || !ok {
		t.Fatalf("get by email: ok=%v err=%v", ok, err)
	}
	if got.ID != "u1" || got.OrgID != "42" {
		t.Fatalf("unexpected user: %+v", got)
	}

	other := domain.User{ID: "u2", Email: "staff@example.com"}
	if err := s.SaveUser(other); err != ErrDuplicateEmail {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	if err := s.DeleteUser("u1"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, ok, _ := s.GetUserByEmail("staff@example.com"); ok {
		t.Fatalf("deleted user still resolvable by email")
	}
}

func TestMemoryStoreResetTokenLookup(t *testing.T) {
	s := NewMemoryStore()
	u := domain.User{ID: "u1", Email: "a@example.com", ResetPasswordToken: "tok-1"}
	if err := s.SaveUser(u); err != nil {
		t.Fatalf("save user: %v", err)
	}
	if _, ok, _ := s.GetUserByResetToken("tok-1"); !ok {
		t.Fatalf("expected lookup by reset token to succeed")
	}
	if _, ok, _ := s.GetUserByResetToken(""); ok {
		t.Fatalf("empty token must never match")
	}
}

func TestMemoryStoreListUsersByOrg(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now().UTC()
	users := []domain.User{
		{ID: "u1", Email: "a@example.com", OrgID: "42", CreatedAt: base},
		{ID: "u2", Email: "b@example.com", OrgID: "42", CreatedAt: base.Add(time.Second)},
		{ID: "u3", Email: "c@example.com", OrgID: "7", CreatedAt: base},
	}
	for _, u := range users {
		if err := s.SaveUser(u); err != nil {
			t.Fatalf("save user %s: %v", u.ID, err)
		}
	}

	staff, err := s.ListUsersByOrg("42")
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(staff) != 2 {
		t.Fatalf("expected 2 staff, got %d", len(staff))
	}
	if staff[0].ID != "u1" || staff[1].ID != "u2" {
		t.Fatalf("expected oldest first, got %v, %v", staff[0].ID, staff[1].ID)
	}
}

func TestMemoryStorePositionsOrderedNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now().UTC()
	for i, id := range []string{"p1", "p2", "p3"} {
		err := s.SavePosition(domain.Position{
			ID:        id,
			OrgID:     "42",
			Title:     "Engineer",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("save position: %v", err)
		}
	}
	_ = s.SavePosition(domain.Position{ID: "other", OrgID: "7", CreatedAt: base})

	list, err := s.ListPositionsByOrg("42")
	if err != nil {
		t.Fatalf("list positions: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 positions, got %d", len(list))
	}
	if list[0].ID != "p3" || list[2].ID != "p1" {
		t.Fatalf("expected newest first, got %v, %v, %v", list[0].ID, list[1].ID, list[2].ID)
	}
}
