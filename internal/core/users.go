package core

import (
	"context"
	"fmt"
	"strings"

	"hadilab/pkg/domain"
)

// CreateUser registers a user. Only admins may create users.
func (s *Service) CreateUser(ctx context.Context, actor *User, user User) (User, error) {
	const op = "create_user"
	var created User
	err := s.run(ctx, op, func(ctx context.Context) error {
		if err := domain.RequireActor(actor); err != nil {
			return err
		}
		if !domain.IsAdminRole(actor.Role) {
			return domain.NewPermissionError(actor, domain.PermissionCreate, &domain.Resource{Type: domain.EntityUser})
		}
		if err := validateUser(user); err != nil {
			return err
		}
		return s.transact(ctx, op, func(tx Transaction) error {
			var err error
			created, err = tx.CreateUser(normalizeUser(user))
			return err
		})
	})
	if err != nil {
		return User{}, err
	}
	s.recordActivity(ctx, op, Activity{
		Type:        domain.ActivityCreated,
		Description: fmt.Sprintf("user %s created with role %s", created.Name, created.Role),
		EntityType:  domain.EntityUser,
		EntityID:    created.ID,
		ActorID:     actor.ID,
	})
	return created, nil
}

// EnsureUser creates the user unless one with the same ID already exists.
// It performs no permission check and is meant for process bootstrap.
func (s *Service) EnsureUser(ctx context.Context, user User) (User, bool, error) {
	const op = "ensure_user"
	var out User
	var created bool
	err := s.run(ctx, op, func(ctx context.Context) error {
		if err := validateUser(user); err != nil {
			return err
		}
		return s.transact(ctx, op, func(tx Transaction) error {
			if user.ID != "" {
				if existing, ok := tx.Snapshot().FindUser(user.ID); ok {
					out = existing
					return nil
				}
			}
			var err error
			out, err = tx.CreateUser(normalizeUser(user))
			created = err == nil
			return err
		})
	})
	return out, created, err
}

// GetUser returns a stored user. It is the lookup used by actor resolution
// and performs no permission check.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	var user User
	err := s.view(ctx, func(v TransactionView) error {
		u, ok := v.FindUser(id)
		if !ok {
			return domain.NotFoundError(domain.EntityUser, id)
		}
		user = u
		return nil
	})
	return user, err
}

// ListUsers returns every user to an authenticated actor.
func (s *Service) ListUsers(ctx context.Context, actor *User) ([]User, error) {
	if err := s.evaluator.Check(actor, domain.PermissionView, nil); err != nil {
		return nil, err
	}
	var users []User
	err := s.view(ctx, func(v TransactionView) error {
		users = v.ListUsers()
		return nil
	})
	return users, err
}

func validateUser(u User) error {
	if strings.TrimSpace(u.Name) == "" {
		return domain.InvalidError("user name is required")
	}
	if !u.Role.Known() {
		return domain.InvalidError(fmt.Sprintf("unknown role %q", u.Role))
	}
	return nil
}

// normalizeUser defaults the status to ACTIVE and derives IsActive from it.
func normalizeUser(u User) User {
	if u.Status == "" {
		u.Status = domain.UserStatusActive
	}
	u.IsActive = u.Status == domain.UserStatusActive
	return u
}
