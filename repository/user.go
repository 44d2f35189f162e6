// Package repository exposes cached GitHub data as streams of load states.
package repository

import (
	"context"
	"fmt"

	"github.com/n-r-w/boundres"
	"github.com/n-r-w/boundres/github"
	"github.com/n-r-w/boundres/userdb"
)

// UserStore is the local cache of users.
type UserStore interface {
	FindByLogin(ctx context.Context, login string) (<-chan *userdb.User, error)
	Insert(ctx context.Context, u *userdb.User) error
}

// UserService is the remote source of users.
type UserService interface {
	GetUser(ctx context.Context, login string) (*github.User, error)
}

// UserRepository handles User objects.
type UserRepository struct {
	settings

	store   UserStore
	service UserService
}

// NewUserRepository creates a UserRepository. All loads share one disk executor,
// so writes to the store are serialized.
func NewUserRepository(store UserStore, service UserService, opts ...Option) (*UserRepository, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}

	return &UserRepository{
		settings: s,
		store:    store,
		service:  service,
	}, nil
}

// LoadUser starts loading the user with the given login. The caller owns the returned subscription.
func (r *UserRepository) LoadUser(ctx context.Context, login string) (*boundres.Subscription[userdb.User], error) {
	m, err := boundres.New(boundres.Config[userdb.User, *github.User]{
		ReadCache: func(ctx context.Context) (<-chan *userdb.User, error) {
			return r.store.FindByLogin(ctx, login)
		},
		ShouldFetch: r.shouldFetch,
		Fetch: func(ctx context.Context) (*github.User, error) {
			u, err := r.service.GetUser(ctx, login)
			if err == nil && u == nil {
				return nil, boundres.ErrEmptyResponse
			}
			return u, err
		},
		Save: func(ctx context.Context, u *github.User) error {
			return r.store.Insert(ctx, r.toCached(login, u))
		},
	}, r.mediatorOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading user %s: %w", login, err)
	}

	return m.Run(ctx), nil
}

func (r *UserRepository) shouldFetch(u *userdb.User) bool {
	return u == nil || r.stale(u.FetchedAt)
}

// toCached keys the record by the requested login: the API may return it with a different case.
func (r *UserRepository) toCached(login string, u *github.User) *userdb.User {
	return &userdb.User{
		Login:     login,
		ID:        u.ID,
		Name:      u.Name,
		Company:   u.Company,
		AvatarURL: u.AvatarURL,
		ReposURL:  u.ReposURL,
		Blog:      u.Blog,
		FetchedAt: r.now().UTC(),
	}
}
