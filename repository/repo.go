package repository

import (
	"context"
	"fmt"

	"github.com/n-r-w/boundres"
	"github.com/n-r-w/boundres/github"
	"github.com/n-r-w/boundres/userdb"
)

// RepoStore is the local cache of repositories and their contributors.
type RepoStore interface {
	FindRepo(ctx context.Context, owner, name string) (<-chan *userdb.Repo, error)
	InsertRepo(ctx context.Context, r *userdb.Repo) error
	FindContributors(ctx context.Context, owner, name string) (<-chan *userdb.Contributors, error)
	ReplaceContributors(ctx context.Context, c *userdb.Contributors) error
}

// RepoService is the remote source of repositories.
type RepoService interface {
	GetRepo(ctx context.Context, owner, name string) (*github.Repo, error)
	ListContributors(ctx context.Context, owner, name string) ([]github.Contributor, error)
}

// RepoRepository handles Repo and Contributor objects.
type RepoRepository struct {
	settings

	store   RepoStore
	service RepoService
}

// NewRepoRepository creates a RepoRepository. Repository and contributor loads share one disk executor.
func NewRepoRepository(store RepoStore, service RepoService, opts ...Option) (*RepoRepository, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}

	return &RepoRepository{
		settings: s,
		store:    store,
		service:  service,
	}, nil
}

// LoadRepo starts loading the repository owner/name. The caller owns the returned subscription.
func (r *RepoRepository) LoadRepo(ctx context.Context, owner, name string) (*boundres.Subscription[userdb.Repo], error) {
	m, err := boundres.New(boundres.Config[userdb.Repo, *github.Repo]{
		ReadCache: func(ctx context.Context) (<-chan *userdb.Repo, error) {
			return r.store.FindRepo(ctx, owner, name)
		},
		ShouldFetch: func(repo *userdb.Repo) bool {
			return repo == nil || r.stale(repo.FetchedAt)
		},
		Fetch: func(ctx context.Context) (*github.Repo, error) {
			repo, err := r.service.GetRepo(ctx, owner, name)
			if err == nil && repo == nil {
				return nil, boundres.ErrEmptyResponse
			}
			return repo, err
		},
		Save: func(ctx context.Context, repo *github.Repo) error {
			return r.store.InsertRepo(ctx, r.toCachedRepo(owner, name, repo))
		},
	}, r.mediatorOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading repo %s/%s: %w", owner, name, err)
	}

	return m.Run(ctx), nil
}

// LoadContributors starts loading the contributors of owner/name.
// An empty cached list is fetched again. The caller owns the returned subscription.
func (r *RepoRepository) LoadContributors(
	ctx context.Context, owner, name string,
) (*boundres.Subscription[userdb.Contributors], error) {
	m, err := boundres.New(boundres.Config[userdb.Contributors, []github.Contributor]{
		ReadCache: func(ctx context.Context) (<-chan *userdb.Contributors, error) {
			return r.store.FindContributors(ctx, owner, name)
		},
		ShouldFetch: func(c *userdb.Contributors) bool {
			return c == nil || len(c.List) == 0 || r.stale(c.FetchedAt)
		},
		Fetch: func(ctx context.Context) ([]github.Contributor, error) {
			return r.service.ListContributors(ctx, owner, name)
		},
		Save: func(ctx context.Context, list []github.Contributor) error {
			return r.store.ReplaceContributors(ctx, r.toCachedContributors(owner, name, list))
		},
	}, r.mediatorOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading contributors of %s/%s: %w", owner, name, err)
	}

	return m.Run(ctx), nil
}

// toCachedRepo keys the record by the requested owner and name.
func (r *RepoRepository) toCachedRepo(owner, name string, repo *github.Repo) *userdb.Repo {
	return &userdb.Repo{
		Owner:       owner,
		Name:        name,
		ID:          repo.ID,
		FullName:    repo.FullName,
		Description: repo.Description,
		OwnerURL:    repo.Owner.URL,
		Stars:       repo.Stars,
		FetchedAt:   r.now().UTC(),
	}
}

func (r *RepoRepository) toCachedContributors(owner, name string, list []github.Contributor) *userdb.Contributors {
	c := &userdb.Contributors{
		Owner:     owner,
		Name:      name,
		List:      make([]userdb.Contributor, 0, len(list)),
		FetchedAt: r.now().UTC(),
	}

	for _, item := range list {
		c.List = append(c.List, userdb.Contributor{
			Login:         item.Login,
			Contributions: item.Contributions,
			AvatarURL:     item.AvatarURL,
		})
	}

	return c
}
