package userdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// RepoKey identifies a repository.
type RepoKey struct {
	Owner string
	Name  string
}

func (k RepoKey) String() string {
	return k.Owner + "/" + k.Name
}

// Repo is a cached GitHub repository.
type Repo struct {
	Owner       string
	Name        string
	ID          int64
	FullName    string
	Description string
	OwnerURL    string
	Stars       int
	FetchedAt   time.Time
}

// Key returns the key the repository is stored under.
func (r *Repo) Key() RepoKey {
	return RepoKey{Owner: r.Owner, Name: r.Name}
}

// Contributor is a contributor of a cached repository.
type Contributor struct {
	Login         string
	Contributions int
	AvatarURL     string
}

// Contributors is the cached contributor list of a repository, most active first.
type Contributors struct {
	Owner     string
	Name      string
	List      []Contributor
	FetchedAt time.Time
}

type repoRow struct {
	Owner       string `db:"owner"`
	Name        string `db:"name"`
	ID          int64  `db:"id"`
	FullName    string `db:"full_name"`
	Description string `db:"description"`
	OwnerURL    string `db:"owner_url"`
	Stars       int    `db:"stars"`
	FetchedAt   int64  `db:"fetched_at"` // unix milliseconds
}

func (r repoRow) repo() *Repo {
	return &Repo{
		Owner:       r.Owner,
		Name:        r.Name,
		ID:          r.ID,
		FullName:    r.FullName,
		Description: r.Description,
		OwnerURL:    r.OwnerURL,
		Stars:       r.Stars,
		FetchedAt:   fromMillis(r.FetchedAt),
	}
}

type contributorRow struct {
	RepoOwner     string `db:"repo_owner"`
	RepoName      string `db:"repo_name"`
	Login         string `db:"login"`
	Contributions int    `db:"contributions"`
	AvatarURL     string `db:"avatar_url"`
	FetchedAt     int64  `db:"fetched_at"`
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms).UTC()
}

// FindRepo returns a stream with the stored repository (nil if absent) followed by every change.
// The stream is closed when ctx is done.
func (s *Store) FindRepo(ctx context.Context, owner, name string) (<-chan *Repo, error) {
	key := RepoKey{Owner: owner, Name: name}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getRepo(ctx, key)
	if err != nil {
		return nil, err
	}

	return s.repos.Subscribe(ctx, key, r), nil
}

// GetRepo returns the stored repository, or nil if there is none.
func (s *Store) GetRepo(ctx context.Context, owner, name string) (*Repo, error) {
	return s.getRepo(ctx, RepoKey{Owner: owner, Name: name})
}

func (s *Store) getRepo(ctx context.Context, key RepoKey) (*Repo, error) {
	const query = `SELECT owner, name, id, full_name, description, owner_url, stars, fetched_at
		FROM repos WHERE owner = ? AND name = ?`

	var row repoRow

	err := s.db.GetContext(ctx, &row, query, key.Owner, key.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // absent repo is not an error
	}

	if err != nil {
		return nil, fmt.Errorf("getting repo %s: %w", key, err)
	}

	return row.repo(), nil
}

// InsertRepo stores the repository, replacing an existing one with the same owner and name, and notifies readers.
func (s *Store) InsertRepo(ctx context.Context, r *Repo) error {
	const query = `INSERT INTO repos (owner, name, id, full_name, description, owner_url, stars, fetched_at)
		VALUES (:owner, :name, :id, :full_name, :description, :owner_url, :stars, :fetched_at)
		ON CONFLICT(owner, name) DO UPDATE SET
			id = excluded.id,
			full_name = excluded.full_name,
			description = excluded.description,
			owner_url = excluded.owner_url,
			stars = excluded.stars,
			fetched_at = excluded.fetched_at`

	if r == nil || r.Owner == "" || r.Name == "" {
		return errors.New("inserting repo: owner and name are required")
	}

	row := repoRow{
		Owner:       r.Owner,
		Name:        r.Name,
		ID:          r.ID,
		FullName:    r.FullName,
		Description: r.Description,
		OwnerURL:    r.OwnerURL,
		Stars:       r.Stars,
		FetchedAt:   toMillis(r.FetchedAt),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("inserting repo %s: %w", r.Key(), err)
	}

	s.log.DebugContext(ctx, "repo stored", slog.String("repo", r.Key().String()))
	s.repos.Publish(r.Key(), row.repo())

	return nil
}

// FindContributors returns a stream with the stored contributors of owner/name followed by every change.
// A repository without stored contributors is nil. The stream is closed when ctx is done.
func (s *Store) FindContributors(ctx context.Context, owner, name string) (<-chan *Contributors, error) {
	key := RepoKey{Owner: owner, Name: name}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.getContributors(ctx, key)
	if err != nil {
		return nil, err
	}

	return s.contributors.Subscribe(ctx, key, c), nil
}

// GetContributors returns the stored contributors of owner/name, or nil if there are none.
func (s *Store) GetContributors(ctx context.Context, owner, name string) (*Contributors, error) {
	return s.getContributors(ctx, RepoKey{Owner: owner, Name: name})
}

func (s *Store) getContributors(ctx context.Context, key RepoKey) (*Contributors, error) {
	const query = `SELECT repo_owner, repo_name, login, contributions, avatar_url, fetched_at
		FROM contributors WHERE repo_owner = ? AND repo_name = ?
		ORDER BY contributions DESC, login`

	var rows []contributorRow
	if err := s.db.SelectContext(ctx, &rows, query, key.Owner, key.Name); err != nil {
		return nil, fmt.Errorf("getting contributors of %s: %w", key, err)
	}

	return toContributors(key, rows), nil
}

func toContributors(key RepoKey, rows []contributorRow) *Contributors {
	if len(rows) == 0 {
		return nil
	}

	c := &Contributors{
		Owner:     key.Owner,
		Name:      key.Name,
		List:      make([]Contributor, 0, len(rows)),
		FetchedAt: fromMillis(rows[0].FetchedAt),
	}

	for _, r := range rows {
		c.List = append(c.List, Contributor{
			Login:         r.Login,
			Contributions: r.Contributions,
			AvatarURL:     r.AvatarURL,
		})
	}

	return c
}

// ReplaceContributors replaces the stored contributor list of the repository and notifies readers.
// An empty list removes the stored contributors.
func (s *Store) ReplaceContributors(ctx context.Context, c *Contributors) error {
	const insert = `INSERT INTO contributors (repo_owner, repo_name, login, contributions, avatar_url, fetched_at)
		VALUES (:repo_owner, :repo_name, :login, :contributions, :avatar_url, :fetched_at)`

	if c == nil || c.Owner == "" || c.Name == "" {
		return errors.New("replacing contributors: owner and name are required")
	}

	key := RepoKey{Owner: c.Owner, Name: c.Name}

	rows := make([]contributorRow, 0, len(c.List))
	for _, item := range c.List {
		rows = append(rows, contributorRow{
			RepoOwner:     key.Owner,
			RepoName:      key.Name,
			Login:         item.Login,
			Contributions: item.Contributions,
			AvatarURL:     item.AvatarURL,
			FetchedAt:     toMillis(c.FetchedAt),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replacing contributors of %s: %w", key, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM contributors WHERE repo_owner = ? AND repo_name = ?`, key.Owner, key.Name); err != nil {
		return fmt.Errorf("replacing contributors of %s: %w", key, err)
	}

	if len(rows) > 0 {
		if _, err := tx.NamedExecContext(ctx, insert, rows); err != nil {
			return fmt.Errorf("replacing contributors of %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replacing contributors of %s: %w", key, err)
	}

	s.log.DebugContext(ctx, "contributors stored",
		slog.String("repo", key.String()),
		slog.Int("count", len(rows)))
	s.contributors.Publish(key, sortedContributors(key, rows))

	return nil
}

// sortedContributors returns what getContributors would read back for rows.
func sortedContributors(key RepoKey, rows []contributorRow) *Contributors {
	sorted := append([]contributorRow(nil), rows...)
	slices.SortStableFunc(sorted, func(a, b contributorRow) int {
		if a.Contributions != b.Contributions {
			return b.Contributions - a.Contributions
		}
		return strings.Compare(a.Login, b.Login)
	})

	return toContributors(key, sorted)
}
