package userdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/n-r-w/boundres/internal/watch"
)

// User is a cached GitHub user.
type User struct {
	Login     string
	ID        int64
	Name      string
	Company   string
	AvatarURL string
	ReposURL  string
	Blog      string
	FetchedAt time.Time
}

// userRow is the database representation of User.
type userRow struct {
	Login     string `db:"login"`
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	Company   string `db:"company"`
	AvatarURL string `db:"avatar_url"`
	ReposURL  string `db:"repos_url"`
	Blog      string `db:"blog"`
	FetchedAt int64  `db:"fetched_at"` // unix milliseconds
}

func toRow(u *User) userRow {
	return userRow{
		Login:     u.Login,
		ID:        u.ID,
		Name:      u.Name,
		Company:   u.Company,
		AvatarURL: u.AvatarURL,
		ReposURL:  u.ReposURL,
		Blog:      u.Blog,
		FetchedAt: toMillis(u.FetchedAt),
	}
}

func (r userRow) user() *User {
	return &User{
		Login:     r.Login,
		ID:        r.ID,
		Name:      r.Name,
		Company:   r.Company,
		AvatarURL: r.AvatarURL,
		ReposURL:  r.ReposURL,
		Blog:      r.Blog,
		FetchedAt: fromMillis(r.FetchedAt),
	}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. By default, nothing is logged.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// Store provides observable access to the cached tables.
type Store struct {
	// mu orders a read's query and its subscription against writes,
	// so a stream never misses a write made between the two.
	mu           sync.Mutex
	db           *sqlx.DB
	hub          *watch.Hub[string, User]
	repos        *watch.Hub[RepoKey, Repo]
	contributors *watch.Hub[RepoKey, Contributors]
	log          *slog.Logger
}

// NewStore creates a Store on top of an opened database.
func NewStore(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{
		db:           db,
		hub:          watch.New[string, User](),
		repos:        watch.New[RepoKey, Repo](),
		contributors: watch.New[RepoKey, Contributors](),
		log:          slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Close terminates the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing store : %w", err)
	}

	return nil
}

// FindByLogin returns a stream with the stored user for login (nil if absent) followed by every change.
// The stream is closed when ctx is done.
func (s *Store) FindByLogin(ctx context.Context, login string) (<-chan *User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.get(ctx, login)
	if err != nil {
		return nil, err
	}

	return s.hub.Subscribe(ctx, login, u), nil
}

// Get returns the stored user for login, or nil if there is none.
func (s *Store) Get(ctx context.Context, login string) (*User, error) {
	return s.get(ctx, login)
}

func (s *Store) get(ctx context.Context, login string) (*User, error) {
	const query = `SELECT login, id, name, company, avatar_url, repos_url, blog, fetched_at
		FROM users WHERE login = ?`

	var row userRow

	err := s.db.GetContext(ctx, &row, query, login)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // absent user is not an error
	}

	if err != nil {
		return nil, fmt.Errorf("getting user %s: %w", login, err)
	}

	return row.user(), nil
}

// Insert stores the user, replacing an existing one with the same login, and notifies readers.
func (s *Store) Insert(ctx context.Context, u *User) error {
	const query = `INSERT INTO users (login, id, name, company, avatar_url, repos_url, blog, fetched_at)
		VALUES (:login, :id, :name, :company, :avatar_url, :repos_url, :blog, :fetched_at)
		ON CONFLICT(login) DO UPDATE SET
			id = excluded.id,
			name = excluded.name,
			company = excluded.company,
			avatar_url = excluded.avatar_url,
			repos_url = excluded.repos_url,
			blog = excluded.blog,
			fetched_at = excluded.fetched_at`

	if u == nil || u.Login == "" {
		return errors.New("inserting user: login is required")
	}

	row := toRow(u)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("inserting user %s: %w", u.Login, err)
	}

	s.log.DebugContext(ctx, "user stored", slog.String("login", u.Login))
	s.hub.Publish(u.Login, row.user())

	return nil
}

// Delete removes the user and notifies readers with nil.
func (s *Store) Delete(ctx context.Context, login string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE login = ?`, login)
	if err != nil {
		return fmt.Errorf("deleting user %s: %w", login, err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.hub.Publish(login, nil)
	}

	return nil
}
