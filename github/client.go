// Package github is the remote side of the repositories: a small client of the GitHub REST API.
package github

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/n-r-w/boundres"
)

// DefaultBaseURL is the public GitHub API.
const DefaultBaseURL = "https://api.github.com"

// User is a GitHub user as returned by the API.
type User struct {
	Login     string `json:"login"`
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Company   string `json:"company"`
	AvatarURL string `json:"avatar_url"`
	ReposURL  string `json:"repos_url"`
	Blog      string `json:"blog"`
}

// Owner is the account a repository belongs to.
type Owner struct {
	Login string `json:"login"`
	URL   string `json:"url"`
}

// Repo is a GitHub repository as returned by the API.
type Repo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	Owner       Owner  `json:"owner"`
	Stars       int    `json:"stargazers_count"`
}

// Contributor is a repository contributor as returned by the API.
type Contributor struct {
	Login         string `json:"login"`
	Contributions int    `json:"contributions"`
	AvatarURL     string `json:"avatar_url"`
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the API root. By default, DefaultBaseURL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithToken sets a token sent as a bearer authorization header.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the HTTP/2 client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

// WithLogger sets the logger. By default, nothing is logged.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// Client calls the GitHub API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *slog.Logger
}

// NewClient creates a Client.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: DefaultBaseURL,
		log:     slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(c)
	}

	if _, err := url.Parse(c.baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", c.baseURL, err)
	}

	if c.http == nil {
		c.http = NewHTTP2Client(30 * time.Second)
	}

	return c, nil
}

// NewHTTP2Client creates an HTTP/2 client over TLS.
func NewHTTP2Client(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http2.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}

// MaxResponseSize caps the response bodies the client reads.
const MaxResponseSize = 1 << 20

// ErrResponseTooLarge is returned when a response body exceeds MaxResponseSize.
var ErrResponseTooLarge = errors.New("response body too large")

// errorBody is the error payload of the GitHub API.
type errorBody struct {
	Message string `json:"message"`
}

// GetUser fetches a user by login.
//
// A non-2xx response is returned as *boundres.APIError carrying the API message.
// A 204 response is returned as boundres.ErrEmptyResponse.
func (c *Client) GetUser(ctx context.Context, login string) (*User, error) {
	if login == "" {
		return nil, errors.New("login is required")
	}

	var u User
	if err := c.get(ctx, "/users/"+url.PathEscape(login), &u); err != nil {
		return nil, err
	}

	return &u, nil
}

// GetRepo fetches the repository owner/name. Errors are reported as by GetUser.
func (c *Client) GetRepo(ctx context.Context, owner, name string) (*Repo, error) {
	path, err := repoPath(owner, name)
	if err != nil {
		return nil, err
	}

	var r Repo
	if err := c.get(ctx, path, &r); err != nil {
		return nil, err
	}

	return &r, nil
}

// ListContributors fetches the first page of contributors of owner/name, most active first.
// GitHub answers 204 for an empty repository, which is returned as boundres.ErrEmptyResponse.
func (c *Client) ListContributors(ctx context.Context, owner, name string) ([]Contributor, error) {
	path, err := repoPath(owner, name)
	if err != nil {
		return nil, err
	}

	var list []Contributor
	if err := c.get(ctx, path+"/contributors?per_page=100", &list); err != nil {
		return nil, err
	}

	return list, nil
}

func repoPath(owner, name string) (string, error) {
	if owner == "" || name == "" {
		return "", errors.New("owner and name are required")
	}

	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name), nil
}

// get calls the API and decodes a 2xx JSON body into v.
func (c *Client) get(ctx context.Context, path string, v any) error {
	endpoint := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request : %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("getting %s : %w", endpoint, err)
	}
	defer res.Body.Close()

	c.log.DebugContext(ctx, "github response",
		slog.String("path", path),
		slog.Int("status", res.StatusCode))

	body, err := io.ReadAll(io.LimitReader(res.Body, MaxResponseSize+1))
	if err != nil {
		return fmt.Errorf("reading resp body : %w", err)
	}

	if len(body) > MaxResponseSize {
		return fmt.Errorf("getting %s : %w", endpoint, ErrResponseTooLarge)
	}

	switch {
	case res.StatusCode == http.StatusNoContent:
		return boundres.ErrEmptyResponse
	case res.StatusCode < 200 || res.StatusCode > 299:
		apiErr := &boundres.APIError{StatusCode: res.StatusCode}

		var eb errorBody
		if json.Unmarshal(body, &eb) == nil {
			apiErr.Message = eb.Message
		}

		return apiErr
	}

	if len(body) == 0 {
		return boundres.ErrEmptyResponse
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s JSON: %w", path, err)
	}

	return nil
}
