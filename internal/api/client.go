// Package api is the typed client for the git-analyser REST API.
//
// Every method is one call through the fetch pipeline against a fixed
// JSON Schema, so callers either get a fully validated value or one of the
// apperror sentinels.
package api

import (
	"context"
	"embed"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sakif/gitviz/internal/fetch"
	"github.com/sakif/gitviz/internal/model"
)

//go:embed schemas/*.json
var schemaFS embed.FS

func mustSchema(name, file string) *fetch.Schema {
	doc, err := schemaFS.ReadFile("schemas/" + file)
	if err != nil {
		panic(fmt.Sprintf("api: missing embedded schema %s: %v", file, err))
	}
	return fetch.MustCompileSchema(name, doc)
}

// Response schemas, one per resource.
var (
	UserSchema         = mustSchema("user", "user.json")
	RepositorySchema   = mustSchema("repository", "repository.json")
	RepositoriesSchema = mustSchema("repositories", "repositories.json")
	BranchesSchema     = mustSchema("branches", "branches.json")
	CommitsSchema      = mustSchema("commits", "commits.json")
	CommittersSchema   = mustSchema("committers", "committers.json")
	StatsSchema        = mustSchema("stats", "stats.json")
	AssignmentsSchema  = mustSchema("assignments", "assignments.json")
	TokenPairSchema    = mustSchema("refresh", "token_pair.json")
)

// Branch scopes a branch-level query. Mapped asks the API to fold
// committer names through the repository's assignments.
type Branch struct {
	RepositoryID int64
	Name         string
	Mapped       bool
}

// Client talks to one API deployment.
type Client struct {
	base    *url.URL
	fetcher *fetch.Fetcher
}

// New creates a Client rooted at baseURL (e.g. "http://localhost:8081/").
func New(baseURL string, fetcher *fetch.Fetcher) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("api: parsing base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api: base url %q must be absolute", baseURL)
	}
	return &Client{base: base, fetcher: fetcher}, nil
}

// endpoint builds base + /apiV1/<segments...> with optional query values.
func (c *Client) endpoint(query url.Values, segments ...string) string {
	u := c.base.JoinPath(append([]string{"apiV1"}, segments...)...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func repoPath(id int64) string {
	return strconv.FormatInt(id, 10)
}

func branchQuery(b Branch) url.Values {
	return url.Values{
		"branch":              {b.Name},
		"mappedByAssignments": {strconv.FormatBool(b.Mapped)},
	}
}

// Me returns the user the access token belongs to.
func (c *Client) Me(ctx context.Context, token string) (*model.User, error) {
	u, err := fetch.Get[model.User](ctx, c.fetcher, c.endpoint(nil, "user"), UserSchema, token)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Repositories(ctx context.Context, token string) ([]model.Repository, error) {
	return fetch.Get[[]model.Repository](ctx, c.fetcher, c.endpoint(nil, "repository"), RepositoriesSchema, token)
}

func (c *Client) Repository(ctx context.Context, token string, id int64) (model.Repository, error) {
	return fetch.Get[model.Repository](ctx, c.fetcher, c.endpoint(nil, "repository", repoPath(id)), RepositorySchema, token)
}

func (c *Client) Branches(ctx context.Context, token string, repositoryID int64) ([]model.Branch, error) {
	return fetch.Get[[]model.Branch](ctx, c.fetcher, c.endpoint(nil, "repository", repoPath(repositoryID), "branch"), BranchesSchema, token)
}

// CommitsURL is exposed so callers can start the fetch asynchronously
// with fetch.Go.
func (c *Client) CommitsURL(b Branch) string {
	return c.endpoint(branchQuery(b), "repository", repoPath(b.RepositoryID), "commit")
}

func (c *Client) CommittersURL(b Branch) string {
	return c.endpoint(branchQuery(b), "repository", repoPath(b.RepositoryID), "committer")
}

func (c *Client) Commits(ctx context.Context, token string, b Branch) ([]model.Commit, error) {
	return fetch.Get[[]model.Commit](ctx, c.fetcher, c.CommitsURL(b), CommitsSchema, token)
}

func (c *Client) Committers(ctx context.Context, token string, b Branch) ([]model.Committer, error) {
	return fetch.Get[[]model.Committer](ctx, c.fetcher, c.CommittersURL(b), CommittersSchema, token)
}

// GoCommits starts fetching commits in the background.
func (c *Client) GoCommits(ctx context.Context, token string, b Branch) *fetch.Call[[]model.Commit] {
	return fetch.Go[[]model.Commit](ctx, c.fetcher, c.CommitsURL(b), CommitsSchema, token)
}

// GoCommitters starts fetching committers in the background.
func (c *Client) GoCommitters(ctx context.Context, token string, b Branch) *fetch.Call[[]model.Committer] {
	return fetch.Go[[]model.Committer](ctx, c.fetcher, c.CommittersURL(b), CommittersSchema, token)
}

func (c *Client) Stats(ctx context.Context, token string, b Branch) ([]model.Stat, error) {
	u := c.endpoint(branchQuery(b), "repository", repoPath(b.RepositoryID), "stats")
	return fetch.Get[[]model.Stat](ctx, c.fetcher, u, StatsSchema, token)
}

func (c *Client) Assignments(ctx context.Context, token string, repositoryID int64) ([]model.Assignment, error) {
	u := c.endpoint(nil, "repository", repoPath(repositoryID), "assignment")
	return fetch.Get[[]model.Assignment](ctx, c.fetcher, u, AssignmentsSchema, token)
}

// CreateAssignment maps a committer name onto an assignment key.
func (c *Client) CreateAssignment(ctx context.Context, token string, repositoryID int64, in model.CreateAssignment) error {
	return fetch.Send(ctx, c.fetcher, fetch.Request{
		Method:   http.MethodPost,
		URL:      c.endpoint(nil, "repository", repoPath(repositoryID), "assignment"),
		Token:    token,
		Body:     in,
		Resource: "assignment",
	})
}

// DeleteAssignment removes one assigned name by its id.
func (c *Client) DeleteAssignment(ctx context.Context, token string, repositoryID, assignedNameID int64) error {
	return fetch.Send(ctx, c.fetcher, fetch.Request{
		Method:   http.MethodDelete,
		URL:      c.endpoint(nil, "repository", repoPath(repositoryID), "assignment", strconv.FormatInt(assignedNameID, 10)),
		Token:    token,
		Resource: "assignment",
	})
}

// Refresh exchanges a refresh token for a new pair. The refresh token
// travels in the body; no bearer header is sent.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	return fetch.Do[model.TokenPair](ctx, c.fetcher, fetch.Request{
		Method:    http.MethodPost,
		URL:       c.endpoint(nil, "refresh"),
		Anonymous: true,
		Body:      map[string]string{"refreshToken": refreshToken},
		Schema:    TokenPairSchema,
	})
}
