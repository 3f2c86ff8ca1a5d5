// Package service contains the business logic layer of the application.
//
// THE LAYERS:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → picks the API calls per view, shapes results
//	api.Client               → typed, validated calls to the analyser API
//
// The service owns no state. The access token is read from the session
// carried in ctx on every call, so a renewal between two calls is picked up
// automatically and nothing here can hold on to a stale token.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sakif/gitviz/internal/api"
	"github.com/sakif/gitviz/internal/apperror"
	"github.com/sakif/gitviz/internal/chart"
	"github.com/sakif/gitviz/internal/fetch"
	"github.com/sakif/gitviz/internal/model"
	"github.com/sakif/gitviz/internal/session"
)

// Validation limits for assignment input.
const (
	MaxAssignmentKeyLength = 100
	MaxAssignedNameLength  = 255
)

// API is the part of api.Client the dashboard uses.
type API interface {
	Repositories(ctx context.Context, token string) ([]model.Repository, error)
	Repository(ctx context.Context, token string, id int64) (model.Repository, error)
	Branches(ctx context.Context, token string, repositoryID int64) ([]model.Branch, error)
	Commits(ctx context.Context, token string, b api.Branch) ([]model.Commit, error)
	Committers(ctx context.Context, token string, b api.Branch) ([]model.Committer, error)
	GoCommits(ctx context.Context, token string, b api.Branch) *fetch.Call[[]model.Commit]
	GoCommitters(ctx context.Context, token string, b api.Branch) *fetch.Call[[]model.Committer]
	Stats(ctx context.Context, token string, b api.Branch) ([]model.Stat, error)
	Assignments(ctx context.Context, token string, repositoryID int64) ([]model.Assignment, error)
	CreateAssignment(ctx context.Context, token string, repositoryID int64, in model.CreateAssignment) error
	DeleteAssignment(ctx context.Context, token string, repositoryID, assignedNameID int64) error
}

// DashboardService backs every dashboard view.
type DashboardService struct {
	api    API
	charts chart.Transformer
	logger *slog.Logger
}

func NewDashboardService(client API, charts chart.Transformer, logger *slog.Logger) *DashboardService {
	return &DashboardService{
		api:    client,
		charts: charts,
		logger: logger,
	}
}

// Me returns the signed-in user already resolved by the session.
func (s *DashboardService) Me(ctx context.Context) (*model.User, error) {
	store, ok := session.FromContext(ctx)
	if !ok {
		return nil, apperror.Auth("not signed in")
	}
	u := store.User()
	if u == nil {
		return nil, apperror.Auth("not signed in")
	}
	return u, nil
}

func (s *DashboardService) Repositories(ctx context.Context) ([]model.Repository, error) {
	return s.api.Repositories(ctx, session.TokenFromContext(ctx))
}

func (s *DashboardService) Repository(ctx context.Context, id int64) (model.Repository, error) {
	return s.api.Repository(ctx, session.TokenFromContext(ctx), id)
}

func (s *DashboardService) Branches(ctx context.Context, repositoryID int64) ([]model.Branch, error) {
	return s.api.Branches(ctx, session.TokenFromContext(ctx), repositoryID)
}

func (s *DashboardService) Commits(ctx context.Context, b api.Branch) ([]model.Commit, error) {
	commits, err := s.api.Commits(ctx, session.TokenFromContext(ctx), b)
	if err != nil {
		return nil, err
	}
	return chart.SortCommits(commits), nil
}

func (s *DashboardService) Committers(ctx context.Context, b api.Branch) ([]model.Committer, error) {
	return s.api.Committers(ctx, session.TokenFromContext(ctx), b)
}

// BranchOverview is the branch landing page.
type BranchOverview struct {
	chart.Overview
	Summary chart.Summary `json:"summary"`
}

func (s *DashboardService) Overview(ctx context.Context, b api.Branch) (BranchOverview, error) {
	commits, err := s.api.Commits(ctx, session.TokenFromContext(ctx), b)
	if err != nil {
		return BranchOverview{}, err
	}
	return BranchOverview{
		Overview: s.charts.Overview(commits),
		Summary:  chart.Summarize(commits),
	}, nil
}

// Timeline is the per-committer view. Commits and committers are fetched
// independently; each part reports its own status so a caller can render
// whatever is ready.
type Timeline struct {
	Commits    fetch.Status            `json:"commits"`
	Committers fetch.Status            `json:"committers"`
	Series     []chart.CommitterSeries `json:"series"`
	Errors     []string                `json:"errors,omitempty"`
}

// Timeline starts both fetches concurrently and waits until both settle or
// ctx is done. It fails only when neither part produced data.
//
// Partial results:
//   - both ready          → one series per committer
//   - committers only     → one empty series per committer (commits still loading or failed)
//   - commits only        → no series; committers are needed to partition
func (s *DashboardService) Timeline(ctx context.Context, b api.Branch) (Timeline, error) {
	token := session.TokenFromContext(ctx)
	commitsCall := s.api.GoCommits(ctx, token, b)
	committersCall := s.api.GoCommitters(ctx, token, b)

	_, _ = commitsCall.Wait(ctx)
	_, _ = committersCall.Wait(ctx)

	commits := commitsCall.Result()
	committers := committersCall.Result()
	if commits.Status == fetch.Failed && committers.Status == fetch.Failed {
		return Timeline{}, errors.Join(commits.Err(), committers.Err())
	}

	tl := Timeline{
		Commits:    commits.Status,
		Committers: committers.Status,
		Series:     []chart.CommitterSeries{},
	}
	for _, msg := range []string{commits.Error, committers.Error} {
		if msg != "" {
			tl.Errors = append(tl.Errors, msg)
		}
	}

	if committers.Status == fetch.Ready {
		var history []model.Commit
		if commits.Status == fetch.Ready {
			history = *commits.Data
		}
		tl.Series = s.charts.CommitterTimeline(history, *committers.Data)
	}

	if tl.Commits != fetch.Ready || tl.Committers != fetch.Ready {
		s.logger.Warn("timeline partially available",
			slog.Int64("repositoryID", b.RepositoryID),
			slog.String("branch", b.Name),
			slog.String("commits", tl.Commits.String()),
			slog.String("committers", tl.Committers.String()),
		)
	}
	return tl, nil
}

// Stats returns one pie per metric.
func (s *DashboardService) Stats(ctx context.Context, b api.Branch) (chart.Breakdowns, error) {
	stats, err := s.api.Stats(ctx, session.TokenFromContext(ctx), b)
	if err != nil {
		return chart.Breakdowns{}, err
	}
	return chart.AllBreakdowns(stats), nil
}

func (s *DashboardService) Assignments(ctx context.Context, repositoryID int64) ([]model.Assignment, error) {
	return s.api.Assignments(ctx, session.TokenFromContext(ctx), repositoryID)
}

// CreateAssignment validates and trims the input before forwarding it.
func (s *DashboardService) CreateAssignment(ctx context.Context, repositoryID int64, in model.CreateAssignment) error {
	in.Key = strings.TrimSpace(in.Key)
	in.AssignedName = strings.TrimSpace(in.AssignedName)

	switch {
	case in.Key == "":
		return apperror.ValidationFailed("key", "key is required")
	case len(in.Key) > MaxAssignmentKeyLength:
		return apperror.ValidationFailed("key", "key is too long")
	case in.AssignedName == "":
		return apperror.ValidationFailed("assignedName", "assigned name is required")
	case len(in.AssignedName) > MaxAssignedNameLength:
		return apperror.ValidationFailed("assignedName", "assigned name is too long")
	}

	if err := s.api.CreateAssignment(ctx, session.TokenFromContext(ctx), repositoryID, in); err != nil {
		return err
	}
	s.logger.Info("assignment created",
		slog.Int64("repositoryID", repositoryID),
		slog.String("key", in.Key),
	)
	return nil
}

func (s *DashboardService) DeleteAssignment(ctx context.Context, repositoryID, assignedNameID int64) error {
	if err := s.api.DeleteAssignment(ctx, session.TokenFromContext(ctx), repositoryID, assignedNameID); err != nil {
		return err
	}
	s.logger.Info("assignment deleted",
		slog.Int64("repositoryID", repositoryID),
		slog.Int64("assignedNameID", assignedNameID),
	)
	return nil
}
