package service

import (
	"context"
	"time"

	"github.com/member-dashboard-api/internal/analytics"
	"github.com/member-dashboard-api/internal/models"
	"github.com/member-dashboard-api/internal/repository"
	"github.com/rs/zerolog"
)

// analyticsService is the concrete implementation of AnalyticsService
type analyticsService struct {
	repos    *repository.Repositories
	snapshot MemberSnapshot
	now      func() time.Time
	log      zerolog.Logger
}

// newAnalyticsService creates a new AnalyticsService
func newAnalyticsService(repos *repository.Repositories, snapshot MemberSnapshot, log zerolog.Logger) *analyticsService {
	return &analyticsService{
		repos:    repos,
		snapshot: snapshot,
		now:      time.Now,
		log:      log.With().Str("service", "analytics").Logger(),
	}
}

// members prefers the live snapshot and falls back to a full load
func (s *analyticsService) members(ctx context.Context) ([]*models.Member, error) {
	if s.snapshot != nil {
		if members, ok := s.snapshot.Members(); ok {
			return members, nil
		}
	}
	return s.repos.Member.List(ctx)
}

func (s *analyticsService) Overview(ctx context.Context) (*analytics.Overview, error) {
	members, err := s.members(ctx)
	if err != nil {
		return nil, err
	}
	o := analytics.BuildOverview(members, s.now())
	return &o, nil
}

func (s *analyticsService) Demographics(ctx context.Context) (*analytics.Demographics, error) {
	members, err := s.members(ctx)
	if err != nil {
		return nil, err
	}
	d := analytics.BuildDemographics(members)
	return &d, nil
}

func (s *analyticsService) Geography(ctx context.Context) (*analytics.Geography, error) {
	members, err := s.members(ctx)
	if err != nil {
		return nil, err
	}
	g := analytics.BuildGeography(members)
	return &g, nil
}

func (s *analyticsService) Employment(ctx context.Context) ([]analytics.Count, error) {
	members, err := s.members(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.EmploymentBuckets(members).Series(), nil
}
