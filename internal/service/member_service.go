package service

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/member-dashboard-api/internal/models"
	"github.com/member-dashboard-api/internal/repository"
	"github.com/member-dashboard-api/internal/validation"
	"github.com/rs/zerolog"
)

// memberService is the concrete implementation of MemberService
type memberService struct {
	repos     *repository.Repositories
	notifier  Notifier
	validator *validation.Validator
	now       func() time.Time
	log       zerolog.Logger
}

// newMemberService creates a new MemberService
func newMemberService(repos *repository.Repositories, notifier Notifier, log zerolog.Logger) *memberService {
	return &memberService{
		repos:     repos,
		notifier:  notifier,
		validator: validation.NewValidator(),
		now:       time.Now,
		log:       log.With().Str("service", "member").Logger(),
	}
}

func (s *memberService) changed() {
	if s.notifier != nil {
		s.notifier.Notify()
	}
}

// Create adds a manually entered member. Email uniqueness is only checked
// by imports.
func (s *memberService) Create(ctx context.Context, m *models.Member) (*models.Member, error) {
	normalizeMember(m)
	if err := invalid(s.validator.ValidateMemberRecord(m)); err != nil {
		return nil, err
	}
	m.ID = uuid.New().String()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	if err := s.repos.Member.Create(ctx, m); err != nil {
		return nil, err
	}
	s.changed()
	s.log.Info().Str("member_id", m.ID).Msg("Member created")
	return m, nil
}

func (s *memberService) Get(ctx context.Context, id string) (*models.Member, error) {
	m, err := s.repos.Member.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	return m, nil
}

// Update replaces every editable field of a member. The creation time is
// kept.
func (s *memberService) Update(ctx context.Context, id string, m *models.Member) (*models.Member, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	normalizeMember(m)
	if err := invalid(s.validator.ValidateMemberRecord(m)); err != nil {
		return nil, err
	}
	m.ID = id
	m.CreatedAt = existing.CreatedAt
	if err := s.repos.Member.Update(ctx, m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.changed()
	return m, nil
}

func (s *memberService) Delete(ctx context.Context, id string) error {
	deleted, err := s.repos.Member.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	s.changed()
	s.log.Info().Str("member_id", id).Msg("Member deleted")
	return nil
}

// Query returns one page of the member table
func (s *memberService) Query(ctx context.Context, q models.MemberQuery) (*models.MemberPage, error) {
	q = q.Normalize()
	if q.SortField != "" {
		if _, ok := models.MemberSortFields[q.SortField]; !ok {
			return nil, invalid([]validation.ValidationError{{Field: "sort", Message: "unknown sort field", Value: q.SortField}})
		}
	}
	if q.SortDir != "" && q.SortDir != "asc" && q.SortDir != "desc" {
		return nil, invalid([]validation.ValidationError{{Field: "dir", Message: "sort direction must be asc or desc", Value: q.SortDir}})
	}

	items, total, err := s.repos.Member.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*models.Member{}
	}
	pages := (total + q.PageSize - 1) / q.PageSize
	return &models.MemberPage{
		Items:      items,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: pages,
	}, nil
}

// Export writes every member as CSV in template column order and returns
// the number of rows written. Headers match the import template. The
// importer reads one record per line, so line breaks inside a field are
// written as spaces; double quotes inside a field do not survive a
// re-import.
func (s *memberService) Export(ctx context.Context, w io.Writer) (int, error) {
	writer := csv.NewWriter(w)
	if err := writer.Write(models.MemberHeaders()); err != nil {
		return 0, err
	}

	count := 0
	err := s.repos.Member.StreamAll(ctx, func(m *models.Member) error {
		if err := writer.Write(exportRow(m)); err != nil {
			return err
		}
		count++
		// Flush every 100 records for streaming
		if count%100 == 0 {
			writer.Flush()
			return writer.Error()
		}
		return nil
	})
	writer.Flush()
	if err == nil {
		err = writer.Error()
	}

	s.log.Info().Int("count", count).Msg("Members export completed")
	return count, err
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func exportRow(m *models.Member) []string {
	row := m.Row()
	for i, v := range row {
		row[i] = lineBreaks.Replace(v)
	}
	return row
}

func normalizeMember(m *models.Member) {
	m.Name = strings.TrimSpace(m.Name)
	m.Email = strings.TrimSpace(m.Email)
}
