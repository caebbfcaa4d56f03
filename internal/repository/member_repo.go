package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/member-dashboard-api/internal/database"
	"github.com/member-dashboard-api/internal/models"
)

const memberColumns = `id, name, first_name, last_name, email, phone_number, city_province,
		age_group, occupation, industry, employment_type, follows_instagram, likes_facebook,
		intersection, heard_from, about, aspirations, extra, created_at`

// memberSearchColumns are matched by a member table search
var memberSearchColumns = []string{"name", "email", "phone_number", "city_province", "occupation"}

// memberRepo is the concrete implementation of MemberRepository
type memberRepo struct {
	db *database.DB
}

// NewMemberRepo creates a new member repository
func NewMemberRepo(db *database.DB) MemberRepository {
	return &memberRepo{db: db}
}

func scanMember(s rowScanner) (*models.Member, error) {
	var m models.Member
	err := s.Scan(
		&m.ID, &m.Name, &m.FirstName, &m.LastName, &m.Email, &m.PhoneNumber, &m.CityProvince,
		&m.AgeGroup, &m.Occupation, &m.Industry, &m.EmploymentType, &m.Instagram, &m.Facebook,
		&m.Intersection, &m.HeardFrom, &m.About, &m.Aspirations, &m.Extra, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func memberArgs(m *models.Member) []interface{} {
	return []interface{}{
		m.ID, m.Name, m.FirstName, m.LastName, m.Email, m.PhoneNumber, m.CityProvince,
		m.AgeGroup, m.Occupation, m.Industry, m.EmploymentType, m.Instagram, m.Facebook,
		m.Intersection, m.HeardFrom, m.About, m.Aspirations, m.Extra, m.CreatedAt,
	}
}

// Create inserts a new member
func (r *memberRepo) Create(ctx context.Context, m *models.Member) error {
	query := `
		INSERT INTO members (` + memberColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err := r.db.ExecContext(ctx, query, memberArgs(m)...)
	return err
}

// GetByID retrieves a member by ID
func (r *memberRepo) GetByID(ctx context.Context, id string) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`

	m, err := scanMember(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// List returns every member, newest first
func (r *memberRepo) List(ctx context.Context) ([]*models.Member, error) {
	members := []*models.Member{}
	err := r.stream(ctx, `SELECT `+memberColumns+` FROM members ORDER BY created_at DESC`, nil, func(m *models.Member) error {
		members = append(members, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// Query returns one page of members and the total number of matches.
// Text sorts ignore case; created_at sorts by time.
func (r *memberRepo) Query(ctx context.Context, q models.MemberQuery) ([]*models.Member, int, error) {
	q = q.Normalize()
	var (
		where string
		args  []interface{}
	)
	if search := strings.TrimSpace(q.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		conds := make([]string, len(memberSearchColumns))
		for i, col := range memberSearchColumns {
			conds[i] = col + " ILIKE $1"
		}
		where = " WHERE " + strings.Join(conds, " OR ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM members`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count members: %w", err)
	}

	order := "created_at DESC"
	if col, ok := models.MemberSortFields[q.SortField]; ok {
		dir := "ASC"
		if strings.EqualFold(q.SortDir, "desc") {
			dir = "DESC"
		}
		if col == "created_at" {
			order = col + " " + dir
		} else {
			order = "LOWER(" + col + ") " + dir + ", created_at DESC"
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM members%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		memberColumns, where, order, len(args)+1, len(args)+2)
	args = append(args, q.PageSize, (q.Page-1)*q.PageSize)

	members := []*models.Member{}
	err := r.stream(ctx, query, args, func(m *models.Member) error {
		members = append(members, m)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return members, total, nil
}

// Update replaces every field of a member except its creation time
func (r *memberRepo) Update(ctx context.Context, m *models.Member) error {
	query := `
		UPDATE members SET
			name = $2, first_name = $3, last_name = $4, email = $5, phone_number = $6,
			city_province = $7, age_group = $8, occupation = $9, industry = $10,
			employment_type = $11, follows_instagram = $12, likes_facebook = $13,
			intersection = $14, heard_from = $15, about = $16, aspirations = $17, extra = $18
		WHERE id = $1
	`
	args := memberArgs(m)
	res, err := r.db.ExecContext(ctx, query, args[:18]...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a member and reports whether it existed
func (r *memberRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM members WHERE id = $1", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AllEmails returns every stored member email, lower-cased
func (r *memberRepo) AllEmails(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT LOWER(email) FROM members WHERE email <> ''")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// Count returns the total number of members
func (r *memberRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM members").Scan(&count)
	return count, err
}

// StreamAll streams all members for export (memory efficient)
func (r *memberRepo) StreamAll(ctx context.Context, callback func(*models.Member) error) error {
	return r.stream(ctx, `SELECT `+memberColumns+` FROM members ORDER BY created_at`, nil, callback)
}

func (r *memberRepo) stream(ctx context.Context, query string, args []interface{}, callback func(*models.Member) error) error {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return err
		}
		if err := callback(m); err != nil {
			return err
		}
	}
	return rows.Err()
}
