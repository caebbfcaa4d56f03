package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Member represents a community member record
type Member struct {
	ID             string    `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	FirstName      string    `json:"first_name,omitempty" db:"first_name"`
	LastName       string    `json:"last_name,omitempty" db:"last_name"`
	Email          string    `json:"email" db:"email"`
	PhoneNumber    string    `json:"phone_number,omitempty" db:"phone_number"`
	CityProvince   string    `json:"city_province,omitempty" db:"city_province"`
	AgeGroup       string    `json:"age_group,omitempty" db:"age_group"`
	Occupation     string    `json:"occupation,omitempty" db:"occupation"`
	Industry       string    `json:"industry,omitempty" db:"industry"`
	EmploymentType string    `json:"employment_type,omitempty" db:"employment_type"`
	Instagram      string    `json:"follows_instagram,omitempty" db:"follows_instagram"`
	Facebook       string    `json:"likes_facebook,omitempty" db:"likes_facebook"`
	Intersection   string    `json:"intersection,omitempty" db:"intersection"`
	HeardFrom      string    `json:"heard_from,omitempty" db:"heard_from"`
	About          string    `json:"about,omitempty" db:"about"`
	Aspirations    string    `json:"aspirations,omitempty" db:"aspirations"`
	Extra          Extra     `json:"extra,omitempty" db:"extra"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Extra keeps uploaded columns that have no dedicated field
type Extra map[string]string

// Value stores extra columns as JSONB
func (e Extra) Value() (driver.Value, error) {
	if e == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(e))
}

// Scan reads a JSONB extra column
func (e *Extra) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*e = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("models: cannot scan %T into Extra", src)
	}
	m := map[string]string{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	if len(m) == 0 {
		*e = nil
		return nil
	}
	*e = m
	return nil
}

// MemberColumn binds an upload/template header to a member field
type MemberColumn struct {
	Header string
	Column string
	field  func(*Member) *string
}

// MemberColumns is the template column order. Headers are the survey
// questions the sign-up form exports.
var MemberColumns = []MemberColumn{
	{"name", "name", func(m *Member) *string { return &m.Name }},
	{"first_name", "first_name", func(m *Member) *string { return &m.FirstName }},
	{"last_name", "last_name", func(m *Member) *string { return &m.LastName }},
	{"email", "email", func(m *Member) *string { return &m.Email }},
	{"phone_number", "phone_number", func(m *Member) *string { return &m.PhoneNumber }},
	{"Age Group?", "age_group", func(m *Member) *string { return &m.AgeGroup }},
	{"Are you self-employed, working for a company, or a student?", "employment_type", func(m *Member) *string { return &m.EmploymentType }},
	{"Briefly describe what you do or are passionate about?", "about", func(m *Member) *string { return &m.About }},
	{"City & Province?", "city_province", func(m *Member) *string { return &m.CityProvince }},
	{"Did you follow us on Instagram? https://shorturl.at/eFvMX", "follows_instagram", func(m *Member) *string { return &m.Instagram }},
	{"Did you like our Facebook page? https://shorturl.at/KmR5d", "likes_facebook", func(m *Member) *string { return &m.Facebook }},
	{"How did you hear about BroCode Canada?", "heard_from", func(m *Member) *string { return &m.HeardFrom }},
	{"Industry / Field of Work?", "industry", func(m *Member) *string { return &m.Industry }},
	{"Nearest Intersection? (eg. Hurontario St & Eglinton Ave)", "intersection", func(m *Member) *string { return &m.Intersection }},
	{"Occupation / Job Title?", "occupation", func(m *Member) *string { return &m.Occupation }},
	{"What do you hope to gain from joining Bro Code Canada? (Select all that apply)", "aspirations", func(m *Member) *string { return &m.Aspirations }},
}

// CreatedAtHeader is the template column carrying the creation timestamp
const CreatedAtHeader = "created_at"

var columnsByHeader = func() map[string]MemberColumn {
	idx := make(map[string]MemberColumn, len(MemberColumns)*2)
	for _, c := range MemberColumns {
		idx[normalizeHeader(c.Header)] = c
		idx[normalizeHeader(c.Column)] = c
	}
	return idx
}()

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// MemberHeaders returns the template header row
func MemberHeaders() []string {
	headers := make([]string, 0, len(MemberColumns)+1)
	for _, c := range MemberColumns {
		headers = append(headers, c.Header)
	}
	return append(headers, CreatedAtHeader)
}

// timeLayouts are the created_at formats accepted from uploads
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"1/2/2006 15:04:05",
	"1/2/2006",
}

// ParseTimestamp parses a created_at cell
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid created_at %q", s)
}

// MemberFromRow converts a header-keyed upload row into a member.
// Headers match case-insensitively by survey question or column name;
// anything else is kept in Extra.
func MemberFromRow(row map[string]string) (*Member, error) {
	m := &Member{}
	for header, value := range row {
		key := normalizeHeader(header)
		if key == CreatedAtHeader {
			if strings.TrimSpace(value) == "" {
				continue
			}
			t, err := ParseTimestamp(value)
			if err != nil {
				return nil, err
			}
			m.CreatedAt = t
			continue
		}
		if col, ok := columnsByHeader[key]; ok {
			*col.field(m) = value
			continue
		}
		if value == "" {
			continue
		}
		if m.Extra == nil {
			m.Extra = Extra{}
		}
		m.Extra[strings.TrimSpace(header)] = value
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return m, nil
}

// Row renders the member in MemberHeaders order
func (m *Member) Row() []string {
	out := make([]string, 0, len(MemberColumns)+1)
	for _, c := range MemberColumns {
		out = append(out, *c.field(m))
	}
	return append(out, m.CreatedAt.UTC().Format(time.RFC3339))
}

// MemberSortFields maps sortable API field names to columns
var MemberSortFields = map[string]string{
	"name":          "name",
	"email":         "email",
	"phone_number":  "phone_number",
	"city_province": "city_province",
	"age_group":     "age_group",
	"occupation":    "occupation",
	"created_at":    "created_at",
}

// Member table paging bounds
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// MemberQuery describes a member table request
type MemberQuery struct {
	Search    string `form:"search"`
	SortField string `form:"sort"`
	SortDir   string `form:"dir"` // "asc" or "desc"
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
}

// Normalize clamps paging to valid bounds
func (q MemberQuery) Normalize() MemberQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return q
}

// MemberPage is one page of the member table
type MemberPage struct {
	Items      []*Member `json:"items"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalPages int       `json:"total_pages"`
}
