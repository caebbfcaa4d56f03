// Package analytics computes the dashboard chart series from a member
// snapshot.
package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/member-dashboard-api/internal/models"
)

// Chart sizes
const (
	RecentWindow   = 30 * 24 * time.Hour
	TopOccupations = 10
	TopIndustries  = 8
	TopCities      = 10
)

// Count is one named bar or slice of a chart
type Count struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// MonthCount is one point of the growth chart
type MonthCount struct {
	Month   string `json:"month"`
	Members int    `json:"members"`
}

// Employment buckets members by the employment survey answer
type Employment struct {
	SelfEmployed int `json:"selfEmployed"`
	Company      int `json:"company"`
	Student      int `json:"student"`
}

// Series returns the employment buckets as chart slices
func (e Employment) Series() []Count {
	return []Count{
		{Name: "Self-Employed", Value: e.SelfEmployed},
		{Name: "Company Employee", Value: e.Company},
		{Name: "Student", Value: e.Student},
	}
}

// Overview is the landing page summary
type Overview struct {
	TotalMembers     int          `json:"totalMembers"`
	UniqueCities     int          `json:"uniqueCities"`
	RecentMembers    int          `json:"recentMembers"`
	Employment       Employment   `json:"employment"`
	InstagramFollows int          `json:"instagramFollows"`
	FacebookLikes    int          `json:"facebookLikes"`
	SocialEngagement int          `json:"socialEngagement"`
	Growth           []MonthCount `json:"growth"`
}

// Demographics holds the age, occupation and industry charts
type Demographics struct {
	AgeGroups   []Count `json:"ageGroups"`
	Occupations []Count `json:"occupations"`
	Industries  []Count `json:"industries"`
}

// Geography holds the city chart
type Geography struct {
	UniqueCities int     `json:"uniqueCities"`
	Cities       []Count `json:"cities"`
}

// BuildOverview computes the summary counters relative to now
func BuildOverview(members []*models.Member, now time.Time) Overview {
	ig := CountYes(members, func(m *models.Member) string { return m.Instagram })
	fb := CountYes(members, func(m *models.Member) string { return m.Facebook })
	return Overview{
		TotalMembers:     len(members),
		UniqueCities:     len(Group(members, city)),
		RecentMembers:    Recent(members, now, RecentWindow),
		Employment:       EmploymentBuckets(members),
		InstagramFollows: ig,
		FacebookLikes:    fb,
		SocialEngagement: ig + fb,
		Growth:           MonthlyGrowth(members),
	}
}

// BuildDemographics computes the demographics charts
func BuildDemographics(members []*models.Member) Demographics {
	return Demographics{
		AgeGroups:   Group(members, func(m *models.Member) string { return m.AgeGroup }),
		Occupations: Top(Group(members, func(m *models.Member) string { return m.Occupation }), TopOccupations),
		Industries:  Top(Group(members, func(m *models.Member) string { return m.Industry }), TopIndustries),
	}
}

// BuildGeography computes the city chart
func BuildGeography(members []*models.Member) Geography {
	cities := Group(members, city)
	return Geography{UniqueCities: len(cities), Cities: Top(cities, TopCities)}
}

func city(m *models.Member) string { return m.CityProvince }

// EmploymentBuckets counts case-insensitive substring matches. A member can
// land in more than one bucket.
func EmploymentBuckets(members []*models.Member) Employment {
	var e Employment
	for _, m := range members {
		v := strings.ToLower(m.EmploymentType)
		if strings.Contains(v, "self") {
			e.SelfEmployed++
		}
		if strings.Contains(v, "company") {
			e.Company++
		}
		if strings.Contains(v, "student") {
			e.Student++
		}
	}
	return e
}

// CountYes counts members whose field is "yes" in any case
func CountYes(members []*models.Member, field func(*models.Member) string) int {
	n := 0
	for _, m := range members {
		if strings.EqualFold(field(m), "yes") {
			n++
		}
	}
	return n
}

// Recent counts members created within window before now. Future
// timestamps count as recent.
func Recent(members []*models.Member, now time.Time, window time.Duration) int {
	n := 0
	for _, m := range members {
		if m.CreatedAt.IsZero() {
			continue
		}
		if now.Sub(m.CreatedAt) <= window {
			n++
		}
	}
	return n
}

// MonthlyGrowth counts members per YYYY-MM (UTC), ascending
func MonthlyGrowth(members []*models.Member) []MonthCount {
	byMonth := make(map[string]int)
	for _, m := range members {
		if m.CreatedAt.IsZero() {
			continue
		}
		byMonth[m.CreatedAt.UTC().Format("2006-01")]++
	}
	out := make([]MonthCount, 0, len(byMonth))
	for month, n := range byMonth {
		out = append(out, MonthCount{Month: month, Members: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// Group counts members per distinct non-empty value, in first-seen order
func Group(members []*models.Member, field func(*models.Member) string) []Count {
	index := make(map[string]int)
	out := []Count{}
	for _, m := range members {
		v := field(m)
		if v == "" {
			continue
		}
		if i, ok := index[v]; ok {
			out[i].Value++
			continue
		}
		index[v] = len(out)
		out = append(out, Count{Name: v, Value: 1})
	}
	return out
}

// Top returns the n largest counts. Ties keep their input order.
func Top(counts []Count, n int) []Count {
	sorted := append([]Count(nil), counts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Value > sorted[j].Value })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
