package csvimport

import "strings"

// EmailSet builds a case-insensitive lookup of emails.
func EmailSet(emails []string) map[string]struct{} {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e == "" {
			continue
		}
		set[strings.ToLower(e)] = struct{}{}
	}
	return set
}

// Dedupe keeps the first occurrence of every email that is not already in
// existing, preserving batch order. Every other row counts as a duplicate.
func Dedupe(rows []Row, existing map[string]struct{}) ([]Row, int) {
	unique := make([]Row, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	duplicates := 0

	for _, row := range rows {
		email := strings.ToLower(row.Get("email"))
		if _, ok := existing[email]; ok {
			duplicates++
			continue
		}
		if _, ok := seen[email]; ok {
			duplicates++
			continue
		}
		seen[email] = struct{}{}
		unique = append(unique, row)
	}
	return unique, duplicates
}
