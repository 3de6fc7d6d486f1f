package orchestrator

import (
	"slices"

	"jobscout-engine/internal/domain"
)

// Merge drops jobs whose fingerprint was already seen, keeping the first
// occurrence, and sorts the rest by posted date, newest first. Undated jobs
// go last in their original order. Merge is idempotent.
func Merge(jobs []domain.Job) []domain.Job {
	seen := make(map[string]bool, len(jobs))
	out := make([]domain.Job, 0, len(jobs))
	for _, j := range jobs {
		fp := j.Fingerprint()
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, j)
	}
	slices.SortStableFunc(out, byPostedDesc)
	return out
}

func byPostedDesc(a, b domain.Job) int {
	ad, bd := a.HasPostedDate(), b.HasPostedDate()
	switch {
	case ad && bd:
		return b.PostedDate.Compare(*a.PostedDate)
	case ad:
		return -1
	case bd:
		return 1
	}
	return 0
}

// limit returns at most n jobs; n <= 0 means no limit.
func limit(jobs []domain.Job, n int) []domain.Job {
	if n <= 0 || len(jobs) <= n {
		return jobs
	}
	return jobs[:n:n]
}
