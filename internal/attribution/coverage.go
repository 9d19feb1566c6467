package attribution

import (
	"sort"
)

type span struct {
	start int
	end   int
}

// Coverage reports how many of a commit's changed lines are covered by
// attribution rows. Returns nil when the commit has no attribution rows
// or no measurable changed lines.
func (s *Service) Coverage(repoID int64, commitSHA string) (*CoverageSummary, error) {
	attrs, err := s.store.LineAttributionsForCommit(repoID, commitSHA)
	if err != nil {
		return nil, err
	}
	if len(attrs) == 0 {
		return nil, nil
	}

	repo, err := s.openRepo(repoID)
	if err != nil {
		return nil, err
	}

	attrByFile := make(map[string][]span)
	for _, row := range attrs {
		attrByFile[row.FilePath] = append(attrByFile[row.FilePath], span{row.StartLine, row.EndLine})
	}

	changedByFile, err := repo.ChangedRangesByFile(commitSHA)
	if err != nil {
		return nil, err
	}

	totalChanged := 0
	attributed := 0
	for filePath, changedRanges := range changedByFile {
		if len(changedRanges) == 0 {
			continue
		}

		changed := make([]span, 0, len(changedRanges))
		for _, rng := range changedRanges {
			changed = append(changed, span{rng.StartLine, rng.EndLine})
		}
		changed = mergeSpans(changed)
		totalChanged += sumSpans(changed)

		if attrRanges, ok := attrByFile[filePath]; ok {
			attributed += countIntersection(changed, mergeSpans(attrRanges))
		}
	}

	if totalChanged == 0 {
		return nil, nil
	}

	return &CoverageSummary{
		TotalChangedLines: totalChanged,
		AttributedLines:   attributed,
		CoveragePercent:   float64(attributed) / float64(totalChanged) * 100.0,
	}, nil
}

// mergeSpans sorts by start and merges spans separated by at most one
// line. Inverted spans are normalized to single lines first.
func mergeSpans(spans []span) []span {
	if len(spans) == 0 {
		return spans
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	merged := make([]span, 0, len(spans))
	for _, sp := range spans {
		if sp.end < sp.start {
			sp.end = sp.start
		}
		if len(merged) > 0 && sp.start <= merged[len(merged)-1].end+1 {
			if sp.end > merged[len(merged)-1].end {
				merged[len(merged)-1].end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}
	return merged
}

func sumSpans(spans []span) int {
	total := 0
	for _, sp := range spans {
		if n := sp.end - sp.start + 1; n > 0 {
			total += n
		}
	}
	return total
}

// countIntersection counts the lines shared by two merged, sorted span
// lists with a two-pointer sweep.
func countIntersection(changed, attributed []span) int {
	i, j, count := 0, 0, 0
	for i < len(changed) && j < len(attributed) {
		c, a := changed[i], attributed[j]

		if c.end < a.start {
			i++
			continue
		}
		if a.end < c.start {
			j++
			continue
		}

		start := c.start
		if a.start > start {
			start = a.start
		}
		end := c.end
		if a.end < end {
			end = a.end
		}
		if end >= start {
			count += end - start + 1
		}

		if c.end < a.end {
			i++
		} else {
			j++
		}
	}
	return count
}
