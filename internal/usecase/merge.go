package usecase

import (
	"sort"
	"strings"

	"github.com/nutriplan/backend/internal/domain"
)

// MergeEngine combines adapter results into one ordered, deduplicated
// sequence and cuts the requested page out of it.
type MergeEngine struct {
	maxPageSize int
}

// NewMergeEngine creates a merge engine that rejects pages larger than maxPageSize
func NewMergeEngine(maxPageSize int) *MergeEngine {
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	return &MergeEngine{maxPageSize: maxPageSize}
}

// rankedItem carries the sort key of one merged item
type rankedItem struct {
	item       domain.Item
	exact      bool
	score      float64
	hasScore   bool
	sourceRank int
	position   int
}

// Merge builds the page for q from results. The output depends only on the
// set of results, not on the order they are given in.
func (m *MergeEngine) Merge(q domain.NormalizedQuery, results []domain.ProviderResult) (domain.AggregatedPage, error) {
	if err := domain.ValidatePage(q.Page(), q.PageSize(), m.maxPageSize); err != nil {
		return domain.AggregatedPage{}, err
	}

	ordered := make([]domain.ProviderResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := domain.SourceRank(ordered[i].Source), domain.SourceRank(ordered[j].Source)
		if ri != rj {
			return ri < rj
		}
		return ordered[i].Source < ordered[j].Source
	})

	needle := q.MatchText()
	degraded := []domain.Source{}
	seen := make(map[string]struct{})
	var ranked []rankedItem
	total := 0
	lowerBound := false

	for _, r := range ordered {
		if !r.OK() {
			degraded = append(degraded, r.Source)
			continue
		}

		if r.TotalAvailable == domain.TotalUnknown || r.TotalAvailable < 0 {
			lowerBound = true
		} else {
			total += max(r.TotalAvailable, len(r.Items))
		}

		for _, item := range r.Items {
			if item == nil {
				continue
			}
			key := string(item.ItemSource()) + "\x00" + item.ItemID()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			score, hasScore := item.Rank()
			ranked = append(ranked, rankedItem{
				item:       item,
				exact:      strings.ToLower(strings.TrimSpace(item.Label())) == needle,
				score:      score,
				hasScore:   hasScore,
				sourceRank: domain.SourceRank(item.ItemSource()),
				position:   len(ranked),
			})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.exact != b.exact {
			return a.exact
		}
		if a.hasScore != b.hasScore {
			return a.hasScore
		}
		if a.hasScore && a.score != b.score {
			return a.score > b.score
		}
		if a.sourceRank != b.sourceRank {
			return a.sourceRank < b.sourceRank
		}
		return a.position < b.position
	})

	// Never report fewer items than the merge actually holds
	pageSize := q.PageSize()
	counted := max(total, len(ranked))
	totalPages := (counted + pageSize - 1) / pageSize

	items := []domain.Item{}
	if start := q.Offset(); start < len(ranked) {
		end := min(start+pageSize, len(ranked))
		for _, r := range ranked[start:end] {
			items = append(items, r.item)
		}
	}

	return domain.AggregatedPage{
		Query:                     q,
		Items:                     items,
		TotalEstimate:             counted,
		TotalEstimateIsLowerBound: lowerBound,
		Page:                      q.Page(),
		PageSize:                  pageSize,
		TotalPages:                totalPages,
		Partial:                   len(degraded) > 0,
		DegradedSources:           degraded,
	}, nil
}
