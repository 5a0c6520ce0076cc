package usda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nutriplan/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSearcher is a hand-written stand-in for the USDA client
type stubSearcher struct {
	resp      *SearchResponse
	branded   *SearchResponse
	err       error
	food      *Food
	lastQuery SearchParams
}

func (s *stubSearcher) SearchFoods(ctx context.Context, p SearchParams) (*SearchResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	if p.DataTypes == "Branded" && s.branded != nil {
		return s.branded, nil
	}
	s.lastQuery = p
	return s.resp, nil
}

func (s *stubSearcher) GetFoodDetails(ctx context.Context, fdcID string) (*Food, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.food, nil
}

func foodQuery(t *testing.T, text string, page, pageSize int) domain.NormalizedQuery {
	t.Helper()
	q, err := domain.NewNormalizedQuery(domain.KindFood, text, domain.ScopeAll, page, pageSize, map[string]string{"dataType": "Foundation"}, 100)
	require.NoError(t, err)
	return q
}

func TestAdapter_Search(t *testing.T) {
	stub := &stubSearcher{resp: &SearchResponse{
		Foods:     []Food{{FdcID: 1, Description: "Salmon"}, {FdcID: 0, Description: "bad"}},
		TotalHits: 57,
	}}
	adapter := NewAdapter(stub, nil)

	result := adapter.Search(context.Background(), foodQuery(t, "salmon", 2, 10))

	assert.Equal(t, domain.StatusOK, result.Status)
	assert.Equal(t, 57, result.TotalAvailable)
	assert.Equal(t, 1, result.Dropped)
	require.Len(t, result.Items, 1)
	assert.Equal(t, 20, stub.lastQuery.PageSize, "adapter fetches page*pageSize items")
	assert.Equal(t, "Foundation", stub.lastQuery.DataTypes)
}

// fakeFDC serves a search with hits foods numbered from 1, honouring
// pageSize and pageNumber. Every tenth food is in the "Snacks" category.
func fakeFDC(t *testing.T, hits int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
		number, _ := strconv.Atoi(r.URL.Query().Get("pageNumber"))

		resp := SearchResponse{TotalHits: hits, CurrentPage: number, Foods: []Food{}}
		for id := (number-1)*size + 1; id <= min(number*size, hits); id++ {
			category := "Dairy"
			if id%10 == 0 {
				category = "Snacks"
			}
			resp.Foods = append(resp.Foods, Food{
				FdcID:        id,
				Description:  fmt.Sprintf("Food %d", id),
				FoodCategory: category,
				Score:        domain.Float64Ptr(float64(hits - id)),
			})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func TestAdapter_SearchReadsUpstreamPages(t *testing.T) {
	tests := []struct {
		name         string
		hits         int
		page         int
		pageSize     int
		wantItems    int
		wantLastID   string
		wantTotal    int
		wantRequests int32
	}{
		{name: "within one upstream page", hits: 1000, page: 10, pageSize: 20, wantItems: 200, wantLastID: "200", wantTotal: 1000, wantRequests: 1},
		{name: "page 11 of 20", hits: 1000, page: 11, pageSize: 20, wantItems: 220, wantLastID: "220", wantTotal: 1000, wantRequests: 2},
		{name: "page 3 of 100", hits: 1000, page: 3, pageSize: 100, wantItems: 300, wantLastID: "300", wantTotal: 1000, wantRequests: 2},
		{name: "depth past the last hit", hits: 250, page: 3, pageSize: 100, wantItems: 250, wantLastID: "250", wantTotal: 250, wantRequests: 2},
		{name: "total capped at reachable depth", hits: 50000, page: 1, pageSize: 10, wantItems: 10, wantLastID: "10", wantTotal: MaxPageSize * MaxSearchPages, wantRequests: 1},
		{name: "depth capped at reachable pages", hits: 50000, page: 30, pageSize: 100, wantItems: MaxPageSize * MaxSearchPages, wantLastID: "2000", wantTotal: MaxPageSize * MaxSearchPages, wantRequests: MaxSearchPages},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, requests := fakeFDC(t, tt.hits)
			adapter := NewAdapter(NewClient("k", server.URL, 0, nil), nil)

			q, err := domain.NewNormalizedQuery(domain.KindFood, "food", domain.ScopeUSDA, tt.page, tt.pageSize, nil, 100)
			require.NoError(t, err)
			result := adapter.Search(context.Background(), q)

			require.Equal(t, domain.StatusOK, result.Status, result.Message)
			assert.Equal(t, tt.wantTotal, result.TotalAvailable)
			require.Len(t, result.Items, tt.wantItems)
			assert.Equal(t, "1", result.Items[0].ItemID())
			assert.Equal(t, tt.wantLastID, result.Items[len(result.Items)-1].ItemID())
			assert.Equal(t, tt.wantRequests, requests.Load())
		})
	}
}

func TestAdapter_SearchFailedUpstreamPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageNumber") == "2" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		foods := make([]Food, MaxPageSize)
		for i := range foods {
			foods[i] = Food{FdcID: i + 1, Description: "Food"}
		}
		json.NewEncoder(w).Encode(SearchResponse{TotalHits: 1000, Foods: foods})
	}))
	defer server.Close()

	adapter := NewAdapter(NewClient("k", server.URL, 0, nil), nil)
	q, err := domain.NewNormalizedQuery(domain.KindFood, "food", domain.ScopeUSDA, 3, 100, nil, 100)
	require.NoError(t, err)

	result := adapter.Search(context.Background(), q)

	assert.Equal(t, domain.StatusError, result.Status)
	assert.Empty(t, result.Items)
}

func TestAdapter_SearchCategory(t *testing.T) {
	tests := []struct {
		name         string
		hits         int
		pageSize     int
		wantItems    int
		wantTotal    int
		wantRequests int32
	}{
		{name: "stops once the depth is filled", hits: 1000, pageSize: 20, wantItems: 20, wantTotal: domain.TotalUnknown, wantRequests: 1},
		{name: "reads on for a deeper page", hits: 1000, pageSize: 30, wantItems: 30, wantTotal: domain.TotalUnknown, wantRequests: 2},
		{name: "exhausted results give an exact total", hits: 150, pageSize: 50, wantItems: 15, wantTotal: 15, wantRequests: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, requests := fakeFDC(t, tt.hits)
			adapter := NewAdapter(NewClient("k", server.URL, 0, nil), nil)

			q, err := domain.NewNormalizedQuery(domain.KindFood, "food", domain.ScopeUSDA, 1, tt.pageSize,
				domain.FoodFilters{Category: "snacks"}.Map(), 100)
			require.NoError(t, err)
			result := adapter.Search(context.Background(), q)

			require.Equal(t, domain.StatusOK, result.Status, result.Message)
			assert.Equal(t, tt.wantTotal, result.TotalAvailable)
			require.Len(t, result.Items, tt.wantItems)
			for _, item := range result.Items {
				assert.Equal(t, "Snacks", item.(domain.FoodItem).Category)
			}
			assert.Equal(t, tt.wantRequests, requests.Load())
		})
	}
}

func TestAdapter_SearchFailuresAreData(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.Status
	}{
		{"timeout", fmt.Errorf("usda request: %w", context.DeadlineExceeded), domain.StatusTimeout},
		{"rate limited", &domain.RateLimitError{Source: domain.SourceUSDA, RetryAfter: time.Minute}, domain.StatusRateLimited},
		{"transport", fmt.Errorf("%w: connection reset", domain.ErrProviderFailure), domain.StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := NewAdapter(&stubSearcher{err: tt.err}, nil)
			result := adapter.Search(context.Background(), foodQuery(t, "salmon", 1, 10))
			assert.Equal(t, tt.want, result.Status)
			assert.Empty(t, result.Items)
		})
	}
}

func TestAdapter_SearchRejectsRecipeQueries(t *testing.T) {
	q, err := domain.NewNormalizedQuery(domain.KindRecipe, "curry", domain.ScopeRecipes, 1, 10, nil, 100)
	require.NoError(t, err)

	result := NewAdapter(&stubSearcher{}, nil).Search(context.Background(), q)
	assert.Equal(t, domain.StatusError, result.Status)
}

func TestAdapter_ByID(t *testing.T) {
	adapter := NewAdapter(&stubSearcher{food: &Food{FdcID: 42, Description: "Oats"}}, nil)

	item, err := adapter.ByID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "Oats", item.Label())

	missing := NewAdapter(&stubSearcher{err: domain.ErrNotFound}, nil)
	_, err = missing.ByID(context.Background(), "43")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestAdapter_Stats(t *testing.T) {
	stub := &stubSearcher{
		resp:    &SearchResponse{TotalHits: 400000},
		branded: &SearchResponse{TotalHits: 380000},
	}

	stats, err := NewAdapter(stub, nil).Stats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 400000, stats.TotalFoods)
	require.NotNil(t, stats.BrandedFoods)
	assert.Equal(t, 380000, *stats.BrandedFoods)
}
