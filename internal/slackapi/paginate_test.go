package slackapi

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slackmcp/internal/domain"
)

// fakePages serves ints 0..n-1 with a fixed upstream page size; cursors are
// offsets. failAt makes the fetch at that offset fail.
func fakePages(n, size int, failAt int, calls *int) PageFunc[int] {
	return func(ctx context.Context, cursor string, want int) (Page[int], error) {
		*calls++
		offset := 0
		if cursor != "" {
			offset, _ = strconv.Atoi(cursor)
		}
		if failAt >= 0 && offset >= failAt {
			return Page[int]{}, errors.New("boom")
		}
		limit := size
		if want > 0 && want < limit {
			limit = want
		}
		var items []int
		for i := offset; i < n && len(items) < limit; i++ {
			items = append(items, i)
		}
		next := ""
		if offset+len(items) < n {
			next = strconv.Itoa(offset + len(items))
		}
		return Page[int]{Items: items, Next: next, Total: n}, nil
	}
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// --- Collect ---

func TestCollect_Unbounded(t *testing.T) {
	calls := 0
	got, err := NewPaginator(fakePages(25, 10, -1, &calls), 0).Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seq(25), got.Items)
	assert.Empty(t, got.Next)
	assert.Equal(t, 25, got.Total)
	assert.Equal(t, 3, calls)
}

func TestCollect_CapStopsEarly(t *testing.T) {
	calls := 0
	got, err := NewPaginator(fakePages(100, 10, -1, &calls), 15).Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seq(15), got.Items)
	assert.Equal(t, "15", got.Next)
	assert.Equal(t, 2, calls, "no page fetched past the cap")
}

func TestCollect_SuccessivePagesEqualUnboundedFetch(t *testing.T) {
	for _, step := range []int{1, 3, 7, 10, 11, 40} {
		calls := 0
		fetch := fakePages(37, 10, -1, &calls)

		var all []int
		cursor := ""
		for {
			got, err := NewPaginator(fetch, step).From(cursor).Collect(context.Background())
			require.NoError(t, err)
			all = append(all, got.Items...)
			if got.Next == "" {
				break
			}
			cursor = got.Next
		}
		assert.Equal(t, seq(37), all, "step %d", step)
	}
}

func TestCollect_PartialOnError(t *testing.T) {
	calls := 0
	got, err := NewPaginator(fakePages(50, 10, 20, &calls), 0).Collect(context.Background())
	require.Error(t, err)
	assert.Equal(t, seq(20), got.Items, "items before the failure survive")
	assert.Equal(t, "20", got.Next, "resume point is the failed page")
}

func TestCollect_CursorMustAdvance(t *testing.T) {
	stuck := func(ctx context.Context, cursor string, want int) (Page[int], error) {
		return Page[int]{Items: []int{1}, Next: "same"}, nil
	}
	got, err := NewPaginator(PageFunc[int](stuck), 0).From("same").Collect(context.Background())
	assert.True(t, domain.IsKind(err, domain.KindUpstreamError))
	assert.Empty(t, got.Items)
}

func TestCollect_TruncatesOversizedPage(t *testing.T) {
	greedy := func(ctx context.Context, cursor string, want int) (Page[int], error) {
		return Page[int]{Items: seq(50), Next: "more"}, nil
	}
	got, err := NewPaginator(PageFunc[int](greedy), 5).Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, got.Items, 5)
}

func TestCollect_CancelledBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetch := func(_ context.Context, cursor string, want int) (Page[int], error) {
		cancel()
		return Page[int]{Items: []int{1, 2}, Next: cursor + "x"}, nil
	}
	got, err := NewPaginator(PageFunc[int](fetch), 0).Collect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int{1, 2}, got.Items)
}

// --- Pages ---

func TestPages_LazyStop(t *testing.T) {
	calls := 0
	p := NewPaginator(fakePages(100, 10, -1, &calls), 0)
	for page, err := range p.Pages(context.Background()) {
		require.NoError(t, err)
		assert.Len(t, page.Items, 10)
		break
	}
	assert.Equal(t, 1, calls)
}

// --- Search windows ---

func TestWindow_ExactResume(t *testing.T) {
	page := seq(10) // upstream page 1 with count 10

	items, next := window(page, 0, 10, 4, 25)
	assert.Equal(t, []int{0, 1, 2, 3}, items)
	assert.Equal(t, "4", next)

	// resuming at offset 4 with size 10 skips the first 4 of page 1
	items, next = window(page, 4, 10, 0, 25)
	assert.Equal(t, []int{4, 5, 6, 7, 8, 9}, items)
	assert.Equal(t, "10", next)
}

func TestWindow_Exhaustion(t *testing.T) {
	items, next := window([]int{20, 21, 22}, 20, 10, 0, 23)
	assert.Len(t, items, 3)
	assert.Empty(t, next)

	// short page with a stale total
	_, next = window([]int{1, 2}, 0, 10, 0, 500)
	assert.Empty(t, next)

	items, next = window([]int{1}, 5, 10, 0, 50)
	assert.Empty(t, items)
	assert.Empty(t, next)
}
