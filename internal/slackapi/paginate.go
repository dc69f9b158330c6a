package slackapi

import (
	"context"
	"iter"

	"slackmcp/internal/domain"
)

// maxPages guards against an upstream that never stops handing out cursors.
const maxPages = 1000

// Page is one upstream page. An empty Next means there is nothing more.
// Total is the upstream's own count when it reports one, otherwise zero.
type Page[T any] struct {
	Items []T
	Next  string
	Total int
}

// PageFunc fetches the page at cursor ("" for the first). want is how many
// items the caller still needs (0 = no limit); implementations must not
// return more than want items, so that Next resumes exactly after the last
// item returned.
type PageFunc[T any] func(ctx context.Context, cursor string, want int) (Page[T], error)

// Paginator walks a cursor-driven collection up to an optional item cap.
type Paginator[T any] struct {
	fetch  PageFunc[T]
	limit  int
	cursor string
}

// NewPaginator starts at the first page. limit <= 0 means unbounded.
func NewPaginator[T any](fetch PageFunc[T], limit int) *Paginator[T] {
	return &Paginator[T]{fetch: fetch, limit: limit}
}

// From resumes at a cursor returned by a previous walk.
func (p *Paginator[T]) From(cursor string) *Paginator[T] {
	p.cursor = cursor
	return p
}

// Pages lazily yields pages in upstream order. On failure it yields the
// error once and stops.
func (p *Paginator[T]) Pages(ctx context.Context) iter.Seq2[Page[T], error] {
	return func(yield func(Page[T], error) bool) {
		cursor := p.cursor
		seen := 0
		for range maxPages {
			want := 0
			if p.limit > 0 {
				want = p.limit - seen
			}
			page, err := p.fetch(ctx, cursor, want)
			if err != nil {
				yield(Page[T]{}, err)
				return
			}
			if page.Next != "" && page.Next == cursor {
				yield(Page[T]{}, domain.Errorf(domain.KindUpstreamError, "pagination cursor did not advance"))
				return
			}
			if want > 0 && len(page.Items) > want {
				page.Items = page.Items[:want]
			}
			seen += len(page.Items)
			if !yield(page, nil) {
				return
			}
			if page.Next == "" || (p.limit > 0 && seen >= p.limit) {
				return
			}
			if err := ctx.Err(); err != nil {
				yield(Page[T]{}, err)
				return
			}
			cursor = page.Next
		}
		yield(Page[T]{}, domain.Errorf(domain.KindUpstreamError, "pagination exceeded %d pages", maxPages))
	}
}

// Collected is the concatenation of the pages walked so far.
type Collected[T any] struct {
	Items []T
	Next  string // resume point; "" when exhausted
	Total int
}

// Collect walks all pages up to the cap. On error the items gathered before
// the failure are returned together with it, and Next points at the page
// that failed.
func (p *Paginator[T]) Collect(ctx context.Context) (Collected[T], error) {
	var out Collected[T]
	next := p.cursor
	for page, err := range p.Pages(ctx) {
		if err != nil {
			out.Next = next
			return out, err
		}
		out.Items = append(out.Items, page.Items...)
		if page.Total > out.Total {
			out.Total = page.Total
		}
		next = page.Next
	}
	out.Next = next
	return out, nil
}
