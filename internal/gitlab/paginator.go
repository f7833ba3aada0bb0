package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

const (
	defaultPerPage  = 100
	defaultMaxPages = 100
)

// ErrStopPaging is returned by a page callback to end pagination early,
// e.g. once a newest-first listing has scrolled past the date window.
var errStopPaging = fmt.Errorf("stop paging")

// Pager walks a list endpoint lazily, one page per Next call, following
// the X-Next-Page continuation header. The page cap bounds worst-case
// latency and memory against runaway result sets; hitting it is a
// truncation warning, not an error.
type Pager struct {
	transport *Transport
	path      string
	query     url.Values
	perPage   int
	maxPages  int

	page      int
	fetched   int
	done      bool
	truncated bool
}

// NewPager prepares a pager over path with the given base query.
func (t *Transport) NewPager(path string, query url.Values) *Pager {
	if query == nil {
		query = url.Values{}
	}
	return &Pager{
		transport: t,
		path:      path,
		query:     query,
		perPage:   defaultPerPage,
		maxPages:  defaultMaxPages,
		page:      1,
	}
}

// WithMaxPages lowers the page cap; used for expensive N+1 endpoints
// like note listings.
func (p *Pager) WithMaxPages(n int) *Pager {
	if n > 0 {
		p.maxPages = n
	}
	return p
}

// Truncated reports whether the pager gave up at the page cap with more
// data available upstream.
func (p *Pager) Truncated() bool { return p.truncated }

// Next fetches the next page and returns its raw JSON body. The second
// return is false once the sequence is exhausted.
func (p *Pager) Next(ctx context.Context) ([]byte, bool, error) {
	if p.done {
		return nil, false, nil
	}
	if p.fetched >= p.maxPages {
		p.done = true
		p.truncated = true
		p.transport.logger.Warn("result set truncated at page cap",
			"path", p.path, "pages", p.fetched)
		return nil, false, nil
	}

	query := url.Values{}
	for k, vs := range p.query {
		query[k] = vs
	}
	query.Set("page", strconv.Itoa(p.page))
	query.Set("per_page", strconv.Itoa(p.perPage))

	body, header, err := p.transport.Get(ctx, p.path, query)
	if err != nil {
		p.done = true
		return nil, false, err
	}
	p.fetched++

	// An empty array or an absent continuation marker both end the
	// sequence after this page, whatever the header says.
	next := header.Get("X-Next-Page")
	if next == "" || emptyListBody(body) {
		p.done = true
	} else if n, err := strconv.Atoi(next); err == nil {
		p.page = n
	} else {
		p.done = true
	}

	return body, true, nil
}

func emptyListBody(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) == 0 || string(trimmed) == "[]"
}

// eachPage decodes every page into []T and hands it to fn. fn may return
// errStopPaging to short-circuit without error.
func eachPage[T any](ctx context.Context, p *Pager, fn func(items []T) error) error {
	for {
		raw, ok, err := p.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("decode page of %s: %w", p.path, err)
		}
		if len(items) == 0 {
			return nil
		}

		if err := fn(items); err != nil {
			if err == errStopPaging {
				return nil
			}
			return err
		}
	}
}

// collectAll flattens every page of a listing into one slice.
func collectAll[T any](ctx context.Context, p *Pager) ([]T, error) {
	var all []T
	err := eachPage(ctx, p, func(items []T) error {
		all = append(all, items...)
		return nil
	})
	return all, err
}
