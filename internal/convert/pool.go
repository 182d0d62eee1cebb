// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package convert

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool converts many attachments with a bounded number in flight.
type Pool struct {
	conv    *Converter
	workers int
}

// NewPool creates a pool running at most workers conversions at once.
// Values below one are treated as one.
func NewPool(conv *Converter, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{conv: conv, workers: workers}
}

// Workers returns the concurrency limit.
func (p *Pool) Workers() int {
	return p.workers
}

// ConvertAll runs every request and returns results in request order.
// errs[i] holds the non-fatal error of request i (ErrSourceMissing).
// The first fatal error cancels the remaining work and is returned.
func (p *Pool) ConvertAll(ctx context.Context, reqs []Request) (results []Result, errs []error, err error) {
	results = make([]Result, len(reqs))
	errs = make([]error, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, req := range reqs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := p.conv.Convert(gctx, req)
			if IsFatal(err) {
				return err
			}
			results[i] = res
			errs[i] = err
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	// The parent context may end after the last worker returned
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return results, errs, nil
}
