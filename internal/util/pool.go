// Copyright 2024 homefs Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many tasks run at once. A single Pool is meant to be
// shared by every caller that competes for the same resource (stat calls,
// deletions), so the cap holds across callers and not per call.
type Pool struct {
	name   string
	size   int64
	sem    *semaphore.Weighted
	active atomic.Int64
	peak   atomic.Int64
}

// NewPool creates a pool running at most size tasks concurrently.
// A size below 1 is treated as 1.
func NewPool(name string, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		name: name,
		size: int64(size),
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

// Do waits for a free slot and runs fn in the calling goroutine.
// It returns ctx.Err() without running fn if the context ends while waiting.
// Once fn has started it runs to completion.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	return fn()
}

// Name returns the pool name used in log messages.
func (p *Pool) Name() string { return p.name }

// Size returns the concurrency cap.
func (p *Pool) Size() int { return int(p.size) }

// Active returns the number of tasks currently running.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Peak returns the highest concurrency observed since creation.
func (p *Pool) Peak() int { return int(p.peak.Load()) }
