/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package listener

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrInvalidInterval = errors.New("polling interval must be positive")

// poller runs fn immediately and then on every tick until stopped.
type poller struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

func newPoller(name string, interval time.Duration, fn func(ctx context.Context)) *poller {
	return &poller{
		name:     name,
		interval: interval,
		fn:       fn,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

func (p *poller) start(ctx context.Context) error {
	if p.interval <= 0 {
		return ErrInvalidInterval
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	p.started = true

	go p.pollLoop(ctx)

	zap.L().Info("Listener started",
		zap.String("listener", p.name),
		zap.Duration("polling_interval", p.interval))
	return nil
}

// stop is safe to call more than once, and before start.
func (p *poller) stop() {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()

	p.stopOnce.Do(func() { close(p.stopChan) })
	if started {
		<-p.doneChan
	}
	zap.L().Info("Listener stopped", zap.String("listener", p.name))
}

// pollLoop runs the main polling loop
func (p *poller) pollLoop(ctx context.Context) {
	defer close(p.doneChan)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.fn(ctx)

	for {
		select {
		case <-ticker.C:
			p.fn(ctx)
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
