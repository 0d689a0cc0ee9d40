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
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
)

// PollConfig bounds a wait on another process, such as the daemon
// coming up or going away.
type PollConfig struct {
	Timeout  time.Duration
	Interval time.Duration
}

// DaemonPollConfig is how long the CLI waits for the daemon to start or stop.
func DaemonPollConfig() PollConfig {
	return PollConfig{Timeout: 10 * time.Second, Interval: 25 * time.Millisecond}
}

var errNotReady = errors.New("condition not met")

// PollUntil checks ready at a fixed interval until it reports true. It
// returns context.DeadlineExceeded once cfg.Timeout passes, or ctx's error
// if ctx ends first. Zero fields fall back to 5s and 50ms.
func PollUntil(ctx context.Context, cfg PollConfig, ready func() bool) error {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 50 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	return retry.Do(func() error {
		if ready() {
			return nil
		}
		return errNotReady
	},
		retry.Attempts(0),
		retry.Delay(cfg.Interval),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
	)
}
