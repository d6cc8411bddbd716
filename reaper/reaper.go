// =================================================================================
//
//			fourtrack - a multitrack composer audio engine
//
//		 Fourtrack is a headless engine for scheduling, recording and
//	  rendering multitrack projects against a shared musical clock
//
//		 Copyright (c) 2026 the fourtrack authors
//
//			Licensed under the Apache License, Version 2.0 (the "License");
//			you may not use this file except in compliance with the License.
//			You may obtain a copy of the License at
//
//			     http://www.apache.org/licenses/LICENSE-2.0
//
//			Unless required by applicable law or agreed to in writing, software
//			distributed under the License is distributed on an "AS IS" BASIS,
//			WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//			See the License for the specific language governing permissions and
//			limitations under the License.
//
// =================================================================================

// Package reaper coordinates process teardown. Long-lived goroutines
// (capture drain, live playout, progress tickers) Register before starting
// work and call Done when they exit; subsystems that need ordered shutdown
// hang a named Callback. Reap runs the callbacks newest-first exactly once,
// and Wait blocks until every registered goroutine has drained.
package reaper

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

type callback struct {
	name string
	fn   func()
}

var (
	mu            sync.Mutex
	reaped        bool
	callbacks     []callback
	registrations []string
	wg            sync.WaitGroup
)

// Reaped reports whether shutdown has been requested. Periodic goroutines
// poll it between work cycles.
func Reaped() bool {
	mu.Lock()
	defer mu.Unlock()

	return reaped
}

// Reap requests shutdown and runs every registered callback in reverse
// registration order. Later calls are no-ops, so a SIGINT handler and a
// normal exit path can both call it.
func Reap() {
	mu.Lock()
	if reaped {
		mu.Unlock()
		return
	}
	reaped = true
	toRun := slices.Clone(callbacks)
	mu.Unlock()

	slices.Reverse(toRun)

	for _, cb := range toRun {
		slog.Info(fmt.Sprintf("reaper: calling reap callback for '%s'", cb.name))
		cb.fn()
	}
}

// Callback registers a named teardown step. Steps run newest-first on Reap,
// mirroring construction order.
func Callback(name string, fn func()) {
	mu.Lock()
	defer mu.Unlock()

	callbacks = append(callbacks, callback{name: name, fn: fn})
}

// Register adds a goroutine to the wait set. Registering the same name twice
// without an intervening Done is a bug in the caller and is ignored with a
// warning.
func Register(name string) {
	mu.Lock()
	defer mu.Unlock()

	if slices.Contains(registrations, name) {
		slog.Warn(fmt.Sprintf("reaper: already registered '%s'", name))
		return
	}

	registrations = append(registrations, name)
	wg.Add(1)
	slog.Debug(fmt.Sprintf("reaper: registered '%s'", name))
}

// Done marks a registered goroutine as drained.
func Done(name string) {
	mu.Lock()
	defer mu.Unlock()

	if !slices.Contains(registrations, name) {
		slog.Warn(fmt.Sprintf("reaper: already done or never registered: '%s'", name))
		return
	}

	registrations = slices.DeleteFunc(registrations, func(test string) bool {
		return test == name
	})

	slog.Debug(fmt.Sprintf("reaper: done: '%s'", name))
	wg.Done()
}

// Wait blocks until every registered goroutine has called Done.
func Wait() {
	wg.Wait()
}
