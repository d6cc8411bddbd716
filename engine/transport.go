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
package engine

import (
	"context"
	"fmt"
)

// Play arms the transport clock. Until then pulls drain silence without
// moving event time.
func (e *Engine) Play() {
	e.transport.SetRunning(true)
}

// Pause freezes the transport in place. Pending events hold their positions;
// the wall domain keeps running.
func (e *Engine) Pause() {
	e.transport.SetRunning(false)
}

// Stop pauses the transport, cancels everything pending, releases every
// sounding source and rewinds to zero. The project registration is gone
// after Stop; play again via ScheduleProject.
func (e *Engine) Stop() {
	e.transport.SetRunning(false)

	e.mu.Lock()
	for id := range e.clips {
		e.unscheduleClipLocked(id)
	}
	for _, ch := range e.chains {
		ch.bus.Clear()
	}
	e.mu.Unlock()

	e.transport.CancelAll()
	e.transport.SetPosition(0)
}

// Running reports whether the transport clock advances on pulls.
func (e *Engine) Running() bool {
	return e.transport.Running()
}

// PositionSeconds is the transport position in seconds.
func (e *Engine) PositionSeconds() float64 {
	return e.transport.Now()
}

// PositionBars is the transport position in bars of the scheduled project's
// musical clock.
func (e *Engine) PositionBars() float64 {
	e.mu.Lock()
	m := e.musical
	e.mu.Unlock()
	return m.SamplesToBars(e.transport.Position(), e.transport.SampleRate())
}

// Seek silences everything, moves the transport to the given bar and
// re-registers the project from there: notes earlier than the target never
// fire, and audio clips straddling it start mid-window. Whether the
// transport was running is preserved across the seek.
func (e *Engine) Seek(ctx context.Context, bar float64) error {
	e.mu.Lock()
	p := e.project
	m := e.musical
	e.mu.Unlock()

	if p == nil {
		return fmt.Errorf("no project scheduled")
	}
	if bar < 0 {
		bar = 0
	}

	wasRunning := e.transport.Running()
	e.transport.SetRunning(false)

	fromSec := m.BarsToSeconds(bar)
	e.transport.SetPosition(fromSec)

	if err := e.scheduleProjectFrom(ctx, p, fromSec); err != nil {
		return err
	}

	e.transport.SetRunning(wasRunning)
	return nil
}
