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
	"log/slog"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"

	"fourtrack/clock"
	"fourtrack/codec"
	"fourtrack/model"
)

// TakeSource resolves the active take for an audio clip. The store satisfies
// it; tests hand the engine a map.
type TakeSource interface {
	ActiveTake(clipID string) (*model.AudioTake, error)
}

// scheduledClip is the engine-side registration of one clip: the pending
// clock events and the bus keys of every source it has attached. released is
// flipped under the engine lock when the clip is unscheduled; a callback
// that slipped past Cancel checks it and becomes a no-op, which is what
// makes "no event fires after unschedule" hold even though callbacks run on
// the pull goroutine.
type scheduledClip struct {
	clipID   string
	trackID  string
	handles  []Handle
	sources  []string
	released bool
}

// ScheduleProject replaces the entire schedule with the project's clips.
// Tracks silenced by the computed mute are skipped; audio clips without an
// active take and note clips without notes are valid, silently skipped
// states. A clip that fails to schedule logs and is skipped, never aborting
// the rest of the project.
func (e *Engine) ScheduleProject(ctx context.Context, p *model.Project) error {
	return e.scheduleProjectFrom(ctx, p, 0)
}

func (e *Engine) scheduleProjectFrom(ctx context.Context, p *model.Project, fromSec float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for id := range e.clips {
		e.unscheduleClipLocked(id)
	}
	for id, ch := range e.chains {
		e.releaseChainLocked(ch)
		delete(e.chains, id)
	}

	e.project = p
	e.musical = clock.FromTempo(p.BPM, p.TimeSigNumerator)

	for i := range p.Tracks {
		t := &p.Tracks[i]
		if !e.audibleLocked(t) {
			continue
		}
		for _, c := range p.ClipsForTrack(t.ID) {
			if err := e.scheduleClipLocked(ctx, c, t, fromSec); err != nil {
				slog.Warn(fmt.Sprintf("skipping clip '%s' on track '%s': %v", c.ID, t.Name, err))
			}
		}
	}

	return nil
}

// ScheduleClip registers one clip, replacing any prior registration of the
// same clip so that rescheduling after an edit never leaks nodes or events.
func (e *Engine) ScheduleClip(ctx context.Context, c *model.Clip, t *model.Track, p *model.Project) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.project = p
	e.musical = clock.FromTempo(p.BPM, p.TimeSigNumerator)

	e.unscheduleClipLocked(c.ID)
	return e.scheduleClipLocked(ctx, c, t, 0)
}

// UnscheduleClip cancels the clip's pending events and detaches its sources.
// Unknown clips are a no-op; calling it twice is harmless.
func (e *Engine) UnscheduleClip(clipID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unscheduleClipLocked(clipID)
}

// ScheduledClips reports how many clips hold a live registration.
func (e *Engine) ScheduledClips() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.clips)
}

func (e *Engine) unscheduleClipLocked(clipID string) {
	sc, ok := e.clips[clipID]
	if !ok {
		return
	}
	sc.released = true
	for _, h := range sc.handles {
		e.transport.Cancel(h)
	}
	if ch, ok := e.chains[sc.trackID]; ok {
		for _, key := range sc.sources {
			ch.bus.Remove(key)
		}
	}
	delete(e.clips, clipID)
}

func (e *Engine) scheduleClipLocked(ctx context.Context, c *model.Clip, t *model.Track, fromSec float64) error {
	hasNotes := len(c.Notes) > 0
	if c.ActiveTakeID == "" && !hasNotes {
		// An audio clip awaiting its first recording, or a note clip with
		// nothing in it. Valid states; nothing to register.
		return nil
	}

	ch, err := e.chainForLocked(ctx, t)
	if err != nil {
		return err
	}

	sc := &scheduledClip{clipID: c.ID, trackID: t.ID}
	startSec := e.musical.BarsToSeconds(c.StartBar)

	// Clip content decides what gets scheduled; a clip whose type disagrees
	// with its track still plays what it carries.
	if c.ActiveTakeID != "" {
		if err := e.scheduleAudioLocked(sc, ch, c, startSec, fromSec); err != nil {
			return err
		}
	}
	if hasNotes {
		if err := e.scheduleNotesLocked(ctx, sc, ch, t, c, startSec, fromSec); err != nil {
			return err
		}
	}

	e.clips[c.ID] = sc
	return nil
}

// scheduleNotesLocked registers one clock event per note. Notes sharing an
// identical timestamp on a monophonic instrument are offset by index × 1 ms
// so each sounds instead of the last one cutting the rest; polyphonic
// instruments take them simultaneously.
func (e *Engine) scheduleNotesLocked(ctx context.Context, sc *scheduledClip, ch *trackChain, t *model.Track, c *model.Clip, startSec, fromSec float64) error {
	if ch.inst == nil {
		inst := e.synths.ForTrack(t)
		if err := inst.Ready(ctx); err != nil {
			return fmt.Errorf("preparing instrument: %w", err)
		}
		ch.inst = inst
		ch.poly = inst.Capabilities().Polyphonic
	}

	stagger := make(map[float64]int)
	for _, n := range c.Notes {
		at := startSec + e.musical.BeatsToSeconds(n.StartBeat)
		if !ch.poly {
			idx := stagger[at]
			stagger[at] = idx + 1
			at += float64(idx) * 0.001
		}
		if at < fromSec {
			continue
		}

		note := n
		h := e.transport.ScheduleAt(at, func() {
			e.fireNote(sc, ch, note)
		})
		sc.handles = append(sc.handles, h)
	}

	return nil
}

// scheduleAudioLocked decodes the active take and registers a player for the
// clip's window. When fromSec lands inside the clip, the player starts that
// far into its window instead of from the top.
func (e *Engine) scheduleAudioLocked(sc *scheduledClip, ch *trackChain, c *model.Clip, startSec, fromSec float64) error {
	if e.takes == nil {
		return fmt.Errorf("no take source wired")
	}

	take, err := e.takes.ActiveTake(c.ID)
	if err != nil {
		return fmt.Errorf("resolving active take: %w", err)
	}

	dec, err := codec.DecodeWAV(take.PCM)
	if err != nil {
		return fmt.Errorf("decoding take '%s': %w", take.ID, err)
	}

	w := clipWindow{
		trimStart: c.TrimStart,
		trimEnd:   c.TrimEnd,
		limit:     e.musical.BarsToSeconds(c.LengthBars),
		fadeIn:    c.FadeIn,
		fadeOut:   c.FadeOut,
		edgeFade:  e.cfg.EdgeFadeSeconds(),
	}

	at := startSec
	if fromSec > startSec {
		w.offset = fromSec - startSec
		at = fromSec
	}

	player := newClipPlayer(dec, e.cfg.SampleRate, w)
	if player.outPos >= player.totalOut {
		// Entirely behind the start point, or trimmed to nothing.
		return nil
	}

	// Per-clip entry gain ahead of the inserts. Unity until a clip gain
	// exists in the document model.
	entry := &effects.Gain{Streamer: player, Gain: 0}

	key := ch.sourceKey()
	h := e.transport.ScheduleAt(at, func() {
		e.attachSource(sc, ch, key, entry)
	})
	sc.handles = append(sc.handles, h)

	return nil
}

// fireNote runs inside the pull at the note's exact sample offset. The
// released check under the engine lock is what makes it safe against a
// concurrent unschedule: a callback that already left the clock becomes a
// no-op here.
func (e *Engine) fireNote(sc *scheduledClip, ch *trackChain, n model.Note) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sc.released || e.closed || ch.inst == nil {
		return
	}

	vel := float64(n.Velocity) / 127
	if vel < 0 {
		vel = 0
	} else if vel > 1 {
		vel = 1
	}

	voice := ch.inst.Trigger(n.Pitch, vel, e.musical.BeatsToSeconds(n.DurationBeats))
	if voice == nil {
		return
	}

	key := ch.sourceKey()
	ch.bus.Add(key, voice)
	sc.sources = append(sc.sources, key)
}

// attachSource puts a prepared source on the chain bus at its start event.
func (e *Engine) attachSource(sc *scheduledClip, ch *trackChain, key string, src beep.Streamer) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sc.released || e.closed {
		return
	}

	ch.bus.Add(key, src)
	sc.sources = append(sc.sources, key)
}
