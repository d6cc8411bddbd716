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
	"sync"

	"github.com/gopxl/beep"

	"fourtrack/clock"
	"fourtrack/model"
	"fourtrack/synth"
)

// Engine owns the signal graph and both timing domains. The transport clock
// times the master bus and pauses with the transport; the wall clock times
// the click bus and never pauses, which is what lets count-in clicks sound
// while the transport is still holding. Output() mixes the two domains; who
// pulls it decides live playback versus offline render, nothing else
// differs.
//
// An Engine is constructed explicitly and disposed explicitly. It holds no
// devices: audio I/O belongs to the caller.
type Engine struct {
	cfg     *model.Config
	rampLen int

	transport *SampleClock
	wall      *SampleClock
	master    *Bus
	clicks    *Bus
	out       *Bus

	synths *synth.Factory

	mu      sync.Mutex
	project *model.Project
	musical clock.Musical
	chains  map[string]*trackChain
	clips   map[string]*scheduledClip
	takes   TakeSource
	closed  bool
}

// trackChain is one track's slice of the graph: a removable bus the track's
// sources attach to, the ordered effect inserts, then ramped gain and pan
// feeding the master bus. volume and the computed mute share the gain node;
// the applied target is volume when audible, zero when not.
type trackChain struct {
	trackID string
	bus     *Bus
	effects []synth.Node
	gain    *RampGain
	pan     *RampPan
	inst    synth.Instrument
	poly    bool
	nextKey int
}

// New builds an engine from the configuration. The transport starts paused
// at bar zero with nothing scheduled.
func New(cfg *model.Config) *Engine {
	sr := cfg.SampleRate
	e := &Engine{
		cfg:     cfg,
		rampLen: int(cfg.RampSeconds() * float64(sr)),
		master:  NewBus(),
		clicks:  NewBus(),
		out:     NewBus(),
		synths:  synth.NewFactory(sr, cfg.AssetDirectory),
		chains:  make(map[string]*trackChain),
		clips:   make(map[string]*scheduledClip),
		musical: clock.Musical{BPM: 120, BeatsPerBar: 4},
	}

	e.transport = NewSampleClock(sr)
	e.transport.SetSource(e.master)
	e.transport.SetRunning(false)

	e.wall = NewSampleClock(sr)
	e.wall.SetSource(e.clicks)

	e.out.Add("transport", e.transport)
	e.out.Add("wall", e.wall)

	return e
}

// SampleRate reports the engine rate every graph node runs at.
func (e *Engine) SampleRate() int {
	return e.cfg.SampleRate
}

// Output is the streamer whose pull drives everything. The speaker pulls it
// live; the renderer pulls it into a file.
func (e *Engine) Output() beep.Streamer {
	return e.out
}

// Scheduler is the transport-domain scheduler. Events registered here hold
// while the transport is paused and survive seeks only if re-registered.
func (e *Engine) Scheduler() *SampleClock {
	return e.transport
}

// WallScheduler is the always-running scheduler backing count-in clicks and
// anything else that must keep time while the transport holds.
func (e *Engine) WallScheduler() *SampleClock {
	return e.wall
}

// ClickBus is where metronome sources attach; it lives in the wall domain.
func (e *Engine) ClickBus() *Bus {
	return e.clicks
}

// Musical reports the musical clock of the last scheduled project.
func (e *Engine) Musical() clock.Musical {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.musical
}

// SetTakeSource wires the lookup used to resolve a clip's active take when
// scheduling audio clips. Without one, audio clips are skipped.
func (e *Engine) SetTakeSource(ts TakeSource) {
	e.mu.Lock()
	e.takes = ts
	e.mu.Unlock()
}

// UpdateTrackVolume retargets the track's gain ramp. It touches only the
// live chain; nothing is rescheduled. Tracks without a live chain keep the
// new value for the next ScheduleProject.
func (e *Engine) UpdateTrackVolume(trackID string, volume float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t := e.trackLocked(trackID); t != nil {
		t.Volume = volume
	}
	e.applyMixLocked()
}

// UpdateTrackPan retargets the track's pan ramp, clamped to [-1, 1].
func (e *Engine) UpdateTrackPan(trackID string, pan float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t := e.trackLocked(trackID); t != nil {
		t.Pan = pan
	}
	if ch, ok := e.chains[trackID]; ok {
		ch.pan.SetPan(pan)
	}
}

// UpdateTrackMute flips the track's own mute flag and re-applies the
// computed mutes across all live chains.
func (e *Engine) UpdateTrackMute(trackID string, muted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t := e.trackLocked(trackID); t != nil {
		t.Muted = muted
	}
	e.applyMixLocked()
}

// UpdateTrackSolo flips the track's solo flag. Any solo anywhere converts
// every non-soloed track into a computed mute, regardless of its own muted
// flag; dropping the last solo restores them.
func (e *Engine) UpdateTrackSolo(trackID string, solo bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t := e.trackLocked(trackID); t != nil {
		t.Solo = solo
	}
	e.applyMixLocked()
}

// Close cancels every pending event and releases every node synchronously.
// The engine must not be pulled afterwards.
func (e *Engine) Close() {
	e.transport.CancelAll()
	e.wall.CancelAll()
	e.transport.SetRunning(false)

	e.mu.Lock()
	defer e.mu.Unlock()

	for id, sc := range e.clips {
		sc.released = true
		delete(e.clips, id)
	}
	for id, ch := range e.chains {
		e.releaseChainLocked(ch)
		delete(e.chains, id)
	}
	e.master.Clear()
	e.clicks.Clear()
	e.closed = true
}

func (e *Engine) trackLocked(trackID string) *model.Track {
	if e.project == nil {
		return nil
	}
	return e.project.TrackByID(trackID)
}

// audibleLocked is the computed mute: muted tracks are silent, and when any
// track is soloed so is every track that is not.
func (e *Engine) audibleLocked(t *model.Track) bool {
	if t.Muted {
		return false
	}
	if e.project != nil && e.project.AnySolo() && !t.Solo {
		return false
	}
	return true
}

// applyMixLocked pushes effective gain targets to every live chain. Every
// transition rides the same ramp length, so overlapping mute and solo edits
// land consistently.
func (e *Engine) applyMixLocked() {
	if e.project == nil {
		return
	}
	for id, ch := range e.chains {
		t := e.project.TrackByID(id)
		if t == nil {
			continue
		}
		target := 0.0
		if e.audibleLocked(t) {
			target = t.Volume
		}
		ch.gain.SetGain(target)
	}
}

// chainForLocked returns the track's chain, building it on first use:
// bus → inserts → gain → pan → master. Effect inserts and instruments are
// made ready here, at schedule time, never inside the pull.
func (e *Engine) chainForLocked(ctx context.Context, track *model.Track) (*trackChain, error) {
	if ch, ok := e.chains[track.ID]; ok {
		return ch, nil
	}

	ch := &trackChain{trackID: track.ID, bus: NewBus()}

	var head beep.Streamer = ch.bus
	for _, desc := range track.Effects {
		node := e.synths.NewEffect(desc)
		if node == nil {
			slog.Warn(fmt.Sprintf("unknown effect type '%s' on track '%s', skipping insert", desc.Type, track.Name))
			continue
		}
		if err := node.Ready(ctx); err != nil {
			for _, built := range ch.effects {
				built.Release()
			}
			return nil, fmt.Errorf("preparing %s insert for track '%s': %w", desc.Type, track.Name, err)
		}
		node.SetSource(head)
		head = node
		ch.effects = append(ch.effects, node)
	}

	initial := 0.0
	if e.audibleLocked(track) {
		initial = track.Volume
	}
	ch.gain = NewRampGain(head, initial, e.rampLen)
	ch.pan = NewRampPan(ch.gain, track.Pan, e.rampLen)

	if track.Type == model.TrackMIDI || track.Type == model.TrackDrum {
		inst := e.synths.ForTrack(track)
		if err := inst.Ready(ctx); err != nil {
			for _, built := range ch.effects {
				built.Release()
			}
			return nil, fmt.Errorf("preparing instrument for track '%s': %w", track.Name, err)
		}
		ch.inst = inst
		ch.poly = inst.Capabilities().Polyphonic
	}

	e.master.Add("track:"+track.ID, ch.pan)
	e.chains[track.ID] = ch

	slog.Debug(fmt.Sprintf("built chain for track '%s' (%d inserts)", track.Name, len(ch.effects)))
	return ch, nil
}

func (e *Engine) releaseChainLocked(ch *trackChain) {
	e.master.Remove("track:" + ch.trackID)
	for _, node := range ch.effects {
		node.Release()
	}
	ch.bus.Clear()
}

// sourceKey hands out bus keys for transient sources (voices, clip players)
// attached to this chain.
func (ch *trackChain) sourceKey() string {
	ch.nextKey++
	return fmt.Sprintf("src:%d", ch.nextKey)
}
