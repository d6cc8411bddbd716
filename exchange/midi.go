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
package exchange

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"fourtrack/clock"
	"fourtrack/model"
	"fourtrack/synth"
)

const (
	// ticksPerQuarter is the SMF resolution we write. 960 divides evenly
	// into the usual triplet and dotted subdivisions.
	ticksPerQuarter = 960

	// percussionChannel is MIDI channel 10 (zero-based 9), reserved for
	// drum tracks on both export and import.
	percussionChannel = 9
)

// midiEvent is a note on/off pinned to an absolute tick, before delta
// encoding. Offs sort ahead of ons at the same tick so back-to-back notes
// of the same pitch do not swallow each other.
type midiEvent struct {
	tick uint32
	off  bool
	msg  []byte
}

// ExportMIDI renders the project's note content as a standard MIDI file
// (format 1). Track 0 carries the name, tempo and meter; every midi and drum
// track becomes one SMF track, audio tracks are skipped. Drum tracks go to
// channel 10, melodic tracks claim the remaining channels in order.
func ExportMIDI(p *model.Project) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("exporting midi: nil project")
	}

	m := clock.FromTempo(p.BPM, p.TimeSigNumerator)

	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	var header smf.Track
	header.Add(0, smf.MetaTrackSequenceName(p.Name))
	header.Add(0, smf.MetaTempo(m.BPM))
	header.Add(0, smf.MetaMeter(meterBytes(p.TimeSigNumerator, p.TimeSigDenominator)))
	header.Close(0)

	if err := sm.Add(header); err != nil {
		return nil, fmt.Errorf("adding midi header track: %w", err)
	}

	exported := 0
	melodic := 0

	for i := range p.Tracks {
		track := &p.Tracks[i]
		if track.Type == model.TrackAudio {
			continue
		}

		channel := uint8(percussionChannel)
		if track.Type != model.TrackDrum {
			channel = melodicChannel(melodic)
			melodic++
		}

		var tr smf.Track
		tr.Add(0, smf.MetaTrackSequenceName(track.Name))

		last := uint32(0)
		for _, ev := range trackEvents(m, p, track.ID, channel) {
			tr.Add(ev.tick-last, ev.msg)
			last = ev.tick
		}
		tr.Close(0)

		if err := sm.Add(tr); err != nil {
			return nil, fmt.Errorf("adding midi track %q: %w", track.Name, err)
		}
		exported++
	}

	var buf bytes.Buffer
	if _, err := sm.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("writing midi file: %w", err)
	}

	slog.Info(fmt.Sprintf("exported %d note track(s) as midi (%d bytes)", exported, buf.Len()))

	return buf.Bytes(), nil
}

// trackEvents flattens every note of every clip on the track into absolute
// tick positions, sorted for delta encoding.
func trackEvents(m clock.Musical, p *model.Project, trackID string, channel uint8) []midiEvent {
	var events []midiEvent

	for _, c := range p.ClipsForTrack(trackID) {
		clipBeat := m.BarsToBeats(c.StartBar)

		for _, n := range c.Notes {
			start := beatsToTicks(clipBeat + n.StartBeat)
			end := beatsToTicks(clipBeat + n.StartBeat + n.DurationBeats)
			if end <= start {
				end = start + 1
			}

			key := clampMIDIValue(n.Pitch, 0)
			events = append(events,
				midiEvent{tick: start, msg: midi.NoteOn(channel, key, clampMIDIValue(n.Velocity, 1))},
				midiEvent{tick: end, off: true, msg: midi.NoteOff(channel, key)},
			)
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}

		return events[i].off && !events[j].off
	})

	return events
}

func beatsToTicks(beats float64) uint32 {
	if beats < 0 {
		return 0
	}

	return uint32(math.Round(beats * ticksPerQuarter))
}

// clampMIDIValue forces a note number or velocity into [floor, 127]. The
// velocity floor is 1 because a note-on with velocity zero reads back as a
// note-off.
func clampMIDIValue(v, floor int) uint8 {
	if v < floor {
		v = floor
	}

	if v > 127 {
		v = 127
	}

	return uint8(v)
}

// melodicChannel hands out channels 0..15 in order, skipping the percussion
// channel. Past sixteen tracks the last channel is shared.
func melodicChannel(index int) uint8 {
	if index >= percussionChannel {
		index++
	}

	if index > 15 {
		index = 15
	}

	return uint8(index)
}

func meterBytes(num, denom int) (uint8, uint8) {
	if num <= 0 || num > 32 {
		num = 4
	}

	if denom <= 0 || denom > 32 {
		denom = 4
	}

	return uint8(num), uint8(denom)
}

// openNote remembers a note-on waiting for its matching note-off.
type openNote struct {
	tick uint64
	vel  uint8
}

// ImportMIDI builds a new project from a standard MIDI file. Tempo and meter
// come from the first tempo/meter events (defaulting to 120 BPM in 4/4),
// every SMF track containing notes becomes a project track with a single
// clip at bar zero, and channel 10 marks a track as drums. All ids are
// freshly minted.
func ImportMIDI(data []byte) (*model.Project, error) {
	rd, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("reading midi file: %w", err)
	}

	resolution := float64(ticksPerQuarter)
	if mt, ok := rd.TimeFormat.(smf.MetricTicks); ok && uint16(mt) > 0 {
		resolution = float64(uint16(mt))
	}

	bpm := 120.0
	if tempos := rd.TempoChanges(); len(tempos) > 0 && tempos[0].BPM > 0 {
		bpm = tempos[0].BPM
	}

	name, num, denom := scanHeader(rd.Tracks)
	if name == "" {
		name = "Imported MIDI"
	}

	p := &model.Project{
		ID:                 model.NewID(),
		Name:               name,
		BPM:                clock.ClampBPM(bpm),
		TimeSigNumerator:   num,
		TimeSigDenominator: denom,
	}

	m := clock.FromTempo(p.BPM, p.TimeSigNumerator)

	for i, tr := range rd.Tracks {
		track, clip := importTrack(m, tr, i, resolution)
		if track == nil {
			continue
		}

		p.Tracks = append(p.Tracks, *track)
		p.Clips = append(p.Clips, *clip)
	}

	slog.Info(fmt.Sprintf("imported midi project '%s': %.0f bpm %d/%d, %d track(s)",
		p.Name, p.BPM, p.TimeSigNumerator, p.TimeSigDenominator, len(p.Tracks)))

	return p, nil
}

// scanHeader pulls the project name from the first track's sequence name and
// the meter from the first meter event anywhere in the file.
func scanHeader(tracks []smf.Track) (name string, num, denom int) {
	num, denom = 4, 4
	sawMeter := false

	for i, tr := range tracks {
		for _, ev := range tr {
			var text string
			if i == 0 && name == "" && ev.Message.GetMetaTrackName(&text) {
				name = text
			}

			var n, d uint8
			if !sawMeter && ev.Message.GetMetaMeter(&n, &d) && n > 0 && d > 0 {
				num, denom = int(n), int(d)
				sawMeter = true
			}
		}
	}

	return name, num, denom
}

// importTrack converts one SMF track into a project track plus a clip at bar
// zero holding its notes. Tracks without any note events return nil.
func importTrack(m clock.Musical, tr smf.Track, index int, resolution float64) (*model.Track, *model.Clip) {
	var (
		abs     uint64
		notes   []model.Note
		open    = map[[2]uint8]openNote{}
		name    = fmt.Sprintf("Track %d", index+1)
		drums   bool
		sawNote bool
	)

	for _, ev := range tr {
		abs += uint64(ev.Delta)

		var ch, key, vel uint8
		var text string

		switch {
		case ev.Message.GetNoteStart(&ch, &key, &vel):
			sawNote = true
			if ch == percussionChannel {
				drums = true
			}
			open[[2]uint8{ch, key}] = openNote{tick: abs, vel: vel}

		case ev.Message.GetNoteEnd(&ch, &key):
			k := [2]uint8{ch, key}
			on, ok := open[k]
			if !ok {
				continue
			}
			delete(open, k)

			notes = append(notes, model.Note{
				Pitch:         int(key),
				StartBeat:     float64(on.tick) / resolution,
				DurationBeats: float64(abs-on.tick) / resolution,
				Velocity:      int(on.vel),
			})

		case ev.Message.GetMetaTrackName(&text):
			if text != "" {
				name = text
			}
		}
	}

	if !sawNote {
		return nil, nil
	}

	// Note-ons that never saw their off get a one-beat default instead of
	// being dropped.
	for k, on := range open {
		notes = append(notes, model.Note{
			Pitch:         int(k[1]),
			StartBeat:     float64(on.tick) / resolution,
			DurationBeats: 1,
			Velocity:      int(on.vel),
		})
	}

	sort.Slice(notes, func(i, j int) bool {
		if notes[i].StartBeat != notes[j].StartBeat {
			return notes[i].StartBeat < notes[j].StartBeat
		}

		return notes[i].Pitch < notes[j].Pitch
	})

	end := 0.0
	for _, n := range notes {
		if e := n.StartBeat + n.DurationBeats; e > end {
			end = e
		}
	}

	track := &model.Track{
		ID:               model.NewID(),
		Name:             name,
		Type:             model.TrackMIDI,
		Volume:           1,
		InstrumentPreset: synth.DefaultPresetID,
	}
	if drums {
		track.Type = model.TrackDrum
		track.InstrumentPreset = synth.DrumKitPresetID
	}

	clip := &model.Clip{
		ID:         model.NewID(),
		TrackID:    track.ID,
		Type:       track.Type,
		Name:       name,
		StartBar:   0,
		LengthBars: m.BeatsToBars(end),
		Notes:      notes,
	}

	return track, clip
}
