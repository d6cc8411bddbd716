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
	"errors"
	"io"

	"fourtrack/codec"
	"fourtrack/model"
)

// ErrNothingToRender means the project has no playable content: every clip
// was empty, awaiting a take, or failed to schedule, or the furthest clip
// ends at time zero. Rendering never produces a zero-length file.
var ErrNothingToRender = errors.New("engine: nothing to render")

// RenderProject renders the project offline and returns stereo frames plus
// the sample rate. It builds a fresh engine sharing nothing with any live
// one, schedules the project through the exact playout path live uses, and
// pulls the output in buffer-sized chunks until the furthest clip end plus
// the configured tail. Progress is reported at each simulated second and
// once more at 1.0.
func RenderProject(ctx context.Context, cfg *model.Config, p *model.Project, takes TakeSource, progress model.Progress) ([][2]float64, int, error) {
	eng := New(cfg)
	defer eng.Close()
	eng.SetTakeSource(takes)

	if err := eng.ScheduleProject(ctx, p); err != nil {
		return nil, 0, err
	}
	if eng.ScheduledClips() == 0 || p.FurthestEndBar() <= 0 {
		return nil, 0, ErrNothingToRender
	}

	m := eng.Musical()
	endSec := m.BarsToSeconds(p.FurthestEndBar()) + cfg.TailSeconds

	sr := cfg.SampleRate
	totalFrames := int(endSec * float64(sr))

	eng.Play()

	out := make([][2]float64, totalFrames)
	chunkFrames := cfg.BufferFrames
	if chunkFrames <= 0 {
		chunkFrames = 512
	}

	frames := 0
	nextReport := sr
	for frames < totalFrames {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		chunk := chunkFrames
		if remain := totalFrames - frames; chunk > remain {
			chunk = remain
		}

		eng.Output().Stream(out[frames : frames+chunk])
		frames += chunk

		if frames >= nextReport {
			progress.Report(float64(frames) / float64(totalFrames))
			nextReport += sr
		}
	}

	progress.Report(1)
	return out, sr, nil
}

// RenderToWAV renders the project and writes a 16-bit stereo WAV to w.
func RenderToWAV(ctx context.Context, cfg *model.Config, p *model.Project, takes TakeSource, w io.Writer, progress model.Progress) error {
	frames, sr, err := RenderProject(ctx, cfg, p, takes, scaleProgress(progress, 0, 0.98))
	if err != nil {
		return err
	}

	if _, err := w.Write(codec.EncodeWAV(codec.StereoToPCM(frames), sr, 2)); err != nil {
		return err
	}

	progress.Report(1)
	return nil
}

// RenderToMP3 renders the project and streams it through the MP3 encoder
// into w. Rendering owns the first 90% of the progress range, encoding the
// rest.
func RenderToMP3(ctx context.Context, cfg *model.Config, p *model.Project, takes TakeSource, w io.Writer, opts codec.MP3Options, progress model.Progress) error {
	frames, sr, err := RenderProject(ctx, cfg, p, takes, scaleProgress(progress, 0, 0.9))
	if err != nil {
		return err
	}

	opts.Progress = scaleProgress(progress, 0.9, 1)
	if opts.FfmpegPath == "" {
		opts.FfmpegPath = cfg.FfmpegBinary
	}

	if err := codec.EncodeMP3(ctx, codec.StereoToPCM(frames), sr, 2, w, opts); err != nil {
		return err
	}

	progress.Report(1)
	return nil
}

// scaleProgress maps a callback onto a sub-range so multi-stage operations
// report one continuous 0..1 sweep.
func scaleProgress(p model.Progress, lo, hi float64) model.Progress {
	if p == nil {
		return nil
	}
	return func(fraction float64) {
		p(lo + fraction*(hi-lo))
	}
}
