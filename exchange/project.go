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

// Package exchange moves projects across the system boundary: the versioned
// JSON project document (also the store's persisted form) and standard MIDI
// files for note interchange with other tools.
package exchange

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"fourtrack/model"
)

// The document schema version. A file with a newer major version than this
// is rejected outright; newer minor versions import with a warning.
const (
	SchemaMajor = 1
	SchemaMinor = 2
)

var (
	ErrUnsupportedVersion = errors.New("exchange: project document version not supported")
	ErrNotProjectDocument = errors.New("exchange: not a project document")
)

// projectDocument is the on-disk envelope. Take payloads ride along as
// base64 WAV so a single file carries everything needed to rebuild the
// project elsewhere.
type projectDocument struct {
	Version string         `json:"version"`
	Project *model.Project `json:"project"`
	Takes   []takeDocument `json:"takes,omitempty"`
}

type takeDocument struct {
	model.AudioTake
	PCMBase64 string `json:"pcm,omitempty"`
}

// SchemaVersion is the version string written into every exported document.
func SchemaVersion() string {
	return fmt.Sprintf("%d.%d", SchemaMajor, SchemaMinor)
}

// MarshalProject serializes a project and its takes into the versioned
// document. takes may be nil when payloads are stored elsewhere.
func MarshalProject(p *model.Project, takes []model.AudioTake) ([]byte, error) {
	if p == nil {
		return nil, errors.New("exchange: nil project")
	}

	doc := projectDocument{
		Version: SchemaVersion(),
		Project: p,
		Takes:   make([]takeDocument, 0, len(takes)),
	}

	for _, take := range takes {
		doc.Takes = append(doc.Takes, takeDocument{
			AudioTake: take,
			PCMBase64: base64.StdEncoding.EncodeToString(take.PCM),
		})
	}
	if len(doc.Takes) == 0 {
		doc.Takes = nil
	}

	return json.MarshalIndent(&doc, "", "  ")
}

// UnmarshalProject parses a versioned document, enforcing the version
// policy. Entity ids are kept as-is; use ImportProject when the result must
// coexist with existing data.
func UnmarshalProject(data []byte) (*model.Project, []model.AudioTake, error) {
	var doc projectDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNotProjectDocument, err)
	}
	if doc.Project == nil {
		return nil, nil, fmt.Errorf("%w: no project entry", ErrNotProjectDocument)
	}

	major, minor, err := parseVersion(doc.Version)
	if err != nil {
		return nil, nil, err
	}

	if major > SchemaMajor {
		return nil, nil, fmt.Errorf("%w: document is v%s, this build reads up to v%d.x",
			ErrUnsupportedVersion, doc.Version, SchemaMajor)
	}
	if major == SchemaMajor && minor > SchemaMinor {
		slog.Warn(fmt.Sprintf("project document is v%s, newer than the supported v%s; some fields may be ignored",
			doc.Version, SchemaVersion()))
	}

	takes := make([]model.AudioTake, 0, len(doc.Takes))
	for _, td := range doc.Takes {
		take := td.AudioTake
		if td.PCMBase64 != "" {
			pcm, err := base64.StdEncoding.DecodeString(td.PCMBase64)
			if err != nil {
				return nil, nil, fmt.Errorf("decoding take %s payload: %w", take.ID, err)
			}
			take.PCM = pcm
		}
		takes = append(takes, take)
	}

	return doc.Project, takes, nil
}

// ImportProject parses a document and regenerates every entity id so the
// result can live alongside whatever is already in the store. References
// between entities (clip→track, clip→active take, take→clip) are remapped
// consistently.
func ImportProject(data []byte, progress model.Progress) (*model.Project, []model.AudioTake, error) {
	p, takes, err := UnmarshalProject(data)
	if err != nil {
		return nil, nil, err
	}

	progress.Report(0.5)

	trackIDs := make(map[string]string, len(p.Tracks))
	clipIDs := make(map[string]string, len(p.Clips))
	takeIDs := make(map[string]string, len(takes))

	p.ID = model.NewID()

	for i := range p.Tracks {
		fresh := model.NewID()
		trackIDs[p.Tracks[i].ID] = fresh
		p.Tracks[i].ID = fresh
	}

	for i := range takes {
		fresh := model.NewID()
		takeIDs[takes[i].ID] = fresh
		takes[i].ID = fresh
	}

	for i := range p.Clips {
		c := &p.Clips[i]

		fresh := model.NewID()
		clipIDs[c.ID] = fresh
		c.ID = fresh

		if mapped, ok := trackIDs[c.TrackID]; ok {
			c.TrackID = mapped
		}
		if c.ActiveTakeID != "" {
			if mapped, ok := takeIDs[c.ActiveTakeID]; ok {
				c.ActiveTakeID = mapped
			} else {
				// Reference to a take the document does not carry.
				c.ActiveTakeID = ""
			}
		}
	}

	for i := range takes {
		if mapped, ok := clipIDs[takes[i].ClipID]; ok {
			takes[i].ClipID = mapped
		}
	}

	progress.Report(1)

	slog.Info(fmt.Sprintf("imported project %q: %d tracks, %d clips, %d takes",
		p.Name, len(p.Tracks), len(p.Clips), len(takes)))

	return p, takes, nil
}

func parseVersion(v string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(v), ".", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: malformed version %q", ErrNotProjectDocument, v)
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: malformed version %q", ErrNotProjectDocument, v)
	}

	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: malformed version %q", ErrNotProjectDocument, v)
	}

	return major, minor, nil
}
