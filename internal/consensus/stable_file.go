/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package consensus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	raerrors "github.com/firefly-oss/raft/internal/errors"
)

// FileStable is a StableStore backed by a single append-overwritten
// JSON record in a peer's data directory. SPEC_FULL.md §5 picks this
// as a concrete, simple format since spec.md leaves the persistence
// format an open question; it is not a requirement, just this
// module's choice. Every Save call writes to a temp file, fsyncs it,
// then renames it over the real path, so a crash mid-write never
// leaves a torn record behind.
type FileStable struct {
	path string
}

type stableRecord struct {
	Term     Term    `json:"term"`
	VotedFor NodeID  `json:"voted_for"`
	Entries  []Entry `json:"entries"`
}

// NewFileStable returns a FileStable rooted at dataDir/state.json,
// creating dataDir if necessary.
func NewFileStable(dataDir string) (*FileStable, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, raerrors.NewStorageError("create data directory").WithCause(err)
	}
	return &FileStable{path: filepath.Join(dataDir, "state.json")}, nil
}

func (f *FileStable) SaveState(term Term, votedFor NodeID) error {
	rec, err := f.readOrEmpty()
	if err != nil {
		return err
	}
	rec.Term = term
	rec.VotedFor = votedFor
	return f.writeDurably(rec)
}

func (f *FileStable) SaveLog(entries []Entry) error {
	rec, err := f.readOrEmpty()
	if err != nil {
		return err
	}
	rec.Entries = entries
	return f.writeDurably(rec)
}

func (f *FileStable) Load() (Term, NodeID, []Entry, bool, error) {
	rec, err := f.readOrEmpty()
	if err != nil {
		return 0, "", nil, false, err
	}
	if _, statErr := os.Stat(f.path); os.IsNotExist(statErr) {
		return 0, "", nil, false, nil
	}
	return rec.Term, rec.VotedFor, rec.Entries, true, nil
}

func (f *FileStable) readOrEmpty() (stableRecord, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return stableRecord{}, nil
	}
	if err != nil {
		return stableRecord{}, raerrors.NewStorageError("read stable store").WithCause(err)
	}
	var rec stableRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return stableRecord{}, raerrors.CorruptRecord(0).WithCause(err)
	}
	return rec, nil
}

func (f *FileStable) writeDurably(rec stableRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return raerrors.NewStorageError("marshal stable record").WithCause(err)
	}

	tmp := f.path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return raerrors.DurabilityFailure(fmt.Sprintf("open %s", tmp), err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return raerrors.DurabilityFailure("write state", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return raerrors.DurabilityFailure("fsync state", err)
	}
	if err := file.Close(); err != nil {
		return raerrors.DurabilityFailure("close state", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return raerrors.DurabilityFailure("rename state into place", err)
	}
	return nil
}
