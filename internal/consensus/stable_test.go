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

import "testing"

func TestMemoryStableRoundTrip(t *testing.T) {
	s := NewMemoryStable()

	if _, _, _, ok, err := s.Load(); err != nil || ok {
		t.Fatalf("Load() on a fresh store = ok=%v err=%v, want ok=false err=nil", ok, err)
	}

	if err := s.SaveState(5, "n2"); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	entries := []Entry{{Term: 1, Index: 1, Command: []byte("x")}}
	if err := s.SaveLog(entries); err != nil {
		t.Fatalf("SaveLog: %v", err)
	}

	term, votedFor, gotEntries, ok, err := s.Load()
	if err != nil || !ok {
		t.Fatalf("Load() = ok=%v err=%v, want ok=true err=nil", ok, err)
	}
	if term != 5 || votedFor != "n2" {
		t.Fatalf("Load() = term=%d votedFor=%s, want term=5 votedFor=n2", term, votedFor)
	}
	if len(gotEntries) != 1 || string(gotEntries[0].Command) != "x" {
		t.Fatalf("Load() entries = %+v, want one entry with command x", gotEntries)
	}
}

func TestFileStablePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	first, err := NewFileStable(dir)
	if err != nil {
		t.Fatalf("NewFileStable: %v", err)
	}
	if err := first.SaveState(3, "n1"); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	entries := []Entry{{Term: 2, Index: 1, Command: []byte("cmd")}}
	if err := first.SaveLog(entries); err != nil {
		t.Fatalf("SaveLog: %v", err)
	}

	second, err := NewFileStable(dir)
	if err != nil {
		t.Fatalf("NewFileStable (reopen): %v", err)
	}
	term, votedFor, gotEntries, ok, err := second.Load()
	if err != nil || !ok {
		t.Fatalf("Load() = ok=%v err=%v, want ok=true err=nil", ok, err)
	}
	if term != 3 || votedFor != "n1" {
		t.Fatalf("Load() = term=%d votedFor=%s, want term=3 votedFor=n1", term, votedFor)
	}
	if len(gotEntries) != 1 || string(gotEntries[0].Command) != "cmd" {
		t.Fatalf("Load() entries = %+v, want one entry with command cmd", gotEntries)
	}
}

func TestFileStableLoadOnFreshDir(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStable(dir)
	if err != nil {
		t.Fatalf("NewFileStable: %v", err)
	}
	if _, _, _, ok, err := s.Load(); err != nil || ok {
		t.Fatalf("Load() on fresh dir = ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}
