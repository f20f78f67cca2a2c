/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package history keeps bounded in-memory undo/redo stacks of document
// revisions, one pair of stacks per key (an editing session).
package history

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"shotlint/internal/domain"
)

// Snapshot is one document revision. Blob is the document JSON; its size is
// accounted as len(Blob). Label names the operation that followed it.
type Snapshot struct {
	Key   string
	Label string
	Blob  []byte
	TS    time.Time
}

// Capture encodes doc into a snapshot.
func Capture(key, label string, doc *domain.Document, ts time.Time) (Snapshot, error) {
	b, err := domain.Marshal(doc)
	if err != nil {
		return Snapshot{}, fmt.Errorf("capture revision: %w", err)
	}
	return Snapshot{Key: key, Label: label, Blob: b, TS: ts}, nil
}

// Document decodes the revision.
func (s Snapshot) Document() (*domain.Document, error) {
	var d domain.Document
	if err := json.Unmarshal(s.Blob, &d); err != nil {
		return nil, fmt.Errorf("decode revision: %w", err)
	}
	return &d, nil
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap; older entries are pruned when exceeded.
	MaxBytes int
	// MaxPerKey limits the undo depth per key (0 means unlimited).
	MaxPerKey int
	// MinInterval coalesces snapshots pushed within the interval for the same key,
	// keeping the older state instead of pushing a new entry.
	MinInterval time.Duration
}

// Manager provides undo/redo stacks per key. It is safe for concurrent use.
type Manager struct {
	cfg Config
	mu  sync.Mutex
	// per-key stacks
	undo map[string][]Snapshot
	redo map[string][]Snapshot
	// accounting over undo and redo entries
	totalBytes int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 64 * 1024 * 1024 // 64 MiB
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	return &Manager{cfg: cfg, undo: make(map[string][]Snapshot), redo: make(map[string][]Snapshot)}
}

// Push records the state before a change. Within MinInterval of the previous
// push for the same key the older state is kept, so a burst of edits undoes
// as one. Any push clears the redo stack for the key.
func (m *Manager) Push(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropRedoLocked(s.Key)
	stack := m.undo[s.Key]
	if n := len(stack); n > 0 && m.cfg.MinInterval > 0 && s.TS.Sub(stack[n-1].TS) < m.cfg.MinInterval {
		stack[n-1].TS = s.TS
		stack[n-1].Label = s.Label
		return
	}
	m.undo[s.Key] = append(stack, s)
	m.totalBytes += len(s.Blob)
	m.enforceCapsLocked(s.Key)
}

// Undo returns the previous state for key and saves current for Redo.
func (m *Manager) Undo(key string, current Snapshot) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[key]
	if len(stack) == 0 {
		return Snapshot{}, false
	}
	s := stack[len(stack)-1]
	m.undo[key] = stack[:len(stack)-1]
	m.totalBytes -= len(s.Blob)
	current.Key = key
	m.redo[key] = append(m.redo[key], current)
	m.totalBytes += len(current.Blob)
	m.enforceCapsLocked(key)
	return s, true
}

// Redo returns the state undone last for key and saves current for Undo.
func (m *Manager) Redo(key string, current Snapshot) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redo[key]
	if len(r) == 0 {
		return Snapshot{}, false
	}
	s := r[len(r)-1]
	m.redo[key] = r[:len(r)-1]
	m.totalBytes -= len(s.Blob)
	current.Key = key
	m.undo[key] = append(m.undo[key], current)
	m.totalBytes += len(current.Blob)
	m.enforceCapsLocked(key)
	return s, true
}

// Depth reports how many undo and redo steps are available for key.
func (m *Manager) Depth(key string) (undo, redo int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo[key]), len(m.redo[key])
}

// Clear drops both stacks for key to free memory.
func (m *Manager) Clear(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.undo[key] {
		m.totalBytes -= len(s.Blob)
	}
	m.dropRedoLocked(key)
	delete(m.undo, key)
	if m.totalBytes < 0 {
		m.totalBytes = 0
	}
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, keys int, totalSnapshots int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys = len(m.undo)
	for _, v := range m.undo {
		totalSnapshots += len(v)
	}
	for _, v := range m.redo {
		totalSnapshots += len(v)
	}
	return m.totalBytes, keys, totalSnapshots
}

func (m *Manager) dropRedoLocked(key string) {
	for _, s := range m.redo[key] {
		m.totalBytes -= len(s.Blob)
	}
	delete(m.redo, key)
}

func (m *Manager) enforceCapsLocked(key string) {
	// Per-key depth cap
	if m.cfg.MaxPerKey > 0 {
		stack := m.undo[key]
		if len(stack) > m.cfg.MaxPerKey {
			toDrop := len(stack) - m.cfg.MaxPerKey
			for i := 0; i < toDrop; i++ {
				m.totalBytes -= len(stack[i].Blob)
			}
			m.undo[key] = append([]Snapshot{}, stack[toDrop:]...)
		}
	}
	// Global memory cap: prune the oldest undo entry across all keys
	for m.cfg.MaxBytes > 0 && m.totalBytes > m.cfg.MaxBytes {
		oldestKey := ""
		found := false
		var oldestTS time.Time
		for k, stack := range m.undo {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldestKey, oldestTS, found = k, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := m.undo[oldestKey]
		m.totalBytes -= len(stack[0].Blob)
		m.undo[oldestKey] = stack[1:]
		if len(m.undo[oldestKey]) == 0 {
			delete(m.undo, oldestKey)
		}
	}
}
