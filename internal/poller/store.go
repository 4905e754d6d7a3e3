// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package poller

import (
	"sort"
	"sync"
	"time"
)

// Reading is the latest decoded response to one command.
type Reading struct {
	Command   string    `json:"command"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store keeps the latest reading per command. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	readings map[string]Reading
}

func NewStore() *Store {
	return &Store{readings: make(map[string]Reading)}
}

func (s *Store) Set(command string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[command] = Reading{Command: command, Value: value, UpdatedAt: time.Now()}
}

func (s *Store) Get(command string) (Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.readings[command]
	return r, ok
}

// Snapshot returns all readings ordered by command.
func (s *Store) Snapshot() []Reading {
	s.mu.RLock()
	out := make([]Reading, 0, len(s.readings))
	for _, r := range s.readings {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}
