// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package floodgate implements a rolling-window admission counter used to
// rate limit chat command processing
package floodgate

import (
	"sync"
	"time"
)

const (
	DefaultWindow = 60 * time.Second
	DefaultLimit  = 5
)

// Gate counts admissions within a rolling window. The first admission starts
// the window timer; when the timer fires the count resets and the next
// admission starts a fresh window. The window duration and admission ceiling
// are passed on each call so that configuration changes apply immediately
type Gate struct {
	mutex  sync.Mutex
	count  int
	active bool
	timer  *time.Timer
}

func New() *Gate {
	return &Gate{}
}

// Admit records an attempt and reports whether it falls within the ceiling
// for the current window. A non-positive limit or window disables limiting
func (g *Gate) Admit(limit int, window time.Duration) bool {
	if limit <= 0 || window <= 0 {
		return true
	}
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if !g.active {
		g.active = true
		g.count = 1
		g.timer = time.AfterFunc(window, g.expire)
		return true
	}
	g.count++
	return g.count <= limit
}

// Refund undoes a single admission. It exists for the recursive nickname
// resolution path, which is a continuation of an already-admitted command
// rather than a new one
func (g *Gate) Refund() {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if g.count > 0 {
		g.count--
	}
}

// Count returns the number of admissions recorded in the current window
func (g *Gate) Count() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.count
}

// Stop cancels the window timer and resets the gate
func (g *Gate) Stop() {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.count = 0
	g.active = false
}

func (g *Gate) expire() {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.count = 0
	g.active = false
	g.timer = nil
}
