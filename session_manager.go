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

package ferret

import (
	"sync"

	"github.com/blinklabs-io/ferret/irc"
)

// SessionClosedFunc is a function that takes a network tag, a connection ID, and an optional error
type SessionClosedFunc func(string, irc.ConnectionId, error)

// SessionManager tracks one bot per IRC network and reports when a session
// ends, so the caller can decide whether to reconnect
type SessionManager struct {
	config        SessionManagerConfig
	sessions      map[string]*Bot
	sessionsMutex sync.Mutex
}

type SessionManagerConfig struct {
	ClosedFunc SessionClosedFunc
}

func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	return &SessionManager{
		config:   cfg,
		sessions: make(map[string]*Bot),
	}
}

// AddSession registers a bot under its network tag and watches its error
// channel. The configured closed callback fires with the first asynchronous
// error, or a nil error when the bot shut down cleanly
func (s *SessionManager) AddSession(bot *Bot) {
	tag := bot.NetworkTag()
	connId := bot.Id()
	s.sessionsMutex.Lock()
	s.sessions[tag] = bot
	s.sessionsMutex.Unlock()
	go func() {
		// The error channel closes once the bot has fully shut down
		err, ok := <-bot.ErrorChan()
		if !ok {
			err = nil
		}
		if s.config.ClosedFunc != nil {
			s.config.ClosedFunc(tag, connId, err)
		}
	}()
}

// RemoveSession drops the bot registered under the given network tag. It does
// not close the bot
func (s *SessionManager) RemoveSession(tag string) {
	s.sessionsMutex.Lock()
	delete(s.sessions, tag)
	s.sessionsMutex.Unlock()
}

// GetSessionByTag returns the bot registered under the given network tag
func (s *SessionManager) GetSessionByTag(tag string) *Bot {
	s.sessionsMutex.Lock()
	defer s.sessionsMutex.Unlock()
	return s.sessions[tag]
}

// Sessions returns the currently registered bots
func (s *SessionManager) Sessions() []*Bot {
	s.sessionsMutex.Lock()
	defer s.sessionsMutex.Unlock()
	ret := make([]*Bot, 0, len(s.sessions))
	for _, bot := range s.sessions {
		ret = append(ret, bot)
	}
	return ret
}
