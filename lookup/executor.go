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

package lookup

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blinklabs-io/ferret/reply"
)

// Executor owns the lookup worker goroutines. Lookups are fire and forget:
// Execute returns a ticket immediately and the configured callback fires
// once the fetch settles
type Executor struct {
	config       Config
	logger       *slog.Logger
	httpClient   *http.Client
	ctx          context.Context
	cancel       context.CancelFunc
	workersMutex sync.Mutex
	workersWg    sync.WaitGroup
	stopped      bool
}

// NewExecutor returns a new Executor using the provided config
func NewExecutor(cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		config: cfg,
		logger: cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
	}
}

// Execute starts a single lookup and returns its ticket without waiting for
// the fetch. The result callback fires exactly once per ticket. After Stop
// the lookup is dropped silently and no callback fires
func (e *Executor) Execute(address string) Ticket {
	ticket := Ticket{
		Id:      uuid.New(),
		Address: address,
		Issued:  time.Now(),
	}
	e.workersMutex.Lock()
	if e.stopped {
		e.workersMutex.Unlock()
		e.logger.Debug(
			"lookup dropped during shutdown",
			"component", "lookup",
			"address", address,
		)
		return ticket
	}
	e.workersWg.Add(1)
	e.workersMutex.Unlock()
	go e.worker(ticket)
	return ticket
}

// Stop cancels in-flight fetches and waits for their workers to settle.
// Each interrupted lookup still delivers a failure result so that callers
// tracking outstanding tickets see them finish
func (e *Executor) Stop() {
	e.workersMutex.Lock()
	if e.stopped {
		e.workersMutex.Unlock()
		return
	}
	e.stopped = true
	e.workersMutex.Unlock()
	e.cancel()
	e.workersWg.Wait()
	e.httpClient.CloseIdleConnections()
}

func (e *Executor) worker(ticket Ticket) {
	defer e.workersWg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(
				fmt.Sprintf("lookup worker panic: %v", r),
				"component", "lookup",
				"address", ticket.Address,
			)
			e.deliver(
				Result{
					Ticket: ticket,
					Text:   e.noReply(),
					Flags:  reply.BitReply | reply.BitError,
				},
			)
		}
	}()
	raw := e.fetch(ticket)
	cleaned, flags := Sanitize(raw)
	if cleaned == "" {
		e.deliver(
			Result{
				Ticket: ticket,
				Text:   e.noReply(),
				Flags:  reply.BitReply | reply.BitError,
			},
		)
		return
	}
	result := Result{
		Ticket: ticket,
		Text:   cleaned,
		Flags:  reply.BitReply | flags,
	}
	if e.config.DnsblZone != "" {
		result.Dnsbl = e.dnsblVerdict(ticket.Address)
	}
	e.deliver(result)
}

func (e *Executor) fetch(ticket Ticket) string {
	url := e.config.BaseUrl + ticket.Address
	req, err := http.NewRequestWithContext(
		e.ctx,
		http.MethodGet,
		url,
		nil,
	)
	if err != nil {
		e.logger.Debug(
			"building lookup request failed",
			"component", "lookup",
			"url", url,
			"error", err,
		)
		return ""
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.logger.Debug(
			"lookup fetch failed",
			"component", "lookup",
			"url", url,
			"error", err,
		)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.logger.Debug(
			"lookup fetch returned non-success status",
			"component", "lookup",
			"url", url,
			"status", resp.StatusCode,
		)
		return ""
	}
	return drainBody(resp.Body)
}

func (e *Executor) deliver(result Result) {
	e.logger.Debug(
		"lookup finished",
		"component", "lookup",
		"address", result.Ticket.Address,
		"flags", result.Flags.String(),
	)
	if e.config.ResultFunc == nil {
		return
	}
	if err := e.config.ResultFunc(result); err != nil {
		e.logger.Warn(
			fmt.Sprintf("lookup result callback failed: %s", err),
			"component", "lookup",
			"address", result.Ticket.Address,
		)
	}
}

func (e *Executor) noReply() string {
	if e.config.ExtendedInfo {
		return noReplyText + " from " + e.config.BaseUrl
	}
	return noReplyText
}

// drainBody reduces a response body to at most maxReplyLines lines joined by
// single spaces and trimmed. Reading is capped so a misbehaving service
// cannot balloon memory
func drainBody(r io.Reader) string {
	scanner := bufio.NewScanner(io.LimitReader(r, maxFetchBytes))
	lines := make([]string, 0, maxReplyLines)
	for len(lines) < maxReplyLines && scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return strings.TrimSpace(strings.Join(lines, " "))
}
