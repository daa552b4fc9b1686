// Package desktop is the boundary between the UI and the generation core. It
// owns the single logical session: the current app, its path and history,
// the screen being shown, and the one generation allowed to write into it.
package desktop

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/synthdesk/internal/apperr"
	"github.com/ent0n29/synthdesk/internal/contentcache"
	"github.com/ent0n29/synthdesk/internal/generation"
	"github.com/ent0n29/synthdesk/internal/interaction"
	"github.com/ent0n29/synthdesk/internal/journal"
	"github.com/ent0n29/synthdesk/internal/observability"
)

const journalWriteTimeout = 2 * time.Second

// AudioController is the part of the audio session the desktop can drive.
type AudioController interface {
	Stop() error
}

// State is what the UI renders.
type State struct {
	Content   string `json:"content"`
	IsLoading bool   `json:"is_loading"`
	Error     string `json:"error,omitempty"`
	// Retryable marks an Error that may clear on the next visit to this screen.
	Retryable bool   `json:"retryable,omitempty"`
	AppID     string `json:"app_id,omitempty"`
	PathKey   string `json:"path_key,omitempty"`
}

type Deps struct {
	Orchestrator *generation.Orchestrator
	Cache        *contentcache.Cache
	Journal      journal.Store
	Audio        AudioController
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	MaxHistory   int
	// ConfigErr, when set, is shown on every screen and no generation is attempted.
	ConfigErr error
}

// Coordinator serializes desktop events. Every generation carries a sequence
// token; fragments from a stream whose token is no longer current are dropped.
type Coordinator struct {
	orch       *generation.Orchestrator
	cache      *contentcache.Cache
	journal    journal.Store
	audio      AudioController
	logger     *zap.Logger
	metrics    *observability.Metrics
	maxHistory int

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu        sync.Mutex
	tracker   *interaction.PathTracker
	configErr error
	state     State
	seq       uint64
	cancel    context.CancelFunc
	subs      map[int]chan State
	nextSub   int
}

func NewCoordinator(deps Deps) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxHistory := deps.MaxHistory
	if maxHistory < 1 {
		maxHistory = interaction.DefaultMaxHistory
	}
	cache := deps.Cache
	if cache == nil {
		cache = contentcache.New("")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		orch:       deps.Orchestrator,
		cache:      cache,
		journal:    deps.Journal,
		audio:      deps.Audio,
		logger:     logger.Named("desktop"),
		metrics:    deps.Metrics,
		maxHistory: maxHistory,
		baseCtx:    ctx,
		baseCancel: cancel,
		tracker:    interaction.NewPathTracker(maxHistory),
		configErr:  deps.ConfigErr,
		subs:       make(map[int]chan State),
	}
}

// SetAudio attaches the audio session stopped by OnClose.
func (c *Coordinator) SetAudio(audio AudioController) {
	c.mu.Lock()
	c.audio = audio
	c.mu.Unlock()
}

// OnAppOpen starts a fresh path at appID.
func (c *Coordinator) OnAppOpen(appID string) error {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return apperr.Errorf(apperr.KindEmptyHistory, "desktop.open", "app id is required")
	}
	c.metrics.IncInteraction(string(interaction.KindAppOpen))

	c.mu.Lock()
	c.supersedeLocked()
	c.tracker.OpenApp(appID)
	hit := c.navigateLocked(appID, nil)
	c.mu.Unlock()

	c.appendJournal(hit)
	return nil
}

// OnInteraction records rec inside the open app and shows the resulting screen.
func (c *Coordinator) OnInteraction(rec interaction.Record) error {
	rec = rec.Normalize()
	c.metrics.IncInteraction(string(rec.Kind))

	c.mu.Lock()
	// Every path starts with an app_open; a record's own app context never
	// substitutes for it, or two apps could share a path key.
	appID := c.state.AppID
	if appID == "" {
		c.mu.Unlock()
		return apperr.Errorf(apperr.KindEmptyHistory, "desktop.interaction", "no app is open")
	}
	if rec.AppContext == "" {
		rec = interaction.NewRecord(rec.ID, rec.Kind, rec.ElementLabel, rec.Payload, appID)
	}

	previous := c.state.Content
	c.supersedeLocked()
	c.tracker.Record(rec)
	hit := c.navigateLocked(appID, &previous)
	c.mu.Unlock()

	c.appendJournal(hit)
	return nil
}

// OnClose returns to the home screen and stops any audio session.
func (c *Coordinator) OnClose() {
	c.metrics.IncInteraction("close")

	c.mu.Lock()
	c.supersedeLocked()
	c.tracker.Reset()
	c.state = State{}
	c.publishLocked()
	audio := c.audio
	c.mu.Unlock()

	if audio != nil {
		if err := audio.Stop(); err != nil {
			c.logger.Warn("audio stop on close failed", zap.Error(err))
		}
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns the interaction window, most recent first.
func (c *Coordinator) History() []interaction.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.History()
}

// Subscribe delivers the latest state on every change. Slow subscribers only
// see the most recent state. Call the returned func to unsubscribe.
func (c *Coordinator) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.state
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Wait blocks until every started generation has finished.
func (c *Coordinator) Wait() { c.wg.Wait() }

// Close cancels the active generation and waits for it to drain.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.supersedeLocked()
	c.mu.Unlock()
	c.baseCancel()
	c.Wait()
}

func (c *Coordinator) supersedeLocked() {
	c.seq++
	c.releaseLocked()
}

func (c *Coordinator) releaseLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// navigateLocked serves the current path from cache or starts a generation.
// previous is nil on app open. A cache hit returns its journal entry so the
// caller can write it after releasing the lock.
func (c *Coordinator) navigateLocked(appID string, previous *string) *journal.Entry {
	started := time.Now()
	key := c.tracker.Key()

	if content, ok := c.cache.Get(key, appID); ok {
		c.metrics.IncCacheLookup("hit")
		c.state = State{Content: content, AppID: appID, PathKey: key}
		c.publishLocked()
		c.metrics.ObserveStage(observability.StageCacheServe, time.Since(started))
		c.logger.Debug("screen served from cache", zap.String("path", interaction.DisplayKey(key)))
		return &journal.Entry{PathKey: key, AppID: appID, Outcome: journal.OutcomeCacheHit, Bytes: len(content)}
	}
	c.metrics.IncCacheLookup("miss")

	if c.configErr != nil {
		c.showConfigErrorLocked(appID, key)
		return nil
	}

	ctx, cancel := context.WithCancel(c.baseCtx)
	stream, err := c.orch.Start(ctx, generation.Input{
		History:         c.tracker.History(),
		MaxLen:          c.maxHistory,
		PreviousContent: previous,
		AppID:           appID,
	})
	if err != nil {
		cancel()
		if apperr.Is(err, apperr.KindConfiguration) {
			c.configErr = err
			c.showConfigErrorLocked(appID, key)
			return nil
		}
		c.state = State{Content: generation.ErrorBlock(err), Error: err.Error(), AppID: appID, PathKey: key}
		c.publishLocked()
		return nil
	}

	c.cancel = cancel
	token := c.seq
	c.state = State{IsLoading: true, AppID: appID, PathKey: key}
	c.publishLocked()

	c.wg.Add(1)
	go c.consume(ctx, token, key, appID, started, stream)
	return nil
}

func (c *Coordinator) showConfigErrorLocked(appID, key string) {
	c.state = State{
		Content: generation.ErrorBlock(c.configErr),
		Error:   c.configErr.Error(),
		AppID:   appID,
		PathKey: key,
	}
	c.publishLocked()
}

// consume drains one generation. Only the token-checked accumulate and the
// final state transition touch shared state.
func (c *Coordinator) consume(ctx context.Context, token uint64, key, appID string, started time.Time, stream <-chan generation.Fragment) {
	defer c.wg.Done()

	var (
		acc       generation.Accumulator
		fragments int
		citations int
	)
	for f := range stream {
		switch f.Kind {
		case generation.FragmentText:
			fragments++
		case generation.FragmentCitations:
			citations = strings.Count(f.Text, "<li>")
		}
		c.mu.Lock()
		if token == c.seq {
			acc.Add(f)
			c.state.Content = acc.Content()
			c.publishLocked()
		}
		c.mu.Unlock()
	}

	entry := journal.Entry{
		PathKey:    key,
		AppID:      appID,
		Fragments:  fragments,
		Citations:  citations,
		DurationMS: time.Since(started).Milliseconds(),
	}

	c.mu.Lock()
	switch {
	case token != c.seq, ctx.Err() != nil:
		// A cancelled stream ends without a terminal marker; its content is partial.
		entry.Outcome = journal.OutcomeSuperseded
	case acc.Err() != nil:
		entry.Outcome = journal.OutcomeError
		entry.Error = acc.Err().Error()
		c.state.IsLoading = false
		c.state.Error = acc.Err().Error()
		c.state.Retryable = generation.IsRetryable(acc.Err())
		c.releaseLocked()
		c.publishLocked()
	default:
		entry.Outcome = journal.OutcomeSuccess
		content := acc.Content()
		entry.Bytes = len(content)
		c.state.IsLoading = false
		c.releaseLocked()
		if c.cache.Put(key, appID, content) {
			c.metrics.IncCacheWrite()
		}
		c.publishLocked()
	}
	c.mu.Unlock()

	c.logger.Debug("generation finished",
		zap.String("path", interaction.DisplayKey(key)),
		zap.String("outcome", entry.Outcome),
		zap.Int("fragments", fragments),
		zap.Int64("duration_ms", entry.DurationMS))
	c.appendJournal(&entry)
}

func (c *Coordinator) appendJournal(entry *journal.Entry) {
	if c.journal == nil || entry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()
	if err := c.journal.Append(ctx, *entry); err != nil {
		c.logger.Warn("journal append failed", zap.String("outcome", entry.Outcome), zap.Error(err))
	}
}

func (c *Coordinator) publishLocked() {
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- c.state:
		default:
		}
	}
}
