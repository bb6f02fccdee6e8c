// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

package sensor

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kocomstat/kocomstat/pkg/kocom"
)

// Poller defaults
const (
	DefaultInterval   = time.Hour
	DefaultMinBackoff = time.Minute
)

// Fetcher runs one poll. *kocom.Client implements it.
type Fetcher interface {
	FetchUsage(ctx context.Context) (*kocom.Snapshot, error)
}

// Store persists the latest successful snapshot.
type Store interface {
	Save(snap *kocom.Snapshot) error
	Load() (*kocom.Snapshot, error)
}

// Config configures a Poller.
type Config struct {
	Interval   time.Duration
	MinBackoff time.Duration
	Store      Store
	Logger     logrus.FieldLogger
}

// Update is sent to subscribers after every poll.
type Update struct {
	Snapshot  *kocom.Snapshot // last successful snapshot, possibly from an earlier poll
	Fresh     bool            // Snapshot was produced by this poll
	Err       error
	Anomalies []kocom.Anomaly
	At        time.Time
	Took      time.Duration
}

// Poller polls the wallpad on an interval and keeps the last successful
// snapshot visible across failures.
type Poller struct {
	fetcher Fetcher
	cfg     Config
	log     logrus.FieldLogger
	history *History

	mu       sync.RWMutex
	latest   *kocom.Snapshot
	lastErr  error
	lastPoll time.Time
	stats    *kocom.Statistics
	subs     map[int]chan Update
	nextSub  int

	pollMu sync.Mutex
}

// NewPoller creates a poller around f.
func NewPoller(f Fetcher, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = DefaultMinBackoff
	}
	if cfg.MinBackoff > cfg.Interval {
		cfg.MinBackoff = cfg.Interval
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger().WithField("component", "poller")
	}
	return &Poller{
		fetcher: f,
		cfg:     cfg,
		log:     log,
		history: NewHistory(),
		stats:   kocom.NewStatistics(),
		subs:    make(map[int]chan Update),
	}
}

// Restore loads the persisted snapshot, if any, so it is visible before the
// first poll. A missing snapshot is not an error.
func (p *Poller) Restore() error {
	if p.cfg.Store == nil {
		return nil
	}
	snap, err := p.cfg.Store.Load()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "restore snapshot")
	}
	if snap == nil {
		return nil
	}
	p.history.Restore(snap)
	p.mu.Lock()
	p.latest = snap
	p.mu.Unlock()
	p.log.WithField("fetched_at", snap.FetchedAt).Info("Restored last snapshot")
	return nil
}

// Refresh polls once. On failure the previous snapshot stays current and the
// error is returned.
func (p *Poller) Refresh(ctx context.Context) (*kocom.Snapshot, error) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	start := time.Now()
	snap, err := p.fetcher.FetchUsage(ctx)
	took := time.Since(start)

	var anomalies []kocom.Anomaly
	if err == nil {
		anomalies = p.history.Apply(snap)
		for _, a := range anomalies {
			p.log.WithFields(logrus.Fields{
				"type":     a.Type,
				"category": a.Category,
			}).Warn(a.Message)
		}
		if snap.Degraded() {
			p.log.WithField("display", snap.DisplayType).Warn("Poll returned no usage data")
		}
		if p.cfg.Store != nil {
			if serr := p.cfg.Store.Save(snap); serr != nil {
				p.log.WithError(serr).Warn("Failed to persist snapshot")
			}
		}
	} else {
		p.log.WithError(err).Error("Poll failed")
	}

	p.mu.Lock()
	p.stats.Update(snap, err, anomalies, took)
	p.lastPoll = start
	p.lastErr = err
	if err == nil {
		p.latest = snap
	}
	update := Update{
		Snapshot:  p.latest,
		Fresh:     err == nil,
		Err:       err,
		Anomalies: anomalies,
		At:        start,
		Took:      took,
	}
	// Sends happen under the lock so that unsubscribe cannot close a channel
	// mid-send.
	for _, ch := range p.subs {
		select {
		case ch <- update:
		default:
			p.log.Debug("Subscriber is behind, dropping update")
		}
	}
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Run polls immediately and then every interval until ctx is done. After a
// failed poll it retries with exponential backoff starting at MinBackoff and
// capped at the interval.
func (p *Poller) Run(ctx context.Context) error {
	backoff := p.cfg.MinBackoff
	for {
		delay := p.cfg.Interval
		if _, err := p.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay = backoff
			backoff *= 2
			if backoff > p.cfg.Interval {
				backoff = p.cfg.Interval
			}
			p.log.WithField("retry_in", delay).Info("Retrying after failure")
		} else {
			backoff = p.cfg.MinBackoff
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Latest returns the last successful snapshot, or nil before the first one.
func (p *Poller) Latest() *kocom.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// LastError returns the error of the most recent poll, or nil if it succeeded.
func (p *Poller) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// LastPoll returns the start time of the most recent poll.
func (p *Poller) LastPoll() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastPoll
}

// Stats returns a copy of the poll statistics.
func (p *Poller) Stats() kocom.Statistics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := *p.stats
	s.TimeoutsByStep = make(map[kocom.Step]uint64, len(p.stats.TimeoutsByStep))
	for k, v := range p.stats.TimeoutsByStep {
		s.TimeoutsByStep[k] = v
	}
	s.CalculateRates()
	return s
}

// History returns the sensor history.
func (p *Poller) History() *History {
	return p.history
}

// Interval returns the poll interval.
func (p *Poller) Interval() time.Duration {
	return p.cfg.Interval
}

// Subscribe registers for poll updates. Updates are dropped when the channel
// is full. The returned function unsubscribes and closes the channel.
func (p *Poller) Subscribe(buffer int) (<-chan Update, func()) {
	ch := make(chan Update, buffer)
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}
