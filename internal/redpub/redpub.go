// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

// Package redpub publishes per-controller statistics to redis, the
// same way the goes temperature daemon publishes hwmon samples.
package redpub

import (
	"fmt"
	"sync"
	"time"

	"github.com/platinasystems/redis"
	"github.com/platinasystems/redis/publisher"
)

// Stats is one controller's periodically published counters. This is
// the Go-native replacement for the original driver's trace-level
// show_statistics() dump. blockdev fills Timing, BusWidth, FrequencyHz
// and Sectors; Interrupts and BusyMicros are not filled and publish as
// zero. No replacement for the _prg_cnt/_prg_map counters is carried.
type Stats struct {
	Timing      string
	BusWidth    int
	FrequencyHz uint32
	Sectors     uint64
	Interrupts  uint64
	BusyMicros  uint64
}

// Publisher pushes Stats samples to redis under a key prefixed by the
// controller name, on a fixed period.
type Publisher struct {
	name string
	pub  *publisher.Publisher
	stop chan struct{}
	wg   sync.WaitGroup

	mu    sync.Mutex
	stats Stats
}

// New connects to the redis publisher socket. Returns an error if redis
// is not yet ready, matching tempd's startup check.
func New(name string) (*Publisher, error) {
	if err := redis.IsReady(); err != nil {
		return nil, err
	}
	pub, err := publisher.New()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		name: name,
		pub:  pub,
		stop: make(chan struct{}),
	}, nil
}

// Update replaces the current sample; the next tick publishes it.
func (p *Publisher) Update(s Stats) {
	p.mu.Lock()
	p.stats = s
	p.mu.Unlock()
}

// Run publishes the current sample every period until Close is called.
func (p *Publisher) Run(period time.Duration) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-t.C:
				p.publish()
			}
		}
	}()
}

func (p *Publisher) publish() {
	p.mu.Lock()
	s := p.stats
	p.mu.Unlock()

	p.pub.Printf("%s.timing: %s\n", p.name, s.Timing)
	p.pub.Printf("%s.bus_width: %d\n", p.name, s.BusWidth)
	p.pub.Printf("%s.frequency: %d\n", p.name, s.FrequencyHz)
	p.pub.Printf("%s.sectors: %d\n", p.name, s.Sectors)
	p.pub.Printf("%s.interrupts: %d\n", p.name, s.Interrupts)
	p.pub.Printf("%s.busy_us: %d\n", p.name, s.BusyMicros)
}

func (p *Publisher) Close() error {
	close(p.stop)
	p.wg.Wait()
	return p.pub.Close()
}

func (p *Publisher) String() string {
	return fmt.Sprintf("redpub(%s)", p.name)
}
