// Package cmn provides common constants, types, and utilities shared by the
// master's components.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"sync/atomic"
	"time"
)

// read-mostly, most frequently consulted timeouts and limits: assigned once
// at startup (and optionally refreshed from a live Config) to avoid plumbing
// a *Config through every call path - LeaderElector's tick, the client-side
// retry helper, and PlacementReconciler's RPC dispatch all read through Rom
// rather than taking their own constants. Set swaps in a whole new Config via
// an atomic.Pointer rather than mutating fields in place, so a Loop.Run
// goroutine reading e.g. RPCTimeout concurrently with a test's Set (common in
// BeforeEach/AfterEach) never observes a torn read.
type readMostly struct {
	p atomic.Pointer[Config]
}

// Config carries the subset of values an operator may override; zero fields
// leave the corresponding default untouched.
type Config struct {
	ElectTick     time.Duration
	ClientTimeout time.Duration
	RetryBackoff  time.Duration
	RetryMax      int
	RPCTimeout    time.Duration
}

func defaultConfig() *Config {
	return &Config{
		ElectTick:     5 * time.Second, // LeaderElector periodic tick
		ClientTimeout: 5 * time.Second, // client call timeout
		RetryBackoff:  time.Second,     // leader_not_found retry backoff
		RetryMax:      10,              // leader_not_found retry attempts
		RPCTimeout:    5 * time.Second, // placement RPC timeout to ServiceRuntime
	}
}

var Rom = newReadMostly()

func newReadMostly() *readMostly {
	rom := &readMostly{}
	rom.p.Store(defaultConfig())
	return rom
}

// Set replaces the live Config with a new one built by overriding cfg's
// non-zero fields onto the current values, then swapping it in with a single
// atomic store - readers never see a value with some fields updated and
// others still stale.
func (rom *readMostly) Set(cfg *Config) {
	if cfg == nil {
		return
	}
	next := *rom.p.Load()
	if cfg.ElectTick > 0 {
		next.ElectTick = cfg.ElectTick
	}
	if cfg.ClientTimeout > 0 {
		next.ClientTimeout = cfg.ClientTimeout
	}
	if cfg.RetryBackoff > 0 {
		next.RetryBackoff = cfg.RetryBackoff
	}
	if cfg.RetryMax > 0 {
		next.RetryMax = cfg.RetryMax
	}
	if cfg.RPCTimeout > 0 {
		next.RPCTimeout = cfg.RPCTimeout
	}
	rom.p.Store(&next)
}

func (rom *readMostly) ElectTick() time.Duration     { return rom.p.Load().ElectTick }
func (rom *readMostly) ClientTimeout() time.Duration { return rom.p.Load().ClientTimeout }
func (rom *readMostly) RetryBackoff() time.Duration  { return rom.p.Load().RetryBackoff }
func (rom *readMostly) RetryMax() int                { return rom.p.Load().RetryMax }
func (rom *readMostly) RPCTimeout() time.Duration    { return rom.p.Load().RPCTimeout }
