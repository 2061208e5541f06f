// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats holds the per-pass counters of a reduction run.
//
// Counters are plain fields on a value the caller owns and passes to the
// passes, the editor and the engine; nothing is process-global.
package stats

import "time"

// Pass accumulates the counters of one pass over all rounds.
type Pass struct {
	Name string

	// Candidates is the number of elements collected.
	Candidates int

	// OracleCalls counts oracle invocations, whatever their outcome.
	OracleCalls int

	// Accepted and Rejected count try-remove outcomes.
	Accepted int
	Rejected int

	// InvocationErrors counts oracle calls that could not produce an answer;
	// Timeouts is the subset that timed out.
	InvocationErrors int
	Timeouts         int

	// Filtered counts chunks skipped by the dependency filter.
	Filtered int

	// BytesRemoved is the number of bytes deleted by accepted removals.
	BytesRemoved int

	// Duration is the wall time spent in the pass.
	Duration time.Duration
}

// Add accumulates o into p.
func (p *Pass) Add(o Pass) {
	p.Candidates += o.Candidates
	p.OracleCalls += o.OracleCalls
	p.Accepted += o.Accepted
	p.Rejected += o.Rejected
	p.InvocationErrors += o.InvocationErrors
	p.Timeouts += o.Timeouts
	p.Filtered += o.Filtered
	p.BytesRemoved += o.BytesRemoved
	p.Duration += o.Duration
}

// Counters is the counter context of one run.
//
// Thread Safety: not safe for concurrent use. A run is single-threaded.
type Counters struct {
	passes map[string]*Pass
	order  []string
}

// New returns empty counters.
func New() *Counters {
	return &Counters{passes: make(map[string]*Pass)}
}

// Pass returns the counters for name, creating them on first use.
func (c *Counters) Pass(name string) *Pass {
	if p, ok := c.passes[name]; ok {
		return p
	}
	p := &Pass{Name: name}
	c.passes[name] = p
	c.order = append(c.order, name)
	return p
}

// Passes returns a copy of every pass's counters in first-use order.
func (c *Counters) Passes() []Pass {
	out := make([]Pass, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, *c.passes[name])
	}
	return out
}

// Total sums all passes.
func (c *Counters) Total() Pass {
	total := Pass{Name: "total"}
	for _, name := range c.order {
		total.Add(*c.passes[name])
	}
	return total
}
