// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package deps tracks syntactic uses of global declarations.
//
// Uses are recorded once, from a single traversal made before any deletion.
// Under PolicySnapshot the counts are never revisited, so a declaration whose
// last user has since been deleted still looks used. PolicyLive keeps the same
// recorded sites but ignores the ones whose text the store has since deleted;
// it needs no re-parse and no extra oracle calls.
package deps

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/AleutianAI/AleutianReduce/services/reduce/element"
)

// Policy selects how use counts are evaluated.
type Policy int

const (
	// PolicySnapshot counts every use recorded at collection time.
	PolicySnapshot Policy = iota

	// PolicyLive counts only recorded uses whose text is still present.
	PolicyLive
)

// String returns the string representation of the policy.
func (p Policy) String() string {
	switch p {
	case PolicySnapshot:
		return "snapshot"
	case PolicyLive:
		return "live"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses "snapshot" or "live". The empty string is snapshot.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "snapshot":
		return PolicySnapshot, nil
	case "live":
		return PolicyLive, nil
	}
	return PolicySnapshot, fmt.Errorf("unknown dependency policy %q", s)
}

// View answers whether an original offset has been deleted.
// *source.Store implements it.
type View interface {
	IsDeleted(path string, off int) bool
}

// Tracker holds the recorded use sites of each element, indexed by handle.
//
// Thread Safety: not safe for concurrent use.
type Tracker struct {
	path   string
	policy Policy
	view   View
	sites  []*roaring.Bitmap
}

// NewTracker creates a tracker for n elements of the file at path.
// view is consulted only under PolicyLive and may be nil otherwise.
func NewTracker(path string, n int, policy Policy, view View) *Tracker {
	t := &Tracker{
		path:   path,
		policy: policy,
		view:   view,
		sites:  make([]*roaring.Bitmap, n),
	}
	for i := range t.sites {
		t.sites[i] = roaring.New()
	}
	return t
}

// Policy returns the active policy.
func (t *Tracker) Policy() Policy {
	return t.policy
}

// RecordUse appends a use of h at the given original offset. Recording the
// same site twice counts once. Handles outside the tracker are ignored.
func (t *Tracker) RecordUse(h element.Handle, site int) {
	if int(h) < 0 || int(h) >= len(t.sites) || site < 0 {
		return
	}
	t.sites[h].Add(uint32(site))
}

// Uses returns the number of uses recorded for h at collection time.
func (t *Tracker) Uses(h element.Handle) int {
	if int(h) < 0 || int(h) >= len(t.sites) {
		return 0
	}
	return int(t.sites[h].GetCardinality())
}

// LiveUses returns the number of recorded uses of h whose first byte is
// still present in the view.
func (t *Tracker) LiveUses(h element.Handle) int {
	if int(h) < 0 || int(h) >= len(t.sites) {
		return 0
	}
	if t.view == nil {
		return t.Uses(h)
	}
	n := 0
	it := t.sites[h].Iterator()
	for it.HasNext() {
		if !t.view.IsDeleted(t.path, int(it.Next())) {
			n++
		}
	}
	return n
}

// Count returns the use count of h under the active policy.
func (t *Tracker) Count(h element.Handle) int {
	if t.policy == PolicyLive {
		return t.LiveUses(h)
	}
	return t.Uses(h)
}

// Sites returns the recorded use offsets of h in ascending order.
func (t *Tracker) Sites(h element.Handle) []int {
	if int(h) < 0 || int(h) >= len(t.sites) {
		return nil
	}
	raw := t.sites[h].ToArray()
	out := make([]int, len(raw))
	for i, v := range raw {
		out[i] = int(v)
	}
	return out
}

// Eligible reports whether every element of chunk has zero uses under the
// active policy. An empty chunk is eligible.
func (t *Tracker) Eligible(chunk []element.Element) bool {
	for _, e := range chunk {
		if t.Count(e.Handle) > 0 {
			return false
		}
	}
	return true
}
