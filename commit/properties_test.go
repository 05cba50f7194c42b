// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Property-style checks for the six invariants the commit engine's
// main loop must hold, run under gocheck alongside the scenario-based
// testify suite in engine_test.go.
package commit

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cespare/cp"
	"github.com/davecgh/go-spew/spew"
	checker "gopkg.in/check.v1"

	"imgcommit/backend/memory"
	"imgcommit/backend/posix"
	"imgcommit/chain"
	"imgcommit/registry"
)

func Test(t *testing.T) { checker.TestingT(t) }

var dumper = spew.ConfigState{Indent: "    "}

type PropertySuite struct {
	dir string
}

var _ = checker.Suite(&PropertySuite{})

func (s *PropertySuite) SetUpTest(c *checker.C) {
	s.dir = c.MkDir()
}

// goldenFixture copies name out of testdata/ into the suite's scratch
// directory, so a test can mutate its working copy without touching
// the checked-in fixture.
func (s *PropertySuite) goldenFixture(c *checker.C, name string) string {
	dst := filepath.Join(s.dir, name)
	if err := cp.CopyFile(dst, filepath.Join("testdata", name)); err != nil {
		c.Fatalf("copy fixture %s: %v", name, err)
	}
	return dst
}

func waitProgress(c *checker.C, job *Job, timeout time.Duration) Progress {
	deadline := time.Now().Add(timeout)
	for {
		p := job.Progress()
		switch p.State {
		case StateCompleted, StateCancelled, StateErrored:
			return p
		}
		if time.Now().After(deadline) {
			c.Fatalf("job did not reach a terminal state in time; last progress:\n%s", dumper.Sdump(p))
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// P1: conservation. Every sector of Top ends up in Base exactly as it
// read before the commit, grounded on the posix backend so the golden
// fixture images (copied into a scratch directory per fixture, never
// mutated in place) exercise real file I/O rather than the in-memory
// fake.
func (s *PropertySuite) TestP1Conservation(c *checker.C) {
	basePath := s.goldenFixture(c, "base.img")
	topPath := s.goldenFixture(c, "top.img")
	activePath := s.goldenFixture(c, "active.img")

	wantTop, err := os.ReadFile(topPath)
	c.Assert(err, checker.IsNil)

	backend := posix.New(false)
	base, err := posix.Open(posix.OpenParams{Path: basePath, Flags: chain.ReadWrite, WriteBack: true})
	c.Assert(err, checker.IsNil)
	top, err := posix.Open(posix.OpenParams{Path: topPath, Backing: base, Flags: chain.ReadWrite, WriteBack: true})
	c.Assert(err, checker.IsNil)
	active, err := posix.Open(posix.OpenParams{Path: activePath, Backing: top, Flags: chain.ReadWrite, WriteBack: true})
	c.Assert(err, checker.IsNil)

	reg := registry.New()
	job, err := Start(context.Background(), backend, reg, StartParams{Active: active, Top: top, Base: base})
	c.Assert(err, checker.IsNil)

	final := waitProgress(c, job, 2*time.Second)
	c.Assert(final.State, checker.Equals, StateCompleted, checker.Commentf("progress: %s", dumper.Sdump(final)))

	gotBase := make([]byte, len(wantTop))
	c.Assert(backend.ReadAt(context.Background(), base, 0, len(wantTop)/chain.SectorSize, gotBase), checker.IsNil)
	c.Assert(gotBase, checker.DeepEquals, wantTop)

	// DropIntermediate must have removed Top's file as the final step.
	_, err = os.Stat(topPath)
	c.Assert(os.IsNotExist(err), checker.Equals, true)
}

// P2: sectors Top never allocated are untouched in Base.
func (s *PropertySuite) TestP2BaseSectorsUntouched(c *checker.C) {
	const total = 8 * chain.SectorSize
	base := memory.NewLayer("base", nil, total)
	top := memory.NewLayer("top", base, total)
	active := memory.NewLayer("active", top, total)

	sentinel := bytes.Repeat([]byte{0xEE}, 4*chain.SectorSize)
	base.Seed(4, 4, sentinel) // pre-existing content in the untouched half
	top.Seed(0, 4, bytes.Repeat([]byte{0x11}, 4*chain.SectorSize))

	backend := memory.New()
	reg := registry.New()
	job, err := Start(context.Background(), backend, reg, StartParams{Active: active, Top: top, Base: base})
	c.Assert(err, checker.IsNil)

	final := waitProgress(c, job, 2*time.Second)
	c.Assert(final.State, checker.Equals, StateCompleted, checker.Commentf("progress: %s", dumper.Sdump(final)))

	got := make([]byte, 4*chain.SectorSize)
	c.Assert(backend.ReadAt(context.Background(), base, 4, 4, got), checker.IsNil)
	c.Assert(got, checker.DeepEquals, sentinel)
}

// P3: rate bound. Bytes admitted into Base over the run must not
// exceed speed*seconds*(1+slack), slack capped at 0.1. Allocated runs
// are sized to exactly one slice quota and separated by equal-sized
// holes, so each admitted chunk after the first genuinely waits out a
// window instead of slipping through the forward-progress clause every
// time — the behaviour the clause is meant to be an exception to, not
// the steady state.
func (s *PropertySuite) TestP3RateBound(c *checker.C) {
	const (
		speed        = 10240 // bytes/sec -> quota = 1024 bytes = 2 sectors/slice
		chunkSectors = 2
		chunks       = 40
	)
	total := int64(chunks*2*chunkSectors) * chain.SectorSize

	base := memory.NewLayer("base", nil, total)
	top := memory.NewLayer("top", base, total)
	active := memory.NewLayer("active", top, total)

	payload := bytes.Repeat([]byte{0x7}, chunkSectors*chain.SectorSize)
	for i := 0; i < chunks; i++ {
		sector := int64(i * 2 * chunkSectors)
		top.Seed(sector, chunkSectors, payload)
	}

	backend := memory.New()
	reg := registry.New()

	start := time.Now()
	job, err := Start(context.Background(), backend, reg, StartParams{Active: active, Top: top, Base: base, Speed: speed})
	c.Assert(err, checker.IsNil)

	final := waitProgress(c, job, 10*time.Second)
	elapsed := time.Since(start)
	c.Assert(final.State, checker.Equals, StateCompleted, checker.Commentf("progress: %s", dumper.Sdump(final)))

	const slack = 0.1
	bound := float64(speed) * elapsed.Seconds() * (1 + slack)
	c.Assert(float64(final.Offset) <= bound, checker.Equals, true, checker.Commentf(
		"offset=%d elapsed=%s bound=%.0f progress:\n%s", final.Offset, elapsed, bound, dumper.Sdump(final)))
}

// P4: cancel liveness. The completion callback fires shortly after
// Cancel, without waiting for the whole (large) transfer to finish.
func (s *PropertySuite) TestP4CancelLiveness(c *checker.C) {
	const total = 4 * 1024 * 1024
	base := memory.NewLayer("base", nil, total)
	top := memory.NewLayer("top", base, total)
	active := memory.NewLayer("active", top, total)
	top.Seed(0, total/chain.SectorSize, bytes.Repeat([]byte{0x9}, total))

	backend := memory.New()
	reg := registry.New()
	done := make(chan int, 1)
	job, err := Start(context.Background(), backend, reg, StartParams{
		Active: active, Top: top, Base: base, Speed: 1, // slow enough to still be running
		Callback: func(status int) { done <- status },
	})
	c.Assert(err, checker.IsNil)

	job.Cancel()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		c.Fatalf("cancel callback did not fire within one adapter I/O latency; progress:\n%s", dumper.Sdump(job.Progress()))
	}
	c.Assert(job.Progress().State, checker.Equals, StateCancelled)
}

// P5: flag restoration. Base and the overlay return to their
// pre-commit open flags once a successful commit tears down, not just
// on the cancel path (already covered by engine_test.go's scenario
// suite).
func (s *PropertySuite) TestP5FlagRestoration(c *checker.C) {
	base := memory.NewLayer("base", nil, 0)
	top := memory.NewLayer("top", base, 4*chain.SectorSize)
	active := memory.NewLayer("active", top, 4*chain.SectorSize)
	top.Seed(0, 4, bytes.Repeat([]byte{0x2}, 4*chain.SectorSize))
	base.SetReadOnly()

	backend := memory.New()
	reg := registry.New()
	job, err := Start(context.Background(), backend, reg, StartParams{Active: active, Top: top, Base: base})
	c.Assert(err, checker.IsNil)

	final := waitProgress(c, job, 2*time.Second)
	c.Assert(final.State, checker.Equals, StateCompleted, checker.Commentf("progress: %s", dumper.Sdump(final)))

	flags, err := backend.GetFlags(context.Background(), base)
	c.Assert(err, checker.IsNil)
	c.Assert(flags, checker.Equals, chain.ReadOnly)
}

// P6: idempotent start gates. With Top==Active, Top==Base, or Top
// absent from Active's chain, Start fails synchronously and the
// callback never fires — no job is ever created to cancel or await.
func (s *PropertySuite) TestP6IdempotentStartGates(c *checker.C) {
	neverCalled := func(c *checker.C) func(int) {
		return func(int) { c.Fatalf("callback must never fire for a rejected Start") }
	}

	base := memory.NewLayer("base", nil, 4*chain.SectorSize)
	top := memory.NewLayer("top", base, 4*chain.SectorSize)
	active := memory.NewLayer("active", top, 4*chain.SectorSize)
	stray := memory.NewLayer("stray", nil, 4*chain.SectorSize)

	backend := memory.New()

	_, err := Start(context.Background(), backend, registry.New(), StartParams{
		Active: active, Top: active, Base: base, Callback: neverCalled(c),
	})
	c.Assert(err, checker.Equals, ErrTopIsActive)

	_, err = Start(context.Background(), backend, registry.New(), StartParams{
		Active: active, Top: base, Base: base, Callback: neverCalled(c),
	})
	c.Assert(err, checker.Equals, ErrTopAndBaseIdentical)

	_, err = Start(context.Background(), backend, registry.New(), StartParams{
		Active: active, Top: stray, Base: base, Callback: neverCalled(c),
	})
	c.Assert(err, checker.Equals, ErrTopNotFound)
}
