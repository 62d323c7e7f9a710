// Copyright 2024 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msghub

import (
	"context"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/glycerine/idem"
)

// WorkUnit is one schedulable piece of request processing. Run returns
// the response message, a nil response produces no reply.
type WorkUnit interface {
	Run(ctx context.Context) Message
}

// WorkUnitFactory produces a work unit for each decoded request.
type WorkUnitFactory interface {
	NewWorkUnit(request Message) WorkUnit
}

// The WorkUnitFactoryFunc type is an adapter to allow the use of
// ordinary functions as factories.
type WorkUnitFactoryFunc func(request Message) WorkUnit

func (f WorkUnitFactoryFunc) NewWorkUnit(request Message) WorkUnit {
	return f(request)
}

// WorkUnitFunc adapts a function to the WorkUnit interface.
type WorkUnitFunc func(ctx context.Context) Message

func (f WorkUnitFunc) Run(ctx context.Context) Message {
	return f(ctx)
}

type schedTask struct {
	unit WorkUnit
	done func(resp Message)
}

// workScheduler executes work units on a pool of min to max worker
// goroutines. Each submitted unit runs exactly once, completion order
// across units is not defined. Hand-off prefers an idle worker, spawns
// up to max under load, and idle workers above min retire after
// workerIdleTimeout.
type workScheduler struct {
	min, max int
	idle     time.Duration

	taskC chan schedTask
	halt  *idem.Halter

	mu  sync.Mutex
	cur int
}

const workerIdleTimeout = 5 * time.Second

func newWorkScheduler(min, max int) *workScheduler {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	s := &workScheduler{
		min:   min,
		max:   max,
		idle:  workerIdleTimeout,
		taskC: make(chan schedTask),
		halt:  idem.NewHalter(),
	}
	for i := 0; i < min; i++ {
		s.spawn(nil)
	}
	return s
}

// Submit hands t to the pool. It blocks only when max workers are all
// busy, which is the scheduler's back-pressure.
func (s *workScheduler) Submit(t schedTask) {
	select {
	case s.taskC <- t:
		return
	case <-s.halt.ReqStop.Chan:
		return
	default:
	}

	if s.tryGrow() {
		s.spawn(&t)
		return
	}

	select {
	case s.taskC <- t:
	case <-s.halt.ReqStop.Chan:
	}
}

// Close stops the pool. Units already running complete, queued hand-offs
// are abandoned.
func (s *workScheduler) Close() {
	s.halt.ReqStop.Close()
}

func (s *workScheduler) tryGrow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur >= s.max {
		return false
	}
	s.cur++
	return true
}

// spawn starts one worker. first may carry the task that triggered the
// growth. Workers started at construction count against cur here.
func (s *workScheduler) spawn(first *schedTask) {
	if first == nil {
		s.mu.Lock()
		s.cur++
		s.mu.Unlock()
	}
	go s.work(first)
}

func (s *workScheduler) work(first *schedTask) {
	if first != nil {
		s.run(*first)
	}

	t := time.NewTimer(s.idle)
	defer t.Stop()

	for {
		select {
		case <-s.halt.ReqStop.Chan:
			s.mu.Lock()
			s.cur--
			s.mu.Unlock()
			return
		case task := <-s.taskC:
			s.run(task)

			if !t.Stop() {
				<-t.C
			}
			t.Reset(s.idle)
		case <-t.C:
			if s.retire() {
				return
			}
			t.Reset(s.idle)
		}
	}
}

// retire decides under the lock whether this worker may exit, keeping
// min workers alive.
func (s *workScheduler) retire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur <= s.min {
		return false
	}
	s.cur--
	return true
}

func (s *workScheduler) run(t schedTask) {
	defer func() {
		if e := recover(); e != nil {
			const size = 16 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			log.Print("scheduler panic: ", e, "\n", string(buf))
		}
	}()

	ctx := context.Background()
	resp := t.unit.Run(ctx)
	if t.done != nil {
		t.done(resp)
	}
}
