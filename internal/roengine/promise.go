package roengine

import (
	"context"

	"github.com/roby-engine/roby/internal/ropromise"
)

// Promise creates a promise whose unhandled rejections are reported as
// framework errors on e and registers it as waiting work so RunCycle
// polls it each cycle until it completes (spec.md §4.6: "while a promise
// has pending work it remains in engine.waiting_work").
func (e *Engine) Promise(pool *ropromise.Pool, body func(ctx context.Context) (any, error)) *ropromise.Promise {
	p := ropromise.New(pool, e, body)
	e.RegisterWaitingWork(p)
	return p
}
