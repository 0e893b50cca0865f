package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/kylerisse/dirhealth/pkg/check"
)

// worker evaluates a sequence of checks against one target and files the
// outcome of each into the shared collector or skip ledger.
type worker struct {
	runner    *Runner
	limiter   *rate.Limiter
	collector *check.Collector
	skipped   *skipLedger
	log       *logrus.Entry
}

// run evaluates checks against target in order, stopping when ctx is done.
func (w *worker) run(ctx context.Context, slot int, target check.Target, checks []check.Check) {
	log := w.log.WithField("target", target.Name)
	for _, chk := range checks {
		if err := w.limiter.Wait(ctx); err != nil {
			log.Debugf("Not starting %s: %v", chk.Type(), err)
			return
		}

		start := time.Now()
		results, err := w.evaluate(ctx, chk, target)
		elapsed := time.Since(start)

		if err != nil {
			if ctx.Err() != nil {
				log.Debugf("Abandoned %s after cancellation: %v", chk.Type(), err)
				return
			}
			log.WithField("category", chk.Type()).Warnf("Skipping %s on %s: %v", chk.Type(), target.Name, err)
			w.skipped.add(slot, target.Name, chk.Type(), err)
			continue
		}

		w.collector.Add(slot, results...)
		for _, res := range results {
			log.WithFields(logrus.Fields{
				"category": res.Category,
				"check":    res.CheckName,
				"status":   res.Status,
				"duration": elapsed,
			}).Debugf("Evaluated %s", res.CheckName)
		}
	}
}

// evaluate runs one check under the per-check timeout. A panic is returned
// as an error.
func (w *worker) evaluate(ctx context.Context, chk check.Check, target check.Target) (results []check.Result, err error) {
	if d := w.runner.checkTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			w.log.Debugf("Recovered panic in %s: %v\n%s", chk.Type(), p, debug.Stack())
			results, err = nil, fmt.Errorf("check panicked: %v", p)
		}
	}()

	results, err = chk.Run(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("check produced no result")
	}
	return results, nil
}
