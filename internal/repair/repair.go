// Package repair runs the generate-validate loop for one stage, feeding the
// exact defects of a rejected output back to the generator until the retry
// budget is spent.
package repair

import (
	"context"
	"log/slog"
	"time"

	"github.com/jorge-barreto/docchain/internal/assemble"
	"github.com/jorge-barreto/docchain/internal/invoke"
	"github.com/jorge-barreto/docchain/internal/metrics"
	"github.com/jorge-barreto/docchain/internal/registry"
	"github.com/jorge-barreto/docchain/internal/validate"
)

// DefaultBudget is the retry budget for a contract kind when nothing is
// configured. Malformed JSON is common and cheap to retry; a long markdown
// document is not.
func DefaultBudget(kind registry.ContractKind) int {
	if kind == registry.StrictJSON {
		return 2
	}
	return 1
}

// Policy supplies per-stage generation settings. *config.Config satisfies it.
type Policy interface {
	Model(stageID string) string
	Timeout(stageID string) time.Duration
}

// Record is one generation attempt as seen by a Journal. Result is nil
// when the invoker failed.
type Record struct {
	Stage    string
	Attempt  int
	Prompt   string
	Output   string
	Result   *validate.Result
	Err      error
	Started  time.Time
	Duration time.Duration
}

// Journal keeps an audit trail of attempts.
type Journal interface {
	Record(rec Record) error
}

// Outcome is the end of one stage's attempt loop.
type Outcome struct {
	Result   validate.Result
	Attempts int
	Bundle   *assemble.Bundle // last bundle sent, including feedback blocks
}

// Retries is the number of attempts beyond the first.
func (o Outcome) Retries() int {
	if o.Attempts == 0 {
		return 0
	}
	return o.Attempts - 1
}

type Controller struct {
	Invoker invoke.Invoker
	Policy  Policy // optional

	// Instruction returns the stage instruction text. Nil uses
	// registry.Describe.
	Instruction func(stage registry.Stage, attempt int) (string, error)

	Journal Journal // optional
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// Attempt generates stage output from bundle and validates it against the
// stage contract. A rejection with budget left is retried with the defects
// appended to the bundle; budget 0 means exactly one attempt. Invoker
// failures, timeouts included, end the loop at once and are returned as the
// error. A contract failure is not an error: it is the Rejected result of
// the returned Outcome.
func (c *Controller) Attempt(ctx context.Context, stage registry.Stage, bundle *assemble.Bundle, budget int) (Outcome, error) {
	if budget < 0 {
		budget = 0
	}
	log := c.logger().With("stage", stage.ID)
	upstream := bundle.Upstream()
	var out Outcome
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out.Attempts++
		out.Bundle = bundle

		instruction, err := c.instruction(stage, out.Attempts)
		if err != nil {
			return out, err
		}
		prompt := bundle.Prompt(instruction)

		started := time.Now()
		raw, err := c.invoke(ctx, stage, prompt, out.Attempts)
		rec := Record{Stage: stage.ID, Attempt: out.Attempts, Prompt: prompt, Output: raw, Started: started, Duration: time.Since(started)}
		if err != nil {
			rec.Err = err
			c.journal(log, rec)
			c.Metrics.Attempt(stage.ID, "error")
			log.Warn("generation failed", "attempt", out.Attempts, "error", err)
			return out, err
		}

		res := validate.Validate(stage, raw, upstream)
		rec.Result = &res
		c.journal(log, rec)
		out.Result = res
		if res.Accepted() {
			c.Metrics.Attempt(stage.ID, "accepted")
			log.Info("output accepted", "attempt", out.Attempts)
			return out, nil
		}

		c.Metrics.Attempt(stage.ID, "rejected")
		defects := res.Defects()
		for _, d := range defects {
			c.Metrics.Defect(stage.ID, string(d.Rule))
		}
		log.Info("output rejected", "attempt", out.Attempts, "defects", res.String())
		if out.Attempts > budget {
			return out, nil
		}
		bundle = bundle.WithFeedback(res.Feedback())
	}
}

func (c *Controller) instruction(stage registry.Stage, attempt int) (string, error) {
	if c.Instruction == nil {
		return registry.Describe(stage), nil
	}
	return c.Instruction(stage, attempt)
}

// invoke applies the per-stage timeout around the invoker call only.
func (c *Controller) invoke(ctx context.Context, stage registry.Stage, prompt string, attempt int) (string, error) {
	req := invoke.Request{Stage: stage, Prompt: prompt, Attempt: attempt}
	if c.Policy != nil {
		req.Model = c.Policy.Model(stage.ID)
		if d := c.Policy.Timeout(stage.ID); d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
	}
	raw, err := c.Invoker.Invoke(ctx, req)
	if err != nil {
		if !invoke.IsInvocationError(err) {
			err = &invoke.InvocationError{Stage: stage.ID, Err: err}
		}
		return raw, err
	}
	return raw, nil
}

func (c *Controller) journal(log *slog.Logger, rec Record) {
	if c.Journal == nil {
		return
	}
	if err := c.Journal.Record(rec); err != nil {
		log.Warn("journal write failed", "attempt", rec.Attempt, "error", err)
	}
}
