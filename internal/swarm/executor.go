package swarm

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/docser/config"
)

const (
	errUnassigned      = "Error: Expert not assigned."
	errRetrievalFailed = "Error: Retrieval failed."
)

// Executor fans a plan's tasks out to the expert registry concurrently and
// collects answers back in declaration order.
type Executor struct {
	cfg      *config.Config
	registry *Registry
	logger   *log.Logger
}

func NewExecutor(cfg *config.Config, registry *Registry) *Executor {
	return &Executor{cfg: cfg, registry: registry, logger: log.New(log.Writer(), "[EXEC] ", log.LstdFlags)}
}

// Execute runs every task in the plan. Each task produces exactly one answer
// in task-declaration order, whatever happens: a task naming an unknown
// expert or whose retrieval fails yields a synthetic error answer rather
// than failing the round. Only cancellation aborts the fan-out.
func (e *Executor) Execute(ctx context.Context, plan Plan, round int) ([]ExpertAnswer, error) {
	tasks := plan.Tasks()
	answers := make([]ExpertAnswer, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		answers[i] = ExpertAnswer{Expert: task.Expert, Question: task.Question, Round: round}
		if !e.registry.Has(task.Expert) {
			e.logger.Printf("round %d: no expert named %q", round, task.Expert)
			answers[i].Answer = errUnassigned
			continue
		}
		g.Go(func() error {
			out, err := e.registry.Ask(gctx, task.Expert, task.Question)
			if err != nil {
				if isAbort(err) {
					return err
				}
				e.logger.Printf("round %d: %s failed: %v", round, task.Expert, err)
				answers[i].Answer = errRetrievalFailed
				return nil
			}
			answers[i].Answer = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return answers, nil
}
