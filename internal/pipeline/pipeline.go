// Copyright 2025 ByteDance Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/cloudwego/netupgrader/internal/log"
)

// Strategy selects how the steps are executed. Both strategies produce the
// same final state for the same input.
type Strategy string

const (
	// StrategyGraph runs the steps as nodes of a compiled eino graph, falling
	// back to StrategySequential if the graph cannot be built.
	StrategyGraph Strategy = "graph"
	// StrategySequential runs the steps in-process one after another.
	StrategySequential Strategy = "sequential"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyGraph:
		return StrategyGraph, nil
	case StrategySequential:
		return StrategySequential, nil
	}
	return "", errors.Errorf("unknown pipeline strategy %q", s)
}

// Pipeline runs the upgrade steps in their fixed order.
type Pipeline struct {
	Steps    []Step
	Strategy Strategy
}

func New(strategy Strategy, steps ...Step) (*Pipeline, error) {
	if err := validateOrder(steps); err != nil {
		return nil, err
	}
	return &Pipeline{Steps: steps, Strategy: strategy}, nil
}

// Run executes every step against a copy of initial and returns the final
// state. The first step error aborts the run: no state is returned with it.
func (p *Pipeline) Run(ctx context.Context, initial *PipelineState) (*PipelineState, error) {
	if err := validateOrder(p.Steps); err != nil {
		return nil, err
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	st := initial.Clone()

	logger := log.With(map[string]any{"run": st.RunID, "target": st.TargetVersion})
	logger.Infof("pipeline started (%s)", p.strategy())

	var (
		out *PipelineState
		err error
	)
	if p.strategy() == StrategyGraph {
		var runner stateRunner
		runner, err = compileGraph(ctx, p.Steps)
		if err != nil {
			logger.Warnf("graph executor unavailable, running steps sequentially: %v", err)
			out, err = runSequential(ctx, p.Steps, st)
		} else {
			out, err = runner(ctx, st)
		}
	} else {
		out, err = runSequential(ctx, p.Steps, st)
	}
	if err != nil {
		logger.Errorf("pipeline failed: %v", err)
		return nil, err
	}
	logger.Infof("pipeline finished after %d steps", len(out.History))
	return out, nil
}

func (p *Pipeline) strategy() Strategy {
	if p.Strategy == "" {
		return StrategyGraph
	}
	return p.Strategy
}

func validateOrder(steps []Step) error {
	if len(steps) != len(StepOrder) {
		return errors.Errorf("pipeline: expected %d steps %v, got %d", len(StepOrder), StepOrder, len(steps))
	}
	for i, step := range steps {
		if step == nil {
			return fmt.Errorf("pipeline: step %d is nil", i)
		}
		if step.Name() != StepOrder[i] {
			return errors.Errorf("pipeline: step %d is %q, expected %q", i, step.Name(), StepOrder[i])
		}
	}
	return nil
}

func runSequential(ctx context.Context, steps []Step, st *PipelineState) (*PipelineState, error) {
	current := st
	for _, step := range steps {
		next, err := invokeStep(ctx, step, current)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

// invokeStep is shared by both strategies: the step gets a private copy of
// the state and its completion is appended to History.
func invokeStep(ctx context.Context, step Step, st *PipelineState) (*PipelineState, error) {
	start := time.Now()
	log.Debug("step %s started", step.Name())

	next, err := step.Run(ctx, st.Clone())
	if err != nil {
		return nil, fmt.Errorf("pipeline step %q: %w", step.Name(), err)
	}
	if next == nil {
		return nil, fmt.Errorf("pipeline step %q returned no state", step.Name())
	}
	if err := next.CheckWrites(st, step.Name()); err != nil {
		return nil, fmt.Errorf("pipeline step %q: %w", step.Name(), err)
	}
	next.History = append(next.History, StepRecord{
		StepName:  step.Name(),
		StartedAt: start,
		Duration:  time.Since(start),
	})
	log.Debug("step %s finished in %s", step.Name(), time.Since(start))
	return next, nil
}
