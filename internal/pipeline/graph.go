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

	"github.com/cloudwego/eino/compose"
	"github.com/pkg/errors"

	"github.com/cloudwego/netupgrader/llm"
)

const graphName = "netupgrader"

type stateRunner func(ctx context.Context, st *PipelineState) (*PipelineState, error)

// compileGraph is a variable so tests can simulate an unavailable executor.
var compileGraph = buildGraph

// buildGraph chains the steps START -> steps... -> END in a DAG-mode graph,
// so each node runs only after its predecessor has finished.
func buildGraph(ctx context.Context, steps []Step) (stateRunner, error) {
	g := compose.NewGraph[*PipelineState, *PipelineState]()

	prev := compose.START
	for _, step := range steps {
		step := step
		node := compose.InvokableLambda(func(ctx context.Context, in *PipelineState) (*PipelineState, error) {
			return invokeStep(ctx, step, in)
		})
		if err := g.AddLambdaNode(step.Name(), node, compose.WithNodeName(step.Name())); err != nil {
			return nil, errors.Wrapf(err, "add node %s", step.Name())
		}
		if err := g.AddEdge(prev, step.Name()); err != nil {
			return nil, errors.Wrapf(err, "add edge %s -> %s", prev, step.Name())
		}
		prev = step.Name()
	}
	if err := g.AddEdge(prev, compose.END); err != nil {
		return nil, errors.Wrapf(err, "add edge %s -> end", prev)
	}

	runnable, err := g.Compile(ctx,
		compose.WithGraphName(graphName),
		compose.WithNodeTriggerMode(compose.AllPredecessor),
	)
	if err != nil {
		return nil, errors.Wrap(err, "compile graph")
	}

	return func(ctx context.Context, st *PipelineState) (*PipelineState, error) {
		return runnable.Invoke(ctx, st, compose.WithCallbacks(llm.CallbackHandler{}))
	}, nil
}
