/**
 * Copyright 2025 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package llm

import (
	"context"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"

	"github.com/cloudwego/netupgrader/internal/log"
)

var _ Completer = (*ChatCompleter)(nil)

// ChatCompleter sends one user message per call to a chat model. Each call is
// attempted exactly once.
type ChatCompleter struct {
	model   model.BaseChatModel
	timeout time.Duration
}

func NewChatCompleter(m model.BaseChatModel, timeout time.Duration) *ChatCompleter {
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	return &ChatCompleter{model: m, timeout: timeout}
}

func (c *ChatCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	log.Debug("[User] %s", prompt)
	var opts []model.Option
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}
	out, err := c.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)}, opts...)
	if err != nil {
		return "", errors.Wrap(err, "chat completion")
	}
	if out == nil {
		return "", errors.New("chat completion returned no message")
	}
	log.Debug("[Assistant] %d chars", len(out.Content))
	return out.Content, nil
}

// CallbackHandler logs node lifecycle events of eino runnables.
type CallbackHandler struct{}

var _ callbacks.Handler = (*CallbackHandler)(nil)

func (h CallbackHandler) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	log.Debug("<OnStart> %s", runName(info))
	return ctx
}

func (h CallbackHandler) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	log.Debug("<OnEnd> %s", runName(info))
	return ctx
}

func (h CallbackHandler) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	log.Error("<OnError> %s: %v", runName(info), err)
	return ctx
}

func (h CallbackHandler) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}

func (h CallbackHandler) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	return ctx
}

func runName(info *callbacks.RunInfo) string {
	if info == nil {
		return "?"
	}
	if info.Name != "" {
		return info.Name
	}
	return string(info.Component)
}
