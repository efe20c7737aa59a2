// Package rag answers questions about an indexed policy document by
// condensing the conversation, retrieving clauses and prompting a chat model.
package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/hyperjump/policyqa/internal/apperr"
	"github.com/hyperjump/policyqa/internal/models"
)

// Request is one question against a loaded index.
type Request struct {
	LLM       model.BaseChatModel
	Retriever retriever.Retriever
	Question  string
	History   []models.ConversationTurn
}

type answerState struct {
	In         *Request
	Standalone string
	Docs       []*schema.Document
	Messages   []*schema.Message
}

// Answerer runs the condense, retrieve, prompt and generate chain.
// It is safe for concurrent use; the chain is compiled once.
type Answerer struct {
	logger *zap.Logger

	condense einoprompt.ChatTemplate
	answer   einoprompt.ChatTemplate

	chainOnce sync.Once
	chain     compose.Runnable[*Request, string]
	chainErr  error
}

// Option configures an Answerer.
type Option func(*Answerer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Answerer) { a.logger = l }
}

// NewAnswerer creates an answerer using the insurance claim prompt.
func NewAnswerer(opts ...Option) *Answerer {
	a := &Answerer{
		logger:   zap.NewNop(),
		condense: einoprompt.FromMessages(schema.FString, schema.UserMessage(CondensePrompt)),
		answer:   einoprompt.FromMessages(schema.FString, schema.UserMessage(InsurancePrompt)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Answer returns the raw model text for question. With a non-empty history the
// question is first rewritten into a standalone one. Every failure is an
// external-call error; nothing is retried.
func (a *Answerer) Answer(ctx context.Context, llm model.BaseChatModel, r retriever.Retriever, question string, history []models.ConversationTurn) (string, error) {
	if llm == nil || r == nil {
		return "", apperr.Wrap(fmt.Errorf("chat model and retriever are required"), apperr.KindExternalCall, "answering is not configured")
	}
	chain, err := a.getChain()
	if err != nil {
		return "", apperr.Wrap(err, apperr.KindExternalCall, "failed to build answer chain")
	}
	out, err := chain.Invoke(ctx, &Request{LLM: llm, Retriever: r, Question: question, History: history})
	if err != nil {
		return "", apperr.Wrap(err, apperr.KindExternalCall, "failed to answer question")
	}
	return out, nil
}

func (a *Answerer) getChain() (compose.Runnable[*Request, string], error) {
	a.chainOnce.Do(func() {
		a.chain, a.chainErr = a.buildChain(context.Background())
	})
	return a.chain, a.chainErr
}

func (a *Answerer) buildChain(ctx context.Context) (compose.Runnable[*Request, string], error) {
	chain := compose.NewChain[*Request, string]()

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, in *Request) (*answerState, error) {
			st := &answerState{In: in, Standalone: in.Question}
			if len(in.History) == 0 {
				return st, nil
			}
			msgs, err := a.condense.Format(ctx, map[string]any{
				"chat_history": FormatHistory(in.History),
				"question":     in.Question,
			})
			if err != nil {
				return nil, fmt.Errorf("format condense prompt: %w", err)
			}
			out, err := in.LLM.Generate(ctx, msgs)
			if err != nil {
				return nil, fmt.Errorf("condense question: %w", err)
			}
			if out != nil && strings.TrimSpace(out.Content) != "" {
				st.Standalone = strings.TrimSpace(out.Content)
			}
			a.logger.Debug("question condensed",
				zap.String("question", in.Question),
				zap.String("standalone", st.Standalone))
			return st, nil
		}),
		compose.WithNodeName("answer.condense"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *answerState) (*answerState, error) {
			docs, err := st.In.Retriever.Retrieve(ctx, st.Standalone)
			if err != nil {
				return nil, fmt.Errorf("retrieve: %w", err)
			}
			st.Docs = docs
			a.logger.Debug("clauses retrieved", zap.Int("count", len(docs)))
			return st, nil
		}),
		compose.WithNodeName("answer.retrieve"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *answerState) (*answerState, error) {
			msgs, err := a.answer.Format(ctx, map[string]any{
				"context":  JoinContext(st.Docs),
				"question": st.Standalone,
			})
			if err != nil {
				return nil, fmt.Errorf("format answer prompt: %w", err)
			}
			st.Messages = msgs
			return st, nil
		}),
		compose.WithNodeName("answer.template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *answerState) (string, error) {
			out, err := st.In.LLM.Generate(ctx, st.Messages)
			if err != nil {
				return "", fmt.Errorf("generate: %w", err)
			}
			if out == nil {
				return "", fmt.Errorf("empty llm response")
			}
			return out.Content, nil
		}),
		compose.WithNodeName("answer.generate"),
	)

	return chain.Compile(ctx, compose.WithGraphName("policy_answer_chain"))
}

// FormatHistory renders turns the way the condense prompt expects.
func FormatHistory(history []models.ConversationTurn) string {
	var b strings.Builder
	for _, turn := range history {
		fmt.Fprintf(&b, "Human: %s\nAssistant: %s\n", turn.Question, turn.Answer)
	}
	return strings.TrimRight(b.String(), "\n")
}

// JoinContext joins retrieved document texts with blank lines.
func JoinContext(docs []*schema.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		parts = append(parts, d.Content)
	}
	return strings.Join(parts, "\n\n")
}
