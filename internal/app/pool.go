package app

import (
	"context"
	"fmt"
	"html"
	"math/rand"
	"strings"
	"sync"
	"time"

	"quicktrivia/internal/domain"
)

// QuestionProvider is the trivia API the pool is fetched from.
type QuestionProvider interface {
	FetchQuestions(ctx context.Context, settings domain.QuizSettings) ([]domain.RawQuestion, error)
}

// PoolBuilder turns provider records into a question pool with shuffled choices.
type PoolBuilder struct {
	provider QuestionProvider

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewPoolBuilder(provider QuestionProvider) *PoolBuilder {
	return NewPoolBuilderWithRand(provider, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewPoolBuilderWithRand is used by tests for a deterministic shuffle.
func NewPoolBuilderWithRand(provider QuestionProvider, rnd *rand.Rand) *PoolBuilder {
	return &PoolBuilder{provider: provider, rnd: rnd}
}

// Build requests settings.QuestionCount questions and normalizes them. The
// pool may be shorter than requested when the provider has fewer matches.
func (b *PoolBuilder) Build(ctx context.Context, settings domain.QuizSettings) (domain.QuestionPool, error) {
	raw, err := b.provider.FetchQuestions(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	pool := make(domain.QuestionPool, 0, len(raw))
	for _, r := range raw {
		if len(pool) == settings.QuestionCount {
			break
		}
		q, ok := b.normalize(r)
		if !ok {
			continue
		}
		pool = append(pool, q)
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: no usable questions", domain.ErrProviderUnavailable)
	}
	return pool, nil
}

// normalize decodes entities and builds the choice list. Records that do not
// give exactly four distinct choices are skipped.
func (b *PoolBuilder) normalize(r domain.RawQuestion) (domain.Question, bool) {
	correct := decode(r.CorrectAnswer)
	if correct == "" {
		return domain.Question{}, false
	}

	choices := make([]string, 0, domain.ChoicesPerQuestion)
	seen := map[string]struct{}{correct: {}}
	choices = append(choices, correct)
	for _, answer := range r.IncorrectAnswers {
		answer = decode(answer)
		if answer == "" {
			continue
		}
		if _, dup := seen[answer]; dup {
			continue
		}
		seen[answer] = struct{}{}
		choices = append(choices, answer)
	}
	if len(choices) != domain.ChoicesPerQuestion {
		return domain.Question{}, false
	}

	b.shuffle(choices)
	return domain.Question{
		Text:          decode(r.Question),
		Category:      decode(r.Category),
		Difficulty:    domain.Difficulty(r.Difficulty),
		Choices:       choices,
		CorrectAnswer: correct,
	}, true
}

// shuffle is a Fisher-Yates shuffle.
func (b *PoolBuilder) shuffle(choices []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(choices) - 1; i > 0; i-- {
		j := b.rnd.Intn(i + 1)
		choices[i], choices[j] = choices[j], choices[i]
	}
}

func decode(s string) string {
	return strings.TrimSpace(html.UnescapeString(s))
}
