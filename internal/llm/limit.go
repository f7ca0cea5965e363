package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

type limited struct {
	Provider
	limiter *rate.Limiter
}

// Limit spaces calls to p so at most perMinute start in any minute.
// perMinute <= 0 returns p unchanged.
func Limit(p Provider, perMinute int) Provider {
	if perMinute <= 0 {
		return p
	}
	return &limited{
		Provider: p,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (l *limited) Generate(ctx context.Context, prompt string, maxTokens int) (Completion, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Completion{}, err
	}
	return l.Provider.Generate(ctx, prompt, maxTokens)
}
