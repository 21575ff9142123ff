package translation

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"marketchat/internal/domain/service"
	"marketchat/internal/infrastructure/metrics"
	"marketchat/pkg/logger"
)

// Passthrough is the translator in use until a real provider is configured.
// It returns the text unchanged.
type Passthrough struct{}

func (Passthrough) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	return text, nil
}

// Normalize canonicalizes a language tag ("EN-us" becomes "en-US"). Tags that
// do not parse are returned lower-cased and trimmed.
func Normalize(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return strings.ToLower(tag)
	}
	return parsed.String()
}

// SameLanguage compares the base language of two tags, so en and en-GB match.
func SameLanguage(a, b string) bool {
	ta, errA := language.Parse(a)
	tb, errB := language.Parse(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	baseA, _ := ta.Base()
	baseB, _ := tb.Base()
	return baseA == baseB
}

// Service wraps a Translator with the guarantees callers rely on: a bounded
// wait per call and the original text whenever a target fails.
type Service struct {
	translator  service.Translator
	timeout     time.Duration
	concurrency int
}

func NewService(translator service.Translator, timeout time.Duration) *Service {
	if translator == nil {
		translator = Passthrough{}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Service{
		translator:  translator,
		timeout:     timeout,
		concurrency: 4,
	}
}

// Translate renders text in targetLang. Same-language requests return the
// input without calling the provider.
func (s *Service) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if text == "" || SameLanguage(sourceLang, targetLang) {
		return text, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		translated, err := s.translator.Translate(ctx, text, sourceLang, targetLang)
		done <- result{translated, err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// TranslateToAll returns one rendering per target that differs from the
// source language. It never fails: a target whose translation errors or
// times out maps to the original text.
func (s *Service) TranslateToAll(ctx context.Context, text, sourceLang string, targets []string) map[string]string {
	out := make(map[string]string)
	if text == "" {
		return out
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, target := range targets {
		target := Normalize(target)
		if target == "" || SameLanguage(sourceLang, target) {
			continue
		}
		g.Go(func() error {
			translated, err := s.Translate(ctx, text, sourceLang, target)
			if err != nil {
				logger.Warn("Translation %s->%s failed, keeping original: %v", sourceLang, target, err)
				metrics.TranslationFallbacks.WithLabelValues(target).Inc()
				translated = text
			}
			mu.Lock()
			out[target] = translated
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
