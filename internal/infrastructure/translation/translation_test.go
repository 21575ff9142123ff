package translation

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTranslator struct {
	fail  map[string]bool
	block map[string]bool
	calls atomic.Int32
}

func (f *fakeTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	f.calls.Add(1)
	if f.block[targetLang] {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.fail[targetLang] {
		return "", fmt.Errorf("provider down")
	}
	return "[" + targetLang + "] " + text, nil
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "en-US", Normalize("EN-us"))
	assert.Equal(t, "fr", Normalize(" fr "))
	assert.Equal(t, "", Normalize(""))
	assert.Equal(t, "not a tag!", Normalize("NOT A TAG!"))
}

func TestTranslateSameLanguageSkipsProvider(t *testing.T) {
	fake := &fakeTranslator{}
	svc := NewService(fake, time.Second)

	out, err := svc.Translate(context.Background(), "hello", "en", "en-GB")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Zero(t, fake.calls.Load())
}

func TestPassthroughReturnsInput(t *testing.T) {
	svc := NewService(nil, 0)
	out := svc.TranslateToAll(context.Background(), "bonjour", "fr", []string{"en", "ar", "fr"})
	assert.Equal(t, map[string]string{"en": "bonjour", "ar": "bonjour"}, out)
}

func TestTranslateToAllFallsBackPerTarget(t *testing.T) {
	fake := &fakeTranslator{
		fail:  map[string]bool{"fr": true},
		block: map[string]bool{"ar": true},
	}
	svc := NewService(fake, 50*time.Millisecond)
	svc.concurrency = 1

	out := svc.TranslateToAll(context.Background(), "hello", "en", []string{"en", "fr", "ar", "sw"})

	assert.Equal(t, "hello", out["fr"], "failed target keeps original")
	assert.Equal(t, "hello", out["ar"], "timed out target keeps original")
	assert.Equal(t, "[sw] hello", out["sw"])
	assert.NotContains(t, out, "en")
}
