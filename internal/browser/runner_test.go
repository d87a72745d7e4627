// internal/browser/runner_test.go
package browser

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/config"
	"github.com/webpilot-ai/webpilot/internal/contextmgr"
	"github.com/webpilot-ai/webpilot/internal/selectorcache"
)

// fakePageExecutor serves canned page results keyed by a script substring.
type fakePageExecutor struct {
	results map[string]schemas.PageResult
	scripts []string
}

func (f *fakePageExecutor) Execute(_ context.Context, script string, _ schemas.ExecOptions) (schemas.PageResult, error) {
	f.scripts = append(f.scripts, script)
	for marker, result := range f.results {
		if marker == "" || strings.Contains(script, marker) {
			return result, nil
		}
	}
	return schemas.PageResult{Success: true}, nil
}

func testRunner(exec schemas.PageExecutor, cache *selectorcache.Cache) *PlanRunner {
	return &PlanRunner{
		exec:          exec,
		cache:         cache,
		logger:        zap.NewNop(),
		actionTimeout: time.Second,
		lastURL:       "https://example.com/login",
	}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		command string
		verb    string
		args    string
	}{
		{"navigate https://example.com", "navigate", "https://example.com"},
		{"type #q mechanical keyboards", "type", "#q mechanical keyboards"},
		{"  Click   #login", "click", "#login"},
		{"wait 500", "wait", "500"},
		{"extract", "extract", ""},
	}
	for _, tc := range cases {
		verb, args := ParseCommand(tc.command)
		assert.Equal(t, tc.verb, verb)
		assert.Equal(t, tc.args, args)
	}
}

func TestExtractReturnsPayload(t *testing.T) {
	exec := &fakePageExecutor{results: map[string]schemas.PageResult{
		"querySelectorAll": {Success: true, Result: []interface{}{"first", "second"}},
	}}
	r := testRunner(exec, nil)

	out, err := r.Run(context.Background(), "extract .headline")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, []interface{}{"first", "second"}, out.Payload)
	assert.Contains(t, exec.scripts[0], `".headline"`)
}

func TestExtractDefaultsToBody(t *testing.T) {
	exec := &fakePageExecutor{}
	r := testRunner(exec, nil)

	_, err := r.Run(context.Background(), "extract")
	require.NoError(t, err)
	assert.Contains(t, exec.scripts[0], `"body"`)
}

func TestScrollDirections(t *testing.T) {
	exec := &fakePageExecutor{}
	r := testRunner(exec, nil)

	for _, dir := range []string{"up", "down", "bottom"} {
		out, err := r.Run(context.Background(), "scroll "+dir)
		require.NoError(t, err)
		assert.True(t, out.Success)
	}

	_, err := r.Run(context.Background(), "scroll sideways")
	assert.Error(t, err)
}

func TestWaitValidatesDuration(t *testing.T) {
	r := testRunner(&fakePageExecutor{}, nil)

	out, err := r.Run(context.Background(), "wait 10")
	require.NoError(t, err)
	assert.True(t, out.Success)

	_, err = r.Run(context.Background(), "wait soon")
	assert.Error(t, err)
}

func TestUnknownVerbIsAnError(t *testing.T) {
	r := testRunner(&fakePageExecutor{}, nil)
	_, err := r.Run(context.Background(), "teleport mars")
	assert.Error(t, err)
}

func TestExecuteFreeFormWithoutGenerator(t *testing.T) {
	r := testRunner(&fakePageExecutor{}, nil)

	out, err := r.Run(context.Background(), "execute press the big red button")
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "no code generator")
}

func TestSelectorUseFeedsCache(t *testing.T) {
	cache := selectorcache.NewCache(zap.NewNop(), config.CacheConfig{TTL: time.Hour, PrefetchThreshold: 3})
	r := testRunner(&fakePageExecutor{}, cache)

	r.recordSelectorUse("#login", true)

	key := selectorcache.Key{Domain: "example.com", URLPattern: "/login", ElementKey: "#login"}
	got, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, "#login", got.Primary)
	assert.Equal(t, 1, got.SuccessCount)
}

func TestSelectorFailureWithoutEntryIsNotCached(t *testing.T) {
	cache := selectorcache.NewCache(zap.NewNop(), config.CacheConfig{TTL: time.Hour, PrefetchThreshold: 3})
	r := testRunner(&fakePageExecutor{}, cache)

	r.recordSelectorUse("#missing", false)

	_, ok := cache.Get(selectorcache.Key{Domain: "example.com", URLPattern: "/login", ElementKey: "#missing"})
	assert.False(t, ok, "a selector that never worked earns no cache entry")
}

func TestWithHealingPromotesWorkingAlternative(t *testing.T) {
	cache := selectorcache.NewCache(zap.NewNop(), config.CacheConfig{TTL: time.Hour})
	key := selectorcache.Key{Domain: "example.com", URLPattern: "/login", ElementKey: "#submit"}
	cache.Put(key, "#submit", []string{`[data-testid="submit"]`, ".submit"})
	cache.RecordOutcome(key, true)

	r := testRunner(&fakePageExecutor{}, cache)

	var tried []string
	used, err := r.withHealing(context.Background(), "#submit", func(_ context.Context, sel string) error {
		tried = append(tried, sel)
		if sel == `[data-testid="submit"]` {
			return nil
		}
		return errors.New("element not found")
	})
	require.NoError(t, err)
	assert.Equal(t, `[data-testid="submit"]`, used)
	assert.Equal(t, []string{"#submit", `[data-testid="submit"]`}, tried)

	got, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, `[data-testid="submit"]`, got.Primary, "working alternative becomes primary")
	assert.Equal(t, 1, got.SuccessCount)
	assert.Equal(t, 0, got.FailureCount)
	assert.Contains(t, got.Alternatives, "#submit", "displaced primary stays in the chain")
}

func TestWithHealingExhaustionReturnsOriginalError(t *testing.T) {
	cache := selectorcache.NewCache(zap.NewNop(), config.CacheConfig{TTL: time.Hour})
	key := selectorcache.Key{Domain: "example.com", URLPattern: "/login", ElementKey: "#submit"}
	cache.Put(key, "#submit", []string{".submit"})
	cache.RecordOutcome(key, true)

	r := testRunner(&fakePageExecutor{}, cache)

	boom := errors.New("element not found: #submit")
	used, err := r.withHealing(context.Background(), "#submit", func(_ context.Context, sel string) error {
		return boom
	})
	assert.Equal(t, "#submit", used)
	assert.ErrorIs(t, err, boom)

	_, ok := cache.Get(key)
	assert.False(t, ok, "an entry with no working alternative is evicted")
}

func TestWithHealingUncachedSelectorFailsThrough(t *testing.T) {
	r := testRunner(&fakePageExecutor{}, selectorcache.NewCache(zap.NewNop(), config.CacheConfig{TTL: time.Hour}))

	calls := 0
	boom := errors.New("element not found")
	_, err := r.withHealing(context.Background(), "#never-seen", func(_ context.Context, _ string) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "no healing attempts without a cache entry")
}

func TestNewEntriesSeedHealingChain(t *testing.T) {
	cache := selectorcache.NewCache(zap.NewNop(), config.CacheConfig{TTL: time.Hour})
	r := testRunner(&fakePageExecutor{}, cache)

	r.recordSelectorUse("#login", true)

	got, ok := cache.Get(selectorcache.Key{Domain: "example.com", URLPattern: "/login", ElementKey: "#login"})
	require.True(t, ok)
	assert.Contains(t, got.Alternatives, `[data-testid="login"]`)
}

func TestTruncateToTokens(t *testing.T) {
	counter := contextmgr.EstimateCounter{}

	text := "short line"
	kept, truncated := TruncateToTokens(text, 100, counter)
	assert.Equal(t, text, kept)
	assert.False(t, truncated)

	long := ""
	for i := 0; i < 50; i++ {
		long += "this is a fairly long line of page content\n"
	}
	kept, truncated = TruncateToTokens(long, 50, counter)
	assert.True(t, truncated)
	assert.LessOrEqual(t, counter.Count(kept), 50)
	assert.NotEmpty(t, kept)
}

func TestResultWrapperShape(t *testing.T) {
	assert.Contains(t, resultWrapper, "[circular]")
	assert.Contains(t, resultWrapper, "[depth-capped]")
	assert.Contains(t, resultWrapper, "%s")
}

func TestJSStringEscapes(t *testing.T) {
	assert.Equal(t, `"a\"b"`, jsString(`a"b`))
}
