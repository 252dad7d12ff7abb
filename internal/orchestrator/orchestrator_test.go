package orchestrator_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"pdftranslate/internal/cache"
	"pdftranslate/internal/document"
	"pdftranslate/internal/llm"
	"pdftranslate/internal/orchestrator"
	"pdftranslate/internal/qa"
)

// fakeClient scripts endpoint responses per call index.
type fakeClient struct {
	mu      sync.Mutex
	calls   int
	lastMsg []llm.Message
	respond func(call int, messages []llm.Message) (string, error)
}

func (f *fakeClient) ChatCompletion(ctx context.Context, messages []llm.Message, opts llm.CallOptions) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.lastMsg = messages
	f.mu.Unlock()
	return f.respond(call, messages)
}

func (f *fakeClient) Completion(ctx context.Context, prompt string, opts llm.CallOptions) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeClient) ListModels(ctx context.Context) ([]string, error) {
	return []string{"test-model"}, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func openTestStore(t *testing.T) *cache.Store {
	t.Helper()
	fp := cache.Fingerprint{
		InputPath:  "/tmp/in.pdf",
		OutputPath: "/tmp/out.pdf",
		ChunkSize:  2000,
		Model:      "test-model",
	}
	s, err := cache.Open(filepath.Join(t.TempDir(), "out.pdf.cache.db"), fp, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testConfig() orchestrator.Config {
	return orchestrator.Config{
		SourceLang:     "English",
		TargetLang:     "Chinese",
		MaxAttempts:    3,
		NetworkRetries: 2,
		RetryBackoff:   time.Millisecond,
		RequestDelay:   -1,
	}
}

func newTestOrchestrator(t *testing.T, client llm.Client, store *cache.Store) *orchestrator.Orchestrator {
	t.Helper()
	analyzer := qa.New("English", "Chinese", 0)
	return orchestrator.New(client, store, analyzer, testConfig(), zap.NewNop())
}

func singleChunk(text string) []document.Chunk {
	return []document.Chunk{{ID: document.ChunkID{Page: 1, Seq: 0}, Text: text}}
}

func TestRun_PassesFirstAttempt(t *testing.T) {
	client := &fakeClient{respond: func(call int, _ []llm.Message) (string, error) {
		return "猫坐在垫子上。", nil
	}}
	o := newTestOrchestrator(t, client, openTestStore(t))

	results, summary, err := o.Run(context.Background(), singleChunk("The cat sat on the mat."))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	res := results[document.ChunkID{Page: 1, Seq: 0}]
	if res.State != document.StateVerified {
		t.Errorf("expected verified, got %v with flags %v", res.State, res.Flags)
	}
	if res.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", res.Attempts)
	}
	if client.callCount() != 1 {
		t.Errorf("expected 1 endpoint call, got %d", client.callCount())
	}
	if summary.Verified != 1 || summary.Failed != 0 {
		t.Errorf("summary mismatch: %+v", summary)
	}
}

func TestRun_CorrectiveRetrySucceeds(t *testing.T) {
	// Two empty responses fail QA, the third passes.
	client := &fakeClient{respond: func(call int, _ []llm.Message) (string, error) {
		if call < 3 {
			return "", nil
		}
		return "猫坐在垫子上。", nil
	}}
	o := newTestOrchestrator(t, client, openTestStore(t))

	results, _, err := o.Run(context.Background(), singleChunk("The cat sat on the mat."))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	res := results[document.ChunkID{Page: 1, Seq: 0}]
	if res.State != document.StateVerified {
		t.Errorf("expected verified after corrective retries, got %v", res.State)
	}
	if res.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", res.Attempts)
	}
	if len(res.Flags) != 0 {
		t.Errorf("verified result must carry no flags, got %v", res.Flags)
	}
}

func TestRun_CorrectivePromptCarriesIssues(t *testing.T) {
	var secondPrompt string
	client := &fakeClient{respond: func(call int, messages []llm.Message) (string, error) {
		if call == 2 {
			secondPrompt = messages[len(messages)-1].Content
		}
		if call == 1 {
			return "", nil
		}
		return "猫坐在垫子上。", nil
	}}
	o := newTestOrchestrator(t, client, openTestStore(t))

	if _, _, err := o.Run(context.Background(), singleChunk("The cat sat on the mat.")); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(secondPrompt, "empty") {
		t.Errorf("corrective prompt should list the detected issue, got %q", secondPrompt)
	}
	if !strings.Contains(secondPrompt, "The cat sat on the mat.") {
		t.Errorf("corrective prompt should repeat the source text, got %q", secondPrompt)
	}
}

func TestRun_ExhaustedAttemptsFailNonFatally(t *testing.T) {
	src := "This text was never translated properly at all."
	client := &fakeClient{respond: func(call int, _ []llm.Message) (string, error) {
		return src, nil // echoes the source every time
	}}
	o := newTestOrchestrator(t, client, openTestStore(t))

	results, summary, err := o.Run(context.Background(), singleChunk(src))
	if err != nil {
		t.Fatalf("quality failure must not abort the run: %v", err)
	}

	res := results[document.ChunkID{Page: 1, Seq: 0}]
	if res.State != document.StateFailed {
		t.Errorf("expected failed state, got %v", res.State)
	}
	if res.Attempts != 3 {
		t.Errorf("expected full attempt budget, got %d", res.Attempts)
	}
	if len(res.Flags) == 0 {
		t.Error("failed result should record its quality flags")
	}
	if summary.Failed != 1 {
		t.Errorf("summary mismatch: %+v", summary)
	}
}

func TestRun_CachedVerifiedChunkSkipsEndpoint(t *testing.T) {
	store := openTestStore(t)
	src := "The cat sat on the mat."
	id := document.ChunkID{Page: 1, Seq: 0}
	if err := store.Put(context.Background(), document.TranslationResult{
		ID:         id,
		SourceHash: cache.HashText(src),
		Text:       "猫坐在垫子上。",
		Attempts:   1,
		State:      document.StateVerified,
	}); err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{respond: func(int, []llm.Message) (string, error) {
		return "should never be called", nil
	}}
	o := newTestOrchestrator(t, client, store)

	results, summary, err := o.Run(context.Background(), singleChunk(src))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if client.callCount() != 0 {
		t.Errorf("cached chunk must not hit the endpoint, got %d calls", client.callCount())
	}
	if results[id].Text != "猫坐在垫子上。" {
		t.Errorf("cached translation not reused: %+v", results[id])
	}
	if summary.Cached != 1 {
		t.Errorf("summary mismatch: %+v", summary)
	}
}

func TestRun_CachedEntryWithStaleHashRetranslates(t *testing.T) {
	store := openTestStore(t)
	id := document.ChunkID{Page: 1, Seq: 0}
	if err := store.Put(context.Background(), document.TranslationResult{
		ID:         id,
		SourceHash: cache.HashText("old source text"),
		Text:       "旧译文",
		Attempts:   1,
		State:      document.StateVerified,
	}); err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{respond: func(int, []llm.Message) (string, error) {
		return "猫坐在垫子上。", nil
	}}
	o := newTestOrchestrator(t, client, store)

	results, _, err := o.Run(context.Background(), singleChunk("The cat sat on the mat."))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if client.callCount() != 1 {
		t.Errorf("stale cache entry must be retranslated, got %d calls", client.callCount())
	}
	if results[id].Text != "猫坐在垫子上。" {
		t.Errorf("stale translation not replaced: %+v", results[id])
	}
}

func TestRun_NetworkFailureIsNonFatal(t *testing.T) {
	client := &fakeClient{respond: func(int, []llm.Message) (string, error) {
		return "", &llm.NetworkError{Op: "chat completion", Err: errors.New("connection refused")}
	}}
	o := newTestOrchestrator(t, client, openTestStore(t))

	results, summary, err := o.Run(context.Background(), singleChunk("The cat sat on the mat."))
	if err != nil {
		t.Fatalf("network failure must not abort the run: %v", err)
	}

	res := results[document.ChunkID{Page: 1, Seq: 0}]
	if res.State != document.StateFailed {
		t.Errorf("expected failed state, got %v", res.State)
	}
	found := false
	for _, f := range res.Flags {
		if f == orchestrator.FlagNetworkError {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s flag, got %v", orchestrator.FlagNetworkError, res.Flags)
	}
	// NetworkRetries=2 means two tries for the single logical request.
	if client.callCount() != 2 {
		t.Errorf("expected 2 endpoint tries, got %d", client.callCount())
	}
	if summary.Failed != 1 {
		t.Errorf("summary mismatch: %+v", summary)
	}
}

func TestRun_ResultsPersistToCache(t *testing.T) {
	store := openTestStore(t)
	client := &fakeClient{respond: func(int, []llm.Message) (string, error) {
		return "猫坐在垫子上。", nil
	}}
	o := newTestOrchestrator(t, client, store)

	if _, _, err := o.Run(context.Background(), singleChunk("The cat sat on the mat.")); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	persisted, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	res, ok := persisted[document.ChunkID{Page: 1, Seq: 0}]
	if !ok || res.State != document.StateVerified {
		t.Errorf("verified result not persisted: %+v", persisted)
	}
}

// failingStore accepts loads but rejects every write.
type failingStore struct {
	*cache.Store
}

func (s *failingStore) Put(ctx context.Context, r document.TranslationResult) error {
	return errors.New("disk full")
}

func TestRun_PersistFailureAbortsRun(t *testing.T) {
	client := &fakeClient{respond: func(int, []llm.Message) (string, error) {
		return "猫坐在垫子上。", nil
	}}
	store := &failingStore{Store: openTestStore(t)}
	analyzer := qa.New("English", "Chinese", 0)
	o := orchestrator.New(client, store, analyzer, testConfig(), zap.NewNop())

	_, _, err := o.Run(context.Background(), singleChunk("The cat sat on the mat."))
	if err == nil {
		t.Fatal("a failed cache write must abort the run")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("error should carry the store failure, got %v", err)
	}
}

func TestRun_MultipleChunksConcurrent(t *testing.T) {
	client := &fakeClient{respond: func(int, []llm.Message) (string, error) {
		return "猫坐在垫子上。", nil
	}}
	analyzer := qa.New("English", "Chinese", 0)
	cfg := testConfig()
	cfg.Concurrency = 4
	o := orchestrator.New(client, openTestStore(t), analyzer, cfg, zap.NewNop())

	chunks := []document.Chunk{
		{ID: document.ChunkID{Page: 1, Seq: 0}, Text: "First sentence here."},
		{ID: document.ChunkID{Page: 1, Seq: 1}, Text: "Second sentence here."},
		{ID: document.ChunkID{Page: 2, Seq: 0}, Text: "Third sentence here."},
	}
	results, summary, err := o.Run(context.Background(), chunks)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(results) != 3 || summary.Verified != 3 {
		t.Errorf("expected all 3 chunks verified, got %d results, summary %+v", len(results), summary)
	}
}
