package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nicklasc86/travelbot/internal/domain/enums"
	"github.com/nicklasc86/travelbot/internal/domain/model"
	"github.com/nicklasc86/travelbot/internal/services/screening"
)

const bangkokTip = "Thai beach in Bangkok is nice for families"

func TestIngestRejectsEmptyTextBeforeAnyCall(t *testing.T) {
	h := newHarness(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := h.svc.Ingest(context.Background(), text)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation for %q, got %v", text, err)
		}
	}

	if h.classifier.calls != 0 || h.extractor.calls != 0 || h.embedder.calls != 0 || len(h.index.upserts) != 0 {
		t.Fatalf("validation failure must not reach collaborators")
	}
	if h.ids != 0 {
		t.Fatalf("validation failure must not allocate an id")
	}
}

func TestIngestQueuesFlaggedTipWithoutFurtherCalls(t *testing.T) {
	h := newHarness(t)
	h.classifier.result = screening.Result{
		Flagged:        true,
		CategoryScores: map[string]float64{"violence": 0.9},
		Raw:            []byte(`{"flagged":true,"category_scores":{"violence":0.9}}`),
	}

	res, err := h.svc.Ingest(context.Background(), "something violent")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	assertReviewNeeded(t, res, enums.ReviewReasonFlaggedByModeration)
	if res.Attributes != nil {
		t.Fatalf("flagged result must not carry attributes: %+v", res.Attributes)
	}
	if h.extractor.calls != 0 || h.embedder.calls != 0 || len(h.index.upserts) != 0 {
		t.Fatalf("flagged tip must stop the pipeline: extract=%d embed=%d upserts=%d",
			h.extractor.calls, h.embedder.calls, len(h.index.upserts))
	}

	tip, ok := h.store.pending[res.ID]
	if !ok {
		t.Fatalf("expected %s in pending store", res.ID)
	}
	if tip.City != nil || tip.Country != nil || tip.Confidence != nil {
		t.Fatalf("flagged tip must have null attributes: %+v", tip)
	}
	if string(tip.ModerationResult) != `{"flagged":true,"category_scores":{"violence":0.9}}` {
		t.Fatalf("moderation payload must be stored verbatim, got %s", tip.ModerationResult)
	}
	if len(h.notifier.queued) != 1 {
		t.Fatalf("expected one queue notification, got %d", len(h.notifier.queued))
	}
}

func TestIngestCategoryThresholdIsInclusive(t *testing.T) {
	tests := []struct {
		name    string
		scores  map[string]float64
		flagged bool
	}{
		{name: "violence at threshold", scores: map[string]float64{"violence": 0.3}, flagged: true},
		{name: "sexual above threshold", scores: map[string]float64{"sexual": 0.31}, flagged: true},
		{name: "just below", scores: map[string]float64{"violence": 0.29, "sexual": 0.299}, flagged: false},
		{name: "unwatched category", scores: map[string]float64{"hate": 0.99}, flagged: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.classifier.result = screening.Result{CategoryScores: tt.scores, Raw: []byte(`{}`)}
			h.extractor.loc = model.Location{City: "Bangkok", Country: "Thailand", Confidence: 0.92}

			res, err := h.svc.Ingest(context.Background(), bangkokTip)
			if err != nil {
				t.Fatalf("ingest: %v", err)
			}

			if tt.flagged {
				assertReviewNeeded(t, res, enums.ReviewReasonFlaggedByModeration)
				if len(h.index.upserts) != 0 {
					t.Fatalf("index must not be called for flagged tips")
				}
				return
			}
			if res.Status != enums.IngestStatusApproved {
				t.Fatalf("expected approved, got %+v", res)
			}
		})
	}
}

func TestIngestQueuesLowConfidenceWithExtractedAttributes(t *testing.T) {
	h := newHarness(t)
	h.extractor.loc = model.Location{City: "Unknown", Country: "Thailand", Confidence: 0.4}

	res, err := h.svc.Ingest(context.Background(), bangkokTip)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	assertReviewNeeded(t, res, enums.ReviewReasonLowMetadataConfidence)
	if res.Attributes == nil || *res.Attributes != h.extractor.loc {
		t.Fatalf("attributes must equal extractor output, got %+v", res.Attributes)
	}
	if h.embedder.calls != 0 || len(h.index.upserts) != 0 {
		t.Fatalf("low confidence tip must not be embedded or indexed")
	}

	tip := h.store.pending[res.ID]
	if tip.City == nil || *tip.City != "Unknown" || tip.Confidence == nil || *tip.Confidence != 0.4 {
		t.Fatalf("unexpected stored attributes: %+v", tip)
	}
	if len(tip.ModerationResult) != 0 {
		t.Fatalf("moderation payload is only stored for flagged tips")
	}
}

func TestIngestConfidenceBoundary(t *testing.T) {
	tests := []struct {
		confidence float64
		want       enums.IngestStatus
	}{
		{confidence: 0.75, want: enums.IngestStatusApproved},
		{confidence: 0.7499, want: enums.IngestStatusReviewNeeded},
		{confidence: 1, want: enums.IngestStatusApproved},
		{confidence: 0, want: enums.IngestStatusReviewNeeded},
	}

	for _, tt := range tests {
		h := newHarness(t)
		h.extractor.loc = model.Location{City: "Bangkok", Country: "Thailand", Confidence: tt.confidence}

		res, err := h.svc.Ingest(context.Background(), bangkokTip)
		if err != nil {
			t.Fatalf("ingest with confidence %v: %v", tt.confidence, err)
		}
		if res.Status != tt.want {
			t.Fatalf("confidence %v: got %s want %s", tt.confidence, res.Status, tt.want)
		}
	}
}

func TestIngestPublishesBangkokTip(t *testing.T) {
	h := newHarness(t)
	h.extractor.loc = model.Location{City: "Bangkok", Country: "Thailand", Confidence: 0.92}

	res, err := h.svc.Ingest(context.Background(), bangkokTip)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if res.Status != enums.IngestStatusApproved || res.Reason != nil {
		t.Fatalf("expected approved without reason, got %+v", res)
	}
	if res.ID == "" {
		t.Fatalf("expected tip id")
	}
	if res.Attributes == nil || res.Attributes.City != "Bangkok" || res.Attributes.Country != "Thailand" {
		t.Fatalf("unexpected attributes: %+v", res.Attributes)
	}

	if len(h.index.upserts) != 1 {
		t.Fatalf("expected exactly one upsert, got %d", len(h.index.upserts))
	}
	up := h.index.upserts[0]
	if up.id != res.ID {
		t.Fatalf("upsert id mismatch: %s vs %s", up.id, res.ID)
	}
	wantMeta := model.VectorMetadata{City: "Bangkok", Country: "Thailand", Text: bangkokTip}
	if up.meta != wantMeta {
		t.Fatalf("unexpected metadata: %+v", up.meta)
	}

	approved, ok := h.store.approved[res.ID]
	if !ok {
		t.Fatalf("expected %s in approved store", res.ID)
	}
	if approved.Confidence == nil || *approved.Confidence != 0.92 {
		t.Fatalf("unexpected approved confidence: %v", approved.Confidence)
	}
	if _, queued := h.store.pending[res.ID]; queued {
		t.Fatalf("published tip must not be queued")
	}
	if len(h.notifier.queued) != 0 {
		t.Fatalf("published tip must not notify moderators")
	}
}

func TestIngestIndexFailureSkipsApprovedWrite(t *testing.T) {
	h := newHarness(t)
	h.extractor.loc = model.Location{City: "Bangkok", Country: "Thailand", Confidence: 0.92}
	h.index.err = errors.New("index unavailable")

	_, err := h.svc.Ingest(context.Background(), bangkokTip)
	assertUpstream(t, err, StageIndex)

	if len(h.store.approved) != 0 || len(h.store.pending) != 0 {
		t.Fatalf("failed ingestion must leave no trace: approved=%d pending=%d", len(h.store.approved), len(h.store.pending))
	}
}

func TestIngestUpstreamFailuresCarryStage(t *testing.T) {
	boom := errors.New("boom")

	t.Run("screen", func(t *testing.T) {
		h := newHarness(t)
		h.classifier.err = boom
		_, err := h.svc.Ingest(context.Background(), bangkokTip)
		assertUpstream(t, err, StageScreen)
		if !errors.Is(err, boom) {
			t.Fatalf("expected wrapped cause, got %v", err)
		}
		if h.extractor.calls != 0 {
			t.Fatalf("screen failure must stop the pipeline")
		}
	})

	t.Run("extract", func(t *testing.T) {
		h := newHarness(t)
		h.extractor.err = boom
		_, err := h.svc.Ingest(context.Background(), bangkokTip)
		assertUpstream(t, err, StageExtract)
		if len(h.store.pending) != 0 {
			t.Fatalf("extract transport failure must not queue the tip")
		}
	})

	t.Run("embed", func(t *testing.T) {
		h := newHarness(t)
		h.extractor.loc = model.Location{City: "Bangkok", Country: "Thailand", Confidence: 0.9}
		h.embedder.err = boom
		_, err := h.svc.Ingest(context.Background(), bangkokTip)
		assertUpstream(t, err, StageEmbed)
		if len(h.index.upserts) != 0 {
			t.Fatalf("embed failure must not index")
		}
	})

	t.Run("store", func(t *testing.T) {
		h := newHarness(t)
		h.store.pendingErr = boom
		_, err := h.svc.Ingest(context.Background(), bangkokTip)
		assertUpstream(t, err, StageStore)
		if len(h.notifier.queued) != 0 {
			t.Fatalf("failed queue insert must not notify")
		}
	})
}

func TestIngestBoundsUpstreamCalls(t *testing.T) {
	h := newHarness(t)
	h.classifier.block = true

	svc, err := NewService(h.deps(), Config{ConfidenceThreshold: 0.75, UpstreamTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.Ingest(context.Background(), bangkokTip)
	assertUpstream(t, err, StageScreen)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if len(h.store.pending) != 0 {
		t.Fatalf("timed out ingestion must not queue the tip")
	}
}

func TestIngestNotifierFailureDoesNotFailIngestion(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("telegram down")

	res, err := h.svc.Ingest(context.Background(), bangkokTip)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	assertReviewNeeded(t, res, enums.ReviewReasonLowMetadataConfidence)
}

func TestNewServiceValidatesConfig(t *testing.T) {
	h := newHarness(t)

	if _, err := NewService(h.deps(), Config{ConfidenceThreshold: 1.2}); err == nil {
		t.Fatalf("expected error for threshold above 1")
	}

	deps := h.deps()
	deps.Index = nil
	if _, err := NewService(deps, Config{ConfidenceThreshold: 0.75}); err == nil {
		t.Fatalf("expected error for missing index")
	}
}

func assertReviewNeeded(t *testing.T, res Result, reason enums.ReviewReason) {
	t.Helper()
	if res.Status != enums.IngestStatusReviewNeeded {
		t.Fatalf("expected review_needed, got %s", res.Status)
	}
	if res.Reason == nil || *res.Reason != reason {
		t.Fatalf("expected reason %s, got %v", reason, res.Reason)
	}
	if res.ID == "" {
		t.Fatalf("expected queued tip id")
	}
}

func assertUpstream(t *testing.T, err error, stage Stage) {
	t.Helper()
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.Stage != stage {
		t.Fatalf("expected stage %s, got %s", stage, upstream.Stage)
	}
}

type harness struct {
	svc        *Service
	classifier *fakeClassifier
	extractor  *fakeExtractor
	embedder   *fakeEmbedder
	index      *fakeIndex
	store      *fakeStore
	notifier   *fakeNotifier
	ids        int
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		classifier: &fakeClassifier{result: screening.Result{CategoryScores: map[string]float64{}, Raw: []byte(`{}`)}},
		extractor:  &fakeExtractor{loc: model.Location{City: "Unknown", Country: "Unknown", Confidence: 0}},
		embedder:   &fakeEmbedder{vector: []float32{0.1, 0.2, 0.3}},
		index:      &fakeIndex{},
		store:      newFakeStore(),
		notifier:   &fakeNotifier{},
	}

	svc, err := NewService(h.deps(), Config{ConfidenceThreshold: DefaultConfidenceThreshold})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.newID = func() string {
		h.ids++
		return "tip-test-" + string(rune('a'+h.ids))
	}
	h.svc = svc
	return h
}

func (h *harness) deps() Dependencies {
	return Dependencies{
		Classifier: h.classifier,
		Policy:     screening.NewPolicy(map[string]float64{"violence": 0.3, "sexual": 0.3}),
		Extractor:  h.extractor,
		Embedder:   h.embedder,
		Index:      h.index,
		Store:      h.store,
		Notifier:   h.notifier,
	}
}

type fakeClassifier struct {
	result screening.Result
	err    error
	block  bool
	calls  int
}

func (f *fakeClassifier) Classify(ctx context.Context, _ string) (screening.Result, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return screening.Result{}, ctx.Err()
	}
	return f.result, f.err
}

type fakeExtractor struct {
	loc   model.Location
	err   error
	calls int
}

func (f *fakeExtractor) Extract(context.Context, string) (model.Location, error) {
	f.calls++
	return f.loc, f.err
}

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

type upsertCall struct {
	id     string
	vector []float32
	meta   model.VectorMetadata
}

type fakeIndex struct {
	upserts []upsertCall
	err     error
}

func (f *fakeIndex) Upsert(_ context.Context, id string, values []float32, meta model.VectorMetadata) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, upsertCall{id: id, vector: values, meta: meta})
	return nil
}

type fakeStore struct {
	mu         sync.Mutex
	pending    map[string]model.Tip
	approved   map[string]model.ApprovedTip
	pendingErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pending:  map[string]model.Tip{},
		approved: map[string]model.ApprovedTip{},
	}
}

func (f *fakeStore) InsertPending(_ context.Context, tip model.Tip) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingErr != nil {
		return f.pendingErr
	}
	if _, exists := f.pending[tip.ID]; !exists {
		f.pending[tip.ID] = tip
	}
	return nil
}

func (f *fakeStore) InsertApproved(_ context.Context, tip model.ApprovedTip) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.approved[tip.ID]; !exists {
		f.approved[tip.ID] = tip
	}
	return nil
}

type fakeNotifier struct {
	queued []model.Tip
	err    error
}

func (f *fakeNotifier) NotifyQueued(_ context.Context, tip model.Tip) error {
	if f.err != nil {
		return f.err
	}
	f.queued = append(f.queued, tip)
	return nil
}
