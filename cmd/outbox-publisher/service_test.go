package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-inventory/pkg/config"
	"github.com/angelmondragon/marketplace-inventory/pkg/db/models"
	"github.com/angelmondragon/marketplace-inventory/pkg/enums"
	"github.com/angelmondragon/marketplace-inventory/pkg/logger"
	"github.com/angelmondragon/marketplace-inventory/pkg/outbox"
	"github.com/angelmondragon/marketplace-inventory/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-inventory/pkg/outbox/registry"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			inventoryEvent(t, enums.EventInventoryRestocked, "event-one"),
			inventoryEvent(t, enums.EventInventoryLowStock, "event-two"),
		},
	}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	eventRegistry := &fakeRegistry{resolved: inventoryResolved(&payloads.InventoryLowStockEvent{})}
	service := newTestService(t, repo, pub, eventRegistry, &fakeDLQRepo{}, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(repo.failed); got != 1 {
		t.Fatalf("unexpected number of failed rows: %d", got)
	}
	if got := len(repo.published); got != 1 {
		t.Fatalf("unexpected number of published rows: %d", got)
	}
	if repo.failed[0] != repo.events[0].ID {
		t.Fatalf("failed row recorded wrong ID")
	}
	if repo.published[0] != repo.events[1].ID {
		t.Fatalf("published row recorded wrong ID")
	}
}

func TestPublishResolvedSetsAttributes(t *testing.T) {
	storeID := uuid.New()
	event := inventoryEvent(t, enums.EventInventoryRestocked, "attrs")
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	eventRegistry := &fakeRegistry{resolved: inventoryResolved(&payloads.InventoryRestockedEvent{StoreID: storeID})}
	service := newTestService(t, &fakeRepo{events: []models.OutboxEvent{event}}, pub, eventRegistry, &fakeDLQRepo{}, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.messages))
	}
	attrs := pub.messages[0].Attributes
	if attrs["event_type"] != string(enums.EventInventoryRestocked) {
		t.Fatalf("unexpected event_type %q", attrs["event_type"])
	}
	if attrs["aggregate_id"] != event.AggregateID.String() {
		t.Fatalf("unexpected aggregate_id %q", attrs["aggregate_id"])
	}
	if attrs["store_id"] != storeID.String() {
		t.Fatalf("unexpected store_id %q", attrs["store_id"])
	}
	if !bytes.Equal(pub.messages[0].Data, event.Payload) {
		t.Fatalf("message data must be the stored envelope")
	}
}

func TestServiceProcessBatchWritesDLQOnUndecodablePayload(t *testing.T) {
	event := inventoryEvent(t, enums.EventInventoryLowStock, "undecodable")
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	eventRegistry := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, &fakePublisher{}, eventRegistry, dlqRepo, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	entry := dlqRepo.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if entry.Payload == nil || !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq payload mismatch")
	}
	if entry.ErrorReason != enums.OutboxDLQReasonInvalidPayload {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected row marked terminal")
	}
}

func TestServiceProcessBatchWritesDLQOnMaxAttempts(t *testing.T) {
	event := inventoryEvent(t, enums.EventInventoryRestocked, "max-attempts")
	event.AttemptCount = 1
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
		},
	}
	eventRegistry := &fakeRegistry{resolved: inventoryResolved(&payloads.InventoryRestockedEvent{})}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, eventRegistry, dlqRepo, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	if dlqRepo.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected error reason: %s", dlqRepo.entries[0].ErrorReason)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("terminal rows must not be marked as retryable failures")
	}
}

func TestServiceProcessBatchMissingPublisherIsTerminal(t *testing.T) {
	event := inventoryEvent(t, enums.EventInventoryRestocked, "no-publisher")
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, &fakeRepo{events: []models.OutboxEvent{event}}, nil,
		&fakeRegistry{resolved: inventoryResolved(&payloads.InventoryRestockedEvent{})}, dlqRepo, nil)
	service.newPublisher = func(string) publisher { return nil }

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(dlqRepo.entries) != 1 || dlqRepo.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("expected non-retryable dlq entry, got %+v", dlqRepo.entries)
	}
}

func TestServiceProcessBatchDefersLaterEventsOfFailedRecord(t *testing.T) {
	restocked := inventoryEvent(t, enums.EventInventoryRestocked, "restocked")
	lowStock := inventoryEvent(t, enums.EventInventoryLowStock, "low-stock")
	lowStock.AggregateID = restocked.AggregateID
	other := inventoryEvent(t, enums.EventInventoryRestocked, "other-record")

	repo := &fakeRepo{events: []models.OutboxEvent{restocked, lowStock, other}}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("unavailable")},
			fakePublishResult{},
		},
	}
	eventRegistry := &fakeRegistry{resolved: inventoryResolved(&payloads.InventoryRestockedEvent{})}
	service := newTestService(t, repo, pub, eventRegistry, &fakeDLQRepo{}, &config.OutboxConfig{
		BatchSize:      3,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.messages) != 2 {
		t.Fatalf("expected the low stock event to be deferred, got %d publishes", len(pub.messages))
	}
	if len(repo.failed) != 1 || repo.failed[0] != restocked.ID {
		t.Fatalf("expected only the restock to be marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != other.ID {
		t.Fatalf("expected the unrelated record to publish, got %v", repo.published)
	}
}

func TestPublishSetsOrderingKeyPerRecord(t *testing.T) {
	event := inventoryEvent(t, enums.EventInventoryLowStock, "ordered")
	pub := &fakePublisher{}
	service := newTestService(t, &fakeRepo{events: []models.OutboxEvent{event}}, pub,
		&fakeRegistry{resolved: inventoryResolved(&payloads.InventoryLowStockEvent{})}, &fakeDLQRepo{}, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one publish, got %d", len(pub.messages))
	}
	want := "inventory_record:" + event.AggregateID.String()
	if got := pub.messages[0].OrderingKey; got != want {
		t.Fatalf("ordering key = %q, want %q", got, want)
	}
}

func TestPublisherForCachesPerTopic(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, nil, &fakeRegistry{}, &fakeDLQRepo{}, nil)
	built := map[string]*fakePublisher{}
	service.newPublisher = func(topic string) publisher {
		if topic == "unserved" {
			return nil
		}
		pub := &fakePublisher{}
		built[topic] = pub
		return pub
	}

	first := service.publisherFor("inventory-topic")
	if first == nil || service.publisherFor("inventory-topic") != first {
		t.Fatalf("expected the same publisher for repeated lookups")
	}
	if service.publisherFor("unserved") != nil || service.publisherFor("unserved") != nil {
		t.Fatalf("expected nil for an unserved topic")
	}
	service.publisherFor("audit-topic")
	if len(built) != 2 {
		t.Fatalf("expected one publisher per topic, got %d", len(built))
	}

	service.stopPublishers(context.Background())
	for topic, pub := range built {
		if pub.stopped != 1 {
			t.Fatalf("publisher for %s stopped %d times", topic, pub.stopped)
		}
	}
	if len(service.publishers) != 0 {
		t.Fatalf("expected cache to be cleared")
	}
}

func TestRunStopsPublishersOnCancel(t *testing.T) {
	event := inventoryEvent(t, enums.EventInventoryRestocked, "run")
	pub := &fakePublisher{}
	repo := &onceRepo{fakeRepo: fakeRepo{events: []models.OutboxEvent{event}}}
	service := newTestService(t, repo, pub,
		&fakeRegistry{resolved: inventoryResolved(&payloads.InventoryRestockedEvent{})}, &fakeDLQRepo{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	repo.onEmpty = cancel

	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one publish, got %d", len(pub.messages))
	}
	if pub.stopped != 1 {
		t.Fatalf("expected publisher stopped once, got %d", pub.stopped)
	}
}

func TestNextBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	cases := []struct {
		current time.Duration
		want    time.Duration
	}{
		{0, 200 * time.Millisecond},
		{base, 200 * time.Millisecond},
		{4 * time.Second, 8 * time.Second},
		{8 * time.Second, maxBackoff},
	}
	for _, tc := range cases {
		if got := nextBackoff(tc.current, base, maxBackoff); got != tc.want {
			t.Fatalf("nextBackoff(%s) = %s, want %s", tc.current, got, tc.want)
		}
	}
	if got := withJitter(base); got < base || got >= base+jitterWindow {
		t.Fatalf("jitter out of range: %s", got)
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, registry registryResolver, dlq dlqRepository, outboxCfgOverride *config.OutboxConfig) *Service {
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	cfg := &config.Config{
		Outbox: outboxCfg,
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logg,
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         registry,
		PublisherFactory: func(_ string) publisher { return pub },
		DLQRepository:    dlq,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func inventoryEvent(tb testing.TB, eventType enums.OutboxEventType, eventID string) models.OutboxEvent {
	tb.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateInventoryRecord,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(tb, eventID),
		CreatedAt:     time.Now().UTC(),
	}
}

func inventoryResolved(payload any) *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "inventory-topic",
			AggregateType: enums.AggregateInventoryRecord,
		},
		Payload: payload,
	}
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) ClaimPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublished(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailed(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminal(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

// onceRepo hands out its events on the first claim and calls onEmpty on the
// next one.
type onceRepo struct {
	fakeRepo
	claimed bool
	onEmpty func()
}

func (o *onceRepo) ClaimPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if o.claimed {
		if o.onEmpty != nil {
			o.onEmpty()
		}
		return nil, nil
	}
	o.claimed = true
	return o.events, nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error {
	return nil
}

func (f *fakePubSubClient) Publisher(name string) *gcppubsub.Publisher {
	return nil
}

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
	stopped  int
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return fakePublishResult{}
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

func (f *fakePublisher) Stop() {
	f.stopped++
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "server-id", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) Insert(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
