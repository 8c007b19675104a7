package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/mail-helpdesk/internal/classify"
	"github.com/spec-kit/mail-helpdesk/internal/dispatch"
	"github.com/spec-kit/mail-helpdesk/internal/domain"
	"github.com/spec-kit/mail-helpdesk/internal/drafts"
	"github.com/spec-kit/mail-helpdesk/internal/errorqueue"
	"github.com/spec-kit/mail-helpdesk/internal/events"
	"github.com/spec-kit/mail-helpdesk/internal/idempotency"
	"github.com/spec-kit/mail-helpdesk/internal/memory"
	"github.com/spec-kit/mail-helpdesk/internal/observability"
	"github.com/spec-kit/mail-helpdesk/internal/parser"
	"github.com/spec-kit/mail-helpdesk/internal/resilience"
	"github.com/spec-kit/mail-helpdesk/internal/resolution"
	"github.com/spec-kit/mail-helpdesk/internal/tickets"
	"github.com/spec-kit/mail-helpdesk/pkg/util"
)

type stubClassifier struct {
	cls   domain.Classification
	err   error
	calls int
}

func (s *stubClassifier) Classify(context.Context, domain.ParsedMessage, []domain.Turn) (domain.Classification, error) {
	s.calls++
	if s.err != nil {
		return domain.Classification{}, s.err
	}
	return s.cls, nil
}

type stubDrafter struct {
	mu       sync.Mutex
	requests []drafts.Request
	err      error
}

func (s *stubDrafter) CreateDraft(_ context.Context, req drafts.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.requests = append(s.requests, req)
	return fmt.Sprintf("draft-%d", len(s.requests)), nil
}

func (s *stubDrafter) created() []drafts.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]drafts.Request(nil), s.requests...)
}

type stubNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *stubNotifier) Notify(_ context.Context, _, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

type fixture struct {
	proc     *Processor
	idem     *idempotency.MemoryStore
	tickets  *tickets.MemoryStore
	log      *memory.InMemoryLog
	errq     *errorqueue.MemoryQueue
	drafter  *stubDrafter
	notifier *stubNotifier
	events   events.Dispatcher
	metrics  *observability.Metrics
}

func fastInvoker(name string) *resilience.Invoker {
	return resilience.NewInvoker(name, resilience.Config{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}, zap.NewNop())
}

func newFixture(classifier classify.Classifier, drafter *stubDrafter, store tickets.Store) *fixture {
	logger := zap.NewNop()
	f := &fixture{
		idem:     idempotency.NewMemoryStore(time.Hour),
		log:      memory.NewInMemoryLog(),
		errq:     errorqueue.NewMemoryQueue(),
		drafter:  drafter,
		notifier: &stubNotifier{},
		events:   events.NewInMemoryDispatcher(logger),
		metrics:  observability.NewMetrics(),
	}
	if mem, ok := store.(*tickets.MemoryStore); ok {
		f.tickets = mem
	}

	fallback := dispatch.NewEscalationHandler(f.notifier, fastInvoker("notify"), "support")
	router := dispatch.NewRouter(fallback, 0.5, logger)
	router.Register(domain.IntentBankStatement, dispatch.NewBankStatementHandler())
	router.Register(domain.IntentPasswordUpdate, dispatch.NewPasswordUpdateHandler())
	router.Register(domain.IntentUrgentHuman, fallback)
	router.Register(domain.IntentFallbackHuman, fallback)

	resolver := resolution.NewEngine(store, fastInvoker("tickets"), resolution.Config{}, logger)

	f.proc = NewProcessor(Deps{
		Idempotency:        f.idem,
		IdempotencyInvoker: fastInvoker("idempotency"),
		Parser:             parser.New(),
		Classifier:         classifier,
		ClassifierInvoker:  fastInvoker("classifier"),
		Resolver:           resolver,
		Memory:             f.log,
		MemoryInvoker:      fastInvoker("memory"),
		Router:             router,
		Drafts:             f.drafter,
		DraftsInvoker:      fastInvoker("drafts"),
		ErrorQueue:         f.errq,
		Events:             f.events,
		Metrics:            f.metrics,
		Logger:             logger,
	})
	return f
}

func emailEvent(sourceID, sender, subject, body string) domain.IngestionEvent {
	payload := fmt.Sprintf(`{"id":%q,"sender":%q,"subject":%q,"body":%q,"received_at":%q}`,
		sourceID, sender, subject, body, time.Now().UTC().Format(time.RFC3339))
	return domain.IngestionEvent{SourceID: sourceID, RawPayload: []byte(payload), ReceivedAt: time.Now().UTC()}
}

func TestProcessorHappyPath(t *testing.T) {
	classifier := &stubClassifier{cls: domain.Classification{
		Intent:     domain.IntentBankStatement,
		Confidence: 0.92,
		Entities:   map[string]string{"months": "3"},
	}}
	f := newFixture(classifier, &stubDrafter{}, tickets.NewMemoryStore())

	var created, drafted int
	f.events.Subscribe(events.EventTicketCreated, func(context.Context, events.Event) error {
		created++
		return nil
	})
	f.events.Subscribe(events.EventDraftCreated, func(context.Context, events.Event) error {
		drafted++
		return nil
	})

	err := f.proc.Process(context.Background(),
		emailEvent("msg-1", "alice@example.com", "Need my statements", "please send the last 3 months"))
	require.NoError(t, err)

	require.Equal(t, 1, f.tickets.Count())
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, drafted)

	reqs := f.drafter.created()
	require.Len(t, reqs, 1)
	assert.Equal(t, "alice@example.com", reqs[0].To)
	assert.Contains(t, reqs[0].Subject, "Re: Need my statements")
	assert.Contains(t, reqs[0].Subject, "[TICKET-"+reqs[0].TicketID+"]")
	assert.Equal(t, []string{"statement-3mo.pdf"}, reqs[0].Attachments)

	turns, err := f.log.RecentContext(context.Background(), reqs[0].TicketID, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, domain.TurnIncoming, turns[0].Direction)
	assert.Equal(t, domain.TurnOutgoing, turns[1].Direction)

	assert.EqualValues(t, 1, f.metrics.PipelineCount(observability.ResultCompleted))
}

func TestProcessorRedeliveryIsAbsorbed(t *testing.T) {
	classifier := &stubClassifier{cls: domain.Classification{Intent: domain.IntentBankStatement, Confidence: 0.9}}
	f := newFixture(classifier, &stubDrafter{}, tickets.NewMemoryStore())

	ev := emailEvent("msg-dup", "bob@example.com", "statements", "send them")
	for i := 0; i < 3; i++ {
		require.NoError(t, f.proc.Process(context.Background(), ev))
	}

	assert.Equal(t, 1, f.tickets.Count(), "redelivery must not open a second ticket")
	assert.Len(t, f.drafter.created(), 1, "redelivery must not file a second draft")
	assert.Equal(t, 1, classifier.calls)
	assert.EqualValues(t, 2, f.metrics.PipelineCount(observability.ResultDuplicate))
}

func TestProcessorReplyLandsOnSameTicketInOrder(t *testing.T) {
	classifier := &stubClassifier{cls: domain.Classification{Intent: domain.IntentBankStatement, Confidence: 0.9}}
	f := newFixture(classifier, &stubDrafter{}, tickets.NewMemoryStore())

	require.NoError(t, f.proc.Process(context.Background(),
		emailEvent("msg-a", "carol@example.com", "statements please", "first message")))
	reqs := f.drafter.created()
	require.Len(t, reqs, 1)
	ticketID := reqs[0].TicketID

	require.NoError(t, f.proc.Process(context.Background(),
		emailEvent("msg-b", "carol@example.com", reqs[0].Subject, "second message")))

	assert.Equal(t, 1, f.tickets.Count(), "the reply continues the existing ticket")

	turns, err := f.log.RecentContext(context.Background(), ticketID, 10)
	require.NoError(t, err)
	require.Len(t, turns, 4)
	assert.Equal(t, "first message", turns[0].Body)
	assert.Equal(t, domain.TurnOutgoing, turns[1].Direction)
	assert.Equal(t, "second message", turns[2].Body)
	assert.Equal(t, domain.TurnOutgoing, turns[3].Direction)
}

func TestProcessorMalformedPayloadGoesToErrorQueue(t *testing.T) {
	classifier := &stubClassifier{}
	f := newFixture(classifier, &stubDrafter{}, tickets.NewMemoryStore())

	ev := domain.IngestionEvent{SourceID: "msg-bad", RawPayload: []byte("not json at all")}
	require.Error(t, f.proc.Process(context.Background(), ev))

	entries := f.errq.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "malformed_payload", entries[0].Reason)
	assert.Equal(t, "msg-bad", entries[0].SourceID)
	assert.Equal(t, 0, classifier.calls, "malformed input never reaches the classifier")

	// The failure is terminal: the redelivery replays the recorded outcome.
	require.NoError(t, f.proc.Process(context.Background(), ev))
	assert.Len(t, f.errq.Entries(), 1)
}

func TestProcessorClassifierOutageEscalatesToHuman(t *testing.T) {
	classifier := &stubClassifier{err: util.NewPermanent("LLM_DOWN", "model rejected request", nil)}
	f := newFixture(classifier, &stubDrafter{}, tickets.NewMemoryStore())

	err := f.proc.Process(context.Background(),
		emailEvent("msg-llm", "dave@example.com", "??", "unintelligible request"))
	require.NoError(t, err, "classifier outage must not drop the message")

	assert.Equal(t, 0, f.tickets.Count(), "no ticket is created for an unclassifiable message")
	require.Len(t, f.notifier.messages, 1, "the human team is notified")
	require.Len(t, f.drafter.created(), 1, "the requester still gets an acknowledgement")
	assert.Empty(t, f.drafter.created()[0].TicketID)
	assert.EqualValues(t, 1, f.metrics.PipelineCount(observability.ResultEscalated))

	// The escalation is terminal for this source id.
	require.NoError(t, f.proc.Process(context.Background(),
		emailEvent("msg-llm", "dave@example.com", "??", "unintelligible request")))
	assert.Len(t, f.notifier.messages, 1)
	assert.EqualValues(t, 1, f.metrics.PipelineCount(observability.ResultDuplicate))
}

type blockedClassifier struct {
	calls int
}

func (s *blockedClassifier) Classify(ctx context.Context, _ domain.ParsedMessage, _ []domain.Turn) (domain.Classification, error) {
	s.calls++
	<-ctx.Done()
	return domain.Classification{}, ctx.Err()
}

func TestProcessorCancelledJobReleasesAdmission(t *testing.T) {
	blocked := &blockedClassifier{}
	f := newFixture(blocked, &stubDrafter{}, tickets.NewMemoryStore())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ev := emailEvent("msg-ceiling", "henry@example.com", "slow", "this one times out")
	require.Error(t, f.proc.Process(ctx, ev))

	entries := f.errq.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "processing_timeout", entries[0].Reason)
	assert.EqualValues(t, 1, f.metrics.PipelineCount(observability.ResultReleased))

	// The admission was released: a later redelivery is processed fresh.
	require.Error(t, f.proc.Process(ctx, ev))
	assert.Equal(t, 2, blocked.calls, "redelivery must be admitted again")
}

func TestProcessorLowConfidenceEscalates(t *testing.T) {
	classifier := &stubClassifier{cls: domain.Classification{Intent: domain.IntentBankStatement, Confidence: 0.2}}
	f := newFixture(classifier, &stubDrafter{}, tickets.NewMemoryStore())

	require.NoError(t, f.proc.Process(context.Background(),
		emailEvent("msg-low", "erin@example.com", "hmm", "vague request")))

	require.Len(t, f.notifier.messages, 1)
	assert.EqualValues(t, 1, f.metrics.PipelineCount(observability.ResultEscalated))
}

func TestProcessorDraftFailureIsTerminal(t *testing.T) {
	classifier := &stubClassifier{cls: domain.Classification{Intent: domain.IntentBankStatement, Confidence: 0.9}}
	drafter := &stubDrafter{err: util.NewPermanent("DRAFT_REJECTED", "mailbox gone", nil)}
	f := newFixture(classifier, drafter, tickets.NewMemoryStore())

	ev := emailEvent("msg-draft", "frank@example.com", "statements", "send")
	require.Error(t, f.proc.Process(context.Background(), ev))

	entries := f.errq.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "draft_failed", entries[0].Reason)

	// Terminal failure: the redelivery is absorbed, not retried.
	require.NoError(t, f.proc.Process(context.Background(), ev))
	assert.Len(t, f.errq.Entries(), 1)
	assert.EqualValues(t, 1, f.metrics.PipelineCount(observability.ResultDuplicate))
}

type failingTickets struct{}

func (failingTickets) Fetch(context.Context, string) (*domain.Ticket, error) {
	return nil, util.NewTransient("PG_DOWN", "connection refused", nil)
}
func (failingTickets) Create(context.Context, *domain.Ticket) error {
	return util.NewTransient("PG_DOWN", "connection refused", nil)
}
func (failingTickets) UpdateIntent(context.Context, string, domain.Intent) error {
	return util.NewTransient("PG_DOWN", "connection refused", nil)
}
func (failingTickets) SetStatus(context.Context, string, domain.TicketStatus) error {
	return util.NewTransient("PG_DOWN", "connection refused", nil)
}

func TestProcessorResolutionOutageReleasesAdmission(t *testing.T) {
	classifier := &stubClassifier{cls: domain.Classification{Intent: domain.IntentBankStatement, Confidence: 0.9}}
	f := newFixture(classifier, &stubDrafter{}, failingTickets{})

	ev := emailEvent("msg-rel", "grace@example.com", "statements", "send")
	require.Error(t, f.proc.Process(context.Background(), ev))
	require.Len(t, f.errq.Entries(), 1)
	assert.Equal(t, "resolution_failed", f.errq.Entries()[0].Reason)

	// The pending record was released, so the redelivery is admitted and
	// fails the same way instead of reporting in-flight.
	require.Error(t, f.proc.Process(context.Background(), ev))
	assert.Len(t, f.errq.Entries(), 2)
	assert.EqualValues(t, 2, f.metrics.PipelineCount(observability.ResultReleased))
	assert.EqualValues(t, 0, f.metrics.PipelineCount(observability.ResultDuplicate))
}
