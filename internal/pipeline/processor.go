// Package pipeline orchestrates the life of one ingestion event: admission,
// parsing, classification, ticket resolution, conversation memory, dispatch
// and draft creation. The coordinator guarantees per-ticket ordering; this
// package guarantees that every admitted event ends in exactly one terminal
// state, with failures surfaced to the error queue instead of dropped.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
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
	"github.com/spec-kit/mail-helpdesk/pkg/util"
)

// Reasons recorded on error queue entries.
const (
	reasonIdempotencyDown = "idempotency_unavailable"
	reasonMalformed       = "malformed_payload"
	reasonResolution      = "resolution_failed"
	reasonDispatch        = "dispatch_failed"
	reasonDraft           = "draft_failed"
	reasonTimeout         = "processing_timeout"
)

// Processor runs the full flow for one admitted event.
type Processor struct {
	idem        idempotency.Store
	idemInv     *resilience.Invoker
	parser      *parser.Parser
	classifier  classify.Classifier
	classifyInv *resilience.Invoker
	resolver    *resolution.Engine
	log         memory.Log
	memInv      *resilience.Invoker
	router      *dispatch.Router
	drafter     drafts.Creator
	draftInv    *resilience.Invoker
	errq        errorqueue.Queue
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger

	contextTurns int
}

// Deps bundles the processor's collaborators.
type Deps struct {
	Idempotency        idempotency.Store
	IdempotencyInvoker *resilience.Invoker
	Parser             *parser.Parser
	Classifier         classify.Classifier
	ClassifierInvoker  *resilience.Invoker
	Resolver           *resolution.Engine
	Memory             memory.Log
	MemoryInvoker      *resilience.Invoker
	Router             *dispatch.Router
	Drafts             drafts.Creator
	DraftsInvoker      *resilience.Invoker
	ErrorQueue         errorqueue.Queue
	Events             events.Dispatcher
	Metrics            *observability.Metrics
	Logger             *zap.Logger
	ContextTurns       int
}

// NewProcessor wires the pipeline.
func NewProcessor(d Deps) *Processor {
	turns := d.ContextTurns
	if turns <= 0 {
		turns = memory.DefaultContextTurns
	}
	return &Processor{
		idem:         d.Idempotency,
		idemInv:      d.IdempotencyInvoker,
		parser:       d.Parser,
		classifier:   d.Classifier,
		classifyInv:  d.ClassifierInvoker,
		resolver:     d.Resolver,
		log:          d.Memory,
		memInv:       d.MemoryInvoker,
		router:       d.Router,
		drafter:      d.Drafts,
		draftInv:     d.DraftsInvoker,
		errq:         d.ErrorQueue,
		dispatcher:   d.Events,
		metrics:      d.Metrics,
		logger:       d.Logger,
		contextTurns: turns,
	}
}

// Process handles one ingestion event end to end. The returned error is for
// operator visibility only: by the time Process returns, the event has been
// completed, absorbed as a duplicate, released for retry, or surfaced to the
// error queue.
func (p *Processor) Process(ctx context.Context, ev domain.IngestionEvent) error {
	admission, err := p.admit(ctx, ev)
	if err != nil {
		// Fail closed: without an admission record, processing could
		// duplicate side effects on redelivery.
		p.surface(ctx, errorqueue.Entry{
			Reason:     reasonIdempotencyDown,
			SourceID:   ev.SourceID,
			Detail:     err.Error(),
			RawPayload: ev.RawPayload,
		})
		p.metrics.RecordPipeline(observability.ResultErrorQueue)
		return fmt.Errorf("admission for %s: %w", ev.SourceID, err)
	}
	if admission.Decision != idempotency.Admitted {
		p.logger.Info("duplicate delivery absorbed",
			zap.String("source_id", ev.SourceID),
			zap.String("decision", string(admission.Decision)))
		p.metrics.RecordPipeline(observability.ResultDuplicate)
		return nil
	}

	msg, err := p.parser.Parse(ev)
	if err != nil {
		p.surface(ctx, errorqueue.Entry{
			Reason:     reasonMalformed,
			SourceID:   ev.SourceID,
			Detail:     err.Error(),
			RawPayload: ev.RawPayload,
		})
		p.finishFailed(ctx, ev.SourceID, idempotency.Outcome{Status: "malformed", Detail: err.Error()})
		p.publish(ctx, events.Event{
			Type:     events.EventProcessingFailed,
			SourceID: ev.SourceID,
			Payload:  events.ProcessingFailedPayload{Reason: reasonMalformed, Detail: err.Error()},
		})
		p.metrics.RecordPipeline(observability.ResultErrorQueue)
		return err
	}

	// Context for classification comes from the referenced conversation, if
	// any. Missing context degrades the label quality, never the pipeline.
	var recent []domain.Turn
	if msg.HasReference() {
		recent = p.recentTurns(ctx, msg.ReferenceToken)
	}

	cls, err := resilience.Invoke(ctx, p.classifyInv, func(ctx context.Context) (domain.Classification, error) {
		return p.classifier.Classify(ctx, msg, recent)
	})
	if err != nil {
		if ctx.Err() != nil {
			return p.releaseAndSurface(ctx, ev, reasonTimeout, err)
		}
		// An unclassifiable message still reaches a human, but no ticket is
		// created or mutated on its behalf.
		p.logger.Warn("classification failed, escalating to human",
			zap.String("source_id", ev.SourceID),
			zap.Error(err))
		return p.escalateUnclassified(ctx, ev, msg, recent)
	}

	res, err := p.resolver.Resolve(ctx, msg, cls)
	if err != nil {
		return p.releaseAndSurface(ctx, ev, reasonResolution, err)
	}
	ticket := res.Ticket
	p.announceResolution(ctx, msg, cls, res)

	incoming := &domain.Turn{
		ID:        uuid.NewString(),
		TicketID:  ticket.ID,
		Direction: domain.TurnIncoming,
		SourceID:  msg.SourceID,
		Intent:    cls.Intent,
		Body:      msg.Body,
	}
	if err := p.appendTurn(ctx, incoming); err != nil {
		return p.releaseAndSurface(ctx, ev, reasonResolution, err)
	}
	p.announceTurn(ctx, incoming)

	recent = p.recentTurns(ctx, ticket.ID)

	out, err := p.router.Dispatch(ctx, ticket, msg, cls, recent)
	if err != nil {
		return p.releaseAndSurface(ctx, ev, reasonDispatch, err)
	}
	if out.Escalated {
		p.publish(ctx, events.Event{
			Type:     events.EventEscalated,
			TicketID: ticket.ID,
			SourceID: ev.SourceID,
			Payload:  events.EscalatedPayload{Reason: string(cls.Intent)},
		})
	}

	if out.ReplyBody != "" {
		outgoing := &domain.Turn{
			ID:          uuid.NewString(),
			TicketID:    ticket.ID,
			Direction:   domain.TurnOutgoing,
			SourceID:    msg.SourceID,
			Intent:      cls.Intent,
			Body:        out.ReplyBody,
			Attachments: out.Attachments,
		}
		if err := p.appendTurn(ctx, outgoing); err != nil {
			// The reply itself still goes out; the missing log entry is an
			// operator-visible gap, not a reason to drop the message.
			p.logger.Error("outgoing turn not recorded",
				zap.String("ticket_id", ticket.ID),
				zap.String("source_id", ev.SourceID),
				zap.Error(err))
		} else {
			p.announceTurn(ctx, outgoing)
		}
	}

	draftID, err := p.createDraft(ctx, ticket.ID, msg, out)
	if err != nil {
		return p.failDraft(ctx, ev, ticket.ID, err)
	}
	p.publish(ctx, events.Event{
		Type:     events.EventDraftCreated,
		TicketID: ticket.ID,
		SourceID: ev.SourceID,
		Payload:  events.DraftCreatedPayload{DraftID: draftID, To: msg.Sender},
	})

	status := "completed"
	result := observability.ResultCompleted
	if out.Escalated {
		status = "escalated"
		result = observability.ResultEscalated
	}
	if err := p.complete(ctx, ev.SourceID, idempotency.Outcome{Status: status, TicketID: ticket.ID, DraftID: draftID}); err != nil {
		return err
	}

	p.metrics.RecordPipeline(result)
	p.logger.Info("event processed",
		zap.String("source_id", ev.SourceID),
		zap.String("ticket_id", ticket.ID),
		zap.String("intent", string(cls.Intent)),
		zap.String("decision", string(res.Decision)),
		zap.String("handler", out.Handler),
		zap.String("status", status))
	return nil
}

func (p *Processor) admit(ctx context.Context, ev domain.IngestionEvent) (idempotency.Admission, error) {
	hash := idempotency.PayloadHash(ev.RawPayload)
	return resilience.Invoke(ctx, p.idemInv, func(ctx context.Context) (idempotency.Admission, error) {
		adm, err := p.idem.Begin(ctx, ev.SourceID, hash)
		return adm, wrapStoreErr(err)
	})
}

// escalateUnclassified routes a message the classifier could not label
// straight to the fallback handler. No ticket exists on this path, so the
// only side effects are the human notification and the acknowledgement
// draft.
func (p *Processor) escalateUnclassified(ctx context.Context, ev domain.IngestionEvent, msg domain.ParsedMessage, recent []domain.Turn) error {
	cls := domain.Classification{
		Intent:    domain.IntentFallbackHuman,
		Reasoning: "classification unavailable",
	}
	out, err := p.router.Dispatch(ctx, nil, msg, cls, recent)
	if err != nil {
		return p.releaseAndSurface(ctx, ev, reasonDispatch, err)
	}

	var draftID string
	if out.ReplyBody != "" {
		draftID, err = p.createDraft(ctx, "", msg, out)
		if err != nil {
			return p.failDraft(ctx, ev, "", err)
		}
	}

	p.publish(ctx, events.Event{
		Type:     events.EventEscalated,
		SourceID: ev.SourceID,
		Payload:  events.EscalatedPayload{Reason: "unclassified"},
	})
	if err := p.complete(ctx, ev.SourceID, idempotency.Outcome{Status: "escalated", DraftID: draftID}); err != nil {
		return err
	}
	p.metrics.RecordPipeline(observability.ResultEscalated)
	p.logger.Info("unclassified event escalated",
		zap.String("source_id", ev.SourceID),
		zap.String("handler", out.Handler))
	return nil
}

// releaseAndSurface is the retryable failure path: the pending record is
// dropped so a redelivery or manual replay starts clean. Cleanup runs on a
// detached context so a cancelled job can still release its record.
func (p *Processor) releaseAndSurface(ctx context.Context, ev domain.IngestionEvent, reason string, cause error) error {
	if ctx.Err() != nil {
		reason = reasonTimeout
	}
	cleanup := context.WithoutCancel(ctx)
	p.surface(cleanup, errorqueue.Entry{
		Reason:     reason,
		SourceID:   ev.SourceID,
		Detail:     cause.Error(),
		RawPayload: ev.RawPayload,
	})
	if err := p.idemInv.Do(cleanup, func(ctx context.Context) error {
		return wrapStoreErr(p.idem.Release(ctx, ev.SourceID))
	}); err != nil {
		p.logger.Error("pending record not released",
			zap.String("source_id", ev.SourceID),
			zap.Error(err))
	}
	p.publish(cleanup, events.Event{
		Type:     events.EventProcessingFailed,
		SourceID: ev.SourceID,
		Payload:  events.ProcessingFailedPayload{Reason: reason, Detail: cause.Error()},
	})
	p.metrics.RecordPipeline(observability.ResultReleased)
	return fmt.Errorf("%s for %s: %w", reason, ev.SourceID, cause)
}

// failDraft is the terminal draft failure path, unless the job was cancelled
// at its ceiling, in which case the admission is released for retry instead.
func (p *Processor) failDraft(ctx context.Context, ev domain.IngestionEvent, ticketID string, cause error) error {
	if ctx.Err() != nil {
		return p.releaseAndSurface(ctx, ev, reasonTimeout, cause)
	}
	p.surface(ctx, errorqueue.Entry{
		Reason:     reasonDraft,
		SourceID:   ev.SourceID,
		Detail:     cause.Error(),
		RawPayload: ev.RawPayload,
	})
	p.finishFailed(ctx, ev.SourceID, idempotency.Outcome{
		Status:   "draft_failed",
		TicketID: ticketID,
		Detail:   cause.Error(),
	})
	p.metrics.RecordPipeline(observability.ResultErrorQueue)
	return fmt.Errorf("draft for %s: %w", ev.SourceID, cause)
}

func (p *Processor) complete(ctx context.Context, sourceID string, outcome idempotency.Outcome) error {
	if err := p.idemInv.Do(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return wrapStoreErr(p.idem.Complete(ctx, sourceID, outcome))
	}); err != nil {
		// The pending record stays behind; a redelivery reports in-flight
		// until the record is released manually.
		p.logger.Error("terminal record not written",
			zap.String("source_id", sourceID),
			zap.Error(err))
		return fmt.Errorf("complete %s: %w", sourceID, err)
	}
	return nil
}

func (p *Processor) finishFailed(ctx context.Context, sourceID string, outcome idempotency.Outcome) {
	if err := p.idemInv.Do(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return wrapStoreErr(p.idem.Fail(ctx, sourceID, outcome))
	}); err != nil {
		p.logger.Error("failed record not written",
			zap.String("source_id", sourceID),
			zap.Error(err))
	}
}

func (p *Processor) appendTurn(ctx context.Context, turn *domain.Turn) error {
	return p.memInv.Do(ctx, func(ctx context.Context) error {
		return p.log.Append(ctx, turn)
	})
}

// recentTurns is best effort: an unreadable conversation log degrades the
// context window, not the pipeline.
func (p *Processor) recentTurns(ctx context.Context, ticketID string) []domain.Turn {
	turns, err := resilience.Invoke(ctx, p.memInv, func(ctx context.Context) ([]domain.Turn, error) {
		return p.log.RecentContext(ctx, ticketID, p.contextTurns)
	})
	if err != nil {
		p.logger.Warn("conversation context unavailable",
			zap.String("ticket_id", ticketID),
			zap.Error(err))
		return nil
	}
	return turns
}

func (p *Processor) createDraft(ctx context.Context, ticketID string, msg domain.ParsedMessage, out dispatch.Outcome) (string, error) {
	req := drafts.Request{
		TicketID:    ticketID,
		To:          msg.Sender,
		Subject:     replySubject(msg.Subject, ticketID),
		Body:        out.ReplyBody,
		Attachments: out.Attachments,
	}
	return resilience.Invoke(ctx, p.draftInv, func(ctx context.Context) (string, error) {
		return p.drafter.CreateDraft(ctx, req)
	})
}

// replySubject tags the reply with the ticket reference so the requester's
// next email lands on the same conversation. Untracked replies (no ticket)
// carry no tag.
func replySubject(subject, ticketID string) string {
	subject = strings.TrimSpace(subject)
	if subject != "" && !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	if ticketID == "" {
		return subject
	}
	tag := "[TICKET-" + ticketID + "]"
	if strings.Contains(subject, tag) {
		return subject
	}
	return strings.TrimSpace(subject + " " + tag)
}

func (p *Processor) announceResolution(ctx context.Context, msg domain.ParsedMessage, cls domain.Classification, res resolution.Resolution) {
	if res.Decision == resolution.DecisionReuse {
		return
	}
	p.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: res.Ticket.ID,
		SourceID: msg.SourceID,
		Payload: events.TicketCreatedPayload{
			Requester:  msg.Sender,
			Subject:    msg.Subject,
			Intent:     string(cls.Intent),
			Forked:     res.Decision == resolution.DecisionFork,
			Superseded: res.Superseded,
		},
	})
	if res.Superseded != "" {
		p.publish(ctx, events.Event{
			Type:     events.EventTicketSuperseded,
			TicketID: res.Superseded,
			SourceID: msg.SourceID,
		})
	}
}

func (p *Processor) announceTurn(ctx context.Context, turn *domain.Turn) {
	p.publish(ctx, events.Event{
		Type:     events.EventTurnAppended,
		TicketID: turn.TicketID,
		SourceID: turn.SourceID,
		Payload: events.TurnAppendedPayload{
			TurnID:    turn.ID,
			Direction: string(turn.Direction),
			Intent:    string(turn.Intent),
		},
	})
}

func (p *Processor) publish(ctx context.Context, event events.Event) {
	if p.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = time.Now().UTC()
	_ = p.dispatcher.Publish(ctx, event)
}

func (p *Processor) surface(ctx context.Context, entry errorqueue.Entry) {
	entry.EnqueuedAt = time.Now().UTC()
	if err := p.errq.Enqueue(ctx, entry); err != nil {
		p.logger.Error("error queue write failed",
			zap.String("reason", entry.Reason),
			zap.String("source_id", entry.SourceID),
			zap.Error(err))
	}
}

// wrapStoreErr makes idempotency store outages retryable for the invoker.
func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	return util.NewTransient("IDEMPOTENCY_UNAVAILABLE", "idempotency store unreachable", err)
}
