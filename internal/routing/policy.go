package routing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"aquabot/internal/domain"
	"aquabot/internal/language"
)

// ConversationStore is the persistence the policy needs for users, message
// transcripts and replies.
type ConversationStore interface {
	GetOrCreateUser(ctx context.Context, phoneNumber string) (*domain.User, error)
	SaveMessage(ctx context.Context, userID int64, content, transportID string) (*domain.MessageRecord, error)
	SetMessageClassification(ctx context.Context, messageID int64, t domain.MessageType, lang string) error
	SaveReply(ctx context.Context, messageID int64, content, lang string) error
	HasReply(ctx context.Context, messageID int64) (bool, error)
	FormattedHistory(ctx context.Context, userID int64, limit int) (string, error)
	SaveComplaint(ctx context.Context, userID, messageID int64, content string) error
	SaveSuggestion(ctx context.Context, userID, messageID int64, content string) error
	TouchSession(ctx context.Context, userID int64) (*domain.Session, error)
	SetSessionContext(ctx context.Context, userID int64, contextJSON string) error
}

// Matcher grades a user turn against the knowledge base.
type Matcher interface {
	Match(ctx context.Context, query string) (*domain.MatchResult, error)
	Validate(ctx context.Context, query string, hit domain.KnowledgeSearchResult) (bool, error)
	Compose(ctx context.Context, query string, hit domain.KnowledgeSearchResult) (string, error)
}

// Classifier assigns a message type and language to a user turn.
type Classifier interface {
	Classify(ctx context.Context, text, history string) (domain.ClassificationResult, error)
}

// TurnContext is what a type-specific handler gets to work with.
type TurnContext struct {
	User     *domain.User
	Text     string
	Language string
	History  string
}

// Handler produces the reply text for one classified turn.
type Handler func(ctx context.Context, turn TurnContext) (string, error)

// Metrics receives routing outcomes. Implementations must be cheap and
// non-blocking.
type Metrics interface {
	Decision(action domain.RoutingAction, reason domain.SuppressReason, msgType domain.MessageType)
	TurnLatency(d time.Duration)
	PendingBatches(n int)
}

type noopMetrics struct{}

func (noopMetrics) Decision(domain.RoutingAction, domain.SuppressReason, domain.MessageType) {}
func (noopMetrics) TurnLatency(time.Duration)                                               {}
func (noopMetrics) PendingBatches(int)                                                      {}

// Policy is the routing state machine. Route handles one webhook delivery;
// closed batch windows re-enter asynchronously as whole turns.
type Policy struct {
	store       ConversationStore
	dedup       *Deduplicator
	pauses      *PauseGate
	access      *AccessGate
	batcher     *Batcher
	matcher     Matcher
	classifier  Classifier
	handlers    map[domain.MessageType]Handler
	sender      domain.Sender
	transcriber domain.Transcriber
	notifiers   []domain.Notifier
	metrics     Metrics
	logger      *slog.Logger

	historyLimit int
	turnTimeout  time.Duration
}

type PolicyConfig struct {
	Store        ConversationStore
	Dedup        *Deduplicator
	Pauses       *PauseGate
	Access       *AccessGate
	Matcher      Matcher
	Classifier   Classifier
	Inquiry      Handler
	Service      Handler
	Sender       domain.Sender
	Transcriber  domain.Transcriber
	Notifiers    []domain.Notifier
	Metrics      Metrics
	Logger       *slog.Logger
	BatchWindow  time.Duration
	HistoryLimit int
	TurnTimeout  time.Duration
}

func NewPolicy(cfg PolicyConfig) *Policy {
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 2 * time.Minute
	}
	p := &Policy{
		store:        cfg.Store,
		dedup:        cfg.Dedup,
		pauses:       cfg.Pauses,
		access:       cfg.Access,
		matcher:      cfg.Matcher,
		classifier:   cfg.Classifier,
		sender:       cfg.Sender,
		transcriber:  cfg.Transcriber,
		notifiers:    cfg.Notifiers,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		historyLimit: cfg.HistoryLimit,
		turnTimeout:  cfg.TurnTimeout,
	}
	p.handlers = map[domain.MessageType]Handler{
		domain.TypeInquiry:        cfg.Inquiry,
		domain.TypeServiceRequest: cfg.Service,
	}
	p.batcher = NewBatcher(cfg.BatchWindow, p.handleTurn, cfg.Logger)
	return p
}

// Close flushes open batch windows and waits for in-flight turns.
func (p *Policy) Close() { p.batcher.Close() }

// Flush closes a sender's batch window immediately. Used by tests and
// shutdown paths.
func (p *Policy) Flush(senderID string) { p.batcher.Flush(senderID) }

// Route handles one webhook delivery. Each step short-circuits; an
// awaiting-batch-window suppress is deferred rather than final, since the
// fired window re-enters asynchronously as a whole turn.
func (p *Policy) Route(ctx context.Context, msg domain.InboundMessage, now time.Time) domain.RoutingDecision {
	if !p.dedup.FirstDelivery(ctx, msg.TransportID) {
		p.logger.Debug("duplicate delivery suppressed", "transport_id", msg.TransportID)
		return p.suppress(domain.SuppressDuplicate)
	}

	if p.pauses.IsAgentAuthored(msg) {
		if err := p.pauses.RecordTakeover(ctx, msg, now); err == nil {
			p.logger.Info("agent takeover recorded", "sender", msg.SenderID)
		}
		return p.suppress(domain.SuppressAgentAuthored)
	}

	conversationID := msg.ConversationID
	if conversationID == "" {
		conversationID = msg.SenderID
	}
	if p.pauses.IsPaused(ctx, conversationID, now) {
		p.logger.Debug("conversation paused, suppressing", "sender", msg.SenderID)
		return p.suppress(domain.SuppressHumanHandled)
	}

	if msg.Kind == domain.KindAudio {
		text, err := p.transcribeAudio(ctx, msg)
		if err != nil {
			p.logger.Error("audio transcription failed", "sender", msg.SenderID, "error", err)
			p.send(ctx, msg.SenderID, language.Response(language.Default, language.RespError))
			decision := domain.RoutingDecision{Action: domain.ActionDispatchHandler, Language: language.Default}
			p.metrics.Decision(decision.Action, "", "")
			return decision
		}
		msg.Text = text
	}

	if strings.TrimSpace(msg.Text) == "" {
		return p.suppress(domain.SuppressEmptyMessage)
	}

	p.batcher.Enqueue(msg)
	p.metrics.PendingBatches(p.batcher.PendingSenders())
	return p.suppress(domain.SuppressAwaitingBatch)
}

// handleTurn runs a closed batch window through matching, classification and
// dispatch. It is the async continuation of Route and must never panic out.
func (p *Policy) handleTurn(turn domain.ConversationTurn) {
	ctx, cancel := context.WithTimeout(context.Background(), p.turnTimeout)
	defer cancel()

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("turn handling panicked", "sender", turn.SenderID, "panic", r)
			p.send(ctx, turn.SenderID, language.Response(language.Detect(turn.Text), language.RespError))
		}
		p.metrics.TurnLatency(time.Since(started))
		p.metrics.PendingBatches(p.batcher.PendingSenders())
	}()

	decision := p.processTurn(ctx, turn)
	p.metrics.Decision(decision.Action, decision.Reason, decision.Type)
	p.logger.Info("turn routed",
		"sender", turn.SenderID, "action", decision.Action,
		"type", decision.Type, "language", decision.Language,
		"batched", turn.Count, "elapsed", time.Since(started))
}

func (p *Policy) processTurn(ctx context.Context, turn domain.ConversationTurn) domain.RoutingDecision {
	lang := language.Detect(turn.Text)

	user, err := p.store.GetOrCreateUser(ctx, turn.SenderID)
	if err != nil {
		p.logger.Error("user lookup failed", "sender", turn.SenderID, "error", err)
		p.send(ctx, turn.SenderID, language.Response(lang, language.RespError))
		return domain.RoutingDecision{Action: domain.ActionDispatchHandler, Language: lang}
	}

	if _, serr := p.store.TouchSession(ctx, user.ID); serr != nil {
		p.logger.Warn("session touch failed", "user_id", user.ID, "error", serr)
	}

	msgRec, err := p.store.SaveMessage(ctx, user.ID, turn.Text, turn.TransportID)
	if err != nil {
		// Without the transcript row the double-reply guard is gone;
		// log and continue rather than going silent.
		p.logger.Error("message persist failed", "sender", turn.SenderID, "error", err)
	}

	match, err := p.matcher.Match(ctx, turn.Text)
	if err != nil {
		p.logger.Warn("knowledge match failed, falling through to classifier",
			"sender", turn.SenderID, "error", err)
		match = &domain.MatchResult{Outcome: domain.MatchNone}
	}

	switch match.Outcome {
	case domain.MatchDirect:
		return p.finalize(ctx, user, msgRec, domain.RoutingDecision{
			Action:   domain.ActionDirectReply,
			Reply:    match.Best.Entry.Answer,
			Language: lang,
		})
	case domain.MatchValidate:
		confirmed, verr := p.matcher.Validate(ctx, turn.Text, *match.Best)
		if verr != nil {
			p.logger.Warn("match validation failed", "sender", turn.SenderID, "error", verr)
		} else if confirmed {
			reply, cerr := p.matcher.Compose(ctx, turn.Text, *match.Best)
			if cerr != nil || strings.TrimSpace(reply) == "" {
				reply = match.Best.Entry.Answer
			}
			return p.finalize(ctx, user, msgRec, domain.RoutingDecision{
				Action:   domain.ActionValidatedReply,
				Reply:    reply,
				Language: lang,
			})
		}
	}

	history, err := p.store.FormattedHistory(ctx, user.ID, p.historyLimit)
	if err != nil {
		p.logger.Warn("history load failed", "sender", turn.SenderID, "error", err)
	}

	cls, err := p.classifier.Classify(ctx, turn.Text, history)
	if err != nil {
		p.logger.Warn("classification failed, defaulting to other",
			"sender", turn.SenderID, "error", err)
		cls = domain.ClassificationResult{Type: domain.TypeOther, Language: lang}
	}
	if !domain.ValidMessageType(cls.Type) {
		p.logger.Warn("classification outside enum, coercing to other", "value", cls.Type)
		cls.Type = domain.TypeOther
	}
	if cls.Language != "" {
		lang = cls.Language
	}
	if msgRec != nil {
		if err := p.store.SetMessageClassification(ctx, msgRec.ID, cls.Type, lang); err != nil {
			p.logger.Warn("classification persist failed", "message_id", msgRec.ID, "error", err)
		}
	}
	// The session context carries the last verdict so a follow-up turn's
	// prompts can reference it.
	sessCtx := fmt.Sprintf(`{"last_type":%q,"language":%q}`, cls.Type, lang)
	if err := p.store.SetSessionContext(ctx, user.ID, sessCtx); err != nil {
		p.logger.Warn("session context persist failed", "user_id", user.ID, "error", err)
	}

	decision := domain.RoutingDecision{Action: domain.ActionDispatchHandler, Language: lang, Type: cls.Type}

	// Non-allow-listed senders only get automated handling for greetings
	// and suggestions; everything else defers to the team.
	restricted := !p.access.FullAccess(turn.SenderID) &&
		cls.Type != domain.TypeGreeting && cls.Type != domain.TypeSuggestion
	if restricted {
		decision.Reply = language.Response(lang, language.RespTeamWillReply)
		return p.finalize(ctx, user, msgRec, decision)
	}

	decision.Reply = p.dispatch(ctx, user, msgRec, turn, cls.Type, lang, history)
	return p.finalize(ctx, user, msgRec, decision)
}

// dispatch runs the type-specific handler. Handler failures degrade to the
// type's canned deferral, never an error.
func (p *Policy) dispatch(ctx context.Context, user *domain.User, msgRec *domain.MessageRecord,
	turn domain.ConversationTurn, t domain.MessageType, lang, history string) string {

	switch t {
	case domain.TypeGreeting:
		return language.Response(lang, language.RespGreeting)

	case domain.TypeSuggestion:
		if msgRec != nil {
			if err := p.store.SaveSuggestion(ctx, user.ID, msgRec.ID, turn.Text); err != nil {
				p.logger.Warn("suggestion persist failed", "error", err)
			}
		}
		p.notify(ctx, fmt.Sprintf("💡 Suggestion from %s:\n%s", turn.SenderID, turn.Text))
		return language.Response(lang, language.RespSuggestion)

	case domain.TypeComplaint:
		if msgRec != nil {
			if err := p.store.SaveComplaint(ctx, user.ID, msgRec.ID, turn.Text); err != nil {
				p.logger.Warn("complaint persist failed", "error", err)
			}
		}
		p.notify(ctx, fmt.Sprintf("⚠️ Complaint from %s:\n%s", turn.SenderID, turn.Text))
		return language.Response(lang, language.RespComplaint)

	case domain.TypeInquiry, domain.TypeServiceRequest:
		handler := p.handlers[t]
		if handler == nil {
			return language.Deferral(lang, t)
		}
		reply, err := handler(ctx, TurnContext{User: user, Text: turn.Text, Language: lang, History: history})
		if err != nil || strings.TrimSpace(reply) == "" {
			if err != nil {
				p.logger.Error("handler failed, sending deferral",
					"type", t, "sender", turn.SenderID, "error", err)
			}
			return language.Deferral(lang, t)
		}
		return reply

	default:
		return language.Response(lang, language.RespTeamWillReply)
	}
}

// finalize persists the reply record before sending. The reply row is the
// double-reply guard, so a persist failure aborts the send (fail closed); a
// send failure is terminal and only logged.
func (p *Policy) finalize(ctx context.Context, user *domain.User, msgRec *domain.MessageRecord,
	decision domain.RoutingDecision) domain.RoutingDecision {

	if msgRec != nil {
		has, err := p.store.HasReply(ctx, msgRec.ID)
		if err != nil {
			p.logger.Warn("reply guard lookup failed", "message_id", msgRec.ID, "error", err)
		} else if has {
			p.logger.Warn("message already replied, suppressing", "message_id", msgRec.ID)
			return p.suppress(domain.SuppressDuplicate)
		}
		if err := p.store.SaveReply(ctx, msgRec.ID, decision.Reply, decision.Language); err != nil {
			p.logger.Error("reply persist failed, aborting send", "message_id", msgRec.ID, "error", err)
			return p.suppress(domain.SuppressDuplicate)
		}
	}

	p.send(ctx, user.PhoneNumber, decision.Reply)
	return decision
}

func (p *Policy) send(ctx context.Context, phone, text string) {
	if text == "" {
		return
	}
	if err := p.sender.Send(ctx, phone, text); err != nil {
		p.logger.Error("outbound send failed", "phone", phone, "error", err)
	}
}

// notify fans an ops alert out to every configured sink, best effort.
func (p *Policy) notify(ctx context.Context, text string) {
	for _, n := range p.notifiers {
		if err := n.Notify(ctx, text); err != nil {
			p.logger.Warn("ops alert delivery failed", "error", err)
		}
	}
}

func (p *Policy) transcribeAudio(ctx context.Context, msg domain.InboundMessage) (string, error) {
	if p.transcriber == nil {
		return "", fmt.Errorf("no transcriber configured")
	}
	if len(msg.AudioData) == 0 {
		return "", fmt.Errorf("empty audio payload")
	}
	return p.transcriber.Transcribe(ctx, msg.AudioData)
}

func (p *Policy) suppress(reason domain.SuppressReason) domain.RoutingDecision {
	decision := domain.RoutingDecision{Action: domain.ActionSuppress, Reason: reason}
	p.metrics.Decision(decision.Action, decision.Reason, "")
	return decision
}
