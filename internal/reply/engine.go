package reply

import (
	"context"
	"sync"
	"time"

	"igreply/internal/classify"
	"igreply/internal/config"
	"igreply/internal/logging"
	"igreply/internal/metrics"
	"igreply/internal/model"
	"igreply/internal/notifier"
	"igreply/internal/profile"
	"igreply/internal/store/engagedb"
	"igreply/internal/throttle"
)

// Sender delivers an outbound text message; implemented by igclient.
type Sender interface {
	SendText(ctx context.Context, recipientID, text string) error
}

// Engine decides what, if anything, to reply to each inbound event.
// All state it consults lives in the engagement store; nothing is kept
// between events except the per-user locks.
type Engine struct {
	db       *engagedb.DB
	sender   Sender
	notify   notifier.Notifier
	profiles *profile.Cache
	cfg      config.RepliesConfig
	// our own account id; inbound events from it are echoes of our sends
	accountID string
	now       func() time.Time

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

func NewEngine(db *engagedb.DB, sender Sender, notify notifier.Notifier, profiles *profile.Cache, cfg config.RepliesConfig, accountID string) *Engine {
	return &Engine{
		db:        db,
		sender:    sender,
		notify:    notify,
		profiles:  profiles,
		cfg:       cfg,
		accountID: accountID,
		now:       func() time.Time { return time.Now().UTC() },
		userLocks: make(map[string]*sync.Mutex),
	}
}

// SetNow overrides the engine clock; tests only.
func (e *Engine) SetNow(now func() time.Time) { e.now = now }

// HandleBatch processes events in order. A failure on one event is logged
// and never stops the rest of the batch.
func (e *Engine) HandleBatch(ctx context.Context, events []model.Event) {
	for _, ev := range events {
		if err := e.HandleEvent(ctx, ev); err != nil {
			logging.Error("handle_event_failed", map[string]any{"sender_id": ev.SenderID, "error": err.Error()})
		}
	}
}

// HandleEvent runs the per-event state machine. The check-then-send-then-
// record sequence for one sender runs under that sender's lock so two rapid
// events cannot both observe "first time".
func (e *Engine) HandleEvent(ctx context.Context, ev model.Event) error {
	start := time.Now()
	defer metrics.ObserveHandleDuration(start)

	if ev.SenderID == "" || ev.RecipientID == "" {
		metrics.EventsReceived.WithLabelValues("malformed").Inc()
		return nil
	}
	if e.accountID != "" && ev.SenderID == e.accountID {
		return e.handleEcho(ctx, ev)
	}
	if classify.IsExcluded(ev.Text, e.cfg.ExcludedSentences) {
		metrics.EventsReceived.WithLabelValues("excluded").Inc()
		logging.Info("message_excluded", map[string]any{"sender_id": ev.SenderID})
		return nil
	}

	unlock := e.lockUser(ev.SenderID)
	defer unlock()

	if classify.IsMediaMessage(ev) {
		return e.handleMedia(ctx, ev)
	}
	return e.handleText(ctx, ev)
}

// handleEcho classifies an echo of our own outbound message and keeps the
// recipient's contact history current. Echoes never trigger a reply.
func (e *Engine) handleEcho(ctx context.Context, ev model.Event) error {
	kind := "echo_manual"
	for _, tmpl := range e.cfg.Templates() {
		if ev.Text == tmpl {
			kind = "echo_automatic"
			break
		}
	}
	metrics.EventsReceived.WithLabelValues(kind).Inc()
	logging.Info(kind, map[string]any{"recipient_id": ev.RecipientID})
	return e.db.UpsertOutboundSend(ctx, ev.RecipientID, e.now())
}

func (e *Engine) handleMedia(ctx context.Context, ev model.Event) error {
	metrics.EventsReceived.WithLabelValues("media").Inc()
	// State unknown means no send: guessing risks a duplicate first-time
	// reply on redelivery.
	first, err := e.db.IsFirstMediaSender(ctx, ev.SenderID)
	if err != nil {
		return err
	}
	text := e.cfg.ReturningUserMessage
	template := "returning"
	if first {
		text = e.cfg.FirstTimeMessage
		template = "first_time"
	}
	if err := e.sender.SendText(ctx, ev.SenderID, text); err != nil {
		metrics.SendErrors.Inc()
		e.notify.ReportEvent(ctx, notifier.KindSendFailed, "media auto-reply failed", err.Error())
		return err
	}
	metrics.RepliesSent.WithLabelValues(template).Inc()
	logging.Info("media_reply_sent", map[string]any{"sender_id": ev.SenderID, "template": template})
	return e.db.RecordFirstMediaSend(ctx, ev.SenderID, e.now())
}

func (e *Engine) handleText(ctx context.Context, ev model.Event) error {
	metrics.EventsReceived.WithLabelValues("text").Inc()
	if !e.cfg.AckEnabled {
		e.notify.ForwardUserMessage(ctx, e.lookupProfile(ctx, ev.SenderID), ev.Text)
		return nil
	}
	ok, err := throttle.ShouldAcknowledge(ctx, e.db, ev.SenderID, e.cfg.AckWindowDays, e.now())
	if err != nil {
		return err
	}
	if !ok {
		logging.Info("ack_throttled", map[string]any{"sender_id": ev.SenderID})
		return nil
	}
	if err := e.sender.SendText(ctx, ev.SenderID, e.cfg.AckMessage); err != nil {
		metrics.SendErrors.Inc()
		e.notify.ReportEvent(ctx, notifier.KindSendFailed, "acknowledgment failed", err.Error())
		return err
	}
	metrics.RepliesSent.WithLabelValues("ack").Inc()
	logging.Info("ack_sent", map[string]any{"sender_id": ev.SenderID})
	return e.db.UpsertOutboundSend(ctx, ev.SenderID, e.now())
}

func (e *Engine) lookupProfile(ctx context.Context, userID string) model.Profile {
	if e.profiles == nil {
		return profile.Fallback(userID)
	}
	return e.profiles.Get(ctx, userID)
}

// lockUser serializes event handling per sender; cross-user events stay
// fully parallel. Locks are never reclaimed, matching the store's
// keep-forever row lifecycle.
func (e *Engine) lockUser(userID string) func() {
	e.mu.Lock()
	l, ok := e.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		e.userLocks[userID] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}
