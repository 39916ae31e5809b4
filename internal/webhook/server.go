package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"igreply/internal/logging"
	"igreply/internal/model"
)

// Handler consumes decoded inbound events; implemented by reply.Engine.
type Handler interface {
	HandleBatch(ctx context.Context, events []model.Event)
}

// Server is the webhook HTTP transport. It acknowledges deliveries
// immediately and hands the events off; slow downstream calls never make
// the platform retry a delivery.
type Server struct {
	verifyToken string
	handler     Handler
	logOnly     bool
}

func NewServer(verifyToken string, handler Handler, logOnly bool) *Server {
	return &Server{verifyToken: verifyToken, handler: handler, logOnly: logOnly}
}

// Router mounts the webhook and health routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/webhook", s.verify)
	r.Post("/webhook", s.receive)
	return r
}

// verify answers the platform's subscription handshake.
func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == s.verifyToken {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	logging.Warn("webhook_verify_rejected", nil)
	w.WriteHeader(http.StatusForbidden)
}

func (s *Server) receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	// Ack before doing any work.
	w.WriteHeader(http.StatusOK)

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		logging.Warn("webhook_bad_payload", map[string]any{"error": err.Error()})
		return
	}
	if s.logOnly {
		logging.Info("webhook_payload", map[string]any{"payload": json.RawMessage(body)})
		return
	}
	events := parseEvents(p)
	if len(events) == 0 {
		return
	}
	go s.handler.HandleBatch(context.Background(), events)
}

type payload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	Messaging []messagingEvent `json:"messaging"`
}

type messagingEvent struct {
	Sender    party    `json:"sender"`
	Recipient party    `json:"recipient"`
	Message   *message `json:"message"`
}

type party struct {
	ID string `json:"id"`
}

type message struct {
	Text        string       `json:"text"`
	Attachments []attachment `json:"attachments"`
}

type attachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL string `json:"url"`
	} `json:"payload"`
}

// parseEvents flattens a webhook payload into core events. DMs arrive with
// object "instagram" (IG messaging) or "page" (Messenger entrypoint); both
// carry the same entry shape. Events without a sender or message are
// dropped.
func parseEvents(p payload) []model.Event {
	if p.Object != "instagram" && p.Object != "page" {
		return nil
	}
	var out []model.Event
	for _, en := range p.Entry {
		for _, m := range en.Messaging {
			if m.Sender.ID == "" || m.Recipient.ID == "" || m.Message == nil {
				continue
			}
			ev := model.Event{
				SenderID:    m.Sender.ID,
				RecipientID: m.Recipient.ID,
				Text:        m.Message.Text,
			}
			for _, att := range m.Message.Attachments {
				ev.Attachments = append(ev.Attachments, model.Attachment{Type: att.Type, URL: att.Payload.URL})
			}
			out = append(out, ev)
		}
	}
	return out
}
