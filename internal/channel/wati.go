// Package channel holds the outward-facing transports: the WATI WhatsApp
// gateway and the ops-alert sinks.
package channel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aquabot/internal/config"
	"aquabot/internal/domain"
)

// WatiPayload is the webhook body WATI posts for inbound events.
type WatiPayload struct {
	ID            string `json:"id"`
	WaID          string `json:"waId"`
	Type          string `json:"type"` // "text" | "audio" | "template" | ...
	Text          string `json:"text"`
	Owner         bool   `json:"owner"`
	OperatorEmail string `json:"operatorEmail"`
	Audio         string `json:"audio,omitempty"` // base64 voice payload
	ConversationID string `json:"conversationId,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
}

// ToInbound normalizes the webhook payload into the routing domain type.
func (p WatiPayload) ToInbound(now time.Time) domain.InboundMessage {
	msg := domain.InboundMessage{
		SenderID:       p.WaID,
		TransportID:    p.ID,
		Text:           p.Text,
		ReceivedAt:     now,
		AgentOwner:     p.Owner,
		OperatorEmail:  p.OperatorEmail,
		ConversationID: p.ConversationID,
	}
	switch p.Type {
	case "audio", "voice", "ptt":
		msg.Kind = domain.KindAudio
		if p.Audio != "" {
			if data, err := base64.StdEncoding.DecodeString(p.Audio); err == nil {
				msg.AudioData = data
			}
		}
	case "template":
		msg.Kind = domain.KindTemplate
	default:
		msg.Kind = domain.KindText
	}
	return msg
}

// Wati is the WATI WhatsApp transport: it sends session messages and
// verifies webhook registration challenges.
type Wati struct {
	cfg    config.WatiConfig
	client *http.Client
	logger *slog.Logger
}

func NewWati(cfg config.WatiConfig, logger *slog.Logger) *Wati {
	return &Wati{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Send delivers text to a phone number through the session-message endpoint.
// On failure it retries once against the alternative endpoint shape some
// WATI tenants use, then gives up; callers treat failure as terminal.
func (w *Wati) Send(ctx context.Context, phoneNumber, text string) error {
	primary := fmt.Sprintf("%s/api/v1/sendSessionMessage/%s?messageText=%s",
		strings.TrimRight(w.cfg.APIURL, "/"), phoneNumber, url.QueryEscape(text))
	if err := w.post(ctx, primary); err == nil {
		return nil
	} else {
		w.logger.Warn("wati send failed on primary endpoint, retrying alternative",
			"phone", phoneNumber, "error", err)
	}

	alternative := fmt.Sprintf("%s/sendSessionMessage/%s?messageText=%s",
		strings.TrimRight(w.cfg.APIURL, "/"), phoneNumber, url.QueryEscape(text))
	if err := w.post(ctx, alternative); err != nil {
		return fmt.Errorf("wati send to %s: %w", phoneNumber, err)
	}
	return nil
}

func (w *Wati) post(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// VerifyChallenge answers the webhook registration handshake: echo the
// challenge when the verify token matches.
func (w *Wati) VerifyChallenge(query url.Values) (string, bool) {
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")
	if mode == "subscribe" && token == w.cfg.VerifyToken && challenge != "" {
		return challenge, true
	}
	return "", false
}

// DecodePayload parses a webhook body, tolerating unknown fields.
func DecodePayload(r io.Reader) (*WatiPayload, error) {
	var p WatiPayload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode wati payload: %w", err)
	}
	if p.WaID == "" {
		return nil, fmt.Errorf("wati payload missing waId")
	}
	return &p, nil
}
