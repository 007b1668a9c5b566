package channel

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"aquabot/internal/config"
	"aquabot/internal/domain"
)

func TestDecodePayload(t *testing.T) {
	body := `{"id":"wamid.1","waId":"966501234567","type":"text","text":"مرحبا","owner":false,"unknownField":1}`
	p, err := DecodePayload(strings.NewReader(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.WaID != "966501234567" || p.Text != "مرحبا" {
		t.Errorf("payload = %+v", p)
	}
}

func TestDecodePayloadRejectsMissingWaID(t *testing.T) {
	if _, err := DecodePayload(strings.NewReader(`{"id":"wamid.1","text":"hi"}`)); err == nil {
		t.Error("payload without waId accepted")
	}
	if _, err := DecodePayload(strings.NewReader(`not json`)); err == nil {
		t.Error("malformed body accepted")
	}
}

func TestToInbound(t *testing.T) {
	now := time.Now()
	audio := base64.StdEncoding.EncodeToString([]byte("opus-bytes"))

	cases := []struct {
		name    string
		payload WatiPayload
		kind    domain.MessageKind
		audio   string
	}{
		{"text", WatiPayload{WaID: "1", Type: "text", Text: "هلا"}, domain.KindText, ""},
		{"unknown type defaults to text", WatiPayload{WaID: "1", Type: "image"}, domain.KindText, ""},
		{"audio", WatiPayload{WaID: "1", Type: "audio", Audio: audio}, domain.KindAudio, "opus-bytes"},
		{"voice note", WatiPayload{WaID: "1", Type: "ptt", Audio: audio}, domain.KindAudio, "opus-bytes"},
		{"template", WatiPayload{WaID: "1", Type: "template"}, domain.KindTemplate, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := tc.payload.ToInbound(now)
			if msg.Kind != tc.kind {
				t.Errorf("kind = %v, want %v", msg.Kind, tc.kind)
			}
			if string(msg.AudioData) != tc.audio {
				t.Errorf("audio = %q, want %q", msg.AudioData, tc.audio)
			}
			if !msg.ReceivedAt.Equal(now) {
				t.Errorf("received at = %v", msg.ReceivedAt)
			}
		})
	}
}

func TestToInboundCarriesOperatorFields(t *testing.T) {
	msg := WatiPayload{
		WaID: "966501234567", ID: "wamid.9", Type: "text", Text: "تم",
		Owner: true, OperatorEmail: "agent@abar.app", ConversationID: "conv-7",
	}.ToInbound(time.Now())
	if !msg.AgentOwner || msg.OperatorEmail != "agent@abar.app" || msg.ConversationID != "conv-7" {
		t.Errorf("inbound = %+v", msg)
	}
}

func TestSendFallsBackToAlternativeEndpoint(t *testing.T) {
	var primaryHits, altHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer key" {
			t.Errorf("auth = %q", auth)
		}
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v1/sendSessionMessage/"):
			primaryHits++
			http.Error(w, "not found", http.StatusNotFound)
		case strings.HasPrefix(r.URL.Path, "/sendSessionMessage/"):
			altHits++
			if got := r.URL.Query().Get("messageText"); got != "هلا والله" {
				t.Errorf("messageText = %q", got)
			}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	w := NewWati(config.WatiConfig{APIURL: srv.URL, APIKey: "key"}, slog.Default())
	if err := w.Send(context.Background(), "966501234567", "هلا والله"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if primaryHits != 1 || altHits != 1 {
		t.Errorf("hits = %d primary / %d alternative, want 1/1", primaryHits, altHits)
	}
}

func TestSendTerminalWhenBothEndpointsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := NewWati(config.WatiConfig{APIURL: srv.URL, APIKey: "bad"}, slog.Default())
	if err := w.Send(context.Background(), "966501234567", "x"); err == nil {
		t.Error("send succeeded against failing gateway")
	}
}

func TestVerifyChallenge(t *testing.T) {
	w := NewWati(config.WatiConfig{VerifyToken: "secret"}, slog.Default())

	cases := []struct {
		name  string
		query url.Values
		want  string
		ok    bool
	}{
		{"valid", url.Values{"hub.mode": {"subscribe"}, "hub.verify_token": {"secret"}, "hub.challenge": {"12345"}}, "12345", true},
		{"wrong token", url.Values{"hub.mode": {"subscribe"}, "hub.verify_token": {"guess"}, "hub.challenge": {"12345"}}, "", false},
		{"wrong mode", url.Values{"hub.mode": {"unsubscribe"}, "hub.verify_token": {"secret"}, "hub.challenge": {"12345"}}, "", false},
		{"missing challenge", url.Values{"hub.mode": {"subscribe"}, "hub.verify_token": {"secret"}}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := w.VerifyChallenge(tc.query)
			if got != tc.want || ok != tc.ok {
				t.Errorf("VerifyChallenge = %q, %v", got, ok)
			}
		})
	}
}
