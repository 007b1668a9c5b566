package language

import (
	"testing"

	"aquabot/internal/domain"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"هلا والله", Arabic},
		{"Hello there", English},
		{"وش سعر الكرتون؟", Arabic},
		{"مرحبا hello", Arabic},            // tie goes to Arabic
		{"ok هلا والله كيف الحال", Arabic}, // majority Arabic
		{"12345 !!!", Default},             // no letters at all
		{"", Default},
	}
	for _, tc := range cases {
		if got := Detect(tc.text); got != tc.want {
			t.Errorf("Detect(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestResponseFallsBackToArabic(t *testing.T) {
	if got := Response("fr", RespGreeting); got != responses[Arabic][RespGreeting] {
		t.Errorf("unsupported language response = %q, want Arabic fallback", got)
	}
}

func TestResponsesCoverBothLanguages(t *testing.T) {
	keys := []ResponseKey{
		RespGreeting, RespSuggestion, RespComplaint, RespInquiryTeam,
		RespServiceRequestTeam, RespTeamWillReply, RespUnknown, RespError,
	}
	for _, lang := range []string{Arabic, English} {
		for _, key := range keys {
			if Response(lang, key) == "" {
				t.Errorf("missing %s response for key %q", lang, key)
			}
		}
	}
}

func TestDeferralByType(t *testing.T) {
	cases := []struct {
		t    domain.MessageType
		want ResponseKey
	}{
		{domain.TypeComplaint, RespComplaint},
		{domain.TypeInquiry, RespInquiryTeam},
		{domain.TypeServiceRequest, RespServiceRequestTeam},
		{domain.TypeOther, RespTeamWillReply},
		{domain.TypeGreeting, RespTeamWillReply},
	}
	for _, tc := range cases {
		if got := Deferral(Arabic, tc.t); got != Response(Arabic, tc.want) {
			t.Errorf("Deferral(ar, %s) = %q, want %q response", tc.t, got, tc.want)
		}
	}
}
