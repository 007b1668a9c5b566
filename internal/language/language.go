// Package language provides language detection and the canned response
// catalog for both supported languages.
package language

import (
	"context"
	"unicode"

	"aquabot/internal/domain"
)

const (
	Arabic  = "ar"
	English = "en"

	// Default is the fallback when detection is inconclusive.
	Default = Arabic
)

// Detect classifies text as Arabic or English by counting characters in the
// Arabic Unicode blocks against Latin letters. Ties go to Arabic, matching
// the service's primary audience.
func Detect(text string) string {
	var arabic, latin int
	for _, r := range text {
		switch {
		case isArabic(r):
			arabic++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	if arabic >= latin && arabic > 0 {
		return Arabic
	}
	if latin > 0 {
		return English
	}
	return Default
}

func isArabic(r rune) bool {
	return (r >= 0x0600 && r <= 0x06FF) ||
		(r >= 0x0750 && r <= 0x077F) ||
		(r >= 0x08A0 && r <= 0x08FF)
}

// ResponseKey names one canned reply.
type ResponseKey string

const (
	RespGreeting           ResponseKey = "greeting"
	RespSuggestion         ResponseKey = "suggestion"
	RespComplaint          ResponseKey = "complaint"
	RespInquiryTeam        ResponseKey = "inquiry_team"
	RespServiceRequestTeam ResponseKey = "service_request_team"
	RespTeamWillReply      ResponseKey = "team_will_reply"
	RespUnknown            ResponseKey = "unknown"
	RespError              ResponseKey = "error"
)

// Saudi-dialect Arabic replies, matching the service's tone.
var responses = map[string]map[ResponseKey]string{
	Arabic: {
		RespGreeting:           "هلا! كيف اقدر اساعدك اليوم؟",
		RespSuggestion:         "شكراً على اقتراحك! نقدر ملاحظاتك وراح ناخذها بعين الاعتبار.",
		RespComplaint:          "آسف لسماع شكواك. فريقنا راح يراجع الشكوى ويرد عليك بأقرب وقت ممكن.",
		RespInquiryTeam:        "شكراً على استفسارك. فريق الدعم الفني راح يرد عليك بأقرب وقت ممكن.",
		RespServiceRequestTeam: "تم استلام طلبك. فريق خدمة العملاء راح يتواصل معك قريباً لتنسيق الخدمة.",
		RespTeamWillReply:      "شكراً لتواصلك معنا. فريقنا راح يرد عليك بأقرب وقت ممكن إن شاء الله.",
		RespUnknown:            "عذراً، ما فهمت طلبك. ممكن توضح اكثر؟",
		RespError:              "عذراً، حدث خطأ أثناء معالجة رسالتك. الرجاء المحاولة مرة أخرى.",
	},
	English: {
		RespGreeting:           "Hello! How can I assist you today?",
		RespSuggestion:         "Thank you for your suggestion! We appreciate your feedback and will take it into consideration.",
		RespComplaint:          "We're sorry to hear about your complaint. Our team will review it and get back to you as soon as possible.",
		RespInquiryTeam:        "Thank you for your inquiry. Our support team will respond to you as soon as possible.",
		RespServiceRequestTeam: "Your request has been received. Our customer service team will contact you shortly to coordinate the service.",
		RespTeamWillReply:      "Thank you for contacting us. Our team will get back to you as soon as possible.",
		RespUnknown:            "I'm not sure what you mean. Could you please clarify?",
		RespError:              "Sorry, something went wrong while processing your message. Please try again.",
	},
}

// Response returns the canned reply for a key in the given language,
// falling back to Arabic for unsupported languages.
func Response(lang string, key ResponseKey) string {
	table, ok := responses[lang]
	if !ok {
		table = responses[Default]
	}
	return table[key]
}

// Deferral returns the team-deferral reply appropriate for a message type.
func Deferral(lang string, t domain.MessageType) string {
	switch t {
	case domain.TypeComplaint:
		return Response(lang, RespComplaint)
	case domain.TypeInquiry:
		return Response(lang, RespInquiryTeam)
	case domain.TypeServiceRequest:
		return Response(lang, RespServiceRequestTeam)
	default:
		return Response(lang, RespTeamWillReply)
	}
}

const translateToArabicPrompt = `أنت مترجم محترف متخصص في الترجمة إلى اللهجة السعودية.
يجب أن تكون الترجمة باللهجة السعودية الدارجة، مناسبة للمحادثات اليومية وتحافظ على المعنى الأصلي.`

// TranslateToArabic renders English text in Saudi dialect via the LLM.
// On failure the original text is returned with the error.
func TranslateToArabic(ctx context.Context, completer domain.Completer, text string) (string, error) {
	out, err := completer.Complete(ctx, translateToArabicPrompt, "ترجم النص التالي إلى اللهجة السعودية:\n"+text)
	if err != nil || out == "" {
		return text, err
	}
	return out, nil
}
