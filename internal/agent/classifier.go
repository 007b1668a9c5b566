// Package agent holds the LLM-backed turn handlers: message classification,
// catalog inquiries via function calling, and service-request intake.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"aquabot/internal/domain"
	"aquabot/internal/language"
)

// Arabic classification labels the prompt asks for, mapped to the enum.
var arabicTypeLabels = map[string]domain.MessageType{
	"تحية":      domain.TypeGreeting,
	"اقتراح":    domain.TypeSuggestion,
	"شكوى":      domain.TypeComplaint,
	"استفسار":   domain.TypeInquiry,
	"طلب خدمة":  domain.TypeServiceRequest,
	"أخرى":      domain.TypeOther,
	"اخرى":      domain.TypeOther,
}

const classifyPrompt = `أنت مصنف رسائل لخدمة عملاء شركة توصيل مياه.
صنف رسالة العميل إلى واحدة فقط من الفئات التالية:
- تحية: ترحيب أو سلام بدون طلب محدد
- اقتراح: فكرة أو تحسين يقترحه العميل
- شكوى: تذمر من الخدمة أو التوصيل أو المنتج
- استفسار: سؤال عن المدن أو العلامات التجارية أو المنتجات أو الخدمة
- طلب خدمة: طلب توصيل أو تنفيذ خدمة محددة
- أخرى: أي شيء آخر

أجب باسم الفئة فقط، كلمة واحدة أو كلمتين، بدون أي شرح.`

// Classifier assigns one of the six message types to a user turn. The
// taxonomy prompt is Arabic; English input is translated first so one prompt
// serves both languages.
type Classifier struct {
	completer domain.Completer
	logger    *slog.Logger
}

func NewClassifier(completer domain.Completer, logger *slog.Logger) *Classifier {
	return &Classifier{completer: completer, logger: logger}
}

// Classify returns the message type and detected language. An unparseable
// model answer is an error; the caller defaults it, not us.
func (c *Classifier) Classify(ctx context.Context, text, history string) (domain.ClassificationResult, error) {
	lang := language.Detect(text)

	classifyText := text
	if lang == language.English {
		translated, err := language.TranslateToArabic(ctx, c.completer, text)
		if err != nil {
			c.logger.Warn("pre-classification translation failed, classifying as-is", "error", err)
		} else {
			classifyText = translated
		}
	}

	user := "رسالة العميل: " + classifyText
	if history != "" {
		user = "المحادثة السابقة:\n" + history + "\n\n" + user
	}

	raw, err := c.completer.Complete(ctx, classifyPrompt, user)
	if err != nil {
		return domain.ClassificationResult{}, fmt.Errorf("classify turn: %w", err)
	}

	t, ok := parseTypeLabel(raw)
	if !ok {
		return domain.ClassificationResult{}, fmt.Errorf("unrecognized classification %q", raw)
	}
	return domain.ClassificationResult{Type: t, Language: lang}, nil
}

// parseTypeLabel matches the model's answer against the Arabic labels and,
// as a fallback, the enum's English names.
func parseTypeLabel(raw string) (domain.MessageType, bool) {
	cleaned := strings.TrimSpace(strings.Trim(raw, `"'.،: `))
	if t, ok := arabicTypeLabels[cleaned]; ok {
		return t, true
	}
	for label, t := range arabicTypeLabels {
		if strings.Contains(cleaned, label) {
			return t, true
		}
	}
	lower := strings.ToLower(cleaned)
	for _, t := range []domain.MessageType{
		domain.TypeGreeting, domain.TypeSuggestion, domain.TypeComplaint,
		domain.TypeInquiry, domain.TypeServiceRequest, domain.TypeOther,
	} {
		if strings.Contains(lower, string(t)) {
			return t, true
		}
	}
	return "", false
}
