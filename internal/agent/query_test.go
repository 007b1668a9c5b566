package agent

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"aquabot/internal/domain"
)

// scriptedChat replays a fixed sequence of chat results.
type scriptedChat struct {
	results []*domain.ChatResult
	calls   int
	lastMsg []domain.ChatMessage
}

func (c *scriptedChat) Complete(context.Context, string, string) (string, error) {
	return "", nil
}

func (c *scriptedChat) Chat(_ context.Context, messages []domain.ChatMessage, _ []domain.FunctionDef) (*domain.ChatResult, error) {
	c.lastMsg = messages
	if c.calls >= len(c.results) {
		return &domain.ChatResult{Content: "done"}, nil
	}
	res := c.results[c.calls]
	c.calls++
	return res, nil
}

type stubCatalog struct{}

func (stubCatalog) Cities(_ context.Context, search string) ([]domain.City, error) {
	if search != "" && !strings.Contains("الرياض", search) {
		return nil, nil
	}
	return []domain.City{{ID: 1, ExternalID: 5, Name: "الرياض", NameEn: "Riyadh"}}, nil
}

func (stubCatalog) BrandsByCity(context.Context, int64) ([]domain.Brand, error) {
	return []domain.Brand{{ID: 2, Title: "نوفا"}}, nil
}

func (stubCatalog) ProductsByBrand(context.Context, int64) ([]domain.Product, error) {
	return []domain.Product{{ID: 3, Title: "مياه نوفا 330 مل", ContractPrice: 18.5}}, nil
}

func (stubCatalog) SearchProducts(context.Context, string) ([]domain.Product, error) {
	return nil, nil
}

func TestQueryAgentFunctionLoop(t *testing.T) {
	chat := &scriptedChat{results: []*domain.ChatResult{
		{FunctionCall: &domain.FunctionCall{Name: "get_city_id_by_name", Arguments: `{"name":"الرياض"}`}},
		{FunctionCall: &domain.FunctionCall{Name: "get_brands_by_city", Arguments: `{"city_id":1}`}},
		{Content: "يتوفر في الرياض: نوفا."},
	}}
	a := NewQueryAgent(chat, stubCatalog{}, slog.Default())

	reply, err := a.Answer(context.Background(), "وش العلامات المتوفرة في الرياض؟", "")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if reply != "يتوفر في الرياض: نوفا." {
		t.Errorf("reply = %q", reply)
	}

	// The function results must be fed back into the conversation.
	var functionTurns int
	for _, m := range chat.lastMsg {
		if m.Role == "function" {
			functionTurns++
		}
	}
	if functionTurns != 2 {
		t.Errorf("conversation carried %d function results, want 2", functionTurns)
	}
}

func TestQueryAgentUnknownFunctionRecovers(t *testing.T) {
	chat := &scriptedChat{results: []*domain.ChatResult{
		{FunctionCall: &domain.FunctionCall{Name: "launch_rocket", Arguments: `{}`}},
		{Content: "عذراً، ما قدرت ألقى المعلومة."},
	}}
	a := NewQueryAgent(chat, stubCatalog{}, slog.Default())

	reply, err := a.Answer(context.Background(), "سؤال", "")
	if err != nil {
		t.Fatalf("unknown function should be fed back, not fatal: %v", err)
	}
	if reply == "" {
		t.Error("empty reply after recovery")
	}
}

func TestQueryAgentBoundedRounds(t *testing.T) {
	// A model that never stops calling functions must hit the round limit.
	loop := make([]*domain.ChatResult, maxFunctionRounds+2)
	for i := range loop {
		loop[i] = &domain.ChatResult{FunctionCall: &domain.FunctionCall{Name: "get_all_cities", Arguments: `{}`}}
	}
	a := NewQueryAgent(&scriptedChat{results: loop}, stubCatalog{}, slog.Default())

	if _, err := a.Answer(context.Background(), "سؤال", ""); err == nil {
		t.Error("endless function-calling did not error at the round limit")
	}
}
