package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"aquabot/internal/domain"
)

// maxFunctionRounds bounds the function-calling loop so a confused model
// cannot spin forever.
const maxFunctionRounds = 5

// CatalogStore is the catalog lookup surface exposed to the query agent.
type CatalogStore interface {
	Cities(ctx context.Context, search string) ([]domain.City, error)
	BrandsByCity(ctx context.Context, cityID int64) ([]domain.Brand, error)
	ProductsByBrand(ctx context.Context, brandID int64) ([]domain.Product, error)
	SearchProducts(ctx context.Context, search string) ([]domain.Product, error)
}

// QueryAgent answers catalog inquiries (cities, brands, products, prices)
// by letting the model call lookup functions against the local catalog.
type QueryAgent struct {
	completer domain.Completer
	catalog   CatalogStore
	logger    *slog.Logger
}

func NewQueryAgent(completer domain.Completer, catalog CatalogStore, logger *slog.Logger) *QueryAgent {
	return &QueryAgent{completer: completer, catalog: catalog, logger: logger}
}

const querySystemPrompt = `أنت مساعد خدمة عملاء لتطبيق توصيل مياه في السعودية.
أجب على استفسارات العملاء عن المدن المغطاة والعلامات التجارية والمنتجات والأسعار.
استخدم الدوال المتاحة للبحث في البيانات، ولا تخترع معلومات غير موجودة فيها.
أجب بنفس لغة العميل، بإيجاز وبأسلوب ودود.`

var queryFunctions = []domain.FunctionDef{
	{
		Name:        "get_all_cities",
		Description: "List all cities the service covers.",
		Parameters:  objectSchema(nil, nil),
	},
	{
		Name:        "get_city_id_by_name",
		Description: "Find a city's id by its Arabic or English name.",
		Parameters: objectSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "City name to look up"},
		}, []string{"name"}),
	},
	{
		Name:        "get_brands_by_city",
		Description: "List water brands delivering to a city.",
		Parameters: objectSchema(map[string]any{
			"city_id": map[string]any{"type": "integer", "description": "City id from get_city_id_by_name"},
		}, []string{"city_id"}),
	},
	{
		Name:        "get_products_by_brand",
		Description: "List a brand's products with packing and prices.",
		Parameters: objectSchema(map[string]any{
			"brand_id": map[string]any{"type": "integer", "description": "Brand id"},
		}, []string{"brand_id"}),
	},
	{
		Name:        "search_cities",
		Description: "Search cities by partial name.",
		Parameters: objectSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "Partial city name"},
		}, []string{"query"}),
	},
	{
		Name:        "search_products",
		Description: "Search products by partial title.",
		Parameters: objectSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "Partial product title"},
		}, []string{"query"}),
	},
}

func objectSchema(props map[string]any, required []string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Answer runs the function-calling loop and returns the final reply text.
func (a *QueryAgent) Answer(ctx context.Context, question, history string) (string, error) {
	messages := []domain.ChatMessage{
		{Role: "system", Content: querySystemPrompt},
	}
	if history != "" {
		messages = append(messages, domain.ChatMessage{Role: "system", Content: "المحادثة السابقة:\n" + history})
	}
	messages = append(messages, domain.ChatMessage{Role: "user", Content: question})

	for round := 0; round < maxFunctionRounds; round++ {
		result, err := a.completer.Chat(ctx, messages, queryFunctions)
		if err != nil {
			return "", fmt.Errorf("query agent round %d: %w", round+1, err)
		}
		if result.FunctionCall == nil {
			return result.Content, nil
		}

		call := result.FunctionCall
		a.logger.Debug("query agent function call", "name", call.Name, "args", call.Arguments)

		payload, err := a.invoke(ctx, call)
		if err != nil {
			// Feed the error back so the model can recover or apologize.
			payload = fmt.Sprintf(`{"error": %q}`, err.Error())
		}
		messages = append(messages,
			domain.ChatMessage{Role: "assistant", Content: fmt.Sprintf("calling %s(%s)", call.Name, call.Arguments)},
			domain.ChatMessage{Role: "function", Name: call.Name, Content: payload},
		)
	}
	return "", fmt.Errorf("query agent exceeded %d function rounds", maxFunctionRounds)
}

// invoke dispatches one function call against the catalog store and returns
// a JSON payload for the model.
func (a *QueryAgent) invoke(ctx context.Context, call *domain.FunctionCall) (string, error) {
	var args struct {
		Name    string `json:"name"`
		Query   string `json:"query"`
		CityID  int64  `json:"city_id"`
		BrandID int64  `json:"brand_id"`
	}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "", fmt.Errorf("parse %s arguments: %w", call.Name, err)
		}
	}

	switch call.Name {
	case "get_all_cities":
		cities, err := a.catalog.Cities(ctx, "")
		return marshalResult(cities, err)

	case "get_city_id_by_name":
		cities, err := a.catalog.Cities(ctx, args.Name)
		if err != nil {
			return "", err
		}
		if len(cities) == 0 {
			return `{"found": false}`, nil
		}
		return marshalResult(map[string]any{
			"found": true, "city_id": cities[0].ID,
			"name": cities[0].Name, "name_en": cities[0].NameEn,
		}, nil)

	case "get_brands_by_city":
		brands, err := a.catalog.BrandsByCity(ctx, args.CityID)
		return marshalResult(brands, err)

	case "get_products_by_brand":
		products, err := a.catalog.ProductsByBrand(ctx, args.BrandID)
		return marshalResult(products, err)

	case "search_cities":
		cities, err := a.catalog.Cities(ctx, args.Query)
		return marshalResult(cities, err)

	case "search_products":
		products, err := a.catalog.SearchProducts(ctx, args.Query)
		return marshalResult(products, err)

	default:
		return "", fmt.Errorf("unknown function %q", call.Name)
	}
}

func marshalResult(v any, err error) (string, error) {
	if err != nil {
		return "", err
	}
	data, merr := json.Marshal(v)
	if merr != nil {
		return "", fmt.Errorf("marshal function result: %w", merr)
	}
	return string(data), nil
}
