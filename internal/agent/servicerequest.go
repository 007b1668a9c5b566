package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"aquabot/internal/domain"
	"aquabot/internal/language"
)

// OrderRequest is the structured order extracted from a service-request turn.
type OrderRequest struct {
	CustomerName string `json:"customer_name"`
	City         string `json:"city"`
	Address      string `json:"address"`
	Product      string `json:"product"`
	Quantity     int    `json:"quantity"`
}

// missingFields lists the required fields the extraction left empty, as
// user-facing labels.
func (o OrderRequest) missingFields(lang string) []string {
	labels := map[string][2]string{
		"city":    {"المدينة", "city"},
		"address": {"العنوان", "delivery address"},
		"product": {"المنتج المطلوب", "product"},
	}
	idx := 0
	if lang == language.English {
		idx = 1
	}
	var missing []string
	if strings.TrimSpace(o.City) == "" {
		missing = append(missing, labels["city"][idx])
	}
	if strings.TrimSpace(o.Address) == "" {
		missing = append(missing, labels["address"][idx])
	}
	if strings.TrimSpace(o.Product) == "" {
		missing = append(missing, labels["product"][idx])
	}
	return missing
}

// ServiceRequestAgent extracts an order from a service-request message and
// submits it to the external orders API. Incomplete orders get a prompt for
// the missing details instead of a submission.
type ServiceRequestAgent struct {
	completer domain.Completer
	client    *http.Client
	ordersURL string
	ordersKey string
	logger    *slog.Logger
}

type ServiceRequestConfig struct {
	Completer domain.Completer
	OrdersURL string
	OrdersKey string
	Logger    *slog.Logger
	Timeout   time.Duration
}

func NewServiceRequestAgent(cfg ServiceRequestConfig) *ServiceRequestAgent {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &ServiceRequestAgent{
		completer: cfg.Completer,
		client:    &http.Client{Timeout: cfg.Timeout},
		ordersURL: cfg.OrdersURL,
		ordersKey: cfg.OrdersKey,
		logger:    cfg.Logger,
	}
}

const extractOrderPrompt = `استخرج تفاصيل طلب التوصيل من رسالة العميل.
أجب بصيغة JSON فقط بدون أي نص إضافي، بالحقول التالية:
{"customer_name": "", "city": "", "address": "", "product": "", "quantity": 0}
اترك أي حقل غير مذكور في الرسالة فارغاً، واجعل quantity صفراً إذا لم تذكر الكمية.`

// Handle extracts the order, asks for missing fields, or submits it.
func (a *ServiceRequestAgent) Handle(ctx context.Context, phone, text, lang string) (string, error) {
	raw, err := a.completer.Complete(ctx, extractOrderPrompt, text)
	if err != nil {
		return "", fmt.Errorf("extract order: %w", err)
	}

	var order OrderRequest
	if err := json.Unmarshal([]byte(stripJSONFences(raw)), &order); err != nil {
		return "", fmt.Errorf("parse extracted order: %w", err)
	}

	if missing := order.missingFields(lang); len(missing) > 0 {
		if lang == language.English {
			return "To complete your request, could you share the following: " +
				strings.Join(missing, ", ") + "?", nil
		}
		return "عشان نكمل طلبك، ممكن تزودنا بالتالي: " + strings.Join(missing, "، ") + "؟", nil
	}

	if order.Quantity <= 0 {
		order.Quantity = 1
	}
	if err := a.submit(ctx, phone, order); err != nil {
		return "", err
	}
	return language.Response(lang, language.RespServiceRequestTeam), nil
}

// submit posts the order to the external orders API.
func (a *ServiceRequestAgent) submit(ctx context.Context, phone string, order OrderRequest) error {
	if a.ordersURL == "" {
		return fmt.Errorf("orders API not configured")
	}
	payload, err := json.Marshal(map[string]any{
		"phone":         phone,
		"customer_name": order.CustomerName,
		"city":          order.City,
		"address":       order.Address,
		"product":       order.Product,
		"quantity":      order.Quantity,
	})
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.ordersURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.ordersKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.ordersKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit order: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("orders API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	a.logger.Info("order submitted", "phone", phone, "city", order.City, "product", order.Product)
	return nil
}

// stripJSONFences removes markdown code fences models sometimes wrap JSON in.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
