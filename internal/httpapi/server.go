// Package httpapi exposes the webhook boundary, the catalog data API, and
// the knowledge/sync management endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"aquabot/internal/bus"
	"aquabot/internal/channel"
	"aquabot/internal/domain"
	"aquabot/internal/knowledge"
	"aquabot/internal/metrics"
	"aquabot/internal/routing"
	"aquabot/internal/scraper"
	"aquabot/internal/store"
)

// Server wires the HTTP surface together.
type Server struct {
	bus       *bus.InMemoryBus
	wati      *channel.Wati
	store     *store.Store
	engine    *knowledge.Engine
	scheduler *scraper.Scheduler
	pauses    *routing.PauseGate
	logger    *slog.Logger

	http *http.Server
}

type ServerConfig struct {
	Listen    string
	Bus       *bus.InMemoryBus
	Wati      *channel.Wati
	Store     *store.Store
	Engine    *knowledge.Engine
	Scheduler *scraper.Scheduler
	Pauses    *routing.PauseGate
	Logger    *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		bus:       cfg.Bus,
		wati:      cfg.Wati,
		store:     cfg.Store,
		engine:    cfg.Engine,
		scheduler: cfg.Scheduler,
		pauses:    cfg.Pauses,
		logger:    cfg.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", metrics.Collector.Handler())

	r.Get("/webhook", s.handleWebhookVerify)
	r.Post("/webhook", s.handleWebhook)
	r.Post("/send-message", s.handleSendMessage)

	r.Route("/api", func(r chi.Router) {
		r.Get("/cities", s.handleCities)
		r.Get("/cities/{id}", s.handleCityByID)
		r.Get("/brands", s.handleBrands)
		r.Get("/brands/{id}", s.handleBrandByID)
		r.Get("/brands/{id}/products", s.handleBrandProducts)
		r.Get("/products", s.handleProducts)
		r.Get("/products/{id}", s.handleProductByID)
		r.Post("/users/{id}/conclusion", s.handleUserConclusion)
	})

	r.Route("/knowledge", func(r chi.Router) {
		r.Post("/add", s.handleKnowledgeAdd)
		r.Get("/search", s.handleKnowledgeSearch)
		r.Get("/entries", s.handleKnowledgeList)
		r.Delete("/entries/{id}", s.handleKnowledgeDelete)
		r.Post("/populate", s.handleKnowledgePopulate)
		r.Get("/stats", s.handleKnowledgeStats)
	})

	r.Post("/conversations/{id}/unpause", s.handleUnpause)

	r.Post("/data/sync", s.handleSyncTrigger)
	r.Get("/data/sync/status", s.handleSyncStatus)

	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// --- webhook boundary ---

// handleWebhook acks fast: decode, publish to the bus, answer 200. The
// routing pipeline runs asynchronously so the upstream transport never
// retries because of slow processing.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	metrics.WebhooksTotal.Inc()

	payload, err := channel.DecodePayload(r.Body)
	if err != nil {
		s.logger.Warn("malformed webhook payload", "error", err)
		// Still ack: a 4xx would make the transport retry a payload that
		// will never parse.
		writeJSON(w, http.StatusOK, map[string]string{"result": "ignored"})
		return
	}

	s.bus.Publish(payload.ToInbound(time.Now()))
	writeJSON(w, http.StatusOK, map[string]string{"result": "queued"})
}

func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	if challenge, ok := s.wati.VerifyChallenge(r.URL.Query()); ok {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}
	http.Error(w, "verification failed", http.StatusForbidden)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
		Text  string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" || req.Text == "" {
		http.Error(w, "phone and text are required", http.StatusBadRequest)
		return
	}
	if err := s.wati.Send(r.Context(), req.Phone, req.Text); err != nil {
		s.logger.Error("manual send failed", "phone", req.Phone, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "send failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "sent"})
}

// --- catalog data API ---

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	cities, err := s.store.Cities(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		s.internalError(w, "list cities", err)
		return
	}
	writeJSON(w, http.StatusOK, cities)
}

func (s *Server) handleCityByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	city, err := s.store.CityByID(r.Context(), id)
	if err != nil {
		s.internalError(w, "load city", err)
		return
	}
	if city == nil {
		http.Error(w, "city not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, city)
}

func (s *Server) handleBrands(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if cityParam := r.URL.Query().Get("city_id"); cityParam != "" {
		cityID, err := strconv.ParseInt(cityParam, 10, 64)
		if err != nil {
			http.Error(w, "invalid city_id", http.StatusBadRequest)
			return
		}
		brands, err := s.store.BrandsByCity(ctx, cityID)
		if err != nil {
			s.internalError(w, "list brands by city", err)
			return
		}
		writeJSON(w, http.StatusOK, brands)
		return
	}
	brands, err := s.store.Brands(ctx, r.URL.Query().Get("search"))
	if err != nil {
		s.internalError(w, "list brands", err)
		return
	}
	writeJSON(w, http.StatusOK, brands)
}

func (s *Server) handleBrandByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	brand, err := s.store.BrandByID(r.Context(), id)
	if err != nil {
		s.internalError(w, "load brand", err)
		return
	}
	if brand == nil {
		http.Error(w, "brand not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, brand)
}

func (s *Server) handleBrandProducts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	products, err := s.store.ProductsByBrand(r.Context(), id)
	if err != nil {
		s.internalError(w, "list brand products", err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.store.SearchProducts(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		s.internalError(w, "search products", err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleProductByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	product, err := s.store.ProductByID(r.Context(), id)
	if err != nil {
		s.internalError(w, "load product", err)
		return
	}
	if product == nil {
		http.Error(w, "product not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// handleUserConclusion lets the support team attach follow-up notes to a user.
func (s *Server) handleUserConclusion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		Conclusion string `json:"conclusion"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Conclusion == "" {
		http.Error(w, "conclusion is required", http.StatusBadRequest)
		return
	}
	if err := s.store.UpdateUserConclusion(r.Context(), id, req.Conclusion); err != nil {
		s.internalError(w, "update user conclusion", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "updated"})
}

// --- knowledge management ---

func (s *Server) handleKnowledgeAdd(w http.ResponseWriter, r *http.Request) {
	var entry domain.KnowledgeEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		http.Error(w, "invalid entry", http.StatusBadRequest)
		return
	}
	entry.Source = "api"
	res, err := s.engine.Add(r.Context(), entry)
	if err != nil {
		s.internalError(w, "add knowledge entry", err)
		return
	}
	status := http.StatusCreated
	if !res.Added {
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}

func (s *Server) handleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}
	k := 0
	if kParam := r.URL.Query().Get("k"); kParam != "" {
		k, _ = strconv.Atoi(kParam)
	}
	results, err := s.engine.Search(r.Context(), query, k)
	if err != nil {
		s.internalError(w, "knowledge search", err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleKnowledgeList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.List(r.Context())
	if err != nil {
		s.internalError(w, "list knowledge entries", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleKnowledgeDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	if err := s.engine.Delete(r.Context(), id); err != nil {
		s.internalError(w, "delete knowledge entry", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "deleted"})
}

// handleUnpause lets an operator hand a conversation back to the bot before
// the takeover pause expires.
func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	if err := s.pauses.Unpause(r.Context(), id); err != nil {
		s.internalError(w, "unpause conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "unpaused"})
}

func (s *Server) handleKnowledgePopulate(w http.ResponseWriter, r *http.Request) {
	added, skipped, err := s.engine.Seed(r.Context())
	if err != nil {
		s.internalError(w, "seed knowledge base", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"added": added, "skipped": skipped})
}

func (s *Server) handleKnowledgeStats(w http.ResponseWriter, r *http.Request) {
	count, err := s.engine.Count(r.Context())
	if err != nil {
		s.internalError(w, "count knowledge entries", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"entries": count})
}

// --- catalog sync ---

func (s *Server) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	go func() {
		metrics.SyncRunsTotal.Inc()
		if err := s.scheduler.Trigger(context.Background()); err != nil {
			s.logger.Error("manual catalog sync failed", "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"result": "sync started"})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	last, err := s.scheduler.Status(r.Context())
	if err != nil {
		s.internalError(w, "load sync status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"running":  s.scheduler.Running(),
		"last_run": last,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": metrics.Collector.Uptime().String(),
	})
}

// --- helpers ---

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
