// Package http exposes the market aggregation state over a plain ServeMux:
// read endpoints for the collections and the snapshot, write endpoints that
// validate and forward to the stores, and the WebSocket upgrade path.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/julioberne/mercadosocial/internal/domain/currency"
	"github.com/julioberne/mercadosocial/internal/domain/model"
	"github.com/julioberne/mercadosocial/internal/domain/repository"
	"github.com/julioberne/mercadosocial/internal/domain/service"
	"github.com/julioberne/mercadosocial/internal/domain/useCases"
)

// Stores bundles the per-collection services the server reads and writes.
type Stores struct {
	Votes    *service.VotesStore
	Offers   *service.OffersStore
	Opinions *service.OpinionsStore
	Product  *service.ProductStore
	Prices   *service.PriceHistoryStore
}

// Server is the HTTP front of the aggregation core.
type Server struct {
	log        *slog.Logger
	stores     Stores
	aggregator *service.MarketAggregator
	rates      func() currency.RateTable
	wsHandle   func(http.ResponseWriter, *http.Request)
	cache      repository.SnapshotCache

	mux    *http.ServeMux
	server *http.Server
}

func NewServer(addr string, log *slog.Logger, stores Stores, aggregator *service.MarketAggregator, rates func() currency.RateTable, broadcaster useCases.Broadcaster, cache repository.SnapshotCache) *Server {
	mux := http.NewServeMux()

	s := &Server{
		log:        log,
		stores:     stores,
		aggregator: aggregator,
		rates:      rates,
		wsHandle:   broadcaster.Handler(),
		cache:      cache,
		mux:        mux,
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/market", s.handleMarket)
	s.mux.HandleFunc("/product", s.handleProduct)
	s.mux.HandleFunc("/product/save", s.handleProductSave)
	s.mux.HandleFunc("/product/lock", s.handleProductLock)
	s.mux.HandleFunc("/product/sell", s.handleProductSell)
	s.mux.HandleFunc("/votes", s.handleVotes)
	s.mux.HandleFunc("/offers", s.handleOffers)
	s.mux.HandleFunc("/offers/accept", s.handleOfferAccept)
	s.mux.HandleFunc("/opinions", s.handleOpinions)
	s.mux.HandleFunc("/currencies", s.handleCurrencies)
	s.mux.HandleFunc("/currency", s.handleCurrencySwitch)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/ws", s.wsHandle)
}

// displayCurrency reads ?currency=, defaulting to the selected display
// currency.
func (s *Server) displayCurrency(r *http.Request) (model.CurrencyCode, bool) {
	raw := r.URL.Query().Get("currency")
	if raw == "" {
		return s.aggregator.DisplayCurrency(), true
	}
	code := model.CurrencyCode(raw)
	return code, code.Valid()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("encoding response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	display, ok := s.displayCurrency(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "moneda no soportada")
		return
	}
	// Before the first product load the live snapshot is empty; a cached one
	// from the previous run is the better answer.
	if s.stores.Product.Product() == nil && s.cache != nil {
		if snap, err := s.cache.GetSnapshot(r.Context(), s.stores.Product.ProductID()); err == nil && snap != nil {
			s.writeJSON(w, http.StatusOK, snap)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, s.aggregator.Snapshot(display))
}

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "método no permitido")
		return
	}
	p := s.stores.Product.Product()
	if p == nil {
		s.writeError(w, http.StatusServiceUnavailable, "producto no cargado")
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

type productSaveRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	OwnerPrice  float64  `json:"owner_price"`
	Currency    string   `json:"currency"`
	Images      []string `json:"images"`
	VideoURL    string   `json:"video_url"`
}

func (s *Server) handleProductSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "método no permitido")
		return
	}
	var req productSaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "cuerpo inválido")
		return
	}
	if msg := service.ValidateRequired(req.Name, "Nombre"); msg != "" {
		s.writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}
	if !service.ValidatePositiveNumber(req.OwnerPrice) {
		s.writeError(w, http.StatusUnprocessableEntity, "El precio debe ser un número positivo")
		return
	}
	code := model.CurrencyCode(req.Currency)
	if !code.Valid() {
		s.writeError(w, http.StatusUnprocessableEntity, "moneda no soportada")
		return
	}

	prev := s.stores.Product.Product()
	updates := model.Product{
		Name:        req.Name,
		Description: req.Description,
		Content:     req.Content,
		OwnerPrice:  model.Money{Amount: req.OwnerPrice, Currency: code},
		Images:      req.Images,
		VideoURL:    req.VideoURL,
	}
	if err := s.stores.Product.Save(r.Context(), updates); err != nil {
		s.writeError(w, http.StatusBadGateway, "no se pudo guardar el producto")
		return
	}

	// A changed owner price becomes a new sample in the persisted series.
	if prev == nil || prev.OwnerPrice != updates.OwnerPrice {
		if err := s.stores.Prices.AddPoint(r.Context(), updates.OwnerPrice); err != nil {
			s.log.Warn("recording price point failed", "error", err)
		}
	}
	s.writeJSON(w, http.StatusOK, s.stores.Product.Product())
}

func (s *Server) handleProductLock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "método no permitido")
		return
	}
	status, err := s.stores.Product.ToggleLock(r.Context())
	if err != nil {
		if err == service.ErrProductSold {
			s.writeError(w, http.StatusConflict, "el producto ya está vendido")
			return
		}
		s.writeError(w, http.StatusBadGateway, "no se pudo cambiar el estado")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

type sellRequest struct {
	FinalPrice float64 `json:"final_price"`
	Currency   string  `json:"currency"`
}

func (s *Server) handleProductSell(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "método no permitido")
		return
	}
	var req sellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "cuerpo inválido")
		return
	}
	code := model.CurrencyCode(req.Currency)
	if !service.ValidatePositiveNumber(req.FinalPrice) || !code.Valid() {
		s.writeError(w, http.StatusUnprocessableEntity, "precio final inválido")
		return
	}
	if err := s.stores.Product.Sell(r.Context(), model.Money{Amount: req.FinalPrice, Currency: code}); err != nil {
		s.writeError(w, http.StatusBadGateway, "no se pudo vender el producto")
		return
	}
	s.writeJSON(w, http.StatusOK, s.stores.Product.Product())
}

type voteRequest struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

func (s *Server) handleVotes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		display, ok := s.displayCurrency(r)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "moneda no soportada")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"votes":   s.stores.Votes.Votes(),
			"stats":   s.stores.Votes.Stats(display),
			"history": s.stores.Votes.History(),
		})
	case http.MethodPost:
		var req voteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "cuerpo inválido")
			return
		}
		code := model.CurrencyCode(req.Currency)
		if !service.ValidatePositiveNumber(req.Value) || !code.Valid() {
			s.writeError(w, http.StatusUnprocessableEntity, "valor inválido")
			return
		}
		if res := s.validateAgainstBase(req.Value, code); !res.Valid {
			s.writeJSON(w, http.StatusUnprocessableEntity, res)
			return
		}
		vote, err := s.stores.Votes.Submit(r.Context(), model.Money{Amount: req.Value, Currency: code})
		if err != nil {
			s.writeError(w, http.StatusBadGateway, "no se pudo registrar el voto")
			return
		}
		s.writeJSON(w, http.StatusCreated, vote)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "método no permitido")
	}
}

type offerRequest struct {
	Bidder   string  `json:"bidder"`
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

func (s *Server) handleOffers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		display, ok := s.displayCurrency(r)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "moneda no soportada")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"offers":  s.stores.Offers.Offers(),
			"stats":   s.stores.Offers.Stats(display),
			"history": s.stores.Offers.History(),
		})
	case http.MethodPost:
		var req offerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "cuerpo inválido")
			return
		}
		if msg := service.ValidateRequired(req.Bidder, "Postor"); msg != "" {
			s.writeError(w, http.StatusUnprocessableEntity, msg)
			return
		}
		code := model.CurrencyCode(req.Currency)
		if !service.ValidatePositiveNumber(req.Value) || !code.Valid() {
			s.writeError(w, http.StatusUnprocessableEntity, "valor inválido")
			return
		}
		if res := s.validateAgainstBase(req.Value, code); !res.Valid {
			s.writeJSON(w, http.StatusUnprocessableEntity, res)
			return
		}
		offer, err := s.stores.Offers.Submit(r.Context(), req.Bidder, model.Money{Amount: req.Value, Currency: code})
		if err != nil {
			s.writeError(w, http.StatusBadGateway, "no se pudo registrar la oferta")
			return
		}
		s.writeJSON(w, http.StatusCreated, offer)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "método no permitido")
	}
}

type acceptRequest struct {
	OfferID int64 `json:"offer_id"`
}

func (s *Server) handleOfferAccept(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "método no permitido")
		return
	}
	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OfferID == 0 {
		s.writeError(w, http.StatusBadRequest, "cuerpo inválido")
		return
	}
	if err := s.stores.Offers.Accept(r.Context(), req.OfferID); err != nil {
		s.writeError(w, http.StatusBadGateway, "no se pudo aceptar la oferta")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": string(model.OfferAccepted)})
}

type opinionRequest struct {
	Author   string  `json:"author"`
	Content  string  `json:"content"`
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

func (s *Server) handleOpinions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, map[string]any{
			"opinions": s.stores.Opinions.Opinions(),
			"stats":    s.stores.Opinions.Stats(),
		})
	case http.MethodPost:
		var req opinionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "cuerpo inválido")
			return
		}
		if msg := service.ValidateRequired(req.Content, "Comentario"); msg != "" {
			s.writeError(w, http.StatusUnprocessableEntity, msg)
			return
		}
		code := model.CurrencyCode(req.Currency)
		if !service.ValidatePositiveNumber(req.Value) || !code.Valid() {
			s.writeError(w, http.StatusUnprocessableEntity, "valor inválido")
			return
		}
		if res := s.validateAgainstBase(req.Value, code); !res.Valid {
			s.writeJSON(w, http.StatusUnprocessableEntity, res)
			return
		}
		opinion, err := s.stores.Opinions.Submit(r.Context(), req.Author, req.Content, model.Money{Amount: req.Value, Currency: code})
		if err != nil {
			s.writeError(w, http.StatusBadGateway, "no se pudo registrar la opinión")
			return
		}
		s.writeJSON(w, http.StatusCreated, opinion)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "método no permitido")
	}
}

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, currency.Options())
}

type currencySwitchRequest struct {
	Currency string `json:"currency"`
}

// handleCurrencySwitch changes the selected display currency; the vote and
// offer history series are rebuilt in it and subsequent broadcasts use it.
func (s *Server) handleCurrencySwitch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "método no permitido")
		return
	}
	var req currencySwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "cuerpo inválido")
		return
	}
	code := model.CurrencyCode(req.Currency)
	if !code.Valid() {
		s.writeError(w, http.StatusUnprocessableEntity, "moneda no soportada")
		return
	}
	s.aggregator.SetDisplayCurrency(code)
	s.writeJSON(w, http.StatusOK, s.aggregator.Snapshot(code))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// validateAgainstBase applies the triple-limit guard relative to the loaded
// product's owner price. With no product loaded the guard passes; it is
// advisory either way.
func (s *Server) validateAgainstBase(amount float64, code model.CurrencyCode) service.ValidationResult {
	p := s.stores.Product.Product()
	if p == nil {
		return service.ValidationResult{Valid: true}
	}
	return service.ValidateTripleLimit(amount, code, p.OwnerPrice.Amount, p.OwnerPrice.Currency, s.rates())
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
