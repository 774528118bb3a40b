package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/scentworks/fulfillment/internal/auth"
	"github.com/scentworks/fulfillment/internal/catalogue"
	"github.com/scentworks/fulfillment/internal/errs"
	"github.com/scentworks/fulfillment/internal/redisx"
	"github.com/scentworks/fulfillment/internal/sales"
)

type SalesHandler struct {
	Orchestrator *sales.Orchestrator
	Catalogue    *catalogue.Repo
	Sales        *sales.Repo
	Redis        *redis.Client
	Secret       string
}

func (h *SalesHandler) Register(r *chi.Mux) {
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.Secret))
		r.Post("/sales/sell", h.sell)
	})
	r.Get("/sales/catalogue", h.listCatalogue)
	r.Post("/sales/availability", h.checkAvailability)
	r.Get("/sales/{id}", h.getSale)
}

// checkAvailability is the advisory pre-check a cart UI calls before
// submitting. The answer can go stale immediately; the sell path re-validates
// under a row lock.
func (h *SalesHandler) checkAvailability(w http.ResponseWriter, r *http.Request) {
	var items []catalogue.RequestedItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		writeError(w, errs.InvalidRequest("invalid json"))
		return
	}
	if len(items) == 0 {
		writeError(w, errs.InvalidRequest("no items to check"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Catalogue.CheckAvailability(ctx, items); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": true})
}

func (h *SalesHandler) sell(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, errs.Unauthorized(""))
		return
	}

	var req sales.SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.InvalidRequest("invalid json"))
		return
	}
	if req.UserID == "" {
		// the upstream gateway fills this in from the end-user token
		req.UserID = caller.UserID
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	res, err := h.Orchestrator.Sell(ctx, caller, req)
	if err != nil {
		e := errs.From(err)
		// the sale endpoint always answers {success, message}, not a bare
		// error body, so the UI can tell business failures apart
		writeJSON(w, e.HTTPStatus, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SalesHandler) listCatalogue(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	items, err := h.Catalogue.List(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *SalesHandler) getSale(w http.ResponseWriter, r *http.Request) {
	saleID := chi.URLParam(r, "id")
	if saleID == "" {
		writeError(w, errs.InvalidRequest("missing id"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// status cache first, DB as the source of truth
	key := fmt.Sprintf(redisx.KeySaleStatus, saleID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	sale, err := h.Sales.Get(ctx, saleID)
	if err != nil {
		writeError(w, err)
		return
	}
	body := map[string]any{"status": sale.Status}
	b, _ := json.Marshal(body)
	if h.Redis != nil {
		_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
