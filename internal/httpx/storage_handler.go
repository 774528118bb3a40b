package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/scentworks/fulfillment/internal/auth"
	"github.com/scentworks/fulfillment/internal/errs"
	"github.com/scentworks/fulfillment/internal/events"
	"github.com/scentworks/fulfillment/internal/kafka"
	"github.com/scentworks/fulfillment/internal/sales"
	"github.com/scentworks/fulfillment/internal/warehouse"
)

type StorageHandler struct {
	Repo     *warehouse.Repo
	Producer sales.Publisher
	Service  string
	Secret   string
}

type createWarehouseReq struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	MaxPackages int    `json:"maxPackages"`
}

type receivePackageReq struct {
	WarehouseID   string   `json:"warehouseId"`
	Name          string   `json:"name"`
	SenderAddress string   `json:"senderAddress"`
	PerfumeIDs    []string `json:"perfumeIds"`
}

type shipReq struct {
	PackageIDs []string `json:"packageIds"`
}

type shipResp struct {
	PackageCount   int    `json:"packageCount"`
	ProcessingTime string `json:"processingTime"`
	Strategy       string `json:"strategy"`
}

func (h *StorageHandler) Register(r *chi.Mux) {
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.Secret))
		r.Post("/storage/warehouses", h.createWarehouse)
		r.Post("/storage/packages", h.receivePackage)
		r.Post("/storage/ship", h.shipPackages)
	})
	r.Get("/storage/warehouses", h.listWarehouses)
}

func (h *StorageHandler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	var req createWarehouseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.InvalidRequest("invalid json"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	wh, err := h.Repo.CreateWarehouse(ctx, req.Name, req.Location, req.MaxPackages)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wh)
}

func (h *StorageHandler) receivePackage(w http.ResponseWriter, r *http.Request) {
	var req receivePackageReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.InvalidRequest("invalid json"))
		return
	}
	if req.WarehouseID == "" || req.Name == "" {
		writeError(w, errs.InvalidRequest("warehouseId and name are required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	pkg, err := h.Repo.ReceivePackage(ctx, req.WarehouseID, req.Name, req.SenderAddress, req.PerfumeIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pkg)
}

func (h *StorageHandler) shipPackages(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, errs.Unauthorized(""))
		return
	}

	var req shipReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.InvalidRequest("invalid json"))
		return
	}
	if len(req.PackageIDs) == 0 {
		writeError(w, errs.InvalidRequest("packageIds is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// the batching policy is derived from the caller's role, never from the
	// request body
	policy := warehouse.PolicyForRole(caller.Role)
	res, err := h.Repo.ShipPackages(ctx, req.PackageIDs, policy)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publishShipped(req.PackageIDs, res, r.Header.Get("X-Request-Id"))
	writeJSON(w, http.StatusOK, shipResp{
		PackageCount:   res.PackageCount,
		ProcessingTime: res.ProcessingTime.String(),
		Strategy:       res.Strategy,
	})
}

func (h *StorageHandler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	whs, err := h.Repo.ListWarehouses(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, whs)
}

func (h *StorageHandler) publishShipped(packageIDs []string, res *warehouse.ShipResult, traceID string) {
	if h.Producer == nil {
		return
	}
	ev := events.Envelope{
		EventID:      uuid.NewString(),
		EventType:    events.EventPackageShipped,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     h.Service,
		TraceID:      traceID,
		Payload: kafka.MustMarshal(events.PackageShippedPayload{
			PackageIDs:     packageIDs,
			PackageCount:   res.PackageCount,
			Strategy:       res.Strategy,
			ProcessingTime: res.ProcessingTime.String(),
		}),
	}
	h.Producer.Publish([]byte(packageIDs[0]), kafka.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(events.EventPackageShipped)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
