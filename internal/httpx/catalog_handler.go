package httpx

import (
	"github.com/ariefcatur/go-batch-reservations/internal/inventory"
	"github.com/go-chi/chi/v5"
	"net/http"
	"time"
)

type CatalogHandler struct {
	Inventory *inventory.Service
}

type CreateBatchReq struct {
	ItemID        int64      `json:"item_id" validate:"required,gt=0"`
	BatchNumber   string     `json:"batch_number" validate:"required,max=64"`
	Warehouse     string     `json:"warehouse" validate:"max=64"`
	Location      string     `json:"location" validate:"max=64"`
	TotalQuantity int        `json:"total_quantity" validate:"gte=0"`
	ActiveStock   int        `json:"active_stock" validate:"gte=0,ltefield=TotalQuantity"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
}

type AdjustBatchReq struct {
	TotalQuantity *int       `json:"total_quantity,omitempty" validate:"omitempty,gte=0"`
	ActiveStock   *int       `json:"active_stock,omitempty" validate:"omitempty,gte=0"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
	State         *string    `json:"state,omitempty" validate:"omitempty,oneof=active locked quarantine expired"`
}

type ComponentReq struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	ItemID    int64   `json:"item_id" validate:"required,gt=0"`
	BatchID   *int64  `json:"batch_id,omitempty" validate:"omitempty,gt=0"`
	Quantity  float64 `json:"quantity" validate:"gt=0"`
	Unit      string  `json:"unit" validate:"max=16"`
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Get("/products/{id}/stock", h.productStock)
	r.Route("/admin", func(r chi.Router) {
		r.Post("/batches", h.createBatch)
		r.Put("/batches/{id}", h.adjustBatch)
		r.Post("/components", h.upsertComponent)
		r.Delete("/components/{id}", h.deleteComponent)
		r.Post("/stock/recalculate", h.recalculate)
	})
}

func (h *CatalogHandler) productStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.Inventory.AvailableStock(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_id": id, "available": n})
}

func (h *CatalogHandler) createBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b := &inventory.Batch{
		ItemID:        req.ItemID,
		BatchNumber:   req.BatchNumber,
		Warehouse:     req.Warehouse,
		Location:      req.Location,
		TotalQuantity: req.TotalQuantity,
		ActiveStock:   req.ActiveStock,
		ExpiryDate:    req.ExpiryDate,
	}
	if err := h.Inventory.CreateBatch(r.Context(), b); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *CatalogHandler) adjustBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req AdjustBatchReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	adj := inventory.BatchAdjustment{
		TotalQuantity: req.TotalQuantity,
		ActiveStock:   req.ActiveStock,
		ExpiryDate:    req.ExpiryDate,
	}
	if req.State != nil {
		st := inventory.BatchState(*req.State)
		adj.State = &st
	}
	b, err := h.Inventory.AdjustBatch(r.Context(), id, adj)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *CatalogHandler) upsertComponent(w http.ResponseWriter, r *http.Request) {
	var req ComponentReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c := &inventory.Component{
		ProductID: req.ProductID,
		ItemID:    req.ItemID,
		BatchID:   req.BatchID,
		Quantity:  req.Quantity,
		Unit:      req.Unit,
	}
	if err := h.Inventory.UpsertComponent(r.Context(), c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CatalogHandler) deleteComponent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Inventory.DeleteComponent(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) recalculate(w http.ResponseWriter, r *http.Request) {
	n, err := h.Inventory.RecalculateAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}
