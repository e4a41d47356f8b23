package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/avelarsoto/tianguis-backend/api/middleware"
	"github.com/avelarsoto/tianguis-backend/api/responses"
	"github.com/avelarsoto/tianguis-backend/api/validators"
	"github.com/avelarsoto/tianguis-backend/internal/stock"
	pkgerrors "github.com/avelarsoto/tianguis-backend/pkg/errors"
	"github.com/avelarsoto/tianguis-backend/pkg/logger"
)

type restockRequest struct {
	Qty int64 `json:"qty" validate:"required,gt=0"`
}

type adjustStockRequest struct {
	TargetQty int64 `json:"target_qty" validate:"gte=0"`
}

type bulkStockLine struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	DeltaQty  int64  `json:"delta_qty" validate:"required"`
}

type bulkStockRequest struct {
	Adjustments []bulkStockLine `json:"adjustments" validate:"required,min=1,max=100,dive"`
}

// StockLevel returns the cached on-hand quantity for a product.
func StockLevel(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := parseProductID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		level, err := svc.Level(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, level)
	}
}

// StockMovements returns the recent ledger rows for a product.
func StockMovements(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := parseProductID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		movements, err := svc.Movements(r.Context(), productID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"movements": movements})
	}
}

// StockRestock adds inventory for a product.
func StockRestock(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := parseProductID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req restockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		movement, err := svc.Restock(r.Context(), productID, req.Qty, actorFromContext(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, movement)
	}
}

// StockAdjust moves a product's level to an absolute target.
func StockAdjust(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := parseProductID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req adjustStockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		movement, err := svc.AdjustTo(r.Context(), productID, req.TargetQty, actorFromContext(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if movement == nil {
			responses.WriteSuccess(w, map[string]string{"status": "unchanged"})
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, movement)
	}
}

// StockBulkUpdate applies a batch of signed adjustments in one transaction.
func StockBulkUpdate(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkStockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		adjustments := make([]stock.BulkAdjustment, 0, len(req.Adjustments))
		for _, line := range req.Adjustments {
			productID, err := uuid.Parse(line.ProductID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
				return
			}
			adjustments = append(adjustments, stock.BulkAdjustment{ProductID: productID, DeltaQty: line.DeltaQty})
		}
		movements, err := svc.BulkUpdate(r.Context(), adjustments, actorFromContext(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{"movements": movements})
	}
}

// StockRebuild replays the ledger and heals the cached counter.
func StockRebuild(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := parseProductID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		qty, err := svc.Rebuild(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"on_hand_qty": qty})
	}
}

func parseProductID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "productId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	productID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
	}
	return productID, nil
}

func actorFromContext(r *http.Request) *uuid.UUID {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return nil
	}
	actorID, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &actorID
}
