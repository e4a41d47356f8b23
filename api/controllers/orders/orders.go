package orders

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/avelarsoto/tianguis-backend/api/middleware"
	"github.com/avelarsoto/tianguis-backend/api/responses"
	"github.com/avelarsoto/tianguis-backend/api/validators"
	internalorders "github.com/avelarsoto/tianguis-backend/internal/orders"
	"github.com/avelarsoto/tianguis-backend/pkg/enums"
	pkgerrors "github.com/avelarsoto/tianguis-backend/pkg/errors"
	"github.com/avelarsoto/tianguis-backend/pkg/logger"
	"github.com/avelarsoto/tianguis-backend/pkg/pagination"
)

type createItemRequest struct {
	SellerID       string `json:"seller_id" validate:"required,uuid"`
	ProductID      string `json:"product_id" validate:"required,uuid"`
	Name           string `json:"name" validate:"required,max=255"`
	Qty            int64  `json:"qty" validate:"required,gt=0"`
	UnitPriceCents int64  `json:"unit_price_cents" validate:"gte=0"`
}

type createOrderRequest struct {
	BuyerID  string              `json:"buyer_id" validate:"required,uuid"`
	Currency string              `json:"currency,omitempty"`
	Items    []createItemRequest `json:"items" validate:"required,min=1,dive"`
}

type transitionRequest struct {
	Target     string `json:"target" validate:"required"`
	Reason     string `json:"reason,omitempty" validate:"max=500"`
	PaymentRef string `json:"payment_ref,omitempty" validate:"max=255"`
}

// Create opens a new order and reserves stock for its items.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		buyerID, err := uuid.Parse(req.BuyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid buyer id"))
			return
		}
		input := internalorders.CreateOrderInput{
			BuyerID:  buyerID,
			Currency: enums.Currency(strings.ToUpper(req.Currency)),
		}
		for _, item := range req.Items {
			sellerID, err := uuid.Parse(item.SellerID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seller id"))
				return
			}
			productID, err := uuid.Parse(item.ProductID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
				return
			}
			input.Items = append(input.Items, internalorders.CreateOrderItemInput{
				SellerID:       sellerID,
				ProductID:      productID,
				Name:           validators.SanitizeString(item.Name, 255),
				Qty:            item.Qty,
				UnitPriceCents: item.UnitPriceCents,
			})
		}

		order, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// List returns the caller's orders as a cursor page.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		list, err := svc.ListForBuyer(r.Context(), buyerID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns one order with its items.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// History returns the append-only transition log for one order.
func History(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		changes, err := svc.History(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"changes": changes})
	}
}

// Options returns the legal next states for one order.
func Options(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		options, err := svc.Options(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, options)
	}
}

// Transition moves an order along one lifecycle edge.
func Transition(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req transitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderState(strings.ToLower(strings.TrimSpace(req.Target)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target state"))
			return
		}

		input := internalorders.TransitionInput{
			OrderID:    orderID,
			Target:     target,
			Reason:     validators.SanitizeString(req.Reason, 500),
			PaymentRef: strings.TrimSpace(req.PaymentRef),
			ActorRole:  middleware.RoleFromContext(r.Context()),
		}
		if actor := middleware.UserIDFromContext(r.Context()); actor != "" {
			if actorID, parseErr := uuid.Parse(actor); parseErr == nil {
				input.ActorUserID = actorID
			}
		}

		order, err := svc.Transition(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}

func buyerFromQuery(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("buyer_id"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer_id is required")
	}
	buyerID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid buyer_id")
	}
	return buyerID, nil
}
