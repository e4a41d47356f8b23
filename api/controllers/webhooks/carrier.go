package webhooks

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/avelarsoto/tianguis-backend/api/responses"
	"github.com/avelarsoto/tianguis-backend/api/validators"
	"github.com/avelarsoto/tianguis-backend/internal/orders"
	"github.com/avelarsoto/tianguis-backend/pkg/enums"
	pkgerrors "github.com/avelarsoto/tianguis-backend/pkg/errors"
	"github.com/avelarsoto/tianguis-backend/pkg/logger"
)

type carrierUpdateRequest struct {
	OrderID     string `json:"order_id" validate:"required,uuid"`
	Status      string `json:"status" validate:"required"`
	TrackingRef string `json:"tracking_ref,omitempty" validate:"max=255"`
}

var carrierStatusMap = map[string]enums.OrderState{
	"in_transit": enums.OrderStateShipped,
	"delivered":  enums.OrderStateDelivered,
}

// CarrierWebhook maps shipping status callbacks onto order transitions.
func CarrierWebhook(svc orders.Service, token string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "carrier webhook not configured"))
			return
		}
		provided := strings.TrimSpace(r.Header.Get("X-Carrier-Token"))
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid carrier token"))
			return
		}

		var req carrierUpdateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := uuid.Parse(req.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}
		target, ok := carrierStatusMap[strings.ToLower(strings.TrimSpace(req.Status))]
		if !ok {
			// Unknown carrier statuses are acknowledged and dropped.
			responses.WriteSuccess(w, map[string]string{"status": "ignored"})
			return
		}

		order, err := svc.Transition(r.Context(), orders.TransitionInput{
			OrderID: orderID,
			Target:  target,
			Reason:  "carrier update: " + validators.SanitizeString(req.Status, 100),
		})
		if err != nil {
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeInvalidTransition {
				// Replayed callbacks land after the order moved on.
				responses.WriteSuccess(w, map[string]string{"status": "ignored"})
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
