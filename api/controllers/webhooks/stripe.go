package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/farmlane-backend/api/responses"
	"github.com/angelmondragon/farmlane-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/farmlane-backend/pkg/errors"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
)

// Stripe caps webhook bodies well below this.
const maxWebhookBody = 1 << 20

type PaymentReconciler interface {
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*payments.Result, error)
}

// StripeWebhook verifies and reconciles a payment provider delivery. Duplicate
// deliveries answer 200 with the cached result so the provider stops retrying.
func StripeWebhook(reconciler PaymentReconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if reconciler == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "payment reconciler unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInvalidSignature, "stripe signature missing"))
			return
		}

		result, err := reconciler.HandleWebhook(ctx, payload, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
