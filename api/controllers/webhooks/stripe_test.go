package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/farmlane-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/farmlane-backend/pkg/errors"
)

type fakeReconciler struct {
	calls   int
	payload []byte
	header  string
	result  *payments.Result
	err     error
}

func (f *fakeReconciler) HandleWebhook(_ context.Context, payload []byte, header string) (*payments.Result, error) {
	f.calls++
	f.payload = payload
	f.header = header
	return f.result, f.err
}

func TestStripeWebhookSuccess(t *testing.T) {
	reconciler := &fakeReconciler{result: &payments.Result{EventID: "evt_1", Outcome: payments.OutcomeApplied}}
	handler := StripeWebhook(reconciler, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader([]byte(`{"id":"evt_1"}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if reconciler.header != "t=1,v1=abc" || string(reconciler.payload) != `{"id":"evt_1"}` {
		t.Fatalf("reconciler received unexpected input: %q %q", reconciler.header, reconciler.payload)
	}
	var body struct {
		Data payments.Result `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Data.Outcome != payments.OutcomeApplied {
		t.Fatalf("expected applied outcome, got %s", body.Data.Outcome)
	}
}

func TestStripeWebhookMissingSignature(t *testing.T) {
	reconciler := &fakeReconciler{}
	handler := StripeWebhook(reconciler, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if reconciler.calls != 0 {
		t.Fatalf("reconciler should not run without a signature")
	}
}

func TestStripeWebhookErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid signature", pkgerrors.New(pkgerrors.CodeInvalidSignature, "bad"), http.StatusBadRequest},
		{"orphan", pkgerrors.New(pkgerrors.CodeOrphanEvent, "unknown order"), http.StatusUnprocessableEntity},
		{"in flight", pkgerrors.New(pkgerrors.CodeConflict, "in flight"), http.StatusConflict},
		{"database", pkgerrors.New(pkgerrors.CodeInternal, "boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		handler := StripeWebhook(&fakeReconciler{err: tt.err}, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader([]byte(`{}`)))
		req.Header.Set("Stripe-Signature", "t=1,v1=abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tt.status {
			t.Fatalf("%s: expected %d, got %d", tt.name, tt.status, rec.Code)
		}
	}
}
