package main

import (
	"io"
	"net/http"

	"github.com/sunridge-benefits/enroll-scheduler/internal/reconcile"
	"github.com/sunridge-benefits/enroll-scheduler/pkg/logger"
)

// signatureHeader and timestampHeader name the provider's webhook
// verification headers, following the Standard Webhooks convention the
// teacher's own webhook worker signs with (signPayload in
// internal/service/webhook_delivery_worker.go).
const (
	signatureHeader = "X-Webhook-Signature"
	timestampHeader = "X-Webhook-Timestamp"
)

// webhookHandler verifies the provider's HMAC signature and fans the
// payload out to the owning organization via dispatcher, per §4.7's push
// path. When webhookKey is set, a missing or invalid signature is
// rejected with 401 without touching the store; when webhookKey is
// empty, no signature check is made.
func webhookHandler(dispatcher *reconcile.Dispatcher, webhookKey string, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		timestamp := r.Header.Get(timestampHeader)
		signature := r.Header.Get(signatureHeader)
		if webhookKey != "" && !reconcile.VerifyWebhookSignature(webhookKey, timestamp, body, signature) {
			log.Warn("rejected webhook with invalid signature")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		report, err := dispatcher.Dispatch(r.Context(), body)
		if err != nil {
			log.WithField("error", err.Error()).Error("failed to dispatch webhook")
			http.Error(w, "failed to process webhook", http.StatusInternalServerError)
			return
		}

		log.WithFields(map[string]interface{}{
			"applied": report.Applied,
			"skipped": report.Skipped,
			"errors":  len(report.Errors),
		}).Info("webhook processed")

		w.WriteHeader(http.StatusOK)
	}
}
