package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/boardroomhq/boardroom/pkg/models"
)

// signatureHeader carries the webhook HMAC: "sha256=<hex digest over the raw
// body>" keyed with BILLING_WEBHOOK_SECRET.
const signatureHeader = "X-Billing-Signature"

const maxWebhookBody = 64 << 10

// handleBillingWebhook verifies the provider signature and applies the plan
// change. The endpoint is unauthenticated; the signature is the only trust
// anchor, so any verification failure answers 400 without detail.
func (s *Server) handleBillingWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("unreadable body"))
		return
	}

	if !s.verifyWebhookSignature(body, c.GetHeader(signatureHeader)) {
		s.logger.Warn("billing webhook signature rejected", "client_ip", c.ClientIP())
		c.JSON(http.StatusBadRequest, errorBody("invalid signature"))
		return
	}

	var event billingWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid event body"))
		return
	}
	var cycleStart time.Time
	if event.CycleStart != "" {
		cycleStart, err = time.Parse(time.RFC3339, event.CycleStart)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("cycle_start must be RFC3339"))
			return
		}
	}

	if err := s.billing.ApplyPlanChange(c.Request.Context(), event.OrgID, models.Plan(event.NewPlan), cycleStart); err != nil {
		s.mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "applied"})
}

func (s *Server) verifyWebhookSignature(body []byte, header string) bool {
	if s.cfg.BillingWebhookSecret == "" {
		return false
	}
	hexDigest, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	want, err := hex.DecodeString(hexDigest)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.cfg.BillingWebhookSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
