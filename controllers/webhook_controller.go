package controllers

import (
	"fmt"
	"log"
	"net/http"

	"order-service/cache"
	"order-service/middlewares"
	"order-service/models"

	"github.com/gin-gonic/gin"
)

var webhookToken string

func SetWebhookToken(token string) {
	webhookToken = token
}

// CarrierWebhook ingests tracking updates from the carrier. Legality
// decisions belong to the lifecycle service; a duplicate or out-of-order
// update answers 200 so the carrier stops retrying it.
func CarrierWebhook(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordOrderOperation("carrier_webhook", ok)
	}()

	if webhookToken != "" && c.GetHeader("Token") != webhookToken {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook token"})
		return
	}

	var req models.CarrierWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// fast-path dedup for redelivered webhooks; best effort, the state
	// machine absorbs duplicates anyway
	var dedupKey string
	if cache.Client != nil {
		dedupKey = fmt.Sprintf(cache.KeyWebhookDedup, req.OrderCode, req.Status)
		fresh, err := cache.Client.SetNX(c.Request.Context(), dedupKey, "1", cache.TTLWebhookDedup).Result()
		if err == nil && !fresh {
			c.JSON(http.StatusOK, gin.H{"message": "Duplicate delivery ignored"})
			return
		}
	}

	if err := lifecycle.ApplyCarrierStatus(c.Request.Context(), req.OrderCode, req.Status); err != nil {
		// an update that failed was never processed; drop the dedup mark
		// so the carrier's retry gets through
		if dedupKey != "" {
			_ = cache.Client.Del(c.Request.Context(), dedupKey).Err()
		}
		log.Printf("Failed to apply carrier status %s for %s: %v", req.Status, req.OrderCode, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Status processed"})
}
