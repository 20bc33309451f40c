package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"order-service/cache"
	"order-service/middlewares"
	"order-service/services"
	"order-service/shipping"

	"github.com/gin-gonic/gin"
)

var feeEstimator services.FeeEstimator

func SetFeeEstimator(e services.FeeEstimator) {
	feeEstimator = e
}

type calculateFeeRequest struct {
	DistrictID int                   `json:"district_id" binding:"required"`
	WardCode   string                `json:"ward_code" binding:"required"`
	Items      []shipping.ParcelItem `json:"items" binding:"required,min=1"`
}

// CalculateFee is the pre-checkout quote passthrough. Quotes are cached
// briefly so a customer flipping between addresses does not hammer the
// carrier.
func CalculateFee(c *gin.Context) {
	defer func() {
		ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordOrderOperation("calculate_fee", ok)
	}()

	var req calculateFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	weight := 0
	for _, it := range req.Items {
		weight += it.Weight * it.Quantity
	}
	cacheKey := fmt.Sprintf(cache.KeyFeeQuote, req.DistrictID, req.WardCode, weight)

	if cache.Client != nil {
		if cached, err := cache.Client.Get(c.Request.Context(), cacheKey).Result(); err == nil && cached != "" {
			c.Data(http.StatusOK, "application/json", []byte(cached))
			return
		}
	}

	quote, err := feeEstimator.EstimateFee(c.Request.Context(), shipping.FeeRequest{
		DistrictID: req.DistrictID,
		WardCode:   req.WardCode,
		Items:      req.Items,
	})
	middlewares.RecordCarrierRequest(err == nil)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not calculate shipping fee"})
		return
	}

	if cache.Client != nil {
		if body, err := json.Marshal(quote); err == nil {
			_ = cache.Client.Set(c.Request.Context(), cacheKey, body, cache.TTLFeeQuote).Err()
		}
	}

	c.JSON(http.StatusOK, quote)
}
