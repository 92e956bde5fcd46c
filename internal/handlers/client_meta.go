package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/trailpass/trek-booking-backend/internal/models"
	"github.com/trailpass/trek-booking-backend/internal/utils"
)

// clientMeta collects the request details attached to payment audit entries
func clientMeta(c *gin.Context) models.RequestMeta {
	userAgent := utils.GetUserAgent(c)
	return models.RequestMeta{
		IPAddress:     utils.GetRealIP(c),
		UserAgent:     userAgent,
		DeviceSummary: utils.ParseUserAgent(userAgent).Summary(),
	}
}
