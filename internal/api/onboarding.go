package api

import (
	"net/http"

	"waba-gateway/internal/onboarding"

	"github.com/gin-gonic/gin"
)

type OnboardingHandler struct {
	Coordinator *onboarding.Coordinator
}

func NewOnboardingHandler(coordinator *onboarding.Coordinator) *OnboardingHandler {
	return &OnboardingHandler{Coordinator: coordinator}
}

type StartOnboardingRequest struct {
	BusinessID string `json:"business_id" binding:"required"`
}

func (h *OnboardingHandler) StartOnboarding(c *gin.Context) {
	var req StartOnboardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Coordinator.Start(c.Request.Context(), req.BusinessID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *OnboardingHandler) CompleteOnboarding(c *gin.Context) {
	var req onboarding.CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.Coordinator.Complete(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

func (h *OnboardingHandler) GetStatus(c *gin.Context) {
	status, err := h.Coordinator.GetStatus(c.Request.Context(), c.Param("businessId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}
