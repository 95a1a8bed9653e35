package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Koksbox/dream-interpreter/internal/logging"
	"github.com/Koksbox/dream-interpreter/internal/usecases"
)

type AdminHandler struct {
	auth   *usecases.AuthUsecase
	ledger *usecases.QuotaLedger
	log    logging.Logger
}

func NewAdminHandler(auth *usecases.AuthUsecase, ledger *usecases.QuotaLedger, log logging.Logger) *AdminHandler {
	return &AdminHandler{
		auth:   auth,
		ledger: ledger,
		log:    log,
	}
}

// Login checks the configured admin credentials
func (h *AdminHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	token, err := h.auth.AdminLogin(req.Username, req.Password)
	if err != nil {
		h.log.Warn(c.Request.Context(), "admin login failed", "username", req.Username)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// SetPremium grants premium to a user, optionally until a given time
func (h *AdminHandler) SetPremium(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var payload struct {
		Until *time.Time `json:"until"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.ledger.SetPremium(c.Request.Context(), userID, payload.Until); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "is_premium": true, "premium_until": payload.Until})
}

// RevokePremium clears premium for a user
func (h *AdminHandler) RevokePremium(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	if err := h.ledger.RevokePremium(c.Request.Context(), userID); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "is_premium": false})
}
