package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/Koksbox/dream-interpreter/internal/logging"
	"github.com/Koksbox/dream-interpreter/internal/usecases"
)

// TelegramHandler hands out deep links that attach a Telegram account to the
// signed-in web user.
type TelegramHandler struct {
	auth    *usecases.AuthUsecase
	botName string
	log     logging.Logger
}

func NewTelegramHandler(auth *usecases.AuthUsecase, botName string, log logging.Logger) *TelegramHandler {
	return &TelegramHandler{auth: auth, botName: botName, log: log}
}

// RegisterRoutes registers Telegram linking routes
func (h *TelegramHandler) RegisterRoutes(api *gin.RouterGroup) {
	tg := api.Group("/telegram")
	{
		tg.GET("/link", h.GetLink)
	}
}

// GetLink returns a QR code PNG of the deep link, or JSON with ?format=json
func (h *TelegramHandler) GetLink(c *gin.Context) {
	if h.botName == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Telegram not configured"})
		return
	}

	token, err := h.auth.IssueLinkToken(getUserID(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	link := fmt.Sprintf("https://t.me/%s?start=%s", h.botName, token)

	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, gin.H{"link": link})
		return
	}

	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		h.log.Error(c.Request.Context(), "failed to generate QR code", "error", err)
		c.String(http.StatusInternalServerError, "Failed to generate QR code")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
