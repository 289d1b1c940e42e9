package rest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	dbm "mailgate/internal/db"
	"mailgate/internal/mail"
	"mailgate/internal/provider"
)

const keyContext = "apiKey"

// apiKeyAuth authenticates send requests with a per-domain API key.
func (s *Server) apiKeyAuth(c *gin.Context) {
	raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	key, err := dbm.LookupAPIKey(s.db, raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		return
	}
	c.Set(keyContext, key)
	c.Next()
}

// Wire shape of the send endpoint, compatible with the common
// transactional-mail v3 API.
type sendReq struct {
	Personalizations []struct {
		To []struct {
			Email string `json:"email"`
		} `json:"to"`
	} `json:"personalizations"`
	From struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"from"`
	Subject string `json:"subject"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

func (s *Server) sendMail(c *gin.Context) {
	key := c.MustGet(keyContext).(*dbm.APIKey)

	var req sendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	msg := mail.Message{
		Subject: req.Subject,
		From:    req.From.Email,
	}
	if req.From.Name != "" {
		msg.From = req.From.Name + " <" + req.From.Email + ">"
	}
	for _, p := range req.Personalizations {
		for _, to := range p.To {
			msg.To = append(msg.To, to.Email)
		}
	}
	for _, content := range req.Content {
		switch content.Type {
		case "text/plain":
			msg.Text = content.Value
		case "text/html":
			msg.HTML = content.Value
		}
	}

	rec, err := s.mailer.Send(c.Request.Context(), key.DomainID, msg)
	switch {
	case err == nil:
	case errors.Is(err, mail.ErrDomainNotVerified), errors.Is(err, mail.ErrFromMismatch):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	case errors.Is(err, mail.ErrNoRecipients):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, provider.ErrThrottled):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "throttled"})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("X-Message-Id", rec.MessageID)
	c.JSON(http.StatusAccepted, rec)
}
