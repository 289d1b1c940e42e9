package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"mailgate/internal/config"
	dbm "mailgate/internal/db"
	"mailgate/internal/mail"
	"mailgate/internal/provider"
	"mailgate/internal/verify"
)

type Server struct {
	cfg    *config.Config
	db     *gorm.DB
	svc    *verify.Service
	mailer *mail.Mailer
	r      *gin.Engine
	srv    *http.Server
}

func NewServer(cfg *config.Config, gdb *gorm.DB, svc *verify.Service, mailer *mail.Mailer) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("API %s %s %d %s from %s\n",
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
			param.ClientIP,
		)
	}))
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, db: gdb, svc: svc, mailer: mailer, r: r}

	r.GET("/health", s.health)

	adminAuth := func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if s.cfg.AdminToken == "" || token != s.cfg.AdminToken {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}

	admin := r.Group("/v1")
	admin.Use(adminAuth)
	{
		admin.POST("/domains", s.createDomain)
		admin.GET("/domains", s.listDomains)
		admin.GET("/domains/:id", s.getDomain)
		admin.DELETE("/domains/:id", s.deleteDomain)
		admin.POST("/domains/:id/restart", s.restartDomain)
		admin.GET("/domains/:id/dnshost", s.detectDNSHost)
		admin.POST("/domains/:id/dnshost/push", s.pushDNSHost)
		admin.POST("/domains/:id/keys", s.createAPIKey)
	}

	send := r.Group("/v1")
	send.Use(s.apiKeyAuth)
	{
		send.POST("/mail/send", s.sendMail)
	}
	return s
}

func (s *Server) Start() error {
	s.srv = &http.Server{Addr: s.cfg.Listen, Handler: s.r}
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// health returns server health status
func (s *Server) health(c *gin.Context) {
	status := "ok"
	dbStatus := "ok"

	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "error"
		status = "degraded"
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "unreachable"
		status = "degraded"
	}

	response := gin.H{
		"status": status,
		"db":     dbStatus,
	}

	if status == "ok" {
		c.JSON(http.StatusOK, response)
	} else {
		c.JSON(http.StatusServiceUnavailable, response)
	}
}

type domainReq struct {
	Name string `json:"name"`
}

func (s *Server) createDomain(c *gin.Context) {
	var req domainReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	d, err := s.svc.Register(c.Request.Context(), req.Name)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (s *Server) listDomains(c *gin.Context) {
	var ds []dbm.Domain
	if err := s.db.Find(&ds).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ds)
}

func (s *Server) getDomain(c *gin.Context) {
	var d dbm.Domain
	if err := s.db.Preload("Records").First(&d, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) deleteDomain(c *gin.Context) {
	id, ok := s.domainID(c)
	if !ok {
		return
	}
	if err := s.svc.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) restartDomain(c *gin.Context) {
	id, ok := s.domainID(c)
	if !ok {
		return
	}
	d, err := s.svc.Restart(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) detectDNSHost(c *gin.Context) {
	id, ok := s.domainID(c)
	if !ok {
		return
	}
	d, det, err := s.svc.DetectHost(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	// Diff preview: what a confirmed push would publish.
	c.JSON(http.StatusOK, gin.H{
		"detection": det,
		"records":   d.Records,
	})
}

func (s *Server) pushDNSHost(c *gin.Context) {
	id, ok := s.domainID(c)
	if !ok {
		return
	}
	results, err := s.svc.PushRecords(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) createAPIKey(c *gin.Context) {
	id, ok := s.domainID(c)
	if !ok {
		return
	}
	var d dbm.Domain
	if err := s.db.First(&d, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	raw, key, err := dbm.MintAPIKey(s.db, d.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// The plaintext is shown exactly once.
	c.JSON(http.StatusCreated, gin.H{"key": raw, "prefix": key.Prefix, "domain_id": d.ID})
}

func (s *Server) domainID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid domain id"})
		return 0, false
	}
	return uint(id), true
}

// fail maps engine and collaborator errors onto HTTP statuses in one place.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, verify.ErrInvalidDomainName):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, verify.ErrDomainExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, verify.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, verify.ErrHostUnsupported):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, provider.ErrThrottled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "provider is throttling, try again later"})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
