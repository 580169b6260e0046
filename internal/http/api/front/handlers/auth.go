// Package handlers implements the tenant-facing API endpoints. Every handler
// acquires its database handle through the tenant factory, so all reads and
// writes land in the bound tenant's database and nowhere else.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/storekit-cloud/storekit/internal/config"
	relayhttp "github.com/storekit-cloud/storekit/internal/http"
	"github.com/storekit-cloud/storekit/internal/models"
	"github.com/storekit-cloud/storekit/internal/security"
	"github.com/storekit-cloud/storekit/internal/tenant"
)

// AuthHandler manages end-user registration and login.
type AuthHandler struct {
	factory *tenant.Factory
	jwtCfg  config.JWTConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(factory *tenant.Factory, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{factory: factory, jwtCfg: jwtCfg}
}

// registerRequest defines the registration body.
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Register creates an end-user account in the bound tenant's database. The
// first account gets the owner role; later accounts get staff.
func (h *AuthHandler) Register(c *gin.Context) {
	info := relayhttp.BoundTenant(c)
	if info == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant required", "code": "tenant_required"})
		return
	}

	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	password := strings.TrimSpace(body.Password)
	if email == "" || !strings.Contains(email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		return
	}
	if len(password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password too short"})
		return
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	var created models.User
	errWork := h.factory.WithTenantDB(c.Request.Context(), info, func(conn *gorm.DB) error {
		var existing int64
		if errCount := conn.Model(&models.User{}).Count(&existing).Error; errCount != nil {
			return errCount
		}
		roleName := "staff"
		if existing == 0 {
			roleName = "owner"
		}
		var role models.Role
		if errRole := conn.Where("name = ?", roleName).First(&role).Error; errRole != nil {
			return errRole
		}

		created = models.User{
			Email:    email,
			Password: hash,
			Name:     strings.TrimSpace(body.Name),
			Roles:    []models.Role{role},
		}
		return conn.Create(&created).Error
	})
	if errWork != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "registration failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": created.ID, "email": created.Email})
}

// loginRequest defines the login body.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies credentials against the bound tenant's database and issues a
// JWT carrying the tenant binding. The token is only honored by the ownership
// guard against this same tenant.
func (h *AuthHandler) Login(c *gin.Context) {
	info := relayhttp.BoundTenant(c)
	if info == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant required", "code": "tenant_required"})
		return
	}

	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	password := strings.TrimSpace(body.Password)
	if email == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing credentials"})
		return
	}

	var user models.User
	errWork := h.factory.WithTenantDB(c.Request.Context(), info, func(conn *gorm.DB) error {
		return conn.Where("email = ?", email).First(&user).Error
	})
	if errors.Is(errWork, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if errWork != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if user.Disabled || !security.CheckPassword(user.Password, password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, errToken := security.GenerateToken(
		h.jwtCfg.Secret, user.ID, user.Email, user.Name, info.ID, info.Slug, h.jwtCfg.UserExpiry())
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":  token,
		"tenant": info.Slug,
		"user": gin.H{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		},
	})
}
