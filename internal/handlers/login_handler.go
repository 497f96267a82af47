package handlers

import (
	"errors"
	"net/http"
	"strings"

	"go-pos-billing/internal/logger"
	"go-pos-billing/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 8

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login verifies the owner's password and sets the session cookie
func (a *API) Login(c *gin.Context) {
	var input LoginRequest
	// 1. Validate Input JSON
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid input")
		return
	}
	email := strings.TrimSpace(input.Email)

	// 2. Find User in DB
	var user models.User
	err := a.DB.WithContext(c.Request.Context()).
		Where("email = ? OR LOWER(email) = LOWER(?)", email, email).
		First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, err)
		return
	}

	// 3. Verify Password (Bcrypt); unknown users get the same answer
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	// 4. Generate the session token
	token, err := a.Sessions.GenerateToken(user.ID, user.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	a.setSessionCookie(c, token, int(a.Sessions.TTL().Seconds()))

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"email": user.Email,
	})
}

// Logout clears the session cookie
func (a *API) Logout(c *gin.Context) {
	a.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Signed out"})
}

// Register creates an owner account and its tenant
func (a *API) Register(c *gin.Context) {
	var input LoginRequest

	// 1. Parse JSON
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid input")
		return
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if at := strings.IndexByte(email, '@'); at < 1 || at == len(email)-1 {
		badRequest(c, "A valid email is required")
		return
	}
	if len(input.Password) < minPasswordLength {
		badRequest(c, "Password must be at least 8 characters")
		return
	}

	// 2. Hash the Password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(c, err)
		return
	}

	// 3. Save to DB
	user := models.User{Email: email, PasswordHash: string(hashedPassword)}
	if err := a.DB.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Account already exists"})
			return
		}
		respondError(c, err)
		return
	}

	// 4. Every owner gets a tenant
	t, err := a.Tenants.EnsureTenant(c.Request.Context(), email)
	if err != nil {
		respondError(c, err)
		return
	}
	logger.GetGinLogger(c).Info("Owner registered",
		zap.String("merchant_id", t.MerchantID))

	c.JSON(http.StatusCreated, gin.H{
		"email":      user.Email,
		"merchantId": t.MerchantID,
		"subdomain":  t.Subdomain,
	})
}

func (a *API) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(a.Config.Session.CookieName, value, maxAge, "/", "", !a.Config.IsDevelopment(), true)
}
