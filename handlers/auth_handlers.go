package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"climatedash/api/models"
	"climatedash/api/store"
	"climatedash/api/utils"
)

// TokenCookie carries the operator JWT between dashboard requests.
const TokenCookie = "jwt_token"

type OperatorRepository interface {
	CreateOperator(ctx context.Context, email string, hashedPassword []byte) (*models.Operator, error)
	GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error)
}

type AuthHandlers struct {
	Operators    OperatorRepository
	Tokens       *utils.TokenIssuer
	SecureCookie bool
	Logger       *slog.Logger
}

func NewAuthHandlers(operators OperatorRepository, tokens *utils.TokenIssuer, secureCookie bool, logger *slog.Logger) *AuthHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandlers{
		Operators:    operators,
		Tokens:       tokens,
		SecureCookie: secureCookie,
		Logger:       logger,
	}
}

func (h *AuthHandlers) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.Logger.Error("failed to hash password", "email", req.Email, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	op, err := h.Operators.CreateOperator(c.Request.Context(), req.Email, hashedPassword)
	if errors.Is(err, store.ErrOperatorExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "Operator with this email already exists"})
		return
	}
	if err != nil {
		h.Logger.Error("failed to create operator", "email", req.Email, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register operator"})
		return
	}

	h.Logger.Info("operator registered", "operator_id", op.ID, "email", op.Email)
	c.JSON(http.StatusCreated, gin.H{"message": "Operator registered successfully", "email": op.Email})
}

// Login checks the operator's password and sets the token cookie.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	op, err := h.Operators.GetOperatorByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !models.IsNotFound(err) {
			h.Logger.Error("operator lookup failed", "email", req.Email, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log in"})
			return
		}
		h.Logger.Info("login failed: unknown operator", "email", req.Email)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword(op.HashedPassword, []byte(req.Password)); err != nil {
		h.Logger.Info("login failed: password mismatch", "email", req.Email)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := h.Tokens.Generate(op)
	if err != nil {
		h.Logger.Error("failed to generate token", "operator_id", op.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate authentication token"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(TokenCookie, token, int(h.Tokens.TTL().Seconds()), "/", "", h.SecureCookie, true)

	h.Logger.Info("operator logged in", "operator_id", op.ID, "email", op.Email)
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"email":   op.Email,
		"token":   token,
	})
}

func (h *AuthHandlers) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(TokenCookie, "", -1, "/", "", h.SecureCookie, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}
