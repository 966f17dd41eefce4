package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/asanalytics/go-asana-reporter/internal/model"
	"github.com/asanalytics/go-asana-reporter/internal/repository"
)

type AuthHandler struct {
	Repo      *repository.PostgresRepo
	JWTSecret string
}

func NewAuthHandler(repo *repository.PostgresRepo, jwtSecret string) *AuthHandler {
	return &AuthHandler{Repo: repo, JWTSecret: jwtSecret}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	var response model.APIResponse

	if err := c.ShouldBindJSON(&req); err != nil {
		response.Message = "Invalid request: " + err.Error()
		c.JSON(http.StatusBadRequest, response)
		return
	}

	admin, err := h.Repo.GetAdminByUsername(c.Request.Context(), req.Username)
	if err != nil {
		response.Message = "Username or password is incorrect"
		c.JSON(http.StatusUnauthorized, response)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)) != nil {
		response.Message = "Username or password is incorrect"
		c.JSON(http.StatusUnauthorized, response)
		return
	}

	claims := jwt.MapClaims{
		"sub": admin.ID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(12 * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(h.JWTSecret))
	if err != nil {
		response.Message = "Failed to generate token"
		c.JSON(http.StatusInternalServerError, response)
		return
	}

	response.Message = "Login Successful"
	response.Data = model.LoginResponse{Token: tokenString}
	c.JSON(http.StatusOK, response)
}
