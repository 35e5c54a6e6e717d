package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "mullmine-service"

// identity is what a validated token resolves to.
type identity struct {
	AnonID   string
	Verified bool
}

func (h *Handler) generateJWT(anonID string) (string, error) {
	claims := jwt.MapClaims{
		"anon_id": anonID,
		// Anonymous identities issued by this service count as verified
		// humans; bot-sourced identities would carry false here.
		"verified": true,
		"exp":      time.Now().Add(h.tokenTTL).Unix(),
		"iss":      tokenIssuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.jwtSecret)
}

// GetAnonID mints a fresh anonymous identity and returns its JWT. The
// client keeps the token; presenting it again resumes the same identity.
func (h *Handler) GetAnonID(c *gin.Context) {
	anonID := uuid.NewString()

	token, err := h.generateJWT(anonID)
	if err != nil {
		h.Log.Error("token signing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "anon_id": anonID})
}

func (h *Handler) validateToken(tokenString string) (*identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return h.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	anonID, ok := claims["anon_id"].(string)
	if !ok || anonID == "" {
		return nil, errors.New("token missing anon_id")
	}
	verified, _ := claims["verified"].(bool)

	return &identity{AnonID: anonID, Verified: verified}, nil
}
