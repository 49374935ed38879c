// Package auth verifies player tokens. Tokens are minted by the chat gateway
// with a shared HMAC secret and carry the player's platform id.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pickup/internal/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	playerIDKey   = "playerID"
	playerNameKey = "playerName"
)

// GenerateToken signs a token for the player. A zero ttl means no expiry.
func GenerateToken(secret []byte, playerID int64, name string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"player_id": playerID,
		"name":      name,
	}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken returns the player id and name carried by the token.
func ParseToken(secret []byte, tokenString string) (int64, string, error) {
	// Platform ids do not fit in a float64, so numbers are decoded as json.Number.
	parser := jwt.NewParser(jwt.WithJSONNumber(), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return 0, "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", errors.New("unexpected claims type")
	}
	var playerID int64
	switch v := claims["player_id"].(type) {
	case json.Number:
		playerID, err = v.Int64()
	default:
		err = fmt.Errorf("player_id has type %T", v)
	}
	if err != nil {
		return 0, "", err
	}
	name, _ := claims["name"].(string)
	return playerID, name, nil
}

// AuthMiddleware checks the bearer token and stores the player in the context.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorResponse{
				Code:    "NO_AUTH_HEADER",
				Message: "authorization required",
			})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		playerID, name, err := ParseToken(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorResponse{
				Code:    "INVALID_TOKEN",
				Message: "invalid or expired token",
				Details: err.Error(),
			})
			return
		}

		c.Set(playerIDKey, playerID)
		c.Set(playerNameKey, name)
		c.Next()
	}
}

// PlayerID returns the authenticated player's id.
func PlayerID(c *gin.Context) int64 {
	return c.GetInt64(playerIDKey)
}

// PlayerName returns the display name from the token, possibly empty.
func PlayerName(c *gin.Context) string {
	return c.GetString(playerNameKey)
}

// SetPlayer is used by tests and by trusted internal routes.
func SetPlayer(c *gin.Context, playerID int64, name string) {
	c.Set(playerIDKey, playerID)
	c.Set(playerNameKey, name)
}
