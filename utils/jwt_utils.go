package utils

import (
	"errors"

	"order-service/config"

	"github.com/golang-jwt/jwt/v5"
)

var errInvalidToken = errors.New("invalid token")

func ParseToken(tokenString string) (int64, bool, error) {
	cfg := config.LoadConfig()
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, false, errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, false, errInvalidToken
	}

	rawID, ok := claims["user_id"].(float64)
	if !ok {
		return 0, false, errInvalidToken
	}
	isAdmin, _ := claims["is_admin"].(bool)

	return int64(rawID), isAdmin, nil
}
