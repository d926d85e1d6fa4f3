/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"check-deposit-go/internal/api"
	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const principalKey = "principal"

// Claims are the JWT claims accepted by the deposit backend. The subject is the
// user id.
type Claims struct {
	Accounts []string `json:"accounts"`
	Reviewer bool     `json:"reviewer,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware rejects requests without a valid HS256 bearer token and
// stores the caller's principal in the request context.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthenticated(c, "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthenticated(c, "Invalid authorization header format")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid || claims.Subject == "" {
			abortUnauthenticated(c, "Invalid or expired token")
			return
		}

		c.Set(principalKey, api.Principal{
			UserId:   claims.Subject,
			Accounts: claims.Accounts,
			Reviewer: claims.Reviewer,
		})
		c.Next()
	}
}

// GetPrincipal returns the principal set by AuthMiddleware.
func GetPrincipal(c *gin.Context) (api.Principal, bool) {
	v, exists := c.Get(principalKey)
	if !exists {
		return api.Principal{}, false
	}
	p, ok := v.(api.Principal)
	return p, ok
}

// IssueToken signs a bearer token for userId. It is used by the CLI and tests;
// production tokens come from the identity provider.
func IssueToken(secret []byte, userId string, accounts []string, reviewer bool, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is required")
	}
	if userId == "" {
		return "", errors.New("user id is required")
	}
	now := time.Now()
	claims := Claims{
		Accounts: accounts,
		Reviewer: reviewer,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userId,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func abortUnauthenticated(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorBody{
		Code:    string(errs.ReasonUnauthenticated),
		Message: message,
	})
}
