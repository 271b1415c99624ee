// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bridge

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// User is the authenticated caller identity.
type User struct {
	ID    string
	Email string
	Name  string
}

// Authenticator resolves the caller identity from a request. A nil User with
// a nil error means the request carries no credentials; an error means the
// credentials are present but invalid.
type Authenticator interface {
	Authenticate(r *http.Request) (*User, error)
}

// JWTAuthenticator validates Bearer tokens signed with a shared secret.
type JWTAuthenticator struct {
	secret []byte
}

// NewJWTAuthenticator creates a JWTAuthenticator for the given secret.
func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

// Authenticate parses and validates the Authorization header.
func (a *JWTAuthenticator) Authenticate(r *http.Request) (*User, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, fmt.Errorf("authorization header must use Bearer scheme")
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %v", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	userID := getClaimString(claims, "user_id")
	if userID == "" {
		// Fall back to the standard subject claim.
		userID = getClaimString(claims, "sub")
	}
	if userID == "" {
		return nil, fmt.Errorf("token carries no user identity")
	}

	return &User{
		ID:    userID,
		Email: getClaimString(claims, "email"),
		Name:  getClaimString(claims, "name"),
	}, nil
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
