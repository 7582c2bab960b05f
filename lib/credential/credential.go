// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential supplies the access token presented to the
// collaboration server and the content API. Tokens are opaque to
// fieldsync; the only inspection performed is reading the subject of
// a JWT-shaped token so the CLI can default the presence user id.
package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Supplier returns the current access token.
type Supplier interface {
	Token(ctx context.Context) (string, error)
}

// Static is a fixed token.
type Static string

// Token returns the token. An empty Static is an error.
func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("credential: empty token")
	}
	return string(s), nil
}

// File reads the token from a file on every call, so a rotated token
// is picked up on the next reconnect.
type File struct {
	Path string
}

// Token returns the trimmed file contents.
func (f File) Token(context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("credential: reading token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("credential: token file %s is empty", f.Path)
	}
	return token, nil
}

// ErrNotJWT is returned by Subject for tokens that are not JWTs.
var ErrNotJWT = errors.New("credential: token is not a JWT")

// Subject returns the user id carried by a JWT-shaped token: the "sub"
// claim, or "user_id" when "sub" is absent. The signature is not
// verified; the server is the authority on the token.
func Subject(token string) (string, error) {
	if strings.Count(token, ".") != 2 {
		return "", ErrNotJWT
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotJWT, err)
	}
	subject, err := claims.GetSubject()
	if err == nil && subject != "" {
		return subject, nil
	}
	if userID, ok := claims["user_id"].(string); ok && userID != "" {
		return userID, nil
	}
	return "", errors.New("credential: token has no subject claim")
}
