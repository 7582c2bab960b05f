// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func TestSubject(t *testing.T) {
	t.Run("sub claim", func(t *testing.T) {
		subject, err := Subject(signedToken(t, jwt.MapClaims{"sub": "user-1"}))
		if err != nil {
			t.Fatalf("Subject: %v", err)
		}
		if subject != "user-1" {
			t.Errorf("subject = %q, want user-1", subject)
		}
	})

	t.Run("user_id fallback", func(t *testing.T) {
		subject, err := Subject(signedToken(t, jwt.MapClaims{"user_id": "user-2"}))
		if err != nil {
			t.Fatalf("Subject: %v", err)
		}
		if subject != "user-2" {
			t.Errorf("subject = %q, want user-2", subject)
		}
	})

	t.Run("opaque token", func(t *testing.T) {
		_, err := Subject("CFPAT-opaque-token")
		if !errors.Is(err, ErrNotJWT) {
			t.Fatalf("err = %v, want ErrNotJWT", err)
		}
	})
}

func TestFileSupplier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("secret-token\n"), 0o600); err != nil {
		t.Fatalf("writing token: %v", err)
	}

	token, err := File{Path: path}.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token != "secret-token" {
		t.Errorf("token = %q", token)
	}

	if err := os.WriteFile(path, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("writing token: %v", err)
	}
	if _, err := (File{Path: path}).Token(context.Background()); err == nil {
		t.Fatal("expected error for empty token file")
	}
}

func TestStaticSupplier(t *testing.T) {
	if _, err := Static("").Token(context.Background()); err == nil {
		t.Fatal("expected error for empty static token")
	}
	token, err := Static("abc").Token(context.Background())
	if err != nil || token != "abc" {
		t.Fatalf("Token() = %q, %v", token, err)
	}
}
