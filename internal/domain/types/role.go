// Package types define tipos de dominio compartidos entre paquetes.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRole se devuelve cuando un string no corresponde a ningún Role.
var ErrUnknownRole = errors.New("unknown role")

// Role es el rol de un usuario. Es un conjunto cerrado: admin | standard.
type Role string

const (
	// RoleAdmin puede operar sobre cualquier recurso.
	RoleAdmin Role = "admin"
	// RoleStandard solo opera sobre recursos propios.
	RoleStandard Role = "standard"
)

// Valid retorna true si el rol es uno de los conocidos.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStandard:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// ParseRole convierte un string (case-insensitive) en Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// TokenType distingue los tokens firmados que emite el servicio.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
	// TokenPersonal es un access token de larga duración (PAT) sin sesión asociada.
	TokenPersonal TokenType = "pat"
)

// Valid retorna true si el tipo es conocido.
func (t TokenType) Valid() bool {
	switch t {
	case TokenAccess, TokenRefresh, TokenPersonal:
		return true
	}
	return false
}

// Bearer indica si el token puede usarse como credencial de request.
func (t TokenType) Bearer() bool {
	return t == TokenAccess || t == TokenPersonal
}
