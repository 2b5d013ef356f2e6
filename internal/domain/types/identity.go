package types

import "time"

// Identity es el contexto de identidad de un request autenticado.
type Identity struct {
	SubjectID string
	Role      Role
	// SessionID está vacío para PATs.
	SessionID string
	TokenType TokenType
	ExpiresAt time.Time
}

// IsAdmin es un atajo para Role == RoleAdmin.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Action es la operación que se intenta sobre un recurso.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)
