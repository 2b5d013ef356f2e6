// Package authz es la única regla de acceso a recursos: admin puede todo,
// standard solo sobre recursos propios. Es una función pura de la identidad,
// el dueño y la acción; no toca storage.
package authz

import (
	"fmt"

	"github.com/dropDatabas3/camguard/internal/domain/autherr"
	"github.com/dropDatabas3/camguard/internal/domain/types"
	"github.com/dropDatabas3/camguard/internal/metrics"
)

type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

func (d Decision) String() string {
	if d {
		return "allow"
	}
	return "deny"
}

// Authorize decide si id puede ejecutar action sobre un recurso de ownerID.
// La acción no cambia el resultado.
func Authorize(id types.Identity, ownerID string, action types.Action) Decision {
	if id.SubjectID == "" {
		return Deny
	}
	switch id.Role {
	case types.RoleAdmin:
		return Allow
	case types.RoleStandard:
		if ownerID != "" && id.SubjectID == ownerID {
			return Allow
		}
		return Deny
	}
	return Deny
}

// Policy envuelve Authorize con métricas.
type Policy struct {
	metrics *metrics.Auth
}

// NewPolicy crea una Policy. m puede ser nil.
func NewPolicy(m *metrics.Auth) *Policy { return &Policy{metrics: m} }

func (p *Policy) Authorize(id types.Identity, ownerID string, action types.Action) Decision {
	d := Authorize(id, ownerID, action)
	if p != nil {
		p.metrics.Decision(string(id.Role), bool(d))
	}
	return d
}

// Require devuelve autherr.ErrForbidden si la decisión es deny.
func (p *Policy) Require(id types.Identity, ownerID string, action types.Action) error {
	if !p.Authorize(id, ownerID, action) {
		return fmt.Errorf("%w: %s on resource of %s", autherr.ErrForbidden, action, ownerID)
	}
	return nil
}
