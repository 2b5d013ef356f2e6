// Package autherr define la taxonomía de errores del núcleo de autenticación.
//
// Todos los errores de negocio son recuperables a nivel de request: se mapean
// a un rechazo de ese request sin afectar a otras sesiones. Los fallos del
// storage se reportan como ErrUnavailable para no confundir una caída de
// infraestructura con credenciales inválidas.
package autherr

import (
	"errors"
	"fmt"
)

// kindError es un error con código estable. parent permite que un error
// más específico siga matcheando a su categoría con errors.Is.
type kindError struct {
	code   string
	msg    string
	parent *kindError
}

func (e *kindError) Error() string { return e.msg }

// Code devuelve el código estable del error (logs, métricas, HTTP).
func (e *kindError) Code() string { return e.code }

func (e *kindError) Is(target error) bool {
	for p := e.parent; p != nil; p = p.parent {
		if target == error(p) {
			return true
		}
	}
	return false
}

func newKind(code, msg string, parent *kindError) *kindError {
	return &kindError{code: code, msg: msg, parent: parent}
}

var (
	invalidSession = newKind("invalid_session", "invalid session", nil)
	invalidCreds   = newKind("invalid_credentials", "invalid credentials", nil)

	// ErrInvalidCredentials: usuario o password incorrectos. No distingue entre
	// usuario inexistente y password errónea.
	ErrInvalidCredentials error = invalidCreds

	// ErrInvalidToken: firma, algoritmo, emisor o expiración inválidos.
	ErrInvalidToken error = newKind("invalid_token", "invalid token", nil)

	// ErrInvalidSession: refresh token que no coincide, sesión revocada o expirada.
	ErrInvalidSession error = invalidSession

	// ErrReuseDetected: se presentó un refresh token ya rotado. La sesión queda
	// revocada. También matchea ErrInvalidSession.
	ErrReuseDetected error = newKind("reuse_detected", "refresh token reuse detected", invalidSession)

	// ErrUnauthenticated: falta el bearer token o no es parseable.
	ErrUnauthenticated error = newKind("unauthenticated", "unauthenticated", nil)

	// ErrForbidden: la política de autorización denegó la acción.
	ErrForbidden error = newKind("forbidden", "forbidden", nil)

	// ErrUnavailable: fallo transitorio del storage.
	ErrUnavailable error = newKind("unavailable", "service temporarily unavailable", nil)

	// ErrAccountDisabled: la cuenta está deshabilitada. En login se reporta
	// como ErrInvalidCredentials.
	ErrAccountDisabled error = newKind("account_disabled", "account disabled", invalidCreds)

	// ErrWeakPassword: la password no cumple la política.
	ErrWeakPassword error = newKind("weak_password", "password does not meet policy", nil)

	// ErrInvalidEmail: el username no es un email válido.
	ErrInvalidEmail error = newKind("invalid_email", "invalid email", nil)

	// ErrUserExists: ya existe un usuario con ese username.
	ErrUserExists error = newKind("user_exists", "user already exists", nil)

	// ErrRateLimited: demasiados intentos en la ventana actual.
	ErrRateLimited error = newKind("rate_limited", "too many attempts", nil)

	// ErrInvalidRequest: parámetros fuera de rango (ej: expiración negativa).
	ErrInvalidRequest error = newKind("invalid_request", "invalid request", nil)
)

// orden de evaluación de Kind: los específicos antes que sus padres.
var ordered = []error{
	ErrReuseDetected,
	ErrAccountDisabled,
	ErrInvalidCredentials,
	ErrInvalidToken,
	ErrInvalidSession,
	ErrUnauthenticated,
	ErrForbidden,
	ErrUnavailable,
	ErrWeakPassword,
	ErrInvalidEmail,
	ErrUserExists,
	ErrRateLimited,
	ErrInvalidRequest,
}

// Kind devuelve el código del error de la taxonomía que matchea err,
// o "internal" si ninguno lo hace. Kind(nil) es "".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range ordered {
		if errors.Is(err, k) {
			return k.(*kindError).code
		}
	}
	return "internal"
}

type unavailableError struct {
	cause error
}

func (e *unavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %v", e.cause)
}

func (e *unavailableError) Unwrap() error { return e.cause }

func (e *unavailableError) Is(target error) bool { return target == ErrUnavailable }

// Unavailable envuelve un error de infraestructura para que matchee
// ErrUnavailable conservando la causa. Unavailable(nil) es nil.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return &unavailableError{cause: err}
}

// Public colapsa errores internos en la categoría que puede ver el cliente:
// cuenta deshabilitada se reporta como credenciales inválidas, reuse como
// sesión inválida. Un error que ya es de sesión o de bearer conserva esa
// categoría aunque envuelva ErrAccountDisabled.
func Public(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrReuseDetected):
		return ErrInvalidSession
	case errors.Is(err, ErrInvalidSession):
		return ErrInvalidSession
	case errors.Is(err, ErrUnauthenticated):
		return ErrUnauthenticated
	case errors.Is(err, ErrAccountDisabled):
		return ErrInvalidCredentials
	}
	return err
}
