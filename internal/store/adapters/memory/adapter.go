// Package memory implementa el adapter en memoria. Útil para desarrollo y
// tests; no persiste nada entre reinicios.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/camguard/internal/domain/repository"
	"github.com/dropDatabas3/camguard/internal/domain/types"
	store "github.com/dropDatabas3/camguard/internal/store"
)

func init() {
	store.RegisterAdapter(&memoryAdapter{})
}

type memoryAdapter struct{}

func (a *memoryAdapter) Name() string { return "memory" }

func (a *memoryAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.AdapterConnection, error) {
	return New(), nil
}

// Store guarda usuarios y sesiones en mapas protegidos por un único mutex.
// WithSessionLock mantiene el mutex durante toda la función, lo que
// serializa las rotaciones.
type Store struct {
	mu       sync.Mutex
	users    map[string]*repository.User
	byName   map[string]string // username normalizado -> id
	sessions map[string]*repository.Session
	history  map[string]string // hash rotado -> session id
	fail     error
}

func New() *Store {
	return &Store{
		users:    map[string]*repository.User{},
		byName:   map[string]string{},
		sessions: map[string]*repository.Session{},
		history:  map[string]string{},
	}
}

// SetFailure hace que todas las operaciones devuelvan err (nil lo quita).
// Simula una caída del storage en tests.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func (s *Store) Name() string                   { return "memory" }
func (s *Store) Ping(ctx context.Context) error { return s.failure() }
func (s *Store) Close() error                   { return nil }

func (s *Store) Users() repository.UserRepository       { return &userRepo{s} }
func (s *Store) Sessions() repository.SessionRepository { return &sessionRepo{s} }

func (s *Store) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail
}

func key(username string) string { return strings.ToLower(strings.TrimSpace(username)) }

// ─── UserRepository ───

type userRepo struct{ s *Store }

var _ repository.UserRepository = (*userRepo)(nil)

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fail != nil {
		return nil, r.s.fail
	}
	id, ok := r.s.byName[key(username)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := *r.s.users[id]
	return &u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*repository.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fail != nil {
		return nil, r.s.fail
	}
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) Create(ctx context.Context, in repository.CreateUserInput) (*repository.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.createLocked(in)
}

func (r *userRepo) CreateIfEmpty(ctx context.Context, in repository.CreateUserInput) (*repository.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fail == nil && len(r.s.users) > 0 {
		return nil, repository.ErrConflict
	}
	return r.createLocked(in)
}

func (r *userRepo) createLocked(in repository.CreateUserInput) (*repository.User, error) {
	if r.s.fail != nil {
		return nil, r.s.fail
	}
	k := key(in.Username)
	if _, dup := r.s.byName[k]; dup {
		return nil, repository.ErrConflict
	}
	if _, dup := r.s.users[in.ID]; dup {
		return nil, repository.ErrConflict
	}
	u := &repository.User{
		ID:           in.ID,
		Username:     in.Username,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		CreatedAt:    in.CreatedAt,
		UpdatedAt:    in.CreatedAt,
	}
	r.s.users[u.ID] = u
	r.s.byName[k] = u.ID
	cp := *u
	return &cp, nil
}

func (r *userRepo) update(id string, fn func(u *repository.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fail != nil {
		return r.s.fail
	}
	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *userRepo) UpdateRole(ctx context.Context, id string, role types.Role) error {
	return r.update(id, func(u *repository.User) { u.Role = role })
}

func (r *userRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return r.update(id, func(u *repository.User) { u.PasswordHash = hash })
}

func (r *userRepo) Disable(ctx context.Context, id string) error {
	return r.update(id, func(u *repository.User) { u.Disabled = true })
}

func (r *userRepo) Count(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fail != nil {
		return 0, r.s.fail
	}
	return len(r.s.users), nil
}

// ─── SessionRepository ───

type sessionRepo struct{ s *Store }

var _ repository.SessionRepository = (*sessionRepo)(nil)

func cloneSession(in *repository.Session) *repository.Session {
	out := *in
	if in.RevokedAt != nil {
		t := *in.RevokedAt
		out.RevokedAt = &t
	}
	if in.LastUsedAt != nil {
		t := *in.LastUsedAt
		out.LastUsedAt = &t
	}
	return &out
}

func (r *sessionRepo) Create(ctx context.Context, in repository.CreateSessionInput) (*repository.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fail != nil {
		return nil, r.s.fail
	}
	if _, dup := r.s.sessions[in.ID]; dup {
		return nil, repository.ErrConflict
	}
	sess := &repository.Session{
		ID:               in.ID,
		UserID:           in.UserID,
		RefreshTokenHash: in.RefreshTokenHash,
		DeviceInfo:       in.DeviceInfo,
		IssuedAt:         in.IssuedAt,
		ExpiresAt:        in.ExpiresAt,
	}
	r.s.sessions[sess.ID] = sess
	return cloneSession(sess), nil
}

func (r *sessionRepo) Get(ctx context.Context, id string) (*repository.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fail != nil {
		return nil, r.s.fail
	}
	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneSession(sess), nil
}

// sessionTx acumula cambios sobre una copia; se aplican solo si fn retorna nil.
type sessionTx struct {
	s       *Store
	sess    *repository.Session
	rotated []string
}

func (tx *sessionTx) Session() *repository.Session { return tx.sess }

func (tx *sessionTx) WasIssued(hash string) (bool, error) {
	sid, ok := tx.s.history[hash]
	return ok && sid == tx.sess.ID, nil
}

func (tx *sessionTx) Rotate(newHash string, at time.Time) error {
	tx.rotated = append(tx.rotated, tx.sess.RefreshTokenHash)
	tx.sess.RefreshTokenHash = newHash
	tx.sess.LastUsedAt = &at
	return nil
}

func (tx *sessionTx) Revoke(at time.Time) error {
	if tx.sess.RevokedAt == nil {
		tx.sess.RevokedAt = &at
	}
	return nil
}

func (r *sessionRepo) WithSessionLock(ctx context.Context, id string, fn func(tx repository.SessionTx) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fail != nil {
		return r.s.fail
	}
	cur, ok := r.s.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	tx := &sessionTx{s: r.s, sess: cloneSession(cur)}
	if err := fn(tx); err != nil {
		return err
	}
	for _, h := range tx.rotated {
		r.s.history[h] = id
	}
	r.s.sessions[id] = tx.sess
	return nil
}

func (r *sessionRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fail != nil {
		return r.s.fail
	}
	if sess, ok := r.s.sessions[id]; ok && sess.RevokedAt == nil {
		sess.RevokedAt = &at
	}
	return nil
}

func (r *sessionRepo) RevokeAllByUser(ctx context.Context, userID string, at time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fail != nil {
		return 0, r.s.fail
	}
	n := 0
	for _, sess := range r.s.sessions {
		if sess.UserID == userID && sess.RevokedAt == nil {
			t := at
			sess.RevokedAt = &t
			n++
		}
	}
	return n, nil
}

func (r *sessionRepo) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]repository.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fail != nil {
		return nil, r.s.fail
	}
	var out []repository.Session
	for _, sess := range r.s.sessions {
		if sess.UserID == userID && sess.Active(now) {
			out = append(out, *cloneSession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out, nil
}

func (r *sessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.fail != nil {
		return 0, r.s.fail
	}
	n := 0
	for id, sess := range r.s.sessions {
		expired := sess.ExpiresAt.Before(before)
		revoked := sess.RevokedAt != nil && sess.RevokedAt.Before(before)
		if !expired && !revoked {
			continue
		}
		delete(r.s.sessions, id)
		for h, sid := range r.s.history {
			if sid == id {
				delete(r.s.history, h)
			}
		}
		n++
	}
	return n, nil
}
