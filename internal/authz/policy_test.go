package authz

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/camguard/internal/domain/autherr"
	"github.com/dropDatabas3/camguard/internal/domain/types"
	"github.com/dropDatabas3/camguard/internal/metrics"
)

var actions = []types.Action{types.ActionRead, types.ActionCreate, types.ActionUpdate, types.ActionDelete, "export"}

func TestAuthorizeMatrix(t *testing.T) {
	alice := types.Identity{SubjectID: "alice", Role: types.RoleStandard}
	root := types.Identity{SubjectID: "root", Role: types.RoleAdmin}

	cases := []struct {
		name  string
		id    types.Identity
		owner string
		want  Decision
	}{
		{"standard own resource", alice, "alice", Allow},
		{"standard foreign resource", alice, "bob", Deny},
		{"standard unowned resource", alice, "", Deny},
		{"admin foreign resource", root, "bob", Allow},
		{"admin own resource", root, "root", Allow},
		{"admin unowned resource", root, "", Allow},
		{"unknown role", types.Identity{SubjectID: "x", Role: "superuser"}, "x", Deny},
		{"empty role", types.Identity{SubjectID: "x"}, "x", Deny},
		{"anonymous", types.Identity{Role: types.RoleAdmin}, "bob", Deny},
	}
	for _, tc := range cases {
		for _, a := range actions {
			t.Run(tc.name+"/"+string(a), func(t *testing.T) {
				assert.Equal(t, tc.want, Authorize(tc.id, tc.owner, a))
			})
		}
	}
}

func TestRequire(t *testing.T) {
	p := NewPolicy(nil)
	alice := types.Identity{SubjectID: "alice", Role: types.RoleStandard}

	assert.NoError(t, p.Require(alice, "alice", types.ActionDelete))
	err := p.Require(alice, "bob", types.ActionRead)
	assert.ErrorIs(t, err, autherr.ErrForbidden)
	assert.Equal(t, "forbidden", autherr.Kind(err))
}

func TestPolicyWithMetrics(t *testing.T) {
	m, err := metrics.NewAuth(prometheus.NewRegistry())
	require.NoError(t, err)
	p := NewPolicy(m)
	assert.Equal(t, Allow, p.Authorize(types.Identity{SubjectID: "a", Role: types.RoleAdmin}, "b", types.ActionRead))
	assert.Equal(t, "deny", Deny.String())
}
