package environment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kiranshivaraju/operator-service/internal/apperrors"
	"github.com/kiranshivaraju/operator-service/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	envs       map[string]models.EnvironmentStatus
	announced  []string
	lastLimit  int
	lastStatus models.EnvironmentStatus
	err        error
}

func (m *mockStore) ListEnvironments(_ context.Context, chainID *int64) ([]*models.Environment, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.Environment
	for ns, st := range m.envs {
		if chainID != nil && !st.AcceptsChain(chainID) {
			continue
		}
		out = append(out, &models.Environment{Namespace: ns, Status: st})
	}
	return out, nil
}

func (m *mockStore) EnvironmentExists(_ context.Context, namespace string, chainID *int64) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	st, ok := m.envs[namespace]
	return ok && st.AcceptsChain(chainID), nil
}

func (m *mockStore) Announce(_ context.Context, namespace string, status models.EnvironmentStatus, limit int) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.lastLimit = limit
	m.lastStatus = status
	if m.envs == nil {
		m.envs = map[string]models.EnvironmentStatus{}
	}
	m.envs[namespace] = status
	if len(m.announced) > limit {
		return m.announced[:limit], nil
	}
	return m.announced, nil
}

func chain(v int64) *int64 { return &v }

func TestRegistry_Eligible(t *testing.T) {
	s := &mockStore{envs: map[string]models.EnvironmentStatus{
		"restricted": {AllowedChainID: models.ChainIDList{1, 137}},
		"open":       {},
	}}
	r := NewRegistry(s, 10)
	ctx := context.Background()

	ok, err := r.Eligible(ctx, "restricted", chain(1))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Eligible(ctx, "restricted", chain(42))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.Eligible(ctx, "open", chain(42))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Eligible(ctx, "", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_EligibleStoreError(t *testing.T) {
	r := NewRegistry(&mockStore{err: errors.New("connection refused")}, 10)
	_, err := r.Eligible(context.Background(), "ns", nil)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
}

func TestRegistry_List(t *testing.T) {
	s := &mockStore{envs: map[string]models.EnvironmentStatus{
		"restricted": {AllowedChainID: models.ChainIDList{1}},
		"open":       {},
	}}
	r := NewRegistry(s, 10)

	envs, err := r.List(context.Background(), chain(5))
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, "open", envs[0].Namespace)

	envs, err = r.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, envs, 2)
}

func TestRegistry_Announce(t *testing.T) {
	s := &mockStore{announced: []string{"a", "b", "c"}}
	r := NewRegistry(s, 2)
	ctx := context.Background()

	ids, err := r.Announce(ctx, "ns", models.EnvironmentStatus{AllowedChainID: models.ChainIDList{1}}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.Equal(t, 2, s.lastLimit)
	assert.Equal(t, models.ChainIDList{1}, s.lastStatus.AllowedChainID)

	_, err = r.Announce(ctx, "ns", models.EnvironmentStatus{}, 5000)
	require.NoError(t, err)
	assert.Equal(t, maxAnnounceLimit, s.lastLimit)

	_, err = r.Announce(ctx, "", models.EnvironmentStatus{}, 1)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

type memCache struct {
	data map[string][]byte
	hits int
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.data[key]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *memCache) DeletePrefix(_ context.Context, prefix string) (int, error) {
	n := 0
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
			n++
		}
	}
	return n, nil
}

func TestRegistry_ListCached(t *testing.T) {
	s := &mockStore{envs: map[string]models.EnvironmentStatus{"open": {}}}
	c := &memCache{data: map[string][]byte{}}
	r := NewRegistry(s, 10).WithCache(c, time.Minute)
	ctx := context.Background()

	envs, err := r.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Contains(t, c.data, "envs:all")

	s.envs["second"] = models.EnvironmentStatus{}
	envs, err = r.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, envs, 1)
	assert.Equal(t, 1, c.hits)

	_, err = r.Announce(ctx, "third", models.EnvironmentStatus{}, 1)
	require.NoError(t, err)
	assert.Empty(t, c.data)

	envs, err = r.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, envs, 3)
}
