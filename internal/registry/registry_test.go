package registry

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(42, &Entry{}))
	err := r.Register(42, &Entry{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
	// other owners are unaffected
	require.NoError(t, r.Register(7, &Entry{}))
	assert.Equal(t, 2, r.Len())
}

func TestLookupAbsentIsNormal(t *testing.T) {
	r := New()
	e, ok := r.Lookup(99)
	assert.False(t, ok)
	assert.Nil(t, e)
}

func TestDeregisterIdempotent(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(1, &Entry{}))
	e, ok := r.Deregister(1)
	assert.True(t, ok)
	assert.NotNil(t, e)
	e, ok = r.Deregister(1)
	assert.False(t, ok)
	assert.Nil(t, e)
	assert.False(t, r.Contains(1))
}

func TestSwapHandleRequiresMembership(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(5, &Entry{}))
	assert.True(t, r.SwapHandle(5, nil))
	r.Deregister(5)
	assert.False(t, r.SwapHandle(5, nil), "swap after deregister must fail")
}

func TestOwners(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(3, &Entry{}))
	require.NoError(t, r.Register(1, &Entry{}))
	owners := r.Owners()
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	assert.Equal(t, []int64{1, 3}, owners)
}
