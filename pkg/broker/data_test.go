package broker

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataScalarAccessors(t *testing.T) {
	b := NewBool(true)
	v, ok := b.AsBool()
	require.True(t, ok)
	assert.True(t, v)
	_, ok = b.AsCount()
	assert.False(t, ok)

	c := NewCount(42)
	cv, ok := c.AsCount()
	require.True(t, ok)
	assert.EqualValues(t, 42, cv)

	s := NewString("hello")
	sv, ok := s.AsString()
	require.True(t, ok)
	assert.Equal(t, "hello", sv)
}

func TestDataSetEqualityIgnoresInsertionOrder(t *testing.T) {
	a := NewSet(NewCount(1), NewCount(2), NewCount(3))
	b := NewSet(NewCount(3), NewCount(2), NewCount(1))
	assert.True(t, a.Equal(b))
}

func TestDataTableKeyedByData(t *testing.T) {
	key := NewString("a")
	table := NewTable(TableEntry{Key: key, Value: NewCount(1)})
	elems, ok := table.AsTable()
	require.True(t, ok)
	require.Len(t, elems, 1)
	assert.True(t, elems[0].Key.Equal(key))
}

func TestDataLessTotalOrder(t *testing.T) {
	assert.True(t, NewCount(1).Less(NewCount(2)))
	assert.False(t, NewCount(2).Less(NewCount(1)))
	assert.True(t, NewBool(false).Less(NewCount(0)), "ordering falls back to Kind when kinds differ")
}

func TestDataAddressAndSubnet(t *testing.T) {
	addr := NewAddress(net.ParseIP("10.0.0.1"))
	av, ok := addr.AsAddress()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", av.String())

	_, subnet, err := net.ParseCIDR("10.0.0.0/24")
	require.NoError(t, err)
	sd := NewSubnet(subnet)
	sv, ok := sd.AsSubnet()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.0/24", sv.String())
}

func TestDataTimestampAndTimespan(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	ts := NewTimestamp(now)
	tv, ok := ts.AsTimestamp()
	require.True(t, ok)
	assert.True(t, now.Equal(tv))

	span := NewTimespan(30 * time.Second)
	spv, ok := span.AsTimespan()
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, spv)
}
