package simulation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkQueue(t *testing.T) {
	q := newWorkQueue([]int{1, 2, 3, 4, 5})
	require.False(t, q.finished())

	a := q.take(2)
	require.Equal(t, []int{1, 2}, a)
	b := q.take(10)
	require.Equal(t, []int{3, 4, 5}, b)
	require.Empty(t, q.take(1))

	// everything is handed out but not yet done
	require.False(t, q.finished())

	q.done([]int{2})
	q.done(nil)
	require.False(t, q.finished())

	c := q.take(0)
	require.Nil(t, c)
	c = q.take(1)
	require.Equal(t, []int{2}, c)
	q.done(nil)
	require.True(t, q.finished())
}
