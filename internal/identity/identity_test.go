package identity

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveConversationID_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"U1", "U2"},
		{"zzz", "aaa"},
		{"user-10", "user-9"},
	}
	for _, p := range pairs {
		ab, err := DeriveConversationID(p[0], p[1])
		require.NoError(t, err)
		ba, err := DeriveConversationID(p[1], p[0])
		require.NoError(t, err)
		assert.Equal(t, ab, ba, "pair %v", p)
	}
}

func TestDeriveConversationID_Injective(t *testing.T) {
	seen := map[string][2]string{}
	ids := []string{"a", "b", "c", "ab", "bc", "a_b", "U1", "U2", "U12"}
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			id, err := DeriveConversationID(a, b)
			require.NoError(t, err)
			if prev, dup := seen[id]; dup {
				t.Fatalf("collision: %v and %v both map to %q", prev, [2]string{a, b}, id)
			}
			seen[id] = [2]string{a, b}
		}
	}

	ab, _ := DeriveConversationID("a", "b")
	ac, _ := DeriveConversationID("a", "c")
	assert.NotEqual(t, ab, ac)
}

func TestDeriveConversationID_Rejects(t *testing.T) {
	_, err := DeriveConversationID("u1", "u1")
	assert.ErrorIs(t, err, ErrIdentityAmbiguous)

	_, err = DeriveConversationID("", "u1")
	assert.ErrorIs(t, err, ErrInvalidParticipant)

	_, err = DeriveConversationID("a"+Separator+"b", "c")
	assert.ErrorIs(t, err, ErrInvalidParticipant)
}

func TestParticipantsRoundTrip(t *testing.T) {
	for i := 0; i < 20; i++ {
		a, b := fmt.Sprintf("p%d", i), fmt.Sprintf("q%d", i*7)
		id, err := DeriveConversationID(b, a)
		require.NoError(t, err)
		x, y, err := Participants(id)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{a, b}, []string{x, y})
		assert.True(t, IsDirect(id))
	}
	assert.False(t, IsDirect("group-7f3a"))
	assert.False(t, IsDirect("b:a"))
}
