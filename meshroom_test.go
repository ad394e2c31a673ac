package meshroom

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testModel = `
	chat {
		Person {
			name : String,
			age : Integer nullable,
			index(name),
		}
		Message {
			body : String,
			sender : chat.Person,
			index(sender),
		}
	}
`

func newTestHost(t *testing.T, keyMaterial string) *Host {
	t.Helper()
	h, err := New(testModel, "test-app", keyMaterial, t.TempDir(), Config{})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestNewOpensEmptyHostWithNoJoinedRooms(t *testing.T) {
	h := newTestHost(t, "key-a")
	require.Empty(t, h.Rooms())
	require.NotEmpty(t, h.Identity())
}

func TestPrivateRoomJoinsItsOwnRoom(t *testing.T) {
	h := newTestHost(t, "key-b")
	room, err := h.PrivateRoom()
	require.NoError(t, err)
	require.NotEmpty(t, room)
	require.Contains(t, h.Rooms(), room)
}

func TestMutateAndQueryRoundTrip(t *testing.T) {
	h := newTestHost(t, "key-c")
	room, err := h.PrivateRoom()
	require.NoError(t, err)

	ids, err := h.Mutate(context.Background(), room, `
		mutation m {
			created : chat.Person {
				name : $name
				age : 30
			}
		}
	`, map[string]any{"name": "Ada"})
	require.NoError(t, err)
	require.NotEmpty(t, ids["created"])

	result, err := h.Query(context.Background(), room, `
		query q {
			chat.Person {
				name
				age
			}
		}
	`, nil)
	require.NoError(t, err)
	rows, ok := result["chat.Person"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
	require.Equal(t, "Ada", rows[0]["name"])
}

func TestQueryAgainstUnjoinedRoomIsUnauthorized(t *testing.T) {
	h := newTestHost(t, "key-d")
	_, err := h.Query(context.Background(), "no-such-room", `
		query q {
			chat.Person {
				name
			}
		}
	`, nil)
	require.Error(t, err)
	require.True(t, IsUnauthorizedError(err))
}

func TestDeleteTombstonesRow(t *testing.T) {
	h := newTestHost(t, "key-e")
	room, err := h.PrivateRoom()
	require.NoError(t, err)

	ids, err := h.Mutate(context.Background(), room, `
		mutation m {
			created : chat.Person {
				name : $name
				age : 30
			}
		}
	`, map[string]any{"name": "Grace"})
	require.NoError(t, err)
	id := ids["created"]

	err = h.Delete(context.Background(), room, `
		deletion d ($id) {
			chat.Person {
				$id
			}
		}
	`, map[string]any{"id": id})
	require.NoError(t, err)

	result, err := h.Query(context.Background(), room, `
		query q {
			chat.Person {
				name
			}
		}
	`, nil)
	require.NoError(t, err)
	require.Empty(t, result["chat.Person"])
}

func TestInviteRequiresAdminRights(t *testing.T) {
	h := newTestHost(t, "key-f")
	room, err := h.PrivateRoom()
	require.NoError(t, err)

	token, err := h.Invite(room, "member", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)
}

func TestInviteRejectsNonAdmin(t *testing.T) {
	h := newTestHost(t, "key-g")
	_, err := h.Invite("some-room-never-joined", "member", time.Hour)
	require.Error(t, err)
	require.True(t, IsUnauthorizedError(err))
}

func TestSubscribeForEventsReceivesMutation(t *testing.T) {
	h := newTestHost(t, "key-h")
	room, err := h.PrivateRoom()
	require.NoError(t, err)

	sub := h.SubscribeForEvents()
	defer sub.Close()

	_, err = h.Mutate(context.Background(), room, `
		mutation m {
			created : chat.Person {
				name : $name
				age : 30
			}
		}
	`, map[string]any{"name": "Ada"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e, err := sub.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, room, e.Room)
	require.Equal(t, "chat.Person", e.Entity)
}
