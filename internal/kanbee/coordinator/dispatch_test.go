package coordinator_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/coordinator"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/domain"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/realtime"
	"github.com/aussiebroadwan/kanbee/internal/kanbee/service"
	"github.com/stretchr/testify/require"
)

func TestDispatch(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	a := e.join(t, "a@kanbee.dev", "A")
	b := e.join(t, "b@kanbee.dev", "B")

	call := func(m member, event, data string) (any, error) {
		req := realtime.Request{ID: "r", Event: event}
		if data != "" {
			req.Data = json.RawMessage(data)
		}
		return e.coord.Dispatch(ctx, m.conn, req)
	}

	out, err := call(a, coordinator.EventCreateProject, `{"title":"Wire"}`)
	require.NoError(t, err)
	p := out.(domain.Project)
	require.Equal(t, "Wire", p.Title)

	_, err = call(a, coordinator.EventSendInvite, `{"id":"`+p.ID+`","email":"b@kanbee.dev"}`)
	require.NoError(t, err)

	_, err = call(b, coordinator.EventAccessInvite, `{"id":"`+p.ID+`"}`)
	require.NoError(t, err, "userId defaults to the caller")

	out, err = call(b, coordinator.EventGetMembers, `{"id":"`+p.ID+`"}`)
	require.NoError(t, err)
	require.Len(t, out.([]coordinator.Member), 2)

	out, err = call(a, coordinator.EventFindAllProjects, `{}`)
	require.NoError(t, err)
	require.Len(t, out.([]domain.Project), 1)

	_, err = call(b, coordinator.EventSubscribeProject, `{"id":"`+p.ID+`"}`)
	require.NoError(t, err)

	_, err = call(a, coordinator.EventUpdateProject, `{"id":"`+p.ID+`","kanban":[{"id":"k","title":"Only","tasks":[]}]}`)
	require.NoError(t, err)

	_, err = call(a, coordinator.EventExileUser, `{"id":"`+p.ID+`","userId":"`+b.user.ID+`"}`)
	require.NoError(t, err)

	_, err = call(b, coordinator.EventAcceptExclusion, `{"title":"Wire"}`)
	require.NoError(t, err)
	require.Empty(t, e.storedUser(t, b.user.ID).Exclusions)

	out, err = call(a, coordinator.EventDeleteProject, `{"id":"`+p.ID+`"}`)
	require.NoError(t, err)
	require.Equal(t, p.ID, out.(coordinator.ProjectRef).ID)

	t.Run("rejects bad input", func(t *testing.T) {
		_, err := call(a, "teleport", "")
		require.ErrorIs(t, err, service.ErrInvalidInput)

		_, err = call(a, coordinator.EventCreateProject, `[1,2]`)
		require.ErrorIs(t, err, service.ErrInvalidInput)

		_, err = call(a, coordinator.EventUpdateProject, `{"id":"x"}`)
		require.ErrorIs(t, err, service.ErrInvalidInput)

		_, err = call(a, coordinator.EventExileUser, `{"id":"x"}`)
		require.ErrorIs(t, err, service.ErrInvalidInput)

		_, err = call(a, coordinator.EventFindProject, `{}`)
		require.ErrorIs(t, err, service.ErrInvalidInput)
	})
}
