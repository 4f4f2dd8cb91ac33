package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	schedtesting "github.com/smallbiznis/spendwise/internal/scheduler/testing"
	usagedomain "github.com/smallbiznis/spendwise/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCountActiveByToolSkipsRevokedAndInactive(t *testing.T) {
	ctx := context.Background()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, schedtesting.ApplySchema(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fx := schedtesting.NewFixtures(db, node, time.Now().UTC())

	orgID := snowflake.ID(40)
	slack, err := fx.Tool(ctx, orgID, "slack")
	require.NoError(t, err)
	zoom, err := fx.Tool(ctx, orgID, "zoom")
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		user, err := fx.User(ctx, orgID, schedtesting.UserSpec{Name: "u", Role: "member"})
		require.NoError(t, err)
		require.NoError(t, fx.Access(ctx, orgID, slack, user, 1))
	}
	user, err := fx.User(ctx, orgID, schedtesting.UserSpec{Name: "z", Role: "member"})
	require.NoError(t, err)
	require.NoError(t, fx.Access(ctx, orgID, zoom, user, 1))

	var ids []int64
	require.NoError(t, db.Raw(`SELECT id FROM tool_access WHERE tool_id = ? ORDER BY id`, slack).Scan(&ids).Error)
	require.Len(t, ids, 4)
	require.NoError(t, db.Exec(`UPDATE tool_access SET status = ? WHERE id = ?`, usagedomain.AccessStatusRevoked, ids[0]).Error)
	require.NoError(t, db.Exec(`UPDATE tool_access SET status = ? WHERE id = ?`, usagedomain.AccessStatusInactive, ids[1]).Error)
	require.NoError(t, db.Exec(`UPDATE tool_access SET status = ? WHERE tool_id = ?`, usagedomain.AccessStatusRevoked, zoom).Error)

	counts, err := Provide().CountActiveByTool(ctx, db, orgID)
	require.NoError(t, err)
	assert.Equal(t, map[snowflake.ID]int{slack: 2}, counts)
}
