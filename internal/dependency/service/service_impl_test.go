package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/spendwise/internal/config"
	dependencydomain "github.com/smallbiznis/spendwise/internal/dependency/domain"
	"github.com/smallbiznis/spendwise/internal/dependency/repository"
	schedtesting "github.com/smallbiznis/spendwise/internal/scheduler/testing"
	toolrepository "github.com/smallbiznis/spendwise/internal/tool/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupDependencyService(t *testing.T, policy config.GovernancePolicy) (*Service, *schedtesting.Fixtures, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, schedtesting.ApplySchema(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       repository.Provide(),
		ToolRepo:   toolrepository.Provide(),
		Governance: config.NewStaticGovernanceHolder(policy),
	})
	return svc, schedtesting.NewFixtures(db, node, time.Now().UTC()), db
}

func TestImpactUsesConfiguredDepth(t *testing.T) {
	ctx := context.Background()
	policy := config.DefaultGovernancePolicy()
	policy.MaxTraversalDepth = 2
	svc, fx, _ := setupDependencyService(t, policy)

	orgID := snowflake.ID(10)
	var chain []snowflake.ID
	for _, name := range []string{"okta", "slack", "jira", "confluence"} {
		id, err := fx.Tool(ctx, orgID, name)
		require.NoError(t, err)
		chain = append(chain, id)
	}
	for i := 1; i < len(chain); i++ {
		require.NoError(t, fx.Dependency(ctx, orgID, chain[i], chain[i-1], 0.8))
	}

	impact, err := svc.Impact(ctx, orgID, chain[0])
	require.NoError(t, err)
	assert.Equal(t, 2, impact.TotalDependents)
	assert.Equal(t, 2, impact.MaxDepth)
	assert.InDelta(t, 0.8, impact.AvgStrength, 1e-9)
}

func TestImpactUnknownTool(t *testing.T) {
	svc, _, _ := setupDependencyService(t, config.DefaultGovernancePolicy())

	_, err := svc.Impact(context.Background(), 1, 404)
	assert.ErrorIs(t, err, dependencydomain.ErrToolNotFound)
}

func TestDependenciesSplitsDirections(t *testing.T) {
	ctx := context.Background()
	svc, fx, _ := setupDependencyService(t, config.DefaultGovernancePolicy())

	orgID := snowflake.ID(20)
	okta, err := fx.Tool(ctx, orgID, "okta")
	require.NoError(t, err)
	slack, err := fx.Tool(ctx, orgID, "slack")
	require.NoError(t, err)
	github, err := fx.Tool(ctx, orgID, "github")
	require.NoError(t, err)

	require.NoError(t, fx.Dependency(ctx, orgID, slack, okta, 0.9))
	require.NoError(t, fx.Dependency(ctx, orgID, okta, github, 0.4))

	deps, err := svc.Dependencies(ctx, orgID, okta)
	require.NoError(t, err)
	require.Len(t, deps.DependedBy, 1)
	require.Len(t, deps.DependsOn, 1)
	assert.Equal(t, slack, deps.DependedBy[0].SourceToolID)
	assert.Equal(t, github, deps.DependsOn[0].TargetToolID)
}

func TestAddDependencyFeedsImpact(t *testing.T) {
	ctx := context.Background()
	svc, fx, _ := setupDependencyService(t, config.DefaultGovernancePolicy())

	orgID := snowflake.ID(30)
	okta, err := fx.Tool(ctx, orgID, "okta")
	require.NoError(t, err)
	slack, err := fx.Tool(ctx, orgID, "slack")
	require.NoError(t, err)

	edge, err := svc.AddDependency(ctx, dependencydomain.AddDependencyRequest{
		OrgID:          orgID,
		SourceToolID:   slack,
		TargetToolID:   okta,
		DependencyType: dependencydomain.DependencyTypeAuth,
	})
	require.NoError(t, err)
	assert.NotZero(t, edge.ID)
	assert.InDelta(t, dependencydomain.DefaultStrength, edge.Strength, 1e-9)

	impact, err := svc.Impact(ctx, orgID, okta)
	require.NoError(t, err)
	assert.Equal(t, 1, impact.TotalDependents)

	_, err = svc.AddDependency(ctx, dependencydomain.AddDependencyRequest{
		OrgID:          orgID,
		SourceToolID:   slack,
		TargetToolID:   okta,
		DependencyType: dependencydomain.DependencyTypeAuth,
	})
	assert.ErrorIs(t, err, dependencydomain.ErrDependencyExists)

	strength := 0.9
	_, err = svc.AddDependency(ctx, dependencydomain.AddDependencyRequest{
		OrgID:          orgID,
		SourceToolID:   slack,
		TargetToolID:   okta,
		DependencyType: dependencydomain.DependencyTypeDataFlow,
		Strength:       &strength,
	})
	require.NoError(t, err)

	deps, err := svc.Dependencies(ctx, orgID, okta)
	require.NoError(t, err)
	assert.Len(t, deps.DependedBy, 2)
}

func TestAddDependencyValidatesEdge(t *testing.T) {
	ctx := context.Background()
	svc, fx, _ := setupDependencyService(t, config.DefaultGovernancePolicy())

	orgID := snowflake.ID(31)
	okta, err := fx.Tool(ctx, orgID, "okta")
	require.NoError(t, err)
	slack, err := fx.Tool(ctx, orgID, "slack")
	require.NoError(t, err)
	foreign, err := fx.Tool(ctx, 99, "jira")
	require.NoError(t, err)

	tooStrong := 1.5
	cases := []struct {
		name string
		req  dependencydomain.AddDependencyRequest
		want error
	}{
		{"self loop", dependencydomain.AddDependencyRequest{SourceToolID: okta, TargetToolID: okta, DependencyType: dependencydomain.DependencyTypeAuth}, dependencydomain.ErrSelfDependency},
		{"unknown type", dependencydomain.AddDependencyRequest{SourceToolID: slack, TargetToolID: okta, DependencyType: "sso"}, dependencydomain.ErrInvalidDependencyType},
		{"strength above one", dependencydomain.AddDependencyRequest{SourceToolID: slack, TargetToolID: okta, DependencyType: dependencydomain.DependencyTypeAuth, Strength: &tooStrong}, dependencydomain.ErrInvalidStrength},
		{"missing tool", dependencydomain.AddDependencyRequest{SourceToolID: slack, TargetToolID: 404, DependencyType: dependencydomain.DependencyTypeAuth}, dependencydomain.ErrToolNotFound},
		{"tool of another org", dependencydomain.AddDependencyRequest{SourceToolID: slack, TargetToolID: foreign, DependencyType: dependencydomain.DependencyTypeAuth}, dependencydomain.ErrToolNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.OrgID = orgID
			_, err := svc.AddDependency(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	deps, err := svc.Dependencies(ctx, orgID, okta)
	require.NoError(t, err)
	assert.Empty(t, deps.DependedBy)
}

func TestRemoveDependency(t *testing.T) {
	ctx := context.Background()
	svc, fx, _ := setupDependencyService(t, config.DefaultGovernancePolicy())

	orgID := snowflake.ID(32)
	okta, err := fx.Tool(ctx, orgID, "okta")
	require.NoError(t, err)
	slack, err := fx.Tool(ctx, orgID, "slack")
	require.NoError(t, err)
	github, err := fx.Tool(ctx, orgID, "github")
	require.NoError(t, err)

	edge, err := svc.AddDependency(ctx, dependencydomain.AddDependencyRequest{
		OrgID:          orgID,
		SourceToolID:   slack,
		TargetToolID:   okta,
		DependencyType: dependencydomain.DependencyTypeAuth,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.RemoveDependency(ctx, orgID, github, edge.ID), dependencydomain.ErrDependencyNotFound)
	assert.ErrorIs(t, svc.RemoveDependency(ctx, 77, slack, edge.ID), dependencydomain.ErrDependencyNotFound)

	require.NoError(t, svc.RemoveDependency(ctx, orgID, okta, edge.ID))
	assert.ErrorIs(t, svc.RemoveDependency(ctx, orgID, okta, edge.ID), dependencydomain.ErrDependencyNotFound)

	impact, err := svc.Impact(ctx, orgID, okta)
	require.NoError(t, err)
	assert.Zero(t, impact.TotalDependents)
}
