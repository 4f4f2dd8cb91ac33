package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	dependencydomain "github.com/smallbiznis/spendwise/internal/dependency/domain"
	"github.com/smallbiznis/spendwise/pkg/db"
	"gorm.io/gorm"
)

const edgeColumns = `id, org_id, source_tool_id, target_tool_id, dependency_type, strength, verified, created_at`

type repo struct{}

func Provide() dependencydomain.Repository {
	return &repo{}
}

func (r *repo) ListByOrg(ctx context.Context, conn *gorm.DB, orgID snowflake.ID) ([]dependencydomain.ToolDependency, error) {
	var edges []dependencydomain.ToolDependency
	err := conn.WithContext(ctx).Raw(
		`SELECT `+edgeColumns+`
		 FROM tool_dependencies
		 WHERE org_id = ?
		 ORDER BY id`,
		orgID,
	).Scan(&edges).Error
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// Insert stores one edge. The (source, target, type) unique index turns a
// repeated declaration into ErrDependencyExists.
func (r *repo) Insert(ctx context.Context, conn *gorm.DB, edge *dependencydomain.ToolDependency) error {
	result := conn.WithContext(ctx).Exec(
		`INSERT INTO tool_dependencies (`+edgeColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		edge.ID,
		edge.OrgID,
		edge.SourceToolID,
		edge.TargetToolID,
		edge.DependencyType,
		edge.Strength,
		edge.Verified,
		edge.CreatedAt,
	)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return dependencydomain.ErrDependencyExists
		}
		return result.Error
	}
	return nil
}

// Delete removes one edge of the org and returns it.
func (r *repo) Delete(ctx context.Context, conn *gorm.DB, orgID, id snowflake.ID) (*dependencydomain.ToolDependency, error) {
	var edges []dependencydomain.ToolDependency
	err := conn.WithContext(ctx).Raw(
		`SELECT `+edgeColumns+` FROM tool_dependencies WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&edges).Error
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, dependencydomain.ErrDependencyNotFound
	}

	result := conn.WithContext(ctx).Exec(
		`DELETE FROM tool_dependencies WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, dependencydomain.ErrDependencyNotFound
	}
	return &edges[0], nil
}
