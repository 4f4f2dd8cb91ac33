package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	tooldomain "github.com/smallbiznis/spendwise/internal/tool/domain"
	"github.com/smallbiznis/spendwise/pkg/db/option"
	"github.com/smallbiznis/spendwise/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() tooldomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*tooldomain.Tool, error) {
	return repository.NewReader[tooldomain.Tool](db).FindOne(ctx, &tooldomain.Tool{OrgID: orgID, ID: id})
}

func (r *repo) ListByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]*tooldomain.Tool, error) {
	return repository.NewReader[tooldomain.Tool](db).Find(ctx, &tooldomain.Tool{OrgID: orgID}, option.WithOrder("id"))
}

// Upsert inserts a discovered tool or returns the existing row sharing its
// normalized name.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, tool *tooldomain.Tool) (*tooldomain.Tool, error) {
	tool.NormalizedName = tooldomain.NormalizeName(tool.Name)
	if strings.TrimSpace(tool.NormalizedName) == "" {
		return nil, tooldomain.ErrInvalidToolName
	}
	if tool.Category == "" {
		tool.Category = tooldomain.CategoryOther
	}

	err := db.WithContext(ctx).Exec(
		`INSERT INTO tools (id, org_id, name, normalized_name, category, is_keystone, keystone_score, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (org_id, normalized_name) DO NOTHING`,
		tool.ID,
		tool.OrgID,
		tool.Name,
		tool.NormalizedName,
		tool.Category,
		false,
		0,
		tool.CreatedAt,
		tool.UpdatedAt,
	).Error
	if err != nil {
		return nil, err
	}

	return repository.NewReader[tooldomain.Tool](db).FindOne(ctx, &tooldomain.Tool{
		OrgID:          tool.OrgID,
		NormalizedName: tool.NormalizedName,
	})
}

func (r *repo) UpdateKeystone(ctx context.Context, db *gorm.DB, orgID snowflake.ID, updates []tooldomain.KeystoneUpdate, at time.Time) error {
	if len(updates) == 0 {
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			if err := tx.Exec(
				`UPDATE tools SET keystone_score = ?, is_keystone = ?, keystone_scored_at = ?, updated_at = ?
				 WHERE org_id = ? AND id = ?`,
				u.Score,
				u.IsKeystone,
				at,
				at,
				orgID,
				u.ToolID,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
