package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	dependencydomain "github.com/smallbiznis/spendwise/internal/dependency/domain"
	tooldomain "github.com/smallbiznis/spendwise/internal/tool/domain"
)

type upsertToolRequest struct {
	Name     string `json:"name" binding:"required"`
	Category string `json:"category"`
}

type addDependencyRequest struct {
	TargetToolID   string   `json:"target_tool_id" binding:"required"`
	DependencyType string   `json:"dependency_type" binding:"required"`
	Strength       *float64 `json:"strength"`
	Verified       bool     `json:"verified"`
}

// UpsertTool records a tool reported by a discovery sync. A repeated report
// of the same normalized name answers 200 with the stored row.
func (s *Server) UpsertTool(c *gin.Context) {
	orgID, _ := orgIDFromGin(c)

	var body upsertToolRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.toolSvc.Upsert(c.Request.Context(), tooldomain.UpsertToolRequest{
		OrgID:    orgID,
		Name:     body.Name,
		Category: tooldomain.Category(strings.ToLower(strings.TrimSpace(body.Category))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": result})
}

func (s *Server) AddToolDependency(c *gin.Context) {
	orgID, _ := orgIDFromGin(c)
	toolID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body addDependencyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	targetID, err := snowflake.ParseString(strings.TrimSpace(body.TargetToolID))
	if err != nil || targetID == 0 {
		AbortWithError(c, newValidationError("target_tool_id", "invalid_target_tool_id", "invalid target_tool_id"))
		return
	}

	edge, err := s.toolGraph.AddDependency(c.Request.Context(), dependencydomain.AddDependencyRequest{
		OrgID:          orgID,
		SourceToolID:   toolID,
		TargetToolID:   targetID,
		DependencyType: dependencydomain.DependencyType(strings.TrimSpace(body.DependencyType)),
		Strength:       body.Strength,
		Verified:       body.Verified,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": edge})
}

func (s *Server) RemoveToolDependency(c *gin.Context) {
	orgID, _ := orgIDFromGin(c)
	toolID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	dependencyID, err := parseSnowflakeParam(c, "dependency_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.toolGraph.RemoveDependency(c.Request.Context(), orgID, toolID, dependencyID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetToolImpact returns the transitive impact of losing a tool next to its
// direct edges.
func (s *Server) GetToolImpact(c *gin.Context) {
	orgID, _ := orgIDFromGin(c)
	toolID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	impact, err := s.toolGraph.Impact(c.Request.Context(), orgID, toolID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	deps, err := s.toolGraph.Dependencies(c.Request.Context(), orgID, toolID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"impact":      impact,
			"depends_on":  deps.DependsOn,
			"depended_by": deps.DependedBy,
		},
	})
}

func (s *Server) RecomputeKeystone(c *gin.Context) {
	orgID, _ := orgIDFromGin(c)

	result, err := s.keystoneSvc.Recompute(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}
