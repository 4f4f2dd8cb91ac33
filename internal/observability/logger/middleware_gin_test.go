package logger

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/health", http.StatusOK))
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/metrics", http.StatusInternalServerError))
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/api/orgs/:org_id/decisions", http.StatusInternalServerError))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/api/orgs/:org_id/decisions/:id/approve", http.StatusForbidden))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/api/orgs/:org_id/decisions/:id/approve", http.StatusConflict))
}
