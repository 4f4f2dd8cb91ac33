package correlation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureKeepsExistingID(t *testing.T) {
	ctx := WithID(context.Background(), "req-1")
	ctx, id := Ensure(ctx)
	assert.Equal(t, "req-1", id)
	assert.Equal(t, "req-1", ID(ctx))
}

func TestEnsureMintsID(t *testing.T) {
	ctx, id := Ensure(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, ID(ctx))
}

func TestWithIDIgnoresBlank(t *testing.T) {
	ctx := WithID(context.Background(), "  ")
	assert.Empty(t, ID(ctx))
}

func TestForRunPrefixesJob(t *testing.T) {
	ctx, id := ForRun(context.Background(), "escalation_advance")
	assert.True(t, strings.HasPrefix(id, "escalation_advance:"))
	assert.Equal(t, id, ID(ctx))

	_, other := ForRun(ctx, "escalation_advance")
	assert.NotEqual(t, id, other)
}
