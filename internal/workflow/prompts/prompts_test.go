package prompts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSystem_AllRolesResolve(t *testing.T) {
	ctx := context.Background()
	for _, role := range []string{
		RoleHypothesis, RoleProcess, RoleVisualization, RoleSearch,
		RoleCoder, RoleReport, RoleQualityReview, RoleNoteTaker, RoleRefiner,
	} {
		content, err := RenderSystem(ctx, role, nil)
		require.NoError(t, err, "role %s", role)
		assert.NotEmpty(t, content, "role %s", role)
	}
}

func TestRenderSystem_SubstitutesVariables(t *testing.T) {
	content, err := RenderSystem(context.Background(), RoleProcess, map[string]string{
		"team": "Coder, Search",
	})
	require.NoError(t, err)
	assert.NotContains(t, content, "{team}")
}

func TestRenderSystem_UnknownRole(t *testing.T) {
	_, err := RenderSystem(context.Background(), "astrologer", nil)
	assert.Error(t, err)
}
