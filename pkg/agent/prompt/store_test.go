package prompt

import (
	"strings"
	"testing"

	"github.com/boardroomhq/boardroom/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreParsesAndValidatesAllTemplates(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)

	for _, id := range []string{"analyst", "commercial", "market", "financial", "reviewer", RefineTemplateID} {
		assert.True(t, s.Has(id), "template %s should exist", id)
	}
}

func TestRenderSubstitutesVariables(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)

	vars := Variables{
		BusinessType:     "ecommerce",
		Depth:            string(models.DepthDeep),
		DepthDescription: DepthDescription(models.DepthDeep),
	}

	out, err := s.Render("analyst", vars)
	require.NoError(t, err)
	assert.Contains(t, out, "ecommerce")
	assert.Contains(t, out, "exhaustive deep-dive")
	// Industry omitted: the optional clause should not render.
	assert.NotContains(t, out, "industry industry")
}

func TestRenderIncludesIndustryWhenSet(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)

	out, err := s.Render("market", Variables{
		BusinessType:     "saas",
		Depth:            string(models.DepthFast),
		DepthDescription: DepthDescription(models.DepthFast),
		Industry:         "logistics",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "logistics")
}

func TestRenderUnknownTemplate(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)

	_, err = s.Render("nonexistent", Variables{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown template")
}

func TestRenderIsDeterministic(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)

	vars := Variables{BusinessType: "fintech", Depth: "standard", DepthDescription: DepthDescription(models.DepthStandard)}
	a, err := s.Render("reviewer", vars)
	require.NoError(t, err)
	b, err := s.Render("reviewer", vars)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDepthDescriptionCoversAllDepths(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range []models.Depth{models.DepthFast, models.DepthStandard, models.DepthDeep} {
		desc := DepthDescription(d)
		assert.NotEmpty(t, desc)
		assert.False(t, seen[desc], "descriptions must differ per depth")
		seen[desc] = true
	}
}

func TestTemplatesMentionStructure(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)

	vars := Variables{BusinessType: "retail", Depth: "standard", DepthDescription: DepthDescription(models.DepthStandard)}
	for _, id := range []string{"analyst", "commercial", "market", "financial", "reviewer"} {
		out, err := s.Render(id, vars)
		require.NoError(t, err)
		assert.True(t, strings.Contains(out, "1."), "template %s should carry a numbered structure", id)
	}
}
