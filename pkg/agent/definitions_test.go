package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardroomhq/boardroom/pkg/models"
)

func TestProductionAgents(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		defs := ProductionAgents("", "")
		require.Len(t, defs, 5)

		byName := make(map[string]Definition, len(defs))
		for _, d := range defs {
			byName[d.Name] = d
			assert.Equal(t, d.Name, d.TemplateID)
			assert.Equal(t, DefaultAgentTimeout, d.Timeout)
		}

		assert.Empty(t, byName[AgentAnalyst].DependsOn)
		assert.Equal(t, []string{AgentAnalyst}, byName[AgentCommercial].DependsOn)
		assert.Equal(t, []string{AgentAnalyst}, byName[AgentMarket].DependsOn)
		assert.Equal(t, []string{AgentAnalyst, AgentCommercial}, byName[AgentFinancial].DependsOn)
		assert.Equal(t,
			[]string{AgentAnalyst, AgentCommercial, AgentMarket, AgentFinancial},
			byName[AgentReviewer].DependsOn)

		assert.Equal(t, "gpt-4o-mini", byName[AgentAnalyst].Model)
		assert.Equal(t, "gpt-4o", byName[AgentReviewer].Model)
	})

	t.Run("model overrides", func(t *testing.T) {
		defs := ProductionAgents("small-model", "big-model")
		for _, d := range defs {
			if d.Name == AgentReviewer {
				assert.Equal(t, "big-model", d.Model)
			} else {
				assert.Equal(t, "small-model", d.Model)
			}
		}
	})
}

func TestSubgraph(t *testing.T) {
	defs := ProductionAgents("", "")

	t.Run("all enabled keeps everything", func(t *testing.T) {
		enabled := map[string]bool{}
		for _, d := range defs {
			enabled[d.Name] = true
		}
		assert.Equal(t, defs, Subgraph(defs, enabled))
	})

	t.Run("disabled agents pruned from nodes and edges", func(t *testing.T) {
		enabled := map[string]bool{
			AgentAnalyst:    true,
			AgentCommercial: true,
			AgentReviewer:   true,
		}
		sub := Subgraph(defs, enabled)
		require.Len(t, sub, 3)

		byName := make(map[string]Definition, len(sub))
		for _, d := range sub {
			byName[d.Name] = d
		}
		assert.NotContains(t, byName, AgentMarket)
		assert.NotContains(t, byName, AgentFinancial)
		// The reviewer's references to disabled agents are pruned so the
		// subgraph still resolves; it degrades with sentinels at run time.
		assert.Equal(t, []string{AgentAnalyst, AgentCommercial}, byName[AgentReviewer].DependsOn)
	})

	t.Run("empty set keeps nothing", func(t *testing.T) {
		assert.Empty(t, Subgraph(defs, map[string]bool{}))
	})
}

func TestMaxTokensFor(t *testing.T) {
	assert.Equal(t, 1024, MaxTokensFor(models.DepthFast))
	assert.Equal(t, 2048, MaxTokensFor(models.DepthStandard))
	assert.Equal(t, 4096, MaxTokensFor(models.DepthDeep))
}

func TestTimeoutBudget(t *testing.T) {
	defs := []Definition{
		{Name: "a", Timeout: 30 * time.Second},
		{Name: "b", Timeout: 30 * time.Second},
		{Name: "c", Timeout: 15 * time.Second},
	}
	assert.Equal(t, 75*time.Second, TimeoutBudget(defs))
	assert.Equal(t, time.Duration(0), TimeoutBudget(nil))
}
