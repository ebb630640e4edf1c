package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRAGTool_ToolName(t *testing.T) {
	tests := []struct {
		name         string
		toolName     string
		expectedName string
	}{
		{
			name:         "Uses custom tool name",
			toolName:     "custom_search",
			expectedName: "custom_search",
		},
		{
			name:         "Uses provided name",
			toolName:     "my_docs",
			expectedName: "my_docs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := NewRAGTool(nil, tt.toolName, "")

			toolList, err := tool.Tools(t.Context())
			require.NoError(t, err)
			require.Len(t, toolList, 1)
			assert.Equal(t, tt.expectedName, toolList[0].Name)
			assert.Equal(t, "knowledge", toolList[0].Category)
		})
	}
}

func TestRAGTool_DefaultName(t *testing.T) {
	tool := NewRAGTool(nil, "", "")

	toolList, err := tool.Tools(t.Context())
	require.NoError(t, err)
	require.Len(t, toolList, 1)
	assert.Equal(t, "rag_search", toolList[0].Name)
	assert.True(t, toolList[0].Annotations.ReadOnlyHint)
}

func TestRAGTool_EmptyQueryRejected(t *testing.T) {
	tool := NewRAGTool(nil, "rag_search", "")

	_, err := tool.handleQueryRAG(t.Context(), QueryRAGArgs{Query: ""})
	require.Error(t, err)
}
