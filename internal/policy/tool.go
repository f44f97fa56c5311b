package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ToolQuery is the tool name declared to the model.
const ToolQuery = "query_policy_documents"

// defaultK is how many chunks a retrieval returns.
const defaultK = 3

// QueryHandler returns a handler wrapping Index.Search. Failures are
// converted to textual results so the orchestrator always receives a
// string, never a raised error. An unbuilt index produces a setup
// message distinct from transient retrieval failures.
func QueryHandler(idx *Index) func(ctx context.Context, args map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		query, _ := args["query"].(string)
		query = strings.TrimSpace(query)
		if query == "" {
			return "Error: query is required.", nil
		}

		chunks, err := idx.Search(ctx, query, defaultK)
		if errors.Is(err, ErrNotBuilt) {
			return "Error: the policy document index has not been built yet. Run setup first.", nil
		}
		if err != nil {
			return fmt.Sprintf("Error: could not search policy documents: %v", err), nil
		}

		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		return strings.Join(texts, "\n\n"), nil
	}
}

// QueryDefinition returns the JSON Schema parameters for query_policy_documents.
func QueryDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Question about UK industrial strategy or government policy documents.",
			},
		},
		"required": []string{"query"},
	}
}
