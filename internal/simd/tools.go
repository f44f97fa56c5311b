package simd

import (
	"context"
	"fmt"
	"strings"
)

// Tool names as declared to the model.
const (
	ToolRanking = "get_ranking"
	ToolLookup  = "lookup_neighborhood"
)

// Deprivation band thresholds. These are fixed constants of the SIMD
// domain, not statistically derived; downstream consumers depend on
// the exact boundary values.
const (
	bandHighBelow = 1000
	bandLowAbove  = 5000
)

// Band classifies a zone rank into its deprivation band.
func Band(rank int) string {
	switch {
	case rank < bandHighBelow:
		return "High Deprivation (Bottom 15%)"
	case rank > bandLowAbove:
		return "Low Deprivation (Wealthy)"
	default:
		return "Mid-range"
	}
}

// RankingHandler returns a function compatible with the tools.Tool
// Handler signature, wrapping Store.TopZones. Every failure is
// converted to a textual result: the orchestrator always receives a
// string it can reason about, never a raised error.
func RankingHandler(store *Store) func(ctx context.Context, args map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		areaName, _ := args["area_name"].(string)
		rankingType, _ := args["ranking_type"].(string)
		if areaName == "" {
			return "Error: area_name is required.", nil
		}

		area := NormalizeArea(areaName)
		if !ValidName(area) {
			return fmt.Sprintf("Error: %q is not a recognizable area name.", areaName), nil
		}

		leastDeprived := strings.Contains(strings.ToLower(rankingType), "least")
		desc := "Most Deprived (Poorest)"
		if leastDeprived {
			desc = "Least Deprived (Wealthiest)"
		}

		filter := area
		label := area
		if IsNational(area) {
			filter = ""
			label = "Scotland (Overall)"
		}

		zones, err := store.TopZones(ctx, filter, leastDeprived)
		if err != nil {
			return fmt.Sprintf("Error: could not read statistics: %v", err), nil
		}
		if len(zones) == 0 {
			return fmt.Sprintf("No data found for '%s'. I only have data for Scotland.", area), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Top %d %s in %s:\n", len(zones), desc, label)
		for i, z := range zones {
			fmt.Fprintf(&b, "%d. %s (%s): Rank %d\n", i+1, z.IntermediateZone, z.CouncilArea, z.Rank)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}
}

// RankingDefinition returns the JSON Schema parameters for get_ranking.
func RankingDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"area_name": map[string]any{
				"type":        "string",
				"description": "Council area or 'Scotland' for a national view (e.g., Glasgow, Edinburgh, Scotland).",
			},
			"ranking_type": map[string]any{
				"type":        "string",
				"description": "'most' for the most deprived areas, 'least' for the least deprived.",
			},
		},
		"required": []string{"area_name", "ranking_type"},
	}
}

// LookupHandler returns a handler wrapping Store.LookupZones with
// fuzzy name matching and band classification.
func LookupHandler(store *Store) func(ctx context.Context, args map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		name, _ := args["name"].(string)
		name = strings.TrimSpace(name)
		if name == "" {
			return "Error: name is required.", nil
		}
		if !ValidName(name) {
			return fmt.Sprintf("Error: %q is not a recognizable place name.", name), nil
		}

		zones, err := store.LookupZones(ctx, name)
		if err != nil {
			return fmt.Sprintf("Error: could not read statistics: %v", err), nil
		}
		if len(zones) == 0 {
			return fmt.Sprintf("No data found for '%s'.", name), nil
		}

		lines := make([]string, len(zones))
		for i, z := range zones {
			lines[i] = fmt.Sprintf("%s (%s): Rank %d -> %s", z.IntermediateZone, z.CouncilArea, z.Rank, Band(z.Rank))
		}
		return strings.Join(lines, "\n"), nil
	}
}

// LookupDefinition returns the JSON Schema parameters for lookup_neighborhood.
func LookupDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "Neighborhood or intermediate zone name, full or partial (e.g., Hyndland, Govan).",
			},
		},
		"required": []string{"name"},
	}
}
