package consensus

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/consensus-engine/internal/model"
)

// systemPrompt pins every provider to the same output contract so their
// responses are comparable field by field.
const systemPrompt = "You are a B2B sales analyst. Respond with a single JSON object " +
	"and nothing else. No prose before or after the JSON."

// analysisInstructions map each analysis type to its task framing.
var analysisInstructions = map[model.AnalysisType]string{
	model.AnalysisBusinessPotential: "Evaluate this business as a sales prospect for " +
		"digital services (website, online presence, marketing automation).",
	model.AnalysisQualitativeSummary: "Summarize this business qualitatively for a " +
		"sales team preparing outreach.",
	model.AnalysisSalesApproach: "Design a concrete first-contact sales approach " +
		"for this business.",
}

// fieldInstruction renders one schema field as an output requirement.
func fieldInstruction(f model.FieldSpec) string {
	switch f.Kind {
	case model.KindNumber:
		return fmt.Sprintf("%q: number between %g and %g", f.Key, f.Min, f.Max)
	case model.KindCategory:
		return fmt.Sprintf("%q: a single category word", f.Key)
	case model.KindList:
		return fmt.Sprintf("%q: array of short strings", f.Key)
	default:
		return fmt.Sprintf("%q: string", f.Key)
	}
}

// buildPrompt renders the user prompt for one round: the record's facts plus
// the exact JSON shape the schema validator will accept.
func buildPrompt(req model.AnalysisRequest, schema *model.Schema) string {
	var b strings.Builder

	b.WriteString(analysisInstructions[req.AnalysisType])
	b.WriteString("\n\nBusiness:\n")
	fmt.Fprintf(&b, "- Name: %s\n", req.Record.Name)
	if req.Record.Address != "" {
		fmt.Fprintf(&b, "- Address: %s\n", req.Record.Address)
	}
	if req.Record.BusinessType != "" {
		fmt.Fprintf(&b, "- Type: %s\n", req.Record.BusinessType)
	}
	if req.Record.Rating > 0 {
		fmt.Fprintf(&b, "- Rating: %.1f (%d reviews)\n", req.Record.Rating, req.Record.Reviews)
	}
	if req.Record.Website != "" {
		fmt.Fprintf(&b, "- Website: %s\n", req.Record.Website)
	} else {
		b.WriteString("- Website: none found\n")
	}
	if req.Record.Competitors > 0 {
		fmt.Fprintf(&b, "- Nearby competitors: %d\n", req.Record.Competitors)
	}
	if len(req.Record.Extra) > 0 {
		keys := make([]string, 0, len(req.Record.Extra))
		for k := range req.Record.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, req.Record.Extra[k])
		}
	}

	b.WriteString("\nRespond with a JSON object containing exactly these fields:\n")
	for _, f := range schema.Required() {
		b.WriteString("- ")
		b.WriteString(fieldInstruction(f))
		b.WriteString("\n")
	}

	return b.String()
}
