package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mediationai/mediator/internal/domain"
)

const resolvePrompt = `You are an impartial mediator. Two parties disagree and each has submitted their account ("truth").
Read both accounts and propose a fair, practical resolution.

Respond ONLY with a JSON object with these string fields. No markdown, no explanation:
{"summary": "neutral summary of the disagreement",
 "decision": "the recommended resolution, addressed to both parties",
 "rationale": "why this resolution is fair given both accounts"}

Dispute title: %s
Dispute description: %s

Accounts:
%s`

func buildResolvePrompt(req domain.ResolutionRequest) string {
	var sb strings.Builder
	for _, st := range req.Statements {
		sb.WriteString(fmt.Sprintf("[%s] %s\n", st.Party, st.Text))
		if len(st.Attachments) > 0 {
			sb.WriteString(fmt.Sprintf("  attached: %s\n", strings.Join(st.Attachments, ", ")))
		}
	}
	return fmt.Sprintf(resolvePrompt, req.Title, req.Description, sb.String())
}

// parseDraft decodes a provider reply into a draft. Replies wrapped in
// markdown fences are accepted.
func parseDraft(result string) (*domain.ResolutionDraft, error) {
	result = strings.TrimSpace(result)
	result = strings.TrimPrefix(result, "```json")
	result = strings.TrimPrefix(result, "```")
	result = strings.TrimSuffix(result, "```")
	result = strings.TrimSpace(result)

	var draft domain.ResolutionDraft
	if err := json.Unmarshal([]byte(result), &draft); err != nil {
		return nil, fmt.Errorf("parse resolution result: %w (raw: %s)", err, result)
	}
	if strings.TrimSpace(draft.Decision) == "" {
		return nil, fmt.Errorf("resolution result has no decision (raw: %s)", result)
	}
	return &draft, nil
}
