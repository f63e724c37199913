package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/travelgo/chat-engine/pkg/sql"
)

// proposalSchema describes the generator's query proposal output.
const proposalSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["table", "sql"],
    "properties": {
      "table": {"type": "string"},
      "sql":   {"type": "string", "minLength": 1}
    }
  }
}`

var proposalSchemaLoader = gojsonschema.NewStringLoader(proposalSchema)

// ParseProposals extracts and validates a proposal array from raw model
// output. Items beyond maxQueries are dropped.
func ParseProposals(raw string, maxQueries int) ([]sql.CandidateQuery, error) {
	jsonStr, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	result, err := gojsonschema.Validate(proposalSchemaLoader, gojsonschema.NewStringLoader(jsonStr))
	if err != nil {
		return nil, fmt.Errorf("validate proposals: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, fmt.Errorf("proposals do not match schema: %s", strings.Join(errs, "; "))
	}

	var proposals []sql.CandidateQuery
	if err := json.Unmarshal([]byte(jsonStr), &proposals); err != nil {
		return nil, fmt.Errorf("unmarshal proposals: %w", err)
	}

	out := make([]sql.CandidateQuery, 0, len(proposals))
	for _, p := range proposals {
		p.SQL = strings.TrimSpace(p.SQL)
		p.Table = strings.TrimSpace(p.Table)
		if p.SQL == "" {
			continue
		}
		out = append(out, p)
		if maxQueries > 0 && len(out) == maxQueries {
			break
		}
	}
	return out, nil
}
