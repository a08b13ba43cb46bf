package analyzer

import (
	"encoding/json"
	"regexp"
)

// jsonObjectPattern spans the first '{' through the last '}' of the text
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// RawResponse is the decoded model payload before validation
type RawResponse struct {
	Measurements interface{} `json:"measurements"`
}

// ParseResponse extracts the JSON object embedded in free-form model output.
// Surrounding prose is ignored.
func ParseResponse(text string) (*RawResponse, error) {
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return nil, newError(KindMalformedResponse, "invalid response format", nil)
	}

	var resp RawResponse
	if err := json.Unmarshal([]byte(match), &resp); err != nil {
		return nil, newError(KindMalformedResponse, "invalid JSON format", err)
	}

	if !truthy(resp.Measurements) {
		return nil, newError(KindMissingMeasurements, "no measurements found in response", nil)
	}

	return &resp, nil
}

// truthy treats absent, null, false, 0 and "" as missing
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
