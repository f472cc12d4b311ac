package verification

// Payload is the verification-results document POSTed to the broker's
// pb:publish-verification-results href.
type Payload struct {
	Success                    bool         `json:"success"`
	ProviderApplicationVersion string       `json:"providerApplicationVersion"`
	BuildURL                   string       `json:"buildUrl,omitempty"`
	TestResults                []TestResult `json:"testResults,omitempty"`
}

// TestResult groups the mismatches and execution errors of one interaction.
// InteractionID serialises as null for mismatches the verifier could not
// attribute to an interaction.
type TestResult struct {
	InteractionID *string                  `json:"interactionId"`
	Success       bool                     `json:"success"`
	Mismatches    []map[string]interface{} `json:"mismatches,omitempty"`
	Exceptions    []TestException          `json:"exceptions,omitempty"`
}

type TestException struct {
	Message        string `json:"message"`
	ExceptionClass string `json:"exceptionClass,omitempty"`
}

// BuildPayload renders an outcome into the broker's reporting schema.
// testResults appears only for a failure with recorded mismatches, one group
// per interaction in first-seen order. Records carrying an exception are
// reported under the group's exceptions rather than its mismatches.
func BuildPayload(outcome Outcome, providerApplicationVersion, buildURL string) Payload {
	payload := Payload{
		Success:                    outcome.OK(),
		ProviderApplicationVersion: providerApplicationVersion,
		BuildURL:                   buildURL,
	}
	if outcome.OK() || len(outcome.Mismatches()) == 0 {
		return payload
	}

	var order []string
	groups := make(map[string][]Mismatch)
	for _, mismatch := range outcome.Mismatches() {
		id := mismatch.InteractionID
		if _, seen := groups[id]; !seen {
			order = append(order, id)
		}
		groups[id] = append(groups[id], mismatch)
	}

	for _, id := range order {
		result := TestResult{Success: false}
		if id != "" {
			interactionID := id
			result.InteractionID = &interactionID
		}
		for _, mismatch := range groups[id] {
			if mismatch.Exception != nil {
				result.Exceptions = append(result.Exceptions, TestException{
					Message:        mismatch.Exception.Message,
					ExceptionClass: mismatch.Exception.Class,
				})
				continue
			}
			result.Mismatches = append(result.Mismatches, mismatch.entries()...)
		}
		payload.TestResults = append(payload.TestResults, result)
	}
	return payload
}
