package turn

import "fmt"

// reflectPrompt is shown when the router requires a reflect confirmation
// before a complex request proceeds.
func reflectPrompt(confirmToken string) string {
	return fmt.Sprintf(
		"Before continuing, please confirm you'd like me to proceed with this request.\n"+
			"Reply \"confirm token: %s\" to continue, or restate your goal to cancel.",
		confirmToken,
	)
}

// scaffoldPrompt is shown after a reflect confirmation, before the engine
// commits to a full scaffolded plan.
func scaffoldPrompt(confirmToken string) string {
	return fmt.Sprintf(
		"This will take a multi-step plan to answer well. Approve the plan to continue?\n"+
			"Reply \"confirm token: %s\" to approve, or restate your goal to cancel.",
		confirmToken,
	)
}

const deferText = "CLARIFY: this request needs a higher assurance level than this session currently holds. Please rephrase with more context, or ask again shortly."

const boundText = "I can't help with that request. If you'd like, tell me more about what you're trying to accomplish and I can suggest another way forward."

const timeoutText = "That confirmation has expired. Please restate your request to start over."

const rejectedText = "Okay, cancelled. What would you like to do instead?"

func tokenMismatchPrompt(confirmToken string) string {
	return fmt.Sprintf("That didn't match. Reply \"confirm token: %s\" to continue, or restate your goal to cancel.", confirmToken)
}

// citationSchemaDoc is embedded in the TDM prompt so the model sees the
// exact closed enumerations its citations must respect.
const citationSchemaDoc = `Each citation object must have exactly these fields:
  title (string), authors_or_org (string), year (integer),
  source_type (one of: peer_reviewed, preprint, industry_report, primary_source, news, government, other),
  evidence_strength (one of: strong, moderate, weak, anecdotal),
  verification_status (one of: verified, unverified, disputed, retracted)`

// tdmPrompt renders the strict generation prompt demanding the four-key
// output JSON object (spec.md §4.1 "TDM generation path").
func tdmPrompt(userText string) string {
	return fmt.Sprintf(
		"Respond to the following request with a single JSON object and nothing else.\n"+
			"The object must have exactly these keys: text, disclosure, citations, assumptions.\n"+
			"text: your answer. disclosure: any caveats. citations: array of citation objects (may be empty). assumptions: array of strings (may be empty).\n"+
			"%s\n\nRequest: %s",
		citationSchemaDoc, userText,
	)
}

// hardenPrompt re-renders the TDM prompt with the prior attempt's failure
// reason folded in, per spec.md §4.1's retry loop.
func hardenPrompt(userText, failureReason string) string {
	return fmt.Sprintf(
		"%s\n\nYour previous attempt failed validation: %s\nProduce a corrected JSON object that fixes this.",
		tdmPrompt(userText), failureReason,
	)
}
