package agent

// Metrics counts what happened during a run.
type Metrics struct {
	MaxSteps    int `json:"max_steps"`
	CurrentStep int `json:"current_step"`

	ValidResponses    int `json:"valid_responses"`
	EmptyResponses    int `json:"empty_responses"`
	UnparsedResponses int `json:"unparsed_responses"`

	UnknownActions  int `json:"unknown_actions"`
	ValidActions    int `json:"valid_actions"`
	SuccessActions  int `json:"success_actions"`
	ErroredActions  int `json:"errored_actions"`
	TimedOutActions int `json:"timed_out_actions"`
}
