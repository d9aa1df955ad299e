package model

// GatewayState bundles every exportable piece of off-chain state so a
// gateway can be stopped and restarted without losing the withdrawal
// workflow or warm trust verdicts.
type GatewayState struct {
	Workflow   *WorkflowState    `json:"workflow,omitempty"`
	TrustCache []TrustCacheEntry `json:"trust_cache,omitempty"`
}
