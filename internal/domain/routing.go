package domain

// RoutingAction is the final disposition the routing policy chose for a turn.
type RoutingAction string

const (
	ActionDirectReply     RoutingAction = "direct_reply"     // answered verbatim from the knowledge base
	ActionValidatedReply  RoutingAction = "validated_reply"  // knowledge candidate confirmed by the LLM
	ActionDispatchHandler RoutingAction = "dispatch_handler" // routed to a type-specific handler
	ActionSuppress        RoutingAction = "suppress"         // no reply for this delivery
)

// SuppressReason explains a suppress decision.
type SuppressReason string

const (
	SuppressDuplicate     SuppressReason = "duplicate"
	SuppressAgentAuthored SuppressReason = "agent_authored"
	SuppressHumanHandled  SuppressReason = "human_handled"
	SuppressAwaitingBatch SuppressReason = "awaiting_batch_window"
	SuppressEmptyMessage  SuppressReason = "empty_message"
)

// RoutingDecision is the outcome of routing one delivery or turn.
type RoutingDecision struct {
	Action   RoutingAction
	Reason   SuppressReason // set when Action == ActionSuppress
	Reply    string         // outbound text when a reply was produced
	Language string
	Type     MessageType // classification, when one was made
}

// Suppressed reports whether this decision produced no outbound reply.
func (d RoutingDecision) Suppressed() bool { return d.Action == ActionSuppress }
