// Package types defines the data model shared across the Action
// Confidence Engine: action descriptors, scores, precedent entries,
// consensus proposals, episodes, and goals.
package types

import "time"

// TrustLevel is the graduated trust assigned to a content/action
// source.
type TrustLevel string

const (
	TrustTrusted   TrustLevel = "trusted"
	TrustVerified  TrustLevel = "verified"
	TrustUntrusted TrustLevel = "untrusted"
	TrustHostile   TrustLevel = "hostile"
)

// MotivationSource records who or what prompted a candidate action.
type MotivationSource string

const (
	MotivationInternal MotivationSource = "internal"
	MotivationUser     MotivationSource = "user"
	MotivationExternal MotivationSource = "external"
)

// Tier is the ACE gating decision for a candidate action.
type Tier string

const (
	TierAct        Tier = "act"
	TierDeliberate Tier = "deliberate"
	TierEscalate   Tier = "escalate"
)

// Stakes determines the consensus threshold a proposal must clear.
type Stakes string

const (
	StakesLow    Stakes = "low"
	StakesMedium Stakes = "medium"
	StakesHigh   Stakes = "high"
)

// Outcome is the recorded result of an executed action, fed back into
// precedent memory.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomePositive  Outcome = "positive"
	OutcomeNegative  Outcome = "negative"
	OutcomeCancelled Outcome = "cancelled"
)

// TrustSource carries provenance and chain-of-custody for the content
// or trigger behind a candidate action.
type TrustSource struct {
	Type            string     `json:"type"`
	Level           TrustLevel `json:"level"`
	Origin          string     `json:"origin"`
	Timestamp       time.Time  `json:"timestamp"`
	Chain           []string   `json:"chain"`
	HostilePatterns []string   `json:"hostilePatterns,omitempty"`
	OriginalLevel   TrustLevel `json:"originalLevel,omitempty"`
	EscalatedAt     time.Time  `json:"escalatedAt,omitempty"`
}

// Dependency is a named precondition an action declares it needs met
// before it may execute.
type Dependency struct {
	Name string `json:"name"`
	Met  bool   `json:"met"`
}

// ActionDescriptor describes one candidate action immutably, once
// constructed, for the scorer and deliberation protocol.
type ActionDescriptor struct {
	Class                  string           `json:"class"`
	Motivation             string           `json:"motivation,omitempty"`
	MotivationSource       MotivationSource `json:"motivationSource"`
	TrustSource            TrustSource      `json:"trustSource"`
	GoalID                 string           `json:"goalId,omitempty"`
	TriggerEvent           string           `json:"triggerEvent,omitempty"`
	Deadline               *time.Time       `json:"deadline,omitempty"`
	ReversibilityOverride  *float64         `json:"reversibilityOverride,omitempty"`
	Dependencies           []Dependency     `json:"dependencies,omitempty"`
	AffectsExternal        bool             `json:"affectsExternal"`
	BackupExists           bool             `json:"backupExists"`
	Stakes                 Stakes           `json:"stakes,omitempty"`
	Extra                  map[string]any   `json:"extra,omitempty"`
}

// Score is the three-axis scorer's output for one action.
type Score struct {
	R            float64  `json:"r"`
	P            float64  `json:"p"`
	B            float64  `json:"b"`
	Composite    float64  `json:"composite"`
	Tier         Tier     `json:"tier"`
	Explanations []string `json:"explanations"`
}

// Instance is one recorded occurrence of an action class, held in a
// PrecedentEntry's rolling window.
type Instance struct {
	Timestamp        time.Time `json:"ts"`
	Detail           string    `json:"detail"`
	Tier             Tier      `json:"tier"`
	OperatorResponse string    `json:"operatorResponse,omitempty"`
	Outcome          Outcome   `json:"outcome"`
	Note             string    `json:"note,omitempty"`
}

// PrecedentEntry is the learned trust record for one action class.
type PrecedentEntry struct {
	Class        string     `json:"class"`
	Score        float64    `json:"score"`
	ScoreHistory []float64  `json:"scoreHistory"`
	Instances    []Instance `json:"instances"`
	Approved     int        `json:"approved"`
	Corrected    int        `json:"corrected"`
	LastPositive *time.Time `json:"lastPositive,omitempty"`
	LastNegative *time.Time `json:"lastNegative,omitempty"`
	DecayAnchor  time.Time  `json:"decayAnchor"`
}

// ConsensusRole names the three logical roles in the consensus
// protocol. A single physical agent may implement all three, but each
// sees a different, narrower slice of the proposal.
type ConsensusRole string

const (
	RoleProposer   ConsensusRole = "proposer"
	RoleVerifier   ConsensusRole = "verifier"
	RoleIntegrator ConsensusRole = "integrator"
)

// VoteDecision is one role's verdict on a proposal.
type VoteDecision string

const (
	DecisionApprove            VoteDecision = "approve"
	DecisionApproveWithConcern VoteDecision = "approve_with_concerns"
	DecisionReject             VoteDecision = "reject"
	DecisionProposeCompromise  VoteDecision = "propose_compromise"
	DecisionEscalateToHuman    VoteDecision = "escalate_to_human"
)

// Vote is one role's recorded decision on a proposal.
type Vote struct {
	Decision  VoteDecision `json:"decision"`
	Rationale string       `json:"rationale"`
	Concerns  []string     `json:"concerns,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// ConsensusThreshold names the agreement bar a proposal's stakes
// require.
type ConsensusThreshold string

const (
	Threshold2of3             ConsensusThreshold = "2of3"
	ThresholdUnanimous        ConsensusThreshold = "unanimous"
	ThresholdUnanimousAndHuman ConsensusThreshold = "unanimous+human"
)

// Consensus records the final agreement outcome for a proposal.
type Consensus struct {
	Reached   bool               `json:"reached"`
	Threshold ConsensusThreshold `json:"threshold"`
	Stakes    Stakes             `json:"stakes"`
	Result    VoteDecision       `json:"result"`
}

// Execution records whether and how a proposal's actions ran.
type Execution struct {
	Started          *time.Time `json:"started,omitempty"`
	Completed        *time.Time `json:"completed,omitempty"`
	Success          bool       `json:"success"`
	OutcomesVerified bool       `json:"outcomesVerified"`
}

// ProposalStatus is a Proposal's lifecycle stage.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
	ProposalExecuted ProposalStatus = "executed"
)

// Proposal is the multi-agent consensus object carried through one
// proposer→verifier→integrator round.
type Proposal struct {
	ID                 string                 `json:"id"`
	TaskID             string                 `json:"taskId"`
	Proposer           string                 `json:"proposer"`
	Status             ProposalStatus         `json:"status"`
	Goal               string                 `json:"goal"`
	Actions            []ActionDescriptor     `json:"actions"`
	ValueJustification map[string]string      `json:"valueJustification"`
	ExpectedOutcomes   []string               `json:"expectedOutcomes"`
	RiskAssessment     []string               `json:"riskAssessment"`
	Votes              map[ConsensusRole]Vote `json:"votes"`
	Consensus          Consensus              `json:"consensus"`
	Execution          Execution              `json:"execution"`
	CreatedAt          time.Time              `json:"createdAt"`
}

// Episode is an append-only collective-memory record of one completed
// task.
type Episode struct {
	ID                string    `json:"id"`
	TaskID            string    `json:"taskId"`
	Timestamp         time.Time `json:"ts"`
	DurationMs        int64     `json:"durationMs"`
	Goal              string    `json:"goal"`
	Outcome           string    `json:"outcome"`
	ProposalsCount    int       `json:"proposalsCount"`
	ConsensusRounds   int       `json:"consensusRounds"`
	Conflicts         int       `json:"conflicts"`
	Learnings         []string  `json:"learnings,omitempty"`
	ValuesServed      []string  `json:"valuesServed,omitempty"`
	WeightAdjustments []string  `json:"weightAdjustments,omitempty"`
	Artifacts         []string  `json:"artifacts,omitempty"`
}

// GoalPriority orders goals for scheduling and diagnostics.
type GoalPriority string

const (
	PriorityCritical GoalPriority = "critical"
	PriorityHigh     GoalPriority = "high"
	PriorityMedium   GoalPriority = "medium"
	PriorityLow      GoalPriority = "low"
)

// GoalStatus is a Goal's lifecycle stage.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalFailed    GoalStatus = "failed"
	GoalDeferred  GoalStatus = "deferred"
	GoalAbandoned GoalStatus = "abandoned"
)

// Goal is a declared objective the Goal/Value Manager tracks and
// scores candidate actions against.
type Goal struct {
	ID              string         `json:"id"`
	Description     string         `json:"description"`
	SuccessCriteria []string       `json:"successCriteria"`
	Priority        GoalPriority   `json:"priority"`
	Status          GoalStatus     `json:"status"`
	Progress        int            `json:"progress"`
	Dependencies    []string       `json:"dependencies,omitempty"`
	AlignmentScore  float64        `json:"alignmentScore"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}
