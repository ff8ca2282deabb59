package registry

import "time"

// AgentType classifies what a registered agent commits to do.
type AgentType string

const (
	AgentTypeLoan        AgentType = "LOAN"
	AgentTypeTransaction AgentType = "TRANSACTION"
	AgentTypeEmployment  AgentType = "EMPLOYMENT"
	AgentTypeAlliance    AgentType = "ALLIANCE"
)

// AgentTypes lists every valid agent type.
var AgentTypes = []AgentType{AgentTypeLoan, AgentTypeTransaction, AgentTypeEmployment, AgentTypeAlliance}

// ValidAgentType reports whether value names a known agent type.
func ValidAgentType(value string) bool {
	for _, t := range AgentTypes {
		if string(t) == value {
			return true
		}
	}
	return false
}

// Oath status values for a registered commitment.
const (
	OathStatusMinted    = "minted"
	OathStatusCompleted = "completed"
	OathStatusPending   = "pending"
	OathStatusSettled   = "settled"
)

// Fulfillment status values for the ask and promise legs of an oath.
const (
	FulfillmentPending = "pending"
	FulfillmentSettled = "settled"
)

// VerifiedAddress is the single wallet whose agents display as verified.
// Derived by string equality only; this is a registry display status, not a
// cryptographic attestation.
const VerifiedAddress = "DtMf6R4kyRsAKryyXgyEhjMNTn6wpjNKsBMcqTvqxECF"

// DefaultTEEAttestation is the placeholder attestation shown for new agents.
const DefaultTEEAttestation = "#0400...0000"

// Agent is a registered AI agent commitment record (an "aozOath").
type Agent struct {
	ID                     int       `json:"id"`
	AgentName              string    `json:"agentName"`
	AgentType              AgentType `json:"agentType"`
	Description            string    `json:"description"`
	SettlementAddress      string    `json:"settlementAddress"`
	OathDescription        string    `json:"oathDescription"`
	FulfillmentDescription string    `json:"fulfillmentDescription"`
	OathStatus             string    `json:"oathStatus"`
	AskStatus              string    `json:"askStatus"`
	PromiseStatus          string    `json:"promiseStatus"`
	Verified               string    `json:"verified"`
	TEEAttestation         string    `json:"teeAttestation"`
	TEEURL                 string    `json:"teeUrl,omitempty"`
	WalletAddress          string    `json:"walletAddress"`
	ExplorerURL            string    `json:"explorerUrl,omitempty"`
	Holder                 string    `json:"holder"`
	HolderURL              string    `json:"holderUrl,omitempty"`
	OpenSeaURL             string    `json:"openSeaUrl,omitempty"`
	CreatedAt              time.Time `json:"createdAt"`
}

// NewAgent carries the caller-supplied fields for agent creation.
type NewAgent struct {
	AgentName              string
	AgentType              AgentType
	Description            string
	SettlementAddress      string
	OathDescription        string
	FulfillmentDescription string
	TEEURL                 string
}

// TaskType classifies AI task executions.
type TaskType string

const (
	TaskTypeTextGeneration TaskType = "text_generation"
	TaskTypeAnalysis       TaskType = "analysis"
	TaskTypeSummarization  TaskType = "summarization"
	TaskTypeQuestionAnswer TaskType = "question_answer"
)

// TaskTypes lists every valid task type.
var TaskTypes = []TaskType{TaskTypeTextGeneration, TaskTypeAnalysis, TaskTypeSummarization, TaskTypeQuestionAnswer}

// ValidTaskType reports whether value names a known task type.
func ValidTaskType(value string) bool {
	for _, t := range TaskTypes {
		if string(t) == value {
			return true
		}
	}
	return false
}

// TaskStatus is the lifecycle state of an AI task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task is one AI execution request owned by an agent.
type Task struct {
	ID              int        `json:"id"`
	AgentID         int        `json:"agentId"`
	TaskType        TaskType   `json:"taskType"`
	TaskDescription string     `json:"taskDescription"`
	Status          TaskStatus `json:"status"`
	AIResult        string     `json:"aiResult,omitempty"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// NewTask carries the caller-supplied fields for task creation.
type NewTask struct {
	AgentID         int
	TaskType        TaskType
	TaskDescription string
}

// TaskUpdate is a partial merge applied to a task; nil fields are left as-is.
type TaskUpdate struct {
	Status       TaskStatus
	AIResult     *string
	ErrorMessage *string
}

// User is a registered account. Kept for wallet-session bookkeeping; the
// public API surface does not expose user CRUD.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
}
