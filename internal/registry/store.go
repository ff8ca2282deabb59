package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a task status update would move
// backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid task status transition")

// Store is the registry persistence contract. The process ships with the
// in-memory implementation only; ids are unique within the process lifetime.
type Store interface {
	ListAgents(ctx context.Context) ([]*Agent, error)
	CreateAgent(ctx context.Context, input NewAgent, walletAddress string) (*Agent, error)
	GetAgent(ctx context.Context, id int) (*Agent, error)

	ListTasksByAgent(ctx context.Context, agentID int) ([]*Task, error)
	CreateTask(ctx context.Context, input NewTask) (*Task, error)
	GetTask(ctx context.Context, id int) (*Task, error)
	UpdateTaskStatus(ctx context.Context, id int, update TaskUpdate) (*Task, error)

	CreateUser(ctx context.Context, username, password string) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// MemStore implements Store with mutex-guarded process-local maps.
type MemStore struct {
	mu          sync.RWMutex
	users       map[string]*User
	agents      map[int]*Agent
	tasks       map[int]*Task
	nextAgentID int
	nextTaskID  int
	now         func() time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		users:       make(map[string]*User),
		agents:      make(map[int]*Agent),
		tasks:       make(map[int]*Task),
		nextAgentID: 1,
		nextTaskID:  1,
		now:         time.Now,
	}
}

// ListAgents returns all agents, newest first.
func (s *MemStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make([]*Agent, 0, len(s.agents))
	for _, agent := range s.agents {
		copied := *agent
		agents = append(agents, &copied)
	}
	sort.Slice(agents, func(i, j int) bool {
		return agents[i].ID > agents[j].ID
	})
	return agents, nil
}

// CreateAgent assigns the next id, derives display fields, and stores the
// agent. Verification is a plain string comparison against the one verified
// wallet address.
func (s *MemStore) CreateAgent(ctx context.Context, input NewAgent, walletAddress string) (*Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextAgentID
	s.nextAgentID++

	verified := "false"
	if walletAddress == VerifiedAddress {
		verified = "true"
	}

	agent := &Agent{
		ID:                     id,
		AgentName:              input.AgentName,
		AgentType:              input.AgentType,
		Description:            input.Description,
		SettlementAddress:      input.SettlementAddress,
		OathDescription:        input.OathDescription,
		FulfillmentDescription: input.FulfillmentDescription,
		OathStatus:             OathStatusMinted,
		AskStatus:              FulfillmentPending,
		PromiseStatus:          FulfillmentPending,
		Verified:               verified,
		TEEAttestation:         DefaultTEEAttestation,
		TEEURL:                 input.TEEURL,
		WalletAddress:          walletAddress,
		ExplorerURL:            explorerURL(walletAddress),
		Holder:                 "Minter",
		HolderURL:              explorerURL(input.SettlementAddress),
		OpenSeaURL:             marketplaceURL(walletAddress),
		CreatedAt:              s.now(),
	}

	s.agents[id] = agent
	copied := *agent
	return &copied, nil
}

// GetAgent returns the agent with the given id.
func (s *MemStore) GetAgent(ctx context.Context, id int) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %d: %w", id, ErrNotFound)
	}
	copied := *agent
	return &copied, nil
}

// ListTasksByAgent returns the agent's tasks, newest first.
func (s *MemStore) ListTasksByAgent(ctx context.Context, agentID int) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*Task, 0)
	for _, task := range s.tasks {
		if task.AgentID == agentID {
			copied := *task
			tasks = append(tasks, &copied)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].ID > tasks[j].ID
	})
	return tasks, nil
}

// CreateTask assigns the next id and stores the task in pending state.
func (s *MemStore) CreateTask(ctx context.Context, input NewTask) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextTaskID
	s.nextTaskID++

	task := &Task{
		ID:              id,
		AgentID:         input.AgentID,
		TaskType:        input.TaskType,
		TaskDescription: input.TaskDescription,
		Status:          TaskStatusPending,
		CreatedAt:       s.now(),
	}

	s.tasks[id] = task
	copied := *task
	return &copied, nil
}

// GetTask returns the task with the given id.
func (s *MemStore) GetTask(ctx context.Context, id int) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	copied := *task
	return &copied, nil
}

// UpdateTaskStatus applies a partial merge: only supplied fields overwrite,
// and a terminal status stamps the completion time. Transitions are limited
// to pending→processing→{completed,failed}.
func (s *MemStore) UpdateTaskStatus(ctx context.Context, id int, update TaskUpdate) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}

	if !validTransition(task.Status, update.Status) {
		return nil, fmt.Errorf("task %d: %s → %s: %w", id, task.Status, update.Status, ErrInvalidTransition)
	}

	task.Status = update.Status
	if update.AIResult != nil {
		task.AIResult = *update.AIResult
	}
	if update.ErrorMessage != nil {
		task.ErrorMessage = *update.ErrorMessage
	}
	if update.Status.Terminal() && task.CompletedAt == nil {
		completed := s.now()
		task.CompletedAt = &completed
	}

	copied := *task
	return &copied, nil
}

func validTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusPending:
		return to == TaskStatusProcessing
	case TaskStatusProcessing:
		return to == TaskStatusCompleted || to == TaskStatusFailed
	default:
		return false
	}
}

// CreateUser stores a new account keyed by a generated id.
func (s *MemStore) CreateUser(ctx context.Context, username, password string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := &User{
		ID:       uuid.New().String(),
		Username: username,
		Password: password,
	}
	s.users[user.ID] = user
	copied := *user
	return &copied, nil
}

// GetUser returns the user with the given id.
func (s *MemStore) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	copied := *user
	return &copied, nil
}

// GetUserByUsername scans for the user with the given username.
func (s *MemStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Username == username {
			copied := *user
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", username, ErrNotFound)
}

func explorerURL(address string) string {
	return "https://solscan.io/account/" + address
}

func marketplaceURL(address string) string {
	return "https://magiceden.io/item-details/" + address
}
