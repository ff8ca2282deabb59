package http

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/AOZdotAG/aoz-explorer/internal/registry"
)

const (
	maxAgentNameLength   = 100
	minDescriptionLength = 10
	maxDescriptionLength = 500
	minTaskDescLength    = 10
	maxTaskDescLength    = 1000
)

var solanaAddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

func validateCreateAgent(req createAgentRequest) error {
	if strings.TrimSpace(req.AgentName) == "" {
		return errors.New("Agent name is required")
	}
	if len(req.AgentName) > maxAgentNameLength {
		return fmt.Errorf("Agent name must be less than %d characters", maxAgentNameLength)
	}
	if !registry.ValidAgentType(req.AgentType) {
		return errors.New("Please select a valid agent type")
	}
	if err := validateFreeText("Description", req.Description); err != nil {
		return err
	}
	if !solanaAddressPattern.MatchString(req.SettlementAddress) {
		return errors.New("Invalid Solana address")
	}
	if err := validateFreeText("Oath description", req.OathDescription); err != nil {
		return err
	}
	if err := validateFreeText("Fulfillment description", req.FulfillmentDescription); err != nil {
		return err
	}
	return nil
}

func validateFreeText(field, value string) error {
	if len(value) < minDescriptionLength {
		return fmt.Errorf("%s must be at least %d characters", field, minDescriptionLength)
	}
	if len(value) > maxDescriptionLength {
		return fmt.Errorf("%s must be less than %d characters", field, maxDescriptionLength)
	}
	return nil
}

func validateCreateTask(req createTaskRequest) error {
	if req.AgentID <= 0 {
		return errors.New("Agent id must be a positive integer")
	}
	if !registry.ValidTaskType(req.TaskType) {
		return errors.New("Please select a valid task type")
	}
	if len(req.TaskDescription) < minTaskDescLength {
		return fmt.Errorf("Task description must be at least %d characters", minTaskDescLength)
	}
	if len(req.TaskDescription) > maxTaskDescLength {
		return fmt.Errorf("Task description must be less than %d characters", maxTaskDescLength)
	}
	return nil
}
