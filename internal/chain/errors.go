package chain

import (
	"context"
	"errors"
	"strings"

	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
)

var rejectionMarkers = []string{"user denied", "user rejected", "rejected by user", "request rejected"}

// classifyError maps a go-ethereum or transport failure onto a ContractError kind.
func classifyError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var contractError *governance.ContractError
	if errors.As(err, &contractError) {
		return err
	}
	message := err.Error()
	lowered := strings.ToLower(message)
	kind := governance.ContractErrorNetwork
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = governance.ContractErrorTimeout
	case containsAny(lowered, rejectionMarkers):
		kind = governance.ContractErrorRejectedByUser
	case strings.Contains(lowered, "revert"):
		kind = governance.ContractErrorReverted
	}
	return &governance.ContractError{Kind: kind, Message: operation + ": " + message, Err: err}
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
