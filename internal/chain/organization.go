package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
	"github.com/ethereum/go-ethereum/common"
)

// OrganizationConnector reaches the Aragon organization contract of a network.
type OrganizationConnector struct {
	connections *Connections
}

// NewOrganizationConnector wires an OrganizationConnector.
func NewOrganizationConnector(connections *Connections) *OrganizationConnector {
	return &OrganizationConnector{connections: connections}
}

// Connect checks that the organization location holds contract code on network.
func (connector *OrganizationConnector) Connect(ctx context.Context, location string, connectorName string, network governance.Network) (governance.Organization, error) {
	trimmed := strings.TrimSpace(location)
	if !common.IsHexAddress(trimmed) {
		return governance.Organization{}, fmt.Errorf("%w: location %q is not an address", governance.ErrOrganizationConnection, location)
	}
	if strings.TrimSpace(connectorName) == "" {
		return governance.Organization{}, fmt.Errorf("%w: connector is required", governance.ErrOrganizationConnection)
	}
	backend, err := connector.connections.Backend(ctx, network)
	if err != nil {
		return governance.Organization{}, fmt.Errorf("%w: %v", governance.ErrOrganizationConnection, err)
	}
	code, err := backend.CodeAt(ctx, common.HexToAddress(trimmed), nil)
	if err != nil {
		return governance.Organization{}, fmt.Errorf("%w: %v", governance.ErrOrganizationConnection, classifyError("code_at", err))
	}
	if len(code) == 0 {
		return governance.Organization{}, fmt.Errorf("%w: no contract at %s", governance.ErrOrganizationConnection, trimmed)
	}
	return governance.Organization{Location: trimmed, Connector: connectorName, Network: network}, nil
}
