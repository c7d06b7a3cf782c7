package governance

import "context"

// OrganizationEndpoint locates the Aragon organization of one network.
type OrganizationEndpoint struct {
	Location  string
	Connector string
}

// Organization is the opaque handle returned once the DAO organization is reachable.
type Organization struct {
	Location  string  `json:"location"`
	Connector string  `json:"connector"`
	Network   Network `json:"network"`
}

// OrganizationConnector connects to the Aragon organization of a network.
type OrganizationConnector interface {
	Connect(ctx context.Context, location string, connector string, network Network) (Organization, error)
}
