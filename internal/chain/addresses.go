package chain

import (
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
	"github.com/ethereum/go-ethereum/common"
)

// ContractAddresses is the configuration shape of one network's contracts.
type ContractAddresses struct {
	Mana         string `mapstructure:"mana" yaml:"mana"`
	ManaMiniMe   string `mapstructure:"mana_minime" yaml:"mana_minime"`
	Land         string `mapstructure:"land" yaml:"land"`
	Estate       string `mapstructure:"estate" yaml:"estate"`
	Organization string `mapstructure:"organization" yaml:"organization"`
}

// NetworkAddresses holds the parsed contract addresses of one network. The MANA-MiniMe
// contract is also the spender approved before a wrap.
type NetworkAddresses struct {
	Mana         common.Address
	ManaMiniMe   common.Address
	Land         common.Address
	Estate       common.Address
	Organization common.Address
}

// AddressBook indexes contract addresses by network.
type AddressBook struct {
	networks map[governance.Network]NetworkAddresses
}

// NewAddressBook validates the configured addresses. Unknown network names are rejected.
func NewAddressBook(configured map[string]ContractAddresses) (AddressBook, error) {
	networks := make(map[governance.Network]NetworkAddresses, len(configured))
	for rawNetwork, addresses := range configured {
		network, err := governance.ParseNetwork(rawNetwork)
		if err != nil {
			return AddressBook{}, err
		}
		parsed := NetworkAddresses{}
		fields := []struct {
			name   string
			raw    string
			target *common.Address
		}{
			{name: "mana", raw: addresses.Mana, target: &parsed.Mana},
			{name: "mana_minime", raw: addresses.ManaMiniMe, target: &parsed.ManaMiniMe},
			{name: "land", raw: addresses.Land, target: &parsed.Land},
			{name: "estate", raw: addresses.Estate, target: &parsed.Estate},
		}
		for _, field := range fields {
			address, err := parseContractAddress(network, field.name, field.raw)
			if err != nil {
				return AddressBook{}, err
			}
			*field.target = address
		}
		if strings.TrimSpace(addresses.Organization) != "" {
			organization, err := parseContractAddress(network, "organization", addresses.Organization)
			if err != nil {
				return AddressBook{}, err
			}
			parsed.Organization = organization
		}
		networks[network] = parsed
	}
	return AddressBook{networks: networks}, nil
}

// Lookup returns the addresses of network.
func (book AddressBook) Lookup(network governance.Network) (NetworkAddresses, error) {
	addresses, ok := book.networks[network]
	if !ok {
		return NetworkAddresses{}, fmt.Errorf("%w: no contracts configured for %q", governance.ErrUnknownNetwork, network)
	}
	return addresses, nil
}

// Networks lists the configured networks.
func (book AddressBook) Networks() []governance.Network {
	networks := make([]governance.Network, 0, len(book.networks))
	for network := range book.networks {
		networks = append(networks, network)
	}
	return networks
}

func parseContractAddress(network governance.Network, name string, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%w: %s contract address %q on %s", governance.ErrInvalidAccount, name, raw, network)
	}
	address := common.HexToAddress(trimmed)
	if address == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s contract address is zero on %s", governance.ErrInvalidAccount, name, network)
	}
	return address, nil
}
