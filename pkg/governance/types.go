package governance

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Network identifies one of the two supported Ethereum networks.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkRopsten Network = "ropsten"
)

// ParseNetwork validates a network name.
func ParseNetwork(raw string) (Network, error) {
	switch Network(strings.ToLower(strings.TrimSpace(raw))) {
	case NetworkMainnet:
		return NetworkMainnet, nil
	case NetworkRopsten:
		return NetworkRopsten, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownNetwork, raw)
	}
}

// NetworkForChainID maps an Ethereum chain id onto a supported network.
func NetworkForChainID(chainID *big.Int) (Network, error) {
	if chainID == nil {
		return "", fmt.Errorf("%w: missing chain id", ErrUnknownNetwork)
	}
	switch chainID.Int64() {
	case 1:
		return NetworkMainnet, nil
	case 3:
		return NetworkRopsten, nil
	default:
		return "", fmt.Errorf("%w: chain id %s", ErrUnknownNetwork, chainID.String())
	}
}

// ChainID returns the Ethereum chain id of the network.
func (network Network) ChainID() *big.Int {
	switch network {
	case NetworkMainnet:
		return big.NewInt(1)
	case NetworkRopsten:
		return big.NewInt(3)
	default:
		return nil
	}
}

// String returns the network name.
func (network Network) String() string {
	return string(network)
}

// Account is a normalized (lower-case, 0x-prefixed) wallet address.
type Account struct {
	value string
}

// NewAccount validates and normalizes a hex address.
func NewAccount(raw string) (Account, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return Account{}, fmt.Errorf("%w: %q", ErrInvalidAccount, raw)
	}
	return Account{value: strings.ToLower(common.HexToAddress(trimmed).Hex())}, nil
}

// AccountFromAddress converts a go-ethereum address.
func AccountFromAddress(address common.Address) Account {
	return Account{value: strings.ToLower(address.Hex())}
}

// String returns the normalized address.
func (account Account) String() string {
	return account.value
}

// Address returns the go-ethereum representation.
func (account Account) Address() common.Address {
	return common.HexToAddress(account.value)
}

// IsZero reports whether the account is unset.
func (account Account) IsZero() bool {
	return account.value == ""
}

// Matches compares the account against a raw address string case-insensitively.
func (account Account) Matches(raw string) bool {
	return account.value != "" && strings.EqualFold(account.value, strings.TrimSpace(raw))
}

// Wallet is the derived wallet record rebuilt on every aggregation.
type Wallet struct {
	Address           Account `json:"address"`
	Network           Network `json:"network"`
	Mana              float64 `json:"mana"`
	ManaMiniMe        float64 `json:"manaMiniMe"`
	Land              int64   `json:"land"`
	LandCommit        bool    `json:"landCommit"`
	Estate            int64   `json:"estate"`
	EstateSize        int64   `json:"estateSize"`
	EstateCommit      bool    `json:"estateCommit"`
	ManaVotingPower   int64   `json:"manaVotingPower"`
	LandVotingPower   int64   `json:"landVotingPower"`
	EstateVotingPower int64   `json:"estateVotingPower"`
	VotingPower       int64   `json:"votingPower"`
}

// MarshalText lets Account serialize as its address string.
func (account Account) MarshalText() ([]byte, error) {
	return []byte(account.value), nil
}

// UnmarshalText parses an address string.
func (account *Account) UnmarshalText(raw []byte) error {
	if len(raw) == 0 {
		*account = Account{}
		return nil
	}
	parsed, err := NewAccount(string(raw))
	if err != nil {
		return err
	}
	*account = parsed
	return nil
}

// Allowance classifies an ERC-20 allowance value.
type Allowance int

const (
	AllowanceEmpty Allowance = iota
	AllowanceMax
	AllowanceOther
)

// ClassifyAllowance maps a raw allowance onto {EMPTY, MAX, OTHER}.
func ClassifyAllowance(value *big.Int) Allowance {
	switch {
	case value == nil || value.Sign() == 0:
		return AllowanceEmpty
	case value.Cmp(maxAllowance) == 0:
		return AllowanceMax
	default:
		return AllowanceOther
	}
}

func (allowance Allowance) String() string {
	switch allowance {
	case AllowanceEmpty:
		return "empty"
	case AllowanceMax:
		return "max"
	default:
		return "other"
	}
}

// ProposalStatus enumerates the proposal lifecycle.
type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusActive   ProposalStatus = "active"
	ProposalStatusFinished ProposalStatus = "finished"
	ProposalStatusPassed   ProposalStatus = "passed"
	ProposalStatusRejected ProposalStatus = "rejected"
	ProposalStatusEnacted  ProposalStatus = "enacted"
	ProposalStatusDeleted  ProposalStatus = "deleted"
)

// ParseProposalStatus validates a status string.
func ParseProposalStatus(raw string) (ProposalStatus, error) {
	status := ProposalStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case ProposalStatusPending, ProposalStatusActive, ProposalStatusFinished, ProposalStatusPassed,
		ProposalStatusRejected, ProposalStatusEnacted, ProposalStatusDeleted:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidProposalStatus, raw)
	}
}

// ProposalType enumerates proposal categories.
type ProposalType string

const (
	ProposalTypePOI             ProposalType = "poi"
	ProposalTypeCatalyst        ProposalType = "catalyst"
	ProposalTypeBanName         ProposalType = "ban_name"
	ProposalTypeGrant           ProposalType = "grant"
	ProposalTypeLinkedWearables ProposalType = "linked_wearables"
	ProposalTypePoll            ProposalType = "poll"
	ProposalTypeDraft           ProposalType = "draft"
	ProposalTypeGovernance      ProposalType = "governance"
)

// Proposal is the governance API view of a proposal.
type Proposal struct {
	ID             string         `json:"id"`
	User           string         `json:"user"`
	Type           ProposalType   `json:"type"`
	Status         ProposalStatus `json:"status"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	SnapshotSpace  string         `json:"snapshot_space"`
	SnapshotID     string         `json:"snapshot_id"`
	VestingAddress string         `json:"vesting_address,omitempty"`
	RequiredToPass int64          `json:"required_to_pass"`
	Choices        []string       `json:"choices,omitempty"`
	FinishAt       time.Time      `json:"finish_at"`
}

// Subscription marks a user following a proposal.
type Subscription struct {
	ProposalID string    `json:"proposal_id"`
	User       string    `json:"user"`
	CreatedAt  time.Time `json:"created_at"`
}

// Vote is a single recorded snapshot vote.
type Vote struct {
	Choice      int   `json:"choice"`
	VotingPower int64 `json:"vp"`
}

// Votes maps voter address to vote.
type Votes map[string]Vote

// Has reports whether the account already voted.
func (votes Votes) Has(account Account) bool {
	if votes == nil || account.IsZero() {
		return false
	}
	if _, ok := votes[account.String()]; ok {
		return true
	}
	for voter := range votes {
		if account.Matches(voter) {
			return true
		}
	}
	return false
}

// ProposalUpdateStatus enumerates grant update states.
type ProposalUpdateStatus string

const (
	ProposalUpdateStatusPending ProposalUpdateStatus = "pending"
	ProposalUpdateStatusDone    ProposalUpdateStatus = "done"
	ProposalUpdateStatusLate    ProposalUpdateStatus = "late"
)

// ProposalUpdate is a grant progress update.
type ProposalUpdate struct {
	ID         string               `json:"id"`
	ProposalID string               `json:"proposal_id"`
	Status     ProposalUpdateStatus `json:"status"`
	DueDate    time.Time            `json:"due_date"`
}

// ProposalUpdates groups the updates of one proposal.
type ProposalUpdates struct {
	Public  []ProposalUpdate `json:"publicUpdates"`
	Pending []ProposalUpdate `json:"pendingUpdates"`
	Next    *ProposalUpdate  `json:"nextUpdate,omitempty"`
	Current *ProposalUpdate  `json:"currentUpdate,omitempty"`
}
