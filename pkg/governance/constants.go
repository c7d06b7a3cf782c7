package governance

import "math/big"

const (
	// VotingPowerByLand is the voting power granted per registered LAND parcel.
	VotingPowerByLand int64 = 2000
	// TokenDecimals is the number of decimals used by MANA and MANA-MiniMe.
	TokenDecimals = 18

	maxAllowanceHex = "fffffffffffffffffffffffffffffffffffffffffffffffa9438a1d29cefffff"

	operationAggregate      = "aggregate"
	operationReadField      = "read_field"
	operationWrapMana       = "wrap_mana"
	operationUnwrapMana     = "unwrap_mana"
	operationRegisterLand   = "register_land"
	operationRegisterEstate = "register_estate"
	operationApprove        = "approve"
	operationCastVote       = "cast_vote"
	operationSubscribe      = "subscribe"
	operationUnsubscribe    = "unsubscribe"
	operationUpdateStatus   = "update_status"
	operationDeleteProposal = "delete_proposal"
	operationConnectOrg     = "connect_organization"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	voteSubmitAttempts = 3
)

var (
	tokenScale   = new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)
	maxAllowance = mustParseHexInt(maxAllowanceHex)
)

// MaxAllowance returns the sentinel allowance granted to the MANA-MiniMe wrapper.
func MaxAllowance() *big.Int {
	return new(big.Int).Set(maxAllowance)
}

// EmptyAllowance returns the zero allowance used to clear a previous approval.
func EmptyAllowance() *big.Int {
	return big.NewInt(0)
}

// TokenScale returns 10^18.
func TokenScale() *big.Int {
	return new(big.Int).Set(tokenScale)
}

func mustParseHexInt(raw string) *big.Int {
	value, ok := new(big.Int).SetString(raw, 16)
	if !ok {
		panic("governance: invalid hex constant " + raw)
	}
	return value
}
