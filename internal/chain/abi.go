package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	methodBalanceOf         = "balanceOf"
	methodAllowance         = "allowance"
	methodApprove           = "approve"
	methodDeposit           = "deposit"
	methodWithdraw          = "withdraw"
	methodRegisteredBalance = "registeredBalance"
	methodRegisterBalance   = "registerBalance"
	methodGetLANDsSize      = "getLANDsSize"
)

const manaABIJSON = `[
 {"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

const manaMiniMeABIJSON = `[
 {"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"constant":false,"inputs":[{"name":"_amount","type":"uint256"}],"name":"deposit","outputs":[],"stateMutability":"nonpayable","type":"function"},
 {"constant":false,"inputs":[{"name":"_amount","type":"uint256"}],"name":"withdraw","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const landABIJSON = `[
 {"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"constant":true,"inputs":[{"name":"","type":"address"}],"name":"registeredBalance","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
 {"constant":false,"inputs":[],"name":"registerBalance","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const estateABIJSON = `[
 {"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"constant":true,"inputs":[{"name":"","type":"address"}],"name":"registeredBalance","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
 {"constant":false,"inputs":[],"name":"registerBalance","outputs":[],"stateMutability":"nonpayable","type":"function"},
 {"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"getLANDsSize","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var (
	manaABI       = mustParseABI(manaABIJSON)
	manaMiniMeABI = mustParseABI(manaMiniMeABIJSON)
	landABI       = mustParseABI(landABIJSON)
	estateABI     = mustParseABI(estateABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("chain: invalid contract abi: " + err.Error())
	}
	return parsed
}
