package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/lucci-xyz/bounty-sub003/internal/model"
)

// 托管合约 ABI（只包含服务端用到的方法）
const escrowABI = `[
	{
		"type": "function",
		"name": "getBounty",
		"stateMutability": "view",
		"inputs": [
			{"name": "bountyId", "type": "bytes32"}
		],
		"outputs": [
			{"name": "sponsor", "type": "address"},
			{"name": "token", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "deadline", "type": "uint64"},
			{"name": "status", "type": "uint8"}
		]
	},
	{
		"type": "function",
		"name": "refund",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "bountyId", "type": "bytes32"}
		],
		"outputs": []
	},
	{
		"anonymous": false,
		"type": "event",
		"name": "BountyRefunded",
		"inputs": [
			{"indexed": true, "name": "bountyId", "type": "bytes32"},
			{"indexed": true, "name": "sponsor", "type": "address"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		]
	}
]`

// 合约中的悬赏状态码
const (
	StatusCodeNone     uint8 = 0
	StatusCodeOpen     uint8 = 1
	StatusCodeResolved uint8 = 2
	StatusCodeRefunded uint8 = 3
	StatusCodeCanceled uint8 = 4
)

var parsedEscrowABI abi.ABI

func init() {
	var err error
	parsedEscrowABI, err = abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		panic(fmt.Sprintf("failed to parse escrow ABI: %v", err))
	}
}

// EscrowABI 返回解析后的托管合约 ABI
func EscrowABI() abi.ABI {
	return parsedEscrowABI
}

// OnChainBounty 合约中读取到的悬赏记录
type OnChainBounty struct {
	BountyId   string         `json:"bountyId"`
	Network    string         `json:"network"`
	Sponsor    common.Address `json:"sponsor"`
	Token      common.Address `json:"token"`
	Amount     *big.Int       `json:"amount"`
	Deadline   uint64         `json:"deadline"`
	StatusCode uint8          `json:"statusCode"`
}

// Exists 合约中是否存在该悬赏
func (b *OnChainBounty) Exists() bool {
	return b.StatusCode != StatusCodeNone
}

// Status 将合约状态码映射为业务状态，未知或不存在返回空串
func (b *OnChainBounty) Status() model.BountyStatus {
	switch b.StatusCode {
	case StatusCodeOpen:
		return model.BountyStatusOpen
	case StatusCodeResolved:
		return model.BountyStatusResolved
	case StatusCodeRefunded:
		return model.BountyStatusRefunded
	case StatusCodeCanceled:
		return model.BountyStatusCanceled
	default:
		return ""
	}
}

// StatusCodeFor 业务状态对应的合约状态码
func StatusCodeFor(status model.BountyStatus) uint8 {
	switch status {
	case model.BountyStatusOpen:
		return StatusCodeOpen
	case model.BountyStatusResolved:
		return StatusCodeResolved
	case model.BountyStatusRefunded:
		return StatusCodeRefunded
	case model.BountyStatusCanceled:
		return StatusCodeCanceled
	default:
		return StatusCodeNone
	}
}

// ParseBountyId 解析链上悬赏ID（0x 开头的 32 字节十六进制）
func ParseBountyId(bountyId string) (common.Hash, error) {
	raw, err := hexutil.Decode(bountyId)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid bounty id %q: %w", bountyId, err)
	}
	if len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid bounty id %q: want %d bytes, got %d", bountyId, common.HashLength, len(raw))
	}
	return common.BytesToHash(raw), nil
}

// IsTxHash 是否为合法的交易哈希
func IsTxHash(s string) bool {
	raw, err := hexutil.Decode(s)
	return err == nil && len(raw) == common.HashLength
}

// unpackBounty 解析 getBounty 的返回值
func unpackBounty(out []interface{}) (*OnChainBounty, error) {
	if len(out) != 5 {
		return nil, fmt.Errorf("getBounty returned %d values, want 5", len(out))
	}

	sponsor, ok := out[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected sponsor type %T", out[0])
	}
	token, ok := out[1].(common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected token type %T", out[1])
	}
	amount, ok := out[2].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected amount type %T", out[2])
	}
	deadline, ok := out[3].(uint64)
	if !ok {
		return nil, fmt.Errorf("unexpected deadline type %T", out[3])
	}
	status, ok := out[4].(uint8)
	if !ok {
		return nil, fmt.Errorf("unexpected status type %T", out[4])
	}

	return &OnChainBounty{
		Sponsor:    sponsor,
		Token:      token,
		Amount:     amount,
		Deadline:   deadline,
		StatusCode: status,
	}, nil
}
