package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/lucci-xyz/bounty-sub003/internal/config"
	"github.com/lucci-xyz/bounty-sub003/internal/logger"
)

var (
	// ErrUnknownNetwork 未配置的网络别名
	ErrUnknownNetwork = errors.New("unknown network")
	// ErrNoSigner 网络未配置代管签名私钥
	ErrNoSigner = errors.New("network has no custodial signer")
)

// Network 单个网络的客户端与托管合约
type Network struct {
	name       string
	chainId    *big.Int
	client     *ethclient.Client
	escrow     *bind.BoundContract
	escrowAddr common.Address
	signer     *ecdsa.PrivateKey
}

// TxResult 已上链交易
type TxResult struct {
	TxHash      string
	BlockNumber uint64
}

// Manager 多网络管理器，按网络别名路由读写
type Manager struct {
	mu            sync.RWMutex
	networks      map[string]*Network
	readTimeout   time.Duration
	submitTimeout time.Duration
	confirmations uint64
}

// NewManager 创建多网络管理器
func NewManager(cfg config.ChainConfig) (*Manager, error) {
	manager := &Manager{
		networks:      make(map[string]*Network),
		readTimeout:   time.Duration(cfg.RPCTimeout) * time.Second,
		submitTimeout: time.Duration(cfg.SubmitTimeout) * time.Second,
		confirmations: uint64(cfg.Confirmations),
	}

	for name, netCfg := range cfg.Networks {
		network, err := newNetwork(name, netCfg)
		if err != nil {
			manager.Close()
			return nil, fmt.Errorf("failed to initialize network %s: %w", name, err)
		}
		manager.networks[name] = network
		logger.Info("Initialized network %s (chain id: %d, escrow: %s)", name, netCfg.ChainID, netCfg.EscrowAddress)
	}

	return manager, nil
}

// newNetwork 创建网络客户端，RPC 不可用时不阻塞启动
func newNetwork(name string, cfg config.NetworkConfig) (*Network, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("no RPC URL configured")
	}
	if !common.IsHexAddress(cfg.EscrowAddress) {
		return nil, fmt.Errorf("invalid escrow address %q", cfg.EscrowAddress)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", name, err)
	}

	escrowAddr := common.HexToAddress(cfg.EscrowAddress)
	network := &Network{
		name:       name,
		chainId:    big.NewInt(cfg.ChainID),
		client:     client,
		escrow:     bind.NewBoundContract(escrowAddr, parsedEscrowABI, client, client, client),
		escrowAddr: escrowAddr,
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		network.signer = key
	}

	return network, nil
}

// network 获取网络
func (m *Manager) network(name string) (*Network, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	network, ok := m.networks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
	return network, nil
}

// HasNetwork 是否配置了该网络
func (m *Manager) HasNetwork(name string) bool {
	_, err := m.network(name)
	return err == nil
}

// Networks 已配置的网络别名
func (m *Manager) Networks() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.networks))
	for name := range m.networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadBounty 只读调用托管合约获取悬赏记录
func (m *Manager) ReadBounty(ctx context.Context, networkName, bountyId string) (*OnChainBounty, error) {
	network, err := m.network(networkName)
	if err != nil {
		return nil, err
	}
	id, err := ParseBountyId(bountyId)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.readTimeout)
	defer cancel()

	var out []interface{}
	if err := network.escrow.Call(&bind.CallOpts{Context: ctx}, &out, "getBounty", id); err != nil {
		return nil, fmt.Errorf("getBounty(%s) on %s: %w", bountyId, networkName, err)
	}

	bounty, err := unpackBounty(out)
	if err != nil {
		return nil, err
	}
	bounty.BountyId = bountyId
	bounty.Network = networkName
	return bounty, nil
}

// SubmitRefund 使用代管私钥签名并提交退款交易，等待上链。
// 交易已广播但等待回执失败时，返回的 TxResult 仍带有交易哈希。
func (m *Manager) SubmitRefund(ctx context.Context, networkName, bountyId string) (*TxResult, error) {
	network, err := m.network(networkName)
	if err != nil {
		return nil, err
	}
	if network.signer == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSigner, networkName)
	}
	id, err := ParseBountyId(bountyId)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.submitTimeout)
	defer cancel()

	auth, err := bind.NewKeyedTransactorWithChainID(network.signer, network.chainId)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx

	tx, err := network.escrow.Transact(auth, "refund", id)
	if err != nil {
		return nil, fmt.Errorf("refund(%s) on %s: %w", bountyId, networkName, err)
	}

	result := &TxResult{TxHash: tx.Hash().Hex()}
	logger.Info("Refund transaction %s sent for bounty %s on %s", result.TxHash, bountyId, networkName)

	receipt, err := bind.WaitMined(ctx, network.client, tx)
	if err != nil {
		return result, fmt.Errorf("waiting for refund tx %s: %w", result.TxHash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return result, fmt.Errorf("refund tx %s reverted", result.TxHash)
	}

	result.BlockNumber = receipt.BlockNumber.Uint64()
	return result, nil
}

// IsTransactionConfirmed 检查交易是否成功且达到确认数
func (m *Manager) IsTransactionConfirmed(ctx context.Context, networkName, txHash string) (bool, error) {
	network, err := m.network(networkName)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.readTimeout)
	defer cancel()

	receipt, err := network.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get receipt %s: %w", txHash, err)
	}
	if receipt == nil || receipt.Status != types.ReceiptStatusSuccessful {
		return false, nil
	}

	latest, err := network.client.BlockNumber(ctx)
	if err != nil {
		return false, fmt.Errorf("get latest block: %w", err)
	}

	return latest >= receipt.BlockNumber.Uint64()+m.confirmations, nil
}

// GetHealthStatus 获取各网络健康状态
func (m *Manager) GetHealthStatus(ctx context.Context) map[string]interface{} {
	health := make(map[string]interface{})
	for _, name := range m.Networks() {
		network, err := m.network(name)
		if err != nil {
			continue
		}

		status := "connected"
		callCtx, cancel := context.WithTimeout(ctx, m.readTimeout)
		if _, err := network.client.BlockNumber(callCtx); err != nil {
			status = "disconnected"
		}
		cancel()

		health[name] = map[string]interface{}{
			"chain_id":       network.chainId.Int64(),
			"escrow":         network.escrowAddr.Hex(),
			"client_status":  status,
			"custodial_mode": network.signer != nil,
		}
	}
	return health
}

// Close 关闭所有客户端
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, network := range m.networks {
		network.client.Close()
	}
	logger.Info("Chain manager closed")
}
