package logic

import (
	"context"
	"math/big"
	"sort"
	"strings"

	"github.com/lucci-xyz/bounty-sub003/internal/apperr"
	"github.com/lucci-xyz/bounty-sub003/internal/model"
	"github.com/lucci-xyz/bounty-sub003/internal/money"
	"github.com/lucci-xyz/bounty-sub003/internal/repository"
)

// TokenTotal 单个代币的合计
type TokenTotal struct {
	TokenSymbol string `json:"tokenSymbol"`
	Amount      string `json:"amount"`    // 最小单位
	Formatted   string `json:"formatted"` // 可读金额
	Count       int    `json:"count"`
}

// ClaimedBounty 已领取的悬赏
type ClaimedBounty struct {
	BountyId        string `json:"bountyId"`
	RepoFullName    string `json:"repoFullName"`
	IssueNumber     int64  `json:"issueNumber"`
	PrNumber        int64  `json:"prNumber"`
	Amount          string `json:"amount"`
	FormattedAmount string `json:"formattedAmount"`
	TokenSymbol     string `json:"tokenSymbol"`
	TxHash          string `json:"txHash,omitempty"`
}

// ClaimedStats 贡献者领取统计
type ClaimedStats struct {
	GithubId int64           `json:"githubId,string"`
	Claims   []ClaimedBounty `json:"claims"`
	Totals   []TokenTotal    `json:"totals"`
}

// Overview 管理端概览
type Overview struct {
	Counts map[model.BountyStatus]int64        `json:"counts"`
	Totals map[model.BountyStatus][]TokenTotal `json:"totals"`
}

// StatsLogic 统计，所有金额换算经过 money 包
type StatsLogic struct {
	bounties *repository.BountyRepository
	claims   *repository.ClaimRepository
}

// NewStatsLogic 创建统计业务逻辑
func NewStatsLogic(bounties *repository.BountyRepository, claims *repository.ClaimRepository) *StatsLogic {
	return &StatsLogic{bounties: bounties, claims: claims}
}

// ClaimedTotals 贡献者已支付领取的按代币合计
func (l *StatsLogic) ClaimedTotals(ctx context.Context, githubId int64) (*ClaimedStats, error) {
	rows, err := l.claims.ListPaidByContributor(ctx, githubId)
	if err != nil {
		return nil, apperr.Fatal(err, "failed to load claims")
	}

	stats := &ClaimedStats{GithubId: githubId, Claims: make([]ClaimedBounty, 0, len(rows))}
	acc := newTotals()
	for _, row := range rows {
		formatted, err := money.FormatAmount(row.Amount, row.TokenSymbol)
		if err != nil {
			return nil, apperr.Fatal(err, "bounty %s has a malformed amount", row.BountyId)
		}
		stats.Claims = append(stats.Claims, ClaimedBounty{
			BountyId:        row.BountyId,
			RepoFullName:    row.RepoFullName,
			IssueNumber:     row.IssueNumber,
			PrNumber:        row.PrNumber,
			Amount:          row.Amount,
			FormattedAmount: formatted,
			TokenSymbol:     row.TokenSymbol,
			TxHash:          row.TxHash,
		})
		if err := acc.add(row.TokenSymbol, row.Amount); err != nil {
			return nil, apperr.Fatal(err, "bounty %s has a malformed amount", row.BountyId)
		}
	}
	stats.Totals = acc.list()
	return stats, nil
}

// Overview 各状态数量及按代币的金额合计
func (l *StatsLogic) Overview(ctx context.Context) (*Overview, error) {
	counts, err := l.bounties.CountByStatus(ctx)
	if err != nil {
		return nil, apperr.Fatal(err, "failed to count bounties")
	}
	rows, err := l.bounties.ListAmounts(ctx)
	if err != nil {
		return nil, apperr.Fatal(err, "failed to load bounty amounts")
	}

	byStatus := make(map[model.BountyStatus]*totals)
	for _, row := range rows {
		acc, ok := byStatus[row.Status]
		if !ok {
			acc = newTotals()
			byStatus[row.Status] = acc
		}
		if err := acc.add(row.TokenSymbol, row.Amount); err != nil {
			return nil, apperr.Fatal(err, "malformed bounty amount")
		}
	}

	overview := &Overview{
		Counts: counts,
		Totals: make(map[model.BountyStatus][]TokenTotal, len(byStatus)),
	}
	for status, acc := range byStatus {
		overview.Totals[status] = acc.list()
	}
	return overview, nil
}

// totals 按代币累加最小单位金额
type totals struct {
	amounts map[string]*big.Int
	counts  map[string]int
}

func newTotals() *totals {
	return &totals{amounts: make(map[string]*big.Int), counts: make(map[string]int)}
}

func (t *totals) add(symbol, amount string) error {
	v, err := money.ParseMinor(amount)
	if err != nil {
		return err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if _, ok := t.amounts[symbol]; !ok {
		t.amounts[symbol] = new(big.Int)
	}
	t.amounts[symbol].Add(t.amounts[symbol], v)
	t.counts[symbol]++
	return nil
}

func (t *totals) list() []TokenTotal {
	out := make([]TokenTotal, 0, len(t.amounts))
	for symbol, amount := range t.amounts {
		out = append(out, TokenTotal{
			TokenSymbol: symbol,
			Amount:      amount.String(),
			Formatted:   money.FormatMinor(amount, symbol),
			Count:       t.counts[symbol],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenSymbol < out[j].TokenSymbol })
	return out
}
