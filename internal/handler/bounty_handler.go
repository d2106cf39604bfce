package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lucci-xyz/bounty-sub003/internal/apperr"
	"github.com/lucci-xyz/bounty-sub003/internal/logic"
	"github.com/lucci-xyz/bounty-sub003/internal/reconcile"
	"github.com/lucci-xyz/bounty-sub003/internal/session"
)

// BountyHandler 悬赏与退款处理器
type BountyHandler struct {
	bountyLogic *logic.BountyLogic
	refundLogic *logic.RefundLogic
	reconciler  *reconcile.Service
}

// NewBountyHandler 创建悬赏处理器
func NewBountyHandler(bountyLogic *logic.BountyLogic, refundLogic *logic.RefundLogic, reconciler *reconcile.Service) *BountyHandler {
	return &BountyHandler{
		bountyLogic: bountyLogic,
		refundLogic: refundLogic,
		reconciler:  reconciler,
	}
}

// Register 登记悬赏
func (h *BountyHandler) Register(c *gin.Context) {
	var req RegisterBountyRequest
	if !bindJSON(c, &req) {
		return
	}

	bounty, err := h.bountyLogic.Register(c.Request.Context(), session.From(c), logic.RegisterRequest{
		BountyId:     req.BountyId,
		RepoFullName: req.RepoFullName,
		IssueNumber:  req.IssueNumber,
		Amount:       req.Amount,
		TokenSymbol:  req.TokenSymbol,
		Network:      req.Network,
		Deadline:     req.Deadline,
		TxHash:       req.TxHash,
	})
	if err != nil {
		Fail(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "bounty registered", ToBountyResponse(bounty))
}

// Get 获取悬赏
func (h *BountyHandler) Get(c *gin.Context) {
	bounty, err := h.bountyLogic.Get(c.Request.Context(), c.Param("bountyId"))
	if err != nil {
		Fail(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", ToBountyResponse(bounty))
}

// ContractBounty 读取链上悬赏记录并与数据库比对
func (h *BountyHandler) ContractBounty(c *gin.Context) {
	bounty, err := h.bountyLogic.Get(c.Request.Context(), c.Param("bountyId"))
	if err != nil {
		Fail(c, err)
		return
	}
	if bounty.Network == "" {
		Fail(c, apperr.ErrNetworkNotConfigured)
		return
	}

	diff, onChain, err := h.reconciler.Compare(c.Request.Context(), bounty)
	if err != nil {
		Fail(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", ToContractBountyResponse(bounty, onChain, diff))
}

func renderRefund(c *gin.Context, message string, res *logic.RefundResult) {
	c.JSON(http.StatusOK, RefundResponse{
		Success:         res.Success,
		Message:         message,
		TxHash:          res.TxHash,
		BlockNumber:     res.BlockNumber,
		AlreadyRefunded: res.AlreadyRefunded,
	})
}

// Refund 代管退款
func (h *BountyHandler) Refund(c *gin.Context) {
	res, err := h.refundLogic.CustodialRefund(c.Request.Context(), session.From(c), c.Param("bountyId"))
	if err != nil {
		Fail(c, err)
		return
	}
	renderRefund(c, "refund completed", res)
}

// ConfirmRefund 用户自行退款后确认
func (h *BountyHandler) ConfirmRefund(c *gin.Context) {
	var req TxHashRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.refundLogic.ConfirmRefund(c.Request.Context(), session.From(c), c.Param("bountyId"), req.TxHash)
	if err != nil {
		Fail(c, err)
		return
	}
	renderRefund(c, "refund confirmed", res)
}

// SelfReportRefund 自报退款，请求体可为空
func (h *BountyHandler) SelfReportRefund(c *gin.Context) {
	var req TxHashRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	res, err := h.refundLogic.SelfReportRefund(c.Request.Context(), session.From(c), c.Param("bountyId"), req.TxHash)
	if err != nil {
		Fail(c, err)
		return
	}
	renderRefund(c, "refund recorded", res)
}

// ConfirmCancel 链上取消后确认
func (h *BountyHandler) ConfirmCancel(c *gin.Context) {
	var req TxHashRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	res, err := h.refundLogic.ConfirmCancel(c.Request.Context(), session.From(c), c.Param("bountyId"), req.TxHash)
	if err != nil {
		Fail(c, err)
		return
	}
	renderRefund(c, "cancel confirmed", res)
}
