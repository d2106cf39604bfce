package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lucci-xyz/bounty-sub003/internal/logic"
	"github.com/lucci-xyz/bounty-sub003/internal/session"
)

// WalletHandler 钱包绑定处理器
type WalletHandler struct {
	walletLogic *logic.WalletLogic
}

// NewWalletHandler 创建钱包绑定处理器
func NewWalletHandler(walletLogic *logic.WalletLogic) *WalletHandler {
	return &WalletHandler{walletLogic: walletLogic}
}

// Link 绑定钱包
func (h *WalletHandler) Link(c *gin.Context) {
	var req LinkWalletRequest
	if !bindJSON(c, &req) {
		return
	}

	binding, err := h.walletLogic.Link(c.Request.Context(), session.From(c), logic.LinkWalletRequest{
		GithubId:       req.GithubId,
		GithubUsername: req.GithubUsername,
		WalletAddress:  req.WalletAddress,
	})
	if err != nil {
		Fail(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "wallet linked", ToWalletResponse(binding))
}

// Unlink 解绑钱包
func (h *WalletHandler) Unlink(c *gin.Context) {
	var req UnlinkWalletRequest
	if !bindJSON(c, &req) {
		return
	}

	sess := session.From(c)
	if err := h.walletLogic.Unlink(c.Request.Context(), sess, req.Confirmation); err != nil {
		Fail(c, err)
		return
	}
	if !saveSession(c, sess) {
		return
	}

	SuccessResponse(c, http.StatusOK, "wallet unlinked", nil)
}

// Get 查询绑定
func (h *WalletHandler) Get(c *gin.Context) {
	githubId, err := logic.ParseGithubId(c.Param("githubId"))
	if err != nil {
		Fail(c, err)
		return
	}

	binding, err := h.walletLogic.Get(c.Request.Context(), githubId)
	if err != nil {
		Fail(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", ToWalletResponse(binding))
}
