package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lucci-xyz/bounty-sub003/internal/logic"
)

// StatsHandler 统计处理器
type StatsHandler struct {
	statsLogic *logic.StatsLogic
}

// NewStatsHandler 创建统计处理器
func NewStatsHandler(statsLogic *logic.StatsLogic) *StatsHandler {
	return &StatsHandler{statsLogic: statsLogic}
}

// ClaimedStats 贡献者领取统计
func (h *StatsHandler) ClaimedStats(c *gin.Context) {
	githubId, err := logic.ParseGithubId(c.Param("githubId"))
	if err != nil {
		Fail(c, err)
		return
	}

	stats, err := h.statsLogic.ClaimedTotals(c.Request.Context(), githubId)
	if err != nil {
		Fail(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", stats)
}

// Overview 管理端概览
func (h *StatsHandler) Overview(c *gin.Context) {
	overview, err := h.statsLogic.Overview(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", overview)
}
