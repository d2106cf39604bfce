package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lucci-xyz/bounty-sub003/internal/apperr"
	"github.com/lucci-xyz/bounty-sub003/internal/github"
	"github.com/lucci-xyz/bounty-sub003/internal/logger"
	"github.com/lucci-xyz/bounty-sub003/internal/session"
	"github.com/lucci-xyz/bounty-sub003/internal/siwe"
)

// IdentityProvider GitHub 登录，由 github.Client 实现
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*github.Identity, error)
}

// AuthHandler 登录相关处理器
type AuthHandler struct {
	siwe       *siwe.Service
	github     IdentityProvider
	afterLogin string
}

// NewAuthHandler 创建登录处理器，afterLogin 为 GitHub 登录完成后的跳转地址
func NewAuthHandler(siweService *siwe.Service, provider IdentityProvider, afterLogin string) *AuthHandler {
	return &AuthHandler{
		siwe:       siweService,
		github:     provider,
		afterLogin: afterLogin,
	}
}

func saveSession(c *gin.Context, sess *session.Session) bool {
	if err := session.Save(c, sess); err != nil {
		Fail(c, apperr.Fatal(err, "failed to save session"))
		return false
	}
	return true
}

// Nonce 签发随机数
func (h *AuthHandler) Nonce(c *gin.Context) {
	sess := session.From(c)

	nonce, err := h.siwe.IssueNonce(c.Request.Context(), sess)
	if err != nil {
		Fail(c, err)
		return
	}
	if !saveSession(c, sess) {
		return
	}

	c.JSON(http.StatusOK, NonceResponse{Nonce: nonce})
}

// Message 生成待签名消息
func (h *AuthHandler) Message(c *gin.Context) {
	var req MessageRequest
	if !bindJSON(c, &req) {
		return
	}

	message, err := h.siwe.BuildMessage(c.Request.Context(), session.From(c), siwe.MessageRequest{
		Address:   req.Address,
		Nonce:     req.Nonce,
		ChainID:   req.ChainId,
		Domain:    req.Domain,
		URI:       req.Uri,
		Statement: req.Statement,
		Resources: req.Resources,
	})
	if err != nil {
		Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: message})
}

// Verify 校验签名并把钱包地址写入会话
func (h *AuthHandler) Verify(c *gin.Context) {
	var req VerifyRequest
	if !bindJSON(c, &req) {
		return
	}

	sess := session.From(c)
	address, err := h.siwe.Verify(c.Request.Context(), sess, req.Address, req.Signature)
	if err != nil {
		Fail(c, err)
		return
	}
	if !saveSession(c, sess) {
		return
	}

	c.JSON(http.StatusOK, VerifyResponse{Success: true, Address: address})
}

// GithubLogin 跳转 GitHub 授权
func (h *AuthHandler) GithubLogin(c *gin.Context) {
	sess := session.From(c)
	sess.OAuthState = github.NewState()
	if !saveSession(c, sess) {
		return
	}

	c.Redirect(http.StatusFound, h.github.AuthCodeURL(sess.OAuthState))
}

// GithubCallback GitHub 授权回调，绑定 GitHub 身份到会话
func (h *AuthHandler) GithubCallback(c *gin.Context) {
	sess := session.From(c)
	state := c.Query("state")
	if sess.OAuthState == "" || state != sess.OAuthState {
		Fail(c, apperr.Unauthenticated("oauth state mismatch"))
		return
	}

	code := c.Query("code")
	if code == "" {
		Fail(c, apperr.Validation("missing oauth code"))
		return
	}

	identity, err := h.github.Exchange(c.Request.Context(), code)
	if err != nil {
		Fail(c, apperr.Upstream(err, "github sign-in failed"))
		return
	}

	// 换号登录时丢弃上一个账号验证过的钱包
	if sess.GithubID != identity.ID {
		sess.WalletAddress = ""
	}
	sess.GithubID = identity.ID
	sess.GithubUsername = identity.Login
	sess.OAuthState = ""
	if !saveSession(c, sess) {
		return
	}

	logger.With(logger.Github(identity.ID)).Info("GitHub user %s signed in", identity.Login)
	if h.afterLogin != "" {
		c.Redirect(http.StatusFound, h.afterLogin)
		return
	}
	SuccessResponse(c, http.StatusOK, "signed in", gin.H{"githubId": strconv.FormatInt(identity.ID, 10), "githubUsername": identity.Login})
}

// Logout 清空会话
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := session.Clear(c); err != nil {
		Fail(c, apperr.Fatal(err, "failed to clear session"))
		return
	}
	SuccessResponse(c, http.StatusOK, "signed out", nil)
}
