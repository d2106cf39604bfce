// Package auth 将会话映射为针对具体悬赏的角色。
package auth

import (
	"github.com/lucci-xyz/bounty-sub003/internal/apperr"
	"github.com/lucci-xyz/bounty-sub003/internal/model"
	"github.com/lucci-xyz/bounty-sub003/internal/session"
)

// RequireSession 会话必须绑定 GitHub 身份
func RequireSession(sess *session.Session) error {
	if !sess.Authenticated() {
		return apperr.ErrNoSession
	}
	return nil
}

// RequireSponsor 会话的 GitHub ID 必须等于悬赏发起人（数值比较）
func RequireSponsor(bounty *model.Bounty, sess *session.Session) error {
	if err := RequireSession(sess); err != nil {
		return err
	}
	if bounty.SponsorGithubId != sess.GithubID {
		return apperr.ErrNotSponsor
	}
	return nil
}

// Authorizer 管理员白名单由部署配置注入
type Authorizer struct {
	admins []int64
}

// NewAuthorizer 创建鉴权器
func NewAuthorizer(adminGithubIDs []int64) *Authorizer {
	admins := make([]int64, len(adminGithubIDs))
	copy(admins, adminGithubIDs)
	return &Authorizer{admins: admins}
}

// Admins 当前白名单
func (a *Authorizer) Admins() []int64 {
	out := make([]int64, len(a.admins))
	copy(out, a.admins)
	return out
}

// IsAdmin 是否在白名单中
func (a *Authorizer) IsAdmin(githubID int64) bool {
	for _, id := range a.admins {
		if id == githubID {
			return true
		}
	}
	return false
}

// RequireAdmin 会话必须属于白名单中的管理员
func (a *Authorizer) RequireAdmin(sess *session.Session) error {
	if err := RequireSession(sess); err != nil {
		return err
	}
	if !a.IsAdmin(sess.GithubID) {
		return apperr.ErrNotAdmin
	}
	return nil
}
