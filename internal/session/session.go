// Package session 在每个请求中显式加载和保存服务端会话。
//
// 会话数据存放在数据库，cookie 只携带签名后的会话ID。中间件把会话解码成
// *Session 放入 gin 上下文，处理器通过 From 取出并修改，只有调用 Save 才会写回。
package session

import (
	"fmt"
	"net/http"

	"github.com/gin-contrib/sessions"
	gormsessions "github.com/gin-contrib/sessions/gorm"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lucci-xyz/bounty-sub003/internal/config"
	"gorm.io/gorm"
)

const contextKey = "bounty.session"

const (
	keyID             = "id"
	keyGithubID       = "github_id"
	keyGithubUsername = "github_username"
	keyNonce          = "nonce"
	keyWalletAddress  = "wallet_address"
	keyOAuthState     = "oauth_state"
)

// Session 请求会话
type Session struct {
	ID             string
	GithubID       int64
	GithubUsername string
	Nonce          string // 待使用的 SIWE 随机数
	WalletAddress  string // 签名验证通过的钱包地址
	OAuthState     string
}

// Authenticated 会话是否已绑定 GitHub 身份
func (s *Session) Authenticated() bool {
	return s != nil && s.GithubID > 0
}

type maxAger interface {
	MaxAge(age int)
}

// NewStore 创建数据库会话存储，过期时间同时作用于数据库记录和 cookie 签名
func NewStore(db *gorm.DB, cfg config.SessionConfig) sessions.Store {
	store := gormsessions.NewStore(db, true, []byte(cfg.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	if m, ok := store.(maxAger); ok {
		m.MaxAge(cfg.MaxAge)
	}
	return store
}

// Middleware 挂载数据库会话并加载 *Session 到上下文
func Middleware(db *gorm.DB, cfg config.SessionConfig) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		sessions.Sessions(cfg.Name, NewStore(db, cfg)),
		Load(),
	}
}

// Load 从会话存储解码 *Session，新会话分配 ID（保存前不落 cookie）
func Load() gin.HandlerFunc {
	return func(c *gin.Context) {
		store := sessions.Default(c)

		s := &Session{
			ID:             getString(store, keyID),
			GithubUsername: getString(store, keyGithubUsername),
			Nonce:          getString(store, keyNonce),
			WalletAddress:  getString(store, keyWalletAddress),
			OAuthState:     getString(store, keyOAuthState),
		}
		if v, ok := store.Get(keyGithubID).(int64); ok {
			s.GithubID = v
		}
		if s.ID == "" {
			s.ID = uuid.NewString()
		}

		c.Set(contextKey, s)
		c.Next()
	}
}

// From 获取当前请求的会话，未挂载中间件时返回空会话
func From(c *gin.Context) *Session {
	if v, ok := c.Get(contextKey); ok {
		if s, ok := v.(*Session); ok {
			return s
		}
	}
	s := &Session{ID: uuid.NewString()}
	c.Set(contextKey, s)
	return s
}

// Set 替换当前请求的会话（不写 cookie）
func Set(c *gin.Context, s *Session) {
	c.Set(contextKey, s)
}

// Save 将会话写回存储
func Save(c *gin.Context, s *Session) error {
	store := sessions.Default(c)

	store.Set(keyID, s.ID)
	store.Set(keyGithubID, s.GithubID)
	setOrDelete(store, keyGithubUsername, s.GithubUsername)
	setOrDelete(store, keyNonce, s.Nonce)
	setOrDelete(store, keyWalletAddress, s.WalletAddress)
	setOrDelete(store, keyOAuthState, s.OAuthState)

	if err := store.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	c.Set(contextKey, s)
	return nil
}

// Clear 删除服务端会话记录并让 cookie 失效，已复制的旧 cookie 随之作废
func Clear(c *gin.Context) error {
	store := sessions.Default(c)
	store.Clear()
	store.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := store.Save(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	c.Set(contextKey, &Session{ID: uuid.NewString()})
	return nil
}

func getString(store sessions.Session, key string) string {
	v, _ := store.Get(key).(string)
	return v
}

func setOrDelete(store sessions.Session, key, value string) {
	if value == "" {
		store.Delete(key)
		return
	}
	store.Set(key, value)
}
