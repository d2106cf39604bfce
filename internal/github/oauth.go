// Package github 通过 GitHub OAuth 把会话绑定到 GitHub 身份。
package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	gogithub "github.com/google/go-github/v66/github"
	"github.com/google/uuid"
	"github.com/lucci-xyz/bounty-sub003/internal/config"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

// Identity GitHub 用户身份
type Identity struct {
	ID    int64
	Login string
}

// Client GitHub OAuth 客户端
type Client struct {
	oauth  *oauth2.Config
	apiURL *url.URL // 为空时使用 api.github.com
}

// NewClient 创建 OAuth 客户端
func NewClient(cfg config.GithubConfig) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"read:user"},
			Endpoint:     githuboauth.Endpoint,
		},
	}
}

// NewState 生成 OAuth state
func NewState() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// AuthCodeURL 授权跳转地址
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange 用授权码换取令牌并查询当前用户
func (c *Client) Exchange(ctx context.Context, code string) (*Identity, error) {
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange oauth code: %w", err)
	}

	gh := gogithub.NewClient(c.oauth.Client(ctx, token))
	if c.apiURL != nil {
		gh.BaseURL = c.apiURL
	}

	user, _, err := gh.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("get github user: %w", err)
	}
	if user.GetID() == 0 {
		return nil, fmt.Errorf("github user has no id")
	}
	return &Identity{ID: user.GetID(), Login: user.GetLogin()}, nil
}
