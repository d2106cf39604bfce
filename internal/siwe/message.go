package siwe

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	messageVersion = "1"
	headerSuffix   = " wants you to sign in with your Ethereum account:"
)

// Message EIP-4361 登录消息
type Message struct {
	Domain    string
	Address   string
	Statement string
	URI       string
	Version   string
	ChainID   int64
	Nonce     string
	IssuedAt  time.Time
	Resources []string
}

// RenderMessage 按 EIP-4361 格式生成待签名文本，相同输入输出完全一致
func RenderMessage(m Message) string {
	version := m.Version
	if version == "" {
		version = messageVersion
	}

	var b strings.Builder
	b.WriteString(m.Domain + headerSuffix + "\n")
	b.WriteString(checksum(m.Address) + "\n")
	b.WriteString("\n")
	if m.Statement != "" {
		b.WriteString(m.Statement + "\n\n")
	}
	fmt.Fprintf(&b, "URI: %s\n", m.URI)
	fmt.Fprintf(&b, "Version: %s\n", version)
	fmt.Fprintf(&b, "Chain ID: %d\n", m.ChainID)
	fmt.Fprintf(&b, "Nonce: %s\n", m.Nonce)
	fmt.Fprintf(&b, "Issued At: %s", m.IssuedAt.UTC().Format(time.RFC3339))
	if len(m.Resources) > 0 {
		b.WriteString("\nResources:")
		for _, r := range m.Resources {
			b.WriteString("\n- " + r)
		}
	}
	return b.String()
}

// ParseMessage 解析 RenderMessage 生成的文本
func ParseMessage(text string) (*Message, error) {
	lines := strings.Split(text, "\n")
	if len(lines) < 8 {
		return nil, fmt.Errorf("message too short")
	}

	domain, ok := strings.CutSuffix(lines[0], headerSuffix)
	if !ok || domain == "" {
		return nil, fmt.Errorf("invalid message header")
	}
	m := &Message{Domain: domain, Address: lines[1]}
	if !common.IsHexAddress(m.Address) {
		return nil, fmt.Errorf("invalid address %q", m.Address)
	}
	if lines[2] != "" {
		return nil, fmt.Errorf("expected blank line after address")
	}

	i := 3
	if !strings.HasPrefix(lines[i], "URI: ") {
		m.Statement = lines[i]
		i++
		if i >= len(lines) || lines[i] != "" {
			return nil, fmt.Errorf("expected blank line after statement")
		}
		i++
	}

	var uri, version, chainID, nonce, issuedAt string
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"URI", &uri},
		{"Version", &version},
		{"Chain ID", &chainID},
		{"Nonce", &nonce},
		{"Issued At", &issuedAt},
	} {
		if i >= len(lines) {
			return nil, fmt.Errorf("missing %s", f.key)
		}
		value, ok := strings.CutPrefix(lines[i], f.key+": ")
		if !ok {
			return nil, fmt.Errorf("expected %s, got %q", f.key, lines[i])
		}
		*f.dst = value
		i++
	}

	m.URI = uri
	m.Version = version
	m.Nonce = nonce

	id, err := strconv.ParseInt(chainID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chain id %q", chainID)
	}
	m.ChainID = id

	m.IssuedAt, err = time.Parse(time.RFC3339, issuedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid issued at %q", issuedAt)
	}

	if i < len(lines) {
		if lines[i] != "Resources:" {
			return nil, fmt.Errorf("unexpected line %q", lines[i])
		}
		for _, line := range lines[i+1:] {
			r, ok := strings.CutPrefix(line, "- ")
			if !ok {
				return nil, fmt.Errorf("invalid resource line %q", line)
			}
			m.Resources = append(m.Resources, r)
		}
	}

	return m, nil
}

// checksum EIP-55 大小写校验地址
func checksum(address string) string {
	if !common.IsHexAddress(address) {
		return address
	}
	return common.HexToAddress(address).Hex()
}
