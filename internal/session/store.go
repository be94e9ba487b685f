package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// StoredToken 持久化的访问令牌
type StoredToken struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id,omitempty"`
}

// TokenStore 令牌持久化
type TokenStore interface {
	Load() (*StoredToken, error)
	Save(token *StoredToken) error
	Clear() error
}

// FileTokenStore 文件存储，vault 不为 nil 时加密
type FileTokenStore struct {
	path  string
	vault *Vault
}

// NewFileTokenStore 创建文件令牌存储
func NewFileTokenStore(path string, vault *Vault) *FileTokenStore {
	return &FileTokenStore{path: path, vault: vault}
}

// Load 读取令牌，兼容只有一行令牌的旧格式
func (s *FileTokenStore) Load() (*StoredToken, error) {
	data, err := readSealed(s.path, s.vault)
	if err != nil {
		return nil, err
	}

	var token StoredToken
	if err := json.Unmarshal(data, &token); err != nil {
		raw := strings.TrimSpace(string(data))
		if raw == "" {
			return nil, fmt.Errorf("empty token file %s", s.path)
		}
		return &StoredToken{AccessToken: raw}, nil
	}
	return &token, nil
}

// Save 保存令牌
func (s *FileTokenStore) Save(token *StoredToken) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return writeSealed(s.path, data, s.vault)
}

// Clear 删除令牌文件
func (s *FileTokenStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

func readSealed(path string, vault *Vault) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if IsSealed(data) {
		if vault == nil {
			return nil, fmt.Errorf("%s is encrypted but no passphrase is configured", path)
		}
		return vault.Decrypt(data)
	}
	return data, nil
}

func writeSealed(path string, data []byte, vault *Vault) error {
	if vault != nil {
		sealed, err := vault.Encrypt(data)
		if err != nil {
			return fmt.Errorf("encrypt %s: %w", path, err)
		}
		data = sealed
	}
	return os.WriteFile(path, data, 0600)
}
