package session

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

var (
	vaultMagic = []byte("PGV1")

	// ErrVaultDecrypt 口令错误或数据损坏
	ErrVaultDecrypt = errors.New("vault: decryption failed")
)

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32
)

// Vault 用口令加解密本地凭据文件
// 进程启动时创建一次，显式传给需要加密的组件
type Vault struct {
	passphrase []byte
}

// NewVault 创建 Vault，口令为空时返回 nil（明文存储）
func NewVault(passphrase string) *Vault {
	if passphrase == "" {
		return nil
	}
	return &Vault{passphrase: []byte(passphrase)}
}

// Encrypt 格式：magic | salt | nonce | secretbox
func (v *Vault) Encrypt(plain []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	key, err := v.deriveKey(salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(vaultMagic)+saltSize+nonceSize+len(plain)+secretbox.Overhead)
	out = append(out, vaultMagic...)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plain, &nonce, key), nil
}

// Decrypt 解密 Encrypt 的输出
func (v *Vault) Decrypt(data []byte) ([]byte, error) {
	if !IsSealed(data) || len(data) < len(vaultMagic)+saltSize+nonceSize+secretbox.Overhead {
		return nil, ErrVaultDecrypt
	}
	data = data[len(vaultMagic):]
	salt := data[:saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], data[saltSize:saltSize+nonceSize])

	key, err := v.deriveKey(salt)
	if err != nil {
		return nil, err
	}
	plain, ok := secretbox.Open(nil, data[saltSize+nonceSize:], &nonce, key)
	if !ok {
		return nil, ErrVaultDecrypt
	}
	return plain, nil
}

// IsSealed 数据是否为 Vault 加密格式
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, vaultMagic)
}

func (v *Vault) deriveKey(salt []byte) (*[keySize]byte, error) {
	raw, err := scrypt.Key(v.passphrase, salt, 1<<15, 8, 1, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	var key [keySize]byte
	copy(key[:], raw)
	return &key, nil
}
