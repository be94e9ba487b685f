package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrConfigurationInvalid 账号或坐标不合法
var ErrConfigurationInvalid = errors.New("configuration invalid")

// Credentials 登录账号与家的坐标
type Credentials struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	HomeLat  *float64 `json:"home_lat,omitempty"`
	HomeLon  *float64 `json:"home_lon,omitempty"`
}

// Validate 校验账号和坐标
func (c Credentials) Validate() error {
	if c.Email == "" || c.Password == "" {
		return fmt.Errorf("%w: email and password are required", ErrConfigurationInvalid)
	}
	if (c.HomeLat == nil) != (c.HomeLon == nil) {
		return fmt.Errorf("%w: home latitude and longitude must be set together", ErrConfigurationInvalid)
	}
	if c.HomeLat != nil && (*c.HomeLat < -90 || *c.HomeLat > 90) {
		return fmt.Errorf("%w: home latitude %f out of range", ErrConfigurationInvalid, *c.HomeLat)
	}
	if c.HomeLon != nil && (*c.HomeLon < -180 || *c.HomeLon > 180) {
		return fmt.Errorf("%w: home longitude %f out of range", ErrConfigurationInvalid, *c.HomeLon)
	}
	return nil
}

// LoadCredentials 读取凭据文件
func LoadCredentials(path string, vault *Vault) (Credentials, error) {
	var creds Credentials
	data, err := readSealed(path, vault)
	if err != nil {
		return creds, err
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("%w: decode %s: %v", ErrConfigurationInvalid, path, err)
	}
	return creds, creds.Validate()
}

// SaveCredentials 保存凭据文件
func SaveCredentials(path string, creds Credentials, vault *Vault) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return writeSealed(path, data, vault)
}
