package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Address 逆地理编码结果
type Address struct {
	DisplayName string `json:"display_name,omitempty"`
	Road        string `json:"road,omitempty"`
	HouseNumber string `json:"house_number,omitempty"`
	Suburb      string `json:"suburb,omitempty"`
	City        string `json:"city,omitempty"`
	Postcode    string `json:"postcode,omitempty"`
	State       string `json:"state,omitempty"`
	Country     string `json:"country,omitempty"`
}

// Short 道路 + 门牌 + 城市，缺失时退回完整地址
func (a Address) Short() string {
	street := strings.TrimSpace(a.Road + " " + a.HouseNumber)
	switch {
	case street != "" && a.City != "":
		return street + ", " + a.City
	case street != "":
		return street
	case a.City != "":
		return a.City
	default:
		return a.DisplayName
	}
}

// Value 存为 JSONB
func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan 从 JSONB 读取
func (a *Address) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("scan address: unexpected type %T", value)
	}
}
