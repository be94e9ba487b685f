package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/petgazer/internal/clock"
	"github.com/langchou/petgazer/internal/models"
)

// DefaultBaseURL Nominatim 公共实例
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

const (
	userAgent    = "Petgazer/1.0 (pet tracker)"
	maxCacheSize = 10000
	minInterval  = time.Second
)

// Client Nominatim 逆地理编码客户端
type Client struct {
	baseURL    string
	language   string
	httpClient *http.Client
	clock      clock.Clock
	logger     *zap.Logger

	// 缓存：避免重复请求相同坐标
	cache   map[string]*models.Address
	cacheMu sync.RWMutex

	// 请求限流（每秒最多 1 次）
	lastRequest time.Time
	throttleMu  sync.Mutex
}

// NewClient 创建逆地理编码客户端，baseURL 为空时使用公共实例
func NewClient(baseURL, language string, clk clock.Clock, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if language == "" {
		language = "en"
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Client{
		baseURL:  baseURL,
		language: language,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		clock:  clk,
		logger: logger,
		cache:  make(map[string]*models.Address),
	}
}

// ReverseGeocode 根据经纬度获取地址
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (*models.Address, error) {
	// 精确到小数点后4位，约11米
	cacheKey := fmt.Sprintf("%.4f,%.4f", lat, lng)

	c.cacheMu.RLock()
	if addr, ok := c.cache[cacheKey]; ok {
		c.cacheMu.RUnlock()
		return addr, nil
	}
	c.cacheMu.RUnlock()

	address, err := c.reverse(ctx, lat, lng)
	if err != nil {
		return nil, err
	}

	c.cacheMu.Lock()
	if len(c.cache) >= maxCacheSize {
		c.cache = make(map[string]*models.Address)
	}
	c.cache[cacheKey] = address
	c.cacheMu.Unlock()

	return address, nil
}

// nominatimResponse 逆地理编码响应
type nominatimResponse struct {
	DisplayName string           `json:"display_name"`
	Address     nominatimAddress `json:"address"`
	Error       string           `json:"error"`
}

type nominatimAddress struct {
	HouseNumber string `json:"house_number"`
	Road        string `json:"road"`
	Suburb      string `json:"suburb"`
	City        string `json:"city"`
	Town        string `json:"town"`
	Village     string `json:"village"`
	State       string `json:"state"`
	Country     string `json:"country"`
	Postcode    string `json:"postcode"`
}

func (c *Client) reverse(ctx context.Context, lat, lng float64) (*models.Address, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.6f", lat))
	q.Set("lon", fmt.Sprintf("%.6f", lng))
	q.Set("format", "json")
	q.Set("accept-language", c.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	// Nominatim 要求设置 User-Agent
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim returned status %d", resp.StatusCode)
	}

	var result nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("nominatim: %s", result.Error)
	}

	// 城市可能在 city/town/village 中
	city := result.Address.City
	if city == "" {
		city = result.Address.Town
	}
	if city == "" {
		city = result.Address.Village
	}

	address := &models.Address{
		DisplayName: result.DisplayName,
		Road:        result.Address.Road,
		HouseNumber: result.Address.HouseNumber,
		Suburb:      result.Address.Suburb,
		City:        city,
		Postcode:    result.Address.Postcode,
		State:       result.Address.State,
		Country:     result.Address.Country,
	}

	c.logger.Debug("Geocoded via Nominatim",
		zap.Float64("lat", lat),
		zap.Float64("lng", lng),
		zap.String("address", address.DisplayName))

	return address, nil
}

func (c *Client) throttle(ctx context.Context) error {
	c.throttleMu.Lock()
	defer c.throttleMu.Unlock()

	if !c.lastRequest.IsZero() {
		if wait := minInterval - c.clock.Now().Sub(c.lastRequest); wait > 0 {
			if err := c.clock.Sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	c.lastRequest = c.clock.Now()
	return nil
}

// ClearCache 清空缓存
func (c *Client) ClearCache() {
	c.cacheMu.Lock()
	c.cache = make(map[string]*models.Address)
	c.cacheMu.Unlock()
}

// CacheSize 获取缓存大小
func (c *Client) CacheSize() int {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return len(c.cache)
}
