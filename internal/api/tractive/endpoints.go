package tractive

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// maxPositionLookback 历史位置查询最多回溯 30 天
const maxPositionLookback = 30 * 24 * time.Hour

// Authenticate 账号密码换取访问令牌
func (c *Client) Authenticate(ctx context.Context, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.PostJSON(ctx, "/auth/token", AuthRequest{
		PlatformEmail: email,
		PlatformToken: password,
		GrantType:     "tractive",
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("authenticate: %w: no access token in response", ErrAuthentication)
	}
	return &resp, nil
}

// ListTrackers 获取账号下的追踪器
func (c *Client) ListTrackers(ctx context.Context, userID string) ([]ObjectRef, error) {
	var trackers []ObjectRef
	if err := c.GetJSON(ctx, "/user/"+userID+"/trackers", nil, &trackers); err != nil {
		return nil, fmt.Errorf("list trackers: %w", err)
	}
	return trackers, nil
}

// GetTracker 获取追踪器记录
func (c *Client) GetTracker(ctx context.Context, trackerID string) (*Tracker, error) {
	var tracker Tracker
	if err := c.GetJSON(ctx, "/tracker/"+trackerID, nil, &tracker); err != nil {
		return nil, fmt.Errorf("get tracker: %w", err)
	}
	return &tracker, nil
}

// GetHardwareReport 获取硬件报告
func (c *Client) GetHardwareReport(ctx context.Context, trackerID string) (*HardwareReport, error) {
	var report HardwareReport
	if err := c.GetJSON(ctx, "/device_hw_report/"+trackerID, nil, &report); err != nil {
		return nil, fmt.Errorf("get hardware report: %w", err)
	}
	return &report, nil
}

// GetPositionReport 获取当前位置报告，返回原始记录由调用方解析
func (c *Client) GetPositionReport(ctx context.Context, trackerID string) (map[string]any, error) {
	var report map[string]any
	if err := c.GetJSON(ctx, "/device_pos_report/"+trackerID, nil, &report); err != nil {
		return nil, fmt.Errorf("get position report: %w", err)
	}
	return report, nil
}

// GetPositions 获取 [from, to] 区间的历史位置段，from 最多回溯 30 天
func (c *Client) GetPositions(ctx context.Context, trackerID string, from, to time.Time) (PositionSegments, error) {
	if earliest := to.Add(-maxPositionLookback); from.Before(earliest) {
		from = earliest
	}
	params := url.Values{}
	params.Set("time_from", strconv.FormatInt(from.Unix(), 10))
	params.Set("time_to", strconv.FormatInt(to.Unix(), 10))
	params.Set("format", "json_segments")

	var segments PositionSegments
	if err := c.GetJSON(ctx, "/tracker/"+trackerID+"/positions", params, &segments); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	return segments, nil
}

// SendCommand 发送通用命令（live_tracking / led_control / buzzer_control）
func (c *Client) SendCommand(ctx context.Context, trackerID, command string, on bool) error {
	state := "off"
	if on {
		state = "on"
	}
	path := fmt.Sprintf("/tracker/%s/command/%s/%s", trackerID, command, state)
	if _, err := c.Request(ctx, Request{Method: http.MethodGet, Path: path}); err != nil {
		return fmt.Errorf("send command %s: %w", command, err)
	}
	return nil
}

// SetBatterySaveMode 省电模式走单独的接口
func (c *Client) SetBatterySaveMode(ctx context.Context, trackerID string, on bool) error {
	_, err := c.Request(ctx, Request{
		Method: http.MethodPost,
		Path:   "/tracker/" + trackerID + "/battery_save_mode",
		Body:   map[string]bool{"battery_save_mode": on},
	})
	if err != nil {
		return fmt.Errorf("set battery save mode: %w", err)
	}
	return nil
}

// CreateShare 创建公开分享，返回分享 ID
func (c *Client) CreateShare(ctx context.Context, trackerID, message string) (string, error) {
	var share Share
	err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/public_share",
		Body:   map[string]string{"tracker_id": trackerID, "message": message},
	}, &share)
	if err != nil {
		return "", fmt.Errorf("create share: %w", err)
	}
	if share.ID == "" {
		return "", &APIError{StatusCode: http.StatusOK, Message: "share id missing in response"}
	}
	return share.ID, nil
}

// GetShare 获取分享详情
func (c *Client) GetShare(ctx context.Context, shareID string) (*Share, error) {
	var share Share
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/public_share/" + shareID}, &share); err != nil {
		return nil, fmt.Errorf("get share: %w", err)
	}
	if share.ID == "" {
		share.ID = shareID
	}
	return &share, nil
}

// DeactivateShare 停用分享
func (c *Client) DeactivateShare(ctx context.Context, shareID string) error {
	if err := c.PutJSON(ctx, "/public_share/"+shareID+"/deactivate", nil, nil); err != nil {
		return fmt.Errorf("deactivate share: %w", err)
	}
	return nil
}

// ListShares 获取追踪器的所有分享
func (c *Client) ListShares(ctx context.Context, trackerID string) ([]ObjectRef, error) {
	var shares []ObjectRef
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/tracker/" + trackerID + "/public_shares"}, &shares); err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	return shares, nil
}

// GetShareDetails 通过分享链接 ID 获取公开信息（含品种）
func (c *Client) GetShareDetails(ctx context.Context, linkID string) (*ShareDetails, error) {
	var details ShareDetails
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/public_share/" + linkID + "/info"}, &details); err != nil {
		return nil, fmt.Errorf("get share details: %w", err)
	}
	return &details, nil
}

// ListTrackableObjects 获取账号下的宠物档案
func (c *Client) ListTrackableObjects(ctx context.Context, userID string) ([]ObjectRef, error) {
	var objects []ObjectRef
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/user/" + userID + "/trackable_objects"}, &objects); err != nil {
		return nil, fmt.Errorf("list trackable objects: %w", err)
	}
	return objects, nil
}

// GetTrackableObject 获取宠物档案
func (c *Client) GetTrackableObject(ctx context.Context, objectID string) (*TrackableObject, error) {
	var obj TrackableObject
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/trackable_object/" + objectID}, &obj); err != nil {
		return nil, fmt.Errorf("get trackable object: %w", err)
	}
	return &obj, nil
}
