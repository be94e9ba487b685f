package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/petgazer/internal/models"
)

const (
	petCacheKey      = "pet_data"
	livePollInterval = 2 * time.Second
)

// TrackerInfo 追踪器硬件信息
func (s *TrackerService) TrackerInfo(ctx context.Context) (models.TrackerInfo, error) {
	tracker, err := s.client.GetTracker(ctx, s.TrackerID())
	if err != nil {
		return models.TrackerInfo{}, s.guard(err)
	}
	return models.TrackerInfo{
		ID:              tracker.ID,
		ModelNumber:     tracker.ModelNumber,
		HardwareEdition: tracker.HwEdition,
		FirmwareVersion: tracker.FwVersion,
	}, nil
}

// SendCommand 发送远程命令，省电模式走单独接口
func (s *TrackerService) SendCommand(ctx context.Context, cmd models.CommandType, on bool) error {
	trackerID := s.TrackerID()
	if trackerID == "" {
		return ErrNotStarted
	}

	var err error
	if cmd == models.CommandBatterySaver {
		err = s.client.SetBatterySaveMode(ctx, trackerID, on)
	} else {
		err = s.client.SendCommand(ctx, trackerID, string(cmd), on)
	}
	if err != nil {
		return s.guard(err)
	}

	// 命令会改变设备状态
	s.cache.Delete(statusCacheKey)
	s.logger.Info("Command sent", zap.String("command", string(cmd)), zap.Bool("on", on))
	s.events.Emit(EventCommandSent, map[string]any{"command": string(cmd), "on": on})
	return nil
}

// CreateShare 创建公开分享
func (s *TrackerService) CreateShare(ctx context.Context, message string) (models.ShareInfo, error) {
	if message == "" {
		message = "Pet location sharing"
	}
	id, err := s.client.CreateShare(ctx, s.TrackerID(), message)
	if err != nil {
		return models.ShareInfo{}, s.guard(err)
	}
	info, err := s.shareInfo(ctx, id)
	if err != nil {
		return models.ShareInfo{}, err
	}
	s.events.Emit(EventShareCreated, map[string]any{"share_id": info.ShareID, "share_link": info.ShareLink})
	return info, nil
}

// DeactivateShare 停用分享
func (s *TrackerService) DeactivateShare(ctx context.Context, shareID string) error {
	return s.guard(s.client.DeactivateShare(ctx, shareID))
}

// ListShares 列出分享
func (s *TrackerService) ListShares(ctx context.Context) ([]models.ShareInfo, error) {
	refs, err := s.client.ListShares(ctx, s.TrackerID())
	if err != nil {
		return nil, s.guard(err)
	}
	shares := make([]models.ShareInfo, 0, len(refs))
	for _, ref := range refs {
		info, err := s.shareInfo(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		shares = append(shares, info)
	}
	return shares, nil
}

func (s *TrackerService) shareInfo(ctx context.Context, id string) (models.ShareInfo, error) {
	share, err := s.client.GetShare(ctx, id)
	if err != nil {
		return models.ShareInfo{}, s.guard(err)
	}
	info := models.ShareInfo{
		ShareID:   share.ID,
		ShareLink: share.ShareLink,
		Message:   share.Message,
		CreatedAt: unixTime(share.CreatedAt),
		Active:    share.Active == nil || *share.Active,
	}
	return info, nil
}

// PetData 宠物档案，品种需要借助一个公开分享查询
func (s *TrackerService) PetData(ctx context.Context) (models.PetData, error) {
	if cached, ok := s.cache.Get(petCacheKey); ok {
		s.client.RecordCacheHit()
		return cached.(models.PetData), nil
	}

	refs, err := s.client.ListTrackableObjects(ctx, s.Session().UserID)
	if err != nil {
		return models.PetData{}, s.guard(err)
	}
	if len(refs) == 0 {
		return models.PetData{}, fmt.Errorf("pet data: no trackable objects")
	}
	obj, err := s.client.GetTrackableObject(ctx, refs[0].ID)
	if err != nil {
		return models.PetData{}, s.guard(err)
	}

	d := obj.Details
	pet := models.PetData{
		ID:               obj.ID,
		Name:             strings.TrimSpace(d.Name),
		PetType:          strings.TrimSpace(d.PetType),
		Gender:           strings.TrimSpace(d.Gender),
		Neutered:         d.Neutered,
		ChipID:           strings.TrimSpace(d.ChipID),
		Birthday:         unixTime(d.Birthday),
		ProfilePictureID: strings.TrimSpace(d.ProfilePictureID),
		CreatedAt:        unixTime(obj.CreatedAt),
		UpdatedAt:        unixTime(obj.UpdatedAt),
		Breed:            s.breed(ctx),
	}
	if obj.UpdatedAt == 0 {
		pet.UpdatedAt = pet.CreatedAt
	}
	if d.Weight != nil {
		pet.Weight = *d.Weight
	}
	if pet.Name == "" {
		return models.PetData{}, fmt.Errorf("pet data: name is empty")
	}

	s.cache.Set(petCacheKey, pet)
	return pet, nil
}

// breed 查询失败时返回 Unknown
func (s *TrackerService) breed(ctx context.Context) string {
	const unknown = "Unknown"

	shareID, temporary := "", false
	if refs, err := s.client.ListShares(ctx, s.TrackerID()); err == nil && len(refs) > 0 {
		shareID = refs[0].ID
	} else {
		id, err := s.client.CreateShare(ctx, s.TrackerID(), "pet_data")
		if err != nil {
			s.logger.Warn("Could not create share for breed lookup", zap.Error(err))
			return unknown
		}
		shareID, temporary = id, true
	}
	if temporary {
		defer func() {
			if err := s.client.DeactivateShare(ctx, shareID); err != nil {
				s.logger.Warn("Failed to deactivate temporary share", zap.Error(err))
			}
		}()
	}

	share, err := s.client.GetShare(ctx, shareID)
	if err != nil || share.ShareLink == "" {
		s.logger.Warn("Could not read share for breed lookup", zap.Error(err))
		return unknown
	}
	linkID := share.ShareLink[strings.LastIndex(share.ShareLink, "/")+1:]

	details, err := s.client.GetShareDetails(ctx, linkID)
	if err != nil || len(details.BreedNames) == 0 {
		return unknown
	}
	return details.BreedNames[0]
}

// LiveLocation 打开实时追踪，等到硬件报告和定位都更新后关闭
func (s *TrackerService) LiveLocation(ctx context.Context) (models.GPSFix, error) {
	before, err := s.DeviceStatus(ctx, true)
	if err != nil {
		return models.GPSFix{}, err
	}
	var lastFixTime int64
	if fix, err := s.CurrentLocation(ctx, 0); err == nil {
		lastFixTime = fix.Timestamp()
	}

	if err := s.SendCommand(ctx, models.CommandLiveTracking, true); err != nil {
		return models.GPSFix{}, err
	}
	defer func() {
		offCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.SendCommand(offCtx, models.CommandLiveTracking, false); err != nil {
			s.logger.Warn("Failed to turn off live tracking", zap.Error(err))
		}
	}()

	for {
		if err := s.clock.Sleep(ctx, livePollInterval); err != nil {
			return models.GPSFix{}, err
		}
		status, err := s.DeviceStatus(ctx, true)
		if err != nil {
			return models.GPSFix{}, err
		}
		if status.Timestamp > before.Timestamp {
			break
		}
	}

	for {
		if err := s.clock.Sleep(ctx, livePollInterval); err != nil {
			return models.GPSFix{}, err
		}
		fix, err := s.CurrentLocation(ctx, 0)
		if err != nil {
			return models.GPSFix{}, err
		}
		if fix.Timestamp() > lastFixTime {
			return fix, nil
		}
	}
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
