package publisher

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Publisher 位置消息推送
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close()
}

// Config 推送配置，两者都为空时不推送
type Config struct {
	MQTTBroker string
	NATSURL    string
	ClientID   string
}

// New 按配置创建推送器，未配置时返回 nil
func New(cfg Config, logger *zap.Logger) (Publisher, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "petgazer"
	}

	var pubs []Publisher
	if cfg.MQTTBroker != "" {
		p, err := NewMQTT(cfg.MQTTBroker, cfg.ClientID, logger)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, p)
	}
	if cfg.NATSURL != "" {
		p, err := NewNATS(cfg.NATSURL, cfg.ClientID, logger)
		if err != nil {
			for _, prev := range pubs {
				prev.Close()
			}
			return nil, err
		}
		pubs = append(pubs, p)
	}

	switch len(pubs) {
	case 0:
		return nil, nil
	case 1:
		return pubs[0], nil
	default:
		return Multi(pubs), nil
	}
}

// Multi 同时推送到多个目标
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, topic string, payload []byte) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() {
	for _, p := range m {
		p.Close()
	}
}
