package infrastructure

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"seckill/internal/pkg/logger"
	"seckill/internal/pkg/mq"
	"seckill/internal/service/sales/application"
	"seckill/internal/service/sales/domain"
)

// FeedConsumerAdapter 是一个驱动适配器：监听交易流 topic，
// 把每条已完成销售事件喂给聚合引擎。
// feed 是 at-least-once 的，重复投递由引擎的幂等检查吸收。
type FeedConsumerAdapter struct {
	reader     *kafka.Reader
	aggregator *application.Aggregator
	wg         sync.WaitGroup
	stopped    atomic.Bool
}

// NewFeedConsumerAdapter 创建一个新的交易流消费者。
func NewFeedConsumerAdapter(reader *kafka.Reader, aggregator *application.Aggregator) *FeedConsumerAdapter {
	return &FeedConsumerAdapter{
		reader:     reader,
		aggregator: aggregator,
	}
}

// Start 开始消费。这是一个长期运行的方法。
func (a *FeedConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ Transaction feed consumer started.")
		for {
			if a.stopped.Load() {
				return
			}
			// 用 FetchMessage 而不是 ReadMessage，以便控制提交时机
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || a.stopped.Load() {
					logger.Ctx(ctx).Info().Msg("🛑 Transaction feed consumer shutting down.")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not read message, retrying")
				time.Sleep(1 * time.Second) // 避免快速失败循环
				continue
			}

			// 瞬时失败（去重层/存储不可用）原地重试，绝不带着
			// 未吸收的事件提交 offset，否则这条销售就永久丢了
			for {
				if err := a.processMessage(ctx, msg); err == nil {
					break
				} else {
					logger.Ctx(ctx).Warn().Err(err).Msg("transient ingest failure, retrying message")
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(1 * time.Second):
				}
				if a.stopped.Load() {
					return
				}
			}

			// 事件已被吸收（计入或判重）后才提交 offset
			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit messages")
			}
		}
	}()
}

// Stop 优雅地停止消费者。
func (a *FeedConsumerAdapter) Stop() {
	a.stopped.Store(true)
	a.reader.Close()
	a.wg.Wait()
	logger.Logger().Info().Msg("✅ Transaction feed consumer stopped.")
}

// processMessage 反序列化消息并调用聚合引擎。
// 返回 nil 表示事件已被吸收，可以提交；返回错误表示瞬时失败，
// 调用方必须在提交前重试。
func (a *FeedConsumerAdapter) processMessage(parentCtx context.Context, msg kafka.Message) error {
	var event domain.SaleEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// 格式损坏的消息跳过，重投也救不回来。生产环境应移入死信队列
		logger.Ctx(parentCtx).Error().Err(err).Msg("failed to unmarshal sale event, skipping")
		return nil
	}

	propagator := otel.GetTextMapPropagator()
	headerCarrier := mq.KafkaHeaderCarrier(msg.Headers)
	ctx := propagator.Extract(parentCtx, &headerCarrier)

	err := a.aggregator.Ingest(ctx, &event)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrDuplicateEvent):
		// 重投被幂等吸收，属于正常路径
		logger.Ctx(ctx).Debug().Str("event", event.EventID).Msg("duplicate sale event absorbed")
		return nil
	case errors.Is(err, domain.ErrInvalidEvent):
		// 内容非法的事件是永久性失败，跳过而不是卡住分区
		logger.Ctx(ctx).Error().Err(err).Str("event", event.EventID).Msg("invalid sale event, skipping")
		return nil
	default:
		return errors.Wrapf(err, "failed to ingest sale event %s", event.EventID)
	}
}
