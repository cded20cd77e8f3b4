package consumerWorker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/Eliezer-Jr/event-blossom/internal/cache"
	"github.com/Eliezer-Jr/event-blossom/internal/dto"
	"github.com/Eliezer-Jr/event-blossom/internal/rabbit"
	"github.com/Eliezer-Jr/event-blossom/internal/repo"
	"github.com/Eliezer-Jr/event-blossom/internal/sms"
)

// Notifier mirrors the service-side SMS contract: best-effort only.
type Notifier interface {
	Send(ctx context.Context, recipients []string, message string) error
}

// Reader consumes delayed expiry messages: when one lands and the
// registration is still awaiting payment, it is cancelled and its inventory
// unit released. A registration that was paid or already cancelled in the
// meantime is skipped (the state guard in the repository decides).
type Reader struct {
	RMQ      *rabbit.Client
	repo     repo.Repository
	notifier Notifier
	avail    *cache.AvailabilityCache
	done     chan struct{}
	cancel   context.CancelFunc
}

func NewReader(rmq *rabbit.Client, repo repo.Repository, notifier Notifier, avail *cache.AvailabilityCache) *Reader {
	return &Reader{
		RMQ:      rmq,
		repo:     repo,
		notifier: notifier,
		avail:    avail,
		done:     make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("payment expiry worker started")

	go func() {
		defer close(r.done)

		handler := func(body []byte) error {
			var msg dto.ExpiryMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				zlog.Logger.Error().Err(err).Msgf("failed to unmarshal expiry message: %s", string(body))
				return err
			}

			zlog.Logger.Info().
				Str("registration_id", msg.RegistrationID.String()).
				Str("event_id", msg.EventID.String()).
				Msg("payment expiry message received")

			cancelled, err := r.repo.FailPaymentTx(cctx, msg.RegistrationID)
			if err != nil {
				zlog.Logger.Error().Err(err).
					Str("registration_id", msg.RegistrationID.String()).
					Msg("failed to expire registration")
				return err
			}
			if !cancelled {
				zlog.Logger.Info().
					Str("registration_id", msg.RegistrationID.String()).
					Msg("registration already paid or cancelled, skipping expiry")
				return nil
			}
			if r.avail != nil {
				r.avail.Invalidate(cctx, msg.EventID)
			}

			reg, err := r.repo.GetRegistrationByID(cctx, msg.RegistrationID)
			if err != nil {
				zlog.Logger.Error().Err(err).
					Str("registration_id", msg.RegistrationID.String()).
					Msg("failed to load registration after expiry")
				return nil
			}
			event, err := r.repo.GetEventByID(cctx, reg.EventID)
			if err != nil {
				zlog.Logger.Error().Err(err).
					Str("event_id", reg.EventID.String()).
					Msg("failed to load event after expiry")
				return nil
			}

			if reg.Phone != "" && r.notifier != nil {
				sendCtx, sendCancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer sendCancel()
				if err := r.notifier.Send(sendCtx, []string{reg.Phone}, sms.RegistrationExpiredMessage(reg.Name, event.Title)); err != nil {
					zlog.Logger.Warn().Err(err).Msg("failed to send expiry SMS")
				}
			}
			return nil
		}

		if err := r.RMQ.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to start consuming expiry messages")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("payment expiry worker stopped by context")
	}()
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
