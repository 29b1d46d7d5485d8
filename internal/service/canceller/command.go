package canceller

import (
	"context"
	"errors"
	"time"

	"github.com/oshokin/fall-monitor/internal/config"
	"github.com/oshokin/fall-monitor/internal/domain/fall"
	"github.com/oshokin/fall-monitor/internal/logger"
	"github.com/oshokin/fall-monitor/internal/service/common"
)

// Options configures the fall-cancel command.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// ServerAddress overrides the API address from config when specified.
	ServerAddress string
	// Reset clears a confirmed episode instead of only dismissing a pending one.
	Reset bool
	// Wait bounds the retries. Zero retries until ctx is canceled.
	Wait time.Duration
	// RetryInterval is the delay between attempts.
	RetryInterval time.Duration
}

// DefaultRetryInterval is the delay between attempts.
const DefaultRetryInterval = 1 * time.Second

var (
	// ErrAlreadyConfirmed is returned when the fall was confirmed before the cancel arrived.
	ErrAlreadyConfirmed = errors.New("fall already confirmed, emergency alert was raised")
	// ErrNewEpisode is returned when a different fall became pending between retries.
	// That fall is left untouched.
	ErrNewEpisode = errors.New("a new fall is pending, it was not cancelled")
)

// caller is the part of common.Client used by the command.
type caller interface {
	GetStatus(ctx context.Context) (fall.State, error)
	CancelPending(ctx context.Context) (fall.State, error)
	Reset(ctx context.Context) (fall.State, error)
}

// Run dismisses the pending fall, retrying until success, a final answer or cancellation.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "fall-cancel")

	cfg, err := config.Read(opts.ConfigPath)
	if err != nil {
		return err
	}

	serverAddress := cfg.APIAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	if serverAddress == "" {
		serverAddress = config.DefaultAPIAddress
	}

	clientOptions := []common.Option{common.WithCallTimeout(cfg.Timeout)}

	// Identify current user and hostname for audit logging.
	if actor, err := common.DetectActor(); err == nil {
		clientOptions = append(clientOptions, common.WithActor(actor))
	}

	client, err := common.Dial(ctx, serverAddress, clientOptions...)
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	if opts.Wait > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, opts.Wait)
		defer cancel()
	}

	logger.InfoKV(ctx, "Cancelling fall", "server_address", serverAddress, "reset", opts.Reset)

	return push(ctx, client, opts)
}

// push attempts the call immediately and then every retry interval.
func push(ctx context.Context, client caller, opts *Options) error {
	interval := opts.RetryInterval
	if interval <= 0 {
		interval = DefaultRetryInterval
	}

	p := &pusher{client: client, reset: opts.Reset}

	if done, err := p.attempt(ctx); err != nil || done {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if done, err := p.attempt(ctx); err != nil || done {
				return err
			}
		}
	}
}

// pusher retries one cancellation, scoped to the first episode it sees.
type pusher struct {
	client caller
	reset  bool
	// episodeID is the episode being dismissed, empty until observed.
	episodeID string
}

// attempt tries once and returns (completed, error). Transport errors are
// logged and retried.
func (p *pusher) attempt(ctx context.Context) (bool, error) {
	current, err := p.client.GetStatus(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "GetStatus failed", "error", err)

		return false, nil
	}

	if current.Phase == fall.PhaseIdle {
		logger.Info(ctx, "No fall pending, monitoring continues")

		return true, nil
	}

	switch {
	case p.episodeID == "":
		p.episodeID = current.EpisodeID
	case current.EpisodeID != p.episodeID:
		logger.WarnKV(ctx, "Our fall was dismissed, a new one is pending",
			"episode_id", p.episodeID,
			"new_episode_id", current.EpisodeID)

		return true, ErrNewEpisode
	}

	if current.Phase == fall.PhaseConfirmed && !p.reset {
		return true, ErrAlreadyConfirmed
	}

	call, name := p.client.CancelPending, "CancelPending"
	if p.reset {
		call, name = p.client.Reset, "Reset"
	}

	state, err := call(ctx)
	if err != nil {
		logger.ErrorKV(ctx, name+" failed", "error", err)

		return false, nil
	}

	if state.Phase == fall.PhaseConfirmed {
		return true, ErrAlreadyConfirmed
	}

	logger.InfoKV(ctx, "Fall dismissed", "episode_id", p.episodeID)

	return true, nil
}
