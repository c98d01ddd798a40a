package music

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"tosti/internal/models"
	"tosti/internal/store"
)

var ErrRateLimited = errors.New("too many searches")

// DefaultSearchMax is the result count used when a search names none.
const DefaultSearchMax = 5

const (
	maxSearchMax     = 50
	defaultQueueSize = 10
)

// Store is the subset of persistence the player service needs.
type Store interface {
	store.MusicStore
	HasObjectPermission(ctx context.Context, user models.User, code, objectType string, objectID int64) (bool, error)
	IsBlacklisted(ctx context.Context, userID int64, subsystem string) (bool, error)
}

type Config struct {
	CacheTTL        time.Duration
	SearchInterval  time.Duration
	SearchBurst     int
	RequestsPerHour int
}

type Service struct {
	store   Store
	backend Backend
	cache   *StatusCache
	limiter *SearchLimiter
	locks   *requestLocks
	perHour int
	now     func() time.Time
}

func NewService(st Store, backend Backend, cfg Config) *Service {
	return &Service{
		store:   st,
		backend: backend,
		cache:   NewStatusCache(cfg.CacheTTL),
		limiter: NewSearchLimiter(cfg.SearchInterval, cfg.SearchBurst),
		locks:   newRequestLocks(),
		perHour: cfg.RequestsPerHour,
		now:     time.Now,
	}
}

// access is the resolved permission state of one user on one player.
type access struct {
	overlay models.Overlay
	active  bool
}

func (s *Service) resolve(ctx context.Context, player models.Player, user models.User) (access, error) {
	overlay, active, err := s.store.ActiveOverlay(ctx, player, user, s.now())
	if err != nil {
		return access{}, err
	}
	return access{overlay: overlay, active: active}, nil
}

func (s *Service) allowed(ctx context.Context, player models.Player, user models.User, acc access, code string) (bool, error) {
	ok, err := s.store.HasObjectPermission(ctx, user, code, models.ObjectPlayer, player.ID)
	if err != nil || ok {
		return ok, err
	}
	return acc.active && OverlayAllows(acc.overlay, user, code), nil
}

// authorize loads the player and checks code for user, overlay and
// blacklist included.
func (s *Service) authorize(ctx context.Context, slug string, user models.User, code string) (models.Player, access, error) {
	if !user.Authenticated() {
		return models.Player{}, access{}, store.ErrUnauthenticated
	}
	player, err := s.store.GetPlayer(ctx, slug)
	if err != nil {
		return models.Player{}, access{}, err
	}
	acc, err := s.resolve(ctx, player, user)
	if err != nil {
		return models.Player{}, access{}, err
	}
	ok, err := s.allowed(ctx, player, user, acc, code)
	if err != nil {
		return models.Player{}, access{}, err
	}
	if !ok {
		return models.Player{}, access{}, fmt.Errorf("%w: %s on %s", store.ErrForbidden, code, player.Slug)
	}
	if !BypassesBlacklist(acc.overlay, acc.active) {
		blacklisted, err := s.store.IsBlacklisted(ctx, user.ID, models.SubsystemMusic)
		if err != nil {
			return models.Player{}, access{}, err
		}
		if blacklisted {
			return models.Player{}, access{}, store.ErrBlacklisted
		}
	}
	return player, acc, nil
}

func (s *Service) Players(ctx context.Context) ([]models.Player, error) {
	return s.store.ListPlayers(ctx)
}

func (s *Service) Search(ctx context.Context, slug string, user models.User, query string, max int) ([]models.TrackStub, error) {
	if max < 1 || max > maxSearchMax {
		return nil, fmt.Errorf("%w: maximum must be between 1 and %d", store.ErrBadRequest, maxSearchMax)
	}
	player, _, err := s.authorize(ctx, slug, user, models.PermCanRequest)
	if err != nil {
		return nil, err
	}
	if !s.limiter.Allow(user.ID) {
		return nil, ErrRateLimited
	}
	tracks, err := s.backend.Search(ctx, player, query, max)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tracks, func(i, j int) bool {
		return tracks[i].Popularity > tracks[j].Popularity
	})
	if len(tracks) > max {
		tracks = tracks[:max]
	}
	return tracks, nil
}

// Request queues a track on the backend and records it locally only after
// the backend accepted it.
func (s *Service) Request(ctx context.Context, slug string, user models.User, trackID string) (models.QueueItem, error) {
	if trackID == "" {
		return models.QueueItem{}, fmt.Errorf("%w: track id is required", store.ErrBadRequest)
	}
	player, acc, err := s.authorize(ctx, slug, user, models.PermCanRequest)
	if err != nil {
		return models.QueueItem{}, err
	}
	unlock := s.locks.lock(player.ID, user.ID)
	defer unlock()

	now := s.now().UTC()
	if s.perHour > 0 {
		exempt, err := s.allowed(ctx, player, user, acc, models.PermCanControl)
		if err != nil {
			return models.QueueItem{}, err
		}
		if !exempt {
			count, err := s.store.CountRequestsSince(ctx, player.ID, user.ID, now.Add(-time.Hour))
			if err != nil {
				return models.QueueItem{}, err
			}
			if count >= s.perHour {
				return models.QueueItem{}, fmt.Errorf("%w: %d requests per hour", store.ErrQuotaExceeded, s.perHour)
			}
		}
	}

	track, err := s.backend.Track(ctx, player, trackID)
	if err != nil {
		return models.QueueItem{}, err
	}
	if err := s.backend.AddToQueue(ctx, player, trackID); err != nil {
		return models.QueueItem{}, err
	}
	if track.BackendID == "" {
		track.BackendID = trackID
	}
	requester := user.ID
	return s.store.RecordRequest(ctx, store.RecordRequestInput{
		PlayerID:    player.ID,
		Track:       track,
		RequestedBy: &requester,
		At:          now,
	})
}

func (s *Service) Queue(ctx context.Context, slug string, limit int) ([]models.QueueItem, error) {
	player, err := s.store.GetPlayer(ctx, slug)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultQueueSize
	}
	return s.store.ListQueueItems(ctx, player.ID, limit)
}

func (s *Service) CurrentlyPlaying(ctx context.Context, slug string) (Status, error) {
	player, err := s.store.GetPlayer(ctx, slug)
	if err != nil {
		return Status{}, err
	}
	return s.current(ctx, player)
}

func (s *Service) Playback(ctx context.Context, slug string) (Status, error) {
	player, err := s.store.GetPlayer(ctx, slug)
	if err != nil {
		return Status{}, err
	}
	return s.playback(ctx, player)
}

func (s *Service) current(ctx context.Context, player models.Player) (Status, error) {
	return s.cache.Get(ctx, player.ID, kindCurrent, func(ctx context.Context) (Status, error) {
		return s.backend.CurrentlyPlaying(ctx, player)
	})
}

func (s *Service) playback(ctx context.Context, player models.Player) (Status, error) {
	return s.cache.Get(ctx, player.ID, kindPlayback, func(ctx context.Context) (Status, error) {
		return s.backend.Playback(ctx, player)
	})
}

func (s *Service) control(ctx context.Context, slug string, user models.User, op func(context.Context, models.Player) error) error {
	player, _, err := s.authorize(ctx, slug, user, models.PermCanControl)
	if err != nil {
		return err
	}
	if err := op(ctx, player); err != nil {
		return err
	}
	s.cache.Invalidate(player.ID)
	return nil
}

func (s *Service) Play(ctx context.Context, slug string, user models.User) error {
	return s.control(ctx, slug, user, s.play)
}

func (s *Service) Pause(ctx context.Context, slug string, user models.User) error {
	return s.control(ctx, slug, user, s.pause)
}

// play is a no-op when the player already plays.
func (s *Service) play(ctx context.Context, player models.Player) error {
	status, err := s.playback(ctx, player)
	if err != nil {
		return err
	}
	if status.IsPlaying {
		return nil
	}
	return s.backend.Play(ctx, player)
}

func (s *Service) pause(ctx context.Context, player models.Player) error {
	status, err := s.playback(ctx, player)
	if err != nil {
		return err
	}
	if !status.IsPlaying {
		return nil
	}
	return s.backend.Pause(ctx, player)
}

func (s *Service) Next(ctx context.Context, slug string, user models.User) error {
	return s.control(ctx, slug, user, s.backend.Next)
}

func (s *Service) Previous(ctx context.Context, slug string, user models.User) error {
	return s.control(ctx, slug, user, s.backend.Previous)
}

func (s *Service) Volume(ctx context.Context, slug string, user models.User, volume int) error {
	if volume < 0 || volume > 100 {
		return fmt.Errorf("%w: volume must be between 0 and 100", store.ErrBadRequest)
	}
	return s.control(ctx, slug, user, func(ctx context.Context, player models.Player) error {
		return s.backend.SetVolume(ctx, player, volume)
	})
}

func (s *Service) Shuffle(ctx context.Context, slug string, user models.User, on bool) error {
	return s.control(ctx, slug, user, func(ctx context.Context, player models.Player) error {
		return s.backend.SetShuffle(ctx, player, on)
	})
}

func (s *Service) Repeat(ctx context.Context, slug string, user models.User, on bool) error {
	return s.control(ctx, slug, user, func(ctx context.Context, player models.Player) error {
		return s.backend.SetRepeat(ctx, player, on)
	})
}

func (s *Service) JoinControlEvent(ctx context.Context, user models.User, code string) (models.ControlEvent, error) {
	return s.store.JoinControlEvent(ctx, user, code)
}

// StopAll pauses every configured player. Failures are logged and joined so
// one broken player does not keep the others playing.
func (s *Service) StopAll(ctx context.Context) error {
	return s.each(ctx, "pause", s.pause)
}

func (s *Service) StartAll(ctx context.Context) error {
	return s.each(ctx, "play", s.play)
}

func (s *Service) each(ctx context.Context, name string, op func(context.Context, models.Player) error) error {
	players, err := s.store.ListPlayers(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, player := range players {
		if len(player.Credentials) == 0 {
			continue
		}
		if err := op(ctx, player); err != nil {
			log.Printf("music %s player=%s err=%v", name, player.Slug, err)
			errs = append(errs, fmt.Errorf("%s: %w", player.Slug, err))
			continue
		}
		s.cache.Invalidate(player.ID)
	}
	return errors.Join(errs...)
}
