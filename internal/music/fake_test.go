package music

import (
	"context"
	"sync"
	"time"

	"tosti/internal/models"
	"tosti/internal/store"
)

type fakeStore struct {
	players     map[string]models.Player
	permissions map[string]bool
	blacklisted bool
	overlay     *models.Overlay
	countFn     func(ctx context.Context, playerID, userID int64, since time.Time) (int, error)

	mu       sync.Mutex
	recorded []store.RecordRequestInput
}

func (f *fakeStore) CreatePlayer(ctx context.Context, input store.CreatePlayerInput) (models.Player, error) {
	return models.Player{}, nil
}

func (f *fakeStore) SetPlayerCredentials(ctx context.Context, caller models.User, playerID int64, credentials []byte) error {
	return nil
}

func (f *fakeStore) ListPlayers(ctx context.Context) ([]models.Player, error) {
	var players []models.Player
	for _, player := range f.players {
		players = append(players, player)
	}
	return players, nil
}

func (f *fakeStore) GetPlayer(ctx context.Context, slug string) (models.Player, error) {
	player, ok := f.players[slug]
	if !ok {
		return models.Player{}, store.ErrNotFound
	}
	return player, nil
}

func (f *fakeStore) SetPlayerDevice(ctx context.Context, playerID int64, deviceID *string) error {
	return nil
}

func (f *fakeStore) ActiveOverlay(ctx context.Context, player models.Player, user models.User, at time.Time) (models.Overlay, bool, error) {
	if f.overlay == nil {
		return models.Overlay{}, false, nil
	}
	return *f.overlay, true, nil
}

func (f *fakeStore) RecordRequest(ctx context.Context, input store.RecordRequestInput) (models.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, input)
	return models.QueueItem{ID: int64(len(f.recorded)), PlayerID: input.PlayerID, Track: input.Track, AddedAt: input.At, RequestedByID: input.RequestedBy}, nil
}

func (f *fakeStore) CountRequestsSince(ctx context.Context, playerID, userID int64, since time.Time) (int, error) {
	if f.countFn == nil {
		f.mu.Lock()
		defer f.mu.Unlock()
		count := 0
		for _, input := range f.recorded {
			if input.PlayerID == playerID && input.RequestedBy != nil && *input.RequestedBy == userID && !input.At.Before(since) {
				count++
			}
		}
		return count, nil
	}
	return f.countFn(ctx, playerID, userID, since)
}

func (f *fakeStore) ListQueueItems(ctx context.Context, playerID int64, limit int) ([]models.QueueItem, error) {
	return nil, nil
}

func (f *fakeStore) CreateControlEvent(ctx context.Context, input store.CreateControlEventInput) (models.ControlEvent, error) {
	return models.ControlEvent{}, nil
}

func (f *fakeStore) JoinControlEvent(ctx context.Context, caller models.User, code string) (models.ControlEvent, error) {
	return models.ControlEvent{}, nil
}

func (f *fakeStore) HasObjectPermission(ctx context.Context, user models.User, code, objectType string, objectID int64) (bool, error) {
	return f.permissions[code], nil
}

func (f *fakeStore) IsBlacklisted(ctx context.Context, userID int64, subsystem string) (bool, error) {
	return f.blacklisted, nil
}

type fakeBackend struct {
	mu         sync.Mutex
	calls      map[string]int
	playing    bool
	searchFn   func(query string, limit int) ([]models.TrackStub, error)
	addFn      func(id string) error
	playbackFn func() (Status, error)
}

func (b *fakeBackend) record(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.calls == nil {
		b.calls = make(map[string]int)
	}
	b.calls[name]++
}

func (b *fakeBackend) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[name]
}

func (b *fakeBackend) Search(ctx context.Context, player models.Player, query string, limit int) ([]models.TrackStub, error) {
	b.record("search")
	if b.searchFn == nil {
		return nil, nil
	}
	return b.searchFn(query, limit)
}

func (b *fakeBackend) Track(ctx context.Context, player models.Player, id string) (models.Track, error) {
	b.record("track")
	return models.Track{BackendID: id, Name: "Track " + id, Artists: []string{"Artist"}}, nil
}

func (b *fakeBackend) AddToQueue(ctx context.Context, player models.Player, id string) error {
	b.record("add")
	if b.addFn == nil {
		return nil
	}
	return b.addFn(id)
}

func (b *fakeBackend) Play(ctx context.Context, player models.Player) error {
	b.record("play")
	b.mu.Lock()
	b.playing = true
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) Pause(ctx context.Context, player models.Player) error {
	b.record("pause")
	b.mu.Lock()
	b.playing = false
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) Next(ctx context.Context, player models.Player) error {
	b.record("next")
	return nil
}

func (b *fakeBackend) Previous(ctx context.Context, player models.Player) error {
	b.record("previous")
	return nil
}

func (b *fakeBackend) SetVolume(ctx context.Context, player models.Player, volume int) error {
	b.record("volume")
	return nil
}

func (b *fakeBackend) SetShuffle(ctx context.Context, player models.Player, on bool) error {
	b.record("shuffle")
	return nil
}

func (b *fakeBackend) SetRepeat(ctx context.Context, player models.Player, on bool) error {
	b.record("repeat")
	return nil
}

func (b *fakeBackend) CurrentlyPlaying(ctx context.Context, player models.Player) (Status, error) {
	return b.Playback(ctx, player)
}

func (b *fakeBackend) Playback(ctx context.Context, player models.Player) (Status, error) {
	b.record("playback")
	if b.playbackFn != nil {
		return b.playbackFn()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{IsPlaying: b.playing}, nil
}
