package music

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"tosti/internal/models"
	"tosti/internal/store"
)

// Status is a snapshot of what a player is doing. Timestamp is set by the
// server, not by the backend.
type Status struct {
	IsPlaying  bool              `json:"is_playing"`
	Track      *models.TrackStub `json:"track,omitempty"`
	ProgressMS int               `json:"progress_ms"`
	DurationMS int               `json:"duration_ms"`
	Volume     int               `json:"volume"`
	Shuffle    bool              `json:"shuffle"`
	Repeat     bool              `json:"repeat"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Backend is the external music provider. Every call acts on behalf of one
// player, whose credentials and device are passed along.
type Backend interface {
	Search(ctx context.Context, player models.Player, query string, limit int) ([]models.TrackStub, error)
	Track(ctx context.Context, player models.Player, id string) (models.Track, error)
	AddToQueue(ctx context.Context, player models.Player, id string) error
	Play(ctx context.Context, player models.Player) error
	Pause(ctx context.Context, player models.Player) error
	Next(ctx context.Context, player models.Player) error
	Previous(ctx context.Context, player models.Player) error
	SetVolume(ctx context.Context, player models.Player, volume int) error
	SetShuffle(ctx context.Context, player models.Player, on bool) error
	SetRepeat(ctx context.Context, player models.Player, on bool) error
	CurrentlyPlaying(ctx context.Context, player models.Player) (Status, error)
	Playback(ctx context.Context, player models.Player) (Status, error)
}

type HTTPBackend struct {
	client *resty.Client
}

func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &HTTPBackend{client: client}
}

type apiArtist struct {
	Name string `json:"name"`
}

type apiTrack struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Popularity int         `json:"popularity"`
	DurationMS int         `json:"duration_ms"`
	Artists    []apiArtist `json:"artists"`
}

func (t apiTrack) stub() models.TrackStub {
	artists := make([]string, 0, len(t.Artists))
	for _, artist := range t.Artists {
		artists = append(artists, artist.Name)
	}
	return models.TrackStub{ID: t.ID, Name: t.Name, Artists: artists, Popularity: t.Popularity}
}

type apiPlayback struct {
	IsPlaying    bool      `json:"is_playing"`
	ProgressMS   int       `json:"progress_ms"`
	ShuffleState bool      `json:"shuffle_state"`
	RepeatState  string    `json:"repeat_state"`
	Item         *apiTrack `json:"item"`
	Device       *struct {
		ID            string `json:"id"`
		VolumePercent int    `json:"volume_percent"`
	} `json:"device"`
}

func (p apiPlayback) status() Status {
	status := Status{
		IsPlaying:  p.IsPlaying,
		ProgressMS: p.ProgressMS,
		Shuffle:    p.ShuffleState,
		Repeat:     p.RepeatState != "" && p.RepeatState != "off",
	}
	if p.Item != nil {
		stub := p.Item.stub()
		status.Track = &stub
		status.DurationMS = p.Item.DurationMS
	}
	if p.Device != nil {
		status.Volume = p.Device.VolumePercent
	}
	return status
}

func (b *HTTPBackend) request(ctx context.Context, player models.Player) (*resty.Request, error) {
	if len(player.Credentials) == 0 {
		return nil, fmt.Errorf("%w: player %s has no credentials", store.ErrUpstream, player.Slug)
	}
	req := b.client.R().SetContext(ctx).SetAuthToken(string(player.Credentials))
	return req, nil
}

func withDevice(req *resty.Request, player models.Player) *resty.Request {
	if player.DeviceID != nil && *player.DeviceID != "" {
		req.SetQueryParam("device_id", *player.DeviceID)
	}
	return req
}

func check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", store.ErrUpstream, op, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s: status %d", store.ErrUpstream, op, resp.StatusCode())
	}
	return nil
}

func (b *HTTPBackend) Search(ctx context.Context, player models.Player, query string, limit int) ([]models.TrackStub, error) {
	req, err := b.request(ctx, player)
	if err != nil {
		return nil, err
	}
	var out struct {
		Tracks struct {
			Items []apiTrack `json:"items"`
		} `json:"tracks"`
	}
	resp, err := req.
		SetQueryParams(map[string]string{"q": query, "type": "track", "limit": strconv.Itoa(limit)}).
		SetResult(&out).
		Get("/search")
	if err := check(resp, err, "search"); err != nil {
		return nil, err
	}
	stubs := make([]models.TrackStub, 0, len(out.Tracks.Items))
	for _, item := range out.Tracks.Items {
		stubs = append(stubs, item.stub())
	}
	return stubs, nil
}

func (b *HTTPBackend) Track(ctx context.Context, player models.Player, id string) (models.Track, error) {
	req, err := b.request(ctx, player)
	if err != nil {
		return models.Track{}, err
	}
	var out apiTrack
	resp, err := req.SetPathParam("id", id).SetResult(&out).Get("/tracks/{id}")
	if err := check(resp, err, "track"); err != nil {
		return models.Track{}, err
	}
	stub := out.stub()
	return models.Track{BackendID: stub.ID, Name: stub.Name, Artists: stub.Artists}, nil
}

func (b *HTTPBackend) AddToQueue(ctx context.Context, player models.Player, id string) error {
	req, err := b.request(ctx, player)
	if err != nil {
		return err
	}
	resp, err := withDevice(req, player).SetQueryParam("uri", "spotify:track:"+url.PathEscape(id)).Post("/me/player/queue")
	return check(resp, err, "add to queue")
}

func (b *HTTPBackend) command(ctx context.Context, player models.Player, method, path, op string, params map[string]string) error {
	req, err := b.request(ctx, player)
	if err != nil {
		return err
	}
	req = withDevice(req, player).SetQueryParams(params)
	resp, err := req.Execute(method, path)
	return check(resp, err, op)
}

func (b *HTTPBackend) Play(ctx context.Context, player models.Player) error {
	return b.command(ctx, player, resty.MethodPut, "/me/player/play", "play", nil)
}

func (b *HTTPBackend) Pause(ctx context.Context, player models.Player) error {
	return b.command(ctx, player, resty.MethodPut, "/me/player/pause", "pause", nil)
}

func (b *HTTPBackend) Next(ctx context.Context, player models.Player) error {
	return b.command(ctx, player, resty.MethodPost, "/me/player/next", "next", nil)
}

func (b *HTTPBackend) Previous(ctx context.Context, player models.Player) error {
	return b.command(ctx, player, resty.MethodPost, "/me/player/previous", "previous", nil)
}

func (b *HTTPBackend) SetVolume(ctx context.Context, player models.Player, volume int) error {
	return b.command(ctx, player, resty.MethodPut, "/me/player/volume", "volume", map[string]string{"volume_percent": strconv.Itoa(volume)})
}

func (b *HTTPBackend) SetShuffle(ctx context.Context, player models.Player, on bool) error {
	return b.command(ctx, player, resty.MethodPut, "/me/player/shuffle", "shuffle", map[string]string{"state": strconv.FormatBool(on)})
}

func (b *HTTPBackend) SetRepeat(ctx context.Context, player models.Player, on bool) error {
	state := "off"
	if on {
		state = "context"
	}
	return b.command(ctx, player, resty.MethodPut, "/me/player/repeat", "repeat", map[string]string{"state": state})
}

func (b *HTTPBackend) CurrentlyPlaying(ctx context.Context, player models.Player) (Status, error) {
	return b.playback(ctx, player, "/me/player/currently-playing", "currently playing")
}

func (b *HTTPBackend) Playback(ctx context.Context, player models.Player) (Status, error) {
	return b.playback(ctx, player, "/me/player", "playback")
}

// playback treats 204 as "nothing is playing".
func (b *HTTPBackend) playback(ctx context.Context, player models.Player, path, op string) (Status, error) {
	req, err := b.request(ctx, player)
	if err != nil {
		return Status{}, err
	}
	var out apiPlayback
	resp, err := req.SetResult(&out).Get(path)
	if err := check(resp, err, op); err != nil {
		return Status{}, err
	}
	if resp.StatusCode() == 204 {
		return Status{}, nil
	}
	return out.status(), nil
}
