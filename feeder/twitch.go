package feeder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.quadlink.org/quadlink"
	"go.quadlink.org/quadlink/logger"
)

const (
	gqlURL = "https://gql.twitch.tv/gql"

	// public web player client id, the same one the Twitch web client
	// and streamlink use
	gqlClientID = "kimne78kx3ncx6brgo4mv6wki5h0ko"

	usherURL = "https://usher.ttvnw.net/api/channel/hls"
)

// TwitchResolver resolves Twitch channels to live streams using the
// public GQL API. When a playlist proxy is configured, the master
// playlist URL points at the proxy instead of usher.
type TwitchResolver struct {
	httpClient    *http.Client
	proxyPlaylist string
	lowLatency    bool
}

// NewTwitchResolver creates a resolver. proxyPlaylist may be empty to
// use the direct usher playlist.
func NewTwitchResolver(proxyPlaylist string, lowLatency bool) *TwitchResolver {
	return &TwitchResolver{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		proxyPlaylist: strings.TrimRight(proxyPlaylist, "/"),
		lowLatency:    lowLatency,
	}
}

type gqlStreamResponse struct {
	Data struct {
		User *struct {
			DisplayName string `json:"displayName"`
			Login       string `json:"login"`
			Stream      *struct {
				ID    string `json:"id"`
				Title string `json:"title"`
				Game  *struct {
					DisplayName string `json:"displayName"`
				} `json:"game"`
			} `json:"stream"`
		} `json:"user"`
	} `json:"data"`
}

type gqlTokenResponse struct {
	Data struct {
		StreamPlaybackAccessToken *struct {
			Value     string `json:"value"`
			Signature string `json:"signature"`
		} `json:"streamPlaybackAccessToken"`
	} `json:"data"`
}

// Resolve fetches stream metadata for a channel. It returns (nil, nil)
// when the channel does not exist or is offline.
func (r *TwitchResolver) Resolve(ctx context.Context, channel string) (*quadlink.Stream, error) {
	log := logger.FromContext(ctx)

	streamURL := channel
	if !strings.HasPrefix(streamURL, "http") {
		streamURL = "https://twitch.tv/" + channel
	}
	login := channelLogin(streamURL)
	if login == "" {
		return nil, fmt.Errorf("cannot determine channel login from %q", channel)
	}

	var meta gqlStreamResponse
	metaQuery := map[string]any{
		"query": `query($login: String!) {
			user(login: $login) {
				displayName
				login
				stream { id title game { displayName } }
			}
		}`,
		"variables": map[string]any{"login": login},
	}
	if err := r.gql(ctx, metaQuery, &meta); err != nil {
		return nil, fmt.Errorf("stream metadata for %s: %w", login, err)
	}

	if meta.Data.User == nil {
		log.DebugContext(ctx, "channel not found", "url", streamURL)
		return nil, nil
	}
	if meta.Data.User.Stream == nil {
		log.DebugContext(ctx, "stream unavailable", "url", streamURL)
		return nil, nil
	}

	metadata := quadlink.Metadata{
		Author: meta.Data.User.DisplayName,
		Title:  meta.Data.User.Stream.Title,
	}
	if metadata.Author == "" {
		metadata.Author = login
	}
	if game := meta.Data.User.Stream.Game; game != nil {
		metadata.Category = game.DisplayName
	}

	masterURL, err := r.masterPlaylistURL(ctx, login)
	if err != nil {
		// metadata alone is still a usable candidate; the quad falls
		// back to the channel URL
		log.WarnContext(ctx, "could not build master playlist url", "url", streamURL, "err", err)
		masterURL = ""
	}

	return &quadlink.Stream{
		URL:       streamURL,
		Metadata:  metadata,
		MasterURL: masterURL,
	}, nil
}

// masterPlaylistURL builds the playable m3u8 URL for a live channel,
// via the configured proxy when one is set.
func (r *TwitchResolver) masterPlaylistURL(ctx context.Context, login string) (string, error) {
	params := url.Values{}
	params.Set("allow_source", "true")
	if r.lowLatency {
		params.Set("low_latency", "true")
	}

	if r.proxyPlaylist != "" {
		return fmt.Sprintf("%s/playlist/%s.m3u8?%s", r.proxyPlaylist, login, params.Encode()), nil
	}

	var token gqlTokenResponse
	tokenQuery := map[string]any{
		"query": `query($login: String!) {
			streamPlaybackAccessToken(
				channelName: $login,
				params: {platform: "web", playerBackend: "mediaplayer", playerType: "site"}
			) { value signature }
		}`,
		"variables": map[string]any{"login": login},
	}
	if err := r.gql(ctx, tokenQuery, &token); err != nil {
		return "", fmt.Errorf("playback access token: %w", err)
	}
	if token.Data.StreamPlaybackAccessToken == nil {
		return "", fmt.Errorf("no playback access token for %s", login)
	}

	params.Set("token", token.Data.StreamPlaybackAccessToken.Value)
	params.Set("sig", token.Data.StreamPlaybackAccessToken.Signature)
	return fmt.Sprintf("%s/%s.m3u8?%s", usherURL, login, params.Encode()), nil
}

func (r *TwitchResolver) gql(ctx context.Context, query map[string]any, out any) error {
	body, err := json.Marshal(query)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gqlURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Client-ID", gqlClientID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gql status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// channelLogin extracts the channel login from a Twitch URL.
func channelLogin(streamURL string) string {
	trimmed := strings.TrimRight(streamURL, "/")
	idx := strings.LastIndex(trimmed, "/")
	return strings.ToLower(trimmed[idx+1:])
}
