// Package playlist turns a resolved HLS playlist URL into per-quality
// stream sources.
package playlist

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"

	"media-extractor-go/pkg/httpclient"
	"media-extractor-go/pkg/logging"
	"media-extractor-go/pkg/types"
	"media-extractor-go/pkg/urlutil"
)

// ErrPlaylistFetch is returned when the playlist cannot be downloaded or is
// not a playlist at all.
var ErrPlaylistFetch = errors.New("playlist fetch failed")

// NameFunc turns a quality label into the name shown to the user.
type NameFunc func(quality string) string

// Resolver fetches and expands HLS playlists.
type Resolver struct {
	client *httpclient.Client
	log    *logging.Logger
}

// NewResolver creates a new playlist resolver.
func NewResolver(client *httpclient.Client, log *logging.Logger) *Resolver {
	return &Resolver{
		client: client,
		log:    log.WithComponent("playlist"),
	}
}

// variant is one parsed EXT-X-STREAM-INF entry.
type variant struct {
	uri       string
	bandwidth uint32
	height    int
}

// ExtractFromHLS fetches playlistURL with the given referer and returns one
// StreamSource per variant of a master playlist, or a single source for a
// media playlist. Every source carries all of subs. Malformed variants are
// skipped; a master playlist with no usable variants yields an empty slice.
func (r *Resolver) ExtractFromHLS(ctx context.Context, playlistURL, referer string, subs []types.SubtitleTrack, nameGen NameFunc) ([]types.StreamSource, error) {
	if nameGen == nil {
		nameGen = func(q string) string { return q }
	}
	origin := urlutil.Origin(referer)

	headers := map[string]string{"Accept": "*/*"}
	if referer != "" {
		headers["Referer"] = referer
	}
	if origin != "" {
		headers["Origin"] = origin
	}

	resp, err := r.client.Get(ctx, playlistURL, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaylistFetch, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: status %d", ErrPlaylistFetch, resp.StatusCode)
	}

	body := resp.String()
	if !strings.HasPrefix(strings.TrimSpace(strings.TrimPrefix(body, "\ufeff")), "#EXTM3U") {
		return nil, fmt.Errorf("%w: response is not an m3u8 playlist", ErrPlaylistFetch)
	}

	if !strings.Contains(body, "#EXT-X-STREAM-INF") {
		return []types.StreamSource{
			types.NewStreamSource(playlistURL, nameGen(types.DefaultQuality), referer, origin, subs),
		}, nil
	}

	variants := r.parseMaster(body, playlistURL)
	sort.SliceStable(variants, func(i, j int) bool {
		if variants[i].height != variants[j].height {
			return variants[i].height > variants[j].height
		}
		return variants[i].bandwidth > variants[j].bandwidth
	})

	sources := make([]types.StreamSource, 0, len(variants))
	for _, v := range variants {
		sources = append(sources, types.NewStreamSource(v.uri, nameGen(qualityLabel(v)), referer, origin, subs))
	}

	r.log.Debug("resolved master playlist", "url", playlistURL, "variants", len(sources))
	return sources, nil
}

// parseMaster splits a master playlist into per-variant blocks and decodes
// each on its own, so one broken EXT-X-STREAM-INF line costs only its variant.
func (r *Resolver) parseMaster(body, playlistURL string) []variant {
	var (
		variants []variant
		seen     = make(map[string]bool)
		inf      string
	)

	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF"):
			if inf != "" {
				r.log.Debug("skipping variant without uri", "line", inf)
			}
			inf = line
		case strings.HasPrefix(line, "#"):
			continue
		case inf != "":
			v, err := decodeVariant(inf, line)
			inf = ""
			if err != nil {
				r.log.Debug("skipping malformed variant", "uri", line, "error", err)
				continue
			}
			v.uri = urlutil.ResolveURL(v.uri, playlistURL)
			if seen[v.uri] {
				continue
			}
			seen[v.uri] = true
			variants = append(variants, v)
		}
	}
	if err := scanner.Err(); err != nil {
		r.log.Debug("stopped reading master playlist early", "error", err)
	}
	return variants
}

// decodeVariant parses one EXT-X-STREAM-INF line and its URI with the strict
// m3u8 decoder.
func decodeVariant(inf, uri string) (variant, error) {
	block := "#EXTM3U\n" + inf + "\n" + uri + "\n"
	pl, listType, err := m3u8.DecodeFrom(strings.NewReader(block), true)
	if err != nil {
		return variant{}, err
	}
	if listType != m3u8.MASTER {
		return variant{}, errors.New("not a master playlist entry")
	}

	master := pl.(*m3u8.MasterPlaylist)
	if len(master.Variants) != 1 || master.Variants[0] == nil {
		return variant{}, errors.New("no variant decoded")
	}
	mv := master.Variants[0]
	if mv.URI == "" {
		return variant{}, errors.New("variant has no uri")
	}
	if mv.Bandwidth == 0 {
		return variant{}, errors.New("variant has no bandwidth")
	}

	return variant{
		uri:       mv.URI,
		bandwidth: mv.Bandwidth,
		height:    parseHeight(mv.Resolution),
	}, nil
}

// parseHeight reads the height from a "1280x720" resolution.
func parseHeight(resolution string) int {
	_, h, ok := strings.Cut(strings.ToLower(resolution), "x")
	if !ok {
		return 0
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height < 0 {
		return 0
	}
	return height
}

func qualityLabel(v variant) string {
	if v.height > 0 {
		return strconv.Itoa(v.height) + "p"
	}
	return bandwidthLabel(v.bandwidth)
}

// bandwidthLabel renders bits per second as "1.5 Mbps" or "800 Kbps".
func bandwidthLabel(bps uint32) string {
	if bps >= 1_000_000 {
		s := strconv.FormatFloat(float64(bps)/1_000_000, 'f', 1, 64)
		return strings.TrimSuffix(s, ".0") + " Mbps"
	}
	return strconv.FormatUint(uint64(bps/1000), 10) + " Kbps"
}
