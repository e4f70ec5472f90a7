package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/cloudshelf/cloudshelf/internal/models"
)

const tmdbBaseURL = "https://api.themoviedb.org/3"

// Match is the best catalog result for a folder title.
type Match struct {
	ID          int
	Title       string
	Overview    string
	PosterPath  string
	ReleaseDate string
	VoteAverage float64
	MediaType   models.MediaType
}

// Season holds the season-specific fields returned by a season lookup.
type Season struct {
	SeasonNumber int    `json:"season_number"`
	Name         string `json:"name"`
	Overview     string `json:"overview"`
	PosterPath   string `json:"poster_path"`
	AirDate      string `json:"air_date"`
}

// Client queries the TMDB API. An optional HTTP proxy can be configured
// for deployments where api.themoviedb.org is not directly reachable.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewClient(apiKey, proxyURL string) (*Client, error) {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	if proxyURL != "" {
		proxy, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid TMDB proxy URL: %w", err)
		}
		httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxy)}
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: tmdbBaseURL,
		client:  httpClient,
		// TMDB allows ~50 req/s; stay far below it since folder scans
		// already pace themselves.
		limiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 1),
	}, nil
}

type tmdbMultiResult struct {
	Results []struct {
		ID           int     `json:"id"`
		MediaType    string  `json:"media_type"`
		Title        string  `json:"title"`
		Name         string  `json:"name"`
		Overview     string  `json:"overview"`
		PosterPath   string  `json:"poster_path"`
		ReleaseDate  string  `json:"release_date"`
		FirstAirDate string  `json:"first_air_date"`
		VoteAverage  float64 `json:"vote_average"`
	} `json:"results"`
}

// Search runs a multi search for query and returns the best movie or TV
// match, or nil when nothing usable came back. A year hint biases
// selection toward results released that year but never discards an
// otherwise-valid first result.
func (c *Client) Search(ctx context.Context, query string, year *int) (*Match, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("TMDB API key not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/search/multi?api_key=%s&query=%s",
		c.baseURL, c.apiKey, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tmdb search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tmdb search failed: status %d", resp.StatusCode)
	}

	var result tmdbMultiResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("tmdb search: decode response: %w", err)
	}

	var matches []*Match
	for _, r := range result.Results {
		var mediaType models.MediaType
		switch r.MediaType {
		case "movie":
			mediaType = models.MediaTypeMovie
		case "tv":
			mediaType = models.MediaTypeTV
		default:
			// people, collections etc.
			continue
		}

		title := r.Title
		if title == "" {
			title = r.Name
		}
		dateStr := r.ReleaseDate
		if dateStr == "" {
			dateStr = r.FirstAirDate
		}

		matches = append(matches, &Match{
			ID:          r.ID,
			Title:       title,
			Overview:    r.Overview,
			PosterPath:  r.PosterPath,
			ReleaseDate: dateStr,
			VoteAverage: r.VoteAverage,
			MediaType:   mediaType,
		})
	}

	if len(matches) == 0 {
		return nil, nil
	}

	if year != nil && *year > 0 {
		want := fmt.Sprintf("%04d", *year)
		for _, m := range matches {
			if len(m.ReleaseDate) >= 4 && m.ReleaseDate[:4] == want {
				return m, nil
			}
		}
	}
	return matches[0], nil
}

// SeasonDetails fetches one season of a TV show.
func (c *Client) SeasonDetails(ctx context.Context, showID, seasonNumber int) (*Season, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("TMDB API key not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/tv/%d/season/%d?api_key=%s",
		c.baseURL, showID, seasonNumber, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tmdb season request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tmdb season lookup failed: status %d", resp.StatusCode)
	}

	var season Season
	if err := json.NewDecoder(resp.Body).Decode(&season); err != nil {
		return nil, fmt.Errorf("tmdb season: decode response: %w", err)
	}
	return &season, nil
}
