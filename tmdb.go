package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// MetadataClient talks to the TMDB-style metadata provider. All calls are
// plain JSON over HTTPS with the API key as a query parameter, bounded by
// the configured timeout.
type MetadataClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

func NewMetadataClient(baseURL, apiKey string, timeout time.Duration) *MetadataClient {
	return &MetadataClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: timeout,
		client:  &http.Client{},
	}
}

// TitleSummary is one row of a title search response.
type TitleSummary struct {
	ID          int64  `json:"id"`
	MediaKind   string `json:"media_kind"`
	Title       string `json:"title"`
	Overview    string `json:"overview"`
	ReleaseDate string `json:"release_date"`
	PosterPath  string `json:"poster_path"`
}

// CastMember is one credited actor on a title.
type CastMember struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Character string `json:"character"`
	Order     int    `json:"order"`
}

// TitleDetails is the decoded detail-with-credits payload for one title.
// This is the concrete type the metadata cache stores.
type TitleDetails struct {
	ID          int64        `json:"id"`
	MediaKind   string       `json:"media_kind"`
	Title       string       `json:"title"`
	Overview    string       `json:"overview"`
	ReleaseDate string       `json:"release_date"`
	Runtime     int          `json:"runtime"`
	Genres      []string     `json:"genres"`
	PosterPath  string       `json:"poster_path"`
	VoteAverage float64      `json:"vote_average"`
	Cast        []CastMember `json:"cast"`
}

// PersonCredit is one entry of a person's combined credits.
type PersonCredit struct {
	ID          int64  `json:"id"`
	MediaKind   string `json:"media_kind"`
	Title       string `json:"title"`
	Character   string `json:"character"`
	ReleaseDate string `json:"release_date"`
}

func (c *MetadataClient) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

type searchResponse struct {
	Results []struct {
		ID           int64  `json:"id"`
		Title        string `json:"title"`
		Name         string `json:"name"`
		Overview     string `json:"overview"`
		ReleaseDate  string `json:"release_date"`
		FirstAirDate string `json:"first_air_date"`
		PosterPath   string `json:"poster_path"`
	} `json:"results"`
}

// SearchTitles runs the provider's title search for the given media kind.
func (c *MetadataClient) SearchTitles(ctx context.Context, query, mediaKind string) ([]TitleSummary, error) {
	var resp searchResponse
	q := url.Values{"query": {query}}
	if err := c.getJSON(ctx, "/search/"+mediaKind, q, &resp); err != nil {
		return nil, UpstreamError{Provider: "metadata", Err: err}
	}

	results := make([]TitleSummary, 0, len(resp.Results))
	for _, r := range resp.Results {
		title := r.Title
		if title == "" {
			title = r.Name
		}
		release := r.ReleaseDate
		if release == "" {
			release = r.FirstAirDate
		}
		results = append(results, TitleSummary{
			ID:          r.ID,
			MediaKind:   mediaKind,
			Title:       title,
			Overview:    r.Overview,
			ReleaseDate: release,
			PosterPath:  r.PosterPath,
		})
	}
	return results, nil
}

type detailResponse struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Name         string `json:"name"`
	Overview     string `json:"overview"`
	ReleaseDate  string `json:"release_date"`
	FirstAirDate string `json:"first_air_date"`
	Runtime      int    `json:"runtime"`
	Genres       []struct {
		Name string `json:"name"`
	} `json:"genres"`
	PosterPath  string  `json:"poster_path"`
	VoteAverage float64 `json:"vote_average"`
	Credits     struct {
		Cast []CastMember `json:"cast"`
	} `json:"credits"`
}

// GetTitleDetails fetches a title's detail-with-credits record.
func (c *MetadataClient) GetTitleDetails(ctx context.Context, subjectID int64, mediaKind string) (*TitleDetails, error) {
	var resp detailResponse
	q := url.Values{"append_to_response": {"credits"}}
	path := "/" + mediaKind + "/" + strconv.FormatInt(subjectID, 10)
	if err := c.getJSON(ctx, path, q, &resp); err != nil {
		return nil, UpstreamError{Provider: "metadata", Err: err}
	}

	title := resp.Title
	if title == "" {
		title = resp.Name
	}
	release := resp.ReleaseDate
	if release == "" {
		release = resp.FirstAirDate
	}

	genres := make([]string, 0, len(resp.Genres))
	for _, g := range resp.Genres {
		genres = append(genres, g.Name)
	}

	// The full cast list can run to hundreds of rows; the page shows the
	// top billing only.
	cast := resp.Credits.Cast
	if len(cast) > 12 {
		cast = cast[:12]
	}

	return &TitleDetails{
		ID:          resp.ID,
		MediaKind:   mediaKind,
		Title:       title,
		Overview:    resp.Overview,
		ReleaseDate: release,
		Runtime:     resp.Runtime,
		Genres:      genres,
		PosterPath:  resp.PosterPath,
		VoteAverage: resp.VoteAverage,
		Cast:        cast,
	}, nil
}

type combinedCreditsResponse struct {
	Cast []struct {
		ID           int64  `json:"id"`
		MediaType    string `json:"media_type"`
		Title        string `json:"title"`
		Name         string `json:"name"`
		Character    string `json:"character"`
		ReleaseDate  string `json:"release_date"`
		FirstAirDate string `json:"first_air_date"`
	} `json:"cast"`
}

// GetPersonCredits fetches a person's combined movie and TV credits.
func (c *MetadataClient) GetPersonCredits(ctx context.Context, personID int64) ([]PersonCredit, error) {
	var resp combinedCreditsResponse
	path := "/person/" + strconv.FormatInt(personID, 10) + "/combined_credits"
	if err := c.getJSON(ctx, path, url.Values{}, &resp); err != nil {
		return nil, UpstreamError{Provider: "metadata", Err: err}
	}

	credits := make([]PersonCredit, 0, len(resp.Cast))
	for _, r := range resp.Cast {
		title := r.Title
		if title == "" {
			title = r.Name
		}
		release := r.ReleaseDate
		if release == "" {
			release = r.FirstAirDate
		}
		kind := r.MediaType
		if kind == "" {
			kind = MediaKindMovie
		}
		credits = append(credits, PersonCredit{
			ID:          r.ID,
			MediaKind:   kind,
			Title:       title,
			Character:   r.Character,
			ReleaseDate: release,
		})
	}
	return credits, nil
}
