package payload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// PageSize documents requested per page
const PageSize = 5000

// ErrTransient network failure, 5xx or 429; worth another attempt.
var ErrTransient = errors.New("transient fetch error")

//go:generate mockgen -destination=mocks/source.go -package=mocks . Source

// Source of the points drawn on a tile
type Source interface {
	Points(ctx context.Context, q Query) ([]Point, error)
}

// ClientOptions data service location and retry policy
type ClientOptions struct {
	BaseURL    string
	Retries    int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// Client reads trees and species categories from the data service REST API.
type Client struct {
	base       string
	http       *http.Client
	retries    int
	retryDelay time.Duration
	log        logrus.FieldLogger
}

func NewClient(opts ClientOptions, log logrus.FieldLogger) *Client {
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		base:       opts.BaseURL,
		http:       &http.Client{Timeout: opts.Timeout},
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		log:        log.WithField("component", "payload"),
	}
}

type treesPage struct {
	Docs        []treeDoc `json:"docs"`
	HasNextPage bool      `json:"hasNextPage"`
}

type treeDoc struct {
	Lat     float64         `json:"lat"`
	Lon     float64         `json:"lon"`
	Species json.RawMessage `json:"species"`
}

// species is either an id (depth 0) or a populated document
type speciesDoc struct {
	Category json.RawMessage `json:"category"`
}

func (d treeDoc) point() Point {
	p := Point{Lat: d.Lat, Lon: d.Lon}
	var sp speciesDoc
	if len(d.Species) == 0 || json.Unmarshal(d.Species, &sp) != nil {
		return p
	}
	p.CategoryID = refID(sp.Category)
	return p
}

// refID reads a relationship that is a bare id or an object with an id.
func refID(raw json.RawMessage) *int {
	if len(raw) == 0 {
		return nil
	}
	var id int
	if json.Unmarshal(raw, &id) == nil {
		return &id
	}
	var obj struct {
		ID *int `json:"id"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.ID
	}
	return nil
}

// Points pages through every tree inside q.BBox.
func (c *Client) Points(ctx context.Context, q Query) ([]Point, error) {
	var points []Point
	for page := 1; ; page++ {
		var body treesPage
		if err := c.getJSON(ctx, c.treesURL(q, page), &body); err != nil {
			return nil, err
		}
		for _, d := range body.Docs {
			points = append(points, d.point())
		}
		if !body.HasNextPage {
			return points, nil
		}
	}
}

func (c *Client) treesURL(q Query, page int) string {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(PageSize))
	v.Set("page", strconv.Itoa(page))
	v.Set("depth", "2")
	v.Set("where[lat][greater_than_equal]", formatFloat(q.BBox.LatBottom))
	v.Set("where[lat][less_than_equal]", formatFloat(q.BBox.LatTop))
	v.Set("where[lon][greater_than_equal]", formatFloat(q.BBox.LonLeft))
	v.Set("where[lon][less_than_equal]", formatFloat(q.BBox.LonRight))
	if q.CategoryID != nil {
		v.Set("where[species.category.id][equals]", strconv.Itoa(*q.CategoryID))
	}
	return c.base + "/api/trees?" + v.Encode()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// getJSON retries transient failures with linear backoff, attempt * retryDelay.
func (c *Client) getJSON(ctx context.Context, u string, out interface{}) error {
	var err error
	for attempt := 1; attempt <= c.retries; attempt++ {
		err = c.fetch(ctx, u, out)
		if err == nil || !errors.Is(err, ErrTransient) {
			return err
		}
		if attempt == c.retries {
			break
		}
		c.log.Debugf("fetch %s attempt %d/%d failed, details: %s", u, attempt, c.retries, err)

		select {
		case <-time.After(time.Duration(attempt) * c.retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("fetch %s after %d attempts: %w", u, c.retries, err)
}

func (c *Client) fetch(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: status code %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("payload api error: %d - %s", resp.StatusCode, text)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", u, err)
	}
	return nil
}
