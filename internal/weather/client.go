// Package weather fetches today's and this week's forecast for the device's
// position from the weather backend.
package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tidwall/gjson"
)

const maxBodyBytes = 1 << 20

type Today struct {
	MinTemp     float64 `json:"min_temp"`
	MaxTemp     float64 `json:"max_temp"`
	Description string  `json:"weather_description"`
	RainInfo    string  `json:"rain_info,omitempty"`
}

type RainDate struct {
	Date        string `json:"date"`
	Description string `json:"description"`
}

type Week struct {
	RainDates []RainDate `json:"rain_dates"`
}

type Client struct {
	endpoint string
	http     *http.Client
	locator  Locator
	opts     LocatorOptions
	today    *expirable.LRU[string, Today]
	week     *expirable.LRU[string, Week]
	logger   *slog.Logger
}

type Options struct {
	CacheSize int
	CacheTTL  time.Duration
	Locator   LocatorOptions
}

func New(endpoint string, httpClient *http.Client, locator Locator, opts Options, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("weather endpoint is required")
	}
	if locator == nil {
		return nil, errors.New("weather locator is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 64
	}
	if opts.Locator == (LocatorOptions{}) {
		opts.Locator = DefaultLocatorOptions()
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     httpClient,
		locator:  locator,
		opts:     opts.Locator,
		today:    expirable.NewLRU[string, Today](opts.CacheSize, nil, opts.CacheTTL),
		week:     expirable.NewLRU[string, Week](opts.CacheSize, nil, opts.CacheTTL),
		logger:   logger.With(slog.String("component", "weather")),
	}, nil
}

// Today returns the forecast for today at the current position.
func (c *Client) Today(ctx context.Context) (Today, error) {
	pos, err := c.locate(ctx)
	if err != nil {
		return Today{}, err
	}
	key := cacheKey(pos)
	if cached, ok := c.today.Get(key); ok {
		return cached, nil
	}

	doc, err := c.post(ctx, "today", pos)
	if err != nil {
		return Today{}, err
	}
	out := Today{
		MinTemp:     doc.Get("min_temp").Float(),
		MaxTemp:     doc.Get("max_temp").Float(),
		Description: doc.Get("weather_description").String(),
		RainInfo:    doc.Get("rain_info").String(),
	}
	c.today.Add(key, out)
	return out, nil
}

// Week returns the days with rain in the coming week.
func (c *Client) Week(ctx context.Context) (Week, error) {
	pos, err := c.locate(ctx)
	if err != nil {
		return Week{}, err
	}
	key := cacheKey(pos)
	if cached, ok := c.week.Get(key); ok {
		return cached, nil
	}

	doc, err := c.post(ctx, "week", pos)
	if err != nil {
		return Week{}, err
	}
	out := Week{RainDates: []RainDate{}}
	doc.Get("rain_dates").ForEach(func(_, v gjson.Result) bool {
		out.RainDates = append(out.RainDates, RainDate{
			Date:        v.Get("date").String(),
			Description: v.Get("description").String(),
		})
		return true
	})
	c.week.Add(key, out)
	return out, nil
}

func (c *Client) locate(ctx context.Context) (Position, error) {
	lctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	pos, err := c.locator.Locate(lctx, c.opts)
	if err != nil {
		return Position{}, fmt.Errorf("locate device: %w", err)
	}
	return pos, nil
}

func (c *Client) post(ctx context.Context, kind string, pos Position) (gjson.Result, error) {
	form := url.Values{
		"latitude":  {strconv.FormatFloat(pos.Latitude, 'f', -1, 64)},
		"longitude": {strconv.FormatFloat(pos.Longitude, 'f', -1, 64)},
	}
	target := c.endpoint + "/" + kind + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("weather %s request: %w", kind, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return gjson.Result{}, fmt.Errorf("weather %s returned status %s", kind, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read weather %s reply: %w", kind, err)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("weather %s reply is not valid json", kind)
	}
	c.logger.Debug("weather fetched", slog.String("kind", kind), slog.Int("bytes", len(body)))
	return gjson.ParseBytes(body), nil
}

func cacheKey(pos Position) string {
	return strconv.FormatFloat(pos.Latitude, 'f', 3, 64) + "," + strconv.FormatFloat(pos.Longitude, 'f', 3, 64)
}
