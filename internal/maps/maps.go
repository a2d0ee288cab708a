package maps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"fleetsolve/internal/model"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api"

// ErrNoAPIKey is returned when the proxy is called without a configured key.
var ErrNoAPIKey = errors.New("maps api key not configured")

// UpstreamError reports a non-OK status from the Maps Web API. Message is
// always populated, from error_message when the API sends one.
type UpstreamError struct {
	Status  string
	Message string
}

func (e *UpstreamError) Error() string { return "maps: " + e.Message }

// Client is a thin proxy over the Google Maps Web API. It never feeds the
// solver; distances there come from haversine. Construct with New.
type Client struct {
	apiKey   string
	baseURL  string
	http     *http.Client
	cache    *redis.Client
	cacheTTL time.Duration
}

// Config carries the knobs read from the environment by the caller. Cache
// is optional; when nil every directions call goes upstream.
type Config struct {
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	Cache    *redis.Client
	CacheTTL time.Duration
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	return &Client{
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     &http.Client{Timeout: cfg.Timeout},
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

// VehicleProfile is the routing profile applied for a fleet vehicle type
// when the request does not spell out avoid/restrictions itself.
type VehicleProfile struct {
	Mode         string
	Avoid        []string
	Restrictions []string
}

var vehicleProfiles = map[string]VehicleProfile{
	"semi_truck": {Mode: "TRUCK", Avoid: []string{"tolls", "highways"}, Restrictions: []string{"maxWeight:40000", "maxHeight:4.2", "maxWidth:2.55"}},
	"truck":      {Mode: "TRUCK", Avoid: []string{"tolls"}, Restrictions: []string{"maxWeight:7500", "maxHeight:4.0", "maxWidth:2.5"}},
	"van":        {Mode: "TRUCK", Restrictions: []string{"maxWeight:3500", "maxHeight:3.5", "maxWidth:2.2"}},
	"minibus":    {Mode: "BUS", Avoid: []string{"tolls"}, Restrictions: []string{"maxWeight:5000", "maxHeight:3.8", "maxWidth:2.5"}},
	"bus":        {Mode: "BUS", Avoid: []string{"tolls", "highways"}, Restrictions: []string{"maxWeight:18000", "maxHeight:4.0", "maxWidth:2.55"}},
	"car":        {Mode: "CAR"},
}

// ProfileFor returns the profile for a vehicle type, falling back to car
// for unknown types.
func ProfileFor(vehicleType string) VehicleProfile {
	if p, ok := vehicleProfiles[vehicleType]; ok {
		return p
	}
	return vehicleProfiles["car"]
}

// DirectionsRequest describes one routing query. Explicit Avoid and
// Restrictions win over the vehicle profile's.
type DirectionsRequest struct {
	Origin       model.Coordinate   `json:"origin"`
	Destination  model.Coordinate   `json:"destination"`
	Waypoints    []model.Coordinate `json:"waypoints,omitempty"`
	VehicleType  string             `json:"vehicleType,omitempty"`
	Avoid        []string           `json:"avoid,omitempty"`
	Restrictions []string           `json:"restrictions,omitempty"`
}

// Directions fetches a route and returns the full upstream payload. OK
// responses are cached in Redis under maps:dir:<hash> when a cache is
// configured; cache failures fall through to the upstream.
func (c *Client) Directions(ctx context.Context, req DirectionsRequest) (map[string]any, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	p := url.Values{}
	p.Set("origin", latLng(req.Origin))
	p.Set("destination", latLng(req.Destination))
	if len(req.Waypoints) > 0 {
		pts := make([]string, len(req.Waypoints))
		for i, w := range req.Waypoints {
			pts[i] = latLng(w)
		}
		p.Set("waypoints", strings.Join(pts, "|"))
	}
	avoid, restrictions := req.Avoid, req.Restrictions
	if req.VehicleType != "" {
		prof := ProfileFor(req.VehicleType)
		p.Set("vehicleType", prof.Mode)
		if len(avoid) == 0 {
			avoid = prof.Avoid
		}
		if len(restrictions) == 0 {
			restrictions = prof.Restrictions
		}
	}
	if len(avoid) > 0 {
		p.Set("avoid", strings.Join(avoid, "|"))
	}
	if len(restrictions) > 0 {
		p.Set("restrictions", strings.Join(restrictions, "|"))
	}

	key := ""
	if c.cache != nil {
		sum := sha256.Sum256([]byte(p.Encode()))
		key = "maps:dir:" + hex.EncodeToString(sum[:8])
		raw, err := c.cache.Get(ctx, key).Bytes()
		if err == nil {
			var out map[string]any
			if json.Unmarshal(raw, &out) == nil {
				return out, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			log.Printf("maps: cache get: %v", err)
		}
	}

	data, err := c.doGet(ctx, "/directions/json", p)
	if err != nil {
		return nil, err
	}
	out, err := decodeBody(data, "directions")
	if err != nil {
		return nil, err
	}
	if key != "" {
		if err := c.cache.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
			log.Printf("maps: cache set: %v", err)
		}
	}
	return out, nil
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location model.Coordinate `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves an address to the first result's coordinate.
func (c *Client) Geocode(ctx context.Context, address string) (model.Coordinate, error) {
	var out geocodeResponse
	p := url.Values{}
	p.Set("address", address)
	if err := c.geocodeQuery(ctx, p, &out); err != nil {
		return model.Coordinate{}, err
	}
	return out.Results[0].Geometry.Location, nil
}

// ReverseGeocode resolves a coordinate to the first result's formatted address.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	var out geocodeResponse
	p := url.Values{}
	p.Set("latlng", latLng(model.Coordinate{Lat: lat, Lng: lng}))
	if err := c.geocodeQuery(ctx, p, &out); err != nil {
		return "", err
	}
	return out.Results[0].FormattedAddress, nil
}

func (c *Client) geocodeQuery(ctx context.Context, p url.Values, out *geocodeResponse) error {
	if c.apiKey == "" {
		return ErrNoAPIKey
	}
	data, err := c.doGet(ctx, "/geocode/json", p)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("maps: decode geocode response: %w", err)
	}
	if out.Status != "OK" || len(out.Results) == 0 {
		return &UpstreamError{Status: out.Status, Message: orDefault(out.ErrorMessage, "geocoding error: "+out.Status)}
	}
	return nil
}

func (c *Client) doGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	params.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("maps: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("maps: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("maps: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("maps: status %d", resp.StatusCode)
	}
	return data, nil
}

// decodeBody parses an upstream payload and enforces status == "OK". The
// whole payload is returned so callers see routes, legs and warnings as
// the API sent them.
func decodeBody(data []byte, op string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("maps: decode %s response: %w", op, err)
	}
	status, _ := out["status"].(string)
	if status != "OK" {
		msg, _ := out["error_message"].(string)
		return nil, &UpstreamError{Status: status, Message: orDefault(msg, op+" error: "+status)}
	}
	return out, nil
}

func latLng(c model.Coordinate) string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
