// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/jcodagnone/mapimport/utils/httputils"
)

// DefaultGoogleMapsURL is the Google Maps Geocoding API endpoint.
const DefaultGoogleMapsURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleMapsGeocoder uses the Google Maps Geocoding API in reverse mode.
type GoogleMapsGeocoder struct {
	apiKey     string
	endpoint   string
	language   string
	httpClient *http.Client
}

// NewGoogleMapsGeocoder creates a new Google Maps geocoder. An empty endpoint
// means DefaultGoogleMapsURL.
func NewGoogleMapsGeocoder(apiKey, endpoint, language string, opts httputils.ClientOptions) (*GoogleMapsGeocoder, error) {
	if apiKey == "" {
		return nil, errors.New("google maps geocoder requires an API key")
	}

	if endpoint == "" {
		endpoint = DefaultGoogleMapsURL
	}

	return &GoogleMapsGeocoder{
		apiKey:     apiKey,
		endpoint:   endpoint,
		language:   language,
		httpClient: httputils.NewClient(opts),
	}, nil
}

// Name implements ReverseGeocoder.
func (g *GoogleMapsGeocoder) Name() string {
	return "google_maps"
}

type googleMapsResponse struct {
	Results []struct {
		FormattedAddress  string `json:"formatted_address"`
		AddressComponents []struct {
			LongName string   `json:"long_name"`
			Types    []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
	Status       string `json:"status"` // OK, ZERO_RESULTS, etc.
	ErrorMessage string `json:"error_message"`
}

// Reverse implements ReverseGeocoder.
func (g *GoogleMapsGeocoder) Reverse(ctx context.Context, lat, lon float64) (*Result, error) {
	params := url.Values{}
	params.Set("latlng", fmt.Sprintf("%f,%f", lat, lon))
	params.Set("key", g.apiKey)

	if g.language != "" {
		params.Set("language", g.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "building request", Err: err}
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyHTTPError(resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	var gmResp googleMapsResponse
	if err := json.Unmarshal(raw, &gmResp); err != nil {
		return nil, &GeocodingError{Type: ErrorTypeMalformedResponse, Message: "decoding response", Err: err}
	}

	if err := classifyGoogleStatus(gmResp.Status, gmResp.ErrorMessage); err != nil {
		return nil, err
	}

	if len(gmResp.Results) == 0 {
		return nil, &GeocodingError{Type: ErrorTypeNotFound, Message: "no results found"}
	}

	result := gmResp.Results[0]

	var addr Address

	for _, c := range result.AddressComponents {
		has := func(t string) bool { return slices.Contains(c.Types, t) }

		switch {
		case has("country"):
			addr.Country = c.LongName
		case has("administrative_area_level_1"):
			addr.Region = c.LongName
		case has("locality"):
			addr.City = c.LongName
		case has("sublocality"), has("sublocality_level_1"):
			addr.Suburb = c.LongName
		case has("neighborhood"):
			addr.Neighbourhood = c.LongName
		case has("route"):
			addr.Road = c.LongName
		case has("postal_code"):
			addr.Postcode = c.LongName
		}
	}

	return &Result{
		DisplayName: result.FormattedAddress,
		Address:     addr,
		Raw:         raw,
	}, nil
}

func classifyGoogleStatus(status, message string) error {
	msg := strings.TrimSpace("google maps status " + status + " " + message)

	switch status {
	case "OK":
		return nil
	case "ZERO_RESULTS":
		return &GeocodingError{Type: ErrorTypeNotFound, Message: msg}
	case "OVER_QUERY_LIMIT":
		return &GeocodingError{Type: ErrorTypeRateLimit, Message: msg}
	case "OVER_DAILY_LIMIT", "REQUEST_DENIED":
		return &GeocodingError{Type: ErrorTypeQuotaExceeded, Message: msg}
	case "INVALID_REQUEST":
		return &GeocodingError{Type: ErrorTypeInvalidRequest, Message: msg}
	default:
		return &GeocodingError{Type: ErrorTypeUnknown, Message: msg}
	}
}
