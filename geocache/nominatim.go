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
	"strconv"
	"strings"

	"github.com/jcodagnone/mapimport/utils/httputils"
)

// DefaultNominatimURL is the public OpenStreetMap Nominatim instance.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// NominatimOptions configures NewNominatimGeocoder.
type NominatimOptions struct {
	BaseURL string
	// UserAgent is the attribution identifier the usage policy requires on
	// every request.
	UserAgent string
	// Email is sent as the email parameter when set.
	Email string
	// Language is sent as accept-language when set.
	Language string
	HTTP     httputils.ClientOptions
}

// NominatimGeocoder reverse geocodes through a Nominatim server.
type NominatimGeocoder struct {
	baseURL  string
	email    string
	language string
	client   *http.Client
}

// NewNominatimGeocoder creates a Nominatim client. A user agent is mandatory.
func NewNominatimGeocoder(opts NominatimOptions) (*NominatimGeocoder, error) {
	if strings.TrimSpace(opts.UserAgent) == "" {
		return nil, errors.New("nominatim requires an identifying user agent")
	}

	base := opts.BaseURL
	if base == "" {
		base = DefaultNominatimURL
	}

	httpOpts := opts.HTTP
	httpOpts.UserAgent = opts.UserAgent

	return &NominatimGeocoder{
		baseURL:  strings.TrimRight(base, "/"),
		email:    opts.Email,
		language: opts.Language,
		client:   httputils.NewClient(httpOpts),
	}, nil
}

// Name implements ReverseGeocoder.
func (g *NominatimGeocoder) Name() string {
	return "nominatim"
}

type nominatimResponse struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
	Error       string            `json:"error"`
}

// Reverse implements ReverseGeocoder.
func (g *NominatimGeocoder) Reverse(ctx context.Context, lat, lon float64) (*Result, error) {
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")
	params.Set("zoom", "18")
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))

	if g.email != "" {
		params.Set("email", g.email)
	}

	if g.language != "" {
		params.Set("accept-language", g.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/reverse?"+params.Encode(), nil)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "building request", Err: err}
	}

	resp, err := g.client.Do(req)
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

	var nr nominatimResponse
	if err := json.Unmarshal(raw, &nr); err != nil {
		return nil, &GeocodingError{Type: ErrorTypeMalformedResponse, Message: "decoding response", Err: err}
	}

	if nr.Error != "" {
		return nil, &GeocodingError{Type: ErrorTypeNotFound, Message: fmt.Sprintf("nominatim: %s", nr.Error)}
	}

	if nr.DisplayName == "" {
		return nil, &GeocodingError{Type: ErrorTypeMalformedResponse, Message: "response without display_name"}
	}

	return &Result{
		DisplayName: nr.DisplayName,
		Address:     nominatimAddress(nr.Address),
		Raw:         raw,
	}, nil
}

// first returns the first non-empty value among keys.
func first(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}

	return ""
}

func nominatimAddress(m map[string]string) Address {
	return Address{
		Country:       m["country"],
		Region:        first(m, "state", "region", "province", "county"),
		City:          first(m, "city", "town", "village", "municipality", "hamlet"),
		Suburb:        first(m, "suburb", "city_district", "district", "borough", "quarter"),
		Neighbourhood: first(m, "neighbourhood", "residential", "quarter"),
		Road:          first(m, "road", "pedestrian", "footway", "path"),
		Postcode:      m["postcode"],
	}
}
