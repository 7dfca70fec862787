package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"trainwatch/internal/types"
)

// maxResponseBodyRead limits how much of an error response body is read for
// diagnostics.
const maxResponseBodyRead = 4096

// fetchRequest carries the validated inputs of a FetchRoute call. Train
// numbers are fixed five-digit numeric strings; anything else is rejected
// before a network call is made.
type fetchRequest struct {
	TrainNumber string `validate:"required,len=5,numeric"`
}

// Wire DTOs for the upstream route API. Coordinates arrive as strings and
// are parsed leniently: a malformed or out-of-range value yields a station
// with no position rather than a failed fetch.
type routeDTO struct {
	TrainNumber string       `json:"train_number"`
	TrainName   string       `json:"train_name"`
	Stations    []stationDTO `json:"stations"`
}

type stationDTO struct {
	Name         string `json:"name"`
	Code         string `json:"code"`
	Sequence     int    `json:"sequence"`
	Latitude     string `json:"latitude"`
	Longitude    string `json:"longitude"`
	Arrival      string `json:"scheduled_arrival"`
	Departure    string `json:"scheduled_departure"`
	DelayMinutes int    `json:"delay_minutes"`
}

// HTTPProvider fetches routes from an upstream rail-data API through the
// resilient BaseClient.
type HTTPProvider struct {
	baseURL  string
	client   *BaseClient
	validate *validator.Validate
	logger   *slog.Logger
}

// Compile-time assertion that HTTPProvider implements types.RouteProvider.
var _ types.RouteProvider = (*HTTPProvider)(nil)

// NewHTTPProvider creates an HTTPProvider against the given base URL.
func NewHTTPProvider(baseURL string, client *BaseClient, logger *slog.Logger) *HTTPProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPProvider{
		baseURL:  baseURL,
		client:   client,
		validate: validator.New(),
		logger:   logger,
	}
}

// FetchRoute returns the ordered station list for a train number.
func (p *HTTPProvider) FetchRoute(ctx context.Context, trainNumber string) (*types.Route, error) {
	if err := p.validate.Struct(fetchRequest{TrainNumber: trainNumber}); err != nil {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidTrainNumber,
			"train number must be a five-digit numeric string",
			err,
			map[string]any{"train_number": trainNumber},
		)
	}

	url := fmt.Sprintf("%s/trains/%s/route", p.baseURL, trainNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "building route request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeNotFoundTrip,
			fmt.Sprintf("no route found for train %s", trainNumber),
			nil,
			map[string]any{"train_number": trainNumber},
		)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))
		return nil, types.NewAppError(
			types.ErrCodeUpstreamProviderUnavailable,
			fmt.Sprintf("route provider returned %d: %s", resp.StatusCode, string(snippet)),
			nil,
		)
	}

	var dto routeDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamProviderUnavailable,
			"route provider returned an undecodable body",
			err,
		)
	}

	route := p.routeFromDTO(ctx, dto, trainNumber)
	if err := route.Validate(); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidRoute,
			fmt.Sprintf("route provider returned an invalid route for train %s", trainNumber),
			err,
		)
	}
	return route, nil
}

// routeFromDTO maps the wire format to the domain model, parsing
// coordinates leniently.
func (p *HTTPProvider) routeFromDTO(ctx context.Context, dto routeDTO, trainNumber string) *types.Route {
	route := &types.Route{
		TrainNumber: dto.TrainNumber,
		TrainName:   dto.TrainName,
	}
	if route.TrainNumber == "" {
		route.TrainNumber = trainNumber
	}

	for _, s := range dto.Stations {
		station := types.Station{
			Name:               s.Name,
			Code:               s.Code,
			SequenceIndex:      s.Sequence,
			ScheduledArrival:   s.Arrival,
			ScheduledDeparture: s.Departure,
			DelayMinutes:       s.DelayMinutes,
		}
		if point, ok := parseCoordinates(s.Latitude, s.Longitude); ok {
			station.Position = point
		} else if s.Latitude != "" || s.Longitude != "" {
			p.logger.WarnContext(ctx, "ignoring unparseable station coordinates",
				"station", s.Name,
				"latitude", s.Latitude,
				"longitude", s.Longitude,
			)
		}
		route.Stations = append(route.Stations, station)
	}
	return route
}

// parseCoordinates parses a lat/lon string pair. Empty, malformed, or
// out-of-range values yield an invalid point.
func parseCoordinates(latStr, lonStr string) (types.GeoPoint, bool) {
	if latStr == "" || lonStr == "" {
		return types.GeoPoint{}, false
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return types.GeoPoint{}, false
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return types.GeoPoint{}, false
	}
	point := types.NewGeoPoint(lat, lon)
	if !point.InRange() {
		return types.GeoPoint{}, false
	}
	return point, true
}
