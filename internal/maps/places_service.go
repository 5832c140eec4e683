package maps

import (
	"context"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"
)

const maxPlaces = 5

// Place is a pickup or dropoff address suggestion.
type Place struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	PlaceID string `json:"place_id"`
}

// PlacesService handles interactions with Google Places API.
type PlacesService struct {
	client *maps.Client
}

// NewPlacesService creates a new PlacesService with the given API Key.
func NewPlacesService(apiKey string) (*PlacesService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &PlacesService{client: client}, nil
}

// Search returns address suggestions biased to Canada.
func (s *PlacesService) Search(ctx context.Context, query string) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	r := &maps.TextSearchRequest{
		Query:    query,
		Language: "en",
		Region:   "ca",
	}
	resp, err := s.client.TextSearch(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("places api error: %w", err)
	}
	return toPlaces(resp.Results), nil
}

func toPlaces(results []maps.PlacesSearchResult) []Place {
	seen := make(map[string]bool)
	var out []Place
	for _, result := range results {
		if result.FormattedAddress == "" || seen[result.PlaceID] {
			continue
		}
		seen[result.PlaceID] = true
		out = append(out, Place{
			Name:    result.Name,
			Address: result.FormattedAddress,
			PlaceID: result.PlaceID,
		})
		if len(out) >= maxPlaces {
			break
		}
	}
	return out
}
