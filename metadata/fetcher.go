package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"rulehelper/types"
)

// Fetcher pulls live entity schema from the Targetprocess REST API by
// sampling real records and reading their shape.
type Fetcher struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

func NewFetcher(domain, token string) *Fetcher {
	domain = strings.TrimSuffix(domain, "/")
	return &Fetcher{
		baseURL: fmt.Sprintf("https://%s/api/v1", domain),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
}

func (f *Fetcher) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", f.token)
	params.Set("format", "json")

	reqURL := fmt.Sprintf("%s/%s?%s", f.baseURL, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("targetprocess API returned status %d for %s", resp.StatusCode, endpoint)
	}

	return io.ReadAll(resp.Body)
}

type entityListResponse struct {
	Items []map[string]json.RawMessage `json:"Items"`
}

type namedRef struct {
	Name string `json:"Name"`
}

type customField struct {
	Name string `json:"Name"`
}

// FetchEntityMetadata samples up to 25 records of the entity type and derives
// its field, state and relationship sets from what the records carry.
func (f *Fetcher) FetchEntityMetadata(ctx context.Context, entityType string) (*types.EntityMetadata, error) {
	params := url.Values{}
	params.Set("take", "25")
	params.Set("include", "[CustomFields,EntityState,Project]")

	body, err := f.get(ctx, entityType+"s", params)
	if err != nil {
		return nil, fmt.Errorf("fetch %s records: %w", entityType, err)
	}

	var list entityListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode %s records: %w", entityType, err)
	}
	if len(list.Items) == 0 {
		return nil, fmt.Errorf("no %s records returned", entityType)
	}

	meta := extractFromRecords(list.Items, entityType)

	if len(meta.States) > 0 {
		states, err := f.fetchProcessStates(ctx, entityType)
		if err != nil {
			f.logger.Warn("failed to fetch process states", "entity", entityType, "error", err)
		} else {
			meta.ProcessStates = states
		}
	}

	meta.Source = types.SourceLive
	meta.FetchedAt = time.Now()
	return meta, nil
}

func extractFromRecords(items []map[string]json.RawMessage, entityType string) *types.EntityMetadata {
	standard := make(map[string]bool)
	custom := make(map[string]bool)
	states := make(map[string]bool)
	relationships := make(map[string]bool)

	for _, item := range items {
		for field, raw := range item {
			if field == "ResourceType" || field == "CustomFields" {
				continue
			}
			standard[field] = true

			switch field {
			case "EntityState":
				var ref namedRef
				if json.Unmarshal(raw, &ref) == nil && ref.Name != "" {
					states[ref.Name] = true
				}
			case "Project":
				var ref namedRef
				if json.Unmarshal(raw, &ref) == nil && ref.Name != "" {
					relationships["Project: "+ref.Name] = true
				}
			}
		}

		if raw, ok := item["CustomFields"]; ok {
			var fields []customField
			if json.Unmarshal(raw, &fields) == nil {
				for _, cf := range fields {
					if cf.Name != "" {
						custom[cf.Name] = true
					}
				}
			}
		}
	}

	return &types.EntityMetadata{
		EntityType:     entityType,
		StandardFields: sortedKeys(standard),
		CustomFields:   sortedKeys(custom),
		States:         sortedKeys(states),
		Relationships:  sortedKeys(relationships),
	}
}

type processListResponse struct {
	Items []struct {
		EntityStates []struct {
			ID         int      `json:"Id"`
			Name       string   `json:"Name"`
			IsInitial  bool     `json:"IsInitial"`
			IsPlanned  bool     `json:"IsPlanned"`
			IsFinal    bool     `json:"IsFinal"`
			EntityType namedRef `json:"EntityType"`
		} `json:"EntityStates"`
	} `json:"Items"`
}

func (f *Fetcher) fetchProcessStates(ctx context.Context, entityType string) ([]types.ProcessState, error) {
	params := url.Values{}
	params.Set("take", "50")
	params.Set("include", "[EntityStates[EntityType,Name,IsInitial,IsPlanned,IsFinal]]")
	params.Set("where", fmt.Sprintf("EntityStates.EntityType.Name=='%s'", entityType))

	body, err := f.get(ctx, "Processes", params)
	if err != nil {
		return nil, err
	}

	var list processListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, err
	}

	var states []types.ProcessState
	for _, process := range list.Items {
		for _, state := range process.EntityStates {
			if state.EntityType.Name != entityType {
				continue
			}
			states = append(states, types.ProcessState{
				ID:        state.ID,
				Name:      state.Name,
				IsInitial: state.IsInitial,
				IsPlanned: state.IsPlanned,
				IsFinal:   state.IsFinal,
			})
		}
	}
	return states, nil
}

// TestConnection checks credentials by asking for the logged-in user context.
func (f *Fetcher) TestConnection(ctx context.Context) bool {
	body, err := f.get(ctx, "Context", nil)
	if err != nil {
		f.logger.Warn("targetprocess connection test failed", "error", err)
		return false
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	_, ok := payload["LoggedUser"]
	return ok
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
