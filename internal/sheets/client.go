package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://sheets.googleapis.com"

// Options configure a Client beyond its spreadsheet binding.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Client is a values-API client bound to one spreadsheet. It implements the
// pipeline's record store surface.
type Client struct {
	spreadsheetID string
	baseURL       string
	tokens        TokenSource
	client        *http.Client
}

func NewClient(spreadsheetID string, tokens TokenSource, opts Options) (*Client, error) {
	id := strings.TrimSpace(spreadsheetID)
	if id == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: time.Minute}
	}

	return &Client{
		spreadsheetID: id,
		baseURL:       baseURL,
		tokens:        tokens,
		client:        client,
	}, nil
}

type valuesPayload struct {
	Values [][]string `json:"values"`
}

type valuesResponse struct {
	Range  string     `json:"range"`
	Values [][]string `json:"values"`
}

type spreadsheetMetadata struct {
	Sheets []struct {
		Properties struct {
			Title string `json:"title"`
		} `json:"properties"`
	} `json:"sheets"`
}

type batchUpdateRequest struct {
	Requests []batchUpdateEntry `json:"requests"`
}

type batchUpdateEntry struct {
	AddSheet *addSheetRequest `json:"addSheet,omitempty"`
}

type addSheetRequest struct {
	Properties sheetProperties `json:"properties"`
}

type sheetProperties struct {
	Title string `json:"title"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ReadColumn fetches one column from startRow to the end of the tab. Rows
// that exist but hold no value in the column come back as empty strings;
// rows past the last populated one are not reported at all.
func (c *Client) ReadColumn(ctx context.Context, tab, column string, startRow int) ([]string, error) {
	rangeRef := fmt.Sprintf("%s%d:%s", column, startRow, column)
	var payload valuesResponse
	if err := c.doJSON(ctx, http.MethodGet, c.valuesURL(tab, rangeRef, "", nil), nil, &payload); err != nil {
		return nil, fmt.Errorf("read column %s of %s: %w", column, tab, err)
	}

	cells := make([]string, len(payload.Values))
	for i, row := range payload.Values {
		if len(row) > 0 {
			cells[i] = row[0]
		}
	}
	return cells, nil
}

// EnsureTab creates the named tab when the spreadsheet does not have it.
func (c *Client) EnsureTab(ctx context.Context, tab string) error {
	title := strings.TrimSpace(tab)
	if title == "" {
		return fmt.Errorf("tab name is required")
	}

	metaURL := fmt.Sprintf("%s/v4/spreadsheets/%s?fields=sheets.properties.title", c.baseURL, url.PathEscape(c.spreadsheetID))
	var meta spreadsheetMetadata
	if err := c.doJSON(ctx, http.MethodGet, metaURL, nil, &meta); err != nil {
		return fmt.Errorf("list tabs: %w", err)
	}
	for _, sheet := range meta.Sheets {
		if sheet.Properties.Title == title {
			return nil
		}
	}

	body := batchUpdateRequest{
		Requests: []batchUpdateEntry{{
			AddSheet: &addSheetRequest{Properties: sheetProperties{Title: title}},
		}},
	}
	updateURL := fmt.Sprintf("%s/v4/spreadsheets/%s:batchUpdate", c.baseURL, url.PathEscape(c.spreadsheetID))
	if err := c.doJSON(ctx, http.MethodPost, updateURL, body, nil); err != nil {
		return fmt.Errorf("add tab %s: %w", title, err)
	}
	return nil
}

// AppendRows adds rows after the tab's last populated row. USER_ENTERED lets
// the service interpret formulas and numbers the way a typed-in value would
// be.
func (c *Client) AppendRows(ctx context.Context, tab string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	query := url.Values{
		"valueInputOption": {"USER_ENTERED"},
		"insertDataOption": {"INSERT_ROWS"},
	}
	appendURL := c.valuesURL(tab, "", ":append", query)
	if err := c.doJSON(ctx, http.MethodPost, appendURL, valuesPayload{Values: rows}, nil); err != nil {
		return fmt.Errorf("append %d rows to %s: %w", len(rows), tab, err)
	}
	return nil
}

// UpdateRange overwrites an A1-style range with the given values.
func (c *Client) UpdateRange(ctx context.Context, tab, rangeRef string, values [][]string) error {
	query := url.Values{"valueInputOption": {"USER_ENTERED"}}
	if err := c.doJSON(ctx, http.MethodPut, c.valuesURL(tab, rangeRef, "", query), valuesPayload{Values: values}, nil); err != nil {
		return fmt.Errorf("update range %s of %s: %w", rangeRef, tab, err)
	}
	return nil
}

// valuesURL builds a values endpoint for a tab-scoped range. The tab name is
// always single-quoted; digit-only names parse as row references otherwise.
func (c *Client) valuesURL(tab, rangeRef, verb string, query url.Values) string {
	ref := "'" + strings.ReplaceAll(tab, "'", "''") + "'"
	if rangeRef != "" {
		ref += "!" + rangeRef
	}
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s%s", c.baseURL, url.PathEscape(c.spreadsheetID), url.PathEscape(ref), verb)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) doJSON(ctx context.Context, method, rawURL string, body, out any) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("sheets client is not initialized")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("mint access token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiErrorResponse
		if unmarshalErr := json.Unmarshal(respBody, &apiErr); unmarshalErr == nil {
			if msg := strings.TrimSpace(apiErr.Error.Message); msg != "" {
				return fmt.Errorf("spreadsheet API status %d: %s", resp.StatusCode, msg)
			}
		}
		return fmt.Errorf("spreadsheet API status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
