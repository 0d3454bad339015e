package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient("sheet-1", StaticTokenSource("static-token"), Options{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestReadColumn(t *testing.T) {
	t.Parallel()

	var gotMethod, gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if _, err := w.Write([]byte(`{"range":"'20250823'!C2:C1000","values":[["u1"],[],["u3"]]}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server)
	cells, err := client.ReadColumn(context.Background(), "20250823", "C", 2)
	if err != nil {
		t.Fatalf("ReadColumn: %v", err)
	}
	// Close waits for the handler, making the captured request safe to read.
	server.Close()

	want := []string{"u1", "", "u3"}
	if len(cells) != len(want) {
		t.Fatalf("unexpected cell count: got %d want %d", len(cells), len(want))
	}
	for i := range want {
		if cells[i] != want[i] {
			t.Fatalf("cell %d: got %q want %q", i, cells[i], want[i])
		}
	}

	if gotMethod != http.MethodGet {
		t.Fatalf("unexpected method: %q", gotMethod)
	}
	// Digit-only tab names must stay quoted or they parse as row references.
	if wantPath := "/v4/spreadsheets/sheet-1/values/'20250823'!C2:C"; gotPath != wantPath {
		t.Fatalf("unexpected path: got %q want %q", gotPath, wantPath)
	}
	if gotAuth != "Bearer static-token" {
		t.Fatalf("unexpected authorization header: %q", gotAuth)
	}
}

func TestReadColumnEmptyTab(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(`{"range":"'20250823'!A1:A1000"}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server)
	cells, err := client.ReadColumn(context.Background(), "20250823", "A", 1)
	if err != nil {
		t.Fatalf("ReadColumn: %v", err)
	}
	if len(cells) != 0 {
		t.Fatalf("expected no cells, got %q", cells)
	}
}

func TestAppendRows(t *testing.T) {
	t.Parallel()

	var gotMethod, gotPath string
	var gotQuery map[string][]string
	var gotBody valuesPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		if _, err := w.Write([]byte(`{}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server)
	rows := [][]string{{"Yahoo", "タイトル", "https://news.example.com/a1"}}
	if err := client.AppendRows(context.Background(), "20250823", rows); err != nil {
		t.Fatalf("AppendRows: %v", err)
	}
	server.Close()

	if gotMethod != http.MethodPost {
		t.Fatalf("unexpected method: %q", gotMethod)
	}
	if wantPath := "/v4/spreadsheets/sheet-1/values/'20250823':append"; gotPath != wantPath {
		t.Fatalf("unexpected path: got %q want %q", gotPath, wantPath)
	}
	if got := gotQuery["valueInputOption"]; len(got) != 1 || got[0] != "USER_ENTERED" {
		t.Fatalf("unexpected valueInputOption: %q", got)
	}
	if got := gotQuery["insertDataOption"]; len(got) != 1 || got[0] != "INSERT_ROWS" {
		t.Fatalf("unexpected insertDataOption: %q", got)
	}
	if len(gotBody.Values) != 1 || gotBody.Values[0][2] != "https://news.example.com/a1" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}

func TestAppendRowsSkipsEmptyInput(t *testing.T) {
	t.Parallel()

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	client := newTestClient(t, server)
	if err := client.AppendRows(context.Background(), "20250823", nil); err != nil {
		t.Fatalf("AppendRows: %v", err)
	}
	server.Close()

	if requests != 0 {
		t.Fatalf("expected no requests for empty input, got %d", requests)
	}
}

func TestUpdateRange(t *testing.T) {
	t.Parallel()

	var gotMethod, gotPath string
	var gotQuery map[string][]string
	var gotBody valuesPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		if _, err := w.Write([]byte(`{}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server)
	values := [][]string{{"ポジティブ"}, {""}, {"ニュートラル"}}
	if err := client.UpdateRange(context.Background(), "20250823", "M2:M4", values); err != nil {
		t.Fatalf("UpdateRange: %v", err)
	}
	server.Close()

	if gotMethod != http.MethodPut {
		t.Fatalf("unexpected method: %q", gotMethod)
	}
	if wantPath := "/v4/spreadsheets/sheet-1/values/'20250823'!M2:M4"; gotPath != wantPath {
		t.Fatalf("unexpected path: got %q want %q", gotPath, wantPath)
	}
	if got := gotQuery["valueInputOption"]; len(got) != 1 || got[0] != "USER_ENTERED" {
		t.Fatalf("unexpected valueInputOption: %q", got)
	}
	if len(gotBody.Values) != 3 || gotBody.Values[0][0] != "ポジティブ" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}

func TestEnsureTabSkipsExisting(t *testing.T) {
	t.Parallel()

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if _, err := w.Write([]byte(`{"sheets":[{"properties":{"title":"Yahoo"}},{"properties":{"title":"20250823"}}]}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server)
	if err := client.EnsureTab(context.Background(), "20250823"); err != nil {
		t.Fatalf("EnsureTab: %v", err)
	}
	server.Close()

	if requests != 1 {
		t.Fatalf("expected only the metadata request, got %d", requests)
	}
}

func TestEnsureTabAddsMissing(t *testing.T) {
	t.Parallel()

	var gotAddPath string
	var gotAdd batchUpdateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if _, err := w.Write([]byte(`{"sheets":[{"properties":{"title":"Yahoo"}}]}`)); err != nil {
				t.Errorf("write response: %v", err)
			}
			return
		}
		gotAddPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotAdd); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		if _, err := w.Write([]byte(`{}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server)
	if err := client.EnsureTab(context.Background(), "20250823"); err != nil {
		t.Fatalf("EnsureTab: %v", err)
	}
	server.Close()

	if wantPath := "/v4/spreadsheets/sheet-1:batchUpdate"; gotAddPath != wantPath {
		t.Fatalf("unexpected path: got %q want %q", gotAddPath, wantPath)
	}
	if len(gotAdd.Requests) != 1 || gotAdd.Requests[0].AddSheet == nil {
		t.Fatalf("unexpected batch update body: %+v", gotAdd)
	}
	if got := gotAdd.Requests[0].AddSheet.Properties.Title; got != "20250823" {
		t.Fatalf("unexpected tab title: %q", got)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		if _, err := w.Write([]byte(`{"error":{"message":"The caller does not have permission"}}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.ReadColumn(context.Background(), "20250823", "A", 1)
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "does not have permission") {
		t.Fatalf("error misses status or message: %v", err)
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient("  ", StaticTokenSource("t"), Options{}); err == nil {
		t.Fatal("expected error for blank spreadsheet id")
	}
	if _, err := NewClient("sheet-1", nil, Options{}); err == nil {
		t.Fatal("expected error for nil token source")
	}
}
