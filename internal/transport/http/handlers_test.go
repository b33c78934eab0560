package httptransport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexaudit/internal/artifact"
	"lexaudit/internal/export"
	"lexaudit/internal/pipeline"
	"lexaudit/internal/platform/logger"
	"lexaudit/internal/receipt"
	"lexaudit/internal/rules"
	"lexaudit/pkg/platform/audit"
)

func testRulesFS() fstest.MapFS {
	return fstest.MapFS{
		"law_rules.json": {Data: []byte(`{
			"federal": {"anchors": []},
			"categories": {
				"driver_licensing": {"federal_sources": [], "commercial_nexus_required": false},
				"other": {"federal_sources": [], "commercial_nexus_required": false}
			},
			"constitutional": {"rights_mapping": {}}
		}`)},
		"programs.json": {Data: []byte(`{
			"programs": [{"id": "nhtsa_402", "name": "Highway Safety", "type": "grant", "notes": ""}],
			"category_to_programs": {"other": ["nhtsa_402"], "driver_licensing": ["nhtsa_402"]}
		}`)},
		"doctrine_map.json":      {Data: []byte(`{"doctrines": {}, "rules": []}`)},
		"federal_doctrines.json": {Data: []byte(`{"doctrines": []}`)},
		"preemption_rules.json":  {Data: []byte(`{"rules": []}`)},
		"rights_tests.json":      {Data: []byte(`{"tests": []}`)},
		"validity_map.json":      {Data: []byte(`{"rules": [], "constitutional_hooks": {}, "grounds_labels": {}}`)},
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := artifact.NewInMemoryStore()
	events := audit.NewInMemoryStore()
	log := logger.New()
	publisher := audit.NewPublisher(events, log)
	loader := rules.NewLoader(testRulesFS())

	h := NewHandler(
		pipeline.New(store, loader, publisher, nil, log),
		store,
		export.NewService(store, log),
		receipt.NewIssuer("test-signing-key"),
		events,
		publisher,
		log,
	)
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func createRun(t *testing.T, srv *httptest.Server) createRunResponse {
	t.Helper()
	body := `{
		"jurisdiction": {"state": "WI"},
		"event": {"type": "traffic_stop"},
		"driver_context": {"vehicle_use": "personal"},
		"statutes_text": "343.05 - Operating without a license"
	}`
	resp, err := http.Post(srv.URL+"/runs", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out createRunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHandleCreateRun(t *testing.T) {
	srv := newTestServer(t)

	out := createRun(t, srv)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, pipeline.StatusCompleted, out.Status)
	require.Len(t, out.Stages, 6)
	for _, stage := range out.Stages {
		assert.Equal(t, "ok", stage.Status, stage.Stage)
	}
}

func TestHandleCreateRun_Validation(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/runs", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "validation_failed", body["error"])
}

func TestHandleCreateRun_MalformedJSON(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/runs", "application/json", strings.NewReader(`{not json`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleGetArtifact(t *testing.T) {
	srv := newTestServer(t)
	run := createRun(t, srv)

	t.Run("returns stored artifact", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/runs/" + run.RunID + "/artifacts/classification")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var cls struct {
			DriverType     string `json:"driver_type"`
			SuspectedBasis string `json:"suspected_basis"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&cls))
		assert.Equal(t, "private", cls.DriverType)
		assert.Equal(t, "licensing_only", cls.SuspectedBasis)
	})

	t.Run("unknown key", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/runs/" + run.RunID + "/artifacts/bogus")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown run", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/runs/no-such-run/artifacts/classification")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHandleGetReport(t *testing.T) {
	srv := newTestServer(t)
	run := createRun(t, srv)

	resp, err := http.Get(srv.URL + "/runs/" + run.RunID + "/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out reportResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, run.RunID, out.Bundle.RunID)
	assert.Contains(t, out.HTML, "Constitutional Audit Report")
	require.NotNil(t, out.Receipt)
	assert.Equal(t, run.RunID, out.Receipt.RunID)
	assert.Equal(t, receipt.Algorithm, out.Receipt.Algorithm)
	assert.NotEmpty(t, out.Receipt.Token)
}

func TestHandleGetReport_NoRun(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/runs/no-such-run/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandleVerifyReceipt(t *testing.T) {
	srv := newTestServer(t)
	run := createRun(t, srv)

	resp, err := http.Get(srv.URL + "/runs/" + run.RunID + "/report")
	require.NoError(t, err)
	var rep reportResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
	resp.Body.Close()

	// Re-fetch the canonical JSON the receipt was issued over.
	bundleJSON, err := json.MarshalIndent(rep.Bundle, "", "  ")
	require.NoError(t, err)

	payload, err := json.Marshal(verifyReceiptRequest{
		Content: string(bundleJSON),
		Digest:  rep.Receipt.Digest,
		Token:   rep.Receipt.Token,
	})
	require.NoError(t, err)

	vresp, err := http.Post(srv.URL+"/receipts/verify", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer vresp.Body.Close()
	require.Equal(t, http.StatusOK, vresp.StatusCode)

	var verification receipt.Verification
	require.NoError(t, json.NewDecoder(vresp.Body).Decode(&verification))
	assert.True(t, verification.Match)
	assert.True(t, verification.TokenValid)
	assert.Equal(t, run.RunID, verification.RunID)
}

func TestHandleVerifyReceipt_Validation(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/receipts/verify", "application/json", strings.NewReader(`{"content": "x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleListAuditEvents(t *testing.T) {
	srv := newTestServer(t)
	run := createRun(t, srv)

	resp, err := http.Get(srv.URL + "/runs/" + run.RunID + "/audit")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out listAuditResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, run.RunID, out.RunID)
	require.NotEmpty(t, out.Events)
	assert.Equal(t, audit.ActionRunStarted, out.Events[0].Action)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
