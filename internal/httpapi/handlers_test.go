package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"musicmatch-platform/internal/affinity"
	"musicmatch-platform/internal/auth"
	"musicmatch-platform/internal/callrequest"
	"musicmatch-platform/internal/presence"
	"musicmatch-platform/internal/rbac"
	"musicmatch-platform/internal/taste"

	"github.com/gin-gonic/gin"
)

func testRouter(h Handlers, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), userID, rbac.RoleMember)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.POST("/rank", h.RankCandidates)
	r.POST("/calls/request", h.RequestCall)
	r.POST("/calls/accept", h.AcceptCall)
	r.GET("/calls/last/:peer_id", h.LastCall)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestRequestCall_SelfPairIsBadRequest(t *testing.T) {
	h := Handlers{Calls: callrequest.NewService(callrequest.NewMemoryRepo())}
	r := testRouter(h, "alice")

	w := postJSON(t, r, "/calls/request", callPeerRequest{PeerID: "alice"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestRequestThenAcceptFlow(t *testing.T) {
	svc := callrequest.NewService(callrequest.NewMemoryRepo())

	alice := testRouter(Handlers{Calls: svc}, "alice")
	bob := testRouter(Handlers{Calls: svc}, "bob")

	w := postJSON(t, alice, "/calls/request", callPeerRequest{PeerID: "bob"})
	if w.Code != http.StatusOK {
		t.Fatalf("request: expected 200, got %d (%s)", w.Code, w.Body.String())
	}

	w = postJSON(t, bob, "/calls/accept", callPeerRequest{PeerID: "alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d (%s)", w.Code, w.Body.String())
	}

	var out callrequest.CallRequest
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.State != callrequest.StateAccepted {
		t.Fatalf("expected accepted, got %q", out.State)
	}
	if out.RoomID == "" {
		t.Fatalf("expected room id")
	}
}

func TestAcceptCall_StaleRequestIsNotFound(t *testing.T) {
	svc := callrequest.NewService(callrequest.NewMemoryRepo())
	bob := testRouter(Handlers{Calls: svc}, "bob")

	w := postJSON(t, bob, "/calls/accept", callPeerRequest{PeerID: "alice"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for stale accept, got %d", w.Code)
	}
}

func TestLastCall_NoHistoryIsNotFound(t *testing.T) {
	svc := callrequest.NewService(callrequest.NewMemoryRepo())
	r := testRouter(Handlers{Calls: svc}, "alice")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/calls/last/bob", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestRankCandidates(t *testing.T) {
	tasteSrc := taste.NewMemorySource()
	tasteSrc.Put("alice", taste.Vector{GenreWeights: map[string]float64{"chasidic": 0.8}})
	tasteSrc.Put("bob", taste.Vector{GenreWeights: map[string]float64{"chasidic": 0.8}})

	ranker := affinity.NewRanker(affinity.NewScorer(affinity.DefaultWeights()), tasteSrc, presence.NewMemorySource())
	r := testRouter(Handlers{Ranker: ranker}, "alice")

	w := postJSON(t, r, "/rank", rankRequest{Candidates: []affinity.Candidate{
		{UserID: "bob", BaseScore: 2},
		{UserID: "carol", BaseScore: 2},
	}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}

	var resp struct {
		Results []affinity.RankedCandidate `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Results) != 2 || resp.Results[0].UserID != "bob" {
		t.Fatalf("unexpected ranking: %+v", resp.Results)
	}
}

func TestRankCandidates_EmptyIsBadRequest(t *testing.T) {
	ranker := affinity.NewRanker(affinity.NewScorer(affinity.DefaultWeights()), taste.NewMemorySource(), presence.NewMemorySource())
	r := testRouter(Handlers{Ranker: ranker}, "alice")

	w := postJSON(t, r, "/rank", rankRequest{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
