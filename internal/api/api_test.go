package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/lectern/internal/extraction"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/rangecheck"
	"github.com/starford/lectern/internal/readerservice"
	"github.com/starford/lectern/internal/registry"
	"github.com/starford/lectern/internal/testutil"
)

// testEnv sets up a registry, a service with a fixed clock, and a router.
// A non-empty authToken enables token mode.
func testEnv(t *testing.T, authToken string) http.Handler {
	t.Helper()
	reg, err := registry.Open(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	svc := readerservice.New(reg, readerservice.WithClock(func() time.Time { return testutil.Epoch }))
	return NewRouter(svc, authToken != "", authToken, nil)
}

// do sends a JSON request (body may be nil) and returns the recorder.
func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

// registerLibrary writes files into a fresh folder and registers it.
func registerLibrary(t *testing.T, router http.Handler, files map[string]string) (models.Library, string) {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	w := do(t, router, http.MethodPost, "/libraries", map[string]string{"folder": root})
	if w.Code != http.StatusOK {
		t.Fatalf("register status = %d, body = %s", w.Code, w.Body.String())
	}
	var lib models.Library
	decodeBody(t, w, &lib)
	if lib.ID == "" {
		t.Fatal("library id is empty")
	}
	return lib, root
}

func TestRegisterAndListLibraries(t *testing.T) {
	router := testEnv(t, "")
	lib, root := registerLibrary(t, router, nil)

	w := do(t, router, http.MethodGet, "/libraries", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var resp LibraryListResponse
	decodeBody(t, w, &resp)
	if len(resp.Libraries) != 1 {
		t.Fatalf("libraries = %d, want 1", len(resp.Libraries))
	}
	if resp.Libraries[0].LibraryID != lib.ID || resp.Libraries[0].FolderPath != root {
		t.Errorf("library = %+v", resp.Libraries[0])
	}
}

func TestRegisterRequiresFolder(t *testing.T) {
	router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/libraries", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestReviewEndpoints(t *testing.T) {
	router := testEnv(t, "")
	lib, _ := registerLibrary(t, router, map[string]string{"papers/book.md": testutil.NumberedLines(5)})
	base := "/libraries/" + lib.ID

	w := do(t, router, http.MethodPost, base+"/queue", NoteRequest{Path: "papers/book.md"})
	if w.Code != http.StatusOK {
		t.Fatalf("queue status = %d, body = %s", w.Code, w.Body.String())
	}
	var added AddResponse
	decodeBody(t, w, &added)
	if !added.OK || added.AlreadyExists {
		t.Errorf("add = %+v", added)
	}

	w = do(t, router, http.MethodGet, base+"/due", nil)
	var due DueResponse
	decodeBody(t, w, &due)
	if due.Total != 1 || due.Notes[0].Path != "papers/book.md" {
		t.Fatalf("due = %+v", due)
	}

	// Encoded slash in the wildcard path.
	w = do(t, router, http.MethodGet, base+"/notes/papers%2Fbook.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get note status = %d, body = %s", w.Code, w.Body.String())
	}
	var note models.Note
	decodeBody(t, w, &note)
	if note.Queue != models.QueueNew {
		t.Errorf("queue = %s, want new", note.Queue)
	}

	w = do(t, router, http.MethodPost, base+"/feedback", FeedbackRequest{Path: "papers/book.md", Feedback: "viewed"})
	if w.Code != http.StatusOK {
		t.Fatalf("feedback status = %d, body = %s", w.Code, w.Body.String())
	}
	var fb FeedbackResponse
	decodeBody(t, w, &fb)
	if fb.Queue != models.QueueProcessing {
		t.Errorf("queue after viewed = %s, want processing", fb.Queue)
	}

	w = do(t, router, http.MethodPost, base+"/feedback", FeedbackRequest{Path: "papers/book.md", Feedback: "easy"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid feedback status = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPost, base+"/move", MoveRequest{Path: "papers/book.md", Queue: "nowhere"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown queue status = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPost, base+"/move", MoveRequest{Path: "papers/book.md", Queue: "spaced-strict"})
	if w.Code != http.StatusOK {
		t.Fatalf("move status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodPost, base+"/forget", NoteRequest{Path: "papers/book.md"})
	if w.Code != http.StatusOK {
		t.Fatalf("forget status = %d", w.Code)
	}
	decodeBody(t, w, &note)
	if note.Queue != models.QueueNew {
		t.Errorf("queue after forget = %s, want new", note.Queue)
	}
}

func TestNotFound(t *testing.T) {
	router := testEnv(t, "")
	lib, _ := registerLibrary(t, router, nil)

	w := do(t, router, http.MethodGet, "/libraries/"+lib.ID+"/notes/missing.md", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing note status = %d, want 404", w.Code)
	}
	w = do(t, router, http.MethodGet, "/libraries/nope/due", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown library status = %d, want 404", w.Code)
	}
	w = do(t, router, http.MethodPost, "/libraries/"+lib.ID+"/queue", NoteRequest{Path: "missing.md"})
	if w.Code != http.StatusNotFound {
		t.Errorf("queue missing file status = %d, want 404", w.Code)
	}
}

func TestExtractEndpoints(t *testing.T) {
	router := testEnv(t, "")
	lib, _ := registerLibrary(t, router, map[string]string{"x.md": testutil.NumberedLines(10)})
	base := "/libraries/" + lib.ID

	if w := do(t, router, http.MethodPost, base+"/queue", NoteRequest{Path: "x.md"}); w.Code != http.StatusOK {
		t.Fatalf("queue status = %d", w.Code)
	}

	req := ExtractRequest{
		ParentPath: "x.md",
		Type:       "text-lines",
		Start:      PositionDTO{Line: 2},
		End:        PositionDTO{Line: 3},
	}
	w := do(t, router, http.MethodPost, base+"/extract", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("extract status = %d, body = %s", w.Code, w.Body.String())
	}
	var res extraction.Result
	decodeBody(t, w, &res)
	if res.ChildPath != "x/2-3-line-2-line.md" {
		t.Errorf("child path = %q", res.ChildPath)
	}

	w = do(t, router, http.MethodPost, base+"/extract", req)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", w.Code)
	}

	w = do(t, router, http.MethodGet, base+"/validate/"+res.ChildPath, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("validate status = %d, body = %s", w.Code, w.Body.String())
	}
	var check rangecheck.Result
	decodeBody(t, w, &check)
	if check.Status != rangecheck.StatusValid {
		t.Errorf("status = %s, want valid", check.Status)
	}

	w = do(t, router, http.MethodGet, base+"/expand/x.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expand status = %d", w.Code)
	}
	var children ChildrenResponse
	w = do(t, router, http.MethodGet, base+"/children/x.md", nil)
	decodeBody(t, w, &children)
	if len(children.Checks) != 1 || len(children.Expansion.Children) != 1 {
		t.Errorf("children = %+v", children)
	}
}

func TestExtractValidation(t *testing.T) {
	router := testEnv(t, "")
	lib, _ := registerLibrary(t, router, map[string]string{"x.md": testutil.NumberedLines(3)})
	base := "/libraries/" + lib.ID

	cases := map[string]ExtractRequest{
		"unknown type": {ParentPath: "x.md", Type: "audio", Start: PositionDTO{Line: 1}, End: PositionDTO{Line: 2}},
		"zero line":    {ParentPath: "x.md", Type: "text-lines", Start: PositionDTO{Line: 0}, End: PositionDTO{Line: 2}},
		"no parent":    {Type: "text-lines", Start: PositionDTO{Line: 1}, End: PositionDTO{Line: 2}},
		"reversed":     {ParentPath: "x.md", Type: "text-lines", Start: PositionDTO{Line: 3}, End: PositionDTO{Line: 1}},
		"zero page":    {ParentPath: "x.md", Type: "pdf-text", Start: PositionDTO{Page: 0, Line: 1}, End: PositionDTO{Page: 1, Line: 2}},
		"negative":     {ParentPath: "x.md", Type: "video-clip", Start: PositionDTO{Line: -1}, End: PositionDTO{Line: 5}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, base+"/extract", req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400, body = %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestExtractVideoClipFromSecondZero(t *testing.T) {
	router := testEnv(t, "")
	lib, _ := registerLibrary(t, router, map[string]string{"talk.md": "transcript\n"})
	base := "/libraries/" + lib.ID
	do(t, router, http.MethodPost, base+"/queue", NoteRequest{Path: "talk.md"})

	req := ExtractRequest{
		ParentPath: "talk.md",
		Type:       "video-clip",
		Start:      PositionDTO{Line: 0},
		End:        PositionDTO{Line: 30},
		Text:       "opening remarks",
	}
	w := do(t, router, http.MethodPost, base+"/extract", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body = %s", w.Code, w.Body.String())
	}
	var res extraction.Result
	decodeBody(t, w, &res)
	if res.Source.Range.Start.Line != 0 || res.Source.Range.End.Line != 30 {
		t.Errorf("range = %s", res.Source.Range)
	}
}

func TestFindRequiresQuery(t *testing.T) {
	router := testEnv(t, "")
	lib, _ := registerLibrary(t, router, map[string]string{"papers/attention.md": "a"})
	base := "/libraries/" + lib.ID

	if w := do(t, router, http.MethodGet, base+"/find", nil); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	do(t, router, http.MethodPost, base+"/queue", NoteRequest{Path: "papers/attention.md"})
	w := do(t, router, http.MethodGet, base+"/find?q=attn", nil)
	var resp FindResponse
	decodeBody(t, w, &resp)
	if len(resp.Paths) != 1 || resp.Paths[0] != "papers/attention.md" {
		t.Errorf("paths = %v", resp.Paths)
	}
}

func TestAuthMiddleware(t *testing.T) {
	router := testEnv(t, "secret")

	w := do(t, router, http.MethodGet, "/libraries", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/libraries", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/libraries", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("valid token status = %d, want 200", w.Code)
	}
}
