package api_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/shopstudy/internal/adapters/http/api"
	"github.com/okian/shopstudy/internal/adapters/repository"
	service "github.com/okian/shopstudy/internal/app"
	"github.com/okian/shopstudy/internal/domain/assignment"
	"github.com/okian/shopstudy/internal/domain/model"
	"github.com/okian/shopstudy/internal/domain/types"
	"github.com/okian/shopstudy/internal/export"
	"github.com/okian/shopstudy/pkg/logger"
)

const adminPassword = "s3cret-Admin"

type harness struct {
	svc *service.Service
	mux *http.ServeMux
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store, err := repository.OpenFileStore(ctx, t.TempDir(), repository.WithLogger(logger.NewNop()))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	svc := service.New(
		service.WithStore(store),
		service.WithLogger(logger.NewNop()),
		service.WithAssigner(assignment.Fixed(types.ConditionControl)),
	)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop(ctx) })

	mux := http.NewServeMux()
	api.NewServer(svc, svc, api.WithAdminPassword(adminPassword)).Register(ctx, mux)
	return &harness{svc: svc, mux: mux}
}

func (h *harness) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.mux.ServeHTTP(w, req)
	return w
}

func (h *harness) create() model.Session {
	w := h.do(http.MethodPost, "/api/session", "")
	So(w.Code, ShouldEqual, http.StatusCreated)
	var s model.Session
	So(json.Unmarshal(w.Body.Bytes(), &s), ShouldBeNil)
	return s
}

func decodeSession(w *httptest.ResponseRecorder) model.Session {
	var s model.Session
	So(json.Unmarshal(w.Body.Bytes(), &s), ShouldBeNil)
	return s
}

func decodeError(w *httptest.ResponseRecorder) map[string]string {
	var e map[string]string
	So(json.Unmarshal(w.Body.Bytes(), &e), ShouldBeNil)
	return e
}

func TestSessionRoutes(t *testing.T) {
	Convey("Given a running API", t, func() {
		h := newHarness(t)
		ctx := context.Background()

		Convey("POST /api/session creates a session with a condition", func() {
			s := h.create()
			So(s.ParticipantID, ShouldNotBeEmpty)
			So(s.Condition, ShouldEqual, types.ConditionControl)
			So(s.ProductRatings, ShouldNotBeNil)
		})

		Convey("Scenario A: consent is stored and logged", func() {
			s := h.create()
			w := h.do(http.MethodPatch, "/api/session/"+s.ParticipantID+"/consent", `{"consentAge":true,"consentData":true}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			got := decodeSession(w)
			So(got.ConsentAge, ShouldBeTrue)
			So(got.ConsentData, ShouldBeTrue)

			events, err := h.svc.Events(ctx, s.ParticipantID)
			So(err, ShouldBeNil)
			var seen []types.EventType
			for _, ev := range events {
				seen = append(seen, ev.EventType)
			}
			So(seen, ShouldContain, types.EventConsentGiven)
		})

		Convey("Scenario B: two ratings of one product are both kept in order", func() {
			s := h.create()
			path := "/api/session/" + s.ParticipantID + "/rating"
			So(h.do(http.MethodPost, path, `{"productId":"c3","action":"interested"}`).Code, ShouldEqual, http.StatusOK)
			w := h.do(http.MethodPost, path, `{"productId":"c3","action":"not_interested","reason":"too dark"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			got := decodeSession(w)
			So(got.ProductRatings, ShouldHaveLength, 2)
			So(got.ProductRatings[0].Action, ShouldEqual, types.RatingInterested)
			So(got.ProductRatings[1].Action, ShouldEqual, types.RatingNotInterested)
			So(got.ProductRatings[1].Reason, ShouldEqual, "too dark")
		})

		Convey("Scenario C: an unknown participant is a 404 with no events", func() {
			w := h.do(http.MethodGet, "/api/session/does-not-exist", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decodeError(w)["code"], ShouldEqual, "not_found")

			w = h.do(http.MethodPatch, "/api/session/does-not-exist/consent", `{"consentAge":true,"consentData":true}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)

			events, err := h.svc.AllEvents(ctx)
			So(err, ShouldBeNil)
			So(events, ShouldBeEmpty)
		})

		Convey("Malformed payloads are rejected with no side effects", func() {
			s := h.create()
			base := "/api/session/" + s.ParticipantID
			cases := []struct{ path, body string }{
				{"/consent", `{"consentAge":true}`},
				{"/consent", `not json`},
				{"/pre-survey", `{"ageRange":"25-34","gender":"f","shoppingFrequency":"weekly","aiFamiliarity":9,"aiTrust":3}`},
				{"/requirements", `{}`},
				{"/guide-time", `{"guideViewStartTs":"2026-05-01T10:00:00Z"}`},
				{"/guide-time", `{"guideViewStartTs":"2026-05-01T10:00:00Z","guideContinueTs":"2026-05-01T09:00:00Z"}`},
				{"/choice", `{"choiceProductId":""}`},
				{"/choice", `{"choiceProductId":"unknown"}`},
				{"/post-survey", `{"satisfaction":0}`},
				{"/consent", `{"consentAge":true,"consentData":true} {"extra":1}`},
			}
			for _, c := range cases {
				w := h.do(http.MethodPatch, base+c.path, c.body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w)["code"], ShouldEqual, "bad_request")
			}
			for _, body := range []string{`{"productId":"c1","action":"maybe"}`, `{"action":"interested"}`, `{"productId":"zz","action":"interested"}`} {
				So(h.do(http.MethodPost, base+"/rating", body).Code, ShouldEqual, http.StatusBadRequest)
			}

			events, _ := h.svc.Events(ctx, s.ParticipantID)
			So(events, ShouldHaveLength, 1)
			got, _ := h.svc.GetSession(ctx, s.ParticipantID)
			So(got.UpdatedAt.Equal(s.UpdatedAt), ShouldBeTrue)
		})

		Convey("Oversized bodies are rejected", func() {
			s := h.create()
			big := `{"eventType":"x","eventData":{"blob":"` + strings.Repeat("a", 2<<20) + `"}}`
			w := h.do(http.MethodPost, "/api/session/"+s.ParticipantID+"/event", big)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("The remaining mutations round-trip", func() {
			s := h.create()
			base := "/api/session/" + s.ParticipantID

			w := h.do(http.MethodPatch, base+"/pre-survey", `{"ageRange":"25-34","gender":"f","shoppingFrequency":"weekly","aiFamiliarity":5,"aiTrust":3}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeSession(w).PreSurvey.AIFamiliarity, ShouldEqual, 5)

			w = h.do(http.MethodPatch, base+"/requirements", `{"requirements":{"amount":{"selected":["500_1000"],"skipped":false,"answeredAt":"2026-05-01T10:00:00Z"}}}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			got := decodeSession(w)
			So(got.NormalizedTarget.MinGrams, ShouldEqual, 501)
			So(got.DeviationFlags.AmountOutOfRange, ShouldBeTrue)

			w = h.do(http.MethodPatch, base+"/guide-time", `{"guideViewStartTs":"2026-05-01T10:00:00Z","guideContinueTs":"2026-05-01T10:00:30Z"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(*decodeSession(w).GuideReadSeconds, ShouldEqual, 30.0)

			w = h.do(http.MethodPatch, base+"/choice", `{"choiceProductId":"c6","choiceTimestamp":"2026-05-01T10:01:00Z"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(*decodeSession(w).ChoiceProductID, ShouldEqual, "c6")

			w = h.do(http.MethodPatch, base+"/post-survey", `{"satisfaction":5,"trust":5,"perceivedControl":4,"confidence":6,"wouldUseAgain":7,"comments":"fine"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeSession(w).PostSurvey.Comments, ShouldEqual, "fine")

			w = h.do(http.MethodPatch, base+"/complete", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeSession(w).CompletedAt, ShouldNotBeNil)

			w = h.do(http.MethodGet, base, "")
			So(w.Code, ShouldEqual, http.StatusOK)
			final := decodeSession(w)
			So(final.Completed(), ShouldBeTrue)
		})

		Convey("Generic events return 201 with the stored event", func() {
			w := h.do(http.MethodPost, "/api/session/anyone/event", `{"eventType":"step_entered","step":"amount","eventData":{"from":"starting","to":"amount"}}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			var ev model.Event
			So(json.Unmarshal(w.Body.Bytes(), &ev), ShouldBeNil)
			So(ev.ID, ShouldNotBeEmpty)
			So(ev.ParticipantID, ShouldEqual, "anyone")
			So(ev.Step, ShouldEqual, types.StepAmount)
			So(ev.EventData.String("to"), ShouldEqual, "amount")

			So(h.do(http.MethodPost, "/api/session/anyone/event", `{"step":"amount"}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Wrong methods are refused", func() {
			So(h.do(http.MethodDelete, "/api/session/x", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestAdminRoutes(t *testing.T) {
	Convey("Given an API with two sessions", t, func() {
		h := newHarness(t)
		a := h.create()
		time.Sleep(time.Millisecond)
		b := h.create()
		h.do(http.MethodPost, "/api/session/"+a.ParticipantID+"/rating", `{"productId":"c1","action":"interested"}`)

		Convey("Every password short of an exact match is refused", func() {
			for _, q := range []string{"", "?password=", "?password=S3CRET-ADMIN", "?password=s3cret-admin", "?password=s3cret-Admin%20", "?password=s3cret"} {
				for _, route := range []string{"/api/admin/sessions", "/api/admin/events", "/api/admin/export/jsonl", "/api/admin/export/csv"} {
					w := h.do(http.MethodGet, route+q, "")
					So(w.Code, ShouldEqual, http.StatusUnauthorized)
				}
			}
			So(h.do(http.MethodGet, "/api/admin/sessions", "", "X-Admin-Password", "wrong").Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("The header form is accepted", func() {
			So(h.do(http.MethodGet, "/api/admin/sessions", "", "X-Admin-Password", adminPassword).Code, ShouldEqual, http.StatusOK)
		})

		Convey("Sessions are listed newest first", func() {
			w := h.do(http.MethodGet, "/api/admin/sessions?password="+adminPassword, "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var list []model.Session
			So(json.Unmarshal(w.Body.Bytes(), &list), ShouldBeNil)
			So(list, ShouldHaveLength, 2)
			So(list[0].ParticipantID, ShouldEqual, b.ParticipantID)
		})

		Convey("Events are listed", func() {
			w := h.do(http.MethodGet, "/api/admin/events?password="+adminPassword, "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var list []model.Event
			So(json.Unmarshal(w.Body.Bytes(), &list), ShouldBeNil)
			So(list, ShouldHaveLength, 3)
		})

		Convey("The JSONL export has one line per session with nested events", func() {
			w := h.do(http.MethodGet, "/api/admin/export/jsonl?password="+adminPassword, "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Disposition"), ShouldStartWith, "attachment;")
			lines := strings.Split(strings.TrimRight(w.Body.String(), "\n"), "\n")
			So(lines, ShouldHaveLength, 2)

			all, _ := h.svc.AllEvents(context.Background())
			for _, line := range lines {
				var row struct {
					ParticipantID string         `json:"participantId"`
					Events        []*model.Event `json:"events"`
				}
				So(json.Unmarshal([]byte(line), &row), ShouldBeNil)
				var want []string
				for _, ev := range all {
					if ev.ParticipantID == row.ParticipantID {
						want = append(want, ev.ID)
					}
				}
				var got []string
				for _, ev := range row.Events {
					got = append(got, ev.ID)
				}
				So(got, ShouldResemble, want)
			}
		})

		Convey("The CSV export has a header and one row per session", func() {
			w := h.do(http.MethodGet, "/api/admin/export/csv?password="+adminPassword, "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "text/csv")
			records, err := csv.NewReader(bytes.NewReader(w.Body.Bytes())).ReadAll()
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 3)
			So(records[0], ShouldResemble, export.Columns)
		})
	})
}

// brokenDeps fails every call with a storage error.
type brokenDeps struct{ *service.Service }

var errDisk = errors.New("disk on fire")

func (brokenDeps) CreateSession(context.Context) (*model.Session, error) { return nil, errDisk }
func (brokenDeps) ListSessions(context.Context) ([]*model.Session, error) {
	return nil, errDisk
}

type staticStats map[string]interface{}

func (s staticStats) GetStats() map[string]interface{} { return s }

func TestServerFaults(t *testing.T) {
	Convey("Given dependencies whose storage fails", t, func() {
		mux := http.NewServeMux()
		api.NewServer(brokenDeps{service.New()}, staticStats{"started": true}, api.WithAdminPassword(adminPassword)).Register(context.Background(), mux)

		Convey("Creation returns 500 without leaking the cause", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/session", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(w.Body.String(), ShouldNotContainSubstring, "disk on fire")
		})

		Convey("Admin listing returns 500 after auth", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/sessions?password="+adminPassword, http.NoBody))
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("Stats and health are still served", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)

			w = httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	Convey("Given the CORS middleware with one allowed origin", t, func() {
		h := api.CORS([]string{"https://study.example"})(ok)

		Convey("An allowed origin is echoed", func() {
			req := httptest.NewRequest(http.MethodGet, "/x", http.NoBody)
			req.Header.Set("Origin", "https://study.example")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "https://study.example")
		})

		Convey("A preflight from an allowed origin gets 204", func() {
			req := httptest.NewRequest(http.MethodOptions, "/x", http.NoBody)
			req.Header.Set("Origin", "https://study.example")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusNoContent)
		})

		Convey("Other origins get no CORS headers", func() {
			req := httptest.NewRequest(http.MethodGet, "/x", http.NoBody)
			req.Header.Set("Origin", "https://evil.example")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			So(w.Header().Get("Access-Control-Allow-Origin"), ShouldBeEmpty)
			So(w.Code, ShouldEqual, http.StatusOK)
		})
	})

	Convey("Given the chained security headers", t, func() {
		h := api.Chain(ok, api.CORS([]string{"*"}), api.SecureHeaders(true))
		req := httptest.NewRequest(http.MethodGet, "/x", http.NoBody)
		req.Header.Set("Origin", "https://anywhere.example")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		So(w.Code, ShouldEqual, http.StatusOK)
		So(w.Header().Get("X-Frame-Options"), ShouldEqual, "DENY")
		So(w.Header().Get("X-Content-Type-Options"), ShouldEqual, "nosniff")
		So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
	})
}
