package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/kazilabs/mtihani/apps/api/echo"
	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/core/attempt"
	"github.com/kazilabs/mtihani/core/enrollment"
	"github.com/kazilabs/mtihani/core/exam"
	"github.com/kazilabs/mtihani/core/paper"
	"github.com/kazilabs/mtihani/storage/database/dummy"
	"github.com/kazilabs/mtihani/tests"
)

const (
	classID   = "class1"
	teacherID = "teacher1"
	studentID = "student1"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

func TestMain(m *testing.M) {
	core.Conf = &core.Config{
		TestMode:  true,
		Env:       "TEST",
		AppName:   "Mtihani",
		SecretKey: []byte("test-secret"),
		Server:    core.ServerConfig{JWTExpirationDelta: time.Hour},
	}
	os.Exit(m.Run())
}

// testApp wires a full server over the in-memory store, one per test.
type testApp struct {
	app   Server
	db    *dummydb.DB
	clock *core.FixedClock
}

func newTestApp(t *testing.T) testApp {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	clock := &core.FixedClock{T: time.Date(2021, 6, 1, 9, 0, 0, 0, time.UTC)}
	logger := testutil.NewTestLogger()

	examRepo := dummydb.NewExamRepository(db)
	enrRepo := dummydb.NewEnrollmentRepository(db)
	attRepo := dummydb.NewAttemptRepository(db)

	validate, translator := core.NewValidator()

	app := NewServer(&Options{
		DisableReqLogs: true,
		ExamSvc:        exam.NewService(examRepo, enrRepo, clock, logger),
		AttemptSvc:     attempt.NewService(attRepo, examRepo, enrRepo, clock, logger),
		Resolver:       paper.NewResolver(examRepo, enrRepo, dummydb.NewPaperStore(db), logger),
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
	})
	return testApp{app: app, db: db, clock: clock}
}

// seedReadyExam enrolls rolls 1..n ("student1".."studentN"), generates and
// binds papers, and publishes the exam.
func (ta testApp) seedReadyExam(t *testing.T, students, attemptsAllowed int) exam.Exam {
	t.Helper()
	ctx := context.Background()

	examRepo := dummydb.NewExamRepository(ta.db)
	enrRepo := dummydb.NewEnrollmentRepository(ta.db)
	for i := 1; i <= students; i++ {
		testutil.CreateEnrollment(t, enrRepo, classID, testutil.StudentID(i), i, enrollment.StatusActive)
	}

	ex := testutil.CreateExam(t, examRepo, classID, teacherID, 2, 60, attemptsAllowed, exam.StatusDraft)
	svc := exam.NewService(examRepo, enrRepo, ta.clock, testutil.NewTestLogger())
	if _, err := svc.GenerateAssignment(ctx, ex.ID, teacherID); err != nil {
		t.Fatalf("GenerateAssignment() failed: %v", err)
	}
	if _, err := svc.BindStudentPapers(ctx, ex.ID, teacherID); err != nil {
		t.Fatalf("BindStudentPapers() failed: %v", err)
	}
	examRepo.SetStatus(ex.ID, exam.StatusPublished)

	ex, err := examRepo.GetExamByID(ctx, ex.ID)
	if err != nil {
		t.Fatalf("GetExamByID() failed: %v", err)
	}
	return ex
}

type httpErr struct {
	Error string         `json:"error"`
	Code  core.ErrorKind `json:"code,omitempty"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, claims *Claims) string {
	t.Helper()
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func studentToken(t *testing.T, id string) string {
	return getToken(t, NewClaims(id, id, true, false, false))
}

func teacherToken(t *testing.T, id string) string {
	return getToken(t, NewClaims(id, id, false, true, false))
}

func adminToken(t *testing.T, id string) string {
	return getToken(t, NewClaims(id, id, false, false, true))
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}
