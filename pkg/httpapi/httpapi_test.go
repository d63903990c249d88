package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nocauto/noc-engine/pkg/broker"
	"github.com/nocauto/noc-engine/pkg/cache/blobcache"
	"github.com/nocauto/noc-engine/pkg/credential"
	"github.com/nocauto/noc-engine/pkg/discovery"
	"github.com/nocauto/noc-engine/pkg/model"
	"github.com/nocauto/noc-engine/pkg/util"
)

type fakeCredentialRepo struct {
	saved map[string]*model.Credential
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{saved: make(map[string]*model.Credential)}
}

func (f *fakeCredentialRepo) Get(ctx context.Context, ownerUser, name string) (*model.Credential, error) {
	cred, ok := f.saved[ownerUser+"/"+name]
	if !ok {
		return nil, util.NewCommandError(util.KindMissingCredentials, name, "", "not found")
	}
	return cred, nil
}

func (f *fakeCredentialRepo) Put(ctx context.Context, cred *model.Credential) error {
	cp := *cred
	f.saved[cred.OwnerUser+"/"+cred.Name] = &cp
	return nil
}

func TestStatusForError_CommandErrorKinds(t *testing.T) {
	cases := []struct {
		kind util.ErrorKind
		want int
	}{
		{util.KindDeviceNotFound, http.StatusNotFound},
		{util.KindMissingCredentials, http.StatusBadRequest},
		{util.KindCacheConflict, http.StatusConflict},
		{util.KindBrokerUnavailable, http.StatusServiceUnavailable},
		{util.KindUnreachable, http.StatusInternalServerError},
	}
	for _, c := range cases {
		status, kind := statusForError(util.NewCommandError(c.kind, "d1", "", "detail"))
		if status != c.want {
			t.Errorf("kind %s: status = %d, want %d", c.kind, status, c.want)
		}
		if kind != c.kind {
			t.Errorf("kind = %s, want %s", kind, c.kind)
		}
	}
}

type fakeSchedulerStore struct {
	tasks map[string]*model.ScheduledTask
}

func newFakeSchedulerStore() *fakeSchedulerStore {
	return &fakeSchedulerStore{tasks: make(map[string]*model.ScheduledTask)}
}

func (f *fakeSchedulerStore) List(ctx context.Context) ([]model.ScheduledTask, error) {
	out := make([]model.ScheduledTask, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeSchedulerStore) Get(ctx context.Context, taskID string) (*model.ScheduledTask, error) {
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, util.NewCommandError(util.KindDeviceNotFound, taskID, "", "not found")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeSchedulerStore) Create(ctx context.Context, task *model.ScheduledTask, ownerUsername, ownerUserID string) error {
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeSchedulerStore) Update(ctx context.Context, task *model.ScheduledTask) error {
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeSchedulerStore) Delete(ctx context.Context, taskID string) error {
	if _, ok := f.tasks[taskID]; !ok {
		return util.NewCommandError(util.KindDeviceNotFound, taskID, "", "not found")
	}
	delete(f.tasks, taskID)
	return nil
}

func newTestServer(t *testing.T) (*Server, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	b := broker.New(client, "discovery-tasks", "workers")
	if err := b.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("EnsureGroup() error = %v", err)
	}

	return &Server{
		Orchestrator: discovery.NewOrchestrator(b),
		Blobs:        blobcache.New(client),
		Scheduler:    newFakeSchedulerStore(),
		Credentials:  credential.NewStore(newFakeCredentialRepo(), credential.DeriveKey("test-key")),
		Metrics:      NewMetrics(prometheus.NewRegistry()),
	}, mr
}

func TestHandleSaveCredential_RequiresUsernameHeader(t *testing.T) {
	s, _ := newTestServer(t)
	r := NewRouter(s)

	body, _ := json.Marshal(saveCredentialRequest{Name: "default", Username: "admin", Password: "hunter2"})
	req := httptest.NewRequest(http.MethodPost, "/credentials", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSaveCredential_SavesUnderCallerIdentity(t *testing.T) {
	s, _ := newTestServer(t)
	r := NewRouter(s)

	body, _ := json.Marshal(saveCredentialRequest{Name: "default", Username: "admin", Password: "hunter2"})
	req := httptest.NewRequest(http.MethodPost, "/credentials", bytes.NewReader(body))
	req.Header.Set(usernameHeader, "alice")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	username, password, err := s.Credentials.Resolve(context.Background(), "alice", "default")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if username != "admin" || password != "hunter2" {
		t.Errorf("Resolve() = (%q, %q), want (admin, hunter2)", username, password)
	}
}

func TestHandleCreateTask_InjectsCallerUsername(t *testing.T) {
	s, _ := newTestServer(t)
	r := NewRouter(s)

	body, _ := json.Marshal(scheduledTaskRequest{
		Name: "nightly-baseline", TaskIdentifier: model.TaskCreateBaseline,
		ScheduleKind: model.ScheduleCrontab, CrontabExpr: "0 2 * * *", Enabled: true,
	})
	req := httptest.NewRequest(http.MethodPost, "/scheduler/tasks", bytes.NewReader(body))
	req.Header.Set(usernameHeader, "alice")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created model.ScheduledTask
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created.Kwargs["username"] != "alice" {
		t.Errorf("kwargs[username] = %v, want alice", created.Kwargs["username"])
	}
}

func TestHandleDeleteTask_UnknownID_Returns404(t *testing.T) {
	s, _ := newTestServer(t)
	r := NewRouter(s)

	req := httptest.NewRequest(http.MethodDelete, "/scheduler/tasks/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleCacheSetAndGet_RoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	r := NewRouter(s)

	body, _ := json.Marshal(cacheSetRequest{Command: "show interface status", JSONData: `[{"name":"Ethernet0"}]`})
	req := httptest.NewRequest(http.MethodPost, "/cache/json/d1", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("set status = %d, body = %s", rec.Code, rec.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/cache/json/d1?command=show%20interface%20status", nil)
	getRec := httptest.NewRecorder()
	r.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", getRec.Code, getRec.Body.String())
	}
	var blob model.JSONBlob
	if err := json.Unmarshal(getRec.Body.Bytes(), &blob); err != nil {
		t.Fatalf("decoding blob: %v", err)
	}
	if blob.JSONPayload != `[{"name":"Ethernet0"}]` {
		t.Errorf("JSONPayload = %q", blob.JSONPayload)
	}
}

func TestHandleDiscoverAsync_DispatchesJob(t *testing.T) {
	s, _ := newTestServer(t)
	r := NewRouter(s)

	body, _ := json.Marshal(discoverRequest{DeviceIDs: []string{"d1", "d2"}})
	req := httptest.NewRequest(http.MethodPost, "/discover-async", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["job_id"] == "" {
		t.Fatal("expected a job_id in response")
	}

	progressReq := httptest.NewRequest(http.MethodGet, "/discover/progress/"+resp["job_id"], nil)
	progressRec := httptest.NewRecorder()
	r.ServeHTTP(progressRec, progressReq)
	if progressRec.Code != http.StatusOK {
		t.Fatalf("progress status = %d, body = %s", progressRec.Code, progressRec.Body.String())
	}
}
