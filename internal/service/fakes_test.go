package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"portal/internal/model"
	"portal/internal/policy"
	"portal/internal/repository"
	"portal/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeDB is an in-memory stand-in for the user, file and phase repositories.
type fakeDB struct {
	mu        sync.Mutex
	users     map[string]*model.UserWithProfile
	files     map[string]model.UploadedFile
	phase     *model.PhaseState
	createErr error
	// beforeDeleteUser runs at the start of DeleteUser, outside the lock.
	beforeDeleteUser func()
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users: map[string]*model.UserWithProfile{},
		files: map[string]model.UploadedFile{},
	}
}

func copyUser(u *model.UserWithProfile) *model.UserWithProfile {
	c := *u
	if u.Profile != nil {
		p := *u.Profile
		c.Profile = &p
	}
	return &c
}

func (d *fakeDB) CreateUser(_ context.Context, u *model.User, p *model.Profile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.users {
		if existing.Username == u.Username {
			return repository.ErrUsernameTaken
		}
	}
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now()
	stored := &model.UserWithProfile{User: *u}
	if p != nil {
		p.UserID = u.ID
		p.UpdatedAt = time.Now()
		cp := *p
		stored.Profile = &cp
	}
	d.users[u.ID] = stored
	return nil
}

func (d *fakeDB) GetUserByID(_ context.Context, id string) (*model.UserWithProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (d *fakeDB) GetUserByUsername(_ context.Context, username string) (*model.UserWithProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Username == username {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

func (d *fakeDB) ListUsers(_ context.Context, includeSuperusers bool) ([]model.UserWithProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []model.UserWithProfile{}
	for _, u := range d.users {
		if u.IsSuperuser && !includeSuperusers {
			continue
		}
		out = append(out, *copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (d *fakeDB) UpdateAllowedStorage(_ context.Context, userID string, allowed int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok || u.Profile == nil {
		return repository.ErrNotFound
	}
	u.Profile.AllowedStorage = allowed
	return nil
}

func (d *fakeDB) DeleteUser(_ context.Context, userID string) ([]model.UploadedFile, error) {
	if d.beforeDeleteUser != nil {
		d.beforeDeleteUser()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[userID]; !ok {
		return nil, repository.ErrNotFound
	}
	var removed []model.UploadedFile
	for id, f := range d.files {
		if f.UserID == userID {
			removed = append(removed, f)
			delete(d.files, id)
		}
	}
	delete(d.users, userID)
	return removed, nil
}

func (d *fakeDB) ListByUser(_ context.Context, userID string) ([]model.UploadedFile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []model.UploadedFile{}
	for _, f := range d.files {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out, nil
}

func (d *fakeDB) ListByField(_ context.Context, field, region string) ([]model.ReviewFile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []model.ReviewFile{}
	for _, f := range d.files {
		if f.Field != field {
			continue
		}
		owner := d.users[f.UserID]
		if owner == nil || owner.Profile == nil {
			continue
		}
		if region != "" && owner.Profile.Region != region {
			continue
		}
		out = append(out, model.ReviewFile{UploadedFile: f, Username: owner.Username, Region: owner.Profile.Region})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (d *fakeDB) GetByID(_ context.Context, fileID string) (*model.UploadedFile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[fileID]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (d *fakeDB) ExistsForField(_ context.Context, userID, field string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range d.files {
		if f.UserID == userID && f.Field == field {
			return true, nil
		}
	}
	return false, nil
}

func (d *fakeDB) usedLocked(userID string) int64 {
	var used int64
	for _, f := range d.files {
		if f.UserID == userID {
			used += f.Size
		}
	}
	return used
}

func (d *fakeDB) UsedStorage(_ context.Context, userID string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.usedLocked(userID), nil
}

func (d *fakeDB) CreateWithinQuota(_ context.Context, f *model.UploadedFile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.createErr != nil {
		return d.createErr
	}
	u, ok := d.users[f.UserID]
	if !ok || u.Profile == nil {
		return repository.ErrNotFound
	}
	if d.usedLocked(f.UserID)+f.Size > u.Profile.AllowedStorage {
		return repository.ErrQuotaExceeded
	}
	for _, existing := range d.files {
		if existing.UserID == f.UserID && existing.Field == f.Field {
			return repository.ErrDuplicateField
		}
	}
	f.ID = uuid.NewString()
	f.UploadedAt = time.Now()
	d.files[f.ID] = *f
	return nil
}

func (d *fakeDB) Delete(_ context.Context, fileID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.files[fileID]; !ok {
		return repository.ErrNotFound
	}
	delete(d.files, fileID)
	return nil
}

func (d *fakeDB) Get(_ context.Context) (*model.PhaseState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase == nil {
		return nil, nil
	}
	s := *d.phase
	return &s, nil
}

func (d *fakeDB) Set(_ context.Context, isPhaseOne bool) (*model.PhaseState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.phase = &model.PhaseState{IsPhaseOne: isPhaseOne, UpdatedAt: time.Now()}
	s := *d.phase
	return &s, nil
}

// fakeStore keeps objects in memory.
type fakeStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	failDelete map[string]bool
	failPut    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, failDelete: map[string]bool{}}
}

func (s *fakeStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (int64, error) {
	if s.failPut {
		return 0, errors.New("store unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return int64(len(data)), nil
}

func (s *fakeStore) Stat(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return int64(len(data)), nil
}

func (s *fakeStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete[key] {
		return errors.New("store unavailable")
	}
	if _, ok := s.objects[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

func (s *fakeStore) PresignPut(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://store.test/put/" + key, nil
}

func (s *fakeStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://store.test/get/" + key, nil
}

func (s *fakeStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type fakeCleanup struct {
	mu   sync.Mutex
	jobs []model.CleanupJob
}

func (c *fakeCleanup) Enqueue(_ context.Context, job model.CleanupJob) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, job)
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []model.FileEvent
}

func (e *fakeEvents) Emit(_ context.Context, ev model.FileEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *fakeEvents) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	db      *fakeDB
	store   *fakeStore
	cleanup *fakeCleanup
	events  *fakeEvents
	phases  PhaseService
	files   FileService
	users   UserService
	admin   policy.Actor
}

const testMaxUpload = 10 * model.GiB

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		db:      newFakeDB(),
		store:   newFakeStore(),
		cleanup: &fakeCleanup{},
		events:  &fakeEvents{},
	}
	logger := zerolog.Nop()
	h.phases = NewPhaseService(h.db, nil, logger)
	h.files = NewFileService(h.db, h.db, h.phases, h.store, h.cleanup, h.events, 15*time.Minute, testMaxUpload, nil, logger)
	h.users = NewUserService(h.db, h.db, h.store, h.cleanup, h.events, 0, 4, nil, logger)

	admin, err := h.users.CreateSuperuser(context.Background(), "root", "rootpass")
	require.NoError(t, err)
	h.admin = admin.Actor()
	return h
}

func (h *harness) addUser(t *testing.T, username string, userType model.UserType, region, field string, allowed int64) policy.Actor {
	t.Helper()
	p := &model.Profile{UserType: userType, Region: region, AllowedStorage: allowed}
	if field != "" {
		p.Field = &field
	}
	u := &model.User{Username: username, PasswordHash: "x"}
	require.NoError(t, h.db.CreateUser(context.Background(), u, p))
	return (&model.UserWithProfile{User: *u, Profile: p}).Actor()
}

// addFile stores a file directly, bypassing policy checks.
func (h *harness) addFile(t *testing.T, owner policy.Actor, field string, size int64) model.UploadedFile {
	t.Helper()
	key := storage.NewKey(owner.UserID, field, ".bin")
	h.store.objects[key] = make([]byte, 0)
	f := &model.UploadedFile{UserID: owner.UserID, Field: field, Title: fmt.Sprintf("%s file", field), Size: size, StorageKey: key}
	require.NoError(t, h.db.CreateWithinQuota(context.Background(), f))
	return *f
}

func (h *harness) setPhase(t *testing.T, phase policy.Phase) {
	t.Helper()
	_, err := h.phases.Set(context.Background(), h.admin, phase)
	require.NoError(t, err)
}
