package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dockhive/dockhive/internal/apperror"
	"github.com/dockhive/dockhive/internal/engine"
	"github.com/dockhive/dockhive/internal/model"
	"github.com/dockhive/dockhive/internal/repository"
)

// memCatalog is an in-memory ContainerRepository. Error fields, when set,
// force the corresponding method to fail so compensation paths are reachable.
type memCatalog struct {
	mu                   sync.Mutex
	records              map[string]*model.Container
	insertErr            error
	updateProvisionedErr error
}

var _ repository.ContainerRepository = (*memCatalog)(nil)

func newMemCatalog() *memCatalog {
	return &memCatalog{records: make(map[string]*model.Container)}
}

func catalogKey(owner, name string) string {
	return owner + "/" + name
}

func (m *memCatalog) Insert(ctx context.Context, c *model.Container) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	key := catalogKey(c.Owner, c.Name)
	if _, ok := m.records[key]; ok {
		return fmt.Errorf("duplicate record %s", key)
	}
	cp := *c
	m.records[key] = &cp
	return nil
}

func (m *memCatalog) ListByOwner(ctx context.Context, owner string) ([]model.Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Container{}
	for _, c := range m.records {
		if c.Owner == owner {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memCatalog) GetByOwnerAndName(ctx context.Context, owner, name string) (*model.Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.records[catalogKey(owner, name)]
	if !ok {
		return nil, apperror.NotFound("container", name)
	}
	cp := *c
	return &cp, nil
}

func (m *memCatalog) CountActiveByOwner(ctx context.Context, owner string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.records {
		if c.Owner == owner && c.State.Active() {
			count++
		}
	}
	return count, nil
}

func (m *memCatalog) UpdateProvisioned(ctx context.Context, owner, name, runtimeID string, port int, state model.ContainerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateProvisionedErr != nil {
		return m.updateProvisionedErr
	}
	c, ok := m.records[catalogKey(owner, name)]
	if !ok {
		return apperror.NotFound("container", name)
	}
	c.RuntimeID = runtimeID
	c.Port = port
	c.State = state
	return nil
}

func (m *memCatalog) UpdateState(ctx context.Context, owner, name string, state model.ContainerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.records[catalogKey(owner, name)]
	if !ok {
		return apperror.NotFound("container", name)
	}
	c.State = state
	if state == model.StateFailed {
		c.Port = 0
	}
	return nil
}

func (m *memCatalog) Remove(ctx context.Context, owner, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := catalogKey(owner, name)
	if _, ok := m.records[key]; !ok {
		return apperror.NotFound("container", name)
	}
	delete(m.records, key)
	return nil
}

func (m *memCatalog) LeasedPorts(ctx context.Context) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ports []int
	for _, c := range m.records {
		if c.Port > 0 {
			ports = append(ports, c.Port)
		}
	}
	return ports, nil
}

func (m *memCatalog) get(owner, name string) *model.Container {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.records[catalogKey(owner, name)]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

// memCredits is an in-memory CreditRepository with the same atomic
// reserve-and-debit semantics as the SQLite implementation.
type memCredits struct {
	mu       sync.Mutex
	balances map[string]int64
}

var _ repository.CreditRepository = (*memCredits)(nil)

func newMemCredits() *memCredits {
	return &memCredits{balances: make(map[string]int64)}
}

func (m *memCredits) Balance(ctx context.Context, username string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[username], nil
}

func (m *memCredits) ReserveAndDebit(ctx context.Context, username string, amount int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[username] < amount {
		return false, nil
	}
	m.balances[username] -= amount
	return true, nil
}

func (m *memCredits) Refund(ctx context.Context, username string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[username] += amount
	return nil
}

func (m *memCredits) SetBalance(ctx context.Context, username string, credits int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[username] = credits
	return nil
}

// fakeEngine is a scriptable Engine double. It tracks which runtime
// containers exist and records call counts; the err fields force failures.
type fakeEngine struct {
	mu        sync.Mutex
	nextID    int
	live      map[string][]string // runtime id -> names
	createErr error
	startErr  error
	stopErr   error
	removeErr error
	listErr   error

	createCalls int
	startCalls  int
	stopCalls   int
	removeCalls int

	lastCreate engine.CreateRequest
}

var _ engine.Engine = (*fakeEngine)(nil)

func newFakeEngine() *fakeEngine {
	return &fakeEngine{live: make(map[string][]string)}
}

func (f *fakeEngine) Create(ctx context.Context, req engine.CreateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.lastCreate = req
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("rt-%d", f.nextID)
	f.live[id] = []string{"/" + req.Name}
	return id, nil
}

func (f *fakeEngine) Start(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startErr != nil {
		return f.startErr
	}
	if _, ok := f.live[id]; !ok {
		return fmt.Errorf("no such container %s", id)
	}
	return nil
}

func (f *fakeEngine) Stop(ctx context.Context, nameOrID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	if f.stopErr != nil {
		return f.stopErr
	}
	return nil
}

func (f *fakeEngine) Remove(ctx context.Context, nameOrID string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.live, nameOrID)
	return nil
}

func (f *fakeEngine) List(ctx context.Context) ([]engine.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []engine.Summary
	for id, names := range f.live {
		out = append(out, engine.Summary{ID: id, Names: names})
	}
	return out, nil
}

func (f *fakeEngine) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// memUsers is an in-memory UserRepository keyed by lowercase username.
type memUsers struct {
	mu    sync.Mutex
	users map[string]*model.User
}

var _ repository.UserRepository = (*memUsers)(nil)

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*model.User)}
}

func (m *memUsers) Create(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := lower(user.Username)
	if _, ok := m.users[key]; ok {
		return fmt.Errorf("duplicate user %s", key)
	}
	user.DisplayName = user.Username
	user.Username = key
	user.Email = lower(user.Email)
	cp := *user
	m.users[key] = &cp
	return nil
}

func (m *memUsers) GetByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identifier = lower(identifier)
	for _, u := range m.users {
		if u.Username == identifier || u.Email == identifier {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", identifier)
}

func (m *memUsers) UsernameExists(ctx context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[lower(username)]
	return ok, nil
}

func (m *memUsers) EmailExists(ctx context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = lower(email)
	for _, u := range m.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) MarkVerified(ctx context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[lower(username)]
	if !ok {
		return apperror.NotFound("user", username)
	}
	u.Verified = true
	return nil
}

func (m *memUsers) get(username string) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[lower(username)]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

// memCodes is an in-memory VerificationCodeRepository.
type memCodes struct {
	mu    sync.Mutex
	codes map[string]string // code -> username
}

var _ repository.VerificationCodeRepository = (*memCodes)(nil)

func newMemCodes() *memCodes {
	return &memCodes{codes: make(map[string]string)}
}

func (m *memCodes) InsertCode(ctx context.Context, code *model.VerificationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[code.Code] = code.Username
	return nil
}

func (m *memCodes) Exists(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.codes[code]
	return ok, nil
}

func (m *memCodes) Consume(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codes[code]; !ok {
		return apperror.NotFound("verification code", "given")
	}
	delete(m.codes, code)
	return nil
}

// memIPLog records the last address per user.
type memIPLog struct {
	mu    sync.Mutex
	seen  map[string]string
	calls int
}

var _ repository.IPLogRepository = (*memIPLog)(nil)

func newMemIPLog() *memIPLog {
	return &memIPLog{seen: make(map[string]string)}
}

func (m *memIPLog) Record(ctx context.Context, username, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[username] = ip
	m.calls++
	return nil
}

// recordingMailer captures outgoing mail instead of sending it.
type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

type sentMail struct {
	to      string
	subject string
	body    string
}

func (m *recordingMailer) Send(to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: htmlBody})
	return nil
}

func (m *recordingMailer) last() *sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	cp := m.sent[len(m.sent)-1]
	return &cp
}
