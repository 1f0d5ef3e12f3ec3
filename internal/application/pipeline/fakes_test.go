package pipeline

// Fakes en memoria compartidos por los tests del scheduler y de los comandos.
// Reproducen la semántica relevante del store real: CAS en TryLock, índice
// único de un-job-en-vuelo por documento y elegibilidad por next_run_at.

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mvergaray/facturador-api/internal/domain"
	"github.com/mvergaray/facturador-api/internal/domain/entity"
	"github.com/mvergaray/facturador-api/internal/domain/repository"
	domsunat "github.com/mvergaray/facturador-api/internal/domain/sunat"
	"github.com/mvergaray/facturador-api/pkg/config"
	"github.com/mvergaray/facturador-api/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Env: "production", Level: "error"})
}

func testWorkerCfg() config.WorkerConfig {
	return config.WorkerConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    5,
		BackoffBase:  30 * time.Second,
		BackoffCap:   time.Hour,
		MaxAttempts:  8,
		LockTimeout:  5 * time.Minute,
		TicketDelay:  5 * time.Second,
	}
}

// ── fakeDocRepo ───────────────────────────────────────────────────────────────

type fakeDocRepo struct {
	mu        sync.Mutex
	docs      map[string]*entity.Document
	updateErr error
}

func newFakeDocRepo(docs ...*entity.Document) *fakeDocRepo {
	f := &fakeDocRepo{docs: make(map[string]*entity.Document)}
	for _, d := range docs {
		f.docs[d.ID] = cloneDoc(d)
	}
	return f
}

func cloneDoc(d *entity.Document) *entity.Document {
	c := *d
	return &c
}

func (f *fakeDocRepo) Create(_ context.Context, doc *entity.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	f.docs[doc.ID] = cloneDoc(doc)
	return nil
}

func (f *fakeDocRepo) CreateLine(_ context.Context, _ *entity.DocumentLine) error { return nil }

func (f *fakeDocRepo) Update(_ context.Context, doc *entity.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.docs[doc.ID]; !ok {
		return fmt.Errorf("update document %s: no existe", doc.ID)
	}
	f.docs[doc.ID] = cloneDoc(doc)
	return nil
}

func (f *fakeDocRepo) GetByID(_ context.Context, id string) (*entity.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	return cloneDoc(d), nil
}

func (f *fakeDocRepo) GetStatus(ctx context.Context, id string) (*entity.Document, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeDocRepo) GetLinesByDocumentID(_ context.Context, _ string) ([]*entity.DocumentLine, error) {
	return nil, nil
}

func (f *fakeDocRepo) Reset(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("reset document %s: no existe", id)
	}
	domsunat.Apply(d, domsunat.Reset())
	return nil
}

// stored devuelve el documento tal como quedó persistido.
func (f *fakeDocRepo) stored(id string) *entity.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneDoc(f.docs[id])
}

// ── fakeJobRepo ───────────────────────────────────────────────────────────────

type fakeJobRepo struct {
	mu         sync.Mutex
	jobs       map[string]*entity.SunatJob
	denyLock   bool   // simula perder la carrera del CAS
	beforeLock func() // corre antes del CAS; simula a otro worker en medio
	now        func() time.Time
}

func newFakeJobRepo(jobs ...*entity.SunatJob) *fakeJobRepo {
	f := &fakeJobRepo{jobs: make(map[string]*entity.SunatJob), now: time.Now}
	for _, j := range jobs {
		if j.ID == "" {
			j.ID = uuid.New().String()
		}
		f.jobs[j.ID] = cloneJob(j)
	}
	return f
}

func cloneJob(j *entity.SunatJob) *entity.SunatJob {
	c := *j
	if j.LockedAt != nil {
		t := *j.LockedAt
		c.LockedAt = &t
	}
	return &c
}

func (f *fakeJobRepo) Create(_ context.Context, job *entity.SunatJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.DocumentID == job.DocumentID && !j.IsFinished() {
			return fmt.Errorf("%w: documento %s", domain.ErrJobInFlight, job.DocumentID)
		}
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.NextRunAt.IsZero() {
		job.NextRunAt = f.now()
	}
	f.jobs[job.ID] = cloneJob(job)
	return nil
}

func (f *fakeJobRepo) LoadEligible(_ context.Context, limit int, staleAfter time.Duration) ([]*entity.SunatJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	var out []*entity.SunatJob
	for _, j := range f.jobs {
		if j.NextRunAt.After(now) {
			continue
		}
		free := j.Status == entity.JobStatusQueued && j.LockedAt == nil
		stale := (j.Status == entity.JobStatusQueued || j.Status == entity.JobStatusPending) &&
			j.LockExpired(now, staleAfter)
		if free || stale {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].NextRunAt.Before(out[b].NextRunAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeJobRepo) TryLock(_ context.Context, jobID, workerID string, staleAfter time.Duration) (*entity.SunatJob, error) {
	if f.beforeLock != nil {
		f.beforeLock()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denyLock {
		return nil, nil
	}
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, nil
	}
	now := f.now()
	if j.NextRunAt.After(now) {
		return nil, nil
	}
	lockable := j.Status == entity.JobStatusQueued || j.Status == entity.JobStatusPending
	if !lockable || (j.LockedAt != nil && !j.LockExpired(now, staleAfter)) {
		return nil, nil
	}
	j.Status = entity.JobStatusPending
	j.LockedAt = &now
	j.LockedBy = workerID
	// La fila fresca, como el RETURNING del repositorio real.
	return cloneJob(j), nil
}

func (f *fakeJobRepo) Save(_ context.Context, job *entity.SunatJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[job.ID]; !ok {
		return fmt.Errorf("save job %s: no existe", job.ID)
	}
	job.LockedAt = nil
	job.LockedBy = ""
	f.jobs[job.ID] = cloneJob(job)
	return nil
}

func (f *fakeJobRepo) GetByID(_ context.Context, id string) (*entity.SunatJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, nil
	}
	return cloneJob(j), nil
}

func (f *fakeJobRepo) GetUnfinishedByDocument(_ context.Context, documentID string) (*entity.SunatJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.DocumentID == documentID && !j.IsFinished() {
			return cloneJob(j), nil
		}
	}
	return nil, nil
}

func (f *fakeJobRepo) ResetFailed(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, j := range f.jobs {
		if j.Status == entity.JobStatusFailed {
			j.Status = entity.JobStatusQueued
			j.Attempts = 0
			j.LastError = ""
			j.NextRunAt = f.now()
			n++
		}
	}
	return n, nil
}

// stored devuelve el job tal como quedó persistido.
func (f *fakeJobRepo) stored(id string) *entity.SunatJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneJob(f.jobs[id])
}

// all devuelve todos los jobs persistidos.
func (f *fakeJobRepo) all() []*entity.SunatJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.SunatJob
	for _, j := range f.jobs {
		out = append(out, cloneJob(j))
	}
	return out
}

// ── fakeTxRunner ──────────────────────────────────────────────────────────────

type fakeTxRunner struct {
	docRepo *fakeDocRepo
	jobRepo *fakeJobRepo
	seqRepo *fakeSeqRepo
	err     error
}

func (f *fakeTxRunner) RunPipeline(_ context.Context, fn func(
	docRepo repository.DocumentRepository,
	jobRepo repository.JobRepository,
) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(f.docRepo, f.jobRepo)
}

func (f *fakeTxRunner) RunDraft(_ context.Context, fn func(
	docRepo repository.DocumentRepository,
	seqRepo repository.SequenceRepository,
) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(f.docRepo, f.seqRepo)
}

// ── fakeSeqRepo ───────────────────────────────────────────────────────────────

type fakeSeqRepo struct {
	mu   sync.Mutex
	last map[string]int64
}

func newFakeSeqRepo() *fakeSeqRepo {
	return &fakeSeqRepo{last: make(map[string]int64)}
}

func (f *fakeSeqRepo) Next(_ context.Context, companyID, docType, series string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := companyID + "/" + docType + "/" + series
	f.last[key]++
	return fmt.Sprintf("%08d", f.last[key]), nil
}

// ── fakeProcessor ─────────────────────────────────────────────────────────────

type processResult struct {
	outcome *domsunat.Outcome
	err     error
}

// fakeProcessor devuelve resultados pre-armados por llamada y, como el
// procesador real, aplica la transición del outcome sobre el documento.
type fakeProcessor struct {
	mu      sync.Mutex
	results []processResult
	calls   int
}

func (f *fakeProcessor) Process(_ context.Context, doc *entity.Document, _ *entity.SunatJob) (*domsunat.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.calls++
	r := f.results[idx]
	if r.err != nil {
		return nil, r.err
	}
	if r.outcome != nil {
		ch, err := domsunat.Transition(doc, domsunat.Input{Outcome: r.outcome})
		if err != nil {
			return nil, err
		}
		domsunat.Apply(doc, ch)
	}
	return r.outcome, nil
}
