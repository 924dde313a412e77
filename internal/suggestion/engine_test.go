package suggestion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"resumeforge/internal/account"
	"resumeforge/internal/auth"
	"resumeforge/internal/database"
	"resumeforge/internal/database/testdb"
	"resumeforge/internal/errcode"
	"resumeforge/internal/resume"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	jobs []uint
	err  error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, jobID uint, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, jobID)
	return nil
}

type fakeNotifier struct {
	sent []Notification
}

func (n *fakeNotifier) Notify(_ context.Context, _ uint, msg Notification) error {
	n.sent = append(n.sent, msg)
	return nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, uint) (bool, error) { return false, nil }

type fixture struct {
	db         *gorm.DB
	engine     *Engine
	dispatcher *fakeDispatcher
	notifier   *fakeNotifier
	id         *auth.Identity
	resumeID   uint
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testdb.New(t)
	guard := account.NewGuard(db)
	id := &auth.Identity{Subject: "jane"}
	_, master, err := account.NewService(db, guard, nil).Onboard(context.Background(), id, resume.Content{
		Summary: "Backend engineer",
		Skills:  []string{"Go"},
	})
	require.NoError(t, err)

	d := &fakeDispatcher{}
	n := &fakeNotifier{}
	engine := NewEngine(db, guard, d, nil, n, Config{MaxJobDescriptionBytes: 100, RequeueAfter: time.Minute}, nil)
	return fixture{db: db, engine: engine, dispatcher: d, notifier: n, id: id, resumeID: master.ID}
}

func recs(types ...resume.Category) []resume.Recommendation {
	out := make([]resume.Recommendation, 0, len(types))
	for _, c := range types {
		out = append(out, resume.Recommendation{Type: c, Current: "old", Suggested: "new", Status: resume.StatusPending})
	}
	return out
}

func TestRequestThenReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.engine.Request(ctx, f.id, f.resumeID, "  Senior Go developer  ", "corr-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, ticket.Generation)
	assert.Equal(t, []uint{ticket.JobID}, f.dispatcher.jobs)

	sug, err := f.engine.Get(ctx, f.id, f.resumeID)
	require.NoError(t, err)
	require.NotNil(t, sug)
	assert.Equal(t, "Senior Go developer", sug.JobDescription)
	assert.Empty(t, sug.Recommendations)
	assert.True(t, sug.Pending())

	var job database.SuggestionJob
	require.NoError(t, f.db.First(&job, ticket.JobID).Error)
	assert.Equal(t, database.JobQueued, job.Status)
	assert.Equal(t, "Backend engineer", job.Snapshot.Data().Summary)
	assert.Equal(t, "corr-1", job.CorrelationID)

	outcome, err := f.engine.Reconcile(ctx, Result{
		SuggestionID:    ticket.SuggestionID,
		Generation:      ticket.Generation,
		JobDescription:  job.JobDescription,
		Recommendations: recs(resume.CategorySummary, resume.CategorySkills),
	})
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	sug, err = f.engine.Get(ctx, f.id, f.resumeID)
	require.NoError(t, err)
	require.Len(t, sug.Recommendations, 2)
	assert.False(t, sug.Pending())
	for _, r := range sug.Recommendations {
		assert.Equal(t, resume.StatusPending, r.Status)
	}
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, StatusReady, f.notifier.sent[0].Status)
	assert.Equal(t, f.resumeID, f.notifier.sent[0].ResumeID)
}

func TestRequestReusesSingleRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.Request(ctx, f.id, f.resumeID, "Go developer", "")
	require.NoError(t, err)
	second, err := f.engine.Request(ctx, f.id, f.resumeID, "Rust developer", "")
	require.NoError(t, err)

	assert.Equal(t, first.SuggestionID, second.SuggestionID)
	assert.EqualValues(t, 2, second.Generation)

	var count int64
	require.NoError(t, f.db.Model(&database.Suggestion{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	sug, err := f.engine.Get(ctx, f.id, f.resumeID)
	require.NoError(t, err)
	assert.Equal(t, "Rust developer", sug.JobDescription)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Request(ctx, f.id, f.resumeID, "   ", "")
	assert.Equal(t, errcode.Invalid, errcode.CodeOf(err))

	_, err = f.engine.Request(ctx, f.id, f.resumeID, strings.Repeat("x", 101), "")
	assert.Equal(t, errcode.Invalid, errcode.CodeOf(err))

	_, err = f.engine.Request(ctx, &auth.Identity{Subject: "ghost"}, f.resumeID, "Go", "")
	assert.Equal(t, errcode.Unauthenticated, errcode.CodeOf(err))

	assert.Empty(t, f.dispatcher.jobs)
	var count int64
	require.NoError(t, f.db.Model(&database.Suggestion{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRequestRateLimited(t *testing.T) {
	f := newFixture(t)
	f.engine.limiter = denyLimiter{}

	_, err := f.engine.Request(context.Background(), f.id, f.resumeID, "Go", "")
	assert.Equal(t, errcode.Invalid, errcode.CodeOf(err))
	assert.Empty(t, f.dispatcher.jobs)
}

func TestRequestSurvivesDispatchFailure(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("redis down")
	ctx := context.Background()

	ticket, err := f.engine.Request(ctx, f.id, f.resumeID, "Go", "")
	require.NoError(t, err)

	// job stays queued until the sweep picks it up
	f.dispatcher.err = nil
	f.engine.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	n, err := f.engine.RequeueStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uint{ticket.JobID}, f.dispatcher.jobs)
}

func TestReconcileFailureLeavesRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.Request(ctx, f.id, f.resumeID, "Go", "")
	require.NoError(t, err)
	_, err = f.engine.Reconcile(ctx, Result{SuggestionID: first.SuggestionID, Generation: 1, Recommendations: recs(resume.CategorySummary)})
	require.NoError(t, err)

	second, err := f.engine.Request(ctx, f.id, f.resumeID, "Rust", "")
	require.NoError(t, err)
	outcome, err := f.engine.Reconcile(ctx, Result{SuggestionID: second.SuggestionID, Generation: 2, Err: errcode.New(errcode.Misc, "bad output")})
	require.NoError(t, err)
	assert.Equal(t, Failed, outcome)

	sug, err := f.engine.Get(ctx, f.id, f.resumeID)
	require.NoError(t, err)
	require.Len(t, sug.Recommendations, 1)
	assert.Equal(t, resume.CategorySummary, sug.Recommendations[0].Type)
	assert.True(t, sug.Pending())
	require.Len(t, f.notifier.sent, 2)
	assert.Equal(t, StatusFailed, f.notifier.sent[1].Status)
	assert.Equal(t, "bad output", f.notifier.sent[1].ErrorMessage)
}

func TestReconcileDropsStaleGeneration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.Request(ctx, f.id, f.resumeID, "Go", "")
	require.NoError(t, err)
	second, err := f.engine.Request(ctx, f.id, f.resumeID, "Rust", "")
	require.NoError(t, err)

	outcome, err := f.engine.Reconcile(ctx, Result{SuggestionID: second.SuggestionID, Generation: second.Generation, JobDescription: "Rust", Recommendations: recs(resume.CategorySkills)})
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	outcome, err = f.engine.Reconcile(ctx, Result{SuggestionID: first.SuggestionID, Generation: first.Generation, JobDescription: "Go", Recommendations: recs(resume.CategorySummary, resume.CategoryExperience)})
	require.NoError(t, err)
	assert.Equal(t, Stale, outcome)

	sug, err := f.engine.Get(ctx, f.id, f.resumeID)
	require.NoError(t, err)
	require.Len(t, sug.Recommendations, 1)
	assert.Equal(t, resume.CategorySkills, sug.Recommendations[0].Type)
	assert.Equal(t, "Rust", sug.JobDescription)
}

func TestReconcileMissingIsNoop(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.engine.Reconcile(context.Background(), Result{SuggestionID: 999, Generation: 1, Recommendations: recs(resume.CategorySummary)})
	require.NoError(t, err)
	assert.Equal(t, Missing, outcome)
	assert.Empty(t, f.notifier.sent)
}

func TestGetWithoutSuggestion(t *testing.T) {
	f := newFixture(t)

	sug, err := f.engine.Get(context.Background(), f.id, f.resumeID)
	require.NoError(t, err)
	assert.Nil(t, sug)
}

func TestSetStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.engine.Request(ctx, f.id, f.resumeID, "Go", "")
	require.NoError(t, err)
	_, err = f.engine.Reconcile(ctx, Result{SuggestionID: ticket.SuggestionID, Generation: ticket.Generation, Recommendations: recs(resume.CategorySummary, resume.CategorySkills)})
	require.NoError(t, err)

	sug, err := f.engine.SetStatus(ctx, f.id, f.resumeID, 1, resume.CategorySkills, resume.StatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, resume.StatusAccepted, sug.Recommendations[1].Status)

	_, err = f.engine.SetStatus(ctx, f.id, f.resumeID, 2, "", resume.StatusRejected)
	assert.Equal(t, errcode.Invalid, errcode.CodeOf(err))

	_, err = f.engine.SetStatus(ctx, f.id, f.resumeID, 0, resume.CategorySkills, resume.StatusRejected)
	assert.Equal(t, errcode.Invalid, errcode.CodeOf(err))

	_, err = f.engine.SetStatus(ctx, f.id, f.resumeID, 0, "", resume.Status("maybe"))
	assert.Equal(t, errcode.Invalid, errcode.CodeOf(err))

	stored, err := f.engine.Get(ctx, f.id, f.resumeID)
	require.NoError(t, err)
	assert.Equal(t, resume.StatusPending, stored.Recommendations[0].Status)
	assert.Equal(t, resume.StatusAccepted, stored.Recommendations[1].Status)
}

func TestJobLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.engine.Request(ctx, f.id, f.resumeID, "Go", "")
	require.NoError(t, err)

	job, err := f.engine.ClaimJob(ctx, ticket.JobID)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, database.JobRunning, job.Status)

	again, err := f.engine.ClaimJob(ctx, ticket.JobID)
	require.NoError(t, err)
	assert.Nil(t, again)

	require.NoError(t, f.engine.FinishJob(ctx, ticket.JobID, Failed, errors.New("boom")))
	require.NoError(t, f.db.First(job, ticket.JobID).Error)
	assert.Equal(t, database.JobFailed, job.Status)
	assert.Equal(t, "boom", job.Error)

	n, err := f.engine.RequeueStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRequeueStaleRedispatchesQueued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.dispatcher.err = errors.New("redis down")
	ticket, err := f.engine.Request(ctx, f.id, f.resumeID, "Go", "corr-q")
	require.NoError(t, err)
	f.dispatcher.err = nil

	n, err := f.engine.RequeueStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.engine.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	n, err = f.engine.RequeueStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uint{ticket.JobID}, f.dispatcher.jobs)
}

func TestRequeueStaleFailsLostRunningJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.cfg.RunningTimeout = 10 * time.Minute

	ticket, err := f.engine.Request(ctx, f.id, f.resumeID, "Go", "corr-lost")
	require.NoError(t, err)
	job, err := f.engine.ClaimJob(ctx, ticket.JobID)
	require.NoError(t, err)
	require.NotNil(t, job)

	// 刚开始执行的任务不受影响。
	_, err = f.engine.RequeueStale(ctx)
	require.NoError(t, err)
	require.NoError(t, f.db.First(job, ticket.JobID).Error)
	assert.Equal(t, database.JobRunning, job.Status)
	assert.Empty(t, f.notifier.sent)

	f.engine.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	n, err := f.engine.RequeueStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, f.db.First(job, ticket.JobID).Error)
	assert.Equal(t, database.JobFailed, job.Status)
	assert.Contains(t, job.Error, "timed out")
	assert.Equal(t, []uint{ticket.JobID}, f.dispatcher.jobs)

	require.Len(t, f.notifier.sent, 1)
	msg := f.notifier.sent[0]
	assert.Equal(t, StatusFailed, msg.Status)
	assert.Equal(t, f.resumeID, msg.ResumeID)
	assert.Equal(t, ticket.Generation, msg.Generation)
	assert.Equal(t, "corr-lost", msg.CorrelationID)

	// 再扫一次不会重复通知。
	_, err = f.engine.RequeueStale(ctx)
	require.NoError(t, err)
	assert.Len(t, f.notifier.sent, 1)

	// 用户重新请求后可以正常生成。
	next, err := f.engine.Request(ctx, f.id, f.resumeID, "Go", "")
	require.NoError(t, err)
	claimed, err := f.engine.ClaimJob(ctx, next.JobID)
	require.NoError(t, err)
	assert.NotNil(t, claimed)
}

func TestConcurrentFirstRequestsShareRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 2
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		tickets = make([]*Ticket, callers)
		errs    = make([]error, callers)
	)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			tickets[i], errs[i] = f.engine.Request(ctx, f.id, f.resumeID, "Go developer", "")
		}()
	}
	close(start)
	wg.Wait()

	// SQLite 共享缓存下并发事务可能直接报表锁，至少要有一个成功。
	var ok []*Ticket
	for i, err := range errs {
		if err == nil {
			ok = append(ok, tickets[i])
		}
	}
	require.NotEmpty(t, ok)
	for _, ticket := range ok[1:] {
		assert.Equal(t, ok[0].SuggestionID, ticket.SuggestionID)
	}

	var count int64
	require.NoError(t, f.db.Model(&database.Suggestion{}).Where("resume_id = ?", f.resumeID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
