package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"catbot/internal/storage"
	"catbot/internal/transport"
)

// fakeStore implements Queue, Directory and Catalog in memory.
type fakeStore struct {
	mu         sync.Mutex
	nextJob    int64
	jobs       map[int64]*storage.Job
	order      []int64
	recipients map[int64]*storage.Recipient
	products   map[int64]*storage.Product

	pendingErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:       map[int64]*storage.Job{},
		recipients: map[int64]*storage.Recipient{},
		products:   map[int64]*storage.Product{},
	}
}

func (f *fakeStore) addRecipient(id int64, channel string) *storage.Recipient {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &storage.Recipient{ID: id, DeliveryChannel: channel, NotificationsEnabled: true, Language: "en"}
	f.recipients[id] = r
	return r
}

func (f *fakeStore) addProduct(id int64, category, caption string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[id] = &storage.Product{ID: id, Category: category, Caption: caption}
}

func (f *fakeStore) addSentJob(recipientID int64, kind storage.JobKind, sentAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextJob++
	id := f.nextJob
	f.jobs[id] = &storage.Job{ID: id, RecipientID: recipientID, Kind: kind, CreatedAt: sentAt, SentAt: sentAt}
	f.order = append(f.order, id)
}

func (f *fakeStore) EnqueueJob(_ context.Context, j storage.Job) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextJob++
	j.ID = f.nextJob
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	f.jobs[j.ID] = &j
	f.order = append(f.order, j.ID)
	return j.ID, nil
}

func (f *fakeStore) PendingJobs(_ context.Context, kind storage.JobKind, limit int) ([]storage.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	var out []storage.Job
	for _, id := range f.order {
		j, ok := f.jobs[id]
		if !ok || j.Kind != kind || !j.SentAt.IsZero() {
			continue
		}
		out = append(out, *j)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) MarkJobSent(_ context.Context, jobID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok || !j.SentAt.IsZero() {
		return nil
	}
	j.SentAt = at
	return nil
}

func (f *fakeStore) RecentSendCount(_ context.Context, recipientID int64, kind storage.JobKind, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, j := range f.jobs {
		if j.RecipientID == recipientID && j.Kind == kind && !j.SentAt.IsZero() && j.SentAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) Recipient(_ context.Context, id int64) (*storage.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recipients[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) SubscribedRecipients(_ context.Context, exclude []int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	skip := map[int64]struct{}{}
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	var out []int64
	for id, r := range f.recipients {
		if _, ok := skip[id]; ok {
			continue
		}
		if r.NotificationsEnabled && !r.Blocked {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f *fakeStore) AllRecipients(_ context.Context, excludeBlocked bool) ([]storage.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.Recipient
	for _, r := range f.recipients {
		if excludeBlocked && r.Blocked {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) IsBlocked(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recipients[id]
	return ok && r.Blocked, nil
}

func (f *fakeStore) SetNotificationsEnabled(_ context.Context, id int64, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.recipients[id]; ok {
		r.NotificationsEnabled = enabled
	}
	return nil
}

func (f *fakeStore) SetBlocked(_ context.Context, id int64, blocked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.recipients[id]; ok {
		r.Blocked = blocked
	}
	return nil
}

func (f *fakeStore) DeleteRecipient(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.recipients, id)
	for jid, j := range f.jobs {
		if j.RecipientID == id {
			delete(f.jobs, jid)
		}
	}
	return nil
}

func (f *fakeStore) Product(_ context.Context, id int64) (*storage.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) job(id int64) (storage.Job, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return storage.Job{}, false
	}
	return *j, true
}

func (f *fakeStore) pendingCount(kind storage.JobKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, j := range f.jobs {
		if j.Kind == kind && j.SentAt.IsZero() {
			n++
		}
	}
	return n
}

// fakeSender records sends and pops scripted errors per chat.
type fakeSender struct {
	mu   sync.Mutex
	name string
	sent []sentMsg
	fail map[int64][]error
	gate chan struct{} // when set, SendText blocks until it is closed
}

type sentMsg struct {
	chatID    int64
	text      string
	parseMode string
}

func newFakeSender(name string) *fakeSender {
	return &fakeSender{name: name, fail: map[int64][]error{}}
}

func (f *fakeSender) Username() string { return f.name }

func (f *fakeSender) failWith(chatID int64, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[chatID] = append(f.fail[chatID], errs...)
}

func (f *fakeSender) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	mode := ""
	if opt != nil {
		mode = opt.ParseMode
	}
	f.sent = append(f.sent, sentMsg{chatID: to.ChatID, text: text, parseMode: mode})
	if q := f.fail[to.ChatID]; len(q) > 0 {
		err := q[0]
		f.fail[to.ChatID] = q[1:]
		return err
	}
	return nil
}

func (f *fakeSender) sentTo(chatID int64) []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMsg
	for _, m := range f.sent {
		if m.chatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// sleepRec replaces the service's pacing sleeps with a recorder.
type sleepRec struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRec) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRec) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}
