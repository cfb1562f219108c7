// Package memory keeps every store in process. It backs local runs with
// STORAGE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/phishdrill-backend/internal/errors"
	"github.com/unclebandit/phishdrill-backend/internal/model"
	"github.com/unclebandit/phishdrill-backend/internal/repository"
)

// Store bundles the in-memory repositories.
type Store struct {
	Campaigns *CampaignRepository
	Targets   *TargetRepository
	Events    *EventRepository
	Employees *EmployeeRepository
}

func NewStore() *Store {
	targets := NewTargetRepository()
	return &Store{
		Campaigns: NewCampaignRepository(targets),
		Targets:   targets,
		Events:    NewEventRepository(),
		Employees: NewEmployeeRepository(),
	}
}

// ====================== Campaigns ======================

type CampaignRepository struct {
	mu        sync.Mutex
	nextID    int
	campaigns map[int]*model.Campaign
	targets   *TargetRepository
}

// NewCampaignRepository creates an empty store. targets may be nil, in which
// case List reports zero recipients.
func NewCampaignRepository(targets *TargetRepository) *CampaignRepository {
	return &CampaignRepository{campaigns: make(map[int]*model.Campaign), targets: targets}
}

func cloneCampaign(c *model.Campaign) model.Campaign {
	out := *c
	if c.ScheduledTime != nil {
		t := *c.ScheduledTime
		out.ScheduledTime = &t
	}
	if c.EndTime != nil {
		t := *c.EndTime
		out.EndTime = &t
	}
	return out
}

func (r *CampaignRepository) Create(_ context.Context, c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := time.Now()
	c.ID = r.nextID
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	stored := cloneCampaign(c)
	r.campaigns[c.ID] = &stored
	return nil
}

func (r *CampaignRepository) GetByID(_ context.Context, id int) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	out := cloneCampaign(c)
	return &out, nil
}

func (r *CampaignRepository) List(ctx context.Context) ([]model.CampaignSummary, error) {
	r.mu.Lock()
	list := make([]model.CampaignSummary, 0, len(r.campaigns))
	for _, c := range r.campaigns {
		list = append(list, model.CampaignSummary{Campaign: cloneCampaign(c)})
	}
	r.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})

	if r.targets != nil {
		for i := range list {
			list[i].RecipientCount = r.targets.count(list[i].ID)
		}
	}
	return list, nil
}

func (r *CampaignRepository) Update(_ context.Context, c *model.Campaign) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.campaigns[c.ID]
	if !ok || !cur.IsEditable() {
		return false, nil
	}
	next := cloneCampaign(c)
	next.Approval = cur.Approval
	next.NotifiedHighClicks = cur.NotifiedHighClicks
	next.Status = cur.Status
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = time.Now()
	r.campaigns[c.ID] = &next
	return true, nil
}

func (r *CampaignRepository) Approve(_ context.Context, id int) (bool, error) {
	return r.mutate(id, func(c *model.Campaign) bool {
		if c.IsTerminal() {
			return false
		}
		c.Approval = true
		c.UpdatedAt = time.Now()
		return true
	})
}

func (r *CampaignRepository) QueueSend(_ context.Context, id int, now time.Time) (bool, error) {
	return r.mutate(id, func(c *model.Campaign) bool {
		if !c.Approval || !c.IsEditable() {
			return false
		}
		c.Status = model.StatusScheduled
		if c.ScheduledTime == nil || c.ScheduledTime.After(now) {
			t := now
			c.ScheduledTime = &t
		}
		c.UpdatedAt = now
		return true
	})
}

func (r *CampaignRepository) PromoteToRunning(_ context.Context, id int, now time.Time) (bool, error) {
	return r.mutate(id, func(c *model.Campaign) bool {
		if !c.Approval || !c.IsEditable() || !c.IsDue(now) {
			return false
		}
		c.Status = model.StatusRunning
		c.UpdatedAt = now
		return true
	})
}

func (r *CampaignRepository) MarkCompleted(_ context.Context, id int, now time.Time) (bool, error) {
	return r.mutate(id, func(c *model.Campaign) bool {
		if c.Status != model.StatusRunning || !c.HasEnded(now) {
			return false
		}
		c.Status = model.StatusCompleted
		c.UpdatedAt = now
		return true
	})
}

func (r *CampaignRepository) ListDueForDispatch(_ context.Context, now time.Time) ([]model.Campaign, error) {
	return r.filter(func(c *model.Campaign) bool {
		return c.Approval && c.IsEditable() && c.IsDue(now)
	}), nil
}

func (r *CampaignRepository) ListDueForCompletion(_ context.Context, now time.Time) ([]model.Campaign, error) {
	return r.filter(func(c *model.Campaign) bool {
		return c.Status == model.StatusRunning && c.HasEnded(now)
	}), nil
}

func (r *CampaignRepository) MarkHighClicksNotified(_ context.Context, id int) (bool, error) {
	return r.mutate(id, func(c *model.Campaign) bool {
		if c.NotifiedHighClicks {
			return false
		}
		c.NotifiedHighClicks = true
		return true
	})
}

func (r *CampaignRepository) mutate(id int, fn func(c *model.Campaign) bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.campaigns[id]
	if !ok {
		return false, nil
	}
	return fn(c), nil
}

func (r *CampaignRepository) filter(keep func(c *model.Campaign) bool) []model.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []model.Campaign{}
	for _, c := range r.campaigns {
		if keep(c) {
			out = append(out, cloneCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ====================== Targets ======================

type TargetRepository struct {
	mu      sync.Mutex
	nextID  int
	targets map[int][]model.CampaignTarget
	byToken map[string]targetRef
}

type targetRef struct {
	campaignID int
	index      int
}

func NewTargetRepository() *TargetRepository {
	return &TargetRepository{
		targets: make(map[int][]model.CampaignTarget),
		byToken: make(map[string]targetRef),
	}
}

func (r *TargetRepository) ReplaceTargets(_ context.Context, campaignID int, targets []model.CampaignTarget) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(targets))
	for _, t := range targets {
		ref, taken := r.byToken[t.Token]
		if seen[t.Token] || (taken && ref.campaignID != campaignID) {
			return appErrors.NewIntegrity("issue token", errors.New("token collision for "+t.Email))
		}
		seen[t.Token] = true
	}

	for _, old := range r.targets[campaignID] {
		delete(r.byToken, old.Token)
	}

	stored := make([]model.CampaignTarget, len(targets))
	for i := range targets {
		r.nextID++
		targets[i].ID = r.nextID
		targets[i].CampaignID = campaignID
		targets[i].Delivered = false
		stored[i] = targets[i]
		r.byToken[targets[i].Token] = targetRef{campaignID: campaignID, index: i}
	}
	r.targets[campaignID] = stored
	return nil
}

func (r *TargetRepository) ListByCampaign(_ context.Context, campaignID int) ([]model.CampaignTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]model.CampaignTarget{}, r.targets[campaignID]...), nil
}

func (r *TargetRepository) CountDelivered(_ context.Context, campaignID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, t := range r.targets[campaignID] {
		if t.Delivered {
			n++
		}
	}
	return n, nil
}

func (r *TargetRepository) FindByToken(_ context.Context, token string) (*model.CampaignTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref, ok := r.byToken[token]
	if !ok {
		return nil, appErrors.NewNotFound("target", "token")
	}
	t := r.targets[ref.campaignID][ref.index]
	return &t, nil
}

func (r *TargetRepository) MarkDelivered(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for cid, list := range r.targets {
		for i := range list {
			if list[i].ID == id {
				r.targets[cid][i].Delivered = true
				return nil
			}
		}
	}
	return appErrors.NewNotFound("target", id)
}

func (r *TargetRepository) count(campaignID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.targets[campaignID])
}

// ====================== Events ======================

type EventRepository struct {
	mu     sync.Mutex
	nextID int
	events []model.CampaignEvent
}

func NewEventRepository() *EventRepository {
	return &EventRepository{}
}

func (r *EventRepository) Record(_ context.Context, e *model.CampaignEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	e.ID = r.nextID
	r.events = append(r.events, *e)
	return nil
}

func (r *EventRepository) CountByType(_ context.Context, campaignID int) (map[model.EventType]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := map[model.EventType]int{
		model.EventDelivered: 0,
		model.EventOpened:    0,
		model.EventClicked:   0,
		model.EventSubmitted: 0,
	}
	for _, e := range r.events {
		if e.CampaignID == campaignID {
			counts[e.EventType]++
		}
	}
	return counts, nil
}

func (r *EventRepository) ListByCampaign(_ context.Context, campaignID int) ([]model.CampaignEvent, error) {
	r.mu.Lock()
	out := []model.CampaignEvent{}
	for _, e := range r.events {
		if e.CampaignID == campaignID {
			out = append(out, e)
		}
	}
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// ====================== Employees ======================

type EmployeeRepository struct {
	mu        sync.Mutex
	employees map[string]model.Employee
}

func NewEmployeeRepository() *EmployeeRepository {
	return &EmployeeRepository{employees: make(map[string]model.Employee)}
}

func (r *EmployeeRepository) Upsert(_ context.Context, employees []model.Employee) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range employees {
		r.employees[e.Email] = e
	}
	return nil
}

func (r *EmployeeRepository) Lookup(_ context.Context, emails []string) ([]model.Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []model.Employee{}
	for _, email := range emails {
		if e, ok := r.employees[email]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *EmployeeRepository) ListAll(_ context.Context) ([]model.Employee, error) {
	r.mu.Lock()
	out := make([]model.Employee, 0, len(r.employees))
	for _, e := range r.employees {
		out = append(out, e)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

var (
	_ repository.CampaignStore = (*CampaignRepository)(nil)
	_ repository.TargetStore   = (*TargetRepository)(nil)
	_ repository.EventStore    = (*EventRepository)(nil)
	_ repository.EmployeeStore = (*EmployeeRepository)(nil)
)
