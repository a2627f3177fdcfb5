package family

import (
	"context"
	"errors"
	"sync"

	"homenotes/auth"
	"homenotes/localcache"
	"homenotes/models"
	"homenotes/remote"
	"homenotes/state"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

var (
	ErrNotVoting   = errors.New("meal plan is not open for voting")
	ErrPlanLocked  = errors.New("meal plan can only be edited while planning")
	ErrNotSignedIn = errors.New("voting requires a signed-in user")
	ErrNoPlan      = errors.New("no meal plan loaded")
)

// DefaultApprovals is how many approve votes finalize a plan.
const DefaultApprovals = 1

// MealPlans tracks the plan of one week at a time.
type MealPlans struct {
	durable   localcache.Cache
	store     remote.Store
	auth      auth.Provider
	bus       *state.Bus
	approvals int

	mu     sync.Mutex
	plan   *models.MealPlan
	unsub  func()
	subFor string
}

func NewMealPlans(caches *localcache.Caches, store remote.Store, p auth.Provider, bus *state.Bus, approvals int) *MealPlans {
	if approvals <= 0 {
		approvals = DefaultApprovals
	}
	return &MealPlans{durable: caches.Durable, store: store, auth: p, bus: bus, approvals: approvals}
}

func (m *MealPlans) remoteEnabled() bool {
	_, ok := auth.RemoteUser(m.auth)
	return ok && m.store != nil
}

// Current returns the loaded plan.
func (m *MealPlans) Current() (models.MealPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.plan == nil {
		return models.MealPlan{}, ErrNoPlan
	}
	return clonePlan(*m.plan), nil
}

// Load reads the week's plan. A remote plan, when present, wins over the cached one.
func (m *MealPlans) Load(ctx context.Context, weekID string) (models.MealPlan, error) {
	plan := models.NewMealPlan(weekID)
	if _, err := localcache.GetJSON(m.durable, localcache.MealPlanKey(weekID), &plan); err != nil {
		logger.LogErr(err, "failed to read cached meal plan", "week", weekID)
	}

	if m.remoteEnabled() {
		var remotePlan models.MealPlan
		found, err := remote.ReadInto(ctx, m.store, remote.MealPlanPath(weekID), &remotePlan)
		switch {
		case err != nil:
			logger.LogErr(err, "failed to read meal plan, using cache", "week", weekID)
		case found:
			plan = remotePlan
			if err := localcache.SetJSON(m.durable, localcache.MealPlanKey(weekID), plan); err != nil {
				logger.LogErr(err, "failed to cache meal plan")
			}
		}
	}
	plan = normalizePlan(plan, weekID)

	m.mu.Lock()
	m.plan = &plan
	m.mu.Unlock()
	return clonePlan(plan), nil
}

// SetMeal fills one day while the plan is being drafted.
func (m *MealPlans) SetMeal(ctx context.Context, day, meal string) (models.MealPlan, error) {
	return m.change(ctx, func(p *models.MealPlan, uid string) error {
		if p.Status != models.PlanPlanning {
			return ErrPlanLocked
		}
		if meal == "" {
			delete(p.Meals, day)
		} else {
			p.Meals[day] = meal
		}
		return nil
	})
}

// Submit puts the plan up for a vote, replacing its meals when given.
func (m *MealPlans) Submit(ctx context.Context, meals map[string]string) (models.MealPlan, error) {
	return m.change(ctx, func(p *models.MealPlan, uid string) error {
		if meals != nil {
			p.Meals = make(map[string]string, len(meals))
			for k, v := range meals {
				p.Meals[k] = v
			}
		}
		p.Status = models.PlanVoting
		p.Votes = map[string]string{}
		return nil
	})
}

// Vote records the current user's vote. A rejection sends the plan back to planning;
// enough approvals finalize it.
func (m *MealPlans) Vote(ctx context.Context, approve bool) (models.MealPlan, error) {
	if _, ok := auth.RemoteUser(m.auth); !ok {
		return models.MealPlan{}, ErrNotSignedIn
	}
	return m.change(ctx, func(p *models.MealPlan, uid string) error {
		if p.Status != models.PlanVoting {
			return ErrNotVoting
		}
		if !approve {
			p.Status = models.PlanPlanning
			p.Votes = map[string]string{}
			return nil
		}
		p.Votes[uid] = models.VoteApprove
		if p.ApproveCount() >= m.approvals {
			p.Status = models.PlanFinalized
		}
		return nil
	})
}

func (m *MealPlans) change(ctx context.Context, fn func(p *models.MealPlan, uid string) error) (models.MealPlan, error) {
	uid := ""
	if u, ok := auth.RemoteUser(m.auth); ok {
		uid = u.UID
	}

	m.mu.Lock()
	if m.plan == nil {
		m.mu.Unlock()
		return models.MealPlan{}, ErrNoPlan
	}
	next := clonePlan(*m.plan)
	if err := fn(&next, uid); err != nil {
		m.mu.Unlock()
		return models.MealPlan{}, err
	}
	next.UpdatedAt = models.NowMillis()
	next.UpdatedBy = uid
	m.plan = &next
	m.mu.Unlock()

	if err := localcache.SetJSON(m.durable, localcache.MealPlanKey(next.WeekID), next); err != nil {
		return models.MealPlan{}, serr.Wrap(err, "failed to cache meal plan")
	}
	if m.remoteEnabled() {
		if err := m.store.Set(ctx, remote.MealPlanPath(next.WeekID), next); err != nil {
			logger.LogErr(err, "failed to save meal plan remotely", "week", next.WeekID)
		}
	}
	m.bus.Emit(state.EventMealPlanChanged, next)
	return clonePlan(next), nil
}

// Subscribe follows the remote plan of weekID, replacing any earlier subscription.
func (m *MealPlans) Subscribe(ctx context.Context, weekID string) error {
	if !m.remoteEnabled() {
		return nil
	}
	m.mu.Lock()
	if m.subFor == weekID && m.unsub != nil {
		m.mu.Unlock()
		return nil
	}
	prev := m.unsub
	m.unsub, m.subFor = nil, ""
	m.mu.Unlock()
	if prev != nil {
		prev()
	}

	unsub, err := m.store.Subscribe(ctx, remote.MealPlanPath(weekID), func(snap remote.Snapshot) {
		if !snap.Exists {
			return
		}
		var incoming models.MealPlan
		if err := snap.Decode(&incoming); err != nil {
			logger.LogErr(err, "failed to decode meal plan")
			return
		}
		incoming = normalizePlan(incoming, weekID)

		m.mu.Lock()
		if m.plan != nil && (m.plan.WeekID != weekID || sameJSON(*m.plan, incoming)) {
			m.mu.Unlock()
			return
		}
		m.plan = &incoming
		m.mu.Unlock()

		if err := localcache.SetJSON(m.durable, localcache.MealPlanKey(weekID), incoming); err != nil {
			logger.LogErr(err, "failed to cache meal plan")
		}
		m.bus.Emit(state.EventMealPlanChanged, incoming)
	})
	if err != nil {
		return serr.Wrap(err, "failed to subscribe to meal plan")
	}
	m.mu.Lock()
	m.unsub, m.subFor = unsub, weekID
	m.mu.Unlock()
	return nil
}

func (m *MealPlans) Close() {
	m.mu.Lock()
	unsub := m.unsub
	m.unsub, m.subFor = nil, ""
	m.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func normalizePlan(p models.MealPlan, weekID string) models.MealPlan {
	if p.WeekID == "" {
		p.WeekID = weekID
	}
	if p.Meals == nil {
		p.Meals = map[string]string{}
	}
	if p.Votes == nil {
		p.Votes = map[string]string{}
	}
	if p.Status == "" {
		p.Status = models.PlanPlanning
	}
	return p
}

func clonePlan(p models.MealPlan) models.MealPlan {
	c := p
	c.Meals = make(map[string]string, len(p.Meals))
	for k, v := range p.Meals {
		c.Meals[k] = v
	}
	c.Votes = make(map[string]string, len(p.Votes))
	for k, v := range p.Votes {
		c.Votes[k] = v
	}
	return c
}
