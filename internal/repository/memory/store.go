// Package memory is an in-process Store used by tests and local runs without
// Postgres. A transaction holds the store lock for its whole duration and
// restores a snapshot when fn fails.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/models"
	"github.com/ajolla/ottowrite-sub001/internal/repository"
)

type dataset struct {
	nextID       uint
	partners     map[uint]models.Partner
	codes        map[uint]models.ReferralCode
	clicks       map[uint]models.Click
	attributions map[string]models.UserAttribution
	conversions  map[uint]models.Conversion
	payouts      map[uint]models.PayoutBatch
	users        map[string]models.User
	admins       map[uint]models.AdminUser
}

func newDataset() *dataset {
	return &dataset{
		partners:     make(map[uint]models.Partner),
		codes:        make(map[uint]models.ReferralCode),
		clicks:       make(map[uint]models.Click),
		attributions: make(map[string]models.UserAttribution),
		conversions:  make(map[uint]models.Conversion),
		payouts:      make(map[uint]models.PayoutBatch),
		users:        make(map[string]models.User),
		admins:       make(map[uint]models.AdminUser),
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	c.nextID = d.nextID
	for k, v := range d.partners {
		c.partners[k] = v
	}
	for k, v := range d.codes {
		c.codes[k] = v
	}
	for k, v := range d.clicks {
		c.clicks[k] = v
	}
	for k, v := range d.attributions {
		c.attributions[k] = v
	}
	for k, v := range d.conversions {
		c.conversions[k] = v
	}
	for k, v := range d.payouts {
		v.ConversionIDs = append([]int64(nil), v.ConversionIDs...)
		c.payouts[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.admins {
		c.admins[k] = v
	}
	return c
}

func (d *dataset) id() uint {
	d.nextID++
	return d.nextID
}

type shared struct {
	mu   sync.Mutex
	data *dataset
	now  func() time.Time
}

// Store implements repository.Store. The zero value is not usable; call New.
type Store struct {
	s    *shared
	inTx bool
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{s: &shared{data: newDataset(), now: time.Now}}
}

// SetClock overrides the timestamp source used for CreatedAt/UpdatedAt.
func (st *Store) SetClock(now func() time.Time) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.now = now
}

// AddUser seeds the identity table.
func (st *Store) AddUser(user models.User) {
	unlock := st.lock()
	defer unlock()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = st.s.now()
	}
	st.s.data.users[user.ID] = user
}

func (st *Store) lock() func() {
	if st.inTx {
		return func() {}
	}
	st.s.mu.Lock()
	return st.s.mu.Unlock
}

func (st *Store) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	if st.inTx {
		return fn(st)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	snapshot := st.s.data.clone()
	if err := fn(&Store{s: st.s, inTx: true}); err != nil {
		st.s.data = snapshot
		return err
	}
	return nil
}

func (st *Store) Partners() repository.PartnerRepository         { return partners{st} }
func (st *Store) Codes() repository.CodeRepository               { return codes{st} }
func (st *Store) Clicks() repository.ClickRepository             { return clicks{st} }
func (st *Store) Attributions() repository.AttributionRepository { return attributions{st} }
func (st *Store) Conversions() repository.ConversionRepository   { return conversions{st} }
func (st *Store) Payouts() repository.PayoutRepository           { return payouts{st} }
func (st *Store) Users() repository.UserRepository               { return users{st} }
func (st *Store) Admins() repository.AdminRepository             { return admins{st} }

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func timePtr(t time.Time) *time.Time {
	return &t
}
