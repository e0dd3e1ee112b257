package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/models"
	"github.com/ajolla/ottowrite-sub001/internal/repository"
)

type partners struct{ st *Store }

func (r partners) Create(_ context.Context, partner *models.Partner) error {
	defer r.st.lock()()
	d := r.st.s.data
	for _, p := range d.partners {
		if strings.EqualFold(p.Email, partner.Email) {
			return repository.ErrDuplicate
		}
	}
	now := r.st.s.now()
	partner.ID = d.id()
	partner.CreatedAt, partner.UpdatedAt = now, now
	d.partners[partner.ID] = *partner
	return nil
}

func (r partners) GetByID(_ context.Context, id uint) (*models.Partner, error) {
	defer r.st.lock()()
	p, ok := r.st.s.data.partners[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r partners) UpdateProfile(_ context.Context, partner *models.Partner) error {
	defer r.st.lock()()
	d := r.st.s.data
	current, ok := d.partners[partner.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for id, p := range d.partners {
		if id != partner.ID && strings.EqualFold(p.Email, partner.Email) {
			return repository.ErrDuplicate
		}
	}
	current.Name = partner.Name
	current.Email = partner.Email
	current.UserID = partner.UserID
	current.Status = partner.Status
	current.CommissionType = partner.CommissionType
	current.SignupCommission = partner.SignupCommission
	current.SubscriptionCommission = partner.SubscriptionCommission
	current.PayoutMethod = partner.PayoutMethod
	current.PayoutDetails = partner.PayoutDetails
	current.UpdatedAt = r.st.s.now()
	d.partners[partner.ID] = current
	return nil
}

func (r partners) Delete(_ context.Context, id uint) error {
	defer r.st.lock()()
	if _, ok := r.st.s.data.partners[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.st.s.data.partners, id)
	return nil
}

func (r partners) sorted(less func(a, b *models.Partner) bool) []*models.Partner {
	out := make([]*models.Partner, 0, len(r.st.s.data.partners))
	for _, p := range r.st.s.data.partners {
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (r partners) List(_ context.Context, limit, offset int) ([]*models.Partner, error) {
	defer r.st.lock()()
	all := r.sorted(func(a, b *models.Partner) bool { return a.ID > b.ID })
	return paginate(all, limit, offset), nil
}

func (r partners) CountByStatus(_ context.Context, status models.PartnerStatus) (int64, error) {
	defer r.st.lock()()
	var n int64
	for _, p := range r.st.s.data.partners {
		if p.Status == status {
			n++
		}
	}
	return n, nil
}

func (r partners) Count(_ context.Context) (int64, error) {
	defer r.st.lock()()
	return int64(len(r.st.s.data.partners)), nil
}

func (r partners) TopByEarnings(_ context.Context, limit int) ([]*models.Partner, error) {
	defer r.st.lock()()
	all := r.sorted(func(a, b *models.Partner) bool {
		if a.TotalEarnings == b.TotalEarnings {
			return a.ID < b.ID
		}
		return a.TotalEarnings > b.TotalEarnings
	})
	out := all[:0]
	for _, p := range all {
		if p.TotalEarnings > 0 {
			out = append(out, p)
		}
	}
	return paginate(out, limit, 0), nil
}

func (r partners) Totals(_ context.Context) (repository.PartnerTotals, error) {
	defer r.st.lock()()
	var t repository.PartnerTotals
	for _, p := range r.st.s.data.partners {
		t.Total += p.TotalEarnings
		t.Pending += p.PendingEarnings
		t.Paid += p.PaidEarnings
	}
	return t, nil
}

func (r partners) AddPending(_ context.Context, id uint, amount int64) error {
	defer r.st.lock()()
	p, ok := r.st.s.data.partners[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.PendingEarnings+amount < 0 || p.TotalEarnings+amount < 0 {
		return repository.ErrConditionFailed
	}
	p.PendingEarnings += amount
	p.TotalEarnings += amount
	p.UpdatedAt = r.st.s.now()
	r.st.s.data.partners[id] = p
	return nil
}

func (r partners) Settle(_ context.Context, id uint, amount int64) error {
	defer r.st.lock()()
	p, ok := r.st.s.data.partners[id]
	if !ok {
		return repository.ErrNotFound
	}
	if amount < 0 || p.PendingEarnings < amount {
		return repository.ErrConditionFailed
	}
	p.PendingEarnings -= amount
	p.PaidEarnings += amount
	p.UpdatedAt = r.st.s.now()
	r.st.s.data.partners[id] = p
	return nil
}

type codes struct{ st *Store }

func (r codes) Create(_ context.Context, code *models.ReferralCode) error {
	defer r.st.lock()()
	d := r.st.s.data
	for _, c := range d.codes {
		if c.Code == code.Code {
			return repository.ErrDuplicate
		}
	}
	now := r.st.s.now()
	code.ID = d.id()
	code.CreatedAt, code.UpdatedAt = now, now
	d.codes[code.ID] = *code
	return nil
}

func (r codes) GetByID(_ context.Context, id uint) (*models.ReferralCode, error) {
	defer r.st.lock()()
	c, ok := r.st.s.data.codes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r codes) GetByCode(_ context.Context, code string) (*models.ReferralCode, error) {
	defer r.st.lock()()
	for _, c := range r.st.s.data.codes {
		if c.Code == code {
			c := c
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r codes) ListByPartner(_ context.Context, partnerID uint) ([]*models.ReferralCode, error) {
	defer r.st.lock()()
	var out []*models.ReferralCode
	for _, c := range r.st.s.data.codes {
		if c.PartnerID == partnerID {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r codes) SetStatus(_ context.Context, id uint, status models.CodeStatus) error {
	defer r.st.lock()()
	c, ok := r.st.s.data.codes[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = r.st.s.now()
	r.st.s.data.codes[id] = c
	return nil
}

func (r codes) IncrementUsage(_ context.Context, id uint) (bool, error) {
	defer r.st.lock()()
	c, ok := r.st.s.data.codes[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if c.MaxUses != nil && c.CurrentUses >= *c.MaxUses {
		return false, nil
	}
	c.CurrentUses++
	c.UpdatedAt = r.st.s.now()
	r.st.s.data.codes[id] = c
	return true, nil
}

func (r codes) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	defer r.st.lock()()
	var n int64
	for id, c := range r.st.s.data.codes {
		if c.Status == models.CodeStatusActive && c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
			c.Status = models.CodeStatusExpired
			c.UpdatedAt = r.st.s.now()
			r.st.s.data.codes[id] = c
			n++
		}
	}
	return n, nil
}

func (r codes) Count(_ context.Context) (int64, error) {
	defer r.st.lock()()
	return int64(len(r.st.s.data.codes)), nil
}

type clicks struct{ st *Store }

func (r clicks) Create(_ context.Context, click *models.Click) error {
	defer r.st.lock()()
	d := r.st.s.data
	for _, c := range d.clicks {
		if c.Token == click.Token {
			return repository.ErrDuplicate
		}
	}
	now := r.st.s.now()
	click.ID = d.id()
	click.CreatedAt, click.UpdatedAt = now, now
	if click.State == "" {
		click.State = models.ClickStateUnconverted
	}
	d.clicks[click.ID] = *click
	return nil
}

func (r clicks) GetByID(_ context.Context, id uint) (*models.Click, error) {
	defer r.st.lock()()
	c, ok := r.st.s.data.clicks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r clicks) GetByToken(_ context.Context, token string) (*models.Click, error) {
	defer r.st.lock()()
	for _, c := range r.st.s.data.clicks {
		if c.Token == token {
			c := c
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r clicks) MarkConverted(_ context.Context, clickID uint, userID string, conversionID uint, at time.Time) (bool, error) {
	defer r.st.lock()()
	c, ok := r.st.s.data.clicks[clickID]
	if !ok || c.State != models.ClickStateUnconverted {
		return false, nil
	}
	c.State = models.ClickStateConverted
	c.ConvertedUserID = &userID
	c.ConversionID = &conversionID
	c.ConvertedAt = timePtr(at)
	c.UpdatedAt = r.st.s.now()
	r.st.s.data.clicks[clickID] = c
	return true, nil
}

func (r clicks) Count(_ context.Context) (int64, error) {
	defer r.st.lock()()
	return int64(len(r.st.s.data.clicks)), nil
}

func (r clicks) CountConverted(_ context.Context) (int64, error) {
	defer r.st.lock()()
	var n int64
	for _, c := range r.st.s.data.clicks {
		if c.State == models.ClickStateConverted {
			n++
		}
	}
	return n, nil
}

type attributions struct{ st *Store }

func (r attributions) Bind(_ context.Context, attribution *models.UserAttribution) (bool, error) {
	defer r.st.lock()()
	d := r.st.s.data
	if _, ok := d.attributions[attribution.UserID]; ok {
		return false, nil
	}
	attribution.ID = d.id()
	attribution.CreatedAt = r.st.s.now()
	d.attributions[attribution.UserID] = *attribution
	return true, nil
}

func (r attributions) GetByUserID(_ context.Context, userID string) (*models.UserAttribution, error) {
	defer r.st.lock()()
	a, ok := r.st.s.data.attributions[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

type conversions struct{ st *Store }

func (r conversions) Create(_ context.Context, conversion *models.Conversion) error {
	defer r.st.lock()()
	d := r.st.s.data
	for _, c := range d.conversions {
		if c.ReferralCodeID == conversion.ReferralCodeID && c.UserID == conversion.UserID &&
			c.ConversionType == conversion.ConversionType && c.TierKey == conversion.TierKey {
			return repository.ErrDuplicate
		}
	}
	now := r.st.s.now()
	conversion.ID = d.id()
	conversion.CreatedAt, conversion.UpdatedAt = now, now
	d.conversions[conversion.ID] = *conversion
	return nil
}

func (r conversions) GetByID(_ context.Context, id uint) (*models.Conversion, error) {
	defer r.st.lock()()
	c, ok := r.st.s.data.conversions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r conversions) FindByKey(_ context.Context, codeID uint, userID string, conversionType models.ConversionType, tierKey string) (*models.Conversion, error) {
	defer r.st.lock()()
	for _, c := range r.st.s.data.conversions {
		if c.ReferralCodeID == codeID && c.UserID == userID && c.ConversionType == conversionType && c.TierKey == tierKey {
			c := c
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r conversions) filter(keep func(c *models.Conversion) bool) []*models.Conversion {
	var out []*models.Conversion
	for _, c := range r.st.s.data.conversions {
		c := c
		if keep(&c) {
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func newestFirst(items []*models.Conversion) []*models.Conversion {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items
}

func (r conversions) ListByPartner(_ context.Context, partnerID uint, limit, offset int) ([]*models.Conversion, error) {
	defer r.st.lock()()
	out := r.filter(func(c *models.Conversion) bool { return c.PartnerID == partnerID })
	return paginate(newestFirst(out), limit, offset), nil
}

func (r conversions) ListRecent(_ context.Context, limit int) ([]*models.Conversion, error) {
	defer r.st.lock()()
	out := r.filter(func(*models.Conversion) bool { return true })
	return paginate(newestFirst(out), limit, 0), nil
}

func (r conversions) ListPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]*models.Conversion, error) {
	defer r.st.lock()()
	out := r.filter(func(c *models.Conversion) bool {
		return c.CommissionStatus == models.CommissionStatusPending && !c.CreatedAt.After(cutoff)
	})
	return paginate(out, limit, 0), nil
}

func (r conversions) Stats(_ context.Context) (repository.ConversionStats, error) {
	defer r.st.lock()()
	stats := repository.ConversionStats{
		Count:  make(map[models.CommissionStatus]int64),
		Amount: make(map[models.CommissionStatus]int64),
	}
	for _, c := range r.st.s.data.conversions {
		stats.Count[c.CommissionStatus]++
		stats.Amount[c.CommissionStatus] += c.CommissionAmount
	}
	return stats, nil
}

func (r conversions) Approve(_ context.Context, id uint, at time.Time) (bool, error) {
	defer r.st.lock()()
	c, ok := r.st.s.data.conversions[id]
	if !ok || c.CommissionStatus != models.CommissionStatusPending {
		return false, nil
	}
	c.CommissionStatus = models.CommissionStatusApproved
	c.ApprovedAt = timePtr(at)
	c.UpdatedAt = r.st.s.now()
	r.st.s.data.conversions[id] = c
	return true, nil
}

func (r conversions) Cancel(_ context.Context, id uint, reason string, at time.Time) (bool, error) {
	defer r.st.lock()()
	c, ok := r.st.s.data.conversions[id]
	if !ok || c.PayoutBatchID != nil {
		return false, nil
	}
	if c.CommissionStatus != models.CommissionStatusPending && c.CommissionStatus != models.CommissionStatusApproved {
		return false, nil
	}
	c.CommissionStatus = models.CommissionStatusCancelled
	c.CancelledAt = timePtr(at)
	c.CancelReason = reason
	c.UpdatedAt = r.st.s.now()
	r.st.s.data.conversions[id] = c
	return true, nil
}

func (r conversions) ClaimForBatch(_ context.Context, partnerID, batchID uint) ([]*models.Conversion, error) {
	defer r.st.lock()()
	var claimed []*models.Conversion
	for id, c := range r.st.s.data.conversions {
		if c.PartnerID != partnerID || !c.IsClaimable() {
			continue
		}
		batch := batchID
		c.PayoutBatchID = &batch
		c.UpdatedAt = r.st.s.now()
		r.st.s.data.conversions[id] = c
		c := c
		claimed = append(claimed, &c)
	}
	sort.Slice(claimed, func(i, j int) bool { return claimed[i].ID < claimed[j].ID })
	return claimed, nil
}

func (r conversions) MarkBatchPaid(_ context.Context, batchID uint, at time.Time) (int64, error) {
	defer r.st.lock()()
	var n int64
	for id, c := range r.st.s.data.conversions {
		if c.PayoutBatchID == nil || *c.PayoutBatchID != batchID || c.CommissionStatus != models.CommissionStatusApproved {
			continue
		}
		c.CommissionStatus = models.CommissionStatusPaid
		c.PaidAt = timePtr(at)
		c.UpdatedAt = r.st.s.now()
		r.st.s.data.conversions[id] = c
		n++
	}
	return n, nil
}

func (r conversions) ReleaseBatch(_ context.Context, batchID uint) (int64, error) {
	defer r.st.lock()()
	var n int64
	for id, c := range r.st.s.data.conversions {
		if c.PayoutBatchID == nil || *c.PayoutBatchID != batchID || c.CommissionStatus != models.CommissionStatusApproved {
			continue
		}
		c.PayoutBatchID = nil
		c.UpdatedAt = r.st.s.now()
		r.st.s.data.conversions[id] = c
		n++
	}
	return n, nil
}

func (r conversions) PartnerIDsWithClaimable(_ context.Context) ([]uint, error) {
	defer r.st.lock()()
	seen := make(map[uint]struct{})
	var ids []uint
	for _, c := range r.st.s.data.conversions {
		if !c.IsClaimable() {
			continue
		}
		if _, ok := seen[c.PartnerID]; ok {
			continue
		}
		seen[c.PartnerID] = struct{}{}
		ids = append(ids, c.PartnerID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type payouts struct{ st *Store }

func (r payouts) Create(_ context.Context, batch *models.PayoutBatch) error {
	defer r.st.lock()()
	now := r.st.s.now()
	batch.ID = r.st.s.data.id()
	batch.CreatedAt, batch.UpdatedAt = now, now
	if batch.Status == "" {
		batch.Status = models.PayoutStatusPending
	}
	stored := *batch
	stored.ConversionIDs = append([]int64(nil), batch.ConversionIDs...)
	r.st.s.data.payouts[batch.ID] = stored
	return nil
}

func (r payouts) get(id uint) (*models.PayoutBatch, error) {
	b, ok := r.st.s.data.payouts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	b.ConversionIDs = append([]int64(nil), b.ConversionIDs...)
	return &b, nil
}

func (r payouts) GetByID(_ context.Context, id uint) (*models.PayoutBatch, error) {
	defer r.st.lock()()
	return r.get(id)
}

func (r payouts) GetForUpdate(_ context.Context, id uint) (*models.PayoutBatch, error) {
	defer r.st.lock()()
	return r.get(id)
}

func (r payouts) SetClaim(_ context.Context, id uint, amount int64, conversionIDs []int64) error {
	defer r.st.lock()()
	b, ok := r.st.s.data.payouts[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.Amount = amount
	b.ConversionIDs = append([]int64(nil), conversionIDs...)
	b.UpdatedAt = r.st.s.now()
	r.st.s.data.payouts[id] = b
	return nil
}

func (r payouts) Transition(_ context.Context, id uint, from []models.PayoutStatus, to models.PayoutStatus, fields map[string]interface{}) (bool, error) {
	defer r.st.lock()()
	b, ok := r.st.s.data.payouts[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, s := range from {
		if b.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}

	b.Status = to
	for k, v := range fields {
		switch k {
		case "transaction_id":
			b.TransactionID, _ = v.(string)
		case "failure_reason":
			b.FailureReason, _ = v.(string)
		case "processing_at":
			b.ProcessingAt = asTime(v)
		case "completed_at":
			b.CompletedAt = asTime(v)
		case "failed_at":
			b.FailedAt = asTime(v)
		case "cancelled_at":
			b.CancelledAt = asTime(v)
		}
	}
	b.UpdatedAt = r.st.s.now()
	r.st.s.data.payouts[id] = b
	return true, nil
}

func asTime(v interface{}) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return timePtr(t)
	case *time.Time:
		return t
	}
	return nil
}

func (r payouts) list(keep func(b *models.PayoutBatch) bool, limit, offset int) []*models.PayoutBatch {
	var out []*models.PayoutBatch
	for _, b := range r.st.s.data.payouts {
		b := b
		if keep(&b) {
			b.ConversionIDs = append([]int64(nil), b.ConversionIDs...)
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, limit, offset)
}

func (r payouts) ListByPartner(_ context.Context, partnerID uint, limit, offset int) ([]*models.PayoutBatch, error) {
	defer r.st.lock()()
	return r.list(func(b *models.PayoutBatch) bool { return b.PartnerID == partnerID }, limit, offset), nil
}

func (r payouts) ListRecent(_ context.Context, limit int) ([]*models.PayoutBatch, error) {
	defer r.st.lock()()
	return r.list(func(*models.PayoutBatch) bool { return true }, limit, 0), nil
}

type users struct{ st *Store }

func (r users) GetByID(_ context.Context, id string) (*models.User, error) {
	defer r.st.lock()()
	u, ok := r.st.s.data.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r users) GetByEmail(_ context.Context, email string) (*models.User, error) {
	defer r.st.lock()()
	for _, u := range r.st.s.data.users {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

type admins struct{ st *Store }

func (r admins) Create(_ context.Context, admin *models.AdminUser) error {
	defer r.st.lock()()
	d := r.st.s.data
	for _, a := range d.admins {
		if a.Username == admin.Username {
			return repository.ErrDuplicate
		}
	}
	now := r.st.s.now()
	admin.ID = d.id()
	admin.CreatedAt, admin.UpdatedAt = now, now
	d.admins[admin.ID] = *admin
	return nil
}

func (r admins) GetByID(_ context.Context, id uint) (*models.AdminUser, error) {
	defer r.st.lock()()
	a, ok := r.st.s.data.admins[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r admins) GetByUsername(_ context.Context, username string) (*models.AdminUser, error) {
	defer r.st.lock()()
	for _, a := range r.st.s.data.admins {
		if a.Username == username {
			a := a
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r admins) UpdateLastLogin(_ context.Context, id uint, at time.Time) error {
	defer r.st.lock()()
	a, ok := r.st.s.data.admins[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.LastLoginAt = timePtr(at)
	r.st.s.data.admins[id] = a
	return nil
}
