package leads

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/crm-ims/crm-ims/internal/shared"
)

type memoryRepo struct {
	items  map[int64]Lead
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: map[int64]Lead{}}
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]Lead, int, error) {
	out := []Lead{}
	for _, l := range m.items {
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		if filter.AssignedTo > 0 && l.AssignedTo != filter.AssignedTo {
			continue
		}
		if filter.Search != "" && !strings.Contains(l.Source+" "+l.Notes, filter.Search) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	if filter.Limit > 0 {
		start := min(filter.Offset(), total)
		out = out[start:min(start+filter.Limit, total)]
	}
	return out, total, nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Lead, error) {
	l, ok := m.items[id]
	if !ok {
		return Lead{}, shared.NotFound(msgNotFound, id)
	}
	return l, nil
}

func (m *memoryRepo) Create(_ context.Context, l Lead) (Lead, error) {
	m.nextID++
	l.ID = m.nextID
	m.items[l.ID] = l
	return l, nil
}

func (m *memoryRepo) Update(_ context.Context, l Lead) error {
	if _, ok := m.items[l.ID]; !ok {
		return shared.NotFound(msgNotFound, l.ID)
	}
	m.items[l.ID] = l
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.items[id]; !ok {
		return shared.NotFound(msgNotFound, id)
	}
	delete(m.items, id)
	return nil
}

func asSales(id int64) context.Context {
	return shared.ContextWithPrincipal(context.Background(), shared.Principal{UserID: id, Role: "sales"})
}

func TestCreateAppliesDefaults(t *testing.T) {
	svc := NewService(newMemoryRepo())

	l, err := svc.Create(asSales(7), LeadForm{Source: " trade show ", EstimatedValue: decimal.RequireFromString("1500.50")})
	require.NoError(t, err)
	require.Equal(t, StatusNew, l.Status)
	require.Equal(t, PriorityMedium, l.Priority)
	require.Equal(t, int64(7), l.AssignedTo)
	require.Equal(t, "trade show", l.Source)
	require.Zero(t, l.CustomerID)

	l, err = svc.Create(asSales(7), LeadForm{CustomerID: 3, Status: StatusQualified, Priority: PriorityHigh, AssignedTo: 9})
	require.NoError(t, err)
	require.Equal(t, int64(9), l.AssignedTo)
	require.Equal(t, int64(3), l.CustomerID)
}

func TestCreateRejections(t *testing.T) {
	cases := map[string]LeadForm{
		"unknown status":   {Status: "won"},
		"unknown priority": {Priority: "urgent"},
		"negative value":   {EstimatedValue: decimal.NewFromInt(-1)},
		"sub-cent value":   {EstimatedValue: decimal.RequireFromString("10.005")},
	}
	for name, form := range cases {
		t.Run(name, func(t *testing.T) {
			repo := newMemoryRepo()
			_, err := NewService(repo).Create(asSales(1), form)
			require.ErrorIs(t, err, shared.ErrValidation)
			require.Empty(t, repo.items)
		})
	}
}

func TestUpdateKeepsUnsetFields(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := asSales(4)
	l, err := svc.Create(ctx, LeadForm{CustomerID: 2, Source: "web", Notes: "asked for a demo"})
	require.NoError(t, err)

	status := StatusContacted
	value := decimal.RequireFromString("250")
	updated, err := svc.Update(ctx, l.ID, Update{Status: &status, EstimatedValue: &value})
	require.NoError(t, err)
	require.Equal(t, StatusContacted, updated.Status)
	require.True(t, updated.EstimatedValue.Equal(value))
	require.Equal(t, "web", updated.Source)
	require.Equal(t, "asked for a demo", updated.Notes)
	require.Equal(t, int64(2), updated.CustomerID)

	detach := int64(0)
	updated, err = svc.Update(ctx, l.ID, Update{CustomerID: &detach})
	require.NoError(t, err)
	require.Zero(t, updated.CustomerID)

	bad := Priority("urgent")
	_, err = svc.Update(ctx, l.ID, Update{Priority: &bad})
	require.ErrorIs(t, err, shared.ErrValidation)
	stored, err := svc.Get(ctx, l.ID)
	require.NoError(t, err)
	require.Equal(t, PriorityMedium, stored.Priority)

	_, err = svc.Update(ctx, 99, Update{Status: &status})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListFiltersByStatus(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := asSales(1)
	for _, status := range []Status{StatusNew, StatusLost, StatusNew, StatusQualified, StatusNew} {
		_, err := svc.Create(ctx, LeadForm{Status: status})
		require.NoError(t, err)
	}

	items, total, err := svc.List(ctx, ListFilter{Page: 1, Limit: 2, Status: StatusNew})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, items, 2)
	for _, l := range items {
		require.Equal(t, StatusNew, l.Status)
	}

	items, _, err = svc.List(ctx, ListFilter{Page: 2, Limit: 2, Status: StatusNew})
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, _, err = svc.List(ctx, ListFilter{Status: "won"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDelete(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := asSales(1)
	l, err := svc.Create(ctx, LeadForm{})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, l.ID))
	_, err = svc.Get(ctx, l.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, l.ID), shared.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, 0), shared.ErrValidation)
}
