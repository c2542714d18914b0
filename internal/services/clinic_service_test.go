package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/otcheredev/clinicflow/internal/cache"
	"github.com/otcheredev/clinicflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateClinic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := doctor()

	clinic, err := f.clinics.Create(ctx, doc, &models.CreateClinicRequest{Name: "  Riverside ", Location: "12 River Rd"})
	require.NoError(t, err)
	assert.Equal(t, "Riverside", clinic.Name)
	assert.Equal(t, doc.ID, clinic.OwnerID)
	assert.True(t, clinic.IsActive)
	assert.Len(t, clinic.AccessToken, 64)

	other := f.createClinic(t, doc)
	assert.NotEqual(t, clinic.AccessToken, other.AccessToken)

	assert.Equal(t,
		"https://clinic.example.com/check-in?token="+clinic.AccessToken,
		f.clinics.CheckInURL(clinic.AccessToken))

	for _, req := range []*models.CreateClinicRequest{
		{Name: "", Location: "x"},
		{Name: "x", Location: " "},
	} {
		_, err := f.clinics.Create(ctx, doc, req)
		requireKind(t, err, KindValidation)
	}
}

func TestListClinics_OnlyOwnActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := doctor()

	a := f.createClinic(t, doc)
	b := f.createClinic(t, doc)
	f.createClinic(t, doctor())

	_, err := f.clinics.Deactivate(ctx, doc, a.ID)
	require.NoError(t, err)

	list, err := f.clinics.List(ctx, doc)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)
}

func TestResolveByToken_PublicFieldsAndCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := doctor()
	clinic := f.createClinic(t, doc)

	public, err := f.clinics.ResolveByToken(ctx, clinic.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.PublicClinic{ID: clinic.ID, Name: clinic.Name, Location: clinic.Location}, *public)

	_, err = f.cache.Get(ctx, cache.ClinicTokenKey(clinic.AccessToken))
	require.NoError(t, err)

	_, err = f.clinics.Deactivate(ctx, doc, clinic.ID)
	require.NoError(t, err)

	_, err = f.clinics.ResolveByToken(ctx, clinic.AccessToken)
	requireKind(t, err, KindNotFound)

	_, err = f.clinics.ResolveByToken(ctx, "")
	requireKind(t, err, KindNotFound)
}

func TestDeleteClinic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, pat := doctor(), patient()
	clinic := f.createClinic(t, doc)

	done := f.checkIn(t, pat, clinic.ID)
	rx := f.issue(t, doc, done.ID)
	waiting := f.checkIn(t, patient(), clinic.ID)

	_, err := f.clinics.ResolveByToken(ctx, clinic.AccessToken)
	require.NoError(t, err)

	err = f.clinics.Delete(ctx, doctor(), clinic.ID)
	requireKind(t, err, KindForbidden)
	err = f.clinics.Delete(ctx, doc, uuid.New())
	requireKind(t, err, KindNotFound)

	require.NoError(t, f.clinics.Delete(ctx, doc, clinic.ID))

	_, err = f.visits.Get(ctx, doc, waiting.ID)
	requireKind(t, err, KindNotFound)
	_, err = f.clinics.ResolveByToken(ctx, clinic.AccessToken)
	requireKind(t, err, KindNotFound)

	kept, err := f.prescriptions.LookupBySecret(ctx, rx.RedemptionSecret)
	require.NoError(t, err)
	assert.Equal(t, rx.ID, kept.ID)

	err = f.clinics.Delete(ctx, doc, clinic.ID)
	requireKind(t, err, KindNotFound)
}

func TestAuditTrail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, pat := doctor(), patient()
	clinic := f.createClinic(t, doc)
	visit := f.checkIn(t, pat, clinic.ID)
	_, err := f.visits.CheckIn(ctx, pat, clinic.ID)
	require.Error(t, err)
	rx := f.issue(t, doc, visit.ID)
	_, err = f.prescriptions.Redeem(ctx, pharmacy(), rx.RedemptionSecret)
	require.NoError(t, err)

	entries := f.store.Audit().Entries()
	require.Len(t, entries, 5)

	actions := make([]string, len(entries))
	for i, e := range entries {
		actions[i] = e.Action + "/" + e.Status
	}
	assert.Equal(t, []string{
		"clinic.create/success",
		"visit.check_in/success",
		"visit.check_in/failure",
		"prescription.issue/success",
		"prescription.redeem/success",
	}, actions)

	for _, e := range entries {
		assert.NotContains(t, e.ResourceID, rx.RedemptionSecret)
		assert.NotContains(t, e.ResourceID, clinic.AccessToken)
	}
	assert.Equal(t, visit.ID.String(), entries[1].ResourceID)
	assert.Equal(t, rx.ID.String(), entries[4].ResourceID)
}

func TestIsKind(t *testing.T) {
	err := newError(KindConflict, "dup").withVisit(uuid.New())
	assert.True(t, IsKind(err, KindConflict))
	assert.False(t, IsKind(err, KindNotFound))
	assert.False(t, IsKind(assert.AnError, KindConflict))
	assert.Equal(t, "Conflict: dup", err.Error())
}

func TestAuditTrail_OwnerPaging(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, other, pat := doctor(), doctor(), patient()
	clinic := f.createClinic(t, doc)
	unrelated := f.createClinic(t, other)
	visit := f.checkIn(t, pat, clinic.ID)
	f.checkIn(t, patient(), unrelated.ID)
	_, err := f.visits.Start(ctx, doc, visit.ID)
	require.NoError(t, err)

	entries, err := f.clinics.AuditTrail(ctx, doc, clinic.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, models.ActionVisitStart, entries[0].Action)
	assert.Equal(t, models.ActionClinicCreate, entries[2].Action)
	for _, e := range entries {
		assert.Equal(t, clinic.ID, e.ClinicID)
	}

	page, err := f.clinics.AuditTrail(ctx, doc, clinic.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, models.ActionVisitCheckIn, page[0].Action)

	page, err = f.clinics.AuditTrail(ctx, doc, clinic.ID, 10, 50)
	require.NoError(t, err)
	assert.Empty(t, page)

	_, err = f.clinics.AuditTrail(ctx, other, clinic.ID, 10, 0)
	requireKind(t, err, KindForbidden)
}

func TestAuditTrail_PageSize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := doctor()
	clinic := f.createClinic(t, doc)
	for i := 0; i < 210; i++ {
		f.checkIn(t, patient(), clinic.ID)
	}

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero uses default", 0, 50},
		{"negative uses default", -3, 50},
		{"explicit", 7, 7},
		{"capped", 1000, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := f.clinics.AuditTrail(ctx, doc, clinic.ID, tt.limit, 0)
			require.NoError(t, err)
			assert.Len(t, entries, tt.want)
		})
	}
}
