package forms

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formsmith/internal/engine/events"
	"formsmith/internal/engine/history"
	"formsmith/internal/engine/permissions"
	apperrors "formsmith/internal/pkg/errors"
	"formsmith/internal/platform/database/dbtest"
	"formsmith/internal/platform/models"
	"formsmith/internal/platform/repositories"
)

type fixture struct {
	db       *sql.DB
	svc      *Service
	recorder *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	ctx := context.Background()

	orgs := repositories.NewOrganizationRepository(db)
	members := repositories.NewMembershipRepository(db)
	require.NoError(t, orgs.Upsert(ctx, &models.Organization{ID: "org_1", Name: "Acme"}))
	require.NoError(t, members.Upsert(ctx, &models.Membership{OrganizationID: "org_1", UserID: "admin_1", Role: models.RoleAdmin}))
	require.NoError(t, members.Upsert(ctx, &models.Membership{OrganizationID: "org_1", UserID: "member_1", Role: models.RoleMember}))

	resolver, err := permissions.NewResolver(orgs, members)
	require.NoError(t, err)

	rec := events.NewRecorder()
	return &fixture{db: db, svc: NewService(db, resolver, rec), recorder: rec}
}

func as(userID string) context.Context {
	return permissions.WithIdentity(context.Background(), permissions.Identity{UserID: userID})
}

func (f *fixture) history(t *testing.T, formID string) []*history.Entry {
	t.Helper()
	entries, err := history.Recent(context.Background(), f.db, formID, 100)
	require.NoError(t, err)
	return entries
}

func TestCreateFormRecordsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := as("admin_1")

	form, err := f.svc.CreateForm(ctx, "org_1", CreateFormInput{Title: "  Contact  "})
	require.NoError(t, err)
	assert.Equal(t, "Contact", form.Title)
	assert.Equal(t, models.FormStatusDraft, form.Status)
	assert.Equal(t, "org_1", form.BusinessID)

	entries := f.history(t, form.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, history.EditFormCreated, entries[0].EditType)
	assert.Equal(t, "admin_1", entries[0].UserID)
}

func TestCreateFormValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateForm(as("admin_1"), "org_1", CreateFormInput{Title: "   "})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.CreateForm(context.Background(), "org_1", CreateFormInput{Title: "x"})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = f.svc.CreateForm(as("stranger"), "org_1", CreateFormInput{Title: "x"})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestPersonalAccountDefault(t *testing.T) {
	f := newFixture(t)

	form, err := f.svc.CreateForm(as("user_1"), "", CreateFormInput{Title: "Mine"})
	require.NoError(t, err)
	assert.Equal(t, "user_1", form.BusinessID)

	_, err = f.svc.GetForm(as("user_2"), form.ID, "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdateFormRecordsChangedPairsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := as("member_1")
	form, err := f.svc.CreateForm(ctx, "org_1", CreateFormInput{Title: "Contact", Description: "Say hi"})
	require.NoError(t, err)

	title := "Contact us"
	same := "Say hi"
	_, err = f.svc.UpdateForm(ctx, form.ID, "org_1", UpdateFormInput{Title: &title, Description: &same})
	require.NoError(t, err)

	entries := f.history(t, form.ID)
	require.Len(t, entries, 2)
	d, ok := entries[0].Details.(*history.FormUpdatedDetails)
	require.True(t, ok)
	assert.Equal(t, "Contact", *d.OldTitle)
	assert.Equal(t, "Contact us", *d.NewTitle)
	assert.Nil(t, d.OldDescription)

	// nothing changes, nothing recorded
	_, err = f.svc.UpdateForm(ctx, form.ID, "org_1", UpdateFormInput{Title: &title})
	require.NoError(t, err)
	assert.Len(t, f.history(t, form.ID), 2)
}

func TestChangeStatusPublishesEvent(t *testing.T) {
	f := newFixture(t)
	ctx := as("admin_1")
	form, err := f.svc.CreateForm(ctx, "org_1", CreateFormInput{Title: "Contact"})
	require.NoError(t, err)

	updated, err := f.svc.ChangeStatus(ctx, form.ID, "org_1", models.FormStatusPublished)
	require.NoError(t, err)
	assert.Equal(t, models.FormStatusPublished, updated.Status)

	e, ok := f.recorder.Next(time.Second)
	require.True(t, ok)
	assert.Equal(t, events.StatusChanged, e.Type)
	assert.Equal(t, "org_1", e.BusinessID)

	_, err = f.svc.ChangeStatus(ctx, form.ID, "org_1", "deleted")
	assert.True(t, apperrors.IsValidation(err))
}

func TestDeleteFormRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	form, err := f.svc.CreateForm(as("member_1"), "org_1", CreateFormInput{Title: "Contact"})
	require.NoError(t, err)

	err = f.svc.DeleteForm(as("member_1"), form.ID, "org_1")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	require.NoError(t, f.svc.DeleteForm(as("admin_1"), form.ID, "org_1"))
	_, err = f.svc.GetForm(as("admin_1"), form.ID, "org_1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestFieldLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := as("admin_1")
	form, err := f.svc.CreateForm(ctx, "org_1", CreateFormInput{Title: "Contact"})
	require.NoError(t, err)

	email, err := f.svc.CreateField(ctx, form.ID, "org_1", CreateFieldInput{Type: models.FieldSingleLine, Title: "Email", Required: true})
	require.NoError(t, err)
	topic, err := f.svc.CreateField(ctx, form.ID, "org_1", CreateFieldInput{Type: models.FieldSelect, Title: "Topic", Options: []string{"Sales", "Support"}})
	require.NoError(t, err)
	assert.Equal(t, email.Order+1, topic.Order)

	_, err = f.svc.CreateField(ctx, form.ID, "org_1", CreateFieldInput{Type: models.FieldSelect, Title: "Empty"})
	assert.True(t, apperrors.IsValidation(err), "select needs options")

	_, err = f.svc.CreateField(ctx, form.ID, "org_1", CreateFieldInput{Type: "color", Title: "Bad"})
	assert.True(t, apperrors.IsValidation(err))

	title := "Email Address"
	updated, err := f.svc.UpdateField(ctx, form.ID, email.ID, "org_1", UpdateFieldInput{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Email Address", updated.Title)

	entries := f.history(t, form.ID)
	d, ok := entries[0].Details.(*history.FieldUpdatedDetails)
	require.True(t, ok)
	assert.Equal(t, "Email", *d.OldTitle)
	assert.Nil(t, d.OldRequired)

	require.NoError(t, f.svc.DeleteField(ctx, form.ID, email.ID, "org_1"))
	entries = f.history(t, form.ID)
	deleted, ok := entries[0].Details.(*history.FieldDeletedDetails)
	require.True(t, ok)
	assert.Equal(t, "Email Address", deleted.FieldTitle)
	assert.True(t, deleted.Required)

	err = f.svc.DeleteField(ctx, form.ID, email.ID, "org_1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReorderFieldsChecksVersion(t *testing.T) {
	f := newFixture(t)
	ctx := as("admin_1")
	form, err := f.svc.CreateForm(ctx, "org_1", CreateFormInput{Title: "Contact"})
	require.NoError(t, err)
	a, err := f.svc.CreateField(ctx, form.ID, "org_1", CreateFieldInput{Type: models.FieldSingleLine, Title: "A"})
	require.NoError(t, err)
	b, err := f.svc.CreateField(ctx, form.ID, "org_1", CreateFieldInput{Type: models.FieldSingleLine, Title: "B"})
	require.NoError(t, err)

	current, err := f.svc.GetForm(ctx, form.ID, "org_1")
	require.NoError(t, err)

	version, err := f.svc.ReorderFields(ctx, form.ID, "org_1", ReorderInput{FieldIDs: []string{b.ID, a.ID}, ExpectedVersion: current.Version})
	require.NoError(t, err)
	assert.Equal(t, current.Version+1, version)

	// stale version: rejected and nothing moves
	_, err = f.svc.ReorderFields(ctx, form.ID, "org_1", ReorderInput{FieldIDs: []string{a.ID, b.ID}, ExpectedVersion: current.Version})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	reloaded, err := f.svc.GetForm(ctx, form.ID, "org_1")
	require.NoError(t, err)
	require.Len(t, reloaded.Fields, 2)
	assert.Equal(t, b.ID, reloaded.Fields[0].ID)
	assert.Equal(t, a.ID, reloaded.Fields[1].ID)

	_, err = f.svc.ReorderFields(ctx, form.ID, "org_1", ReorderInput{FieldIDs: []string{a.ID}, ExpectedVersion: reloaded.Version})
	assert.True(t, apperrors.IsValidation(err))
	after, err := f.svc.GetForm(ctx, form.ID, "org_1")
	require.NoError(t, err)
	assert.Equal(t, reloaded.Version, after.Version, "failed reorder rolls back the version bump")
}

func TestTags(t *testing.T) {
	f := newFixture(t)
	ctx := as("admin_1")

	tag, err := f.svc.CreateTag(ctx, "org_1", TagInput{Name: "Leads", Color: "#ff0000"})
	require.NoError(t, err)
	_, err = f.svc.CreateTag(ctx, "org_1", TagInput{Name: "Leads"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	foreign, err := f.svc.CreateTag(as("user_9"), "", TagInput{Name: "Mine"})
	require.NoError(t, err)

	form, err := f.svc.CreateForm(ctx, "org_1", CreateFormInput{Title: "Contact", TagIDs: []string{tag.ID}})
	require.NoError(t, err)
	got, err := f.svc.GetForm(ctx, form.ID, "org_1")
	require.NoError(t, err)
	require.Len(t, got.Tags, 1)
	assert.Equal(t, "Leads", got.Tags[0].Name)

	_, err = f.svc.SetFormTags(ctx, form.ID, "org_1", []string{foreign.ID})
	assert.True(t, apperrors.IsValidation(err))

	tags, err := f.svc.SetFormTags(ctx, form.ID, "org_1", nil)
	require.NoError(t, err)
	assert.Empty(t, tags)

	assert.ErrorIs(t, f.svc.DeleteTag(ctx, "org_1", foreign.ID), apperrors.ErrNotFound)
	require.NoError(t, f.svc.DeleteTag(ctx, "org_1", tag.ID))
}
