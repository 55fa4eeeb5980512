package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderramin/treeline/internal/testutil"
)

func TestWorkItemRepo_CreateAndGetByID(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewSQLiteWorkItemRepo(db)
	ctx := context.Background()

	proj := testutil.NewTestProject("Website")
	require.NoError(t, NewSQLiteProjectRepo(db).Create(ctx, proj))

	item := testutil.NewTestItem(proj.ID, "Design", "V", testutil.WithVersion(3))
	require.NoError(t, repo.Create(ctx, item))

	fetched, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, fetched.ID)
	assert.Equal(t, "Design", fetched.Title)
	assert.Equal(t, "V", fetched.OrderKey)
	assert.Equal(t, int64(3), fetched.Version)
	assert.Nil(t, fetched.ParentID)
}

func TestWorkItemRepo_GetByID_NotFound(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewSQLiteWorkItemRepo(db)

	_, err := repo.GetByID(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWorkItemRepo_ListChildren(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewSQLiteWorkItemRepo(db)
	ctx := context.Background()

	proj := testutil.NewTestProject("Website")
	require.NoError(t, NewSQLiteProjectRepo(db).Create(ctx, proj))

	parent := testutil.NewTestItem(proj.ID, "Epic", "V")
	require.NoError(t, repo.Create(ctx, parent))

	// Created out of key order on purpose.
	c2 := testutil.NewTestItem(proj.ID, "Second", "b", testutil.WithParent(parent.ID))
	c1 := testutil.NewTestItem(proj.ID, "First", "G", testutil.WithParent(parent.ID))
	require.NoError(t, repo.Create(ctx, c2))
	require.NoError(t, repo.Create(ctx, c1))

	children, err := repo.ListChildren(ctx, proj.ID, &parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, c1.ID, children[0].ID)
	assert.Equal(t, c2.ID, children[1].ID)

	// Root-level selection sees only the parent.
	roots, err := repo.ListChildren(ctx, proj.ID, nil)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, parent.ID, roots[0].ID)
}

func TestWorkItemRepo_SiblingNavigation(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewSQLiteWorkItemRepo(db)
	ctx := context.Background()

	proj := testutil.NewTestProject("Website")
	require.NoError(t, NewSQLiteProjectRepo(db).Create(ctx, proj))

	a := testutil.NewTestItem(proj.ID, "A", "G")
	b := testutil.NewTestItem(proj.ID, "B", "V")
	c := testutil.NewTestItem(proj.ID, "C", "k")
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	require.NoError(t, repo.Create(ctx, c))

	next, err := repo.NextSibling(ctx, proj.ID, nil, "G")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, b.ID, next.ID)

	next, err = repo.NextSibling(ctx, proj.ID, nil, "k")
	require.NoError(t, err)
	assert.Nil(t, next)

	prev, err := repo.PrevSibling(ctx, proj.ID, nil, "V")
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, a.ID, prev.ID)

	prev, err = repo.PrevSibling(ctx, proj.ID, nil, "G")
	require.NoError(t, err)
	assert.Nil(t, prev)

	last, err := repo.LastChild(ctx, proj.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, c.ID, last.ID)

	last, err = repo.LastChild(ctx, proj.ID, &a.ID)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestWorkItemRepo_UpdateStructure(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewSQLiteWorkItemRepo(db)
	ctx := context.Background()

	proj := testutil.NewTestProject("Website")
	require.NoError(t, NewSQLiteProjectRepo(db).Create(ctx, proj))

	parent := testutil.NewTestItem(proj.ID, "Epic", "V")
	item := testutil.NewTestItem(proj.ID, "Task", "k")
	require.NoError(t, repo.Create(ctx, parent))
	require.NoError(t, repo.Create(ctx, item))

	require.NoError(t, repo.UpdateStructure(ctx, item.ID, &parent.ID, "G", 1))

	fetched, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.ParentID)
	assert.Equal(t, parent.ID, *fetched.ParentID)
	assert.Equal(t, "G", fetched.OrderKey)
	assert.Equal(t, int64(1), fetched.Version)
}

func TestWorkItemRepo_UpdateStructure_NotFound(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewSQLiteWorkItemRepo(db)

	err := repo.UpdateStructure(context.Background(), "gone", nil, "V", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWorkItemRepo_Delete(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewSQLiteWorkItemRepo(db)
	ctx := context.Background()

	proj := testutil.NewTestProject("Website")
	require.NoError(t, NewSQLiteProjectRepo(db).Create(ctx, proj))

	item := testutil.NewTestItem(proj.ID, "Task", "V")
	require.NoError(t, repo.Create(ctx, item))
	require.NoError(t, repo.Delete(ctx, item.ID))

	_, err := repo.GetByID(ctx, item.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

// The sibling uniqueness index rejects a duplicate key inside one group but
// allows the same key under different parents, including the root group.
func TestWorkItemRepo_SiblingKeyUniqueness(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewSQLiteWorkItemRepo(db)
	ctx := context.Background()

	proj := testutil.NewTestProject("Website")
	require.NoError(t, NewSQLiteProjectRepo(db).Create(ctx, proj))

	parent := testutil.NewTestItem(proj.ID, "Epic", "V")
	require.NoError(t, repo.Create(ctx, parent))

	child := testutil.NewTestItem(proj.ID, "Child", "V", testutil.WithParent(parent.ID))
	require.NoError(t, repo.Create(ctx, child), "same key under a different parent must be allowed")

	dupRoot := testutil.NewTestItem(proj.ID, "Dup", "V")
	assert.Error(t, repo.Create(ctx, dupRoot), "duplicate key in the root group must be rejected")

	dupChild := testutil.NewTestItem(proj.ID, "Dup", "V", testutil.WithParent(parent.ID))
	assert.Error(t, repo.Create(ctx, dupChild), "duplicate key in a child group must be rejected")
}
