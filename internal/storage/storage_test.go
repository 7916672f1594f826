package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapilot-ai/datapilot/internal/model"
	"github.com/datapilot-ai/datapilot/internal/storage"
	"github.com/datapilot-ai/datapilot/internal/testutil"
)

var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func createTestUser(t *testing.T, username string) model.User {
	t.Helper()
	u, err := testDB.CreateUser(context.Background(), model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "salt$hash",
	})
	require.NoError(t, err)
	return u
}

func TestUserCRUD(t *testing.T) {
	ctx := context.Background()
	u := createTestUser(t, "storage-alice")

	got, err := testDB.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Username, got.Username)
	assert.Equal(t, u.Email, got.Email)

	// Lookup by username and by email.
	byName, err := testDB.GetUserByIdentifier(ctx, "storage-alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	byEmail, err := testDB.GetUserByIdentifier(ctx, "storage-alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = testDB.GetUserByIdentifier(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateUserDuplicate(t *testing.T) {
	ctx := context.Background()
	createTestUser(t, "storage-bob")

	// Same username, different email.
	_, err := testDB.CreateUser(ctx, model.User{
		Username:     "storage-bob",
		Email:        "other@example.com",
		PasswordHash: "salt$hash",
	})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	// Same email, different username.
	_, err = testDB.CreateUser(ctx, model.User{
		Username:     "storage-bob2",
		Email:        "storage-bob@example.com",
		PasswordHash: "salt$hash",
	})
	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestUpdateUserProfile(t *testing.T) {
	ctx := context.Background()
	u := createTestUser(t, "storage-carol")

	name := "Carol"
	prefs := "cycling"
	updated, err := testDB.UpdateUserProfile(ctx, u.ID, &name, nil, nil, &prefs)
	require.NoError(t, err)
	require.NotNil(t, updated.Name)
	assert.Equal(t, "Carol", *updated.Name)
	assert.Nil(t, updated.DateOfBirth)
	assert.True(t, updated.UpdatedAt.After(u.UpdatedAt) || updated.UpdatedAt.Equal(u.UpdatedAt))

	// Clearing a field persists as NULL.
	updated2, err := testDB.UpdateUserProfile(ctx, u.ID, &name, nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, updated2.Preferences)

	_, err = testDB.UpdateUserProfile(ctx, uuid.New(), &name, nil, nil, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFolderLifecycle(t *testing.T) {
	ctx := context.Background()
	u := createTestUser(t, "storage-dave")

	f, err := testDB.CreateFolder(ctx, u.ID, "Reports")
	require.NoError(t, err)

	folders, err := testDB.ListFolders(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	assert.Equal(t, "Reports", folders[0].Name)

	renamed, err := testDB.RenameFolder(ctx, u.ID, f.ID, "Quarterly")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly", renamed.Name)

	// Another user's folder is invisible.
	other := createTestUser(t, "storage-erin")
	_, err = testDB.RenameFolder(ctx, other.ID, f.ID, "Stolen")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, testDB.DeleteFolder(ctx, u.ID, f.ID))
	assert.ErrorIs(t, testDB.DeleteFolder(ctx, u.ID, f.ID), storage.ErrNotFound)
}

func TestDeleteFolderUnassignsQuestions(t *testing.T) {
	ctx := context.Background()
	u := createTestUser(t, "storage-frank")

	f, err := testDB.CreateFolder(ctx, u.ID, "Temp")
	require.NoError(t, err)

	q, err := testDB.CreateQuestion(ctx, model.Question{
		UserID:   u.ID,
		Title:    "revenue by quarter",
		Answer:   "## Report",
		FolderID: &f.ID,
	})
	require.NoError(t, err)

	require.NoError(t, testDB.DeleteFolder(ctx, u.ID, f.ID))

	got, err := testDB.GetQuestion(ctx, u.ID, q.ID)
	require.NoError(t, err)
	assert.Nil(t, got.FolderID)
}

func TestQuestionLifecycle(t *testing.T) {
	ctx := context.Background()
	u := createTestUser(t, "storage-gina")

	latency := 12.5
	tokens := 42
	modelName := "gemma-3-27b-it"
	q, err := testDB.CreateQuestion(ctx, model.Question{
		UserID:         u.ID,
		Title:          "top customers by revenue",
		Answer:         "## Report\ncustomer A",
		LatencySeconds: &latency,
		UsedTokens:     &tokens,
		Model:          &modelName,
	})
	require.NoError(t, err)

	got, err := testDB.GetQuestion(ctx, u.ID, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "top customers by revenue", got.Title)
	require.NotNil(t, got.LatencySeconds)
	assert.Equal(t, 12.5, *got.LatencySeconds)
	require.NotNil(t, got.UsedTokens)
	assert.Equal(t, 42, *got.UsedTokens)

	// Like.
	liked, err := testDB.SetQuestionLiked(ctx, u.ID, q.ID, true)
	require.NoError(t, err)
	assert.True(t, liked.Liked)

	// Move.
	f, err := testDB.CreateFolder(ctx, u.ID, "Favorites")
	require.NoError(t, err)
	moved, err := testDB.MoveQuestionToFolder(ctx, u.ID, q.ID, &f.ID)
	require.NoError(t, err)
	require.NotNil(t, moved.FolderID)
	assert.Equal(t, f.ID, *moved.FolderID)

	// Moving into another user's folder fails before touching the question.
	other := createTestUser(t, "storage-hugo")
	foreign, err := testDB.CreateFolder(ctx, other.ID, "Foreign")
	require.NoError(t, err)
	_, err = testDB.MoveQuestionToFolder(ctx, u.ID, q.ID, &foreign.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Delete, owner-scoped.
	assert.ErrorIs(t, testDB.DeleteQuestion(ctx, other.ID, q.ID), storage.ErrNotFound)
	require.NoError(t, testDB.DeleteQuestion(ctx, u.ID, q.ID))
	_, err = testDB.GetQuestion(ctx, u.ID, q.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSimilarQuestions(t *testing.T) {
	ctx := context.Background()
	u := createTestUser(t, "storage-ivy")

	vec := func(vals ...float32) *pgvector.Vector {
		full := make([]float32, 1024)
		copy(full, vals)
		v := pgvector.NewVector(full)
		return &v
	}

	for _, entry := range []struct {
		title     string
		embedding *pgvector.Vector
	}{
		{"sales by region", vec(1, 0)},
		{"sales by country", vec(0.9, 0.1)},
		{"employee head count", vec(0, 1)},
		{"no embedding", nil},
	} {
		_, err := testDB.CreateQuestion(ctx, model.Question{
			UserID:    u.ID,
			Title:     entry.title,
			Answer:    "## Report",
			Embedding: entry.embedding,
		})
		require.NoError(t, err)
	}

	got, err := testDB.SimilarQuestions(ctx, u.ID, *vec(1, 0), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "sales by region", got[0].Question.Title)
	assert.Equal(t, "sales by country", got[1].Question.Title)
	assert.Less(t, got[0].Distance, got[1].Distance)

	// Questions without embeddings and other users' questions are excluded.
	other := createTestUser(t, "storage-jack")
	gotOther, err := testDB.SimilarQuestions(ctx, other.ID, *vec(1, 0), 10)
	require.NoError(t, err)
	assert.Empty(t, gotOther)
}

func TestListQuestionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	u := createTestUser(t, "storage-kate")

	for i := range 3 {
		_, err := testDB.CreateQuestion(ctx, model.Question{
			UserID: u.ID,
			Title:  fmt.Sprintf("question %d", i),
			Answer: "## Report",
		})
		require.NoError(t, err)
	}

	questions, err := testDB.ListQuestions(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, questions, 3)
	for i := 1; i < len(questions); i++ {
		assert.False(t, questions[i].AskedAt.After(questions[i-1].AskedAt))
	}
}
