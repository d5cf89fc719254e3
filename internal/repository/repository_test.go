package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"docqa/internal/model"
)

func setupMockStore(t *testing.T) (sqlmock.Sqlmock, *GormStore) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open gorm: %v", err)
	}
	return mock, NewGormStore(db)
}

func TestGormStore_GetSession(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		setupMock   func(sqlmock.Sqlmock)
		wantNil     bool
		wantErr     bool
		errContains string
	}{
		{
			name: "found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT \\* FROM `qa_sessions` WHERE id = \\?").
					WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("s1", created))
			},
		},
		{
			name: "not found returns nil",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT \\* FROM `qa_sessions`").
					WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))
			},
			wantNil: true,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT \\* FROM `qa_sessions`").
					WillReturnError(errors.New("connection refused"))
			},
			wantErr:     true,
			errContains: "get session failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, store := setupMockStore(t)
			tt.setupMock(mock)

			got, err := store.GetSession(context.Background(), "s1")
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("error = %v, want containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantNil != (got == nil) {
				t.Fatalf("got = %+v, wantNil %v", got, tt.wantNil)
			}
			if got != nil && (got.ID != "s1" || !got.CreatedAt.Equal(created)) {
				t.Fatalf("session = %+v", got)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestGormStore_CreateSession(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectExec("INSERT INTO `qa_sessions`").
		WithArgs("s1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.CreateSession(context.Background(), &model.Session{ID: "s1"}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGormStore_AddDocumentAssignsPosition(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `qa_documents` WHERE session_id = \\?").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(2))
	mock.ExpectExec("INSERT INTO `qa_documents`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	doc := &model.Document{ID: "d3", SessionID: "s1", Filename: "c.txt", Text: "hello"}
	if err := store.AddDocument(context.Background(), doc); err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
	if doc.Position != 2 || doc.NERStatus != model.NERPending {
		t.Fatalf("doc = %+v", doc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGormStore_ListDocumentsOrdered(t *testing.T) {
	mock, store := setupMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "session_id", "position", "filename", "text", "size", "ner_status", "entities_json", "created_at"}).
		AddRow("d1", "s1", 0, "a.txt", "alpha", 5, "completed", `[{"text":"$5","label":"MONEY","start":0,"end":2}]`, time.Now()).
		AddRow("d2", "s1", 1, "b.txt", "beta", 4, "pending", "", time.Now())
	mock.ExpectQuery("SELECT \\* FROM `qa_documents` WHERE session_id = \\? ORDER BY position ASC").
		WithArgs("s1").
		WillReturnRows(rows)

	docs, err := store.ListDocuments(context.Background(), "s1")
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "d1" || docs[1].ID != "d2" {
		t.Fatalf("docs = %+v", docs)
	}
	if ents := docs[0].Entities(); len(ents) != 1 || ents[0].Label != "MONEY" {
		t.Fatalf("entities = %+v", ents)
	}
	if docs[1].Entities() != nil {
		t.Fatal("pending document should have no entities")
	}
}

func TestGormStore_DeleteSessionCascades(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `qa_documents` WHERE session_id = \\?").
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM `qa_sessions` WHERE id = \\?").
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.DeleteSession(context.Background(), "s1"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGormStore_DeleteSessionRollsBack(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `qa_documents`").
		WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectRollback()

	err := store.DeleteSession(context.Background(), "s1")
	if err == nil || !strings.Contains(err.Error(), "delete session documents failed") {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGormStore_UpdateNERStatus(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectExec("UPDATE `qa_documents` SET `ner_status`=\\? WHERE id = \\?").
		WithArgs(string(model.NERProcessing), "d1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.UpdateNERStatus(context.Background(), "d1", model.NERProcessing); err != nil {
		t.Fatalf("UpdateNERStatus() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	if err := store.CreateSession(ctx, &model.Session{ID: "old"}); err != nil {
		t.Fatal(err)
	}
	now = now.Add(time.Hour)
	_ = store.CreateSession(ctx, &model.Session{ID: "new"})

	for i, name := range []string{"a.txt", "b.txt", "c.txt"} {
		doc := &model.Document{ID: name, SessionID: "new", Filename: name, Text: name}
		if err := store.AddDocument(ctx, doc); err != nil {
			t.Fatal(err)
		}
		if doc.Position != i {
			t.Fatalf("position = %d, want %d", doc.Position, i)
		}
	}

	docs, _ := store.ListDocuments(ctx, "new")
	if len(docs) != 3 || docs[0].ID != "a.txt" || docs[2].ID != "c.txt" {
		t.Fatalf("docs = %+v", docs)
	}
	docs[0].Text = "mutated"
	again, _ := store.GetDocument(ctx, "new", "a.txt")
	if again.Text != "a.txt" {
		t.Fatal("ListDocuments must return copies")
	}
	if missing, _ := store.GetDocument(ctx, "old", "a.txt"); missing != nil {
		t.Fatal("document must be scoped to its session")
	}

	_ = store.UpdateNERStatus(ctx, "b.txt", model.NERProcessing)
	_ = store.SaveEntities(ctx, "b.txt", []model.Entity{{Text: "x", Label: "CARDINAL"}})
	b, _ := store.GetDocument(ctx, "new", "b.txt")
	if b.NERStatus != model.NERCompleted || len(b.Entities()) != 1 {
		t.Fatalf("b = %+v", b)
	}

	expired, _ := store.ListSessionsCreatedBefore(ctx, now)
	if len(expired) != 1 || expired[0].ID != "old" {
		t.Fatalf("expired = %+v", expired)
	}
	if n, _ := store.CountSessions(ctx); n != 2 {
		t.Fatalf("count = %d", n)
	}
	if ids, _ := store.ListSessionIDs(ctx); len(ids) != 2 || ids[0] != "old" || ids[1] != "new" {
		t.Fatalf("ids = %v", ids)
	}
	_ = store.DeleteSession(ctx, "new")
	if s, _ := store.GetSession(ctx, "new"); s != nil {
		t.Fatal("session should be gone")
	}
	if docs, _ := store.ListDocuments(ctx, "new"); len(docs) != 0 {
		t.Fatal("documents should be gone with their session")
	}
}
