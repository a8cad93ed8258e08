/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package mock_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/suparena/identitystore/datastore"
	"github.com/suparena/identitystore/datastore/mock"
	"github.com/suparena/identitystore/errors"
	"github.com/suparena/identitystore/statement"
)

type TestEntity struct {
	ID    string
	Name  string
	Score int
}

var _ datastore.Repository[TestEntity] = (*mock.Repository[TestEntity])(nil)

func TestMockRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("BasicOperations", func(t *testing.T) {
		repo := mock.New[TestEntity]()

		entity := TestEntity{ID: "123", Name: "Test"}
		if err := repo.Put(ctx, &entity); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		retrieved, err := repo.GetOne(ctx, "123")
		if err != nil {
			t.Fatalf("GetOne failed: %v", err)
		}
		if retrieved.ID != "123" || retrieved.Name != "Test" {
			t.Fatalf("Retrieved entity mismatch: %+v", retrieved)
		}

		if err := repo.Put(ctx, &entity); !errors.IsAlreadyExists(err) {
			t.Fatalf("Expected already exists error, got: %v", err)
		}

		if err := repo.Delete(ctx, "123"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := repo.GetOne(ctx, "123"); !errors.IsNotFound(err) {
			t.Fatalf("Expected not found error, got: %v", err)
		}
		if err := repo.Delete(ctx, "123"); !errors.IsNotFound(err) {
			t.Fatalf("Expected not found error on second delete, got: %v", err)
		}
	})

	t.Run("GeneratedKey", func(t *testing.T) {
		repo := mock.New[TestEntity]()
		entity := TestEntity{Name: "NoKey"}
		if err := repo.Put(ctx, &entity); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if entity.ID == "" {
			t.Fatal("Expected a generated ID")
		}
	})

	t.Run("FindAndUpdate", func(t *testing.T) {
		repo := mock.New[TestEntity]()
		for _, e := range []TestEntity{{ID: "a", Name: "x", Score: 1}, {ID: "b", Name: "y", Score: 2}, {ID: "c", Name: "x", Score: 3}} {
			if err := repo.Put(ctx, &e); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
		}

		found, err := repo.Find(ctx, &TestEntity{Name: "x"})
		if err != nil || len(found) != 2 {
			t.Fatalf("Expected 2 matches, got %d (%v)", len(found), err)
		}
		page, _ := repo.Find(ctx, nil, statement.WithPage(1, 1))
		if len(page) != 1 || page[0].ID != "b" {
			t.Fatalf("Unexpected page: %+v", page)
		}
		zero, _ := repo.FindWhere(ctx, map[string]any{"Score": 2})
		if len(zero) != 1 || zero[0].ID != "b" {
			t.Fatalf("Unexpected FindWhere result: %+v", zero)
		}

		if err := repo.Update(ctx, "a", map[string]any{"Score": 10}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		a, _ := repo.GetOne(ctx, "a")
		if a.Score != 10 {
			t.Fatalf("Expected score 10, got %d", a.Score)
		}
		if err := repo.Update(ctx, "a", map[string]any{"Missing": 1}); !errors.IsSchemaError(err) {
			t.Fatalf("Expected schema error, got: %v", err)
		}
		if err := repo.Replace(ctx, &TestEntity{ID: "zz"}); !errors.IsNotFound(err) {
			t.Fatalf("Expected not found on replace, got: %v", err)
		}

		n, err := repo.DeleteWhere(ctx, map[string]any{"Name": "x"})
		if err != nil || n != 2 {
			t.Fatalf("Expected 2 deletions, got %d (%v)", n, err)
		}
		if _, err := repo.DeleteWhere(ctx, map[string]any{}); !errors.IsAmbiguousOperation(err) {
			t.Fatalf("Expected ambiguous operation, got: %v", err)
		}
		if repo.Count() != 1 {
			t.Fatalf("Expected 1 entity left, got %d", repo.Count())
		}
	})

	t.Run("ErrorSimulation", func(t *testing.T) {
		boom := stderrors.New("boom")
		repo := mock.New[TestEntity]().WithPutError(boom).WithDeleteError(boom).WithUpdateError(boom)

		if err := repo.Put(ctx, &TestEntity{ID: "1"}); err != boom {
			t.Fatalf("Expected put error, got: %v", err)
		}
		if err := repo.Delete(ctx, "1"); err != boom {
			t.Fatalf("Expected delete error, got: %v", err)
		}
		if err := repo.Update(ctx, "1", map[string]any{"Name": "n"}); err != boom {
			t.Fatalf("Expected update error, got: %v", err)
		}
	})

	t.Run("NoIdentity", func(t *testing.T) {
		type Keyless struct{ Name string }
		repo := mock.New[Keyless]()
		if err := repo.Put(ctx, &Keyless{Name: "n"}); !errors.IsSchemaError(err) {
			t.Fatalf("Expected schema error, got: %v", err)
		}
	})
}
