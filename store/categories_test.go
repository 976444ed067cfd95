package store

import (
	"context"
	"reflect"
	"testing"

	"boardsync/domain"
	"boardsync/storage"
)

const (
	catWork = "bbbbbbbb-0000-0000-0000-000000000001"
	catHome = "bbbbbbbb-0000-0000-0000-000000000002"
)

func TestLoadCategoriesOncePerSession(t *testing.T) {
	f := newFakeRemote()
	f.categories[catWork] = storage.CategoryRow{ID: catWork, Name: "Work", Color: "cyan"}
	s := newTestStore(f)

	if err := s.LoadCategories(context.Background()); err != nil {
		t.Fatalf("LoadCategories: %v", err)
	}
	if err := s.LoadCategories(context.Background()); err != nil {
		t.Fatalf("second LoadCategories: %v", err)
	}
	cats := s.Categories()
	if len(cats) != 1 || cats[0].Name != "Work" {
		t.Fatalf("got %+v", cats)
	}
}

func TestAddCategoryConfirmsRemoteID(t *testing.T) {
	f := newFakeRemote()
	s := newTestStore(f)
	seedCategories(s)

	if err := s.AddCategory(context.Background(), "Errands", "pink"); err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	s.Wait()

	cats := s.Categories()
	if len(cats) != 1 {
		t.Fatalf("got %d categories, want 1", len(cats))
	}
	if cats[0].Name != "Errands" || cats[0].Color != "pink" {
		t.Fatalf("got %+v", cats[0])
	}
	if cats[0].ID == "" || len(f.categories) != 1 {
		t.Fatal("category was not confirmed against the remote store")
	}
}

func TestAddCategoryRollbackRemovesTempEntry(t *testing.T) {
	f := newFakeRemote()
	f.categoryErr = errRemote
	s := newTestStore(f)
	seedCategories(s, domain.Category{ID: catWork, Name: "Work", Color: "cyan"})
	before := s.Categories()

	if err := s.AddCategory(context.Background(), "Doomed", "red"); err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	s.Wait()

	if got := s.Categories(); !reflect.DeepEqual(got, before) {
		t.Fatalf("rollback left %+v, want %+v", got, before)
	}
}

func TestEditCategoryRollbackRestoresNameAndColor(t *testing.T) {
	f := newFakeRemote()
	f.categoryErr = errRemote
	s := newTestStore(f)
	seedCategories(s, domain.Category{ID: catWork, Name: "Work", Color: "cyan"})

	if err := s.EditCategory(context.Background(), catWork, "Job", "red"); err != nil {
		t.Fatalf("EditCategory: %v", err)
	}
	s.Wait()

	got, ok := s.CategoryByID(catWork)
	if !ok || got.Name != "Work" || got.Color != "cyan" {
		t.Fatalf("edit was not rolled back: %+v", got)
	}
}

func TestDeleteCategoryThenRestoreRoundTrips(t *testing.T) {
	f := newFakeRemote()
	f.categories[catWork] = storage.CategoryRow{ID: catWork, Name: "Work", Color: "cyan"}
	s := newTestStore(f)
	seedCategories(s,
		domain.Category{ID: catWork, Name: "Work", Color: "cyan"},
		domain.Category{ID: catHome, Name: "Home", Color: "green"},
	)

	removed, ok := s.DeleteCategory(context.Background(), catWork)
	if !ok || removed.Name != "Work" {
		t.Fatalf("DeleteCategory returned %+v ok=%v", removed, ok)
	}
	s.Wait()
	if _, ok := s.CategoryByID(catWork); ok {
		t.Fatal("deleted category still visible")
	}

	if err := s.RestoreCategory(context.Background(), removed); err != nil {
		t.Fatalf("RestoreCategory: %v", err)
	}
	s.Wait()

	got, ok := s.CategoryByID(catWork)
	if !ok || got.Name != "Work" || got.Color != "cyan" {
		t.Fatalf("restored %+v, want original", got)
	}
	if len(s.Categories()) != 2 {
		t.Fatalf("got %d categories, want 2", len(s.Categories()))
	}
}

func TestDeleteCategoryLeavesTaskReferencesDangling(t *testing.T) {
	f := newFakeRemote()
	s := newTestStore(f)
	seedCategories(s, domain.Category{ID: catWork, Name: "Work", Color: "cyan"})
	tagged := task(idA, "tagged", domain.ListTodo, 0)
	tagged.CategoryID = catWork
	seedTasks(s, tagged)

	if _, ok := s.DeleteCategory(context.Background(), catWork); !ok {
		t.Fatal("DeleteCategory")
	}
	s.Wait()

	got := findTask(t, s, idA)
	if got.CategoryID != catWork {
		t.Fatalf("task reference was cascaded away: %+v", got)
	}
	if _, ok := s.CategoryByID(got.CategoryID); ok {
		t.Fatal("dangling lookup should miss")
	}
}

func TestDeleteCategoryRollbackReinserts(t *testing.T) {
	f := newFakeRemote()
	f.categoryErr = errRemote
	s := newTestStore(f)
	seedCategories(s,
		domain.Category{ID: catWork, Name: "Work", Color: "cyan"},
		domain.Category{ID: catHome, Name: "Home", Color: "green"},
	)
	before := s.Categories()

	if _, ok := s.DeleteCategory(context.Background(), catWork); !ok {
		t.Fatal("DeleteCategory")
	}
	s.Wait()

	if got := s.Categories(); !reflect.DeepEqual(got, before) {
		t.Fatalf("rollback left %+v, want %+v", got, before)
	}
}
