// Package storetest holds the behavioural contract every domain.FactoryStore
// implementation must satisfy. Backend test packages run it against their own
// constructors.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"factorycore/pkg/domain"
)

// Factory builds a fresh, empty store for one subtest.
type Factory func(t *testing.T) domain.FactoryStore

// SampleFactory returns a minimal valid factory named name and owned by userID.
func SampleFactory(name, userID string) domain.Factory {
	return domain.Factory{
		V:    domain.CurrentVersion,
		Name: name,
		Creator: &domain.Author{
			UserID: userID,
			Name:   "name-" + userID,
			Email:  userID + "@example.com",
		},
		Workspace: &domain.WorkspaceConfig{
			Name:       "ws-" + name,
			DefaultEnv: "default",
			Projects: []domain.ProjectConfig{{
				Name: "project",
				Path: "/project",
				Type: "blank",
				Source: &domain.SourceStorage{
					Type:     "git",
					Location: "https://github.com/example/" + name + ".git",
				},
			}},
		},
	}
}

// Seed stores factoryName0..n-1 with creators userId0..n-1 and returns them
// in creation order.
func Seed(t *testing.T, store domain.FactoryStore, n int) []*domain.Record {
	t.Helper()
	out := make([]*domain.Record, 0, n)
	for i := 0; i < n; i++ {
		f := SampleFactory(fmt.Sprintf("factoryName%d", i), fmt.Sprintf("userId%d", i))
		created := int64(i + 1)
		f.Creator.Created = &created
		rec, err := store.Create(context.Background(), domain.NewRecord(f, []domain.FactoryImage{{
			Name:      fmt.Sprintf("image%d", i),
			MediaType: "image/png",
			Data:      []byte{0x89, 'P', 'N', 'G', byte(i)},
		}}))
		if err != nil {
			t.Fatalf("seed factory %d: %v", i, err)
		}
		out = append(out, rec)
	}
	return out
}

// Run executes the contract suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAssignsIDAndRoundTrips", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		rec, err := store.Create(ctx, domain.NewRecord(SampleFactory("round", "user"), nil))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if rec.ID() == "" {
			t.Fatalf("expected generated id")
		}
		if rec.Factory.Creator.Created == nil {
			t.Fatalf("expected creation stamp")
		}
		got, err := store.GetByID(ctx, rec.ID())
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Factory.Name != "round" || got.Factory.CreatorID() != "user" {
			t.Fatalf("unexpected round trip: %+v", got.Factory)
		}
		if got.Factory.Workspace == nil || len(got.Factory.Workspace.Projects) != 1 {
			t.Fatalf("workspace lost in round trip: %+v", got.Factory.Workspace)
		}
		if *got.Factory.Creator.Created != *rec.Factory.Creator.Created {
			t.Fatalf("creation stamp changed")
		}
	})

	t.Run("CreateRejectsNil", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Create(context.Background(), nil); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected invalid argument, got %v", err)
		}
	})

	t.Run("CreateConflictsOnDuplicateID", func(t *testing.T) {
		store := newStore(t)
		seeded := Seed(t, store, 1)
		dup := SampleFactory("other", "someone")
		dup.ID = seeded[0].ID()
		if _, err := store.Create(context.Background(), domain.NewRecord(dup, nil)); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
	})

	t.Run("CreateConflictsOnNameAndCreator", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		Seed(t, store, 5)
		if _, err := store.Create(ctx, domain.NewRecord(SampleFactory("factoryName5", "userId5"), nil)); err != nil {
			t.Fatalf("sixth create: %v", err)
		}
		_, err := store.Create(ctx, domain.NewRecord(SampleFactory("factoryName0", "userId0"), nil))
		if !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		// Same name for a different creator is fine.
		if _, err := store.Create(ctx, domain.NewRecord(SampleFactory("factoryName0", "userId9"), nil)); err != nil {
			t.Fatalf("same name other creator: %v", err)
		}
	})

	t.Run("UnnamedFactoriesDoNotCollide", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for i := 0; i < 2; i++ {
			if _, err := store.Create(ctx, domain.NewRecord(SampleFactory("", "user"), nil)); err != nil {
				t.Fatalf("unnamed create %d: %v", i, err)
			}
		}
	})

	t.Run("RemoveThenGetIsNotFound", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		seeded := Seed(t, store, 5)
		id := seeded[0].ID()
		if err := store.Remove(ctx, id); err != nil {
			t.Fatalf("remove: %v", err)
		}
		if _, err := store.GetByID(ctx, id); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found after remove, got %v", err)
		}
		if err := store.Remove(ctx, id); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found on second remove, got %v", err)
		}
		// The freed name can be claimed again.
		if _, err := store.Create(ctx, domain.NewRecord(SampleFactory("factoryName0", "userId0"), nil)); err != nil {
			t.Fatalf("reuse freed name: %v", err)
		}
	})

	t.Run("EmptyIDIsInvalid", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		if err := store.Remove(ctx, ""); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("remove: expected invalid argument, got %v", err)
		}
		if _, err := store.GetByID(ctx, ""); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("get: expected invalid argument, got %v", err)
		}
		if _, err := store.Update(ctx, nil); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("update nil: expected invalid argument, got %v", err)
		}
	})

	t.Run("UpdateMissingIsNotFound", func(t *testing.T) {
		store := newStore(t)
		f := SampleFactory("ghost", "user")
		f.ID = "factorymissing"
		if _, err := store.Update(context.Background(), domain.NewRecord(f, nil)); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if _, err := store.GetByID(context.Background(), "factorymissing"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("update must not create, got %v", err)
		}
	})

	t.Run("UpdateReplacesFactoryKeepsImages", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		seeded := Seed(t, store, 2)
		next := domain.CloneFactory(seeded[0].Factory)
		next.Name = "renamed"
		next.Policies = &domain.Policies{ReferrerHostname: "example.com"}
		updated, err := store.Update(ctx, domain.NewRecord(next, nil))
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.Factory.Name != "renamed" {
			t.Fatalf("expected renamed, got %q", updated.Factory.Name)
		}
		got, err := store.GetByID(ctx, seeded[0].ID())
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Factory.Policies == nil || got.Factory.Policies.ReferrerHostname != "example.com" {
			t.Fatalf("policies not replaced: %+v", got.Factory.Policies)
		}
		if len(got.Images) != 1 || got.Images[0].Name != "image0" || len(got.Images[0].Data) == 0 {
			t.Fatalf("images must survive update: %+v", got.Images)
		}
		// The old name is free again.
		if _, err := store.Create(ctx, domain.NewRecord(SampleFactory("factoryName0", "userId0"), nil)); err != nil {
			t.Fatalf("reuse released name: %v", err)
		}
	})

	t.Run("UpdateConflictsWithOtherRecord", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		seeded := Seed(t, store, 2)
		f := SampleFactory("factoryName1", "userId1")
		mine := SampleFactory("mine", "userId1")
		rec, err := store.Create(ctx, domain.NewRecord(mine, nil))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		f.ID = rec.ID()
		if _, err := store.Update(ctx, domain.NewRecord(f, nil)); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		// Re-saving a record under its own name is not a collision.
		same := domain.CloneFactory(seeded[1].Factory)
		same.Policies = &domain.Policies{Match: "concrete"}
		if _, err := store.Update(ctx, domain.NewRecord(same, nil)); err != nil {
			t.Fatalf("self update: %v", err)
		}
	})

	t.Run("GetByAttribute", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		seeded := Seed(t, store, 5)
		all, err := store.GetByAttribute(ctx, 0, 0, nil)
		if err != nil {
			t.Fatalf("get all: %v", err)
		}
		if len(all) != 5 {
			t.Fatalf("expected 5 factories, got %d", len(all))
		}
		for i, rec := range all {
			if rec.ID() != seeded[i].ID() {
				t.Fatalf("unstable ordering at %d: %s != %s", i, rec.ID(), seeded[i].ID())
			}
		}
		byCreator, err := store.GetByAttribute(ctx, 10, 0, []domain.Attribute{{Key: "creator.userId", Value: "userId3"}})
		if err != nil {
			t.Fatalf("by creator: %v", err)
		}
		if len(byCreator) != 1 || byCreator[0].Factory.Name != "factoryName3" {
			t.Fatalf("unexpected creator match: %+v", byCreator)
		}
		both, err := store.GetByAttribute(ctx, 10, 0, []domain.Attribute{
			{Key: "name", Value: "factoryName2"},
			{Key: "creator.userId", Value: "userId3"},
		})
		if err != nil {
			t.Fatalf("conjunction: %v", err)
		}
		if len(both) != 0 {
			t.Fatalf("expected empty conjunction, got %d", len(both))
		}
		nested, err := store.GetByAttribute(ctx, 10, 0, []domain.Attribute{
			{Key: "workspace.projects.0.source.location", Value: "https://github.com/example/factoryName4.git"},
		})
		if err != nil {
			t.Fatalf("nested: %v", err)
		}
		if len(nested) != 1 || nested[0].ID() != seeded[4].ID() {
			t.Fatalf("unexpected nested match: %+v", nested)
		}
		page, err := store.GetByAttribute(ctx, 2, 1, []domain.Attribute{{Key: "v", Value: domain.CurrentVersion}})
		if err != nil {
			t.Fatalf("page: %v", err)
		}
		if len(page) != 2 || page[0].ID() != seeded[1].ID() || page[1].ID() != seeded[2].ID() {
			t.Fatalf("unexpected page: %+v", page)
		}
		beyond, err := store.GetByAttribute(ctx, 2, 50, nil)
		if err != nil {
			t.Fatalf("beyond: %v", err)
		}
		if len(beyond) != 0 {
			t.Fatalf("expected empty page, got %d", len(beyond))
		}
		tail, err := store.GetByAttribute(ctx, math.MaxInt, 1, nil)
		if err != nil {
			t.Fatalf("unbounded page: %v", err)
		}
		if len(tail) != 4 || tail[0].ID() != seeded[1].ID() {
			t.Fatalf("expected the four records after the first, got %d", len(tail))
		}
		if _, err := store.GetByAttribute(ctx, 2, -1, nil); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected invalid argument for negative skip, got %v", err)
		}
	})

	t.Run("ReturnedRecordsAreCopies", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		seeded := Seed(t, store, 1)
		seeded[0].Factory.Name = "mutated"
		seeded[0].Images[0].Data[0] = 0
		got, err := store.GetByID(ctx, seeded[0].ID())
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Factory.Name != "factoryName0" || got.Images[0].Data[0] != 0x89 {
			t.Fatalf("store state leaked through returned record")
		}
	})

	t.Run("ConcurrentCreatesClaimNameOnce", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		const workers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			conflicts int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Create(ctx, domain.NewRecord(SampleFactory("race", "racer"), nil))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, domain.ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if succeeded != 1 || conflicts != workers-1 {
			t.Fatalf("expected exactly one winner, got %d successes and %d conflicts", succeeded, conflicts)
		}
	})

	t.Run("ConcurrentCreatesClaimIDOnce", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		const workers = 8
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				f := SampleFactory(fmt.Sprintf("idrace%d", i), fmt.Sprintf("idracer%d", i))
				f.ID = "factoryidrace"
				_, errs[i] = store.Create(ctx, domain.NewRecord(f, nil))
			}(i)
		}
		wg.Wait()
		var succeeded int
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case !errors.Is(err, domain.ErrConflict):
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if succeeded != 1 {
			t.Fatalf("expected exactly one create to claim the id, got %d", succeeded)
		}
		got, err := store.GetByID(ctx, "factoryidrace")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if all, err := store.GetByAttribute(ctx, 0, 0, nil); err != nil || len(all) != 1 {
			t.Fatalf("expected one stored record, got %d (%v)", len(all), err)
		}
		if got.Factory.Name == "" {
			t.Fatalf("stored record lost its name")
		}
	})

	t.Run("ConcurrentCreateAndRenameClaimNameOnce", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for round := 0; round < 10; round++ {
			name := fmt.Sprintf("contested%d", round)
			existing, err := store.Create(ctx, domain.NewRecord(SampleFactory(fmt.Sprintf("before%d", round), "owner"), nil))
			if err != nil {
				t.Fatalf("create existing: %v", err)
			}
			renamed := domain.CloneFactory(existing.Factory)
			renamed.Name = name

			var createErr, updateErr error
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, createErr = store.Create(ctx, domain.NewRecord(SampleFactory(name, "owner"), nil))
			}()
			go func() {
				defer wg.Done()
				_, updateErr = store.Update(ctx, domain.NewRecord(renamed, nil))
			}()
			wg.Wait()

			for _, err := range []error{createErr, updateErr} {
				if err != nil && !errors.Is(err, domain.ErrConflict) {
					t.Fatalf("round %d: unexpected error: %v", round, err)
				}
			}
			if (createErr == nil) == (updateErr == nil) {
				t.Fatalf("round %d: expected exactly one winner, create=%v update=%v", round, createErr, updateErr)
			}
			holders, err := store.GetByAttribute(ctx, 10, 0, []domain.Attribute{
				{Key: "name", Value: name},
				{Key: "creator.userId", Value: "owner"},
			})
			if err != nil {
				t.Fatalf("round %d: find: %v", round, err)
			}
			if len(holders) != 1 {
				t.Fatalf("round %d: expected one holder of %s, got %d", round, name, len(holders))
			}
			if updateErr == nil && holders[0].ID() != existing.ID() {
				t.Fatalf("round %d: renamed record does not hold the name", round)
			}
		}
	})
}
