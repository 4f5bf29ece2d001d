package admin_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/atmx/college-market/internal/admin"
	"github.com/atmx/college-market/internal/model"
	"github.com/atmx/college-market/internal/settlement"
	"github.com/atmx/college-market/internal/store"
)

// scripted answers prompts from a fixed list.
type scripted struct {
	answers []string
	asked   []string
}

func (s *scripted) Prompt(label string) (string, error) {
	s.asked = append(s.asked, label)
	if len(s.answers) == 0 {
		return "", io.EOF
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

func newAdmin(t *testing.T, answers ...string) (*admin.Admin, *store.MemoryStore, *bytes.Buffer) {
	t.Helper()
	ms := store.NewMemoryStore()
	var out bytes.Buffer
	a := admin.New(ms, settlement.NewResolver(ms, nil), &scripted{answers: answers}, &out)
	return a, ms, &out
}

func seedMarket(t *testing.T, ms *store.MemoryStore, name string, category model.Category) *model.Market {
	t.Helper()
	m := &model.Market{CollegeName: name, Category: category, Status: model.StatusOpen, YesPrice: 50, NoPrice: 50, CreatedAt: time.Now()}
	if err := ms.CreateMarket(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestCreate_DerivesNoPrice(t *testing.T) {
	a, ms, out := newAdmin(t, "UCLA", "", "UC", "35")

	if err := a.Run(context.Background(), []string{"create"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	markets, _ := ms.ListMarkets(context.Background(), "")
	if len(markets) != 1 {
		t.Fatalf("expected 1 market, got %d", len(markets))
	}
	m := markets[0]
	if m.CollegeName != "UCLA" || m.Category != model.CategoryUC || m.YesPrice != 35 || m.NoPrice != 65 || m.Description != nil {
		t.Errorf("unexpected market: %+v", m)
	}
	if !strings.Contains(out.String(), "Created market 1") {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestCreate_RejectsBadPrice(t *testing.T) {
	a, ms, _ := newAdmin(t, "UCLA", "", "", "100")

	err := a.Run(context.Background(), []string{"create"})
	if !errors.Is(err, model.ErrInvalidPrice) {
		t.Errorf("expected ErrInvalidPrice, got %v", err)
	}
	markets, _ := ms.ListMarkets(context.Background(), "")
	if len(markets) != 0 {
		t.Errorf("expected no markets, got %d", len(markets))
	}
}

func TestList_FiltersByCategory(t *testing.T) {
	a, ms, out := newAdmin(t)
	seedMarket(t, ms, "Harvard", model.CategoryIvy)
	seedMarket(t, ms, "UCSD", model.CategoryUC)

	if err := a.Run(context.Background(), []string{"list", "ivy"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Harvard") || strings.Contains(out.String(), "UCSD") {
		t.Errorf("unexpected listing: %q", out.String())
	}

	if err := a.Run(context.Background(), []string{"list", "nope"}); !errors.Is(err, model.ErrInvalidCategory) {
		t.Errorf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestCloseAndResolve(t *testing.T) {
	a, ms, out := newAdmin(t)
	m := seedMarket(t, ms, "Harvard", model.CategoryIvy)
	ctx := context.Background()

	if err := a.Run(ctx, []string{"close", "1"}); err != nil {
		t.Fatal(err)
	}
	got, _ := ms.GetMarket(ctx, m.ID)
	if got.Status != model.StatusClosed {
		t.Errorf("expected closed, got %s", got.Status)
	}

	if err := a.Run(ctx, []string{"resolve", "1", "no"}); err != nil {
		t.Fatal(err)
	}
	got, _ = ms.GetMarket(ctx, m.ID)
	if got.Status != model.StatusResolved || *got.ResolvedOutcome != model.OutcomeNo {
		t.Errorf("expected resolved NO, got %+v", got)
	}
	if !strings.Contains(out.String(), "Resolved market 1 as NO") {
		t.Errorf("unexpected output: %q", out.String())
	}

	if err := a.Run(ctx, []string{"resolve", "1", "YES"}); !errors.Is(err, model.ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved, got %v", err)
	}
}

func TestDelete_RequiresRetypedID(t *testing.T) {
	a, ms, _ := newAdmin(t, "2")
	m := seedMarket(t, ms, "Harvard", model.CategoryIvy)
	seedMarket(t, ms, "Yale", model.CategoryIvy)

	err := a.Run(context.Background(), []string{"delete", "1"})
	if !errors.Is(err, admin.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if _, err := ms.GetMarket(context.Background(), m.ID); err != nil {
		t.Errorf("market should survive a cancelled delete: %v", err)
	}
}

func TestDelete_Confirmed(t *testing.T) {
	a, ms, out := newAdmin(t, " 1 ")
	m := seedMarket(t, ms, "Harvard", model.CategoryIvy)

	if err := a.Run(context.Background(), []string{"delete", "1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ms.GetMarket(context.Background(), m.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected market deleted, got %v", err)
	}
	if !strings.Contains(out.String(), "Deleted market 1") {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestDelete_UnknownMarket(t *testing.T) {
	a, _, _ := newAdmin(t, "9")
	if err := a.Run(context.Background(), []string{"delete", "9"}); !errors.Is(err, model.ErrMarketNotFound) {
		t.Errorf("expected ErrMarketNotFound, got %v", err)
	}
}

func TestRun_Usage(t *testing.T) {
	a, _, _ := newAdmin(t)
	ctx := context.Background()
	for _, args := range [][]string{nil, {"frobnicate"}, {"close"}, {"resolve", "1"}, {"delete", "abc"}} {
		if err := a.Run(ctx, args); err == nil {
			t.Errorf("%v: expected usage error", args)
		}
	}
}
