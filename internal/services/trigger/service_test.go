package trigger

import (
	"context"
	"errors"
	"testing"

	"routined/internal/routine"
	"routined/pkg/logx"
)

func TestRegisterValidatesSpec(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())

	if err := s.Register("ok", "*/5 * * * *", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := s.Register("ok6", "30 * * * * *", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("6-field spec rejected: %v", err)
	}
	if err := s.Register("bad", "not a cron line", func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("invalid spec accepted")
	}
}

func TestRunNow(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())

	ran := false
	if err := s.Register("job", "@hourly", func(ctx context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.RunNow(context.Background(), "job"); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("RunNow did not execute the job")
	}
	if err := s.RunNow(context.Background(), "missing"); !errors.Is(err, routine.ErrNotFound) {
		t.Fatalf("unknown job error = %v, want ErrNotFound", err)
	}
}

func TestRegisterAfterStart(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop(ctx)

	if err := s.Register("late", "@daily", func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("late registration accepted")
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()
	cfg := Config{}.withDefaults()
	if cfg.MaterializeSpec != "* * * * *" || cfg.CloseOutSpec != "* * * * *" {
		t.Fatalf("defaults = %+v", cfg)
	}
	cfg = Config{MaterializeSpec: "*/2 * * * *"}.withDefaults()
	if cfg.MaterializeSpec != "*/2 * * * *" {
		t.Fatal("explicit spec overwritten")
	}
}
