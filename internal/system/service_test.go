package system

import (
	"context"
	"errors"
	"testing"
)

type recordingService struct {
	name     string
	events   *[]string
	startErr error
	stopErr  error
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(ctx context.Context) error {
	*s.events = append(*s.events, "start:"+s.name)
	return s.startErr
}

func (s *recordingService) Stop(ctx context.Context) error {
	*s.events = append(*s.events, "stop:"+s.name)
	return s.stopErr
}

func TestManagerStartStopOrder(t *testing.T) {
	var events []string
	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(&recordingService{name: name, events: &events}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(events) != len(want) {
		t.Fatalf("events %v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, events[i], want[i])
		}
	}
}

func TestManagerStartFailureRollsBack(t *testing.T) {
	var events []string
	m := NewManager()
	startErr := errors.New("boom")
	m.Register(&recordingService{name: "a", events: &events})
	m.Register(&recordingService{name: "b", events: &events, startErr: startErr})
	m.Register(&recordingService{name: "c", events: &events})

	err := m.Start(context.Background())
	if !errors.Is(err, startErr) {
		t.Fatalf("expected start error, got %v", err)
	}

	want := []string{"start:a", "start:b", "stop:a"}
	if len(events) != len(want) {
		t.Fatalf("events %v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, events[i], want[i])
		}
	}
}

func TestManagerRejectsDuplicates(t *testing.T) {
	var events []string
	m := NewManager()
	if err := m.Register(&recordingService{name: "a", events: &events}); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(&recordingService{name: "a", events: &events}); err == nil {
		t.Error("duplicate name should be rejected")
	}
}

func TestManagerRejectsRegisterAfterStart(t *testing.T) {
	var events []string
	m := NewManager()
	m.Register(&recordingService{name: "a", events: &events})
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(&recordingService{name: "b", events: &events}); err == nil {
		t.Error("register after start should be rejected")
	}
}

func TestManagerStopCollectsFirstError(t *testing.T) {
	var events []string
	m := NewManager()
	stopErr := errors.New("stop failed")
	m.Register(&recordingService{name: "a", events: &events})
	m.Register(&recordingService{name: "b", events: &events, stopErr: stopErr})
	m.Register(&recordingService{name: "c", events: &events})

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	err := m.Stop(ctx)
	if !errors.Is(err, stopErr) {
		t.Fatalf("expected stop error, got %v", err)
	}

	// Every service is still stopped despite the failure.
	stops := 0
	for _, e := range events {
		if e == "stop:a" || e == "stop:b" || e == "stop:c" {
			stops++
		}
	}
	if stops != 3 {
		t.Errorf("all services should be stopped, got %d stops", stops)
	}
}

func TestNoopService(t *testing.T) {
	svc := NoopService{ServiceName: "noop"}
	if svc.Name() != "noop" {
		t.Errorf("name %q", svc.Name())
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Error(err)
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Error(err)
	}
}
