package session

import (
	"testing"
	"time"
)

func TestOpen_Basic(t *testing.T) {
	s := New(10, time.Minute, time.Minute, nil, nil, nil)
	defer s.CloseStore()

	sess, err := s.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected a non-empty session id")
	}
	if s.Count() != 1 {
		t.Fatalf("expected 1 session, got %d", s.Count())
	}
}

func TestOpen_MaxSessions(t *testing.T) {
	s := New(2, time.Minute, time.Minute, nil, nil, nil)
	defer s.CloseStore()

	if _, err := s.Open(); err != nil {
		t.Fatalf("Open 1: %v", err)
	}
	if _, err := s.Open(); err != nil {
		t.Fatalf("Open 2: %v", err)
	}
	if _, err := s.Open(); err == nil {
		t.Fatal("expected an error once max_sessions is reached")
	}
}

func TestTouch_UnknownID(t *testing.T) {
	s := New(10, time.Minute, time.Minute, nil, nil, nil)
	defer s.CloseStore()

	if _, ok := s.Touch("nonexistent"); ok {
		t.Fatal("expected Touch on an unknown id to report false")
	}
}

func TestTouch_UpdatesLastActive(t *testing.T) {
	s := New(10, time.Minute, time.Minute, nil, nil, nil)
	defer s.CloseStore()

	sess, _ := s.Open()
	before := sess.LastActiveAt
	time.Sleep(time.Millisecond)

	got, ok := s.Touch(sess.ID)
	if !ok {
		t.Fatal("expected Touch to find the session")
	}
	if !got.LastActiveAt.After(before) {
		t.Fatal("expected LastActiveAt to advance after Touch")
	}
}

func TestClose_ReleasesAndReportsUnknown(t *testing.T) {
	var released string
	s := New(10, time.Minute, time.Minute, func(id string) { released = id }, nil, nil)
	defer s.CloseStore()

	sess, _ := s.Open()
	if !s.Close(sess.ID) {
		t.Fatal("expected Close to succeed for a known session")
	}
	if released != sess.ID {
		t.Fatalf("expected release callback for %q, got %q", sess.ID, released)
	}
	if s.Close(sess.ID) {
		t.Fatal("expected a second Close of the same id to report false")
	}
}

func TestReapIdle_EvictsExpiredSessions(t *testing.T) {
	var released string
	s := New(10, time.Millisecond, time.Millisecond, func(id string) { released = id }, nil, nil)
	defer s.CloseStore()

	sess, _ := s.Open()
	time.Sleep(20 * time.Millisecond)

	if s.Count() != 0 {
		t.Fatalf("expected idle session to be reaped, got %d remaining", s.Count())
	}
	if released != sess.ID {
		t.Fatalf("expected release callback for reaped session %q, got %q", sess.ID, released)
	}
}

func TestCloseStore_Idempotent(t *testing.T) {
	s := New(10, time.Minute, time.Minute, nil, nil, nil)
	s.CloseStore()
	s.CloseStore()
	s.CloseStore()
}
