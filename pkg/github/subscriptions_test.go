package github

import "testing"

func TestSubscribeUnsubscribe(t *testing.T) {
	s := NewSubscriptionStore(t.TempDir())
	target := Target{Channel: "onebot", ChatID: "group:1"}

	if !s.Subscribe("octo/widgets", target) {
		t.Fatal("first Subscribe should report added")
	}
	if s.Subscribe("octo/widgets", target) {
		t.Fatal("duplicate Subscribe should report not added")
	}

	targets := s.Targets("octo/widgets")
	if len(targets) != 1 || targets[0] != target {
		t.Fatalf("Targets = %v, want [%v]", targets, target)
	}

	if !s.Unsubscribe("octo/widgets", target) {
		t.Fatal("Unsubscribe of a subscriber should succeed")
	}
	if s.Unsubscribe("octo/widgets", target) {
		t.Fatal("Unsubscribe of a non-subscriber should fail")
	}
	if len(s.Targets("octo/widgets")) != 0 {
		t.Fatal("no targets should remain")
	}
}

func TestReposForSorted(t *testing.T) {
	s := NewSubscriptionStore(t.TempDir())
	target := Target{Channel: "telegram", ChatID: "7"}

	s.Subscribe("zeta/z", target)
	s.Subscribe("alpha/a", target)
	s.Subscribe("alpha/a", Target{Channel: "onebot", ChatID: "group:1"})

	repos := s.ReposFor(target)
	if len(repos) != 2 || repos[0] != "alpha/a" || repos[1] != "zeta/z" {
		t.Fatalf("ReposFor = %v, want sorted [alpha/a zeta/z]", repos)
	}
}

func TestSubscriptionsPersistAcrossReload(t *testing.T) {
	dir := t.TempDir()
	target := Target{Channel: "onebot", ChatID: "group:1"}

	s := NewSubscriptionStore(dir)
	s.Subscribe("octo/widgets", target)

	reloaded := NewSubscriptionStore(dir)
	targets := reloaded.Targets("octo/widgets")
	if len(targets) != 1 || targets[0] != target {
		t.Fatalf("reloaded Targets = %v, want [%v]", targets, target)
	}
}
