package events

import "testing"

func TestJiraKeysDistinctInOrder(t *testing.T) {
	got := JiraKeys("PX-123 fix parser", "refs PX-124 and PX-123", "lowercase px-9 ignored", "Q-1 too short")
	want := []string{"PX-123", "PX-124"}
	if len(got) != len(want) {
		t.Fatalf("keys: want=%v got=%v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keys[%d]: want=%s got=%s", i, want[i], got[i])
		}
	}
}

func TestFirstJiraKeyScansInOrder(t *testing.T) {
	if got := FirstJiraKey("no key", "feature/ABC-7-login", "body mentions XY-1"); got != "ABC-7" {
		t.Fatalf("first key: want=ABC-7 got=%s", got)
	}
	if got := FirstJiraKey("", "none"); got != "" {
		t.Fatalf("first key: want empty got=%s", got)
	}
}

func TestIssueTransitionDone(t *testing.T) {
	for status, want := range map[string]bool{"Done": true, "resolved": true, "CLOSED": true, "In Progress": false, "": false} {
		if got := (IssueTransitionEvent{Status: status}).Done(); got != want {
			t.Fatalf("done(%q): want=%v got=%v", status, want, got)
		}
	}
}

func TestCandidateSetDedupAndLowercase(t *testing.T) {
	var s CandidateSet
	s.AddEmail("Dev@Example.com")
	s.AddEmail("dev@example.com")
	s.AddEmail("not-an-email")
	s.AddLogin("Octo")
	s.AddLogin("octo")
	s.AddLogin(" ")
	c := s.Candidates()
	if len(c.Emails) != 1 || c.Emails[0] != "dev@example.com" {
		t.Fatalf("emails: got=%v", c.Emails)
	}
	if len(c.Logins) != 1 || c.Logins[0] != "octo" {
		t.Fatalf("logins: got=%v", c.Logins)
	}
	if login, email := c.First(); login != "octo" || email != "dev@example.com" {
		t.Fatalf("first: got login=%s email=%s", login, email)
	}
}

func TestProjectKeyOf(t *testing.T) {
	if got := ProjectKeyOf("PX-123"); got != "PX" {
		t.Fatalf("project key: want=PX got=%s", got)
	}
	if got := ProjectKeyOf("nokey"); got != "" {
		t.Fatalf("project key: want empty got=%s", got)
	}
}
