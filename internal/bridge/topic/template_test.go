package topic

import "testing"

func TestApplyTemplate_PositionalCaptures(t *testing.T) {
	m, matched, err := MatchTopic("sensors/+/t", "sensors/room1/t")
	if err != nil || !matched {
		t.Fatalf("setup match failed: matched=%v err=%v", matched, err)
	}

	got, err := ApplyTemplate("zmq.s.{1}.t", m)
	if err != nil {
		t.Fatalf("ApplyTemplate error: %v", err)
	}
	if got != "zmq.s.room1.t" {
		t.Errorf("ApplyTemplate = %q, want zmq.s.room1.t", got)
	}
}

func TestApplyTemplate_TailPlaceholder(t *testing.T) {
	m, matched, err := MatchTopic("zmq/#", "zmq/a/b")
	if err != nil || !matched {
		t.Fatalf("setup match failed: matched=%v err=%v", matched, err)
	}

	got, err := ApplyTemplate("bridged/{*}", m)
	if err != nil {
		t.Fatalf("ApplyTemplate error: %v", err)
	}
	if got != "bridged/a/b" {
		t.Errorf("ApplyTemplate = %q, want bridged/a/b", got)
	}
}

func TestApplyTemplate_OutOfRangePlaceholder(t *testing.T) {
	m, matched, err := MatchTopic("sensors/+/t", "sensors/room1/t")
	if err != nil || !matched {
		t.Fatalf("setup match failed: matched=%v err=%v", matched, err)
	}

	_, err = ApplyTemplate("zmq.{2}.t", m)
	if err == nil {
		t.Fatal("expected error for out-of-range placeholder")
	}
}

// Match/template round-trip: for any pattern without '#' and any topic
// matching it, applying "{1}/{2}/..." to the capture reproduces the
// topic's wildcard-captured portions exactly.
func TestMatchTemplateRoundTrip(t *testing.T) {
	cases := []struct {
		pattern string
		topic   string
	}{
		{"a/+/+/d", "a/b/c/d"},
		{"+/+", "x/y"},
		{"sensors/+/temp", "sensors/room42/temp"},
	}

	for _, c := range cases {
		m, matched, err := MatchTopic(c.pattern, c.topic)
		if err != nil || !matched {
			t.Fatalf("MatchTopic(%q, %q): matched=%v err=%v", c.pattern, c.topic, matched, err)
		}

		template := placeholderSequence(len(m.Captures))
		got, err := ApplyTemplate(template, m)
		if err != nil {
			t.Fatalf("ApplyTemplate error: %v", err)
		}

		want := joinCaptures(m.Captures)
		if got != want {
			t.Errorf("round-trip pattern=%q topic=%q: got %q, want %q", c.pattern, c.topic, got, want)
		}
	}
}

func placeholderSequence(n int) string {
	s := ""
	for i := 1; i <= n; i++ {
		if i > 1 {
			s += "/"
		}
		s += "{" + itoa(i) + "}"
	}
	return s
}

func joinCaptures(captures []string) string {
	s := ""
	for i, c := range captures {
		if i > 0 {
			s += "/"
		}
		s += c
	}
	return s
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

func TestValidateTemplate_OutOfRangeRejected(t *testing.T) {
	err := ValidateTemplate("a/{2}", 1, false)
	if err == nil {
		t.Fatal("expected error for out-of-range {2} with 1 capture")
	}
}

func TestValidateTemplate_TailWithoutHashRejected(t *testing.T) {
	err := ValidateTemplate("a/{*}", 0, false)
	if err == nil {
		t.Fatal("expected error for {*} when pattern has no '#'")
	}
}

func TestValidateTemplate_ValidAccepted(t *testing.T) {
	if err := ValidateTemplate("zmq.s.{1}.t", 1, false); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateTemplate("bridged/{*}", 0, true); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
