package config

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	t.Setenv("CANCEL_LEAD_TIME", "")
	d, err := Duration("CANCEL_LEAD_TIME", 2*time.Hour)
	if err != nil || d != 2*time.Hour {
		t.Fatalf("expected fallback 2h, got %v (err %v)", d, err)
	}

	t.Setenv("CANCEL_LEAD_TIME", "90m")
	d, err = Duration("CANCEL_LEAD_TIME", 2*time.Hour)
	if err != nil || d != 90*time.Minute {
		t.Fatalf("expected 90m, got %v (err %v)", d, err)
	}

	t.Setenv("CANCEL_LEAD_TIME", "two hours")
	if _, err := Duration("CANCEL_LEAD_TIME", 2*time.Hour); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestIntAndBool(t *testing.T) {
	t.Setenv("PAGE_SIZE", "abc")
	if _, err := Int("PAGE_SIZE", 20); err == nil {
		t.Fatal("expected error for malformed int")
	}
	t.Setenv("PAGE_SIZE", "50")
	if n, err := Int("PAGE_SIZE", 20); err != nil || n != 50 {
		t.Fatalf("expected 50, got %d (err %v)", n, err)
	}

	t.Setenv("DB_AUTO_MIGRATE", "yes")
	if !Bool("DB_AUTO_MIGRATE", false) {
		t.Fatal("expected yes to be truthy")
	}
	t.Setenv("DB_AUTO_MIGRATE", "maybe")
	if Bool("DB_AUTO_MIGRATE", false) {
		t.Fatal("expected unknown value to use fallback")
	}
}

func TestList(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")
	got := List("KAFKA_BROKERS", "")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected list: %v", got)
	}
}
